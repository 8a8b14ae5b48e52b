// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package config

import "testing"

func TestQuirkSetHas(t *testing.T) {
	s := QuirkSet{ForceElf: true}

	if !s.Has(ForceElf) {
		t.Error("expected ForceElf to be set")
	}

	if s.Has(KeepResolution) {
		t.Error("did not expect KeepResolution to be set")
	}
}

func TestConfigResolve(t *testing.T) {
	c := &Config{
		Default: "linux",
		Entries: map[string]Entry{
			"linux": {Name: "linux"},
			"bsd":   {Name: "bsd"},
		},
	}

	tests := []struct {
		name    string
		arg     string
		want    string
		wantErr bool
	}{
		{"default", "", "linux", false},
		{"explicit", "bsd", "bsd", false},
		{"missing", "plan9", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := c.Resolve(tt.arg)

			if ok == tt.wantErr {
				t.Fatalf("Resolve(%q) ok = %v, want %v", tt.arg, ok, !tt.wantErr)
			}

			if ok && e.Name != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.arg, e.Name, tt.want)
			}
		})
	}
}
