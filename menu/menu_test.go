// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package menu

import (
	"testing"

	"github.com/usbarmory/go-multiboot/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Default: "linux",
		Entries: map[string]config.Entry{
			"linux":   {Name: "linux"},
			"freebsd": {Name: "freebsd"},
		},
	}
}

func TestDefaultEntry(t *testing.T) {
	cfg := testConfig()

	e, ok := defaultEntry(cfg)

	if !ok || e.Name != "linux" {
		t.Errorf("defaultEntry() = %+v, %v, want linux entry", e, ok)
	}

	cfg.Default = "missing"

	e, ok = defaultEntry(cfg)

	if !ok || e.Name != "freebsd" {
		t.Errorf("defaultEntry() with missing default = %+v, %v, want first entry in name order", e, ok)
	}

	if _, ok := defaultEntry(&config.Config{}); ok {
		t.Error("defaultEntry() on empty config = ok, want !ok")
	}
}

func TestResolveChoice(t *testing.T) {
	cfg := testConfig()
	names := sortedNames(cfg.Entries)

	tests := []struct {
		value  string
		want   string
		wantOK bool
	}{
		{"0", "freebsd", true},
		{"1", "linux", true},
		{"linux", "linux", true},
		{"nonexistent", "", false},
		{"5", "", false},
		{"-1", "", false},
	}

	for _, tt := range tests {
		e, ok := resolveChoice(cfg, names, tt.value)

		if ok != tt.wantOK {
			t.Errorf("resolveChoice(%q) ok = %v, want %v", tt.value, ok, tt.wantOK)
			continue
		}

		if ok && e.Name != tt.want {
			t.Errorf("resolveChoice(%q) = %q, want %q", tt.value, e.Name, tt.want)
		}
	}
}
