// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package module

import (
	"testing"

	"github.com/usbarmory/go-multiboot/config"
	"github.com/usbarmory/go-multiboot/mem"
)

func TestConstraint(t *testing.T) {
	below200 := config.QuirkSet{config.ModulesBelow200Mb: true}
	empty := config.QuirkSet{}

	tests := []struct {
		name    string
		quirks  config.QuirkSet
		is32Bit bool
		want    mem.ConstraintKind
	}{
		{"below200mb quirk wins regardless of bitness", below200, false, mem.Below200M},
		{"32-bit kernel without quirk", empty, true, mem.Below4G},
		{"64-bit kernel without quirk", empty, false, mem.Anywhere},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Constraint(tt.quirks, tt.is32Bit).Kind; got != tt.want {
				t.Errorf("Constraint() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadedModuleEnd(t *testing.T) {
	m := &LoadedModule{PhysicalBase: 0x1000000, Size: 8 * 1024 * 1024}

	if got, want := m.End(), uint64(0x1000000+8*1024*1024); got != want {
		t.Errorf("End() = %#x, want %#x", got, want)
	}
}
