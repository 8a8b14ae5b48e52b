// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package module implements the Multiboot Module Loader (C4): staging
// each auxiliary file configured alongside the kernel as a contiguous,
// page-aligned physical block, paired with its command-line string.
package module

import (
	"github.com/usbarmory/go-multiboot/config"
	"github.com/usbarmory/go-multiboot/mem"
)

// LoadedModule is a single module staged in physical memory, ready to be
// described in a "modules" info-structure tag.
type LoadedModule struct {
	PhysicalBase uint64
	Size         uint64
	Cmdline      string
}

// End returns the module's exclusive physical end address.
func (m *LoadedModule) End() uint64 {
	return m.PhysicalBase + m.Size
}

// Constraint selects the placement policy for a module allocation, per
// spec.md §4.4: Below200M iff ModulesBelow200Mb is active, else Below4G
// for 32-bit kernels, else Anywhere. The info builder (C5) allocates its
// boot information buffer under this same constraint, per spec.md §4.5.
func Constraint(quirks config.QuirkSet, is32Bit bool) mem.Constraint {
	switch {
	case quirks.Has(config.ModulesBelow200Mb):
		return mem.Constraint{Kind: mem.Below200M}
	case is32Bit:
		return mem.Constraint{Kind: mem.Below4G}
	default:
		return mem.Constraint{Kind: mem.Anywhere}
	}
}

// LoadAll stages every configured module through stager, in input order,
// and returns the resulting LoadedModule records in the same order. A
// failure to allocate or write any module aborts the whole batch; the
// caller is responsible for unwinding via stager.FreeAll.
func LoadAll(mods []config.Module, stager *mem.Stager, quirks config.QuirkSet, is32Bit bool) ([]LoadedModule, error) {
	c := Constraint(quirks, is32Bit)

	out := make([]LoadedModule, 0, len(mods))

	for _, m := range mods {
		pages := mem.PagesFor(len(m.Image))

		base, err := stager.Allocate(pages, c, mem.KindModule)

		if err != nil {
			return nil, err
		}

		if err := stager.WriteAt(base, m.Image); err != nil {
			return nil, err
		}

		out = append(out, LoadedModule{
			PhysicalBase: base,
			Size:         uint64(len(m.Image)),
			Cmdline:      m.Argv,
		})
	}

	return out, nil
}
