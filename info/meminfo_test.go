// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package info

import (
	"testing"

	"github.com/usbarmory/go-multiboot/uefi"
)

func desc(start, pages uint64, typ uint32) *uefi.MemoryDescriptor {
	return &uefi.MemoryDescriptor{PhysicalStart: start, NumberOfPages: pages, Type: typ}
}

func TestBasicMemInfo(t *testing.T) {
	descs := []*uefi.MemoryDescriptor{
		desc(0, 0x9f, uefi.EfiConventionalMemory),              // 0 - 0x9f000, available
		desc(0x9f000, 0x61, uefi.EfiReservedMemoryType),         // EBDA/reserved gap, breaks the low run
		desc(0x100000, 0x3f00, uefi.EfiConventionalMemory),      // 1 MiB upward, available
		desc(0x4000000, 0x10, uefi.EfiACPIReclaimMemory),        // breaks the upper run
	}

	lower, upper := BasicMemInfo(descs)

	if want := uint32(0x9f000 / 1024); lower != want {
		t.Errorf("lowerKiB = %d, want %d", lower, want)
	}

	if want := uint32(0x3f00 * uefi.PageSize / 1024); upper != want {
		t.Errorf("upperKiB = %d, want %d", upper, want)
	}
}

func TestBasicMemInfoCapsLowerAt640KiB(t *testing.T) {
	descs := []*uefi.MemoryDescriptor{
		desc(0, 1024, uefi.EfiConventionalMemory), // 1024 pages = 4 MiB, all available
	}

	lower, _ := BasicMemInfo(descs)

	if lower != 640 {
		t.Errorf("lowerKiB = %d, want 640 (capped)", lower)
	}
}

func TestBasicMemInfoNoAvailableAtOrigin(t *testing.T) {
	descs := []*uefi.MemoryDescriptor{
		desc(0, 16, uefi.EfiReservedMemoryType),
	}

	lower, upper := BasicMemInfo(descs)

	if lower != 0 || upper != 0 {
		t.Errorf("lowerKiB,upperKiB = %d,%d, want 0,0", lower, upper)
	}
}
