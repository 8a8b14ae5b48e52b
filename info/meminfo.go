// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package info

import (
	"sort"

	"github.com/usbarmory/go-multiboot/uefi"
)

// BasicMemInfo derives the "basic memory info" mem_lower/mem_upper
// scalars from a firmware memory map, per spec.md §4.5 item 4: lower is
// contiguous available memory from address 0, capped at 640 KiB; upper
// is contiguous available memory starting at 1 MiB, uncapped.
func BasicMemInfo(descs []*uefi.MemoryDescriptor) (lowerKiB, upperKiB uint32) {
	sorted := append([]*uefi.MemoryDescriptor(nil), descs...)

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PhysicalStart < sorted[j].PhysicalStart
	})

	const (
		lowerCap  = 640 * 1024
		upperBase = 1024 * 1024
	)

	lower := contiguousAvailableFrom(sorted, 0)
	if lower > lowerCap {
		lower = lowerCap
	}

	upper := contiguousAvailableFrom(sorted, upperBase)

	return uint32(lower / 1024), uint32(upper / 1024)
}

// contiguousAvailableFrom returns the number of bytes of uninterrupted
// available memory starting exactly at start, merging adjacent available
// descriptors until a gap or a non-available type breaks the run.
func contiguousAvailableFrom(sorted []*uefi.MemoryDescriptor, start uint64) uint64 {
	idx := -1

	for i, d := range sorted {
		if d.PhysicalStart <= start && start < d.PhysicalEnd() {
			idx = i
			break
		}
	}

	if idx < 0 || MemTypeFromEFI(sorted[idx].Type) != MemAvailable {
		return 0
	}

	cursor := sorted[idx].PhysicalEnd()
	total := cursor - start

	for i := idx + 1; i < len(sorted); i++ {
		d := sorted[i]

		if d.PhysicalStart != cursor || MemTypeFromEFI(d.Type) != MemAvailable {
			break
		}

		total += d.NumberOfPages * uefi.PageSize
		cursor = d.PhysicalEnd()
	}

	return total
}
