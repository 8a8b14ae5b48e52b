// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package info

import "testing"

func TestRsdpLength(t *testing.T) {
	tests := []struct {
		name   string
		length uint32
		want   int
	}{
		{"valid v2 length", 36, 36},
		{"valid intermediate length", 24, 24},
		{"too short falls back to max", 10, rsdpMaxLen},
		{"too long falls back to max", 1000, rsdpMaxLen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rsdpLength(tt.length); got != tt.want {
				t.Errorf("rsdpLength(%d) = %d, want %d", tt.length, got, tt.want)
			}
		})
	}
}

func TestMemTypeFromEFI(t *testing.T) {
	tests := []struct {
		name string
		in   uint32
		want uint32
	}{
		{"conventional", 7, MemAvailable},  // EfiConventionalMemory
		{"loader code", 1, MemAvailable},   // EfiLoaderCode
		{"acpi reclaim", 9, MemACPIReclaimable},
		{"acpi nvs", 10, MemNVS},
		{"unusable", 8, MemBadRAM},
		{"memory mapped io", 11, MemReserved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MemTypeFromEFI(tt.in); got != tt.want {
				t.Errorf("MemTypeFromEFI(%d) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
