// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel

import (
	"encoding/binary"
	"testing"

	"github.com/usbarmory/go-multiboot/mem"
	"github.com/usbarmory/go-multiboot/multiboot"
)

// TestAoutKludgeRangeScenario exercises spec.md §8 scenario 1: a 64KiB
// kernel with the header at offset 8 and header_addr = load_addr +
// headerOffset (the common case where the header sits at its own
// in-memory address).
func TestAoutKludgeRangeScenario(t *testing.T) {
	h := &multiboot.HeaderV1{
		HeaderAddr:  0x100008,
		LoadAddr:    0x100000,
		LoadEndAddr: 0x110000,
		BssEndAddr:  0x120000,
		EntryAddr:   0x100100,
	}

	fileStart, fileEnd, loadAddr, loadEnd, bssEnd, err := aoutKludgeRange(h, 8, 64*1024)

	if err != nil {
		t.Fatalf("aoutKludgeRange() error = %v", err)
	}

	if fileStart != 0 || fileEnd != 0x10000 {
		t.Errorf("copy window = [%#x,%#x), want [0x0,0x10000)", fileStart, fileEnd)
	}

	if loadAddr != 0x100000 || loadEnd != 0x110000 || bssEnd != 0x120000 {
		t.Errorf("geometry = (%#x,%#x,%#x), want (0x100000,0x110000,0x120000)", loadAddr, loadEnd, bssEnd)
	}

	if pages := mem.PagesFor(int(bssEnd - loadAddr)); pages != 32 {
		t.Errorf("PagesFor(bssEnd-loadAddr) = %d, want 32", pages)
	}
}

func TestAoutKludgeRangeOutOfOrder(t *testing.T) {
	h := &multiboot.HeaderV1{LoadAddr: 0x100000, LoadEndAddr: 0x100000, BssEndAddr: 0x0ffff0}

	if _, _, _, _, _, err := aoutKludgeRange(h, 8, 1024); err == nil {
		t.Error("expected error for bss_end_addr < load_end_addr")
	}
}

func TestAoutKludgeRangeOutOfBounds(t *testing.T) {
	h := &multiboot.HeaderV1{HeaderAddr: 0x100008, LoadAddr: 0x100000, LoadEndAddr: 0x200000, BssEndAddr: 0x200000}

	if _, _, _, _, _, err := aoutKludgeRange(h, 8, 1024); err == nil {
		t.Error("expected error when copy window exceeds image length")
	}
}

func TestExpectedMode(t *testing.T) {
	v2With := func(kind multiboot.TagKind) *multiboot.Header {
		return &multiboot.Header{Version: 2, V2: &multiboot.HeaderV2{Tags: []multiboot.Tag{{Kind: kind}}}}
	}

	tests := []struct {
		name string
		hdr  *multiboot.Header
		is64 bool
		want Mode
	}{
		{"efi64 tag wins", v2With(multiboot.TagEntryAddressEfi64), true, ModeEFI64},
		{"efi32 tag wins over elf64", v2With(multiboot.TagEntryAddressEfi32), true, ModeEFI32},
		{"plain entry_address forces i386", v2With(multiboot.TagEntryAddress), true, ModeI386},
		{"elf64 no tags", &multiboot.Header{Version: 1, V1: &multiboot.HeaderV1{}}, true, ModeAMD64},
		{"elf32 no tags", &multiboot.Header{Version: 1, V1: &multiboot.HeaderV1{}}, false, ModeI386},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpectedMode(tt.hdr, tt.is64); got != tt.want {
				t.Errorf("ExpectedMode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestElfSectionTableMeta64(t *testing.T) {
	image := make([]byte, 0x40+3*0x40)
	binary.LittleEndian.PutUint64(image[0x28:], 0x40) // e_shoff
	binary.LittleEndian.PutUint16(image[0x3A:], 0x40) // e_shentsize
	binary.LittleEndian.PutUint16(image[0x3C:], 3)    // e_shnum
	binary.LittleEndian.PutUint16(image[0x3E:], 2)    // e_shstrndx

	shoff, entsize, shnum, shstrndx, err := elfSectionTableMeta(image, true)

	if err != nil {
		t.Fatalf("elfSectionTableMeta() error = %v", err)
	}

	if shoff != 0x40 || entsize != 0x40 || shnum != 3 || shstrndx != 2 {
		t.Errorf("got (%#x,%d,%d,%d), want (0x40,64,3,2)", shoff, entsize, shnum, shstrndx)
	}
}

func TestElfSectionTableMetaOutOfRange(t *testing.T) {
	image := make([]byte, 0x40)
	binary.LittleEndian.PutUint64(image[0x28:], 0x1000)
	binary.LittleEndian.PutUint16(image[0x3A:], 0x40)
	binary.LittleEndian.PutUint16(image[0x3C:], 3)

	if _, _, _, _, err := elfSectionTableMeta(image, true); err == nil {
		t.Error("expected error when section header table exceeds image length")
	}
}
