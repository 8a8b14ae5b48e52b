// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package multiboot

import (
	"encoding/binary"
	"testing"

	"github.com/usbarmory/go-multiboot/config"
)

func putU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:], v)
}

// buildV1AoutKludge constructs the literal scenario from the spec's
// end-to-end test 1: a 64 KiB kernel with an aout-kludge header at
// offset 8.
func buildV1AoutKludge() []byte {
	image := make([]byte, 64*1024)

	flags := uint32(0x00010003)
	magic := uint32(V1HeaderMagic)
	checksum := uint32(0) - (magic + flags)

	off := 8
	putU32(image, off, magic)
	putU32(image, off+4, flags)
	putU32(image, off+8, checksum)
	putU32(image, off+12, 0x100008)  // header_addr
	putU32(image, off+16, 0x100000)  // load_addr
	putU32(image, off+20, 0x110000)  // load_end_addr
	putU32(image, off+24, 0x120000)  // bss_end_addr
	putU32(image, off+28, 0x100100)  // entry_addr

	return image
}

func TestScanV1AoutKludge(t *testing.T) {
	image := buildV1AoutKludge()

	h, off, err := Scan(image, nil)

	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if off != 8 {
		t.Errorf("offset = %d, want 8", off)
	}

	if h.Version != 1 {
		t.Fatalf("Version = %d, want 1", h.Version)
	}

	if !h.V1.AoutKludge {
		t.Fatal("expected AoutKludge true")
	}

	if h.V1.LoadAddr != 0x100000 || h.V1.LoadEndAddr != 0x110000 || h.V1.BssEndAddr != 0x120000 || h.V1.EntryAddr != 0x100100 {
		t.Errorf("unexpected aout-kludge fields: %+v", h.V1)
	}
}

func buildV2(entryEfi64 uint64) []byte {
	image := make([]byte, 64*1024)

	var tags []byte

	// entry_address_efi64 tag
	tag := make([]byte, 16)
	binary.LittleEndian.PutUint16(tag[0:], uint16(TagEntryAddressEfi64))
	binary.LittleEndian.PutUint16(tag[2:], 0)
	binary.LittleEndian.PutUint32(tag[4:], 16)
	binary.LittleEndian.PutUint64(tag[8:], entryEfi64)
	tags = append(tags, tag...)

	// end tag
	end := make([]byte, 8)
	binary.LittleEndian.PutUint32(end[4:], 8)
	tags = append(tags, end...)

	headerLen := uint32(16 + len(tags))
	magic := uint32(V2HeaderMagic)
	arch := uint32(ArchI386)
	checksum := uint32(0) - (magic + arch + headerLen)

	off := 0
	putU32(image, off, magic)
	putU32(image, off+4, arch)
	putU32(image, off+8, headerLen)
	putU32(image, off+12, checksum)
	copy(image[off+16:], tags)

	return image
}

func TestScanV2Efi64(t *testing.T) {
	image := buildV2(0x200000)

	h, off, err := Scan(image, nil)

	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if off != 0 {
		t.Errorf("offset = %d, want 0", off)
	}

	if h.Version != 2 {
		t.Fatalf("Version = %d, want 2", h.Version)
	}

	tag := h.V2.Find(TagEntryAddressEfi64)

	if tag == nil {
		t.Fatal("expected entry_address_efi64 tag")
	}

	if got := binary.LittleEndian.Uint64(tag.Data); got != 0x200000 {
		t.Errorf("entry = %#x, want %#x", got, 0x200000)
	}

	last := h.V2.Tags[len(h.V2.Tags)-1]

	if last.Kind != TagEnd {
		t.Errorf("last tag kind = %d, want TagEnd", last.Kind)
	}
}

func TestScanV2PreferredOverV1(t *testing.T) {
	v2 := buildV2(0x200000)
	v1 := buildV1AoutKludge()

	// overlay a V1 header further into the image, still within the V1
	// scan window; V2 at offset 0 must still win.
	image := make([]byte, len(v2))
	copy(image, v2)
	copy(image[4096:], v1[:1024])

	h, _, err := Scan(image, nil)

	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if h.Version != 2 {
		t.Errorf("Version = %d, want 2 (V2 must win)", h.Version)
	}
}

func TestScanNoHeaderForceElf(t *testing.T) {
	image := make([]byte, 1024)

	_, _, err := Scan(image, nil)

	if err != ErrNoMultibootHeader {
		t.Fatalf("err = %v, want ErrNoMultibootHeader", err)
	}

	h, off, err := Scan(image, config.QuirkSet{config.ForceElf: true})

	if err != nil {
		t.Fatalf("Scan with ForceElf: %v", err)
	}

	if h.Version != 1 || h.V1.AoutKludge {
		t.Errorf("expected synthesized non-aout V1 header, got %+v", h)
	}

	if off != 0 {
		t.Errorf("offset = %d, want 0", off)
	}
}

func TestScanBadChecksumRejected(t *testing.T) {
	image := buildV1AoutKludge()
	// corrupt the checksum
	putU32(image, 16, 0xdeadbeef)

	_, _, err := Scan(image, nil)

	if err != ErrNoMultibootHeader {
		t.Fatalf("err = %v, want ErrNoMultibootHeader for corrupted checksum", err)
	}
}

func TestHeaderDeterminism(t *testing.T) {
	image := buildV2(0x400000)

	h1, off1, err1 := Scan(image, nil)
	h2, off2, err2 := Scan(image, nil)

	if err1 != nil || err2 != nil {
		t.Fatalf("Scan errors: %v, %v", err1, err2)
	}

	if off1 != off2 {
		t.Errorf("offsets differ: %d vs %d", off1, off2)
	}

	if len(h1.V2.Tags) != len(h2.V2.Tags) {
		t.Errorf("tag counts differ: %d vs %d", len(h1.V2.Tags), len(h2.V2.Tags))
	}
}
