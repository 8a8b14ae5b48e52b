// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mb1

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/usbarmory/go-multiboot/info"
)

func TestBuildDeterministic(t *testing.T) {
	p := &info.Params{
		Cmdline:     "vmlinuz quiet",
		MemLowerKiB: 639,
		MemUpperKiB: 65536,
	}

	a, err := Builder{}.Build(p, 0x300000)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	b, err := Builder{}.Build(p, 0x300000)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if !bytes.Equal(a, b) {
		t.Error("two Build() calls with identical input produced different output")
	}
}

func TestBuildRelocatesCmdlinePointer(t *testing.T) {
	const base = 0x400000

	p := &info.Params{Cmdline: "root=/dev/sda1"}

	buf, err := Builder{}.Build(p, base)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	flags := binary.LittleEndian.Uint32(buf[0:])
	if flags&flagCmdline == 0 {
		t.Fatal("cmdline flag not set")
	}

	cmdlinePtr := binary.LittleEndian.Uint32(buf[16:])

	if uint64(cmdlinePtr) < base {
		t.Fatalf("cmdline pointer %#x not relocated above base %#x", cmdlinePtr, base)
	}

	off := uint64(cmdlinePtr) - base

	if off >= uint64(len(buf)) {
		t.Fatalf("cmdline pointer %#x resolves outside buffer of length %d", cmdlinePtr, len(buf))
	}

	got := string(buf[off : off+uint64(len(p.Cmdline))])

	if got != p.Cmdline {
		t.Errorf("cmdline at relocated pointer = %q, want %q", got, p.Cmdline)
	}
}

func TestBuildFlagsOnlyAdvertisePresentFields(t *testing.T) {
	buf, err := Builder{}.Build(&info.Params{}, 0)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	flags := binary.LittleEndian.Uint32(buf[0:])

	for _, bit := range []uint32{flagCmdline, flagModules, flagElfShdr, flagMmap, flagBootName, flagFB} {
		if flags&bit != 0 {
			t.Errorf("flags = %#x has bit %#x set despite no corresponding field", flags, bit)
		}
	}
}
