// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mb2

import (
	"encoding/binary"
	"testing"

	"github.com/usbarmory/go-multiboot/info"
)

// parsedTag is a minimal tag-stream walker used only by tests, mirroring
// the traversal spec.md §8 invariant 4 (round-trip) requires of any
// consumer.
type parsedTag struct {
	typ  uint32
	data []byte
}

func parseTags(t *testing.T, buf []byte) (totalSize uint32, tags []parsedTag) {
	t.Helper()

	if len(buf) < 8 {
		t.Fatalf("buffer too short: %d bytes", len(buf))
	}

	totalSize = binary.LittleEndian.Uint32(buf[0:])
	reserved := binary.LittleEndian.Uint32(buf[4:])

	if reserved != 0 {
		t.Fatalf("reserved field = %#x, want 0", reserved)
	}

	if int(totalSize) != len(buf) {
		t.Fatalf("total_size = %d, want %d (actual buffer length)", totalSize, len(buf))
	}

	off := 8

	for off+8 <= len(buf) {
		typ := binary.LittleEndian.Uint32(buf[off:])
		size := binary.LittleEndian.Uint32(buf[off+4:])

		if off+int(size) > len(buf) {
			t.Fatalf("tag at %#x: size %d overruns buffer", off, size)
		}

		data := buf[off+8 : off+int(size)]
		tags = append(tags, parsedTag{typ: typ, data: data})

		if typ == tagEnd {
			break
		}

		advance := int(size)
		if rem := advance % 8; rem != 0 {
			advance += 8 - rem
		}

		if off%8 != 0 {
			t.Fatalf("tag at %#x is not 8-byte aligned", off)
		}

		off += advance
	}

	return totalSize, tags
}

func TestBuildRoundTrip(t *testing.T) {
	p := &info.Params{
		Cmdline:     "vmlinuz quiet",
		MemLowerKiB: 639,
		MemUpperKiB: 65536,
		Modules: []info.Module{
			{Base: 0x200000, End: 0x400000, Cmdline: "initrd.img"},
		},
		MemMap: []info.MemMapEntry{
			{Base: 0, Length: 0x9fc00, Type: info.MemAvailable},
			{Base: 0x100000000, Length: 0x1000, Type: info.MemReserved},
		},
	}

	buf, err := Builder{}.Build(p, 0x200000)

	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if len(buf)%8 != 0 {
		t.Errorf("total buffer length %d is not a multiple of 8", len(buf))
	}

	_, tags := parseTags(t, buf)

	if len(tags) == 0 {
		t.Fatal("no tags parsed")
	}

	if tags[0].typ != tagCmdline {
		t.Fatalf("first tag type = %d, want cmdline (%d)", tags[0].typ, tagCmdline)
	}

	gotCmdline := string(tags[0].data[:len(tags[0].data)-1]) // strip NUL

	if gotCmdline != p.Cmdline {
		t.Errorf("cmdline tag = %q, want %q", gotCmdline, p.Cmdline)
	}

	last := tags[len(tags)-1]

	if last.typ != tagEnd || len(last.data) != 0 {
		t.Errorf("last tag = {%d, %d bytes}, want end tag of size 0", last.typ, len(last.data))
	}
}

func TestBuildEmptyMemMapOmitsTag(t *testing.T) {
	buf, err := Builder{}.Build(&info.Params{Cmdline: "x"}, 0)

	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	_, tags := parseTags(t, buf)

	for _, tg := range tags {
		if tg.typ == tagMmap {
			t.Error("mmap tag present despite empty MemMap")
		}
	}
}
