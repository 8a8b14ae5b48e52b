// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package mb1 assembles the Multiboot 1 "mbi" structure: a fixed-size
// scalar header plus the side-tables it points to (cmdline, module
// table, memory map, bootloader name, ELF section headers), packed
// contiguously after it in the same buffer, per spec.md §3/§4.5.
package mb1

import (
	"bytes"
	"encoding/binary"

	"github.com/usbarmory/go-multiboot/info"
)

// mbi flag bits, per the Multiboot Specification.
const (
	flagMemory   = 1 << 0
	flagCmdline  = 1 << 2
	flagModules  = 1 << 3
	flagElfShdr  = 1 << 5
	flagMmap     = 1 << 6
	flagBootName = 1 << 9
	flagFB       = 1 << 12
)

const mbiHeaderSize = 116

// Builder implements info.Builder for the Multiboot 1 protocol.
type Builder struct{}

// rel records a byte offset within the returned buffer holding a 4-byte
// value that is currently an offset-within-buffer, and which must have
// base added to become an absolute physical pointer once the buffer's
// final address is known.
type rel struct {
	offset int
}

// Build assembles the mbi structure described by p. Call it once with
// base 0 to size the buffer for allocation, then again with the
// allocation's real physical base to produce the buffer actually handed
// to the kernel; Build is a pure function of (p, base) so the two calls
// are consistent with the header-determinism invariant (spec.md §8
// invariant 3).
func (Builder) Build(p *info.Params, base uint64) ([]byte, error) {
	var flags uint32
	var rels []rel

	if p.MemLowerKiB != 0 || p.MemUpperKiB != 0 {
		flags |= flagMemory
	}

	side := new(bytes.Buffer)
	sideOffsets := map[string]int{}

	appendSide := func(name string, b []byte) int {
		off := mbiHeaderSize + side.Len()
		sideOffsets[name] = off
		side.Write(b)
		// keep side-tables 4-byte aligned for the scalar tables that follow
		if rem := side.Len() % 4; rem != 0 {
			side.Write(make([]byte, 4-rem))
		}
		return off
	}

	if p.Cmdline != "" {
		flags |= flagCmdline
		appendSide("cmdline", append([]byte(p.Cmdline), 0))
	}

	var modsAddr int
	if len(p.Modules) > 0 {
		flags |= flagModules

		modTable := new(bytes.Buffer)

		for _, m := range p.Modules {
			strOff := appendSide("", append([]byte(m.Cmdline), 0))
			binary.Write(modTable, binary.LittleEndian, uint32(m.Base))
			binary.Write(modTable, binary.LittleEndian, uint32(m.End))
			binary.Write(modTable, binary.LittleEndian, uint32(strOff))
			binary.Write(modTable, binary.LittleEndian, uint32(0)) // reserved
		}

		modsAddr = appendSide("mods", modTable.Bytes())

		// each module entry's string pointer is an in-buffer offset too
		for i := range p.Modules {
			rels = append(rels, rel{offset: modsAddr + i*16 + 8})
		}
	}

	var shdrNum, shdrSize, shdrShndx uint32
	var shdrAddr int
	if p.IsELF && p.ELF != nil {
		flags |= flagElfShdr
		shdrNum = uint32(p.ELF.Num)
		shdrSize = uint32(p.ELF.EntrySize)
		shdrShndx = uint32(p.ELF.Shstrndx)
		shdrAddr = appendSide("shdr", p.ELF.Table)
	}

	var mmapAddr, mmapLen int
	if len(p.MemMap) > 0 {
		flags |= flagMmap

		mmapTable := new(bytes.Buffer)

		for _, e := range p.MemMap {
			// each entry is prefixed with its own size field, per the
			// Multiboot 1 memory map entry format
			binary.Write(mmapTable, binary.LittleEndian, uint32(20))
			binary.Write(mmapTable, binary.LittleEndian, e.Base)
			binary.Write(mmapTable, binary.LittleEndian, e.Length)
			binary.Write(mmapTable, binary.LittleEndian, e.Type)
		}

		mmapLen = mmapTable.Len()
		mmapAddr = appendSide("mmap", mmapTable.Bytes())
	}

	var bootNameAddr int
	if p.BootloaderName != "" {
		flags |= flagBootName
		bootNameAddr = appendSide("bootname", append([]byte(p.BootloaderName), 0))
	}

	if p.Framebuffer != nil {
		flags |= flagFB
	}

	hdr := new(bytes.Buffer)

	writeU32 := func(v uint32) { binary.Write(hdr, binary.LittleEndian, v) }
	writeRelU32 := func(off int) {
		rels = append(rels, rel{offset: hdr.Len()})
		writeU32(uint32(off))
	}

	writeU32(flags)
	writeU32(p.MemLowerKiB)
	writeU32(p.MemUpperKiB)
	writeU32(0) // boot_device, unused

	if flags&flagCmdline != 0 {
		writeRelU32(sideOffsets["cmdline"])
	} else {
		writeU32(0)
	}

	writeU32(uint32(len(p.Modules)))
	if flags&flagModules != 0 {
		writeRelU32(modsAddr)
	} else {
		writeU32(0)
	}

	// syms[4]: ELF section header table descriptor (num, size, addr, shndx)
	writeU32(shdrNum)
	writeU32(shdrSize)
	if flags&flagElfShdr != 0 {
		writeRelU32(shdrAddr)
	} else {
		writeU32(0)
	}
	writeU32(shdrShndx)

	writeU32(uint32(mmapLen))
	if flags&flagMmap != 0 {
		writeRelU32(mmapAddr)
	} else {
		writeU32(0)
	}

	writeU32(0) // drives_length
	writeU32(0) // drives_addr
	writeU32(0) // config_table

	if flags&flagBootName != 0 {
		writeRelU32(bootNameAddr)
	} else {
		writeU32(0)
	}

	writeU32(0) // apm_table
	writeU32(0) // vbe_control_info
	writeU32(0) // vbe_mode_info
	writeU32(0) // vbe_mode, vbe_interface_seg
	writeU32(0) // vbe_interface_off, vbe_interface_len

	if p.Framebuffer != nil {
		fb := p.Framebuffer
		binary.Write(hdr, binary.LittleEndian, fb.Address)
		writeU32(fb.Pitch)
		writeU32(fb.Width)
		writeU32(fb.Height)
		hdr.WriteByte(fb.BPP)
		hdr.WriteByte(fb.Type)
		hdr.Write(make([]byte, 6)) // color_info, unused
	} else {
		hdr.Write(make([]byte, 28))
	}

	if hdr.Len() != mbiHeaderSize {
		panic("mb1: header size drifted from mbiHeaderSize")
	}

	out := append(hdr.Bytes(), side.Bytes()...)

	for _, r := range rels {
		v := binary.LittleEndian.Uint32(out[r.offset:])
		binary.LittleEndian.PutUint32(out[r.offset:], uint32(uint64(v)+base))
	}

	return out, nil
}
