// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"github.com/usbarmory/go-multiboot/config"
	"github.com/usbarmory/go-multiboot/mem"
	"github.com/usbarmory/go-multiboot/multiboot"
)

// elfSectionTableMeta parses the section-header-table location fields
// (e_shoff, e_shentsize, e_shnum, e_shstrndx) directly out of the raw ELF
// header. debug/elf does not expose these, but the Multiboot 2 "ELF
// sections" tag (spec.md §4.5) is defined as a verbatim copy of this
// table, so the raw bytes are needed regardless of what debug/elf parses.
func elfSectionTableMeta(image []byte, is64 bool) (shoff uint64, entsize, shnum, shstrndx uint16, err error) {
	if is64 {
		if len(image) < 0x40 {
			return 0, 0, 0, 0, &ElfMalformedError{Reason: "ELF64 header truncated"}
		}

		shoff = binary.LittleEndian.Uint64(image[0x28:])
		entsize = binary.LittleEndian.Uint16(image[0x3A:])
		shnum = binary.LittleEndian.Uint16(image[0x3C:])
		shstrndx = binary.LittleEndian.Uint16(image[0x3E:])
	} else {
		if len(image) < 0x34 {
			return 0, 0, 0, 0, &ElfMalformedError{Reason: "ELF32 header truncated"}
		}

		shoff = uint64(binary.LittleEndian.Uint32(image[0x20:]))
		entsize = binary.LittleEndian.Uint16(image[0x2E:])
		shnum = binary.LittleEndian.Uint16(image[0x30:])
		shstrndx = binary.LittleEndian.Uint16(image[0x32:])
	}

	if shnum == 0 || int(shoff)+int(entsize)*int(shnum) > len(image) {
		return 0, 0, 0, 0, &ElfMalformedError{Reason: "section header table out of range"}
	}

	return shoff, entsize, shnum, shstrndx, nil
}

func loadELF(image []byte, hdr *multiboot.Header, stager *mem.Stager, quirks config.QuirkSet) (*LoadedKernel, error) {
	f, err := elf.NewFile(bytes.NewReader(image))

	if err != nil {
		return nil, &ElfMalformedError{Reason: "could not parse ELF", Err: err}
	}

	if f.ByteOrder != binary.LittleEndian {
		return nil, &ElfMalformedError{Reason: "only little-endian ELF kernels are supported"}
	}

	is64 := f.Class == elf.ELFCLASS64
	forceOverwrite := quirks.Has(config.ForceOverwrite)

	lk := &LoadedKernel{
		IsELF:         true,
		Is64:          is64,
		EntryPoint:    f.Entry,
		ExpectedMode:  ExpectedMode(hdr, is64),
		HeaderVersion: hdr.Version,
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}

		if !is64 && prog.Paddr+prog.Memsz > mem.Below4GLimit {
			return nil, &ElfMalformedError{Reason: "32-bit kernel segment exceeds 4GiB limit"}
		}

		pages := mem.PagesFor(int(prog.Memsz))
		constraint := mem.AtExactAddress(prog.Paddr)
		constraint.SkipOverlapCheck = forceOverwrite

		if _, err := stager.Allocate(pages, constraint, mem.KindKernel); err != nil {
			return nil, err
		}

		fileBytes := make([]byte, prog.Filesz)

		if _, err := prog.ReadAt(fileBytes, 0); err != nil {
			return nil, &ElfMalformedError{Reason: "could not read PT_LOAD segment", Err: err}
		}

		if err := stager.WriteAt(prog.Paddr, fileBytes); err != nil {
			return nil, err
		}

		if prog.Memsz > prog.Filesz {
			if err := stager.ZeroAt(prog.Paddr+prog.Filesz, int(prog.Memsz-prog.Filesz)); err != nil {
				return nil, err
			}
		}

		lk.Segments = append(lk.Segments, Segment{
			PhysicalBase: prog.Paddr,
			VirtualBase:  prog.Vaddr,
			FileBytes:    fileBytes,
			MemSize:      prog.Memsz,
		})
	}

	shoff, entsize, shnum, shstrndx, err := elfSectionTableMeta(image, is64)

	if err == nil {
		tableSize := int(entsize) * int(shnum)
		lk.ELF = &ELFSections{
			EntrySize: entsize,
			Num:       shnum,
			Shstrndx:  shstrndx,
			Table:     append([]byte(nil), image[shoff:int(shoff)+tableSize]...),
		}
	}

	return lk, nil
}
