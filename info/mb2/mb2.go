// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package mb2 assembles the Multiboot 2 boot information tag stream:
// total_size, reserved=0, followed by 8-byte-aligned tags in the fixed
// order spec.md §4.5 requires, terminated by an end tag.
package mb2

import (
	"bytes"
	"encoding/binary"

	"github.com/usbarmory/go-multiboot/info"
)

// Tag type values, per the Multiboot 2 Specification.
const (
	tagEnd            = 0
	tagCmdline        = 1
	tagBootLoaderName = 2
	tagModule         = 3
	tagBasicMemInfo   = 4
	tagMmap           = 6
	tagFramebuffer    = 8
	tagElfSections    = 9
	tagEfi32          = 11
	tagEfi64          = 12
	tagSmbios         = 13
	tagAcpiOld        = 14
	tagAcpiNew        = 15
	tagEfiMmap        = 17
	tagEfi32ImgHandle = 19
	tagEfi64ImgHandle = 20
)

const mmapEntryVersion = 0

// Builder implements info.Builder for the Multiboot 2 protocol.
type Builder struct{}

type cursor struct {
	buf bytes.Buffer
}

// tag appends one tag header plus payload, then pads to the next 8-byte
// boundary so the next tag starts aligned.
func (c *cursor) tag(typ uint32, payload []byte) {
	size := uint32(8 + len(payload))

	binary.Write(&c.buf, binary.LittleEndian, typ)
	binary.Write(&c.buf, binary.LittleEndian, size)
	c.buf.Write(payload)

	if rem := int(size) % 8; rem != 0 {
		c.buf.Write(make([]byte, 8-rem))
	}
}

func cstr(s string) []byte {
	return append([]byte(s), 0)
}

// defaultBootloaderName is advertised when the caller leaves
// Params.BootloaderName empty.
const defaultBootloaderName = "go-multiboot"

func bootloaderNameOrDefault(name string) string {
	if name == "" {
		return defaultBootloaderName
	}
	return name
}

// Build assembles the Multiboot 2 tag stream described by p. base is
// unused: every Multiboot 2 tag is either self-contained or references
// an externally known physical address, so there is nothing in this
// buffer to relocate.
func (Builder) Build(p *info.Params, base uint64) ([]byte, error) {
	c := &cursor{}

	// 1. cmdline
	c.tag(tagCmdline, cstr(p.Cmdline))

	// 2. bootloader name
	c.tag(tagBootLoaderName, cstr(bootloaderNameOrDefault(p.BootloaderName)))

	// 3. modules, one tag per, input order preserved
	for _, m := range p.Modules {
		payload := new(bytes.Buffer)
		binary.Write(payload, binary.LittleEndian, uint32(m.Base))
		binary.Write(payload, binary.LittleEndian, uint32(m.End))
		payload.Write(cstr(m.Cmdline))
		c.tag(tagModule, payload.Bytes())
	}

	// 4. basic memory info
	{
		payload := new(bytes.Buffer)
		binary.Write(payload, binary.LittleEndian, p.MemLowerKiB)
		binary.Write(payload, binary.LittleEndian, p.MemUpperKiB)
		c.tag(tagBasicMemInfo, payload.Bytes())
	}

	// 5. memory map
	if len(p.MemMap) > 0 {
		const entrySize = 24

		payload := new(bytes.Buffer)
		binary.Write(payload, binary.LittleEndian, uint32(entrySize))
		binary.Write(payload, binary.LittleEndian, uint32(mmapEntryVersion))

		for _, e := range p.MemMap {
			binary.Write(payload, binary.LittleEndian, e.Base)
			binary.Write(payload, binary.LittleEndian, e.Length)
			binary.Write(payload, binary.LittleEndian, e.Type)
			binary.Write(payload, binary.LittleEndian, uint32(0)) // reserved
		}

		c.tag(tagMmap, payload.Bytes())
	}

	// 6. framebuffer
	if p.Framebuffer != nil {
		fb := p.Framebuffer
		payload := new(bytes.Buffer)
		binary.Write(payload, binary.LittleEndian, fb.Address)
		binary.Write(payload, binary.LittleEndian, fb.Pitch)
		binary.Write(payload, binary.LittleEndian, fb.Width)
		binary.Write(payload, binary.LittleEndian, fb.Height)
		binary.Write(payload, binary.LittleEndian, fb.BPP)
		binary.Write(payload, binary.LittleEndian, fb.Type)
		binary.Write(payload, binary.LittleEndian, uint16(0)) // reserved
		c.tag(tagFramebuffer, payload.Bytes())
	}

	// 7. ELF sections
	if p.IsELF && p.ELF != nil {
		payload := new(bytes.Buffer)
		binary.Write(payload, binary.LittleEndian, uint32(p.ELF.Num))
		binary.Write(payload, binary.LittleEndian, uint32(p.ELF.EntrySize))
		binary.Write(payload, binary.LittleEndian, uint32(p.ELF.Shstrndx))
		payload.Write(p.ELF.Table)
		c.tag(tagElfSections, payload.Bytes())
	}

	// 8. ACPI RSDP v1 and v2, each in its own tag
	if len(p.RSDPv1) > 0 {
		c.tag(tagAcpiOld, p.RSDPv1)
	}
	if len(p.RSDPv2) > 0 {
		c.tag(tagAcpiNew, p.RSDPv2)
	}

	// 9. SMBIOS, one tag per entry point
	if len(p.SMBIOS32) > 0 {
		c.tag(tagSmbios, smbiosPayload(2, 0, p.SMBIOS32))
	}
	if len(p.SMBIOS64) > 0 {
		c.tag(tagSmbios, smbiosPayload(3, 0, p.SMBIOS64))
	}

	// 10. EFI system table pointer
	if p.EFISystemTable != 0 {
		if p.Is64 {
			payload := new(bytes.Buffer)
			binary.Write(payload, binary.LittleEndian, p.EFISystemTable)
			c.tag(tagEfi64, payload.Bytes())
		} else {
			payload := new(bytes.Buffer)
			binary.Write(payload, binary.LittleEndian, uint32(p.EFISystemTable))
			c.tag(tagEfi32, payload.Bytes())
		}
	}

	// 11. EFI image handle and EFI memory map, only if
	// DontExitBootServices
	if p.DontExitBootServices {
		if p.Is64 {
			payload := new(bytes.Buffer)
			binary.Write(payload, binary.LittleEndian, p.EFIImageHandle)
			c.tag(tagEfi64ImgHandle, payload.Bytes())
		} else {
			payload := new(bytes.Buffer)
			binary.Write(payload, binary.LittleEndian, uint32(p.EFIImageHandle))
			c.tag(tagEfi32ImgHandle, payload.Bytes())
		}

		if len(p.EFIMemoryMap) > 0 {
			c.tag(tagEfiMmap, p.EFIMemoryMap)
		}
	}

	// 12. end tag
	c.tag(tagEnd, nil)

	body := c.buf.Bytes()

	out := new(bytes.Buffer)
	binary.Write(out, binary.LittleEndian, uint32(8+len(body)))
	binary.Write(out, binary.LittleEndian, uint32(0)) // reserved
	out.Write(body)

	return out.Bytes(), nil
}

// smbiosPayload builds the SMBIOS tag payload: major, minor, reserved[6],
// then a raw copy of the entry-point structure, per the Multiboot 2
// Specification's SMBIOS tag layout.
func smbiosPayload(major, minor byte, entry []byte) []byte {
	payload := new(bytes.Buffer)
	payload.WriteByte(major)
	payload.WriteByte(minor)
	payload.Write(make([]byte, 6))
	payload.Write(entry)
	return payload.Bytes()
}
