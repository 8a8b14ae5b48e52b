// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package info defines the protocol-agnostic parameters the Info Builder
// (C5) assembles into a Multiboot 1 "mbi" structure or a Multiboot 2 tag
// stream. The mb1 and mb2 subpackages consume a Params value and produce
// the version-specific byte buffer; this package carries no knowledge of
// either wire layout itself.
package info

import (
	"github.com/usbarmory/go-multiboot/uefi"
)

// Memory map entry types, bit-exact per spec.md §4.5.
const (
	MemAvailable       = 1
	MemReserved        = 2
	MemACPIReclaimable = 3
	MemNVS             = 4
	MemBadRAM          = 5
)

// MemMapEntry is one Multiboot memory-map record, already translated from
// the firmware's type vocabulary.
type MemMapEntry struct {
	Base   uint64
	Length uint64
	Type   uint32
}

// MemTypeFromEFI maps a firmware EFI_MEMORY_TYPE to the Multiboot memory
// map type vocabulary, per spec.md §4.5's table: Conventional and the
// four "becomes free after ExitBootServices" loader/boot-services types
// collapse to available, ACPI reclaim/NVS keep their own types, Unusable
// becomes badram, everything else is reserved.
func MemTypeFromEFI(t uint32) uint32 {
	switch t {
	case uefi.EfiConventionalMemory, uefi.EfiLoaderCode, uefi.EfiLoaderData, uefi.EfiBootServicesCode, uefi.EfiBootServicesData:
		return MemAvailable
	case uefi.EfiACPIReclaimMemory:
		return MemACPIReclaimable
	case uefi.EfiACPIMemoryNVS:
		return MemNVS
	case uefi.EfiUnusableMemory:
		return MemBadRAM
	default:
		return MemReserved
	}
}

// MemMapFromFirmware converts a firmware memory map snapshot into the
// Multiboot memory-map vocabulary, preserving descriptor order.
func MemMapFromFirmware(descs []*uefi.MemoryDescriptor) []MemMapEntry {
	out := make([]MemMapEntry, 0, len(descs))

	for _, d := range descs {
		out = append(out, MemMapEntry{
			Base:   d.PhysicalStart,
			Length: d.NumberOfPages * uefi.PageSize,
			Type:   MemTypeFromEFI(d.Type),
		})
	}

	return out
}

// Framebuffer describes the video mode handed to the kernel, grounded on
// uefi.ModeInformation/uefi.ProtocolMode.
type Framebuffer struct {
	Address uint64
	Pitch   uint32
	Width   uint32
	Height  uint32
	BPP     uint8

	// Type is the Multiboot framebuffer type: 0 indexed, 1 RGB, 2 EGA text.
	Type uint8
}

// Module is a staged auxiliary file plus its command line, independent of
// the module package's LoadedModule so this package has no dependency on
// the memory-staging layer.
type Module struct {
	Base    uint64
	End     uint64
	Cmdline string
}

// ELFSections mirrors kernel.ELFSections; duplicated here rather than
// imported so the info builder does not depend on the kernel loader.
type ELFSections struct {
	EntrySize uint16
	Num       uint16
	Shstrndx  uint16
	Table     []byte
}

// Params is every scalar and side-table the Info Builder needs to
// assemble a BootInformation structure, independent of protocol version.
type Params struct {
	Cmdline        string
	BootloaderName string

	Modules []Module

	// MemLowerKiB/MemUpperKiB are the "basic memory info" scalars:
	// conventional memory up to 640 KiB and contiguous free memory
	// starting at 1 MiB, per spec.md §4.5 item 4.
	MemLowerKiB uint32
	MemUpperKiB uint32

	// MemMap is finalized once, at C6's request_exit, per the
	// memory-map-finality invariant (spec.md §8 invariant 5).
	MemMap []MemMapEntry

	Framebuffer *Framebuffer

	IsELF bool
	ELF   *ELFSections

	// RSDPv1/RSDPv2 are raw copies of the ACPI RSDP located via the
	// firmware configuration table, empty when absent.
	RSDPv1 []byte
	RSDPv2 []byte

	// SMBIOS32/SMBIOS64 are raw copies of the 2.x/3.x SMBIOS entry
	// point structures, nil when absent.
	SMBIOS32 []byte
	SMBIOS64 []byte

	// Is64 selects the width of the "EFI system table pointer" tag
	// (32-bit for 32-bit kernels, 64-bit for 64-bit ones).
	Is64 bool

	EFISystemTable uint64

	// DontExitBootServices mirrors the quirk of the same name: when
	// set, the image handle and a full EFI memory map tag are added
	// and C6 must never call ExitBootServices.
	DontExitBootServices bool
	EFIImageHandle       uint64
	EFIMemoryMap         []byte
}

// Builder assembles a protocol-specific BootInformation buffer from p.
// base is the physical address the buffer will be placed at once
// returned to the caller (the same value the caller is about to hand to
// mem.Stager.Allocate's result) — the Multiboot 1 builder needs it to
// finalize self-referential pointers into its own side-tables; the
// Multiboot 2 builder has no such pointers and ignores it.
type Builder interface {
	Build(p *Params, base uint64) ([]byte, error)
}
