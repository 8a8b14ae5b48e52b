// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package kernel implements the Multiboot Kernel Loader (C3): it decides
// between the aout-kludge and ELF load paths per the decoded header,
// stages the kernel's segments through a mem.Stager, and derives the CPU
// mode the kernel expects to be entered in.
package kernel

import (
	"github.com/usbarmory/go-multiboot/config"
	"github.com/usbarmory/go-multiboot/mem"
	"github.com/usbarmory/go-multiboot/multiboot"
)

// Mode is the CPU mode a kernel expects to be entered in at handover.
type Mode int

const (
	// ModeI386 is 32-bit protected mode, paging disabled.
	ModeI386 Mode = iota

	// ModeAMD64 is 64-bit long mode with identity-mapped paging, used
	// by ELF64 kernels that did not request an EFI entry tag.
	ModeAMD64

	// ModeEFI32 is protected mode, implied by an entry_address_efi32
	// tag. Boot Services are left running only when the
	// DontExitBootServices quirk is set; this mode alone does not
	// keep them.
	ModeEFI32

	// ModeEFI64 is long mode, implied by an entry_address_efi64 tag.
	// Boot Services are left running only when the
	// DontExitBootServices quirk is set; this mode alone does not
	// keep them.
	ModeEFI64
)

func (m Mode) String() string {
	switch m {
	case ModeI386:
		return "i386_32"
	case ModeAMD64:
		return "amd64_64"
	case ModeEFI32:
		return "efi32"
	case ModeEFI64:
		return "efi64"
	default:
		return "unknown"
	}
}

// Segment is a single staged, disjoint physical load region.
type Segment struct {
	PhysicalBase uint64
	VirtualBase  uint64
	FileBytes    []byte
	MemSize      uint64
}

// End returns the segment's exclusive physical end address.
func (s *Segment) End() uint64 {
	return s.PhysicalBase + s.MemSize
}

// ELFSections mirrors the Multiboot 2 "ELF sections" tag payload: a
// verbatim copy of the kernel's own section header table plus the three
// scalars a consumer needs to walk it (num, entsize, shstrndx).
type ELFSections struct {
	EntrySize uint16
	Num       uint16
	Shstrndx  uint16
	Table     []byte
}

// LoadedKernel is the result of a successful Load: the entry point, the
// CPU mode it expects, and the disjoint segments staged in physical
// memory.
type LoadedKernel struct {
	EntryPoint    uint64
	IsELF         bool
	Is64          bool
	ExpectedMode  Mode
	HeaderVersion int
	Segments      []Segment
	ELF           *ELFSections
}

// Load stages the kernel image into physical memory via stager and
// returns the resulting LoadedKernel, per spec.md §4.3's decision tree:
// aout-kludge when the V1 header carries it (and ForceElf is not set),
// ELF otherwise.
func Load(image []byte, hdr *multiboot.Header, headerOffset int, stager *mem.Stager, quirks config.QuirkSet) (*LoadedKernel, error) {
	if hdr.Version == 1 && hdr.V1.AoutKludge && !quirks.Has(config.ForceElf) {
		return loadAoutKludge(image, hdr.V1, headerOffset, stager, quirks)
	}

	return loadELF(image, hdr, stager, quirks)
}

// ExpectedMode derives the CPU mode the kernel expects to be entered in,
// per spec.md §4.3: an explicit V2 EFI entry tag wins outright, then a
// plain V2 entry_address tag forces protected mode, otherwise ELF class
// decides between amd64_64 and i386_32. This decision is final; handover
// cannot deviate from it.
func ExpectedMode(hdr *multiboot.Header, is64 bool) Mode {
	if hdr.Version == 2 {
		if hdr.V2.Find(multiboot.TagEntryAddressEfi64) != nil {
			return ModeEFI64
		}

		if hdr.V2.Find(multiboot.TagEntryAddressEfi32) != nil {
			return ModeEFI32
		}

		if hdr.V2.Find(multiboot.TagEntryAddress) != nil {
			return ModeI386
		}
	}

	if is64 {
		return ModeAMD64
	}

	return ModeI386
}
