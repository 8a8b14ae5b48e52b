// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package boot sequences the six components (C1-C6) into the single
// strict ordering spec.md §5 requires: header scan, kernel load, module
// load, partial info assembly, then the handover state machine's
// request_exit/finalize/jump dance. It is the only caller that holds a
// reference to every other package at once; kernel, module and handover
// allocate through the mem.Stager passed to them, and handover also calls
// into info to finish the boot information.
package boot

import (
	"fmt"
	"log"

	"github.com/usbarmory/go-multiboot/config"
	"github.com/usbarmory/go-multiboot/handover"
	"github.com/usbarmory/go-multiboot/info"
	"github.com/usbarmory/go-multiboot/info/mb1"
	"github.com/usbarmory/go-multiboot/info/mb2"
	"github.com/usbarmory/go-multiboot/kernel"
	"github.com/usbarmory/go-multiboot/mem"
	"github.com/usbarmory/go-multiboot/module"
	"github.com/usbarmory/go-multiboot/multiboot"
	"github.com/usbarmory/go-multiboot/uefi"
)

// bootloaderName is advertised to the kernel in the "bootloader name"
// tag (V2) or the equivalent side table (V1), per spec.md §4.5 item 2.
const bootloaderName = "go-multiboot 0.1"

// ConfigurationInvalidError reports a resolved Entry that is missing a
// required field, per spec's ConfigurationInvalid error kind.
type ConfigurationInvalidError struct {
	Reason string
}

func (e *ConfigurationInvalidError) Error() string {
	return fmt.Sprintf("boot: configuration invalid: %s", e.Reason)
}

func validate(e *config.Entry) error {
	if len(e.Image) == 0 {
		return &ConfigurationInvalidError{Reason: "entry has no kernel image"}
	}
	return nil
}

// Run loads and boots entry over svc. On success it does not return: the
// last step is handover.Machine.Jump, an absolute indirect jump to the
// kernel. An error from before ExitOK leaves Boot Services live and all
// allocations this call made already released, so the caller can fall
// back to the boot menu or diagnostic shell. Once ExitOK has succeeded, a
// FinalizeInfo failure is returned as a *handover.UnrecoverableError and
// a Jump failure is returned as is; in both cases Boot Services have
// already been exited (unless DontExitBootServices is set) and nothing
// has been released.
func Run(svc *uefi.Services, entry config.Entry) error {
	if err := validate(&entry); err != nil {
		return err
	}

	stager := mem.NewStager(svc.Boot)

	lk, _, params, builder, err := stage(svc, stager, entry)

	if err != nil {
		stager.FreeAll()
		return err
	}

	m := handover.New(svc, stager, builder, params, entry.Quirks)

	// The info buffer must be allocated before RequestExit takes its
	// snapshot, never after: spec.md §5 forbids any allocation between
	// request_exit and exit_ok, since AllocatePages invalidates the
	// UEFI memory-map key RequestExit just captured. allocateInfo sizes
	// against an estimate with slack, the same "leave a bit of room at
	// the end, we only have one chance" approach towboot takes before
	// calling its own exit-services equivalent, so the snapshot
	// RequestExit captures here is still the one ExitOK actually uses.
	infoBase, err := allocateInfo(stager, params, builder, entry.Quirks, lk.Is64)

	if err != nil {
		stager.FreeAll()
		return err
	}

	if err := m.RequestExit(); err != nil {
		stager.FreeAll()
		return err
	}

	if err := m.ExitOK(); err != nil {
		// ExitOK failed permanently (MemoryMapVolatile): Boot Services
		// are still live, so unwinding is still safe.
		stager.FreeAll()
		return err
	}

	if _, err := m.FinalizeInfo(infoBase); err != nil {
		// Boot Services are gone: nothing left to free, nothing left
		// to call. This is by construction an UnrecoverableError.
		return &handover.UnrecoverableError{Err: err}
	}

	magic := handover.BootMagic(lk.HeaderVersion)

	// Jump never returns on success; a non-nil error means the
	// trampoline was never reached and the caller is still safely in
	// Go-land.
	return m.Jump(lk.ExpectedMode, magic, infoBase, lk.EntryPoint)
}

// stage runs C2 (header scan), C3 (kernel load) and C4 (module load), and
// assembles the version-specific Params/Builder pair C5 will finish once
// the memory map is final. It does not call handover; besides the
// allocations made through mem.Stager, it reads the EFI configuration
// table for ACPI/SMBIOS, may set a Graphics Output mode, and under
// DontExitBootServices takes a memory map snapshot.
func stage(svc *uefi.Services, stager *mem.Stager, entry config.Entry) (*kernel.LoadedKernel, []module.LoadedModule, *info.Params, info.Builder, error) {
	hdr, headerOffset, err := multiboot.Scan(entry.Image, entry.Quirks)

	if err != nil {
		return nil, nil, nil, nil, err
	}

	lk, err := kernel.Load(entry.Image, hdr, headerOffset, stager, entry.Quirks)

	if err != nil {
		return nil, nil, nil, nil, err
	}

	mods, err := module.LoadAll(entry.Modules, stager, entry.Quirks, !lk.Is64)

	if err != nil {
		return nil, nil, nil, nil, err
	}

	params := &info.Params{
		Cmdline:        entry.Argv,
		BootloaderName: bootloaderName,
		IsELF:          lk.IsELF,
		Is64:           lk.Is64,
		EFISystemTable: svc.Address(),
	}

	for _, m := range mods {
		params.Modules = append(params.Modules, info.Module{Base: m.PhysicalBase, End: m.End(), Cmdline: m.Cmdline})
	}

	if lk.ELF != nil {
		params.ELF = &info.ELFSections{EntrySize: lk.ELF.EntrySize, Num: lk.ELF.Num, Shstrndx: lk.ELF.Shstrndx, Table: lk.ELF.Table}
	}

	if rsdpV1, rsdpV2, err := info.DiscoverACPI(svc.SystemTable); err == nil {
		params.RSDPv1, params.RSDPv2 = rsdpV1, rsdpV2
	} else {
		log.Printf("boot: could not discover ACPI tables, %v", err)
	}

	if smbios32, smbios64, err := info.DiscoverSMBIOS(svc.SystemTable); err == nil {
		params.SMBIOS32, params.SMBIOS64 = smbios32, smbios64
	} else {
		log.Printf("boot: could not discover SMBIOS tables, %v", err)
	}

	if fb, err := info.DiscoverFramebuffer(svc.Boot, entry.Video, entry.Quirks); err == nil {
		params.Framebuffer = fb
	} else {
		log.Printf("boot: could not negotiate framebuffer, %v", err)
	}

	if entry.Quirks.Has(config.DontExitBootServices) {
		params.DontExitBootServices = true
		params.EFIImageHandle = svc.ImageHandle()

		if mm, err := stager.Snapshot(); err == nil {
			params.EFIMemoryMap = encodeEFIMemoryMap(mm)
		}
	}

	var builder info.Builder

	if hdr.Version == 1 {
		builder = mb1.Builder{}
	} else {
		builder = mb2.Builder{}
	}

	return lk, mods, params, builder, nil
}

// mmapSlackEntries pads the memory-map entry count used to size the info
// buffer above what the snapshot taken here actually holds, since the
// real snapshot RequestExit finalizes immediately afterwards (the
// allocation made here is itself a new entry) can grow by a few entries
// before ExitOK is called. Mirrors towboot's own slack estimate ("leave a
// bit of room at the end, we only have one chance",
// original_source/src/boot/mod.rs).
const mmapSlackEntries = 8

// allocateInfo sizes the boot information buffer against an estimated,
// padded memory map snapshot (not the real one RequestExit will finalize
// moments later) and allocates that many pages under the same placement
// constraint the module loader uses (spec.md §4.5's last paragraph). It
// must run, and must complete, strictly before RequestExit: per spec.md
// §5 no allocation is permitted between request_exit and exit_ok, so
// this is the last allocation the critical section's snapshot can see.
// The sizing estimate is applied to a throwaway copy of params so the
// real params.MemMap (set by RequestExit, or left untouched under the
// DontExitBootServices quirk) is never overwritten by placeholder data.
func allocateInfo(stager *mem.Stager, params *info.Params, builder info.Builder, quirks config.QuirkSet, is64 bool) (uint64, error) {
	snap, err := stager.Snapshot()

	if err != nil {
		return 0, &handover.FirmwareCallFailedError{Service: "GetMemoryMap", Err: err}
	}

	sizingParams := *params
	sizingParams.MemMap = make([]info.MemMapEntry, len(snap.Descriptors)+mmapSlackEntries)

	sizing, err := builder.Build(&sizingParams, 0)

	if err != nil {
		return 0, err
	}

	pages := mem.PagesFor(len(sizing))

	c := module.Constraint(quirks, !is64)

	base, err := stager.Allocate(pages, c, mem.KindInfo)

	if err != nil {
		return 0, err
	}

	return base, nil
}

// encodeEFIMemoryMap packs a firmware memory map into the raw
// descriptor-table form the Multiboot 2 "EFI memory map" tag copies
// verbatim, used only under the DontExitBootServices quirk.
func encodeEFIMemoryMap(mm *uefi.MemoryMap) []byte {
	const descSize = 40 // sizeof(EFI_MEMORY_DESCRIPTOR), padded to 8-byte fields

	buf := make([]byte, 0, int(mm.MapSize))

	for _, d := range mm.Descriptors {
		entry := make([]byte, descSize)
		putU32(entry[0:], d.Type)
		putU64(entry[8:], d.PhysicalStart)
		putU64(entry[16:], d.VirtualStart)
		putU64(entry[24:], d.NumberOfPages)
		putU64(entry[32:], d.Attribute)
		buf = append(buf, entry...)
	}

	return buf
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
