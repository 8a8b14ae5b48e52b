// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package handover implements the Handover state machine (C6): it exits
// UEFI Boot Services atomically with the firmware's memory map key, then
// transfers control to the kernel entry point in the CPU mode and
// register state the Multiboot protocol dictates. Once ExitOK succeeds
// no firmware service may be called again; from that point the only safe
// failure response left to this package is a CPU halt loop.
package handover

import (
	"errors"
	"fmt"

	"github.com/usbarmory/go-multiboot/config"
	"github.com/usbarmory/go-multiboot/info"
	"github.com/usbarmory/go-multiboot/kernel"
	"github.com/usbarmory/go-multiboot/mem"
	"github.com/usbarmory/go-multiboot/uefi"
)

// State is a node of the Staged -> MapAcquired -> ServicesExited ->
// Handed off state machine described in spec.md §4.6.
type State int

const (
	Staged State = iota
	MapAcquired
	ServicesExited
	HandedOff
	Fatal
)

func (s State) String() string {
	switch s {
	case Staged:
		return "staged"
	case MapAcquired:
		return "map-acquired"
	case ServicesExited:
		return "services-exited"
	case HandedOff:
		return "handed-off"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// maxExitRetries bounds the exit_fail re-snapshot loop, per spec.md §4.6
// ("at most 3 times").
const maxExitRetries = 3

// MemoryMapVolatileError reports exit_ok failing on every attempt up to
// the retry limit, per spec's MemoryMapVolatile error kind.
type MemoryMapVolatileError struct {
	Attempts int
	Err      error
}

func (e *MemoryMapVolatileError) Error() string {
	return fmt.Sprintf("handover: memory map volatile after %d attempts: %v", e.Attempts, e.Err)
}

func (e *MemoryMapVolatileError) Unwrap() error {
	return e.Err
}

// FirmwareCallFailedError reports a firmware failure outside the
// memory-map retry loop, per spec's FirmwareCallFailed(service, status)
// error kind.
type FirmwareCallFailedError struct {
	Service string
	Err     error
}

func (e *FirmwareCallFailedError) Error() string {
	return fmt.Sprintf("handover: firmware call %s failed: %v", e.Service, e.Err)
}

func (e *FirmwareCallFailedError) Unwrap() error {
	return e.Err
}

// UnrecoverableError marks any failure observed after ExitOK has
// succeeded. Boot Services are gone by then, so the only legal response
// left to the caller is Halt; this type exists purely so that response
// can be decided by its type rather than by tracking state externally.
type UnrecoverableError struct {
	Err error
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("handover: unrecoverable: %v", e.Err)
}

func (e *UnrecoverableError) Unwrap() error {
	return e.Err
}

// ErrWrongState is returned when a transition is attempted out of order,
// e.g. calling Jump before ExitOK on a machine that must exit Boot
// Services.
var ErrWrongState = errors.New("handover: transition attempted from wrong state")

// Machine drives C6's state machine for a single boot attempt. It is not
// reused across attempts.
type Machine struct {
	Services *uefi.Services
	Stager   *mem.Stager
	Builder  info.Builder
	Params   *info.Params
	Quirks   config.QuirkSet

	state   State
	mapKey  uint64
	retries int
}

// New returns a Machine in the Staged state.
func New(svc *uefi.Services, stager *mem.Stager, b info.Builder, p *info.Params, quirks config.QuirkSet) *Machine {
	return &Machine{
		Services: svc,
		Stager:   stager,
		Builder:  b,
		Params:   p,
		Quirks:   quirks,
		state:    Staged,
	}
}

// State returns the machine's current state.
func (m *Machine) State() State {
	return m.state
}

// skipExit reports whether this boot entry carries DontExitBootServices,
// in which case RequestExit/ExitOK are short-circuited entirely and the
// EFI system table, image handle and EFI memory map are carried forward
// in the info structure instead.
func (m *Machine) skipExit() bool {
	return m.Quirks.Has(config.DontExitBootServices)
}

// RequestExit snapshots the firmware memory map, captures its map key,
// and finalizes the memory-map tag in m.Params using this snapshot, per
// spec.md §4.6's request_exit transition. This is the critical section:
// from here until ExitOK succeeds, no allocation may occur, or the
// snapshot captured here is stale and ExitOK will legitimately fail.
func (m *Machine) RequestExit() error {
	if m.skipExit() {
		m.state = MapAcquired
		return nil
	}

	if m.state != Staged && m.state != MapAcquired {
		return ErrWrongState
	}

	snap, err := m.Stager.Snapshot()

	if err != nil {
		return &FirmwareCallFailedError{Service: "GetMemoryMap", Err: err}
	}

	m.Params.MemMap = info.MemMapFromFirmware(snap.Descriptors)
	m.Params.MemLowerKiB, m.Params.MemUpperKiB = info.BasicMemInfo(snap.Descriptors)
	m.mapKey = snap.MapKey
	m.state = MapAcquired

	return nil
}

// ExitOK calls ExitBootServices with the map key captured by the most
// recent RequestExit. On exit_fail (the firmware observed an allocation
// since the snapshot) it re-snapshots and tries again, per spec.md §4.6;
// after maxExitRetries failed attempts in all it gives up with a
// MemoryMapVolatileError. On success no firmware service may be called
// again. If the quirk short-circuits exit, this is a no-op that advances
// straight to ServicesExited.
func (m *Machine) ExitOK() error {
	if m.skipExit() {
		m.state = ServicesExited
		return nil
	}

	if m.state != MapAcquired {
		return ErrWrongState
	}

	for {
		err := m.Services.Boot.ExitBootServicesWithKey(m.mapKey)

		if err == nil {
			m.state = ServicesExited
			return nil
		}

		m.retries++

		if m.retries >= maxExitRetries {
			m.state = Fatal
			return &MemoryMapVolatileError{Attempts: m.retries, Err: err}
		}

		if rerr := m.RequestExit(); rerr != nil {
			m.state = Fatal
			return &MemoryMapVolatileError{Attempts: m.retries, Err: rerr}
		}
	}
}

// FinalizeInfo builds the boot information buffer from m.Params at
// physical address base, and writes it into memory via m.Stager. It must
// be called after ExitOK (or after RequestExit under
// DontExitBootServices) so the memory map tag reflects the final
// snapshot, per the memory-map-finality invariant (spec.md §8 invariant
// 5).
func (m *Machine) FinalizeInfo(base uint64) ([]byte, error) {
	buf, err := m.Builder.Build(m.Params, base)

	if err != nil {
		return nil, err
	}

	if err := m.Stager.WriteAt(base, buf); err != nil {
		return nil, err
	}

	return buf, nil
}

// BootMagic returns the boot magic value the kernel expects in its
// designated register at entry, per spec.md's Multiboot magic table:
// V1BootMagic for a Multiboot 1 kernel, V2BootMagic otherwise.
func BootMagic(version int) uint32 {
	if version == 1 {
		return v1BootMagic
	}
	return v2BootMagic
}

const (
	v1BootMagic = 0x2BADB002
	v2BootMagic = 0x36D76289
)

// Jump sets CPU state per mode and performs an absolute indirect jump to
// entry, per spec.md §4.6's jump transition. It never returns on
// success; a non-nil error means the trampoline could not even be
// reached (e.g. called from the wrong state) and the caller is still
// safely in Go-land to report it. Any failure observed once the
// trampoline itself has run is by definition unrecoverable, since the
// CPU is no longer in a state Go's runtime can trust.
func (m *Machine) Jump(mode kernel.Mode, magic uint32, infoPtr uint64, entry uint64) error {
	if m.state != ServicesExited {
		return ErrWrongState
	}

	m.state = HandedOff

	switch mode {
	case kernel.ModeI386, kernel.ModeEFI32:
		jumpProtected32(magic, uint32(infoPtr), uint32(entry))
	case kernel.ModeAMD64, kernel.ModeEFI64:
		jumpLong64(magic, infoPtr, entry)
	default:
		return fmt.Errorf("handover: unknown mode %v", mode)
	}

	// unreachable: the trampolines above never return
	return &UnrecoverableError{Err: errors.New("jump trampoline returned")}
}

// Halt disables interrupts and spins forever. It is the only safe
// response to an UnrecoverableError: Boot Services are gone, so there is
// nothing left to call, not even a log line, unless the caller already
// printed one while interrupts (and thus the console) were still live.
func Halt() {
	halt()
}

// defined in jump_amd64.s. jumpProtected32 loads magic/infoPtr into
// eax/ebx per the Multiboot register convention, disables interrupts and
// jumps to entry. It performs no mode transition for either i386_32 or
// efi32: the CPU stays in the amd64 long mode and paging the firmware set
// up, with CR0, EFER and the GDT left untouched. It never returns.
func jumpProtected32(magic uint32, infoPtr uint32, entry uint32)

// defined in jump_amd64.s. jumpLong64 stays in 64-bit long mode with the
// firmware's identity-mapped paging, loads magic/infoPtr into rax/rbx,
// and jumps to entry. It never returns.
func jumpLong64(magic uint32, infoPtr uint64, entry uint64)

// defined in jump_amd64.s. halt disables interrupts and executes HLT in a
// loop, never returning.
func halt()
