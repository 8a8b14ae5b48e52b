// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package mem implements the physical memory staging policy layered over
// UEFI Boot Services page allocation: placement constraints, ownership
// tracking of live allocations, and the final firmware memory map
// snapshot handed to the info builder at exit.
package mem

import (
	"fmt"

	"github.com/u-root/u-root/pkg/boot/bzimage"
	"github.com/usbarmory/tamago/dma"

	"github.com/usbarmory/go-multiboot/uefi"
)

// PageSize is the UEFI page size in bytes.
const PageSize = uefi.PageSize

// below4GLimit is the exclusive ceiling enforced by the Below4G constraint.
const below4GLimit = uint64(1) << 32

// Below4GLimit is below4GLimit, exposed for callers (the kernel loader)
// that must validate an exact-address placement against the same bound
// without routing the allocation itself through the Below4G constraint.
const Below4GLimit = below4GLimit

// PagesFor returns the number of PageSize pages needed to cover size bytes.
func PagesFor(size int) int {
	if size <= 0 {
		return 0
	}
	return (size + PageSize - 1) / PageSize
}

// defaultModuleCeiling is the default value of Stager.ModuleCeiling,
// inherited from empirical breakage of kernels that assume modules sit in
// low physical memory (spec's ModulesBelow200Mb quirk).
const defaultModuleCeiling = 200 * 1024 * 1024

// Kind classifies why an Allocation exists, for diagnostics and rollback.
type Kind int

const (
	KindKernel Kind = iota
	KindModule
	KindInfo
	KindStack
	KindScratch
)

func (k Kind) String() string {
	switch k {
	case KindKernel:
		return "kernel"
	case KindModule:
		return "module"
	case KindInfo:
		return "info"
	case KindStack:
		return "stack"
	case KindScratch:
		return "scratch"
	default:
		return "unknown"
	}
}

// ConstraintKind selects the placement policy for an allocation request.
type ConstraintKind int

const (
	Anywhere ConstraintKind = iota
	Below4G
	Below200M
	AtExact
)

// Constraint describes where an allocation is allowed to land.
type Constraint struct {
	Kind ConstraintKind

	// Address is the requested physical base, meaningful only when
	// Kind == AtExact.
	Address uint64

	// SkipOverlapCheck disables the overlap check against this
	// Stager's own live allocations (checkOverlap). It does not bypass
	// the firmware: a range AllocatePages refuses still fails. Only the
	// kernel loader sets this, and only for kernel segments, in
	// response to the ForceOverwrite quirk.
	SkipOverlapCheck bool
}

// AtExactAddress returns a Constraint pinning the allocation to addr.
func AtExactAddress(addr uint64) Constraint {
	return Constraint{Kind: AtExact, Address: addr}
}

// Allocation records a single live physical memory grant. The Stager that
// returned it is the exclusive owner until Free is called or until Boot
// Services are exited, at which point ownership passes to the kernel.
type Allocation struct {
	Base  uint64
	Pages int
	Kind  Kind
}

// End returns the exclusive end address of the allocation.
func (a *Allocation) End() uint64 {
	return a.Base + uint64(a.Pages)*PageSize
}

// Size returns the allocation size in bytes.
func (a *Allocation) Size() int {
	return a.Pages * PageSize
}

func overlaps(a, b *Allocation) bool {
	return a.Base < b.End() && b.Base < a.End()
}

// AllocationError reports a firmware allocation refusal under a specific
// constraint, per spec's AllocationFailed(constraint) error kind.
type AllocationError struct {
	Constraint Constraint
	Pages      int
	Err        error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("mem: allocation of %d pages failed under constraint %d: %v", e.Pages, e.Constraint.Kind, e.Err)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// Stager is the sole gateway to the firmware page allocator. No other
// component may call uefi.BootServices.AllocatePages/FreePages directly.
type Stager struct {
	Boot *uefi.BootServices

	// ModuleCeiling is the upper bound enforced by Below200M, settable
	// per entry. Defaults to 200 MiB; this is the configurable knob the
	// spec's "Open Question" on the module ceiling resolves to.
	ModuleCeiling uint64

	live []*Allocation
}

// NewStager returns a Stager backed by boot, with the default module
// ceiling.
func NewStager(boot *uefi.BootServices) *Stager {
	return &Stager{
		Boot:          boot,
		ModuleCeiling: defaultModuleCeiling,
	}
}

func (s *Stager) ceiling() uint64 {
	if s.ModuleCeiling == 0 {
		return defaultModuleCeiling
	}
	return s.ModuleCeiling
}

// checkOverlap returns an error if [base, base+pages*PageSize) overlaps
// any other live allocation tracked by this Stager.
func (s *Stager) checkOverlap(candidate *Allocation) error {
	for _, a := range s.live {
		if overlaps(a, candidate) {
			return fmt.Errorf("mem: range [%#x,%#x) overlaps live %s allocation [%#x,%#x)",
				candidate.Base, candidate.End(), a.Kind, a.Base, a.End())
		}
	}

	return nil
}

// Allocate requests pages pages from the firmware under constraint c,
// tagged with kind for ownership bookkeeping. Failure is never retried at
// a different address or under a relaxed constraint; the caller decides.
func (s *Stager) Allocate(pages int, c Constraint, kind Kind) (base uint64, err error) {
	allocateType := uefi.AllocateAnyPages
	maxAddr := uint64(0)

	switch c.Kind {
	case Anywhere:
		allocateType = uefi.AllocateAnyPages
	case Below4G:
		allocateType = uefi.AllocateMaxAddress
		maxAddr = below4GLimit - 1
	case Below200M:
		allocateType = uefi.AllocateMaxAddress
		maxAddr = s.ceiling() - 1
	case AtExact:
		allocateType = uefi.AllocateAddress
		maxAddr = c.Address
	}

	physicalAddress, err := s.Boot.AllocatePages(allocateType, int(uefi.EfiLoaderData), pages*PageSize, maxAddr)

	if err != nil {
		return 0, &AllocationError{Constraint: c, Pages: pages, Err: err}
	}

	candidate := &Allocation{Base: physicalAddress, Pages: pages, Kind: kind}

	if !c.SkipOverlapCheck {
		if err = s.checkOverlap(candidate); err != nil {
			s.Boot.FreePages(physicalAddress, pages*PageSize)
			return 0, &AllocationError{Constraint: c, Pages: pages, Err: err}
		}
	}

	if c.Kind == Below200M && candidate.End() > s.ceiling() {
		s.Boot.FreePages(physicalAddress, pages*PageSize)
		return 0, &AllocationError{Constraint: c, Pages: pages, Err: fmt.Errorf("mem: allocation end %#x exceeds module ceiling %#x", candidate.End(), s.ceiling())}
	}

	s.live = append(s.live, candidate)

	return physicalAddress, nil
}

// AllocateAt allocates pages pages at the exact physical address base.
// It fails if the firmware refuses the range and, unless skipOverlap is
// set (ForceOverwrite kernel staging), if the range overlaps another live
// allocation of this Stager.
func (s *Stager) AllocateAt(pages int, base uint64, kind Kind, skipOverlap bool) error {
	_, err := s.Allocate(pages, Constraint{Kind: AtExact, Address: base, SkipOverlapCheck: skipOverlap}, kind)
	return err
}

// Free releases a, removing it from the live set. It is a caller error to
// free an Allocation this Stager did not return.
func (s *Stager) Free(a *Allocation) error {
	if err := s.Boot.FreePages(a.Base, a.Size()); err != nil {
		return err
	}

	for i, live := range s.live {
		if live == a {
			s.live = append(s.live[:i], s.live[i+1:]...)
			break
		}
	}

	return nil
}

// FreeAll releases every allocation this Stager currently owns, in
// reverse order. It is used to unwind on failure before exit_ok, per the
// spec's error-handling policy.
func (s *Stager) FreeAll() {
	for i := len(s.live) - 1; i >= 0; i-- {
		s.Boot.FreePages(s.live[i].Base, s.live[i].Size())
	}

	s.live = nil
}

// Live returns the allocations this Stager currently owns.
func (s *Stager) Live() []*Allocation {
	return s.live
}

// WriteAt copies data into the physical memory range starting at base,
// using the same DMA-region byte-access idiom uefi.decode uses to read
// firmware structures.
func (s *Stager) WriteAt(base uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	r, err := dma.NewRegion(uint(base), len(data), false)

	if err != nil {
		return fmt.Errorf("mem: could not map [%#x,%#x) for write: %w", base, base+uint64(len(data)), err)
	}

	addr, buf := r.Reserve(len(data), 0)
	defer r.Release(addr)

	copy(buf, data)

	return nil
}

// ZeroAt zeroes size bytes of physical memory starting at base.
func (s *Stager) ZeroAt(base uint64, size int) error {
	if size <= 0 {
		return nil
	}

	r, err := dma.NewRegion(uint(base), size, false)

	if err != nil {
		return fmt.Errorf("mem: could not map [%#x,%#x) for zeroing: %w", base, base+uint64(size), err)
	}

	addr, buf := r.Reserve(size, 0)
	defer r.Release(addr)

	for i := range buf {
		buf[i] = 0
	}

	return nil
}

// E820Map converts the current firmware memory map to the x86 E820 table
// format, the same conversion a booted Linux kernel expects to find (or, for
// entries this loader still owns, would expect this loader to have derived)
// once Boot Services are gone.
func (s *Stager) E820Map() ([]bzimage.E820Entry, error) {
	mm, err := s.Snapshot()

	if err != nil {
		return nil, err
	}

	entries := make([]bzimage.E820Entry, 0, len(mm.Descriptors))

	for _, d := range mm.Descriptors {
		e, err := d.E820()

		if err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	return entries, nil
}

// Snapshot returns the firmware's current memory map and its map key,
// the same snapshot used both for the info builder's memory map tag and
// for the handover state machine's request_exit/exit_ok dance.
func (s *Stager) Snapshot() (*uefi.MemoryMap, error) {
	return s.Boot.GetMemoryMap()
}
