// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

// EFI Boot Services offsets
const (
	exit             = 0xd8
	exitBootServices = 0xe8
)

// Exit calls EFI_BOOT_SERVICES.Exit().
func (s *BootServices) Exit(code int) (err error) {
	status := callService(
		s.base+exit,
		[]uint64{
			uint64(s.imageHandle),
			uint64(code),
			0,
			0,
		},
	)

	return parseStatus(status)
}

// ExitBootServices calls EFI_BOOT_SERVICES.ExitBootServices().
func (s *BootServices) ExitBootServices() (err error) {
	memoryMap, err := s.GetMemoryMap()

	if err != nil {
		return
	}

	return s.ExitBootServicesWithKey(memoryMap.MapKey)
}

// ExitBootServicesWithKey calls EFI_BOOT_SERVICES.ExitBootServices() using
// a caller-supplied map key rather than querying a fresh one. The
// handover state machine needs this: the map key proving it saw the
// final memory map must come from the same snapshot that was copied into
// the boot information's memory map tag, not from a second query that
// could observe a map mutated in between.
func (s *BootServices) ExitBootServicesWithKey(mapKey uint64) (err error) {
	status := callService(
		s.base+exitBootServices,
		[]uint64{
			uint64(s.imageHandle),
			mapKey,
			0,
			0,
		},
	)

	return parseStatus(status)
}
