// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package info

import (
	"encoding/binary"

	"github.com/usbarmory/go-multiboot/uefi"
)

// EFI Configuration Table GUIDs locating the ACPI and SMBIOS tables,
// per the UEFI Specification and the SMBIOS Specification.
var (
	acpi10TableGUID  = uefi.MustParseGUID("eb9d2d30-2d88-11d3-9a16-0090273fc14d")
	acpi20TableGUID  = uefi.MustParseGUID("8868e871-e4f1-11d3-bc22-0080c73c8881")
	smbiosTableGUID  = uefi.MustParseGUID("eb9d2d31-2d88-11d3-9a16-0090273fc14d")
	smbios3TableGUID = uefi.MustParseGUID("f2fd1544-9794-4a2c-992e-e5bbcf20e394")
)

// rsdpMinLen is the fixed Revision-0 RSDP length; rsdpMaxLen covers the
// extended Revision-2+ fields (Length, XsdtAddress, ExtendedChecksum,
// Reserved).
const (
	rsdpMinLen = 20
	rsdpMaxLen = 36
)

// DiscoverACPI walks the EFI configuration table looking for the ACPI
// 1.0 and ACPI 2.0 GUIDs and returns a raw copy of each RSDP found,
// grounded on towboot's config_tables.rs GUID-keyed dispatch. Either
// return value may be nil if its table is absent.
func DiscoverACPI(sys *uefi.SystemTable) (rsdpV1, rsdpV2 []byte, err error) {
	tables, err := sys.ConfigurationTables()

	if err != nil {
		return nil, nil, nil
	}

	for _, t := range tables {
		switch t.GUID {
		case acpi10TableGUID:
			if rsdpV1, err = copyRSDP(t.VendorTable); err != nil {
				return nil, nil, err
			}
		case acpi20TableGUID:
			if rsdpV2, err = copyRSDP(t.VendorTable); err != nil {
				return nil, nil, err
			}
		}
	}

	return rsdpV1, rsdpV2, nil
}

// copyRSDP reads the fixed-size RSDP prefix to learn its revision, then
// re-reads the full extended structure when revision >= 2 indicates the
// Length field at offset 20 is valid.
func copyRSDP(addr uint64) ([]byte, error) {
	head, err := uefi.ReadPhysical(addr, rsdpMinLen)

	if err != nil {
		return nil, err
	}

	if head[15] < 2 {
		return head, nil
	}

	full, err := uefi.ReadPhysical(addr, rsdpMaxLen)

	if err != nil {
		return head, nil
	}

	return full[:rsdpLength(binary.LittleEndian.Uint32(full[20:24]))], nil
}

// rsdpLength decides how many bytes of a revision>=2 RSDP are valid: the
// Length field when it falls within the known bounds, otherwise the full
// extended structure.
func rsdpLength(lengthField uint32) int {
	if lengthField < rsdpMinLen || lengthField > rsdpMaxLen {
		return rsdpMaxLen
	}

	return int(lengthField)
}

// smbios2EntryLen and smbios3EntryLen are the fixed sizes of the 2.x and
// 3.x SMBIOS entry point structures.
const (
	smbios2EntryLen = 0x1F
	smbios3EntryLen = 0x18
)

// DiscoverSMBIOS walks the EFI configuration table for the SMBIOS 2.x
// and 3.x entry point GUIDs and returns a raw copy of each found.
func DiscoverSMBIOS(sys *uefi.SystemTable) (v32, v64 []byte, err error) {
	tables, err := sys.ConfigurationTables()

	if err != nil {
		return nil, nil, nil
	}

	for _, t := range tables {
		switch t.GUID {
		case smbiosTableGUID:
			if v32, err = uefi.ReadPhysical(t.VendorTable, smbios2EntryLen); err != nil {
				return nil, nil, err
			}
		case smbios3TableGUID:
			if v64, err = uefi.ReadPhysical(t.VendorTable, smbios3EntryLen); err != nil {
				return nil, nil, err
			}
		}
	}

	return v32, v64, nil
}
