// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package boot

import (
	"testing"

	"github.com/usbarmory/go-multiboot/config"
	"github.com/usbarmory/go-multiboot/handover"
	"github.com/usbarmory/go-multiboot/kernel"
	"github.com/usbarmory/go-multiboot/uefi"
)

func TestValidate(t *testing.T) {
	if err := validate(&config.Entry{Image: []byte{0x7f, 0x45}}); err != nil {
		t.Errorf("validate() = %v, want nil", err)
	}

	err := validate(&config.Entry{})

	if err == nil {
		t.Fatal("validate() = nil, want ConfigurationInvalidError")
	}

	if _, ok := err.(*ConfigurationInvalidError); !ok {
		t.Errorf("validate() error type = %T, want *ConfigurationInvalidError", err)
	}
}

func TestBootMagicFromHeaderVersion(t *testing.T) {
	// A V1 header can still load an ELF payload (no aout-kludge flag),
	// so the boot magic must follow the header version the scanner
	// actually found, never a guess re-derived from kernel traits like
	// IsELF or ExpectedMode.
	tests := []struct {
		name string
		lk   *kernel.LoadedKernel
		want uint32
	}{
		{"v1 aout-kludge", &kernel.LoadedKernel{HeaderVersion: 1, ExpectedMode: kernel.ModeI386, IsELF: false}, 0x2BADB002},
		{"v1 header with ELF payload", &kernel.LoadedKernel{HeaderVersion: 1, ExpectedMode: kernel.ModeI386, IsELF: true}, 0x2BADB002},
		{"v2 with efi64 tag", &kernel.LoadedKernel{HeaderVersion: 2, ExpectedMode: kernel.ModeEFI64, IsELF: true}, 0x36D76289},
		{"v2 elf without efi tag", &kernel.LoadedKernel{HeaderVersion: 2, ExpectedMode: kernel.ModeAMD64, IsELF: true}, 0x36D76289},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := handover.BootMagic(tt.lk.HeaderVersion); got != tt.want {
				t.Errorf("BootMagic(%d) = %#x, want %#x", tt.lk.HeaderVersion, got, tt.want)
			}
		})
	}
}

func TestEncodeEFIMemoryMap(t *testing.T) {
	mm := &uefi.MemoryMap{
		Descriptors: []*uefi.MemoryDescriptor{
			{Type: 7, PhysicalStart: 0x100000, NumberOfPages: 16, Attribute: 0xf},
		},
	}

	buf := encodeEFIMemoryMap(mm)

	if len(buf) != 40 {
		t.Fatalf("len(buf) = %d, want 40", len(buf))
	}

	if got := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24; got != 7 {
		t.Errorf("Type = %d, want 7", got)
	}
}
