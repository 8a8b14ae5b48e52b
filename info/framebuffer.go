// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package info

import (
	"github.com/usbarmory/go-multiboot/config"
	"github.com/usbarmory/go-multiboot/uefi"
)

// framebufferType maps a UEFI pixel format to the Multiboot framebuffer
// type vocabulary (0 indexed, 1 RGB, 2 EGA text). A GOP instance never
// reports EGA text, and BltOnly modes have no linear framebuffer to
// describe, so both fall back to the indexed type kernels already have
// to tolerate when no usable framebuffer is present.
func framebufferType(pixelFormat uint32) uint8 {
	switch pixelFormat {
	case uefi.PixelRedGreenBlueReserved8BitPerColor, uefi.PixelBlueGreenRedReserved8BitPerColor, uefi.PixelBitMask:
		return 1
	default:
		return 0
	}
}

// findMode searches gop's mode list for one matching pref's width and
// height. UEFI's Graphics Output Protocol does not let a caller request
// a bit depth directly, so pref.Depth is not read; only width and height
// are matched.
func findMode(gop *uefi.GraphicsOutput, pref *config.VideoMode) (uint32, bool) {
	cur, err := gop.GetMode()

	if err != nil {
		return 0, false
	}

	for n := uint32(0); n < cur.MaxMode; n++ {
		m, err := gop.QueryMode(n)

		if err != nil {
			continue
		}

		if int(m.HorizontalResolution) == pref.Width && int(m.VerticalResolution) == pref.Height {
			return n, true
		}
	}

	return 0, false
}

// DiscoverFramebuffer negotiates and returns the framebuffer to describe
// to the kernel, per spec.md §4.5 item 6. With the KeepResolution quirk
// active, or no preferred mode configured, the firmware's current mode
// is read back as-is; otherwise a matching mode is located and set
// first. A nil result with a nil error means no Graphics Output Protocol
// instance is present, which is not itself an error: the framebuffer tag
// is simply omitted.
func DiscoverFramebuffer(boot *uefi.BootServices, pref *config.VideoMode, quirks config.QuirkSet) (*Framebuffer, error) {
	gop, err := boot.GetGraphicsOutput()

	if err != nil {
		return nil, nil
	}

	if pref != nil && !quirks.Has(config.KeepResolution) {
		if n, ok := findMode(gop, pref); ok {
			if err := gop.SetMode(n); err != nil {
				return nil, err
			}
		}
	}

	mode, err := gop.GetMode()

	if err != nil {
		return nil, err
	}

	modeInfo, err := mode.GetInfo()

	if err != nil {
		return nil, err
	}

	const bpp = 32

	return &Framebuffer{
		Address: mode.FrameBufferBase,
		Pitch:   modeInfo.PixelsPerScanLine * (bpp / 8),
		Width:   modeInfo.HorizontalResolution,
		Height:  modeInfo.VerticalResolution,
		BPP:     bpp,
		Type:    framebufferType(modeInfo.PixelFormat),
	}, nil
}
