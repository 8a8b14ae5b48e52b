// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package info

import (
	"testing"

	"github.com/usbarmory/go-multiboot/uefi"
)

func TestFramebufferType(t *testing.T) {
	tests := []struct {
		format uint32
		want   uint8
	}{
		{uefi.PixelRedGreenBlueReserved8BitPerColor, 1},
		{uefi.PixelBlueGreenRedReserved8BitPerColor, 1},
		{uefi.PixelBitMask, 1},
		{uefi.PixelBltOnly, 0},
		{99, 0},
	}

	for _, tt := range tests {
		if got := framebufferType(tt.format); got != tt.want {
			t.Errorf("framebufferType(%d) = %d, want %d", tt.format, got, tt.want)
		}
	}
}
