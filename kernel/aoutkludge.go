// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel

import (
	"github.com/usbarmory/go-multiboot/config"
	"github.com/usbarmory/go-multiboot/mem"
	"github.com/usbarmory/go-multiboot/multiboot"
)

// aoutKludgeRange computes the file-offset copy window and the
// load/bss geometry for a V1 aout-kludge header, per spec.md §4.3:
//
//	copy [header_offset-(header_addr-load_addr), ... +(load_end_addr-load_addr))
//	of the file into [load_addr, load_end_addr), zero [load_end_addr, bss_end_addr).
//
// Kept free of any Stager/firmware dependency so it is exercised directly
// by tests against the literal scenario in spec.md §8.
func aoutKludgeRange(h *multiboot.HeaderV1, headerOffset int, imageLen int) (fileStart, fileEnd int, loadAddr, loadEnd, bssEnd uint64, err error) {
	loadAddr = uint64(h.LoadAddr)
	loadEnd = uint64(h.LoadEndAddr)
	bssEnd = uint64(h.BssEndAddr)

	if loadEnd < loadAddr || bssEnd < loadEnd {
		return 0, 0, 0, 0, 0, &AoutKludgeError{Reason: "load_addr/load_end_addr/bss_end_addr out of order"}
	}

	offsetDelta := int64(headerOffset) - (int64(h.HeaderAddr) - int64(loadAddr))
	fileStart = int(offsetDelta)
	fileEnd = fileStart + int(loadEnd-loadAddr)

	if fileStart < 0 || fileEnd < fileStart || fileEnd > imageLen {
		return 0, 0, 0, 0, 0, &AoutKludgeError{Reason: "file copy window out of range"}
	}

	return fileStart, fileEnd, loadAddr, loadEnd, bssEnd, nil
}

func loadAoutKludge(image []byte, h *multiboot.HeaderV1, headerOffset int, stager *mem.Stager, quirks config.QuirkSet) (*LoadedKernel, error) {
	fileStart, fileEnd, loadAddr, loadEnd, bssEnd, err := aoutKludgeRange(h, headerOffset, len(image))

	if err != nil {
		return nil, err
	}

	size := bssEnd - loadAddr
	pages := mem.PagesFor(int(size))

	constraint := mem.AtExactAddress(loadAddr)
	constraint.SkipOverlapCheck = quirks.Has(config.ForceOverwrite)

	if _, err := stager.Allocate(pages, constraint, mem.KindKernel); err != nil {
		return nil, err
	}

	fileBytes := image[fileStart:fileEnd]

	if err := stager.WriteAt(loadAddr, fileBytes); err != nil {
		return nil, err
	}

	if bssEnd > loadEnd {
		if err := stager.ZeroAt(loadEnd, int(bssEnd-loadEnd)); err != nil {
			return nil, err
		}
	}

	lk := &LoadedKernel{
		EntryPoint:    uint64(h.EntryAddr),
		IsELF:         false,
		HeaderVersion: 1,
		ExpectedMode:  ExpectedMode(&multiboot.Header{Version: 1, V1: h}, false),
		Segments: []Segment{{
			PhysicalBase: loadAddr,
			VirtualBase:  loadAddr,
			FileBytes:    fileBytes,
			MemSize:      size,
		}},
	}

	return lk, nil
}
