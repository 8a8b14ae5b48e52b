// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package multiboot scans a raw kernel image for a Multiboot 1 or
// Multiboot 2 header and decodes it into a typed value. It never touches
// firmware services; it operates purely on a byte slice.
package multiboot

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/usbarmory/go-multiboot/config"
)

// Magic values, bit-exact per the Multiboot Specification.
const (
	V1HeaderMagic = 0x1BADB002
	V1BootMagic   = 0x2BADB002
	V2HeaderMagic = 0xE85250D6
	V2BootMagic   = 0x36D76289

	// ArchI386 is the only Multiboot 2 "architecture" field value this
	// loader accepts.
	ArchI386 = 0
)

// V1 header flag bits.
const (
	v1FlagPageAlign  = 1 << 0
	v1FlagMemoryInfo = 1 << 1
	v1FlagVideoMode  = 1 << 2
	v1FlagAoutKludge = 1 << 16
)

// ErrNoMultibootHeader is returned when neither a V1 nor a V2 header is
// present and the ForceElf quirk is not set.
var ErrNoMultibootHeader = errors.New("multiboot: no Multiboot header found")

// HeaderMalformedError reports a structural or checksum failure in an
// otherwise-located header.
type HeaderMalformedError struct {
	Reason string
}

func (e *HeaderMalformedError) Error() string {
	return fmt.Sprintf("multiboot: header malformed: %s", e.Reason)
}

// HeaderV1 is a decoded Multiboot 1 header.
type HeaderV1 struct {
	Flags    uint32
	Checksum uint32

	AoutKludge bool
	HeaderAddr uint32
	LoadAddr   uint32
	LoadEndAddr uint32
	BssEndAddr uint32
	EntryAddr  uint32

	VideoMode bool
	ModeType  uint32
	Width     uint32
	Height    uint32
	Depth     uint32
}

// NeedsMemoryInfo reports whether the kernel requires the basic memory
// info fields (mem_lower/mem_upper) to be filled.
func (h *HeaderV1) NeedsMemoryInfo() bool {
	return h.Flags&v1FlagMemoryInfo != 0
}

// TagKind identifies a Multiboot 2 header tag's semantic kind.
type TagKind int

const (
	TagInformationRequest TagKind = 1
	TagAddress            TagKind = 2
	TagEntryAddress       TagKind = 3
	TagConsoleFlags       TagKind = 4
	TagFramebuffer        TagKind = 5
	TagModuleAlign        TagKind = 6
	TagEfiBootServices    TagKind = 7
	TagEntryAddressEfi32  TagKind = 8
	TagEntryAddressEfi64  TagKind = 9
	TagRelocatable        TagKind = 10
	TagEnd                TagKind = 0
)

// Tag is a single decoded Multiboot 2 header tag.
type Tag struct {
	Kind  TagKind
	Flags uint16
	Data  []byte
}

// Uint32At returns the little-endian uint32 at byte offset off within the
// tag's data, or 0 if out of range.
func (t *Tag) Uint32At(off int) uint32 {
	if off+4 > len(t.Data) {
		return 0
	}
	return binary.LittleEndian.Uint32(t.Data[off:])
}

// HeaderV2 is a decoded Multiboot 2 header.
type HeaderV2 struct {
	Architecture uint32
	HeaderLength uint32
	Checksum     uint32
	Tags         []Tag
}

// Find returns the first tag of the given kind, or nil.
func (h *HeaderV2) Find(kind TagKind) *Tag {
	for i := range h.Tags {
		if h.Tags[i].Kind == kind {
			return &h.Tags[i]
		}
	}
	return nil
}

// Header is the discriminated V1/V2 result of a Scan.
type Header struct {
	Version int
	V1      *HeaderV1
	V2      *HeaderV2
}

const (
	v2ScanWindow  = 32 * 1024
	v1ScanWindow  = 8 * 1024
	v2Stride      = 8
	v1Stride      = 4
	v2TagHeaderSz = 8
)

// Scan locates a Multiboot header in image and returns it along with the
// byte offset within image at which it starts. V2 is preferred over V1
// if both are present. If neither is found and quirks carries ForceElf,
// a degenerate V1 header describing an ELF kernel is synthesized.
func Scan(image []byte, quirks config.QuirkSet) (*Header, int, error) {
	if hv2, off, err := scanV2(image); err != nil {
		return nil, 0, err
	} else if hv2 != nil {
		return &Header{Version: 2, V2: hv2}, off, nil
	}

	if hv1, off, err := scanV1(image); err != nil {
		return nil, 0, err
	} else if hv1 != nil {
		return &Header{Version: 1, V1: hv1}, off, nil
	}

	if quirks.Has(config.ForceElf) {
		return &Header{Version: 1, V1: &HeaderV1{Flags: 0}}, 0, nil
	}

	return nil, 0, ErrNoMultibootHeader
}

func scanV2(image []byte) (*HeaderV2, int, error) {
	limit := len(image)
	if limit > v2ScanWindow {
		limit = v2ScanWindow
	}

	for off := 0; off+16 <= limit; off += v2Stride {
		magic := binary.LittleEndian.Uint32(image[off:])

		if magic != V2HeaderMagic {
			continue
		}

		arch := binary.LittleEndian.Uint32(image[off+4:])
		length := binary.LittleEndian.Uint32(image[off+8:])
		checksum := binary.LittleEndian.Uint32(image[off+12:])

		if arch != ArchI386 {
			continue
		}

		if length > v2ScanWindow || int(length) < 16 || off+int(length) > len(image) {
			continue
		}

		if magic+arch+length+checksum != 0 {
			continue
		}

		tags, err := parseV2Tags(image[off+16 : off+int(length)])

		if err != nil {
			continue
		}

		return &HeaderV2{Architecture: arch, HeaderLength: length, Checksum: checksum, Tags: tags}, off, nil
	}

	return nil, 0, nil
}

func parseV2Tags(buf []byte) ([]Tag, error) {
	var tags []Tag

	off := 0

	for {
		if off+v2TagHeaderSz > len(buf) {
			return nil, &HeaderMalformedError{Reason: "tag stream truncated"}
		}

		typ := binary.LittleEndian.Uint16(buf[off:])
		flags := binary.LittleEndian.Uint16(buf[off+2:])
		size := binary.LittleEndian.Uint32(buf[off+4:])

		if size < v2TagHeaderSz || off+int(size) > len(buf) {
			return nil, &HeaderMalformedError{Reason: "tag size out of range"}
		}

		data := buf[off+v2TagHeaderSz : off+int(size)]
		tags = append(tags, Tag{Kind: TagKind(typ), Flags: flags, Data: data})

		if TagKind(typ) == TagEnd {
			if size != v2TagHeaderSz {
				return nil, &HeaderMalformedError{Reason: "end tag size must be 8"}
			}
			return tags, nil
		}

		// tags are padded so the next one starts 8-byte aligned
		advance := int(size)
		if rem := advance % 8; rem != 0 {
			advance += 8 - rem
		}

		off += advance
	}
}

func scanV1(image []byte) (*HeaderV1, int, error) {
	limit := len(image)
	if limit > v1ScanWindow {
		limit = v1ScanWindow
	}

	for off := 0; off+12 <= limit; off += v1Stride {
		magic := binary.LittleEndian.Uint32(image[off:])

		if magic != V1HeaderMagic {
			continue
		}

		flags := binary.LittleEndian.Uint32(image[off+4:])
		checksum := binary.LittleEndian.Uint32(image[off+8:])

		if magic+flags+checksum != 0 {
			continue
		}

		h := &HeaderV1{Flags: flags, Checksum: checksum}
		pos := off + 12

		if flags&v1FlagAoutKludge != 0 {
			if pos+20 > len(image) {
				return nil, 0, &HeaderMalformedError{Reason: "aout-kludge fields truncated"}
			}

			h.AoutKludge = true
			h.HeaderAddr = binary.LittleEndian.Uint32(image[pos:])
			h.LoadAddr = binary.LittleEndian.Uint32(image[pos+4:])
			h.LoadEndAddr = binary.LittleEndian.Uint32(image[pos+8:])
			h.BssEndAddr = binary.LittleEndian.Uint32(image[pos+12:])
			h.EntryAddr = binary.LittleEndian.Uint32(image[pos+16:])
			pos += 20
		}

		if flags&v1FlagVideoMode != 0 && pos+16 <= len(image) {
			h.VideoMode = true
			h.ModeType = binary.LittleEndian.Uint32(image[pos:])
			h.Width = binary.LittleEndian.Uint32(image[pos+4:])
			h.Height = binary.LittleEndian.Uint32(image[pos+8:])
			h.Depth = binary.LittleEndian.Uint32(image[pos+12:])
		}

		return h, off, nil
	}

	return nil, 0, nil
}
