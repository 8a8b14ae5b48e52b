// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package config defines the pre-parsed boot configuration value consumed
// by the core. Lexing and parsing a configuration file is an external
// front-end concern (see towbootctl in the reference implementation this
// shape is adapted from); this package only holds the resolved result.
package config

import "time"

// Quirk is a per-entry behavioral override.
type Quirk int

const (
	// DontExitBootServices skips ExitBootServices and passes the EFI
	// system table and image handle in the boot information instead.
	DontExitBootServices Quirk = iota

	// ForceElf treats the kernel image as ELF regardless of whether its
	// Multiboot header carries the aout-kludge flag.
	ForceElf

	// ForceOverwrite disables the overlap check against the loader's
	// own live allocations during kernel segment staging. A kernel
	// range the firmware refuses to allocate still fails to load.
	ForceOverwrite

	// KeepResolution ignores the kernel's requested framebuffer mode
	// and keeps whatever mode the firmware already set.
	KeepResolution

	// ModulesBelow200Mb constrains module and info-structure
	// allocations to below 200 MiB.
	ModulesBelow200Mb
)

func (q Quirk) String() string {
	switch q {
	case DontExitBootServices:
		return "dont-exit-boot-services"
	case ForceElf:
		return "force-elf"
	case ForceOverwrite:
		return "force-overwrite"
	case KeepResolution:
		return "keep-resolution"
	case ModulesBelow200Mb:
		return "modules-below-200mb"
	default:
		return "unknown"
	}
}

// QuirkSet is the set of quirks active for a single boot entry.
type QuirkSet map[Quirk]bool

// Has reports whether q is active in the set.
func (s QuirkSet) Has(q Quirk) bool {
	return s[q]
}

// Module is an auxiliary file loaded alongside the kernel and described to
// it as an opaque blob plus a command-line string.
type Module struct {
	// Image holds the module's file bytes, already read from storage.
	Image []byte

	// Argv is the module's command-line string, passed to the kernel
	// verbatim in the module's info-structure tag.
	Argv string
}

// VideoMode is an optional preferred framebuffer mode.
type VideoMode struct {
	Width  int
	Height int
	Depth  int
}

// Entry is a single resolved boot choice: a kernel, its modules, and the
// quirks that govern how it is loaded.
type Entry struct {
	// Name identifies the entry for menu display and logging.
	Name string

	// Image holds the kernel's file bytes, already read from storage.
	Image []byte

	// Argv is the kernel command line. By convention the first token is
	// the kernel path; the remainder is passed through to the cmdline
	// tag verbatim.
	Argv string

	Modules []Module
	Quirks  QuirkSet
	Video   *VideoMode
}

// Config is the fully resolved boot configuration: a menu of entries plus
// the default choice and timeout.
type Config struct {
	// Default names the Entry to boot when Timeout elapses without
	// user interaction.
	Default string

	Timeout  time.Duration
	LogLevel string

	Entries map[string]Entry
}

// Resolve returns the entry that should boot: the named entry if name is
// non-empty and present, otherwise the configured default.
func (c *Config) Resolve(name string) (Entry, bool) {
	if name == "" {
		name = c.Default
	}

	e, ok := c.Entries[name]
	return e, ok
}
