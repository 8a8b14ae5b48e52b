// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package shell

import (
	"fmt"
	"io"
	"regexp"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hako/durafmt"

	"github.com/usbarmory/go-multiboot/boot"
	"github.com/usbarmory/go-multiboot/uefi"
)

// bootTime is set once at package init, giving the uptime command
// something to measure against.
var bootTime = time.Now()

func init() {
	Add(Cmd{
		Name: "help",
		Help: "this help",
		Fn:   helpCmd,
	})

	Add(Cmd{
		Name: "build",
		Help: "build information",
		Fn:   buildInfoCmd,
	})

	Add(Cmd{
		Name:    "exit, quit",
		Args:    1,
		Pattern: regexp.MustCompile(`^(exit|quit)$`),
		Help:    "close session",
		Fn:      exitCmd,
	})

	Add(Cmd{
		Name: "entries",
		Help: "list configured boot entries",
		Fn:   entriesCmd,
	})

	Add(Cmd{
		Name:    "boot",
		Args:    1,
		Pattern: regexp.MustCompile(`^boot(?:(?: )(\S+))?$`),
		Syntax:  "(entry name)?",
		Help:    "boot the named entry, or the configured default",
		Fn:      bootCmd,
	})

	Add(Cmd{
		Name: "memmap",
		Help: "show live memory allocations",
		Fn:   memmapCmd,
	})

	Add(Cmd{
		Name: "e820",
		Help: "show the firmware memory map converted to E820 entries",
		Fn:   e820Cmd,
	})

	Add(Cmd{
		Name: "uptime",
		Help: "show how long the system has been running",
		Fn:   uptimeCmd,
	})

	Add(Cmd{
		Name: "stack",
		Help: "goroutine stack trace (current)",
		Fn:   stackCmd,
	})

	Add(Cmd{
		Name:    "alloc",
		Args:    2,
		Pattern: regexp.MustCompile(`^alloc ([[:xdigit:]]+) (\d+)$`),
		Syntax:  "<hex offset> <size>",
		Help:    "EFI_BOOT_SERVICES.AllocatePages() at an exact address",
		Fn:      allocCmd,
	})

	Add(Cmd{
		Name:    "reset",
		Args:    1,
		Pattern: regexp.MustCompile(`^reset(?: (cold|warm|shutdown))?$`),
		Syntax:  "(cold|warm|shutdown)?",
		Help:    "EFI_RUNTIME_SERVICES.ResetSystem()",
		Fn:      resetCmd,
	})
}

func helpCmd(_ *Interface, _ []string) (string, error) {
	return Help(), nil
}

func buildInfoCmd(_ *Interface, _ []string) (string, error) {
	if bi, ok := debug.ReadBuildInfo(); ok {
		return bi.String(), nil
	}

	return "", nil
}

func exitCmd(_ *Interface, _ []string) (string, error) {
	return fmt.Sprintf("goodbye from %s/%s", runtime.GOOS, runtime.GOARCH), io.EOF
}

func entriesCmd(iface *Interface, _ []string) (string, error) {
	if iface.Config == nil || len(iface.Config.Entries) == 0 {
		return "no entries configured", nil
	}

	var names []string

	for name := range iface.Config.Entries {
		mark := "  "
		if name == iface.Config.Default {
			mark = "* "
		}
		names = append(names, mark+name)
	}

	sort.Strings(names)

	return strings.Join(names, "\n"), nil
}

// bootCmd resolves and boots the named entry over iface.Services. A
// successful boot.Run never returns to this function: control has
// already passed to the kernel.
func bootCmd(iface *Interface, arg []string) (string, error) {
	if iface.Config == nil || iface.Services == nil {
		return "", fmt.Errorf("shell: boot subsystem not wired")
	}

	entry, ok := iface.Config.Resolve(arg[0])

	if !ok {
		return "", fmt.Errorf("shell: no such entry %q", arg[0])
	}

	if err := boot.Run(iface.Services, entry); err != nil {
		return "", fmt.Errorf("boot failed, %w", err)
	}

	return "", nil
}

func memmapCmd(iface *Interface, _ []string) (string, error) {
	if iface.Stager == nil {
		return "no stager attached", nil
	}

	var lines []string

	for _, a := range iface.Stager.Live() {
		lines = append(lines, fmt.Sprintf("%#010x-%#010x %8d KiB %s", a.Base, a.End(), a.Size()/1024, a.Kind))
	}

	if len(lines) == 0 {
		return "no live allocations", nil
	}

	return strings.Join(lines, "\n"), nil
}

func e820Cmd(iface *Interface, _ []string) (string, error) {
	if iface.Stager == nil {
		return "no stager attached", nil
	}

	entries, err := iface.Stager.E820Map()

	if err != nil {
		return "", fmt.Errorf("could not read memory map, %w", err)
	}

	if len(entries) == 0 {
		return "no memory map entries", nil
	}

	var lines []string

	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%#010x-%#010x %8d KiB type %d", e.Addr, e.Addr+e.Size, e.Size/1024, e.MemType))
	}

	return strings.Join(lines, "\n"), nil
}

func uptimeCmd(_ *Interface, _ []string) (string, error) {
	return fmt.Sprintf("%s", durafmt.Parse(time.Since(bootTime))), nil
}

func stackCmd(_ *Interface, _ []string) (string, error) {
	return string(debug.Stack()), nil
}

// allocCmd exercises EFI_BOOT_SERVICES.AllocatePages() directly against
// an exact address, bypassing mem.Stager, for firmware diagnostics.
func allocCmd(iface *Interface, arg []string) (string, error) {
	if iface.Services == nil {
		return "", fmt.Errorf("shell: no firmware services attached")
	}

	addr, err := strconv.ParseUint(arg[0], 16, 64)

	if err != nil {
		return "", fmt.Errorf("invalid address, %v", err)
	}

	size, err := strconv.ParseUint(arg[1], 10, 64)

	if err != nil {
		return "", fmt.Errorf("invalid size, %v", err)
	}

	base, err := iface.Services.Boot.AllocatePages(uefi.AllocateAddress, int(uefi.EfiLoaderData), int(size), addr)

	if err != nil {
		return "", err
	}

	return fmt.Sprintf("allocated %d bytes at %#x", size, base), nil
}

func resetCmd(iface *Interface, arg []string) (string, error) {
	if iface.Services == nil {
		return "", fmt.Errorf("shell: no firmware services attached")
	}

	resetType := uefi.EfiResetWarm

	switch arg[0] {
	case "cold":
		resetType = uefi.EfiResetCold
	case "shutdown":
		resetType = uefi.EfiResetShutdown
	}

	return "", iface.Services.Runtime.ResetSystem(resetType)
}
