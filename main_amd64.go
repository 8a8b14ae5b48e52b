// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime"

	"github.com/usbarmory/go-multiboot/boot"
	"github.com/usbarmory/go-multiboot/config"
	"github.com/usbarmory/go-multiboot/mem"
	"github.com/usbarmory/go-multiboot/menu"
	"github.com/usbarmory/go-multiboot/shell"
	"github.com/usbarmory/go-multiboot/uefi/x64"
)

var banner string

func init() {
	log.SetFlags(0)
	banner = fmt.Sprintf("%s/%s (%s) • go-multiboot", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

// loadConfig reads and decodes the boot configuration. This entry point
// carries no config parser of its own: parsing a configuration file
// format is a front-end concern (see SPEC_FULL.md's ambient stack
// notes), so a fixed single entry is assembled here from whatever
// kernel image the firmware environment already staged at /kernel.
func loadConfig() (*config.Config, error) {
	image, err := os.ReadFile("/kernel")

	if err != nil {
		return nil, fmt.Errorf("could not read /kernel, %w", err)
	}

	entry := config.Entry{
		Name:   "default",
		Image:  image,
		Quirks: config.QuirkSet{},
	}

	if argv, err := os.ReadFile("/cmdline"); err == nil {
		entry.Argv = string(argv)
	}

	return &config.Config{
		Default: "default",
		Entries: map[string]config.Entry{"default": entry},
	}, nil
}

func main() {
	logFile, _ := os.OpenFile("/runtime.log", os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))

	cfg, err := loadConfig()

	if err != nil {
		log.Printf("could not load boot configuration, %v", err)
		cfg = &config.Config{}
	}

	entry, err := menu.Choose(cfg, os.Stdin)

	if err == nil {
		if err = boot.Run(x64.UEFI, entry); err != nil {
			log.Printf("boot failed, %v", err)
		}
	} else {
		log.Printf("could not choose a boot entry, %v", err)
	}

	// boot.Run only returns on failure: fall back to the diagnostic
	// shell so the operator can inspect what went wrong.
	console := &shell.Interface{
		Banner:     banner,
		Log:        logFile,
		ReadWriter: os.Stdin,
		Config:     cfg,
		Services:   x64.UEFI,
		Stager:     mem.NewStager(x64.UEFI.Boot),
	}

	console.Start()

	runtime.Exit(0)
}
