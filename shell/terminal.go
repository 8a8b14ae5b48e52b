// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package shell

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"golang.org/x/term"

	"github.com/usbarmory/go-multiboot/config"
	"github.com/usbarmory/go-multiboot/mem"
	"github.com/usbarmory/go-multiboot/uefi"
)

// Interface represents a diagnostic terminal session.
type Interface struct {
	// Banner is the welcome message printed at session start.
	Banner string

	// Log is the interface log file, nil if logging to file is disabled.
	Log *os.File

	// ReadWriter is the terminal connection (serial console or SSH
	// channel).
	ReadWriter io.ReadWriter

	VT100 bool

	// Config, Services and Stager give the registered commands access
	// to the boot configuration, firmware and live allocations.
	Config   *config.Config
	Services *uefi.Services
	Stager   *mem.Stager
}

func (iface *Interface) handleLine(line string, w io.Writer) (err error) {
	var match *Cmd
	var arg []string
	var res string

	for i := range cmds {
		cmd := &cmds[i]

		if cmd.Pattern == nil {
			if cmd.Name == line {
				match = cmd
				break
			}
		} else if m := cmd.Pattern.FindStringSubmatch(line); len(m) > 0 && len(m)-1 == cmd.Args {
			match = cmd
			arg = m[1:]
			break
		}
	}

	if match == nil {
		return errors.New("unknown command, type `help`")
	}

	if res, err = match.Fn(iface, arg); err != nil {
		return
	}

	fmt.Fprintln(w, res)

	return
}

func (iface *Interface) readLine(t *term.Terminal, w io.Writer) error {
	s, err := t.ReadLine()

	if err == io.EOF {
		return err
	}

	if err != nil {
		log.Printf("shell: readline error, %v", err)
		return nil
	}

	if err = iface.handleLine(s, w); err != nil {
		if err == io.EOF {
			return err
		}

		fmt.Fprintf(w, "command error, %v\n", err)
		return nil
	}

	return nil
}

// Start handles registered commands over the interface ReadWriter until
// the session is closed with `exit`/`quit` or the connection returns
// io.EOF.
func (iface *Interface) Start() {
	var w io.Writer

	t := term.NewTerminal(iface.ReadWriter, "")
	w = iface.ReadWriter

	if iface.VT100 {
		t.SetPrompt(string(t.Escape.Red) + "> " + string(t.Escape.Reset))
		w = t
	}

	fmt.Fprintf(t, "\n%s\n\n%s\n", iface.Banner, Help())

	for {
		if err := iface.readLine(t, w); err != nil {
			return
		}
	}
}
