// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package shell implements a terminal console handler for user defined
// commands, adapted for the remote diagnostic session exposed alongside
// the boot menu.
package shell

import (
	"regexp"
	"sort"
	"strings"
)

// Cmd represents a single named command, matched either by exact Name
// (Pattern == nil) or by Pattern, in which case the submatch count must
// equal Args.
type Cmd struct {
	Name    string
	Args    int
	Pattern *regexp.Regexp
	Syntax  string
	Help    string
	Fn      func(iface *Interface, arg []string) (string, error)
}

var cmds []Cmd

// Add registers cmd for dispatch by Interface.Start. It is typically
// called from an init function in the file defining Fn.
func Add(cmd Cmd) {
	cmds = append(cmds, cmd)
}

// Help returns the registered command list formatted one per line, name
// and optional syntax left-aligned against its help text.
func Help() string {
	var lines []string

	for _, cmd := range cmds {
		name := cmd.Name
		if cmd.Syntax != "" {
			name += " " + cmd.Syntax
		}
		lines = append(lines, name+"\t"+cmd.Help)
	}

	sort.Strings(lines)

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}

	return strings.TrimRight(b.String(), "\n")
}
