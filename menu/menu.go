// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package menu implements the interactive boot entry picker: a
// countdown to the configured default, cancellable by any keypress,
// falling back to a numbered list prompt.
package menu

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/usbarmory/go-multiboot/config"
)

// Choose selects the boot entry to run. With no configured timeout the
// default entry is returned immediately. Otherwise a countdown to the
// default is printed to rw; any byte read from rw before it elapses
// cancels the countdown and drops into the interactive list prompt.
func Choose(cfg *config.Config, rw io.ReadWriter) (config.Entry, error) {
	def, ok := defaultEntry(cfg)

	if !ok {
		return config.Entry{}, fmt.Errorf("menu: no entries configured")
	}

	if cfg.Timeout <= 0 {
		return def, nil
	}

	fmt.Fprintf(rw, "booting %q in %s... (press any key to choose)\n", cfg.Default, cfg.Timeout)

	key := make(chan byte, 1)

	go func() {
		b := make([]byte, 1)
		if _, err := rw.Read(b); err == nil {
			key <- b[0]
		}
	}()

	select {
	case <-key:
		return selectEntry(cfg, rw)
	case <-time.After(cfg.Timeout):
		return def, nil
	}
}

// defaultEntry returns the configured default entry, falling back to
// the first entry in name order when the configured default is missing.
func defaultEntry(cfg *config.Config) (config.Entry, bool) {
	if e, ok := cfg.Entries[cfg.Default]; ok {
		return e, true
	}

	names := sortedNames(cfg.Entries)

	if len(names) == 0 {
		return config.Entry{}, false
	}

	return cfg.Entries[names[0]], true
}

// selectEntry lists every configured entry and repeatedly prompts until
// a valid index or name is entered.
func selectEntry(cfg *config.Config, rw io.ReadWriter) (config.Entry, error) {
	names := sortedNames(cfg.Entries)

	fmt.Fprintln(rw, "available entries:")

	for i, n := range names {
		fmt.Fprintf(rw, "%d. [%s]\n", i, n)
	}

	scanner := bufio.NewScanner(rw)

	for {
		fmt.Fprint(rw, "please select an entry to boot: ")

		if !scanner.Scan() {
			return config.Entry{}, fmt.Errorf("menu: could not read selection, %w", scanner.Err())
		}

		value := strings.TrimSpace(scanner.Text())

		if entry, ok := resolveChoice(cfg, names, value); ok {
			return entry, nil
		}

		fmt.Fprintf(rw, "invalid choice: %q\n", value)
	}
}

// resolveChoice interprets value as either a list index or an entry
// name, per towboot's menu: numeric lookup by position, else lookup by
// key.
func resolveChoice(cfg *config.Config, names []string, value string) (config.Entry, bool) {
	if idx, err := strconv.Atoi(value); err == nil {
		if idx < 0 || idx >= len(names) {
			return config.Entry{}, false
		}

		return cfg.Entries[names[idx]], true
	}

	e, ok := cfg.Entries[value]
	return e, ok
}

func sortedNames(entries map[string]config.Entry) []string {
	names := make([]string, 0, len(entries))

	for n := range entries {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}
