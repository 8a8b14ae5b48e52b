// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package handover

import (
	"testing"

	"github.com/usbarmory/go-multiboot/config"
	"github.com/usbarmory/go-multiboot/info"
	"github.com/usbarmory/go-multiboot/kernel"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Staged, "staged"},
		{MapAcquired, "map-acquired"},
		{ServicesExited, "services-exited"},
		{HandedOff, "handed-off"},
		{Fatal, "fatal"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestBootMagic(t *testing.T) {
	if got := BootMagic(1); got != 0x2BADB002 {
		t.Errorf("BootMagic(1) = %#x, want 0x2BADB002", got)
	}

	if got := BootMagic(2); got != 0x36D76289 {
		t.Errorf("BootMagic(2) = %#x, want 0x36D76289", got)
	}
}

// TestDontExitBootServicesShortCircuit exercises spec.md §8 scenario 6:
// with the quirk active, RequestExit/ExitOK must not touch firmware
// services at all and must advance straight to ServicesExited.
func TestDontExitBootServicesShortCircuit(t *testing.T) {
	quirks := config.QuirkSet{config.DontExitBootServices: true}
	m := New(nil, nil, nil, &info.Params{}, quirks)

	if err := m.RequestExit(); err != nil {
		t.Fatalf("RequestExit() error = %v", err)
	}

	if m.State() != MapAcquired {
		t.Errorf("state after RequestExit = %v, want map-acquired", m.State())
	}

	if err := m.ExitOK(); err != nil {
		t.Fatalf("ExitOK() error = %v", err)
	}

	if m.State() != ServicesExited {
		t.Errorf("state after ExitOK = %v, want services-exited", m.State())
	}
}

func TestJumpWrongState(t *testing.T) {
	m := New(nil, nil, nil, &info.Params{}, nil)

	if err := m.Jump(kernel.ModeAMD64, 0, 0, 0); err != ErrWrongState {
		t.Errorf("Jump() from Staged error = %v, want ErrWrongState", err)
	}
}

func TestExitOKWrongState(t *testing.T) {
	m := New(nil, nil, nil, &info.Params{}, nil)

	if err := m.ExitOK(); err != ErrWrongState {
		t.Errorf("ExitOK() from Staged error = %v, want ErrWrongState", err)
	}
}

func TestMemoryMapVolatileErrorUnwrap(t *testing.T) {
	inner := ErrWrongState
	e := &MemoryMapVolatileError{Attempts: 3, Err: inner}

	if e.Unwrap() != inner {
		t.Error("Unwrap() did not return wrapped error")
	}

	if e.Error() == "" {
		t.Error("Error() returned empty string")
	}
}
