// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tb

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/go-lpc/orfifo/bus"
)

// ErrInvalidArgument is returned when a FIFO name or value does not
// designate one of the FIFOs of the device.
var ErrInvalidArgument = errors.New("tb: invalid argument")

// FIFO designates one of the three FIFOs of the device.
type FIFO uint8

const (
	FIFOA FIFO = iota // input FIFO A
	FIFOB             // input FIFO B
	FIFOY             // output FIFO Y
)

var fifos = [...]struct {
	name string
	addr bus.Address
	good string // status flag at 1
	bad  string // status flag at 0
}{
	FIFOA: {"A", bus.StatusA, "not full", "full"},
	FIFOB: {"B", bus.StatusB, "not full", "full"},
	FIFOY: {"Y", bus.StatusY, "not empty", "empty"},
}

func (f FIFO) valid() bool { return int(f) < len(fifos) }

func (f FIFO) String() string {
	if !f.valid() {
		return fmt.Sprintf("FIFO(%d)", uint8(f))
	}
	return fifos[f].name
}

// Addr returns the address of the status register of f.
func (f FIFO) Addr() (bus.Address, error) {
	if !f.valid() {
		return 0, fmt.Errorf("tb: unknown FIFO %v: %w", f, ErrInvalidArgument)
	}
	return fifos[f].addr, nil
}

// ParseFIFO returns the FIFO named name, one of "A", "B" or "Y".
func ParseFIFO(name string) (FIFO, error) {
	for i, v := range fifos {
		if v.name == name {
			return FIFO(i), nil
		}
	}
	return 0, fmt.Errorf("tb: unknown FIFO %q: %w", name, ErrInvalidArgument)
}

// Reader reads device registers.
type Reader interface {
	Read(ctx context.Context, addr bus.Address) (uint64, error)
}

// Status is the state of a FIFO as reported by its status register.
type Status struct {
	FIFO  FIFO
	Raw   uint64 // value read from the status register
	Ready bool   // input FIFO not full, or output FIFO not empty
}

func (st Status) String() string {
	if !st.FIFO.valid() {
		return fmt.Sprintf("%v status=%d", st.FIFO, st.Raw)
	}
	state := fifos[st.FIFO].bad
	if st.Ready {
		state = fifos[st.FIFO].good
	}
	return fmt.Sprintf("%v FIFO is %s", st.FIFO, state)
}

// CheckStatus reads the status register of f and logs its state to msg
// (if not nil).
// CheckStatus is a diagnostic: callers are not expected to act on the
// returned status.
func CheckStatus(ctx context.Context, r Reader, f FIFO, msg *log.Logger) (Status, error) {
	addr, err := f.Addr()
	if err != nil {
		return Status{FIFO: f}, err
	}

	raw, err := r.Read(ctx, addr)
	if err != nil {
		return Status{FIFO: f}, fmt.Errorf("tb: could not read status of FIFO %v: %w", f, err)
	}

	st := Status{
		FIFO:  f,
		Raw:   raw,
		Ready: raw == 1,
	}
	if msg != nil {
		msg.Printf("%v", st)
	}
	return st, nil
}

// CheckStatusByName is like CheckStatus, with the FIFO given by its name.
// Unknown names are rejected with ErrInvalidArgument before any bus access.
func CheckStatusByName(ctx context.Context, r Reader, name string, msg *log.Logger) (Status, error) {
	f, err := ParseFIFO(name)
	if err != nil {
		return Status{}, err
	}
	return CheckStatus(ctx, r, f, msg)
}
