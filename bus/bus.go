// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bus implements the ready/valid register bus protocol used to
// drive the OR-FIFO device: the read and write transaction primitives and
// the reset sequence.
//
// The device is only seen through a set of named signals (see Signals):
// single-bit control lines, multi-bit address and data lines, and a clock
// whose rising edges commit transactions.
package bus // import "github.com/go-lpc/orfifo/bus"

import (
	"context"
	"fmt"
)

// Signal is the name of a device pin.
type Signal string

const (
	CLK  Signal = "CLK"   // bus clock
	RSTN Signal = "RST_N" // reset control

	ReadEn   Signal = "read_en"      // assert to commit a read
	ReadRdy  Signal = "read_rdy"     // 1: a read may proceed
	ReadAddr Signal = "read_address" // target register of a read
	ReadData Signal = "read_data"    // value sampled at the commit edge

	WriteEn   Signal = "write_en"      // assert to commit a write
	WriteRdy  Signal = "write_rdy"     // 1: a write may proceed
	WriteAddr Signal = "write_address" // target register of a write
	WriteData Signal = "write_data"    // value committed
)

// Pins lists all the device pins.
var Pins = [...]Signal{
	CLK, RSTN,
	ReadEn, ReadRdy, ReadAddr, ReadData,
	WriteEn, WriteRdy, WriteAddr, WriteData,
}

// Duration is an amount of simulation time.
// One unit is one nanosecond of device time.
type Duration int64

// NS is one nanosecond of device time.
const NS Duration = 1

// Wires gives level access to the device pins.
type Wires interface {
	// Get returns the current value of sig.
	Get(sig Signal) uint64
	// Set drives sig to v.
	Set(sig Signal, v uint64)
}

// Signals is the handle through which the bus primitives access the device.
//
// Wait and RisingEdge suspend the caller. They return a non-nil error only
// when the handle is being shut down or ctx is done.
type Signals interface {
	Wires

	// Wait suspends the caller for d units of time.
	Wait(ctx context.Context, d Duration) error
	// RisingEdge suspends the caller until the next 0->1 transition of sig.
	RisingEdge(ctx context.Context, sig Signal) error
}

// Address identifies a register or a FIFO port of the device.
type Address uint8

const (
	StatusA    Address = 0x00 // status of input queue A (1: not full)
	StatusB    Address = 0x01 // status of input queue B (1: not full)
	StatusY    Address = 0x02 // status of output queue Y (1: not empty)
	ReadPortY  Address = 0x03 // pop output queue Y
	WritePortA Address = 0x04 // push to input queue A
	WritePortB Address = 0x05 // push to input queue B
)

func (addr Address) String() string {
	switch addr {
	case StatusA:
		return "status-A"
	case StatusB:
		return "status-B"
	case StatusY:
		return "status-Y"
	case ReadPortY:
		return "read-Y"
	case WritePortA:
		return "write-A"
	case WritePortB:
		return "write-B"
	}
	return fmt.Sprintf("0x%02x", uint8(addr))
}
