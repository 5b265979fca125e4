// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dut provides a behavioural model of the OR-FIFO device.
//
// The model has two input FIFOs (A and B) fed through write ports 0x04 and
// 0x05, and one output FIFO (Y) drained through read port 0x03.
// On every clock cycle where A and B both hold a word and Y has room, one
// word is popped from each input and their combination (a bitwise OR by
// default) is pushed into Y.
//
// Reads of the status registers 0x00, 0x01 and 0x02 return 1 when FIFO A
// (resp. B) is not full, or when FIFO Y is not empty, and 0 otherwise.
package dut // import "github.com/go-lpc/orfifo/dut"

import (
	"log"
	"os"

	"github.com/go-lpc/orfifo/bus"
)

const defaultDepth = 2

// Op combines one word of FIFO A with one word of FIFO B.
type Op func(a, b uint64) uint64

// Or is the nominal combination of the device.
func Or(a, b uint64) uint64 { return a | b }

type config struct {
	msg   *log.Logger
	depth int
	op    Op
	stall bool
}

// Option configures a device model.
type Option func(*config)

// WithLogger sets the logger used to report overflows, underflows and
// accesses to unknown addresses.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithDepth sets the depth of the three FIFOs.
// Depths below 1 are ignored.
func WithDepth(n int) Option {
	return func(cfg *config) {
		if n < 1 {
			return
		}
		cfg.depth = n
	}
}

// WithOp replaces the OR combination of the device, e.g. to inject faults.
func WithOp(op Op) Option {
	return func(cfg *config) {
		if op == nil {
			return
		}
		cfg.op = op
	}
}

// WithStall keeps both ready flags deasserted forever.
func WithStall() Option {
	return func(cfg *config) {
		cfg.stall = true
	}
}

// Stats holds the activity counters of a device model.
type Stats struct {
	Edges      uint64 // clock edges seen
	Resets     uint64 // edges sampled with RST_N low
	Writes     uint64 // committed writes
	Reads      uint64 // committed reads
	Pops       uint64 // words read out of FIFO Y
	Pushes     uint64 // words moved into FIFO Y
	Overflows  uint64 // writes to a full input FIFO
	Underflows uint64 // reads of an empty FIFO Y
	Unknown    uint64 // accesses to unmapped addresses
}

// Model is a cycle-based model of the OR-FIFO device.
// It must be mounted on the rising edges of its clock.
type Model struct {
	msg *log.Logger
	cfg config

	a, b, y fifo

	stats Stats
}

// New returns a new device model.
func New(opts ...Option) *Model {
	cfg := config{
		msg:   log.New(os.Stdout, "dut: ", 0),
		depth: defaultDepth,
		op:    Or,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Model{
		msg: cfg.msg,
		cfg: cfg,
		a:   newFIFO(cfg.depth),
		b:   newFIFO(cfg.depth),
		y:   newFIFO(cfg.depth),
	}
}

// Depth returns the depth of the FIFOs.
func (m *Model) Depth() int { return m.cfg.depth }

// Stats returns the activity counters of the model.
func (m *Model) Stats() Stats { return m.stats }

// Len returns the number of words held in FIFOs A, B and Y.
func (m *Model) Len() (a, b, y int) {
	return m.a.len(), m.b.len(), m.y.len()
}

// RisingEdge samples the bus and updates the state of the device.
func (m *Model) RisingEdge(w bus.Wires) {
	m.stats.Edges++

	if w.Get(bus.RSTN)&1 == 0 {
		m.stats.Resets++
		m.a.reset()
		m.b.reset()
		m.y.reset()
		w.Set(bus.ReadRdy, 0)
		w.Set(bus.WriteRdy, 0)
		return
	}

	if w.Get(bus.WriteEn)&1 == 1 {
		m.write(bus.Address(w.Get(bus.WriteAddr)), w.Get(bus.WriteData))
	}
	if w.Get(bus.ReadEn)&1 == 1 {
		w.Set(bus.ReadData, m.read(bus.Address(w.Get(bus.ReadAddr))))
	}

	if !m.a.empty() && !m.b.empty() && !m.y.full() {
		a, _ := m.a.pop()
		b, _ := m.b.pop()
		m.y.push(m.cfg.op(a, b))
		m.stats.Pushes++
	}

	rdy := uint64(1)
	if m.cfg.stall {
		rdy = 0
	}
	w.Set(bus.ReadRdy, rdy)
	w.Set(bus.WriteRdy, rdy)
}

func (m *Model) write(addr bus.Address, v uint64) {
	m.stats.Writes++

	var q *fifo
	switch addr {
	case bus.WritePortA:
		q = &m.a
	case bus.WritePortB:
		q = &m.b
	default:
		m.stats.Unknown++
		m.msg.Printf("write of %d to unmapped address %v", v, addr)
		return
	}

	if !q.push(v) {
		m.stats.Overflows++
		m.msg.Printf("write of %d to full FIFO (%v): word dropped", v, addr)
	}
}

func (m *Model) read(addr bus.Address) uint64 {
	m.stats.Reads++

	switch addr {
	case bus.StatusA:
		return flag(!m.a.full())
	case bus.StatusB:
		return flag(!m.b.full())
	case bus.StatusY:
		return flag(!m.y.empty())
	case bus.ReadPortY:
		v, ok := m.y.pop()
		if !ok {
			m.stats.Underflows++
			m.msg.Printf("read of empty FIFO (%v)", addr)
			return 0
		}
		m.stats.Pops++
		return v
	default:
		m.stats.Unknown++
		m.msg.Printf("read of unmapped address %v", addr)
		return 0
	}
}

func flag(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}
