// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memsig exposes device pins mapped onto 32-bit registers as a
// bus.Signals.
//
// Each signal is bound to one little-endian register of a memory window,
// typically a /dev/mem mapping of a bridge between a CPU and an FPGA
// fabric. The clock is sampled through its register: memsig is meant for
// devices whose clock is slow enough (or single-stepped) to be observed
// from software.
package memsig // import "github.com/go-lpc/orfifo/memsig"

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-lpc/orfifo/bus"
	"github.com/go-lpc/orfifo/internal/mmap"
)

// Window is a register window.
type Window interface {
	io.ReaderAt
	io.WriterAt
}

type reg32 struct {
	r func() uint32
	w func(v uint32)
}

func newReg32(b *Bus, rw Window, offset int64) reg32 {
	return reg32{
		r: func() uint32 {
			return b.readU32(rw, offset)
		},
		w: func(v uint32) {
			b.writeU32(rw, offset, v)
		},
	}
}

// Layout maps each signal to the offset of its register.
type Layout map[bus.Signal]int64

// DefaultLayout returns the register layout of the reference firmware:
// one 32-bit register per pin, in pin order.
func DefaultLayout() Layout {
	lay := make(Layout, len(bus.Pins))
	for i, pin := range bus.Pins {
		lay[pin] = int64(4 * i)
	}
	return lay
}

func (lay Layout) validate(span int64) error {
	for _, pin := range bus.Pins {
		off, ok := lay[pin]
		if !ok {
			return fmt.Errorf("memsig: no register for signal %q", pin)
		}
		if off < 0 || off%4 != 0 {
			return fmt.Errorf("memsig: invalid register offset 0x%x for signal %q", off, pin)
		}
		if span > 0 && off+4 > span {
			return fmt.Errorf(
				"memsig: register 0x%x for signal %q outside of window (span=0x%x)",
				off, pin, span,
			)
		}
	}
	return nil
}

type config struct {
	msg    *log.Logger
	layout Layout
	unit   time.Duration // wall-clock duration of one bus time unit
	poll   time.Duration // clock register sampling period
}

// Option configures a Bus.
type Option func(*config)

// WithLogger sets the logger of the bus.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithLayout sets the register layout of the bus.
func WithLayout(lay Layout) Option {
	return func(cfg *config) {
		cfg.layout = lay
	}
}

// WithTimeUnit sets the wall-clock duration of one bus time unit.
func WithTimeUnit(d time.Duration) Option {
	return func(cfg *config) {
		if d <= 0 {
			return
		}
		cfg.unit = d
	}
}

// WithClockPoll sets the period at which the clock register is sampled
// while waiting for a rising edge.
func WithClockPoll(d time.Duration) Option {
	return func(cfg *config) {
		if d <= 0 {
			return
		}
		cfg.poll = d
	}
}

// Bus is a register-mapped signal interface.
//
// Register access errors are sticky: the first one is kept, and all
// subsequent accesses are no-ops. Wait and RisingEdge report it.
type Bus struct {
	msg  *log.Logger
	cfg  config
	regs map[bus.Signal]reg32
	mem  io.Closer

	err  error
	xbuf [4]byte
}

// New returns a bus accessing its registers through rw.
func New(rw Window, opts ...Option) (*Bus, error) {
	return newBus(rw, 0, opts)
}

func newBus(rw Window, span int64, opts []Option) (*Bus, error) {
	cfg := config{
		msg:    log.New(os.Stdout, "memsig: ", 0),
		layout: DefaultLayout(),
		unit:   time.Nanosecond,
		poll:   time.Microsecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	err := cfg.layout.validate(span)
	if err != nil {
		return nil, err
	}

	b := &Bus{
		msg:  cfg.msg,
		cfg:  cfg,
		regs: make(map[bus.Signal]reg32, len(cfg.layout)),
	}
	for sig, off := range cfg.layout {
		b.regs[sig] = newReg32(b, rw, off)
	}
	return b, nil
}

// Open maps the register window [base, base+span) of the devmem device
// file (usually /dev/mem) and returns a bus over it.
func Open(devmem string, base, span int64, opts ...Option) (*Bus, error) {
	f, err := os.OpenFile(devmem, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("memsig: could not open %q: %w", devmem, err)
	}
	defer f.Close()

	h, err := mmap.Map(f, base, span)
	if err != nil {
		return nil, fmt.Errorf("memsig: could not map register window: %w", err)
	}

	b, err := newBus(h, span, opts)
	if err != nil {
		_ = h.Close()
		return nil, err
	}
	b.mem = h
	b.msg.Printf("mapped %q [0x%x, +0x%x)", devmem, base, span)

	return b, nil
}

// Close releases the register window, if owned by the bus.
func (b *Bus) Close() error {
	if b.mem == nil {
		return nil
	}
	err := b.mem.Close()
	b.mem = nil
	if err != nil {
		return fmt.Errorf("memsig: could not unmap register window: %w", err)
	}
	return nil
}

// Err returns the first register access error, if any.
func (b *Bus) Err() error { return b.err }

// Get returns the value of the register bound to sig.
func (b *Bus) Get(sig bus.Signal) uint64 {
	reg, ok := b.regs[sig]
	if !ok {
		b.fail(fmt.Errorf("memsig: unmapped signal %q", sig))
		return 0
	}
	return uint64(reg.r())
}

// Set writes v to the register bound to sig.
// Only the low 32 bits of v are written.
func (b *Bus) Set(sig bus.Signal, v uint64) {
	reg, ok := b.regs[sig]
	if !ok {
		b.fail(fmt.Errorf("memsig: unmapped signal %q", sig))
		return
	}
	if v>>32 != 0 {
		b.msg.Printf("value 0x%x truncated to 32 bits for signal %q", v, sig)
	}
	reg.w(uint32(v))
}

// Wait sleeps for d bus time units.
func (b *Bus) Wait(ctx context.Context, d bus.Duration) error {
	if b.err != nil {
		return b.err
	}
	if d <= 0 {
		return ctx.Err()
	}
	return sleep(ctx, time.Duration(d)*b.cfg.unit)
}

// RisingEdge blocks until the register bound to sig goes from 0 to 1.
func (b *Bus) RisingEdge(ctx context.Context, sig bus.Signal) error {
	prev := b.Get(sig) & 1
	for {
		if b.err != nil {
			return b.err
		}
		err := sleep(ctx, b.cfg.poll)
		if err != nil {
			return err
		}
		cur := b.Get(sig) & 1
		if prev == 0 && cur == 1 {
			return b.err
		}
		prev = cur
	}
}

func (b *Bus) fail(err error) {
	if b.err != nil {
		return
	}
	b.err = err
}

func (b *Bus) readU32(r io.ReaderAt, off int64) uint32 {
	if b.err != nil {
		return 0
	}
	_, b.err = r.ReadAt(b.xbuf[:4], off)
	if b.err != nil {
		b.err = fmt.Errorf("memsig: could not read register 0x%x: %w", off, b.err)
		return 0
	}
	return binary.LittleEndian.Uint32(b.xbuf[:4])
}

func (b *Bus) writeU32(w io.WriterAt, off int64, v uint32) {
	if b.err != nil {
		return
	}
	binary.LittleEndian.PutUint32(b.xbuf[:4], v)
	_, b.err = w.WriteAt(b.xbuf[:4], off)
	if b.err != nil {
		b.err = fmt.Errorf("memsig: could not write register 0x%x: %w", off, b.err)
		return
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	tck := time.NewTimer(d)
	defer tck.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tck.C:
		return nil
	}
}

var (
	_ bus.Signals = (*Bus)(nil)
)
