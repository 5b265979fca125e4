// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
)

var (
	// ErrTimeout is returned when a ready flag was not asserted within
	// the duration configured with WithTimeout.
	ErrTimeout = errors.New("bus: timeout")

	errInFlight = errors.New("bus: transaction already in flight")
)

type config struct {
	msg     *log.Logger
	step    Duration // ready-flag polling period
	timeout Duration // zero: poll forever
}

func newConfig() config {
	return config{
		msg:  log.New(os.Stdout, "bus: ", 0),
		step: 1 * NS,
	}
}

// Option configures an Engine.
type Option func(*config)

// WithLogger sets the logger used to report transactions.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithPollStep sets the period at which ready flags are sampled.
// Non-positive values are ignored.
func WithPollStep(d Duration) Option {
	return func(cfg *config) {
		if d <= 0 {
			return
		}
		cfg.step = d
	}
}

// WithTimeout bounds the time spent waiting for a ready flag.
// A zero duration (the default) waits forever.
func WithTimeout(d Duration) Option {
	return func(cfg *config) {
		if d < 0 {
			d = 0
		}
		cfg.timeout = d
	}
}

// Engine issues read and write transactions on the device bus.
//
// Each transaction waits for the relevant ready flag, then drives the bus
// for exactly one clock edge. Only one transaction may be in flight at any
// time.
type Engine struct {
	sig Signals
	msg *log.Logger
	cfg config

	busy bool
}

// NewEngine returns a transaction engine driving sig.
func NewEngine(sig Signals, opts ...Option) *Engine {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{
		sig: sig,
		msg: cfg.msg,
		cfg: cfg,
	}
}

// Read reads the register at addr.
//
// Read returns whatever the device presents on read_data at the clock
// edge following the assertion of read_en.
func (eng *Engine) Read(ctx context.Context, addr Address) (uint64, error) {
	err := eng.acquire()
	if err != nil {
		return 0, fmt.Errorf("bus: could not read %v: %w", addr, err)
	}
	defer eng.release()

	eng.msg.Printf("sending read request to address: %v", addr)
	err = eng.await(ctx, ReadRdy)
	if err != nil {
		return 0, fmt.Errorf("bus: could not read %v: %w", addr, err)
	}

	eng.sig.Set(ReadAddr, uint64(addr))
	eng.sig.Set(ReadEn, 1)
	err = eng.sig.RisingEdge(ctx, CLK)
	if err != nil {
		eng.sig.Set(ReadEn, 0)
		return 0, fmt.Errorf("bus: could not commit read of %v: %w", addr, err)
	}
	v := eng.sig.Get(ReadData)
	eng.sig.Set(ReadEn, 0)

	eng.msg.Printf("received data: %d from address: %v", v, addr)
	return v, nil
}

// Write writes v to the register at addr.
//
// A nil error only means the write was committed on the bus: the device
// does not acknowledge writes.
func (eng *Engine) Write(ctx context.Context, addr Address, v uint64) error {
	err := eng.acquire()
	if err != nil {
		return fmt.Errorf("bus: could not write %v: %w", addr, err)
	}
	defer eng.release()

	eng.msg.Printf("sending write request to address: %v with data: %d", addr, v)
	err = eng.await(ctx, WriteRdy)
	if err != nil {
		return fmt.Errorf("bus: could not write %v: %w", addr, err)
	}

	eng.sig.Set(WriteAddr, uint64(addr))
	eng.sig.Set(WriteData, v)
	eng.sig.Set(WriteEn, 1)
	err = eng.sig.RisingEdge(ctx, CLK)
	eng.sig.Set(WriteEn, 0)
	if err != nil {
		return fmt.Errorf("bus: could not commit write of %v: %w", addr, err)
	}

	eng.msg.Printf("data: %d written to address: %v", v, addr)
	return nil
}

// await polls the rdy flag until it reads 1.
func (eng *Engine) await(ctx context.Context, rdy Signal) error {
	var waited Duration
	for eng.sig.Get(rdy) != 1 {
		if eng.cfg.timeout > 0 && waited >= eng.cfg.timeout {
			return fmt.Errorf("%s not asserted after %dns: %w", rdy, waited, ErrTimeout)
		}
		err := eng.sig.Wait(ctx, eng.cfg.step)
		if err != nil {
			return err
		}
		waited += eng.cfg.step
	}
	return nil
}

func (eng *Engine) acquire() error {
	if eng.busy {
		return errInFlight
	}
	eng.busy = true
	return nil
}

func (eng *Engine) release() {
	eng.busy = false
}
