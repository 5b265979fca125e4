// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tb drives the OR-FIFO device through its exhaustive test
// sequence.
//
// For every input vector (A,B), the driver writes A and B into the input
// FIFOs, reads the output FIFO back and checks the result equals A|B.
// The status register of each FIFO is read and logged before the
// corresponding access, but the driver never waits on it: a full input
// FIFO or an empty output FIFO is reported, and the access proceeds.
package tb // import "github.com/go-lpc/orfifo/tb"

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/go-lpc/orfifo/bus"
)

const (
	defaultPeriod = 10 * bus.NS
	defaultSettle = 10 * bus.NS
)

// Vector is a pair of input words.
type Vector struct {
	A, B uint64
}

// Want returns the expected output of the device for v.
func (v Vector) Want() uint64 { return v.A | v.B }

func (v Vector) String() string {
	return fmt.Sprintf("(A=%d, B=%d)", v.A, v.B)
}

// Vectors returns all the single-bit input vectors, in the order they are
// applied by default.
func Vectors() []Vector {
	return []Vector{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
}

// AssertionError reports a read-back value different from the expected one.
type AssertionError struct {
	Vector Vector
	Want   uint64
	Got    uint64
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf(
		"tb: invalid output for vector %v: got=%d, want=%d",
		e.Vector, e.Got, e.Want,
	)
}

// Result is the outcome of one input vector.
type Result struct {
	Vector Vector
	Status [3]Status // status of FIFOs A, B and Y before their access
	Want   uint64
	Got    uint64
}

// OK reports whether the read-back value matched.
func (res Result) OK() bool { return res.Got == res.Want }

// Report collects the results of a run.
type Report struct {
	Results []Result
}

// OK reports whether all the applied vectors passed.
func (rep Report) OK() bool {
	for _, res := range rep.Results {
		if !res.OK() {
			return false
		}
	}
	return true
}

// Clocker is implemented by signal interfaces able to generate a clock.
type Clocker interface {
	StartClock(ctx context.Context, sig bus.Signal, period bus.Duration)
}

type config struct {
	msg     *log.Logger
	period  bus.Duration
	settle  bus.Duration
	vectors []Vector
	engine  []bus.Option
	notify  func(Result)
}

// Option configures a Driver.
type Option func(*config)

// WithLogger sets the logger used to report the progress of a run.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithClockPeriod sets the period of the generated clock.
func WithClockPeriod(d bus.Duration) Option {
	return func(cfg *config) {
		if d <= 0 {
			return
		}
		cfg.period = d
	}
}

// WithSettle sets the delay waited after each vector.
func WithSettle(d bus.Duration) Option {
	return func(cfg *config) {
		if d < 0 {
			d = 0
		}
		cfg.settle = d
	}
}

// WithVectors replaces the default input vectors.
func WithVectors(vs []Vector) Option {
	return func(cfg *config) {
		cfg.vectors = append([]Vector(nil), vs...)
	}
}

// WithBusOptions configures the transaction engine of the driver.
func WithBusOptions(opts ...bus.Option) Option {
	return func(cfg *config) {
		cfg.engine = append(cfg.engine, opts...)
	}
}

// WithNotify registers a function called with each completed result,
// including a failing one.
func WithNotify(f func(Result)) Option {
	return func(cfg *config) {
		cfg.notify = f
	}
}

// Driver applies input vectors to the device and checks its output.
type Driver struct {
	sig bus.Signals
	msg *log.Logger
	cfg config
	eng *bus.Engine
}

// NewDriver returns a driver for the device behind sig.
func NewDriver(sig bus.Signals, opts ...Option) *Driver {
	cfg := config{
		msg:     log.New(os.Stdout, "tb: ", 0),
		period:  defaultPeriod,
		settle:  defaultSettle,
		vectors: Vectors(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Driver{
		sig: sig,
		msg: cfg.msg,
		cfg: cfg,
		eng: bus.NewEngine(sig, cfg.engine...),
	}
}

// Engine returns the transaction engine used by the driver.
func (drv *Driver) Engine() *bus.Engine { return drv.eng }

// Run resets the device and applies all input vectors.
//
// When sig implements Clocker, the clock is driven low and started
// first. Otherwise the clock is assumed to be running already.
//
// Run stops at the first failure. A mismatching output is reported as an
// *AssertionError. The returned report holds the results of all the
// vectors applied so far, the failing one included.
func (drv *Driver) Run(ctx context.Context) (Report, error) {
	var rep Report

	if clk, ok := drv.sig.(Clocker); ok {
		drv.sig.Set(bus.CLK, 0)
		clk.StartClock(ctx, bus.CLK, drv.cfg.period)
	}

	err := bus.Reset(ctx, drv.sig)
	if err != nil {
		return rep, fmt.Errorf("tb: could not reset device: %w", err)
	}
	drv.msg.Printf("device reset")

	for _, vec := range drv.cfg.vectors {
		res, err := drv.apply(ctx, vec)
		var aerr *AssertionError
		if err == nil || errors.As(err, &aerr) {
			rep.Results = append(rep.Results, res)
			if drv.cfg.notify != nil {
				drv.cfg.notify(res)
			}
		}
		if err != nil {
			return rep, err
		}

		err = drv.sig.Wait(ctx, drv.cfg.settle)
		if err != nil {
			return rep, fmt.Errorf("tb: could not settle after vector %v: %w", vec, err)
		}
	}

	drv.msg.Printf("%d vectors passed", len(rep.Results))
	return rep, nil
}

func (drv *Driver) apply(ctx context.Context, vec Vector) (Result, error) {
	res := Result{
		Vector: vec,
		Want:   vec.Want(),
	}

	for _, in := range []struct {
		fifo FIFO
		port bus.Address
		v    uint64
	}{
		{FIFOA, bus.WritePortA, vec.A},
		{FIFOB, bus.WritePortB, vec.B},
	} {
		st, err := CheckStatus(ctx, drv.eng, in.fifo, drv.msg)
		if err != nil {
			return res, fmt.Errorf("tb: vector %v: %w", vec, err)
		}
		res.Status[in.fifo] = st

		err = drv.eng.Write(ctx, in.port, in.v)
		if err != nil {
			return res, fmt.Errorf("tb: vector %v: could not write FIFO %v: %w", vec, in.fifo, err)
		}
	}

	st, err := CheckStatus(ctx, drv.eng, FIFOY, drv.msg)
	if err != nil {
		return res, fmt.Errorf("tb: vector %v: %w", vec, err)
	}
	res.Status[FIFOY] = st

	res.Got, err = drv.eng.Read(ctx, bus.ReadPortY)
	if err != nil {
		return res, fmt.Errorf("tb: vector %v: could not read FIFO Y: %w", vec, err)
	}

	if !res.OK() {
		drv.msg.Printf("vector %v: got=%d, want=%d", vec, res.Got, res.Want)
		return res, &AssertionError{Vector: vec, Want: res.Want, Got: res.Got}
	}
	drv.msg.Printf("vector %v: got=%d", vec, res.Got)
	return res, nil
}
