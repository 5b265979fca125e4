// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"context"

	"github.com/go-lpc/orfifo/bus"
)

// Proc is a simulation process.
// It gives the process access to the simulated signals.
type Proc struct {
	s    *Sim
	name string
	wake chan struct{}

	done bool
	err  error
}

func (p *Proc) run(ctx context.Context, fn func(ctx context.Context, p *Proc) error) {
	select {
	case <-p.wake:
	case <-p.s.quit:
		return
	}

	err := fn(ctx, p)
	p.done = true
	p.err = err

	select {
	case p.s.yield <- p:
	case <-p.s.quit:
	}
}

// park hands control back to the kernel until p is resumed.
func (p *Proc) park() error {
	select {
	case p.s.yield <- p:
	case <-p.s.quit:
		return ErrStopped
	}

	select {
	case <-p.wake:
		return nil
	case <-p.s.quit:
		return ErrStopped
	}
}

// Name returns the name of the process.
func (p *Proc) Name() string { return p.name }

// Now returns the current simulation time.
func (p *Proc) Now() bus.Duration { return p.s.now }

// Get returns the current value of sig.
func (p *Proc) Get(sig bus.Signal) uint64 {
	return p.s.Get(sig)
}

// Set drives sig to v.
// Set is a no-op once the kernel stopped.
func (p *Proc) Set(sig bus.Signal, v uint64) {
	if p.s.stopped() {
		return
	}
	p.s.Set(sig, v)
}

// Wait suspends the process for d units of simulation time.
func (p *Proc) Wait(ctx context.Context, d bus.Duration) error {
	err := ctx.Err()
	if err != nil {
		return err
	}
	if p.s.stopped() {
		return ErrStopped
	}
	if d < 0 {
		d = 0
	}
	p.s.schedule(p, p.s.now+d)
	return p.park()
}

// RisingEdge suspends the process until the next rising edge of sig.
func (p *Proc) RisingEdge(ctx context.Context, sig bus.Signal) error {
	err := ctx.Err()
	if err != nil {
		return err
	}
	if p.s.stopped() {
		return ErrStopped
	}
	p.s.edges[sig] = append(p.s.edges[sig], p)
	return p.park()
}

// Go starts a new process running fn.
// The new process runs once the current one suspends.
func (p *Proc) Go(ctx context.Context, name string, fn func(ctx context.Context, p *Proc) error) {
	p.s.spawn(ctx, name, fn)
}

// StartClock starts a free-running process toggling sig with the given
// period. The clock starts high; periods below 2 units are raised to 2.
func (p *Proc) StartClock(ctx context.Context, sig bus.Signal, period bus.Duration) {
	if period < 2 {
		period = 2
	}
	p.Go(ctx, "clock:"+string(sig), clock(sig, period))
}

func clock(sig bus.Signal, period bus.Duration) func(ctx context.Context, p *Proc) error {
	var (
		hi = period / 2
		lo = period - hi
	)
	return func(ctx context.Context, p *Proc) error {
		for {
			p.Set(sig, 1)
			err := p.Wait(ctx, hi)
			if err != nil {
				return ignoreStop(err)
			}
			p.Set(sig, 0)
			err = p.Wait(ctx, lo)
			if err != nil {
				return ignoreStop(err)
			}
		}
	}
}

func ignoreStop(err error) error {
	if err == ErrStopped {
		return nil
	}
	return err
}

var (
	_ bus.Signals = (*Proc)(nil)
)
