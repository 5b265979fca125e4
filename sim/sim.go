// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sim provides a cooperative discrete-event simulation kernel
// exposing device pins through the bus.Signals interface.
//
// Processes run as goroutines, but the kernel hands control to exactly one
// of them at a time: a process runs until it waits for some time to
// elapse or for a clock edge, and the kernel then resumes the next one.
// All accesses to the simulated signals are thus serialized by
// construction.
package sim // import "github.com/go-lpc/orfifo/sim"

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/go-lpc/orfifo/bus"
)

var (
	// ErrDeadlock is returned by Run when the main process is blocked and no
	// other process or timed event can ever resume it.
	ErrDeadlock = errors.New("sim: deadlock")

	// ErrStopped is returned to suspended processes once the kernel stopped.
	ErrStopped = errors.New("sim: stopped")

	// ErrTimeLimit is returned by Run when the simulation time exceeds the
	// limit set with WithTimeLimit.
	ErrTimeLimit = errors.New("sim: time limit reached")

	errReused = errors.New("sim: kernel already ran")
)

// Component is a clocked model of (a part of) a device.
type Component interface {
	// RisingEdge is called on every rising edge of the clock the component
	// is mounted on, before any process waiting for that edge is resumed.
	RisingEdge(w bus.Wires)
}

// Option configures a simulation kernel.
type Option func(*Sim)

// WithLogger sets the logger used by the kernel.
func WithLogger(msg *log.Logger) Option {
	return func(s *Sim) {
		s.msg = msg
	}
}

// WithTimeLimit stops the simulation with ErrTimeLimit once the simulation
// time goes past limit. A zero limit (the default) runs forever.
func WithTimeLimit(limit bus.Duration) Option {
	return func(s *Sim) {
		s.limit = limit
	}
}

// Sim is a simulation kernel.
type Sim struct {
	msg   *log.Logger
	limit bus.Duration

	now  bus.Duration
	seq  uint64
	sigs map[bus.Signal]uint64

	evts  events
	ready []*Proc
	edges map[bus.Signal][]*Proc
	comps map[bus.Signal][]Component

	yield chan *Proc
	quit  chan struct{}
}

// New returns a new simulation kernel.
// All signals start at 0.
func New(opts ...Option) *Sim {
	s := &Sim{
		msg:   log.New(io.Discard, "sim: ", 0),
		sigs:  make(map[bus.Signal]uint64),
		edges: make(map[bus.Signal][]*Proc),
		comps: make(map[bus.Signal][]Component),
		yield: make(chan *Proc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mount attaches a component to the rising edges of clk.
func (s *Sim) Mount(clk bus.Signal, c Component) {
	s.comps[clk] = append(s.comps[clk], c)
}

// Now returns the current simulation time.
func (s *Sim) Now() bus.Duration { return s.now }

// Get returns the current value of sig.
func (s *Sim) Get(sig bus.Signal) uint64 {
	return s.sigs[sig]
}

// Set drives sig to v.
//
// A 0->1 transition of the least significant bit of sig is a rising edge:
// components mounted on sig are updated and the processes waiting for that
// edge are made runnable.
func (s *Sim) Set(sig bus.Signal, v uint64) {
	old := s.sigs[sig]
	s.sigs[sig] = v
	if old&1 == 0 && v&1 == 1 {
		s.rise(sig)
	}
}

func (s *Sim) rise(sig bus.Signal) {
	for _, c := range s.comps[sig] {
		c.RisingEdge(s)
	}
	if ps := s.edges[sig]; len(ps) > 0 {
		s.ready = append(s.ready, ps...)
		s.edges[sig] = nil
	}
}

// Run runs the simulation until main returns.
//
// Run returns the error returned by main, the first error returned by any
// other process, or a kernel error (ErrDeadlock, ErrTimeLimit, ctx.Err()).
// Processes still suspended when Run returns are resumed with ErrStopped.
// A kernel can only be run once.
func (s *Sim) Run(ctx context.Context, main func(ctx context.Context, p *Proc) error) error {
	if s.quit != nil {
		return errReused
	}
	s.quit = make(chan struct{})
	defer close(s.quit)

	top := s.spawn(ctx, "main", main)
	for {
		err := ctx.Err()
		if err != nil {
			return fmt.Errorf("sim: run interrupted at t=%dns: %w", s.now, err)
		}

		p := s.next()
		if p == nil {
			return fmt.Errorf("sim: no runnable process at t=%dns: %w", s.now, ErrDeadlock)
		}
		if s.limit > 0 && s.now > s.limit {
			return fmt.Errorf("sim: t=%dns: %w", s.now, ErrTimeLimit)
		}

		s.resume(p)
		if !p.done {
			continue
		}
		if p == top {
			return p.err
		}
		if p.err != nil {
			s.msg.Printf("process %q failed at t=%dns: %+v", p.name, s.now, p.err)
			return fmt.Errorf("sim: process %q failed: %w", p.name, p.err)
		}
	}
}

func (s *Sim) spawn(ctx context.Context, name string, fn func(ctx context.Context, p *Proc) error) *Proc {
	p := &Proc{
		s:    s,
		name: name,
		wake: make(chan struct{}),
	}
	go p.run(ctx, fn)
	s.ready = append(s.ready, p)
	return p
}

// next pops the next process to run, advancing the simulation time
// as needed.
func (s *Sim) next() *Proc {
	if len(s.ready) > 0 {
		p := s.ready[0]
		s.ready = s.ready[1:]
		return p
	}
	if s.evts.Len() == 0 {
		return nil
	}
	evt := heap.Pop(&s.evts).(event)
	s.now = evt.at
	return evt.p
}

// resume hands control over to p and waits for it to suspend or finish.
func (s *Sim) resume(p *Proc) {
	p.wake <- struct{}{}
	<-s.yield
}

func (s *Sim) schedule(p *Proc, at bus.Duration) {
	s.seq++
	heap.Push(&s.evts, event{at: at, seq: s.seq, p: p})
}

func (s *Sim) stopped() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

type event struct {
	at  bus.Duration
	seq uint64 // scheduling order, for events at the same time
	p   *Proc
}

type events []event

func (evts events) Len() int { return len(evts) }
func (evts events) Less(i, j int) bool {
	if evts[i].at != evts[j].at {
		return evts[i].at < evts[j].at
	}
	return evts[i].seq < evts[j].seq
}
func (evts events) Swap(i, j int) { evts[i], evts[j] = evts[j], evts[i] }

func (evts *events) Push(x interface{}) {
	*evts = append(*evts, x.(event))
}

func (evts *events) Pop() interface{} {
	old := *evts
	n := len(old)
	evt := old[n-1]
	*evts = old[:n-1]
	return evt
}

var (
	_ bus.Wires      = (*Sim)(nil)
	_ heap.Interface = (*events)(nil)
)
