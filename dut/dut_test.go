// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dut

import (
	"context"
	"fmt"
	"io"
	"log"
	"reflect"
	"testing"

	"github.com/go-lpc/orfifo/bus"
	"github.com/go-lpc/orfifo/sim"
)

type wires map[bus.Signal]uint64

func (w wires) Get(sig bus.Signal) uint64    { return w[sig] }
func (w wires) Set(sig bus.Signal, v uint64) { w[sig] = v }

func newModel(opts ...Option) (*Model, wires) {
	opts = append([]Option{WithLogger(log.New(io.Discard, "", 0))}, opts...)
	w := wires{bus.RSTN: 1}
	return New(opts...), w
}

func write(m *Model, w wires, addr bus.Address, v uint64) {
	w[bus.WriteEn] = 1
	w[bus.WriteAddr] = uint64(addr)
	w[bus.WriteData] = v
	m.RisingEdge(w)
	w[bus.WriteEn] = 0
}

func read(m *Model, w wires, addr bus.Address) uint64 {
	w[bus.ReadEn] = 1
	w[bus.ReadAddr] = uint64(addr)
	m.RisingEdge(w)
	w[bus.ReadEn] = 0
	return w[bus.ReadData]
}

func TestFIFO(t *testing.T) {
	q := newFIFO(3)
	if !q.empty() || q.full() {
		t.Fatalf("invalid initial state")
	}
	for i := 0; i < 3; i++ {
		if !q.push(uint64(i)) {
			t.Fatalf("could not push %d", i)
		}
	}
	if !q.full() {
		t.Fatalf("fifo should be full")
	}
	if q.push(42) {
		t.Fatalf("push to full fifo should fail")
	}

	var got []uint64
	for i := 0; i < 5; i++ {
		// interleave to exercise wrap-around.
		v, ok := q.pop()
		if !ok {
			t.Fatalf("could not pop #%d", i)
		}
		got = append(got, v)
		q.push(uint64(10 + i))
	}
	if want := []uint64{0, 1, 2, 10, 11}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid fifo order:\ngot= %v\nwant=%v", got, want)
	}

	q.reset()
	if _, ok := q.pop(); ok {
		t.Fatalf("pop from reset fifo should fail")
	}
}

func TestOr(t *testing.T) {
	for _, tc := range []struct {
		a, b uint64
		op   Op
		want uint64
	}{
		{0, 0, nil, 0},
		{0, 1, nil, 1},
		{1, 0, nil, 1},
		{1, 1, nil, 1},
		{0x5, 0xa, nil, 0xf},
		{0, 1, func(a, b uint64) uint64 { return a & b }, 0},
		{1, 1, func(a, b uint64) uint64 { return a & b }, 1},
	} {
		t.Run(fmt.Sprintf("a=%d-b=%d", tc.a, tc.b), func(t *testing.T) {
			m, w := newModel(WithOp(tc.op))
			write(m, w, bus.WritePortA, tc.a)
			write(m, w, bus.WritePortB, tc.b)
			if got := read(m, w, bus.StatusY); got != 1 {
				t.Fatalf("invalid status Y: got=%d, want=1", got)
			}
			if got := read(m, w, bus.ReadPortY); got != tc.want {
				t.Fatalf("invalid Y: got=%d, want=%d", got, tc.want)
			}
			if got := read(m, w, bus.StatusY); got != 0 {
				t.Fatalf("invalid status Y: got=%d, want=0", got)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	m, w := newModel(WithDepth(2))

	for _, tc := range []struct {
		addr bus.Address
		want uint64
	}{
		{bus.StatusA, 1},
		{bus.StatusB, 1},
		{bus.StatusY, 0},
	} {
		if got := read(m, w, tc.addr); got != tc.want {
			t.Fatalf("invalid initial %v: got=%d, want=%d", tc.addr, got, tc.want)
		}
	}

	write(m, w, bus.WritePortA, 1)
	if got := read(m, w, bus.StatusA); got != 1 {
		t.Fatalf("invalid status A: got=%d, want=1", got)
	}
	write(m, w, bus.WritePortA, 1)
	if got := read(m, w, bus.StatusA); got != 0 {
		t.Fatalf("invalid status A: got=%d, want=0", got)
	}
	if a, b, y := m.Len(); a != 2 || b != 0 || y != 0 {
		t.Fatalf("invalid occupancy: got=(%d,%d,%d), want=(2,0,0)", a, b, y)
	}

	write(m, w, bus.WritePortA, 1)
	if got, want := m.Stats().Overflows, uint64(1); got != want {
		t.Fatalf("invalid overflows: got=%d, want=%d", got, want)
	}

	// one word of B lets one word of A through.
	write(m, w, bus.WritePortB, 0)
	if a, b, y := m.Len(); a != 1 || b != 0 || y != 1 {
		t.Fatalf("invalid occupancy: got=(%d,%d,%d), want=(1,0,1)", a, b, y)
	}
	if got := read(m, w, bus.StatusA); got != 1 {
		t.Fatalf("invalid status A: got=%d, want=1", got)
	}
}

func TestBackPressure(t *testing.T) {
	m, w := newModel(WithDepth(1))

	write(m, w, bus.WritePortA, 1)
	write(m, w, bus.WritePortB, 0)
	write(m, w, bus.WritePortA, 0)
	write(m, w, bus.WritePortB, 0)

	// Y is full: the second pair stays in the input FIFOs.
	if a, b, y := m.Len(); a != 1 || b != 1 || y != 1 {
		t.Fatalf("invalid occupancy: got=(%d,%d,%d), want=(1,1,1)", a, b, y)
	}

	if got := read(m, w, bus.ReadPortY); got != 1 {
		t.Fatalf("invalid Y: got=%d, want=1", got)
	}
	// the pipeline moved the second pair on the same edge.
	if a, b, y := m.Len(); a != 0 || b != 0 || y != 1 {
		t.Fatalf("invalid occupancy: got=(%d,%d,%d), want=(0,0,1)", a, b, y)
	}
	if got := read(m, w, bus.ReadPortY); got != 0 {
		t.Fatalf("invalid Y: got=%d, want=0", got)
	}
}

func TestUnderflow(t *testing.T) {
	m, w := newModel()
	if got := read(m, w, bus.ReadPortY); got != 0 {
		t.Fatalf("invalid Y: got=%d, want=0", got)
	}
	read(m, w, 0x42)
	write(m, w, 0x42, 1)

	want := Stats{
		Edges:      3,
		Writes:     1,
		Reads:      2,
		Underflows: 1,
		Unknown:    2,
	}
	if got := m.Stats(); got != want {
		t.Fatalf("invalid stats:\ngot= %+v\nwant=%+v", got, want)
	}
}

func TestReset(t *testing.T) {
	m, w := newModel()
	write(m, w, bus.WritePortA, 1)
	write(m, w, bus.WritePortB, 1)
	write(m, w, bus.WritePortA, 1)
	if w[bus.ReadRdy] != 1 || w[bus.WriteRdy] != 1 {
		t.Fatalf("ready flags should be asserted")
	}

	w[bus.RSTN] = 0
	write(m, w, bus.WritePortB, 1) // ignored while in reset
	if w[bus.ReadRdy] != 0 || w[bus.WriteRdy] != 0 {
		t.Fatalf("ready flags should be deasserted")
	}
	if a, b, y := m.Len(); a != 0 || b != 0 || y != 0 {
		t.Fatalf("invalid occupancy: got=(%d,%d,%d), want=(0,0,0)", a, b, y)
	}

	w[bus.RSTN] = 1
	m.RisingEdge(w)
	if w[bus.ReadRdy] != 1 || w[bus.WriteRdy] != 1 {
		t.Fatalf("ready flags should be asserted")
	}
	if got, want := m.Stats().Resets, uint64(1); got != want {
		t.Fatalf("invalid resets: got=%d, want=%d", got, want)
	}
}

func TestStall(t *testing.T) {
	m, w := newModel(WithStall())
	for i := 0; i < 4; i++ {
		m.RisingEdge(w)
		if w[bus.ReadRdy] != 0 || w[bus.WriteRdy] != 0 {
			t.Fatalf("ready flags should stay deasserted")
		}
	}
}

func TestDepth(t *testing.T) {
	for _, tc := range []struct {
		depth int
		want  int
	}{
		{0, defaultDepth},
		{-1, defaultDepth},
		{1, 1},
		{16, 16},
	} {
		m := New(WithDepth(tc.depth))
		if got := m.Depth(); got != tc.want {
			t.Fatalf("invalid depth(%d): got=%d, want=%d", tc.depth, got, tc.want)
		}
	}
}

func TestSimulated(t *testing.T) {
	var (
		m = New(WithLogger(log.New(io.Discard, "", 0)))
		s = sim.New()
	)
	s.Mount(bus.CLK, m)

	var got []uint64
	err := s.Run(context.Background(), func(ctx context.Context, p *sim.Proc) error {
		p.StartClock(ctx, bus.CLK, 10)
		err := bus.Reset(ctx, p)
		if err != nil {
			return err
		}
		eng := bus.NewEngine(p, bus.WithLogger(log.New(io.Discard, "", 0)))
		for _, v := range [][2]uint64{{0, 0}, {0, 1}, {1, 0}, {1, 1}} {
			err = eng.Write(ctx, bus.WritePortA, v[0])
			if err != nil {
				return err
			}
			err = eng.Write(ctx, bus.WritePortB, v[1])
			if err != nil {
				return err
			}
			y, err := eng.Read(ctx, bus.ReadPortY)
			if err != nil {
				return err
			}
			got = append(got, y)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("could not run simulation: %+v", err)
	}

	if want := []uint64{0, 1, 1, 1}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid read-back:\ngot= %v\nwant=%v", got, want)
	}
	if st := m.Stats(); st.Resets == 0 || st.Overflows != 0 || st.Underflows != 0 {
		t.Fatalf("invalid stats: %+v", st)
	}
}
