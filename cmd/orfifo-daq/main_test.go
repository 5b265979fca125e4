// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/orfifo/tb"
)

func TestCycle(t *testing.T) {
	for _, depth := range []int{1, 2, 8} {
		dev := newBench("test")
		dev.depth = depth
		dev.cycles = 3

		err := dev.cycle(context.Background())
		if err != nil {
			t.Fatalf("depth=%d: could not run cycle: %+v", depth, err)
		}

		want := tb.Vectors()
		if got := len(dev.data); got != len(want) {
			t.Fatalf("depth=%d: invalid number of results: got=%d, want=%d", depth, got, len(want))
		}

		ctx := tdaq.Context{Ctx: context.Background()}
		for i, vec := range want {
			var frame tdaq.Frame
			err := dev.vectors(ctx, &frame)
			if err != nil {
				t.Fatalf("depth=%d: could not read output frame #%d: %+v", depth, i, err)
			}
			cycle, res, ok, err := decodeResult(bytes.NewReader(frame.Body))
			if err != nil {
				t.Fatalf("depth=%d: could not decode frame #%d: %+v", depth, i, err)
			}
			if cycle != 3 {
				t.Fatalf("depth=%d: invalid cycle: got=%d, want=%d", depth, cycle, 3)
			}
			if res.Vector != vec {
				t.Fatalf("depth=%d: invalid vector #%d: got=%v, want=%v", depth, i, res.Vector, vec)
			}
			if !ok || res.Got != vec.Want() {
				t.Fatalf("depth=%d: invalid output for vector %v: got=%d, want=%d", depth, vec, res.Got, vec.Want())
			}
		}
	}
}

func TestCycleCanceled(t *testing.T) {
	dev := newBench("test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := dev.cycle(ctx)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if isAssertion(err) {
		t.Fatalf("invalid error: %+v", err)
	}
}

func TestVectorsDone(t *testing.T) {
	dev := newBench("test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	frame := tdaq.Frame{Body: []byte("stale")}
	err := dev.vectors(tdaq.Context{Ctx: ctx}, &frame)
	if err != nil {
		t.Fatalf("could not read output frame: %+v", err)
	}
	if frame.Body != nil {
		t.Fatalf("invalid frame body: got=%q, want nil", frame.Body)
	}
}

func TestEncodeFailure(t *testing.T) {
	res := tb.Result{
		Vector: tb.Vector{A: 1, B: 1},
		Want:   1,
		Got:    0,
	}

	buf := new(bytes.Buffer)
	err := encodeResult(buf, 7, res)
	if err != nil {
		t.Fatalf("could not encode result: %+v", err)
	}

	cycle, got, ok, err := decodeResult(buf)
	if err != nil {
		t.Fatalf("could not decode result: %+v", err)
	}
	if cycle != 7 || ok || got.Got != 0 || got.Want != 1 || got.Vector != res.Vector {
		t.Fatalf("invalid result: cycle=%d, ok=%v, res=%+v", cycle, ok, got)
	}

	_, _, _, err = decodeResult(bytes.NewReader(buf.Bytes()[:4]))
	if err == nil {
		t.Fatalf("expected an error decoding a truncated frame")
	}
}
