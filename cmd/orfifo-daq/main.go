// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command orfifo-daq starts a TDAQ process running the OR-FIFO test bench.
//
// Once started, the process repeatedly applies the test vectors to a
// simulated device and streams the outcome of each vector on its /vectors
// output.
//
// The /config command accepts an optional body holding the depth of the
// device FIFOs, encoded as a uint32.
package main // import "github.com/go-lpc/orfifo/cmd/orfifo-daq"

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/orfifo/bus"
	"github.com/go-lpc/orfifo/dut"
	"github.com/go-lpc/orfifo/sim"
	"github.com/go-lpc/orfifo/tb"
)

func main() {
	cmd := flags.New()

	dev := newBench(cmd.Args[0])

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/vectors", dev.vectors)

	srv.RunHandle(dev.run)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

type bench struct {
	name  string
	depth int
	pause time.Duration // delay between two test cycles

	cycles int // number of completed test cycles
	fails  int // number of failed test cycles
	data   chan []byte
}

func newBench(name string) *bench {
	return &bench{
		name:  name,
		depth: 2,
		pause: 100 * time.Millisecond,
		data:  make(chan []byte, 1024),
	}
}

func (dev *bench) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	if len(req.Body) == 0 {
		return nil
	}

	dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
	depth := int(dec.ReadU32())
	if err := dec.Err(); err != nil {
		ctx.Msg.Errorf("could not decode /config request: %+v", err)
		return fmt.Errorf("could not decode /config request: %w", err)
	}
	if depth < 1 {
		ctx.Msg.Errorf("invalid FIFO depth %d", depth)
		return fmt.Errorf("invalid FIFO depth %d", depth)
	}

	dev.depth = depth
	ctx.Msg.Infof("FIFO depth: %d", dev.depth)
	return nil
}

func (dev *bench) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	dev.reset()
	return nil
}

func (dev *bench) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	dev.reset()
	return nil
}

func (dev *bench) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command... (depth=%d)", dev.depth)
	return nil
}

func (dev *bench) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command... -> cycles=%d, fails=%d", dev.cycles, dev.fails)
	return nil
}

func (dev *bench) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return nil
}

func (dev *bench) reset() {
	dev.cycles = 0
	dev.fails = 0
	dev.data = make(chan []byte, 1024)
}

func (dev *bench) vectors(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-dev.data:
		dst.Body = data
	}
	return nil
}

func (dev *bench) run(ctx tdaq.Context) error {
	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		default:
		}

		err := dev.cycle(ctx.Ctx)
		switch {
		case err == nil:
			// ok.
		case errors.Is(err, context.Canceled):
			return nil
		case isAssertion(err):
			dev.fails++
			ctx.Msg.Errorf("cycle %d failed: %+v", dev.cycles, err)
		default:
			ctx.Msg.Errorf("could not run cycle %d: %+v", dev.cycles, err)
			return fmt.Errorf("could not run cycle %d: %w", dev.cycles, err)
		}
		dev.cycles++

		select {
		case <-ctx.Ctx.Done():
			return nil
		case <-time.After(dev.pause):
		}
	}
}

// cycle applies all the test vectors to a freshly reset simulated device,
// and queues the outcome of each vector on the /vectors output.
func (dev *bench) cycle(ctx context.Context) error {
	var (
		id  = uint32(dev.cycles)
		msg = log.New(io.Discard, "", 0)
		m   = dut.New(dut.WithDepth(dev.depth), dut.WithLogger(msg))
		s   = sim.New()
	)
	s.Mount(bus.CLK, m)

	return s.Run(ctx, func(ctx context.Context, p *sim.Proc) error {
		drv := tb.NewDriver(p,
			tb.WithLogger(msg),
			tb.WithBusOptions(bus.WithLogger(msg)),
			tb.WithNotify(func(res tb.Result) {
				buf := new(bytes.Buffer)
				err := encodeResult(buf, id, res)
				if err != nil {
					return
				}
				select {
				case dev.data <- buf.Bytes():
				case <-ctx.Done():
				}
			}),
		)
		_, err := drv.Run(ctx)
		return err
	})
}

func isAssertion(err error) bool {
	var aerr *tb.AssertionError
	return errors.As(err, &aerr)
}

// encodeResult writes the outcome of a test vector as:
// cycle (u32), A, B, expected and actual outputs (u64), verdict (u8).
func encodeResult(w io.Writer, cycle uint32, res tb.Result) error {
	ok := uint8(0)
	if res.OK() {
		ok = 1
	}

	enc := tdaq.NewEncoder(w)
	enc.WriteU32(cycle)
	enc.WriteU64(res.Vector.A)
	enc.WriteU64(res.Vector.B)
	enc.WriteU64(res.Want)
	enc.WriteU64(res.Got)
	enc.WriteU8(ok)
	if err := enc.Err(); err != nil {
		return fmt.Errorf("could not encode result of vector %v: %w", res.Vector, err)
	}
	return nil
}

func decodeResult(r io.Reader) (uint32, tb.Result, bool, error) {
	var (
		dec   = tdaq.NewDecoder(r)
		res   tb.Result
		cycle = dec.ReadU32()
	)
	res.Vector.A = dec.ReadU64()
	res.Vector.B = dec.ReadU64()
	res.Want = dec.ReadU64()
	res.Got = dec.ReadU64()
	ok := dec.ReadU8() == 1
	if err := dec.Err(); err != nil {
		return 0, res, false, fmt.Errorf("could not decode vector result: %w", err)
	}
	return cycle, res, ok, nil
}
