// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command orfifo-sh is an interactive console to a simulated OR-FIFO device.
//
// Usage: orfifo-sh [OPTIONS]
//
// Example:
//
//	$> orfifo-sh -depth=2
//	orfifo> read status-A
//	error: bus: could not read status-A: read_rdy not asserted after 1000ns: bus: timeout
//	orfifo> reset
//	device reset (t=10ns)
//	orfifo> write write-A 1
//	write-A <- 1 (0x1)
//	orfifo> write 0x05 0
//	write-B <- 0 (0x0)
//	orfifo> status Y
//	Y FIFO is not empty
//	orfifo> read read-Y
//	read-Y: 1 (0x1)
//	orfifo> quit
package main // import "github.com/go-lpc/orfifo/cmd/orfifo-sh"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-lpc/orfifo/bus"
	"github.com/go-lpc/orfifo/dut"
	"github.com/go-lpc/orfifo/sim"
	"github.com/peterh/liner"
)

func main() {
	var (
		depth   = flag.Int("depth", 2, "depth of the device FIFOs")
		period  = flag.Int64("period", 10, "clock period, in ns")
		timeout = flag.Int64("timeout", 1000, "ready flags timeout, in ns (0: wait forever)")
		verbose = flag.Bool("v", false, "enable verbose mode")
	)

	flag.Parse()

	log.SetPrefix("orfifo-sh: ")
	log.SetFlags(0)

	msg := log.New(io.Discard, "", 0)
	if *verbose {
		msg = log.New(os.Stdout, "orfifo-sh: ", 0)
	}

	term := newTerm()
	defer term.Close()

	cfg := config{
		depth:   *depth,
		period:  bus.Duration(*period),
		timeout: bus.Duration(*timeout),
	}

	err := xmain(term, os.Stdout, cfg, msg)
	if err != nil {
		term.Close()
		log.Fatalf("%+v", err)
	}
}

type prompter interface {
	Prompt(p string) (string, error)
	AppendHistory(item string)
}

type config struct {
	depth   int          // depth of the device FIFOs
	period  bus.Duration // clock period
	timeout bus.Duration // ready flags timeout
}

// xmain runs the simulation in the background, and feeds it with the
// commands read from term.
func xmain(term prompter, w io.Writer, cfg config, msg *log.Logger) error {
	var (
		reqs = make(chan string)
		resp = make(chan error)
		errc = make(chan error, 1)
		m    = dut.New(dut.WithDepth(cfg.depth), dut.WithLogger(msg))
		s    = sim.New(sim.WithLogger(msg))
	)
	s.Mount(bus.CLK, m)

	go func() {
		errc <- s.Run(context.Background(), func(ctx context.Context, p *sim.Proc) error {
			p.Set(bus.CLK, 0)
			p.StartClock(ctx, bus.CLK, cfg.period)

			sh := newShell(p, m, cfg.timeout, msg)
			for line := range reqs {
				resp <- sh.exec(ctx, w, line)
			}
			return nil
		})
	}()

	defer close(reqs)

	for {
		line, err := term.Prompt("orfifo> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return nil
			}
			return fmt.Errorf("could not read command: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		select {
		case reqs <- line:
		case err := <-errc:
			return fmt.Errorf("simulation stopped: %w", err)
		}

		select {
		case err = <-resp:
		case err := <-errc:
			return fmt.Errorf("simulation stopped: %w", err)
		}

		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			fmt.Fprintf(w, "error: %+v\n", err)
		}
	}
}

type term struct {
	*liner.State
	hist string
}

func newTerm() *term {
	t := &term{State: liner.NewLiner()}
	t.SetCtrlCAborts(true)

	dir, err := os.UserHomeDir()
	if err != nil {
		return t
	}
	t.hist = filepath.Join(dir, ".orfifo_history")

	f, err := os.Open(t.hist)
	if err != nil {
		return t
	}
	defer f.Close()

	_, err = t.ReadHistory(f)
	if err != nil {
		log.Printf("could not read history file: %+v", err)
	}
	return t
}

func (t *term) Close() error {
	if t.State == nil {
		return nil
	}
	defer func() {
		t.State = nil
	}()

	if t.hist != "" {
		f, err := os.Create(t.hist)
		if err == nil {
			_, err = t.WriteHistory(f)
			if err != nil {
				log.Printf("could not write history file: %+v", err)
			}
			_ = f.Close()
		}
	}
	return t.State.Close()
}
