// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/go-lpc/orfifo/bus"
	"github.com/go-lpc/orfifo/dut"
	"github.com/go-lpc/orfifo/sim"
	"github.com/go-lpc/orfifo/tb"
)

var errQuit = errors.New("quit")

// shell executes console commands against a simulated device.
// It must run within a simulation process.
// Bus transactions give up after timeout ns of unasserted ready flags
// (0: wait forever).
type shell struct {
	p       *sim.Proc
	m       *dut.Model
	eng     *bus.Engine
	msg     *log.Logger
	timeout bus.Duration
}

func newShell(p *sim.Proc, m *dut.Model, timeout bus.Duration, msg *log.Logger) *shell {
	return &shell{
		p:       p,
		m:       m,
		eng:     bus.NewEngine(p, bus.WithLogger(msg), bus.WithTimeout(timeout)),
		msg:     msg,
		timeout: timeout,
	}
}

type command struct {
	args string
	help string
	run  func(sh *shell, ctx context.Context, w io.Writer, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":   {"", "print this help message", (*shell).help},
		"reset":  {"", "reset the device", (*shell).reset},
		"read":   {"ADDR", "read the register at ADDR", (*shell).read},
		"write":  {"ADDR VALUE", "write VALUE to the register at ADDR", (*shell).write},
		"status": {"A|B|Y", "read the status of a FIFO", (*shell).status},
		"run":    {"", "reset the device and apply all test vectors", (*shell).run},
		"wait":   {"N", "let N ns of simulation time elapse", (*shell).wait},
		"stats":  {"", "print the device activity counters", (*shell).stats},
		"time":   {"", "print the simulation time", (*shell).time},
		"quit":   {"", "exit the console", (*shell).quit},
	}
}

func (sh *shell) exec(ctx context.Context, w io.Writer, line string) error {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return nil
	}

	cmd, ok := commands[toks[0]]
	if !ok {
		return fmt.Errorf("unknown command %q (try \"help\")", toks[0])
	}
	return cmd.run(sh, ctx, w, toks[1:])
}

func (sh *shell) help(ctx context.Context, w io.Writer, args []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range names {
		cmd := commands[name]
		fmt.Fprintf(tw, "%s %s\t%s\n", name, cmd.args, cmd.help)
	}
	fmt.Fprintf(tw, "\nADDR is a number (e.g. 0x04) or one of: %s\n", strings.Join(addrNames(), ", "))
	return tw.Flush()
}

func (sh *shell) reset(ctx context.Context, w io.Writer, args []string) error {
	err := bus.Reset(ctx, sh.p)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "device reset (t=%dns)\n", sh.p.Now())
	return nil
}

func (sh *shell) read(ctx context.Context, w io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: read ADDR")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	v, err := sh.eng.Read(ctx, addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%v: %d (0x%x)\n", addr, v, v)
	return nil
}

func (sh *shell) write(ctx context.Context, w io.Writer, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: write ADDR VALUE")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	v, err := strconv.ParseUint(args[1], 0, 64)
	if err != nil {
		return fmt.Errorf("could not parse value %q: %w", args[1], err)
	}
	err = sh.eng.Write(ctx, addr, v)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%v <- %d (0x%x)\n", addr, v, v)
	return nil
}

func (sh *shell) status(ctx context.Context, w io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: status A|B|Y")
	}
	st, err := tb.CheckStatusByName(ctx, sh.eng, strings.ToUpper(args[0]), nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%v\n", st)
	return nil
}

func (sh *shell) run(ctx context.Context, w io.Writer, args []string) error {
	// the clock of the console is already running.
	drv := tb.NewDriver(
		noClock{sh.p},
		tb.WithLogger(sh.msg),
		tb.WithBusOptions(bus.WithLogger(sh.msg), bus.WithTimeout(sh.timeout)),
		tb.WithNotify(func(res tb.Result) {
			verdict := "ok"
			if !res.OK() {
				verdict = "FAIL"
			}
			fmt.Fprintf(w, "vector %v: got=%d, want=%d [%s]\n", res.Vector, res.Got, res.Want, verdict)
		}),
	)
	rep, err := drv.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d vectors passed\n", len(rep.Results))
	return nil
}

func (sh *shell) wait(ctx context.Context, w io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: wait N")
	}
	n, err := strconv.ParseInt(args[0], 0, 64)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid duration %q", args[0])
	}
	err = sh.p.Wait(ctx, bus.Duration(n))
	if err != nil {
		return err
	}
	return sh.time(ctx, w, nil)
}

func (sh *shell) stats(ctx context.Context, w io.Writer, args []string) error {
	a, b, y := sh.m.Len()
	st := sh.m.Stats()
	fmt.Fprintf(w, "depth=%d occupancy: A=%d B=%d Y=%d\n", sh.m.Depth(), a, b, y)
	fmt.Fprintf(w, "edges=%d resets=%d writes=%d reads=%d\n", st.Edges, st.Resets, st.Writes, st.Reads)
	fmt.Fprintf(w, "pushes=%d pops=%d overflows=%d underflows=%d unknown=%d\n",
		st.Pushes, st.Pops, st.Overflows, st.Underflows, st.Unknown,
	)
	return nil
}

func (sh *shell) time(ctx context.Context, w io.Writer, args []string) error {
	fmt.Fprintf(w, "t=%dns\n", sh.p.Now())
	return nil
}

func (sh *shell) quit(ctx context.Context, w io.Writer, args []string) error {
	return errQuit
}

// noClock hides the clock generator of a simulation process.
type noClock struct {
	bus.Signals
}

func addrNames() []string {
	names := make([]string, 0, 6)
	for addr := bus.StatusA; addr <= bus.WritePortB; addr++ {
		names = append(names, addr.String())
	}
	return names
}

func parseAddr(s string) (bus.Address, error) {
	for addr := bus.StatusA; addr <= bus.WritePortB; addr++ {
		if s == addr.String() {
			return addr, nil
		}
	}
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return bus.Address(v), nil
}
