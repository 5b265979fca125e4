// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command orfifo-tb runs the OR-FIFO test bench against a simulated device.
//
// Usage: orfifo-tb [OPTIONS]
//
// Example:
//
//	$> orfifo-tb -depths=1,2,4 -timeout=1000
//	orfifo-tb: depth=1: pass (4 vectors)
//	orfifo-tb: depth=2: pass (4 vectors)
//	orfifo-tb: depth=4: pass (4 vectors)
//
// The suite is run once per FIFO depth, each in its own simulation.
//
// With -devmem, the suite is run once against a device whose signals are
// mapped to the 32-bit registers of the [base, base+span) window of the
// given memory device (usually /dev/mem). The device clock must be running.
//
//	$> orfifo-tb -devmem=/dev/mem -base=0xff200000 -span=0x1000 -timeout=100000
//
// Results may be stored in a MySQL database (-db, or the RESDB_USERNAME,
// RESDB_PASSWORD, RESDB_HOST and RESDB_NAME environment variables) and
// failures reported by mail (-mail, configured through the MAIL_USERNAME,
// MAIL_PASSWORD, MAIL_SERVER, MAIL_PORT and MAIL_TGTS environment variables).
// -last=N lists the N most recent runs stored in the database.
package main // import "github.com/go-lpc/orfifo/cmd/orfifo-tb"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/orfifo/bus"
	"github.com/go-lpc/orfifo/dut"
	"github.com/go-lpc/orfifo/memsig"
	"github.com/go-lpc/orfifo/resdb"
	"github.com/go-lpc/orfifo/sim"
	"github.com/go-lpc/orfifo/tb"
	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		depth   = flag.Int("depth", 2, "depth of the device FIFOs")
		depths  = flag.String("depths", "", "comma-separated list of FIFO depths to test (overrides -depth)")
		timeout = flag.Int64("timeout", 0, "ready flags timeout, in ns (0: wait forever)")
		period  = flag.Int64("period", 10, "clock period, in ns")
		settle  = flag.Int64("settle", 10, "settle delay after each vector, in ns")
		limit   = flag.Int64("limit", 0, "simulation time limit, in ns (0: no limit)")
		opName  = flag.String("op", "or", "device combination (or, and, xor) for fault injection")
		devmem  = flag.String("devmem", "", "path to the memory device of a hardware DUT (default: simulate)")
		base    = flag.Int64("base", 0xff200000, "base address of the DUT register window")
		span    = flag.Int64("span", 0x1000, "size of the DUT register window")
		dsn     = flag.String("db", "", "DSN of the results database")
		last    = flag.Int("last", 0, "list the N most recent runs of the results database and exit")
		doMon   = flag.Bool("pmon", false, "enable pmon monitoring")
		doFreq  = flag.Duration("freq", 1*time.Second, "pmon frequency")
		doMail  = flag.Bool("mail", false, "send a mail alert on failure")
		verbose = flag.Bool("v", false, "enable verbose mode")
	)

	flag.Parse()

	log.SetPrefix("orfifo-tb: ")
	log.SetFlags(0)

	db := dbDSN(*dsn)

	if *last > 0 {
		err := listRuns(os.Stdout, db, *last)
		if err != nil {
			log.Fatalf("could not list runs: %+v", err)
		}
		return
	}

	ds, err := parseDepths(*depth, *depths)
	if err != nil {
		log.Fatalf("could not parse FIFO depths: %+v", err)
	}

	op, err := parseOp(*opName)
	if err != nil {
		log.Fatalf("could not parse device combination: %+v", err)
	}

	cfg := config{
		depths:  ds,
		op:      op,
		timeout: bus.Duration(*timeout),
		period:  bus.Duration(*period),
		settle:  bus.Duration(*settle),
		limit:   bus.Duration(*limit),
		verbose: *verbose,
		devmem:  *devmem,
		base:    *base,
		span:    *span,
	}

	err = xmain(cfg, db, *doMon, *doFreq, *doMail)
	if err != nil {
		log.Fatalf("could not run test bench: %+v", err)
	}
}

func xmain(cfg config, dsn string, doMon bool, freq time.Duration, doMail bool) error {
	if doMon {
		stop, err := monitor(os.Getpid(), freq, "orfifo-tb-pmon.log")
		if err != nil {
			return err
		}
		defer stop()
	}

	var (
		ctx  = context.Background()
		runs []resdb.Run
		err  error
	)
	switch cfg.devmem {
	case "":
		runs, err = run(ctx, cfg)
	default:
		runs, err = runDevice(ctx, cfg)
	}

	if dsn != "" {
		err := store(dsn, runs)
		if err != nil {
			log.Printf("could not store results: %+v", err)
		}
	}

	if err != nil && doMail {
		alertMail(runs)
	}

	return err
}

type config struct {
	depths  []int
	op      dut.Op
	timeout bus.Duration
	period  bus.Duration
	settle  bus.Duration
	limit   bus.Duration
	verbose bool

	devmem string // memory device of a hardware DUT
	base   int64  // base address of the register window
	span   int64  // size of the register window
}

// run runs the test bench once per FIFO depth, concurrently.
// All the runs complete, even when some of them fail.
func run(ctx context.Context, cfg config) ([]resdb.Run, error) {
	var (
		grp  errgroup.Group
		runs = make([]resdb.Run, len(cfg.depths))
	)
	for i := range cfg.depths {
		i := i
		grp.Go(func() error {
			var err error
			runs[i], err = simulate(ctx, cfg, cfg.depths[i])
			return err
		})
	}

	err := grp.Wait()
	for _, run := range runs {
		if run.Verdict != resdb.Pass {
			log.Printf("depth=%d: %s: %s", run.Depth, run.Verdict, run.Error)
			continue
		}
		log.Printf("depth=%d: %s (%d vectors)", run.Depth, run.Verdict, len(run.Results))
	}

	if err != nil {
		return runs, fmt.Errorf("test bench failed: %w", err)
	}
	return runs, nil
}

func simulate(ctx context.Context, cfg config, depth int) (resdb.Run, error) {
	start := time.Now()
	m := dut.New(
		dut.WithDepth(depth),
		dut.WithOp(cfg.op),
		dut.WithLogger(cfg.logger("dut", depth)),
	)
	s := sim.New(
		sim.WithTimeLimit(cfg.limit),
		sim.WithLogger(cfg.logger("sim", depth)),
	)
	s.Mount(bus.CLK, m)

	var rep tb.Report
	err := s.Run(ctx, func(ctx context.Context, p *sim.Proc) error {
		drv := tb.NewDriver(p,
			tb.WithLogger(cfg.logger("tb", depth)),
			tb.WithClockPeriod(cfg.period),
			tb.WithSettle(cfg.settle),
			tb.WithBusOptions(
				bus.WithLogger(cfg.logger("bus", depth)),
				bus.WithTimeout(cfg.timeout),
			),
		)
		var err error
		rep, err = drv.Run(ctx)
		return err
	})

	if cfg.verbose {
		log.Printf("depth=%d: t=%dns, stats=%+v", depth, s.Now(), m.Stats())
	}

	run := resdb.NewRun(start, depth, rep, err)
	if err != nil {
		return run, fmt.Errorf("depth=%d: %w", depth, err)
	}
	return run, nil
}

// runDevice runs the test bench against the hardware device mapped by
// cfg.devmem.
func runDevice(ctx context.Context, cfg config) ([]resdb.Run, error) {
	depth := cfg.depths[0]
	b, err := memsig.Open(
		cfg.devmem, cfg.base, cfg.span,
		memsig.WithLogger(cfg.logger("memsig", depth)),
	)
	if err != nil {
		return nil, fmt.Errorf("could not open device: %w", err)
	}
	defer b.Close()

	run, err := drive(ctx, cfg, b, depth)
	if run.Verdict != resdb.Pass {
		log.Printf("device: %s: %s", run.Verdict, run.Error)
	} else {
		log.Printf("device: %s (%d vectors)", run.Verdict, len(run.Results))
	}

	if err != nil {
		return []resdb.Run{run}, fmt.Errorf("test bench failed: %w", err)
	}
	return []resdb.Run{run}, nil
}

// drive runs the test bench against the registers of b.
// The device is expected to run its own clock.
func drive(ctx context.Context, cfg config, b *memsig.Bus, depth int) (resdb.Run, error) {
	start := time.Now()
	drv := tb.NewDriver(b,
		tb.WithLogger(cfg.logger("tb", depth)),
		tb.WithSettle(cfg.settle),
		tb.WithBusOptions(
			bus.WithLogger(cfg.logger("bus", depth)),
			bus.WithTimeout(cfg.timeout),
		),
	)
	rep, err := drv.Run(ctx)
	if e := b.Err(); e != nil && err == nil {
		err = e
	}

	run := resdb.NewRun(start, depth, rep, err)
	if err != nil {
		return run, fmt.Errorf("device: %w", err)
	}
	return run, nil
}

func (cfg config) logger(name string, depth int) *log.Logger {
	if !cfg.verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stdout, fmt.Sprintf("%s[%d]: ", name, depth), 0)
}

func parseDepths(depth int, depths string) ([]int, error) {
	if depths == "" {
		if depth < 1 {
			return nil, fmt.Errorf("invalid FIFO depth %d", depth)
		}
		return []int{depth}, nil
	}

	var ds []int
	for _, v := range strings.Split(depths, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		d, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("could not parse FIFO depth %q: %w", v, err)
		}
		if d < 1 {
			return nil, fmt.Errorf("invalid FIFO depth %d", d)
		}
		ds = append(ds, d)
	}
	if len(ds) == 0 {
		return nil, fmt.Errorf("no FIFO depth in %q", depths)
	}
	return ds, nil
}

func parseOp(name string) (dut.Op, error) {
	switch strings.ToLower(name) {
	case "or":
		return dut.Or, nil
	case "and":
		return func(a, b uint64) uint64 { return a & b }, nil
	case "xor":
		return func(a, b uint64) uint64 { return a ^ b }, nil
	default:
		return nil, fmt.Errorf("unknown combination %q", name)
	}
}

func store(dsn string, runs []resdb.Run) error {
	db, err := resdb.Open(dsn)
	if err != nil {
		return fmt.Errorf("could not open results db: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	err = db.Init(ctx)
	if err != nil {
		return fmt.Errorf("could not initialize results db: %w", err)
	}

	for _, run := range runs {
		id, err := db.Save(ctx, run)
		if err != nil {
			return fmt.Errorf("could not save run (depth=%d): %w", run.Depth, err)
		}
		log.Printf("stored run %d (depth=%d)", id, run.Depth)
	}
	return nil
}

// dbDSN returns dsn or, if empty, the DSN described by the RESDB_USERNAME,
// RESDB_PASSWORD, RESDB_HOST and RESDB_NAME environment variables.
func dbDSN(dsn string) string {
	return dsnFrom(dsn, os.Getenv)
}

func dsnFrom(dsn string, getenv func(string) string) string {
	if dsn != "" {
		return dsn
	}
	host := getenv("RESDB_HOST")
	if host == "" {
		return ""
	}
	name := getenv("RESDB_NAME")
	if name == "" {
		name = "orfifo"
	}
	return resdb.DSN(getenv("RESDB_USERNAME"), getenv("RESDB_PASSWORD"), host, name)
}

func listRuns(w io.Writer, dsn string, n int) error {
	if dsn == "" {
		return fmt.Errorf("no results database")
	}

	db, err := resdb.Open(dsn)
	if err != nil {
		return fmt.Errorf("could not open results db: %w", err)
	}
	defer db.Close()

	runs, err := db.LastRuns(context.Background(), n)
	if err != nil {
		return err
	}
	printRuns(w, runs)
	return nil
}

func printRuns(w io.Writer, runs []resdb.Run) {
	for _, run := range runs {
		fmt.Fprintf(w, "run %d: %s depth=%d %s",
			run.ID, run.Start.UTC().Format(time.RFC3339), run.Depth, run.Verdict,
		)
		if run.Error != "" {
			fmt.Fprintf(w, ": %s", run.Error)
		}
		fmt.Fprintf(w, "\n")
	}
}

func monitor(pid int, freq time.Duration, fname string) (func(), error) {
	p, err := pmon.Monitor(pid)
	if err != nil {
		return nil, fmt.Errorf("could not start monitoring (pid=%d): %w", pid, err)
	}

	f, err := os.Create(fname)
	if err != nil {
		return nil, fmt.Errorf("could not create pmon log file: %w", err)
	}
	p.W = f
	p.Freq = freq

	go func() {
		err := p.Run()
		if err != nil {
			log.Printf("could not run pmon: %+v", err)
		}
	}()

	return func() {
		err := p.Kill()
		if err != nil {
			log.Printf("could not stop monitoring: %+v", err)
		}
		err = f.Close()
		if err != nil {
			log.Printf("could not close pmon log file: %+v", err)
		}
	}, nil
}
