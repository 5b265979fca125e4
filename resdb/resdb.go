// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package resdb stores the outcome of test runs in a MySQL database.
package resdb // import "github.com/go-lpc/orfifo/resdb"

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-lpc/orfifo/tb"
	"github.com/go-sql-driver/mysql"
)

var (
	drvName = "mysql"
)

const timeout = 5 * time.Second

// Schema holds the statements creating the tables of the results database.
//
// Vector words are stored as the signed bit pattern of their 64 bits.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
	id      BIGINT AUTO_INCREMENT PRIMARY KEY,
	start   DATETIME(6) NOT NULL,
	depth   INT NOT NULL,
	verdict VARCHAR(8) NOT NULL,
	error   TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS vectors (
	run  BIGINT NOT NULL,
	idx  INT NOT NULL,
	a    BIGINT NOT NULL,
	b    BIGINT NOT NULL,
	want BIGINT NOT NULL,
	got  BIGINT NOT NULL,
	PRIMARY KEY (run, idx)
)`,
}

// Verdict is the outcome of a run.
type Verdict string

const (
	Pass  Verdict = "pass"  // all vectors passed
	Fail  Verdict = "fail"  // a read-back value did not match
	Error Verdict = "error" // the run could not complete
)

// VerdictOf returns the verdict of a run that ended with err.
func VerdictOf(err error) Verdict {
	var aerr *tb.AssertionError
	switch {
	case err == nil:
		return Pass
	case errors.As(err, &aerr):
		return Fail
	default:
		return Error
	}
}

// Run describes one test run.
type Run struct {
	ID      int64
	Start   time.Time
	Depth   int // depth of the FIFOs of the device
	Verdict Verdict
	Error   string // error message, if any

	Results []tb.Result
}

// NewRun returns the description of a run started at start, that produced
// rep and ended with err.
func NewRun(start time.Time, depth int, rep tb.Report, err error) Run {
	run := Run{
		Start:   start,
		Depth:   depth,
		Verdict: VerdictOf(err),
		Results: rep.Results,
	}
	if err != nil {
		run.Error = err.Error()
	}
	return run
}

// DB is a results database.
type DB struct {
	db *sql.DB
}

// DSN returns the data source name of the database dbname hosted on host.
func DSN(usr, pwd, host, dbname string) string {
	cfg := mysql.NewConfig()
	cfg.User = usr
	cfg.Passwd = pwd
	cfg.Net = "tcp"
	cfg.Addr = host
	cfg.DBName = dbname
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// Open opens a connection to the results database described by dsn.
func Open(dsn string) (*DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("resdb: could not parse DSN: %w", err)
	}
	cfg.ParseTime = true

	db, err := sql.Open(drvName, cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("resdb: could not open %q db: %w", cfg.DBName, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("resdb: could not ping %q db: %w", cfg.DBName, err)
	}

	return &DB{db: db}, nil
}

// Close closes the connection to the database.
func (db *DB) Close() error {
	return db.db.Close()
}

// Init creates the tables of the database, if needed.
func (db *DB) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for _, stmt := range Schema {
		_, err := db.db.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("resdb: could not create tables: %w", err)
		}
	}
	return nil
}

// Save stores run and its results, and returns the identifier of the run.
func (db *DB) Save(ctx context.Context, run Run) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("resdb: could not start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(
		ctx,
		"INSERT INTO runs (start, depth, verdict, error) VALUES (?, ?, ?, ?)",
		run.Start.UTC(), run.Depth, string(run.Verdict), run.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("resdb: could not insert run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("resdb: could not retrieve run id: %w", err)
	}

	for i, v := range run.Results {
		_, err = tx.ExecContext(
			ctx,
			"INSERT INTO vectors (run, idx, a, b, want, got) VALUES (?, ?, ?, ?, ?, ?)",
			id, i, word(v.Vector.A), word(v.Vector.B), word(v.Want), word(v.Got),
		)
		if err != nil {
			return 0, fmt.Errorf("resdb: could not insert vector %v of run %d: %w", v.Vector, id, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("resdb: could not commit run %d: %w", id, err)
	}

	return id, nil
}

// LastRuns returns the n most recent runs, most recent first.
// Per-vector results are not loaded.
func (db *DB) LastRuns(ctx context.Context, n int) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := db.db.QueryContext(
		ctx,
		"SELECT id, start, depth, verdict, error FROM runs ORDER BY start DESC LIMIT ?",
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("resdb: could not query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run     Run
			verdict string
		)
		err = rows.Scan(&run.ID, &run.Start, &run.Depth, &verdict, &run.Error)
		if err != nil {
			return nil, fmt.Errorf("resdb: could not scan run: %w", err)
		}
		run.Verdict = Verdict(verdict)
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resdb: could not iterate over runs: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resdb: context error while retrieving runs: %w", err)
	}

	return runs, nil
}

// word returns the bit pattern of v as a signed integer.
// database/sql rejects uint64 values with the high bit set.
func word(v uint64) int64 { return int64(v) }
