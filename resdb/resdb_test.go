// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resdb

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/orfifo/internal/fakedb"
	"github.com/go-lpc/orfifo/tb"
	"github.com/go-sql-driver/mysql"
)

func init() {
	drvName = "fakedb"
}

const testDSN = "orfifo:s3cr3t@tcp(localhost:3306)/orfifo"

func openDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(testDSN)
	if err != nil {
		t.Fatalf("could not open resdb: %+v", err)
	}
	return db
}

func TestDSN(t *testing.T) {
	dsn := DSN("usr", "pwd", "localhost:3306", "orfifo")
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("could not parse DSN %q: %+v", dsn, err)
	}
	for _, tc := range []struct {
		name      string
		got, want interface{}
	}{
		{"user", cfg.User, "usr"},
		{"passwd", cfg.Passwd, "pwd"},
		{"net", cfg.Net, "tcp"},
		{"addr", cfg.Addr, "localhost:3306"},
		{"dbname", cfg.DBName, "orfifo"},
		{"parse-time", cfg.ParseTime, true},
	} {
		if tc.got != tc.want {
			t.Fatalf("invalid %s: got=%v, want=%v", tc.name, tc.got, tc.want)
		}
	}
}

func TestOpen(t *testing.T) {
	db := openDB(t)
	defer db.Close()

	_, err := Open("not a DSN")
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestInit(t *testing.T) {
	db := openDB(t)
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{}, func(ctx context.Context) error {
		err := db.Init(ctx)
		if err != nil {
			t.Fatalf("could not init db: %+v", err)
		}
		execs := fakedb.Execs()
		if got, want := len(execs), len(Schema); got != want {
			t.Fatalf("invalid number of statements: got=%d, want=%d", got, want)
		}
		for i, exec := range execs {
			if !strings.HasPrefix(exec.Query, "CREATE TABLE IF NOT EXISTS") {
				t.Fatalf("invalid statement #%d: %q", i, exec.Query)
			}
		}
		return nil
	})
}

func TestVerdictOf(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want Verdict
	}{
		{nil, Pass},
		{&tb.AssertionError{Vector: tb.Vector{A: 1}, Want: 1, Got: 0}, Fail},
		{fmt.Errorf("run: %w", &tb.AssertionError{}), Fail},
		{context.Canceled, Error},
	} {
		if got := VerdictOf(tc.err); got != tc.want {
			t.Fatalf("invalid verdict for %v: got=%q, want=%q", tc.err, got, tc.want)
		}
	}
}

func TestSave(t *testing.T) {
	db := openDB(t)
	defer db.Close()

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rep := tb.Report{
		Results: []tb.Result{
			{Vector: tb.Vector{A: 0, B: 0}, Want: 0, Got: 0},
			{Vector: tb.Vector{A: 0, B: 1}, Want: 1, Got: 0},
		},
	}
	aerr := &tb.AssertionError{Vector: tb.Vector{A: 0, B: 1}, Want: 1, Got: 0}
	run := NewRun(start, 2, rep, aerr)

	if got, want := run.Verdict, Fail; got != want {
		t.Fatalf("invalid verdict: got=%q, want=%q", got, want)
	}

	_ = fakedb.Run(context.Background(), fakedb.Rows{}, func(ctx context.Context) error {
		id, err := db.Save(ctx, run)
		if err != nil {
			t.Fatalf("could not save run: %+v", err)
		}
		if id != 1 {
			t.Fatalf("invalid run id: got=%d, want=1", id)
		}

		execs := fakedb.Execs()
		var got []string
		for _, exec := range execs {
			if exec.Tx == 0 {
				t.Fatalf("statement %q ran outside of a transaction", exec.Query)
			}
			got = append(got, strings.Fields(exec.Query)[0]+" "+fmt.Sprint(exec.Args))
		}
		want := []string{
			fmt.Sprintf("INSERT [%v 2 fail %s]", start, aerr.Error()),
			"INSERT [1 0 0 0 0 0]",
			"INSERT [1 1 0 1 1 0]",
			"COMMIT []",
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid statements:\ngot= %q\nwant=%q", got, want)
		}
		return nil
	})
}

func TestSaveWideWords(t *testing.T) {
	db := openDB(t)
	defer db.Close()

	rep := tb.Report{
		Results: []tb.Result{
			{Vector: tb.Vector{A: 1 << 63, B: 1}, Want: 1<<63 | 1, Got: math.MaxUint64},
		},
	}
	run := NewRun(time.Now(), 2, rep, nil)

	_ = fakedb.Run(context.Background(), fakedb.Rows{}, func(ctx context.Context) error {
		_, err := db.Save(ctx, run)
		if err != nil {
			t.Fatalf("could not save run: %+v", err)
		}

		execs := fakedb.Execs()
		if got, want := len(execs), 3; got != want {
			t.Fatalf("invalid number of statements: got=%d, want=%d", got, want)
		}
		got := execs[1].Args[2:]
		want := []driver.Value{int64(math.MinInt64), int64(1), int64(math.MinInt64 + 1), int64(-1)}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid vector words: got=%v, want=%v", got, want)
		}
		return nil
	})
}

func TestSaveFailure(t *testing.T) {
	db := openDB(t)
	defer db.Close()

	boom := errors.New("boom")
	_ = fakedb.Run(context.Background(), fakedb.Rows{}, func(ctx context.Context) error {
		fakedb.Fail(boom)
		_, err := db.Save(ctx, NewRun(time.Now(), 2, tb.Report{}, nil))
		if !errors.Is(err, boom) {
			t.Fatalf("invalid error: got=%+v, want=%+v", err, boom)
		}

		execs := fakedb.Execs()
		if len(execs) != 1 || execs[0].Query != "ROLLBACK" {
			t.Fatalf("invalid statements: %+v", execs)
		}
		return nil
	})
}

func TestLastRuns(t *testing.T) {
	db := openDB(t)
	defer db.Close()

	var (
		t1 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		t2 = t1.Add(-time.Hour)
	)

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"id", "start", "depth", "verdict", "error"},
		Values: [][]driver.Value{
			{int64(2), t1, int64(4), "pass", ""},
			{int64(1), t2, int64(2), "error", "bus: timeout"},
		},
	}, func(ctx context.Context) error {
		runs, err := db.LastRuns(ctx, 2)
		if err != nil {
			t.Fatalf("could not retrieve runs: %+v", err)
		}

		want := []Run{
			{ID: 2, Start: t1, Depth: 4, Verdict: Pass},
			{ID: 1, Start: t2, Depth: 2, Verdict: Error, Error: "bus: timeout"},
		}
		if !reflect.DeepEqual(runs, want) {
			t.Fatalf("invalid runs:\ngot= %+v\nwant=%+v", runs, want)
		}
		return nil
	})
}
