// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedb holds types to fake an in-memory DB.
package fakedb // import "github.com/go-lpc/orfifo/internal/fakedb"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
)

var query struct {
	mu    sync.Mutex
	rows  Rows
	execs []Exec
	id    int64
	fail  error
}

// Exec is a statement executed against the fake DB.
type Exec struct {
	Query string
	Args  []driver.Value
	Tx    int // transaction the statement ran in; 0 if none
}

// Run runs f against a fake DB whose queries return rows.
// Runs are serialized.
func Run(ctx context.Context, rows Rows, f func(ctx context.Context) error) error {
	query.mu.Lock()
	defer query.mu.Unlock()
	query.rows = rows
	query.execs = nil
	query.id = 0
	query.fail = nil

	return f(ctx)
}

// Execs returns the statements executed during the current run.
func Execs() []Exec {
	return append([]Exec(nil), query.execs...)
}

// Fail makes all subsequent statements of the current run fail with err.
func Fail(err error) {
	query.fail = err
}

func init() {
	sql.Register("fakedb", &Driver{})
}

type Driver struct{}

// Open returns a new connection to the database.
func (drv *Driver) Open(name string) (driver.Conn, error) {
	return &Conn{}, nil
}

type Conn struct {
	tx  int
	ntx int
}

// Prepare returns a prepared statement, bound to this connection.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return &Stmt{conn: c, query: query}, nil
}

// Close invalidates and potentially stops any current
// prepared statements and transactions, marking this
// connection as no longer in use.
func (c *Conn) Close() error {
	return nil
}

// Begin starts and returns a new transaction.
func (c *Conn) Begin() (driver.Tx, error) {
	if c.tx != 0 {
		return nil, errors.New("fakedb: nested transaction")
	}
	c.ntx++
	c.tx = c.ntx
	return &Tx{conn: c}, nil
}

// Tx is a fake transaction.
// Commit and Rollback are recorded as statements.
type Tx struct {
	conn *Conn
}

func (tx *Tx) Commit() error {
	return tx.end("COMMIT")
}

func (tx *Tx) Rollback() error {
	return tx.end("ROLLBACK")
}

func (tx *Tx) end(stmt string) error {
	query.execs = append(query.execs, Exec{Query: stmt, Tx: tx.conn.tx})
	tx.conn.tx = 0
	return nil
}

type Stmt struct {
	conn  *Conn
	query string
}

// Close closes the statement.
func (stmt *Stmt) Close() error {
	return nil
}

// NumInput returns the number of placeholder parameters.
//
// NumInput returns -1: the sql package will not sanity check Exec or
// Query argument counts.
func (stmt *Stmt) NumInput() int {
	return -1
}

// Exec executes a query that doesn't return rows, such
// as an INSERT or UPDATE.
func (stmt *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	if query.fail != nil {
		return nil, query.fail
	}
	query.execs = append(query.execs, Exec{
		Query: stmt.query,
		Args:  append([]driver.Value(nil), args...),
		Tx:    stmt.conn.tx,
	})
	query.id++
	return Result{ID: query.id}, nil
}

// Query executes a query that may return rows, such as a
// SELECT.
func (stmt *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	if query.fail != nil {
		return nil, query.fail
	}
	return &query.rows, nil
}

// Result is the result of an executed statement.
// Each statement inserts one row.
type Result struct {
	ID int64
}

func (res Result) LastInsertId() (int64, error) { return res.ID, nil }
func (res Result) RowsAffected() (int64, error) { return 1, nil }

type Rows struct {
	Names  []string
	Values [][]driver.Value
}

// Columns returns the names of the columns. The number of
// columns of the result is inferred from the length of the
// slice.
func (rows *Rows) Columns() []string {
	return rows.Names
}

// Close closes the rows iterator.
func (rows *Rows) Close() error {
	return nil
}

// Next is called to populate the next row of data into
// the provided slice. The provided slice will be the same
// size as the Columns() are wide.
//
// Next returns io.EOF when there are no more rows.
func (rows *Rows) Next(dest []driver.Value) error {
	if len(rows.Values) == 0 {
		return io.EOF
	}
	copy(dest, rows.Values[0])
	rows.Values = rows.Values[1:]
	return nil
}

var (
	_ driver.Driver = (*Driver)(nil)
	_ driver.Conn   = (*Conn)(nil)
	_ driver.Tx     = (*Tx)(nil)
	_ driver.Stmt   = (*Stmt)(nil)
	_ driver.Result = (*Result)(nil)
	_ driver.Rows   = (*Rows)(nil)
)
