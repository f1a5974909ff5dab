// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedb provides an in-memory database/sql driver, registered
// as "fakedb", replaying canned rows and recording executed statements.
package fakedb // import "github.com/go-lpc/postrig/internal/fakedb"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"sync"
)

// Exec is a recorded statement execution.
type Exec struct {
	Query string
	Args  []driver.Value
}

var state struct {
	mu    sync.Mutex
	rows  Rows
	execs []Exec
	dsn   string
}

// Run runs f with rows as the result of every query f issues.
// Executed statements are recorded and can be retrieved with Execs.
func Run(ctx context.Context, rows Rows, f func(ctx context.Context) error) error {
	state.mu.Lock()
	state.rows = rows
	state.execs = nil
	state.mu.Unlock()

	return f(ctx)
}

// Execs returns the statements executed since the last call to Run.
func Execs() []Exec {
	state.mu.Lock()
	defer state.mu.Unlock()
	return append([]Exec(nil), state.execs...)
}

// DSN returns the data source name of the last opened connection.
func DSN() string {
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.dsn
}

func init() {
	sql.Register("fakedb", &Driver{})
}

// Driver is the fakedb database/sql driver.
type Driver struct{}

func (drv *Driver) Open(name string) (driver.Conn, error) {
	state.mu.Lock()
	state.dsn = name
	state.mu.Unlock()
	return &Conn{}, nil
}

// Conn is a fakedb connection.
type Conn struct{}

func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return &Stmt{query: query}, nil
}

func (c *Conn) Close() error {
	return nil
}

func (c *Conn) Begin() (driver.Tx, error) {
	panic("fakedb: transactions not implemented")
}

// Stmt is a fakedb prepared statement.
type Stmt struct {
	query string
}

func (stmt *Stmt) Close() error {
	return nil
}

// NumInput returns -1: placeholders are not checked.
func (stmt *Stmt) NumInput() int {
	return -1
}

// Exec records the execution and reports one affected row.
func (stmt *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	state.mu.Lock()
	defer state.mu.Unlock()

	state.execs = append(state.execs, Exec{
		Query: stmt.query,
		Args:  append([]driver.Value(nil), args...),
	})
	return driver.RowsAffected(1), nil
}

// Query returns the canned rows.
func (stmt *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	state.mu.Lock()
	defer state.mu.Unlock()

	rows := &Rows{
		Names:  state.rows.Names,
		Values: state.rows.Values,
	}
	state.rows.Values = nil
	return rows, nil
}

// Rows is a canned query result.
type Rows struct {
	Names  []string
	Values [][]driver.Value
}

func (rows *Rows) Columns() []string {
	return rows.Names
}

func (rows *Rows) Close() error {
	return nil
}

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
	_ driver.Stmt   = (*Stmt)(nil)
	_ driver.Rows   = (*Rows)(nil)
)
