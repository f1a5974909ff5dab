// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memodb stores the memorized attributes of position-trigger
// devices in a MySQL database.
//
// The database holds one table:
//
//	CREATE TABLE memorized (
//		device       VARCHAR(64) NOT NULL,
//		abs_x_offset DOUBLE NOT NULL,
//		abs_y_offset DOUBLE NOT NULL,
//		datetime     DATETIME NOT NULL
//	);
//
// Each save appends a row; the latest row of a device wins.
package memodb // import "github.com/go-lpc/postrig/memodb"

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

var drvName = "mysql"

// ErrNoMemo is returned when a device has nothing memorized yet.
var ErrNoMemo = errors.New("memodb: no memorized values")

// Memo holds the memorized attributes of a device.
// Offsets are in µm.
type Memo struct {
	AbsXOffset float64
	AbsYOffset float64
}

// DB is a connection to the memorized attributes database.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens a connection to the database described by the MySQL
// data source name dsn, as in "user:password@tcp(host:3306)/dbname".
func Open(dsn string) (*DB, error) {
	name := dbName(dsn)
	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("memodb: could not open %q db: %w", name, err)
	}

	err = ping(db, name)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, name: name}, nil
}

// dbName extracts the database name from dsn, so credentials never
// end up in error messages.
func dbName(dsn string) string {
	if i := strings.LastIndex(dsn, "/"); i >= 0 {
		dsn = dsn[i+1:]
	}
	if i := strings.Index(dsn, "?"); i >= 0 {
		dsn = dsn[:i]
	}
	return dsn
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("memodb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Load returns the last values memorized for device.
func (db *DB) Load(ctx context.Context, device string) (Memo, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		memo  Memo
		found bool
	)
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT abs_x_offset, abs_y_offset FROM memorized WHERE device=? ORDER BY datetime DESC LIMIT 1",
		device,
	)
	if err != nil {
		return memo, fmt.Errorf("memodb: could not query %q: %w", device, err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&memo.AbsXOffset, &memo.AbsYOffset)
		if err != nil {
			return memo, fmt.Errorf("memodb: could not scan %q offsets: %w", device, err)
		}
		found = true
	}

	if err := rows.Err(); err != nil {
		return memo, fmt.Errorf("memodb: could not iterate over %q rows: %w", device, err)
	}

	if err := ctx.Err(); err != nil {
		return memo, fmt.Errorf("memodb: context error while loading %q: %w", device, err)
	}

	if !found {
		return memo, fmt.Errorf("memodb: device %q: %w", device, ErrNoMemo)
	}

	return memo, nil
}

// Save memorizes the values of device.
func (db *DB) Save(ctx context.Context, device string, memo Memo) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(
		ctx,
		"INSERT INTO memorized (device, abs_x_offset, abs_y_offset, datetime) VALUES (?, ?, ?, ?)",
		device, memo.AbsXOffset, memo.AbsYOffset, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("memodb: could not save %q: %w", device, err)
	}
	return nil
}
