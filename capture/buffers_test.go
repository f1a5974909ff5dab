// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capture

import (
	"errors"
	"reflect"
	"testing"
)

func TestBuffers(t *testing.T) {
	buf := NewBuffers(2)
	if got, want := buf.Cap(), 2; got != want {
		t.Fatalf("invalid capacity: got=%d, want=%d", got, want)
	}

	for _, rec := range []Record{
		{X: 1500, Y: -2500, Dwell: 10000, PMT: 11, Diode: 22, Point: 0},
		{X: 1501, Y: -2499, Dwell: 9000, PMT: 12, Diode: 23, Point: 1},
	} {
		err := buf.Append(rec)
		if err != nil {
			t.Fatalf("could not append record: %+v", err)
		}
	}

	err := buf.Append(Record{Point: 2})
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrOverflow)
	}

	want := Line{
		X:     []float64{1.5, 1.501},
		Y:     []float64{-2.5, -2.499},
		Dwell: []float64{10, 9},
		PMT:   []int64{11, 12},
		Diode: []int64{22, 23},
		Point: []int64{0, 1},
	}
	got := buf.Snapshot()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid line:\ngot= %+v\nwant=%+v", got, want)
	}
	if got.Len() != 2 || buf.Len() != 2 {
		t.Fatalf("invalid length: line=%d, buffers=%d", got.Len(), buf.Len())
	}

	buf.Reset()
	if got, want := buf.Len(), 0; got != want {
		t.Fatalf("invalid length after reset: got=%d, want=%d", got, want)
	}

	// snapshots are not affected by later updates.
	err = buf.Append(Record{X: 7000})
	if err != nil {
		t.Fatalf("could not append after reset: %+v", err)
	}
	if got.X[0] != 1.5 {
		t.Fatalf("snapshot modified: %v", got.X)
	}
}

func TestBuffersDefault(t *testing.T) {
	buf := NewBuffers(0)
	if got, want := buf.Cap(), DefaultMaxPoints; got != want {
		t.Fatalf("invalid capacity: got=%d, want=%d", got, want)
	}
}
