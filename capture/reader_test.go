// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capture

import (
	"context"
	"io"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/postrig/internal/fakebox"
)

func newTestReader(t *testing.T, max int) (*fakebox.Box, *Reader, chan Line) {
	t.Helper()

	box, err := fakebox.New("localhost:0", "localhost:0")
	if err != nil {
		t.Fatalf("could not create fake box: %+v", err)
	}
	t.Cleanup(func() { _ = box.Close() })

	conn, err := net.Dial("tcp", box.DataAddr())
	if err != nil {
		t.Fatalf("could not dial data port: %+v", err)
	}

	var (
		lines = make(chan Line, 8)
		msg   = log.NewMsgStream("capture", log.LvlError, io.Discard)
		r     = NewReader(conn, NewBuffers(max), msg)
	)
	r.OnEnd = func(line Line) { lines <- line }
	return box, r, lines
}

func recv(t *testing.T, lines chan Line) Line {
	t.Helper()
	select {
	case line := <-lines:
		return line
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for a capture line")
	}
	panic("unreachable")
}

func TestReader(t *testing.T) {
	box, r, lines := newTestReader(t, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	box.Capture(
		"OK",
		"1000 2000 10000 1 2 0",
		"not a record",
		"",
		"3000 -4000 10000 3 4 1",
		"END",
	)

	got := recv(t, lines)
	want := Line{
		X:     []float64{1, 3},
		Y:     []float64{2, -4},
		Dwell: []float64{10, 10},
		PMT:   []int64{1, 3},
		Diode: []int64{2, 4},
		Point: []int64{0, 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid line:\ngot= %+v\nwant=%+v", got, want)
	}

	// the third point fills the buffers, the fourth one is dropped.
	box.Capture("5000 6000 20000 5 6 2")
	box.Capture("7000 8000 20000 7 8 3", "END")

	got = recv(t, lines)
	if got, want := got.Len(), 3; got != want {
		t.Fatalf("invalid number of points: got=%d, want=%d", got, want)
	}
	if got, want := got.Point, []int64{0, 1, 2}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid points: got=%v, want=%v", got, want)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("could not stop reader: %+v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("reader did not stop")
	}
}

func TestReaderStreamClosed(t *testing.T) {
	box, r, _ := newTestReader(t, 10)

	errc := make(chan error, 1)
	go func() { errc <- r.Run(context.Background()) }()

	// give the reader a chance to send its options.
	time.Sleep(50 * time.Millisecond)
	_ = box.Close()

	select {
	case err := <-errc:
		if err == nil {
			t.Fatalf("expected an error")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("reader did not stop")
	}
}
