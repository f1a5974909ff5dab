// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ptrig

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/postrig/capture"
	"github.com/go-lpc/postrig/internal/fakebox"
	"github.com/go-lpc/postrig/panda"
	"github.com/go-lpc/postrig/zerod"
)

func boxConfig(t *testing.T, box *fakebox.Box) Config {
	t.Helper()

	port := func(addr string) (string, int) {
		host, p, err := net.SplitHostPort(addr)
		if err != nil {
			t.Fatalf("could not split %q: %+v", addr, err)
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			t.Fatalf("could not parse port %q: %+v", p, err)
		}
		return host, v
	}

	cfg := DefaultConfig()
	cfg.Host, cfg.Port = port(box.CtlAddr())
	_, cfg.DataPort = port(box.DataAddr())
	cfg.Dwell = 2 * time.Millisecond
	return cfg
}

func strFrame(t *testing.T, vs ...string) tdaq.Frame {
	t.Helper()
	buf := new(bytes.Buffer)
	enc := tdaq.NewEncoder(buf)
	for _, v := range vs {
		enc.WriteStr(v)
	}
	if err := enc.Err(); err != nil {
		t.Fatalf("could not encode frame: %+v", err)
	}
	return tdaq.Frame{Body: buf.Bytes()}
}

func TestServer(t *testing.T) {
	box := newTestBox(t)
	box.Set("COUNTER5.OUT", "3")
	box.Set("COUNTER6.OUT", "4")

	var (
		msg  = log.NewMsgStream("ptrig-srv", log.LvlError, io.Discard)
		srv  = NewServer(boxConfig(t, box))
		ctx  = tdaq.Context{Ctx: context.Background(), Msg: msg}
		resp tdaq.Frame
		none tdaq.Frame
	)

	err := srv.OnArm(ctx, &resp, none)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("invalid error before /config: got=%v, want=%v", err, ErrConflict)
	}

	for _, tc := range []struct {
		name string
		f    func(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error
		req  tdaq.Frame
	}{
		{"/config", srv.OnConfig, none},
		{"/init", srv.OnInit, none},
		{"/trig-src", srv.OnTrigSrc, strFrame(t, "EXT_SOFT")},
		{"/trig-axis", srv.OnTrigAxis, strFrame(t, "x")},
		{"/trig-pos", srv.OnTrigPos, strFrame(t, "X", "1.25")},
		{"/dwell", srv.OnDwell, strFrame(t, "3")},
		{"/arm", srv.OnArm, none},
		{"/start", srv.OnStart, none},
		{"/soft-trig", srv.OnSoftTrig, none},
	} {
		err := tc.f(ctx, &resp, tc.req)
		if err != nil {
			t.Fatalf("could not run %s: %+v", tc.name, err)
		}
	}

	dev := srv.Device()
	if got, want := dev.TrigAxis(), panda.AxisX; got != want {
		t.Fatalf("invalid trigger axis: got=%v, want=%v", got, want)
	}
	if got, want := dev.DetDwell(), 3.0; got != want {
		t.Fatalf("invalid dwell: got=%v, want=%v", got, want)
	}
	checkFields(t, box, map[string]string{
		"PCOMP1.INP":   "INENC1.VAL",
		"PCOMP1.START": "1250",
		"PULSE2.WIDTH": "3",
	})

	var out tdaq.Frame
	err = srv.DetOut(ctx, &out)
	if err != nil {
		t.Fatalf("could not read /det-out: %+v", err)
	}
	dec := tdaq.NewDecoder(bytes.NewReader(out.Body))
	evt := zerod.Event{
		Trigger: dec.ReadI64(),
		PD:      dec.ReadI64(),
		PMT:     dec.ReadI64(),
	}
	if err := dec.Err(); err != nil {
		t.Fatalf("could not decode /det-out frame: %+v", err)
	}
	if got, want := evt, (zerod.Event{Trigger: 1, PD: 3, PMT: 4}); got != want {
		t.Fatalf("invalid event: got=%+v, want=%+v", got, want)
	}

	box.Capture("OK", "1500 2500 5000 7 8 0", "END")
	err = srv.Capture(ctx, &out)
	if err != nil {
		t.Fatalf("could not read /capture: %+v", err)
	}
	dec = tdaq.NewDecoder(bytes.NewReader(out.Body))
	if got, want := dec.ReadI64(), int64(1); got != want {
		t.Fatalf("invalid number of points: got=%d, want=%d", got, want)
	}
	var line capture.Line
	line.X = append(line.X, dec.ReadF64())
	line.Y = append(line.Y, dec.ReadF64())
	line.Dwell = append(line.Dwell, dec.ReadF64())
	line.PMT = append(line.PMT, dec.ReadI64())
	line.Diode = append(line.Diode, dec.ReadI64())
	line.Point = append(line.Point, dec.ReadI64())
	if err := dec.Err(); err != nil {
		t.Fatalf("could not decode /capture frame: %+v", err)
	}
	if line.X[0] != 1.5 || line.Y[0] != 2.5 || line.Dwell[0] != 5 ||
		line.PMT[0] != 7 || line.Diode[0] != 8 || line.Point[0] != 0 {
		t.Fatalf("invalid line: %+v", line)
	}

	for _, tc := range []struct {
		name string
		f    func(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error
	}{
		{"/stop", srv.OnStop},
		{"/disarm", srv.OnDisarm},
		{"/zero-abs", srv.OnZeroAbs},
		{"/x-trig-to-curr", srv.OnXTrigToCurr},
		{"/y-trig-to-curr", srv.OnYTrigToCurr},
		{"/reset", srv.OnReset},
		{"/quit", srv.OnQuit},
	} {
		err := tc.f(ctx, &resp, none)
		if err != nil {
			t.Fatalf("could not run %s: %+v", tc.name, err)
		}
	}
	if srv.Device() != nil {
		t.Fatalf("device still attached after /quit")
	}
}

func TestServerBadRequests(t *testing.T) {
	box := newTestBox(t)

	var (
		msg  = log.NewMsgStream("ptrig-srv", log.LvlError, io.Discard)
		srv  = NewServer(boxConfig(t, box))
		ctx  = tdaq.Context{Ctx: context.Background(), Msg: msg}
		resp tdaq.Frame
	)

	err := srv.OnConfig(ctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /config: %+v", err)
	}
	defer srv.OnQuit(ctx, &resp, tdaq.Frame{})

	for _, tc := range []struct {
		name string
		f    func(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error
		req  tdaq.Frame
	}{
		{"/trig-axis", srv.OnTrigAxis, strFrame(t, "Z")},
		{"/trig-pos-axis", srv.OnTrigPos, strFrame(t, "Z", "1")},
		{"/trig-pos-value", srv.OnTrigPos, strFrame(t, "X", "one")},
		{"/dwell-value", srv.OnDwell, strFrame(t, "ten")},
		{"/dwell-negative", srv.OnDwell, strFrame(t, "-1")},
		{"/trig-src", srv.OnTrigSrc, strFrame(t, "EXT_HARD")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.f(ctx, &resp, tc.req)
			if err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestServerConfigFail(t *testing.T) {
	box := newTestBox(t)
	cfg := boxConfig(t, box)
	_ = box.Close()

	var (
		msg  = log.NewMsgStream("ptrig-srv", log.LvlError, io.Discard)
		ctx  = tdaq.Context{Ctx: context.Background(), Msg: msg}
		resp tdaq.Frame
	)

	cfg.Timeout = 100 * time.Millisecond
	srv := NewServer(cfg)
	err := srv.OnConfig(ctx, &resp, tdaq.Frame{})
	if err == nil {
		t.Fatalf("expected an error")
	}

	cfg = DefaultConfig()
	cfg.TrigAxis = "Z"
	srv = NewServer(cfg)
	err = srv.OnConfig(ctx, &resp, tdaq.Frame{})
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestServerOutputsDone(t *testing.T) {
	box := newTestBox(t)

	cctx, stop := context.WithCancel(context.Background())
	defer stop()

	var (
		msg  = log.NewMsgStream("ptrig-srv", log.LvlError, io.Discard)
		srv  = NewServer(boxConfig(t, box))
		ctx  = tdaq.Context{Ctx: cctx, Msg: msg}
		resp tdaq.Frame
	)

	err := srv.OnConfig(ctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /config: %+v", err)
	}
	defer srv.OnQuit(ctx, &resp, tdaq.Frame{})

	stop()
	out := tdaq.Frame{Body: []byte("stale")}
	for _, f := range []func(ctx tdaq.Context, dst *tdaq.Frame) error{
		srv.DetOut, srv.Capture,
	} {
		err := f(ctx, &out)
		if err != nil {
			t.Fatalf("output failed: %+v", err)
		}
		if out.Body != nil {
			t.Fatalf("output body not cleared: %q", out.Body)
		}
		out.Body = []byte("stale")
	}
}

func TestServerReconfigure(t *testing.T) {
	box := newTestBox(t)

	var (
		msg  = log.NewMsgStream("ptrig-srv", log.LvlError, io.Discard)
		srv  = NewServer(boxConfig(t, box))
		ctx  = tdaq.Context{Ctx: context.Background(), Msg: msg}
		resp tdaq.Frame
		done = make(chan struct{})
		errc = make(chan error, 1)
	)

	go func() {
		defer close(errc)
		for {
			select {
			case <-done:
				return
			default:
			}
			dev, err := srv.device()
			switch {
			case err == nil && dev == nil:
				errc <- errors.New("nil device without error")
				return
			case err != nil && !errors.Is(err, ErrConflict):
				errc <- err
				return
			}
			_ = srv.Device()
		}
	}()

	for i := 0; i < 5; i++ {
		err := srv.OnConfig(ctx, &resp, tdaq.Frame{})
		if err != nil {
			t.Fatalf("could not run /config #%d: %+v", i, err)
		}
		err = srv.OnQuit(ctx, &resp, tdaq.Frame{})
		if err != nil {
			t.Fatalf("could not run /quit #%d: %+v", i, err)
		}
	}
	close(done)

	if err := <-errc; err != nil {
		t.Fatalf("invalid device access: %+v", err)
	}
	if srv.Device() != nil {
		t.Fatalf("device not released after /quit")
	}
}
