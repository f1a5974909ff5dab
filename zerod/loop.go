// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zerod runs the readout of the zero-dimensional detectors
// (photo-diode and PMT) of the box, either free-running or on software
// triggers.
package zerod // import "github.com/go-lpc/postrig/zerod"

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/postrig/panda"
)

// Source is the trigger source of the zero-D detectors.
type Source uint8

const (
	Internal Source = iota // free-running integrations
	ExtSoft                // one integration per software trigger
)

func (src Source) String() string {
	switch src {
	case Internal:
		return "INTERNAL"
	case ExtSoft:
		return "EXT_SOFT"
	}
	return fmt.Sprintf("Source(%d)", uint8(src))
}

// ParseSource parses a trigger source name.
func ParseSource(s string) (Source, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INTERNAL":
		return Internal, nil
	case "EXT_SOFT":
		return ExtSoft, nil
	}
	return 0, fmt.Errorf("zerod: invalid trigger source %q", s)
}

// Reading is the result of one integration.
type Reading struct {
	PD  int64 // photo-diode counts
	PMT int64 // PMT counts
}

// Event is published after each software-triggered integration.
type Event struct {
	Trigger int64 // trigger counter value when the integration was made
	PD      int64
	PMT     int64
}

// Device is the state owner the loop reports to.
type Device interface {
	// Begin marks the device as running an acquisition.
	Begin()
	// End marks the device idle, unless it is moving, in fault or off.
	End()

	Counter() int64
	Incr()

	// Publish hands over an event. It must not block.
	Publish(evt Event)
}

// Loop integrates the zero-D detector counters over its own control
// connection.
type Loop struct {
	box   *panda.Conn
	latch *Latch
	dev   Device
	msg   log.MsgStream

	mu    sync.RWMutex
	src   Source
	dwell time.Duration
	last  Reading

	wake chan struct{}
}

// NewLoop returns a loop integrating for dwell, in the Internal mode.
func NewLoop(box *panda.Conn, latch *Latch, dev Device, dwell time.Duration, msg log.MsgStream) *Loop {
	return &Loop{
		box:   box,
		latch: latch,
		dev:   dev,
		msg:   msg,
		src:   Internal,
		dwell: dwell,
		wake:  make(chan struct{}, 1),
	}
}

// Source returns the current trigger source.
func (loop *Loop) Source() Source {
	loop.mu.RLock()
	defer loop.mu.RUnlock()
	return loop.src
}

// SetSource switches the trigger source. The switch takes effect at the
// next iteration of the loop.
func (loop *Loop) SetSource(src Source) {
	loop.mu.Lock()
	loop.src = src
	loop.mu.Unlock()

	select {
	case loop.wake <- struct{}{}:
	default:
	}
}

// Dwell returns the integration time.
func (loop *Loop) Dwell() time.Duration {
	loop.mu.RLock()
	defer loop.mu.RUnlock()
	return loop.dwell
}

// SetDwell sets the integration time of the next integrations.
func (loop *Loop) SetDwell(dwell time.Duration) {
	loop.mu.Lock()
	defer loop.mu.Unlock()
	loop.dwell = dwell
}

// Reading returns the result of the last integration.
func (loop *Loop) Reading() Reading {
	loop.mu.RLock()
	defer loop.mu.RUnlock()
	return loop.last
}

// Run integrates until ctx is done or an exchange with the box fails.
// Run returns nil when ctx is done.
func (loop *Loop) Run(ctx context.Context) error {
	loop.msg.Debugf("zero-D loop started")
	defer loop.msg.Debugf("zero-D loop stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		switch loop.Source() {
		case Internal:
			_, err := loop.integrate(ctx)
			if err != nil {
				return loop.fail(ctx, err)
			}

		case ExtSoft:
			select {
			case <-ctx.Done():
				return nil
			case <-loop.wake:
				continue
			case <-loop.latch.ready:
			}

			err := loop.trigger(ctx)
			if err != nil {
				return loop.fail(ctx, err)
			}

		default:
			return fmt.Errorf("zerod: invalid trigger source %v", loop.Source())
		}
	}
}

func (loop *Loop) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("zerod: could not integrate detectors: %w", err)
}

func (loop *Loop) trigger(ctx context.Context) error {
	// release a host polling the latch, even if the integration fails.
	defer loop.latch.Set(false)

	start := time.Now()
	loop.dev.Begin()
	rd, err := loop.integrate(ctx)
	loop.dev.End()
	if err != nil {
		return err
	}

	loop.dev.Publish(Event{
		Trigger: loop.dev.Counter(),
		PD:      rd.PD,
		PMT:     rd.PMT,
	})
	loop.dev.Incr()
	loop.msg.Debugf("triggered integration took %v", time.Since(start))

	return nil
}

// integrate opens the detector gate for the dwell time and reads back
// the counters.
func (loop *Loop) integrate(ctx context.Context) (Reading, error) {
	var rd Reading

	err := panda.Gate(loop.box, true)
	if err != nil {
		return rd, err
	}

	timer := time.NewTimer(loop.Dwell())
	select {
	case <-ctx.Done():
		timer.Stop()
		_ = panda.Gate(loop.box, false)
		return rd, ctx.Err()
	case <-timer.C:
	}

	err = panda.Gate(loop.box, false)
	if err != nil {
		return rd, err
	}

	rd.PD, rd.PMT, err = panda.ReadCounters(loop.box)
	if err != nil {
		return rd, err
	}

	loop.mu.Lock()
	loop.last = rd
	loop.mu.Unlock()

	return rd, nil
}
