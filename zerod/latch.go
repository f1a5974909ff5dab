// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zerod

import (
	"context"
	"sync"
)

// Latch is a software trigger shared by the host, which sets it, and the
// acquisition loop, which clears it once the triggered measurement is
// published.
//
// At most one trigger is pending at a time: setting an already set latch
// is a no-op.
type Latch struct {
	mu    sync.Mutex
	set   bool
	ready chan struct{}
}

// NewLatch returns a cleared latch.
func NewLatch() *Latch {
	return &Latch{ready: make(chan struct{}, 1)}
}

// Get reports whether a trigger is pending or being served.
func (l *Latch) Get() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.set
}

// Set sets or clears the latch.
func (l *Latch) Set(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.set == v {
		return
	}
	l.set = v

	if v {
		select {
		case l.ready <- struct{}{}:
		default:
		}
		return
	}

	// drop a trigger nobody picked up yet.
	select {
	case <-l.ready:
	default:
	}
}

// Wait blocks until a trigger is pending or ctx is done.
// The latch stays set until cleared with Set(false).
func (l *Latch) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ready:
		return nil
	}
}
