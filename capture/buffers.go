// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capture

import (
	"fmt"
	"sync"
)

// DefaultMaxPoints is the default capacity of the line buffers.
const DefaultMaxPoints = 1000

// Line is a decoded scan line.
// X and Y are in µm, Dwell in ms.
// All slices have the same length.
type Line struct {
	X     []float64
	Y     []float64
	Dwell []float64
	PMT   []int64
	Diode []int64
	Point []int64
}

// Len returns the number of points in the line.
func (line Line) Len() int { return len(line.X) }

// Buffers holds the points of the scan line being captured, as six
// parallel sequences of bounded capacity.
//
// Buffers is safe for concurrent use: the capture reader appends while
// host requests take snapshots.
type Buffers struct {
	mu   sync.RWMutex
	max  int
	line Line
}

// NewBuffers returns buffers able to hold max points.
func NewBuffers(max int) *Buffers {
	if max <= 0 {
		max = DefaultMaxPoints
	}
	buf := &Buffers{max: max}
	buf.line = Line{
		X:     make([]float64, 0, max),
		Y:     make([]float64, 0, max),
		Dwell: make([]float64, 0, max),
		PMT:   make([]int64, 0, max),
		Diode: make([]int64, 0, max),
		Point: make([]int64, 0, max),
	}
	return buf
}

// Cap returns the maximum number of points.
func (buf *Buffers) Cap() int { return buf.max }

// Len returns the number of points held.
func (buf *Buffers) Len() int {
	buf.mu.RLock()
	defer buf.mu.RUnlock()
	return len(buf.line.X)
}

// Append converts a raw record to display units and appends it.
// Append returns ErrOverflow when the buffers are full.
func (buf *Buffers) Append(rec Record) error {
	buf.mu.Lock()
	defer buf.mu.Unlock()

	if len(buf.line.X) >= buf.max {
		return fmt.Errorf("%w (max=%d points)", ErrOverflow, buf.max)
	}

	buf.line.X = append(buf.line.X, float64(rec.X)/1000)
	buf.line.Y = append(buf.line.Y, float64(rec.Y)/1000)
	buf.line.Dwell = append(buf.line.Dwell, float64(rec.Dwell)/1000)
	buf.line.PMT = append(buf.line.PMT, rec.PMT)
	buf.line.Diode = append(buf.line.Diode, rec.Diode)
	buf.line.Point = append(buf.line.Point, rec.Point)
	return nil
}

// Reset empties the buffers.
func (buf *Buffers) Reset() {
	buf.mu.Lock()
	defer buf.mu.Unlock()

	buf.line.X = buf.line.X[:0]
	buf.line.Y = buf.line.Y[:0]
	buf.line.Dwell = buf.line.Dwell[:0]
	buf.line.PMT = buf.line.PMT[:0]
	buf.line.Diode = buf.line.Diode[:0]
	buf.line.Point = buf.line.Point[:0]
}

// Snapshot returns a copy of the points held.
func (buf *Buffers) Snapshot() Line {
	buf.mu.RLock()
	defer buf.mu.RUnlock()

	return Line{
		X:     append([]float64(nil), buf.line.X...),
		Y:     append([]float64(nil), buf.line.Y...),
		Dwell: append([]float64(nil), buf.line.Dwell...),
		PMT:   append([]int64(nil), buf.line.PMT...),
		Diode: append([]int64(nil), buf.line.Diode...),
		Point: append([]int64(nil), buf.line.Point...),
	}
}
