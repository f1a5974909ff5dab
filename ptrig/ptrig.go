// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ptrig drives position-triggered scan lines on a PandA box.
//
// A Device owns three connections to the box: one for host requests,
// one for the zero-D detector loop and one for the capture stream.
// Scan lines are armed with ArmSingle and come back, once the box has
// streamed them, on the Lines channel.
package ptrig // import "github.com/go-lpc/postrig/ptrig"

import (
	"errors"
	"fmt"
)

// ErrConflict is returned when an operation is not allowed in the
// current state of the device.
var ErrConflict = errors.New("ptrig: operation not allowed in current state")

// State is the state of a device.
type State uint8

const (
	Off     State = iota
	On            // idle
	Running       // arming a line or integrating a software trigger
	Moving        // motors are moving, set by the host
	Fault
)

func (st State) String() string {
	switch st {
	case Off:
		return "OFF"
	case On:
		return "ON"
	case Running:
		return "RUNNING"
	case Moving:
		return "MOVING"
	case Fault:
		return "FAULT"
	}
	return fmt.Sprintf("State(%d)", uint8(st))
}
