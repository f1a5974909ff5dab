// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package panda talks to a PandA position-compare box over its ASCII
// control port.
//
// Commands are newline terminated and take one of two forms:
//
//	BLOCK.FIELD=VALUE
//	BLOCK.FIELD?
//
// The box answers a write with "OK", a query with "OK =VALUE" and a
// rejected command with "ERR ...".
package panda // import "github.com/go-lpc/postrig/panda"

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrChannel reports a failure to connect, send to or receive from the box.
	ErrChannel = errors.New("panda: channel error")

	// ErrParse reports a reply that does not have the expected shape.
	ErrParse = errors.New("panda: could not parse reply")

	// ErrRejected reports a command the box answered with "ERR".
	ErrRejected = errors.New("panda: command rejected")
)

// Blocks of the box wired for position-triggered acquisitions.
const (
	PCOMP1   = "PCOMP1"   // position comparator
	PULSE1   = "PULSE1"   // time-based detector pulses
	PULSE2   = "PULSE2"   // zero-D detector gate
	COUNTER4 = "COUNTER4" // point counter
	COUNTER5 = "COUNTER5" // photo-diode integration
	COUNTER6 = "COUNTER6" // PMT integration
	INENC1   = "INENC1"   // X encoder
	INENC2   = "INENC2"   // Y encoder
	PCAP     = "*PCAP"    // position capture
)

// Axis is a scan axis, with its own encoder input.
type Axis uint8

const (
	AxisX Axis = iota
	AxisY
)

func (axis Axis) String() string {
	switch axis {
	case AxisX:
		return "X"
	case AxisY:
		return "Y"
	default:
		return fmt.Sprintf("Axis(%d)", uint8(axis))
	}
}

// Encoder returns the name of the encoder block reading that axis.
func (axis Axis) Encoder() string {
	if axis == AxisX {
		return INENC1
	}
	return INENC2
}

// ParseAxis parses an axis name ("X" or "Y", case insensitive).
func ParseAxis(s string) (Axis, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "X":
		return AxisX, nil
	case "Y":
		return AxisY, nil
	}
	return 0, fmt.Errorf("panda: invalid axis %q", s)
}

func field(block, name string) string {
	return block + "." + name
}

// ChannelError describes a failed exchange on a control connection.
type ChannelError struct {
	Op  string // dial, send
	Cmd string
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("panda: could not %s %q: %+v", e.Op, e.Cmd, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

func (e *ChannelError) Is(target error) bool { return target == ErrChannel }

// FieldError is the failure of a single field write.
type FieldError struct {
	Field string
	Err   error
}

// ConfigError lists the fields of a multi-field update that could not be
// applied. The other fields of the update were written: the block is left
// partially configured.
type ConfigError struct {
	Block  string
	Fields []FieldError
}

// Failed returns the names of the fields that could not be written.
func (e *ConfigError) Failed() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return names
}

func (e *ConfigError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("panda: could not configure %s", e.Block)
	}
	return fmt.Sprintf(
		"panda: could not configure %s (failed fields: %s): %+v",
		e.Block, strings.Join(e.Failed(), ", "), e.Fields[0].Err,
	)
}

func (e *ConfigError) Unwrap() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e.Fields[0].Err
}

type setting struct {
	field string
	value string
}

// writeAll writes every setting in order. A failed write does not prevent
// the following ones from being attempted.
func writeAll(c *Conn, block string, settings []setting) error {
	var errs []FieldError
	for _, s := range settings {
		err := c.Write(s.field, s.value)
		if err != nil {
			c.msg.Warnf("could not write %s=%s: %+v", s.field, s.value, err)
			errs = append(errs, FieldError{Field: s.field, Err: err})
		}
	}
	if len(errs) > 0 {
		return &ConfigError{Block: block, Fields: errs}
	}
	return nil
}
