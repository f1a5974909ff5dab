// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package panda

import "fmt"

// ReadAbsPos reads the raw X and Y encoder values.
func ReadAbsPos(c *Conn) (x, y int64, err error) {
	x, err = c.QueryInt(field(INENC1, "VAL"))
	if err != nil {
		return x, y, fmt.Errorf("panda: could not read X encoder: %w", err)
	}
	y, err = c.QueryInt(field(INENC2, "VAL"))
	if err != nil {
		return x, y, fmt.Errorf("panda: could not read Y encoder: %w", err)
	}
	return x, y, nil
}

// ResetEncoders resets both encoders on their next Z mark.
//
// The four writes are always attempted; failures are reported by a
// *ConfigError.
func ResetEncoders(c *Conn) error {
	return writeAll(c, "INENC", []setting{
		{field(INENC1, "RST_ON_Z"), "1"},
		{field(INENC2, "RST_ON_Z"), "1"},
		{field(INENC1, "RST_ON_Z"), "0"},
		{field(INENC2, "RST_ON_Z"), "0"},
	})
}

// ReadCounters reads the integrated photo-diode and PMT counts.
func ReadCounters(c *Conn) (pd, pmt int64, err error) {
	pd, err = c.QueryInt(field(COUNTER5, "OUT"))
	if err != nil {
		return pd, pmt, fmt.Errorf("panda: could not read photo-diode counter: %w", err)
	}
	pmt, err = c.QueryInt(field(COUNTER6, "OUT"))
	if err != nil {
		return pd, pmt, fmt.Errorf("panda: could not read PMT counter: %w", err)
	}
	return pd, pmt, nil
}

// PointCounter reads the number of points triggered in the current line.
func PointCounter(c *Conn) (int64, error) {
	return c.QueryInt(field(COUNTER4, "OUT"))
}

// ResetPointCounter zeroes the point counter.
func ResetPointCounter(c *Conn) error {
	err := c.Disable(COUNTER4)
	if err != nil {
		return fmt.Errorf("panda: could not disable point counter: %w", err)
	}
	err = c.Enable(COUNTER4)
	if err != nil {
		return fmt.Errorf("panda: could not enable point counter: %w", err)
	}
	return nil
}

// ArmCapture arms position capture.
func ArmCapture(c *Conn) error {
	return c.Write(field(PCAP, "ARM"), "")
}

// DisarmCapture disarms position capture.
func DisarmCapture(c *Conn) error {
	return c.Write(field(PCAP, "DISARM"), "")
}
