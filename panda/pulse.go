// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package panda

import (
	"fmt"
	"strconv"
)

// PulseConfig is the program of a time-based pulse generator.
// Width and Step are in milliseconds.
type PulseConfig struct {
	Pulses int64
	Width  float64
	Step   float64
}

// Validate checks the program is one the pulse generator can run.
func (cfg PulseConfig) Validate() error {
	switch {
	case cfg.Pulses < 1:
		return fmt.Errorf("panda: invalid pulse count %d (want >= 1)", cfg.Pulses)
	case cfg.Width <= 0:
		return fmt.Errorf("panda: invalid pulse width %v ms", cfg.Width)
	case cfg.Width > cfg.Step:
		return fmt.Errorf("panda: invalid pulse width %v ms > step %v ms", cfg.Width, cfg.Step)
	}
	return nil
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// SetPulse writes the pulse generator program to block, in the order
// PULSES, WIDTH, STEP. Failed fields are reported by a *ConfigError.
func SetPulse(c *Conn, block string, cfg PulseConfig) error {
	return writeAll(c, block, []setting{
		{field(block, "PULSES"), strconv.FormatInt(cfg.Pulses, 10)},
		{field(block, "WIDTH"), ftoa(cfg.Width)},
		{field(block, "STEP"), ftoa(cfg.Step)},
	})
}

// ReadPulse reads back the program of the pulse generator block.
func ReadPulse(c *Conn, block string) (PulseConfig, error) {
	var (
		cfg PulseConfig
		err error
	)

	cfg.Pulses, err = c.QueryInt(field(block, "PULSES"))
	if err != nil {
		return cfg, fmt.Errorf("panda: could not read %s.PULSES: %w", block, err)
	}
	cfg.Width, err = c.QueryFloat(field(block, "WIDTH"))
	if err != nil {
		return cfg, fmt.Errorf("panda: could not read %s.WIDTH: %w", block, err)
	}
	cfg.Step, err = c.QueryFloat(field(block, "STEP"))
	if err != nil {
		return cfg, fmt.Errorf("panda: could not read %s.STEP: %w", block, err)
	}
	return cfg, nil
}

// SetPulseField writes a single field (PULSES, WIDTH or STEP) of block.
func SetPulseField(c *Conn, block, name string, v float64) error {
	return c.Write(field(block, name), ftoa(v))
}

// PulseEnabled reports whether block is enabled.
func PulseEnabled(c *Conn, block string) (bool, error) {
	v, err := c.Query(field(block, "ENABLE"))
	if err != nil {
		return false, err
	}
	switch v {
	case "ONE", "1":
		return true, nil
	case "ZERO", "0":
		return false, nil
	}
	return false, fmt.Errorf("panda: invalid %s.ENABLE value %q: %w", block, v, ErrParse)
}

// SetDetDwell sets the gate width of the zero-D detector, in milliseconds.
func SetDetDwell(c *Conn, ms float64) error {
	err := c.Write(field(PULSE2, "WIDTH"), ftoa(ms))
	if err != nil {
		return fmt.Errorf("panda: could not set detector dwell: %w", err)
	}
	return nil
}

// Gate forces the zero-D detector gate high (on=true) or low.
func Gate(c *Conn, on bool) error {
	v := "ZERO"
	if on {
		v = "ONE"
	}
	return c.Write(field(PULSE2, "TRIG"), v)
}
