// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package panda

import (
	"fmt"
	"math"
	"strconv"
)

// Direction is the direction of motion a position comparator triggers on.
type Direction uint8

const (
	Either Direction = iota
	Positive
	Negative
)

// DirectionFrom maps an axis sign to a comparator direction:
// +1 is Positive, -1 is Negative, anything else is Either.
func DirectionFrom(sign int) Direction {
	switch sign {
	case +1:
		return Positive
	case -1:
		return Negative
	default:
		return Either
	}
}

func (dir Direction) String() string {
	switch dir {
	case Positive:
		return "Positive"
	case Negative:
		return "Negative"
	default:
		return "Either"
	}
}

func parseDirection(s string) (Direction, error) {
	switch s {
	case "Positive":
		return Positive, nil
	case "Negative":
		return Negative, nil
	case "Either":
		return Either, nil
	}
	return Either, fmt.Errorf("panda: invalid direction %q: %w", s, ErrParse)
}

// Default position comparator program, in encoder units (nm).
const (
	DefaultPreStart = 100
	DefaultWidth    = 20
	DefaultStep     = 21
	DefaultPulses   = 1
)

// ComparatorConfig is the program of a position comparator block.
// Positions are signed encoder units (nm).
type ComparatorConfig struct {
	PreStart int64
	Start    int64
	Width    int64
	Step     int64
	Pulses   int64
	Dir      Direction
}

// DefaultComparator returns the single-pulse program used to trigger a
// scan line at start.
func DefaultComparator(start int64, dir Direction) ComparatorConfig {
	return ComparatorConfig{
		PreStart: DefaultPreStart,
		Start:    start,
		Width:    DefaultWidth,
		Step:     DefaultStep,
		Pulses:   DefaultPulses,
		Dir:      dir,
	}
}

// Validate checks the program is one the comparator can run.
func (cfg ComparatorConfig) Validate() error {
	switch {
	case cfg.Width < 1:
		return fmt.Errorf("panda: invalid comparator width %d (want >= 1)", cfg.Width)
	case cfg.Step < cfg.Width+1:
		return fmt.Errorf("panda: invalid comparator step %d (want >= width+1=%d)", cfg.Step, cfg.Width+1)
	case cfg.Pulses < 1:
		return fmt.Errorf("panda: invalid comparator pulses %d (want >= 1)", cfg.Pulses)
	}
	return nil
}

func (cfg ComparatorConfig) settings(block string) []setting {
	itoa := func(v int64) string { return strconv.FormatInt(v, 10) }
	return []setting{
		{field(block, "PRE_START"), itoa(cfg.PreStart)},
		{field(block, "START"), itoa(cfg.Start)},
		{field(block, "WIDTH"), itoa(cfg.Width)},
		{field(block, "STEP"), itoa(cfg.Step)},
		{field(block, "PULSES"), itoa(cfg.Pulses)},
		{field(block, "DIR"), cfg.Dir.String()},
	}
}

// Prepare writes the comparator program to block, one field at a time, in
// the order PRE_START, START, WIDTH, STEP, PULSES, DIR.
//
// Every field is attempted. If some writes fail, Prepare returns a
// *ConfigError listing them and the block holds a mix of old and new values.
func Prepare(c *Conn, block string, cfg ComparatorConfig) error {
	return writeAll(c, block, cfg.settings(block))
}

// Nanometers converts a position in micrometers to signed encoder units.
// Halves are rounded to even.
func Nanometers(pos float64, sign int) int64 {
	return int64(math.RoundToEven(pos*1000)) * int64(sign)
}

// SetAxisTrigger programs block to fire a single pulse when the encoder
// crosses pos (in micrometers), in the direction given by sign.
func SetAxisTrigger(c *Conn, block string, pos float64, axis Axis, sign int) (ComparatorConfig, error) {
	cfg := DefaultComparator(Nanometers(pos, sign), DirectionFrom(sign))
	c.msg.Debugf("%s trigger at %v um (sign=%+d): start=%d", axis, pos, sign, cfg.Start)
	err := Prepare(c, block, cfg)
	if err != nil {
		return cfg, fmt.Errorf("panda: could not set %s-axis trigger: %w", axis, err)
	}
	return cfg, nil
}

// ReadComparator reads back the program of block.
func ReadComparator(c *Conn, block string) (ComparatorConfig, error) {
	var (
		cfg ComparatorConfig
		err error
	)
	for _, v := range []struct {
		name string
		ptr  *int64
	}{
		{"PRE_START", &cfg.PreStart},
		{"START", &cfg.Start},
		{"WIDTH", &cfg.Width},
		{"STEP", &cfg.Step},
		{"PULSES", &cfg.Pulses},
	} {
		*v.ptr, err = c.QueryInt(field(block, v.name))
		if err != nil {
			return cfg, fmt.Errorf("panda: could not read %s.%s: %w", block, v.name, err)
		}
	}

	dir, err := c.Query(field(block, "DIR"))
	if err != nil {
		return cfg, fmt.Errorf("panda: could not read %s.DIR: %w", block, err)
	}
	cfg.Dir, err = parseDirection(dir)
	if err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Verify reads back the program of block and compares it with want.
func Verify(c *Conn, block string, want ComparatorConfig) error {
	got, err := ReadComparator(c, block)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("panda: %s program mismatch: got=%+v, want=%+v", block, got, want)
	}
	return nil
}

// SelectAxis wires the encoder of axis to the input of block.
func SelectAxis(c *Conn, block string, axis Axis) error {
	err := c.Write(field(block, "INP"), field(axis.Encoder(), "VAL"))
	if err != nil {
		return fmt.Errorf("panda: could not select %s-axis for %s: %w", axis, block, err)
	}
	return nil
}

// Rearm restarts the comparator so it waits for its next start position.
func Rearm(c *Conn, block string) error {
	err := c.Disable(block)
	if err != nil {
		return fmt.Errorf("panda: could not disable %s: %w", block, err)
	}
	err = c.Enable(block)
	if err != nil {
		return fmt.Errorf("panda: could not enable %s: %w", block, err)
	}
	return nil
}

// ComparatorState returns the state of the comparator block (e.g. "WAIT_ENABLE").
func ComparatorState(c *Conn, block string) (string, error) {
	return c.Query(field(block, "STATE"))
}
