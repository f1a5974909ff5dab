// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package panda

import (
	"errors"
	"reflect"
	"testing"

	"github.com/go-lpc/postrig/internal/fakebox"
)

func TestDirectionFrom(t *testing.T) {
	for _, tc := range []struct {
		sign int
		want Direction
		str  string
	}{
		{+1, Positive, "Positive"},
		{-1, Negative, "Negative"},
		{0, Either, "Either"},
		{2, Either, "Either"},
	} {
		got := DirectionFrom(tc.sign)
		if got != tc.want {
			t.Fatalf("sign=%d: invalid direction: got=%v, want=%v", tc.sign, got, tc.want)
		}
		if got.String() != tc.str {
			t.Fatalf("sign=%d: invalid name: got=%q, want=%q", tc.sign, got.String(), tc.str)
		}
	}
}

func TestNanometers(t *testing.T) {
	for _, tc := range []struct {
		pos  float64
		sign int
		want int64
	}{
		{0, +1, 0},
		{1.5, +1, 1500},
		{1.5, -1, -1500},
		{-12.3456, +1, -12346},
		{1.0004, +1, 1000},
		{100, -1, -100000},
	} {
		got := Nanometers(tc.pos, tc.sign)
		if got != tc.want {
			t.Fatalf("pos=%v, sign=%d: got=%d, want=%d", tc.pos, tc.sign, got, tc.want)
		}
	}
}

func TestComparatorValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  ComparatorConfig
		err  string
	}{
		{"default", DefaultComparator(42, Positive), ""},
		{"zero-width", ComparatorConfig{Width: 0, Step: 21, Pulses: 1}, "panda: invalid comparator width 0 (want >= 1)"},
		{"step-too-small", ComparatorConfig{Width: 20, Step: 20, Pulses: 1}, "panda: invalid comparator step 20 (want >= width+1=21)"},
		{"no-pulse", ComparatorConfig{Width: 20, Step: 21, Pulses: 0}, "panda: invalid comparator pulses 0 (want >= 1)"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			switch {
			case err == nil && tc.err == "":
			case err == nil:
				t.Fatalf("expected an error")
			case tc.err == "":
				t.Fatalf("could not validate: %+v", err)
			case err.Error() != tc.err:
				t.Fatalf("invalid error:\ngot= %q\nwant=%q", err.Error(), tc.err)
			}
		})
	}
}

func TestSetAxisTrigger(t *testing.T) {
	box := newTestBox(t)
	c := newTestConn(t, box)

	for _, tc := range []struct {
		name string
		pos  float64
		axis Axis
		sign int
		want []string
	}{
		{
			name: "x-positive",
			pos:  12.5,
			axis: AxisX,
			sign: +1,
			want: []string{
				"PCOMP1.PRE_START=100",
				"PCOMP1.START=12500",
				"PCOMP1.WIDTH=20",
				"PCOMP1.STEP=21",
				"PCOMP1.PULSES=1",
				"PCOMP1.DIR=Positive",
			},
		},
		{
			name: "y-negative",
			pos:  -3.2,
			axis: AxisY,
			sign: -1,
			want: []string{
				"PCOMP1.PRE_START=100",
				"PCOMP1.START=3200",
				"PCOMP1.WIDTH=20",
				"PCOMP1.STEP=21",
				"PCOMP1.PULSES=1",
				"PCOMP1.DIR=Negative",
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			box.ClearCommands()
			cfg, err := SetAxisTrigger(c, PCOMP1, tc.pos, tc.axis, tc.sign)
			if err != nil {
				t.Fatalf("could not set axis trigger: %+v", err)
			}
			if got, want := box.Commands(), tc.want; !reflect.DeepEqual(got, want) {
				t.Fatalf("invalid commands:\ngot= %q\nwant=%q", got, want)
			}
			if cfg.Width >= cfg.Step {
				t.Fatalf("invalid program: width=%d, step=%d", cfg.Width, cfg.Step)
			}
			err = Verify(c, PCOMP1, cfg)
			if err != nil {
				t.Fatalf("could not verify program: %+v", err)
			}
		})
	}
}

func TestPreparePartialFailure(t *testing.T) {
	box := newTestBox(t)
	c := newTestConn(t, box)

	box.Inject("PCOMP1.WIDTH", fakebox.Reject)
	box.Inject("PCOMP1.DIR", fakebox.Garbage)

	cfg := DefaultComparator(-700, Negative)
	err := Prepare(c, PCOMP1, cfg)
	if err == nil {
		t.Fatalf("expected an error")
	}

	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("invalid error type %T: %+v", err, err)
	}
	if got, want := cerr.Failed(), []string{"PCOMP1.WIDTH", "PCOMP1.DIR"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid failed fields: got=%q, want=%q", got, want)
	}
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("error should wrap %v: %+v", ErrRejected, err)
	}

	if got, want := len(box.Commands()), 6; got != want {
		t.Fatalf("invalid number of writes: got=%d, want=%d", got, want)
	}
	for _, name := range []string{"PCOMP1.PRE_START", "PCOMP1.START", "PCOMP1.STEP", "PCOMP1.PULSES"} {
		if _, ok := box.Field(name); !ok {
			t.Fatalf("field %s was not written", name)
		}
	}

	box.Clear("PCOMP1.WIDTH")
	box.Clear("PCOMP1.DIR")
	box.Set("PCOMP1.WIDTH", "5")
	box.Set("PCOMP1.DIR", "Negative")
	err = Verify(c, PCOMP1, cfg)
	if err == nil {
		t.Fatalf("expected a mismatch")
	}
}

func TestReadComparatorInvalidDir(t *testing.T) {
	box := newTestBox(t)
	c := newTestConn(t, box)

	err := Prepare(c, PCOMP1, DefaultComparator(1, Positive))
	if err != nil {
		t.Fatalf("could not prepare: %+v", err)
	}
	box.Set("PCOMP1.DIR", "Sideways")

	_, err = ReadComparator(c, PCOMP1)
	if !errors.Is(err, ErrParse) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, ErrParse)
	}
}

func TestSelectAxisRearm(t *testing.T) {
	box := newTestBox(t)
	c := newTestConn(t, box)

	err := SelectAxis(c, PCOMP1, AxisX)
	if err != nil {
		t.Fatalf("could not select axis: %+v", err)
	}
	err = SelectAxis(c, PCOMP1, AxisY)
	if err != nil {
		t.Fatalf("could not select axis: %+v", err)
	}
	err = Rearm(c, PCOMP1)
	if err != nil {
		t.Fatalf("could not rearm: %+v", err)
	}

	want := []string{
		"PCOMP1.INP=INENC1.VAL",
		"PCOMP1.INP=INENC2.VAL",
		"PCOMP1.ENABLE=ZERO",
		"PCOMP1.ENABLE=ONE",
	}
	if got := box.Commands(); !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid commands:\ngot= %q\nwant=%q", got, want)
	}

	state, err := ComparatorState(c, PCOMP1)
	if err != nil {
		t.Fatalf("could not read state: %+v", err)
	}
	if got, want := state, "WAIT_PRE_START"; got != want {
		t.Fatalf("invalid state: got=%q, want=%q", got, want)
	}
}
