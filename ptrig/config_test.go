// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ptrig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-lpc/postrig/panda"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if got, want := cfg.Addr(), "b-softimax-panda-0:8888"; got != want {
		t.Fatalf("invalid control address: got=%q, want=%q", got, want)
	}
	if got, want := cfg.DataAddr(), "b-softimax-panda-0:8889"; got != want {
		t.Fatalf("invalid data address: got=%q, want=%q", got, want)
	}
	if got, want := cfg.Dwell, 10*time.Millisecond; got != want {
		t.Fatalf("invalid dwell: got=%v, want=%v", got, want)
	}

	opts, err := cfg.Options()
	if err != nil {
		t.Fatalf("could not build options: %+v", err)
	}

	c := newConfig(cfg.Addr())
	for _, opt := range opts {
		opt(&c)
	}
	if got, want := c.axis, panda.AxisY; got != want {
		t.Fatalf("invalid trigger axis: got=%v, want=%v", got, want)
	}
	if got, want := c.signs, [2]int{+1, +1}; got != want {
		t.Fatalf("invalid signs: got=%v, want=%v", got, want)
	}
	if got, want := c.maxPts, 1000; got != want {
		t.Fatalf("invalid max points: got=%d, want=%d", got, want)
	}
}

func TestLoadConfig(t *testing.T) {
	tmp, err := os.MkdirTemp("", "postrig-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	fname := filepath.Join(tmp, "ptrig.yaml")
	err = os.WriteFile(fname, []byte(`
name: stxm-ptrig
host: 127.0.0.1
port: 9888
x_sign: -1
max_points: 250
dwell: 20ms
trig_axis: x
verify: true
memo: "postrig:${MEMO_PWD}@tcp(db.example.org:3306)/stxm"
`), 0644)
	if err != nil {
		t.Fatalf("could not write config file: %+v", err)
	}

	cfg, err := LoadConfig(fname)
	if err != nil {
		t.Fatalf("could not load config: %+v", err)
	}

	want := Config{
		Name:      "stxm-ptrig",
		Host:      "127.0.0.1",
		Port:      9888,
		DataPort:  panda.DataPort,
		XSign:     -1,
		YSign:     +1,
		MaxPoints: 250,
		Dwell:     20 * time.Millisecond,
		Timeout:   panda.DefaultTimeout,
		TrigAxis:  "x",
		Verify:    true,
		Memo:      "postrig:${MEMO_PWD}@tcp(db.example.org:3306)/stxm",
	}
	if cfg != want {
		t.Fatalf("invalid config:\ngot= %+v\nwant=%+v", cfg, want)
	}

	opts, err := cfg.Options()
	if err != nil {
		t.Fatalf("could not build options: %+v", err)
	}
	c := newConfig(cfg.Addr())
	for _, opt := range opts {
		opt(&c)
	}
	if got, want := c.data, "127.0.0.1:8889"; got != want {
		t.Fatalf("invalid data address: got=%q, want=%q", got, want)
	}
	if got, want := c.axis, panda.AxisX; got != want {
		t.Fatalf("invalid trigger axis: got=%v, want=%v", got, want)
	}
	if got, want := c.signs, [2]int{-1, +1}; got != want {
		t.Fatalf("invalid signs: got=%v, want=%v", got, want)
	}
	if !c.verify {
		t.Fatalf("verify not enabled")
	}
}

func TestLoadConfigFail(t *testing.T) {
	_, err := LoadConfig("not-there.yaml")
	if err == nil {
		t.Fatalf("expected an error")
	}

	tmp, err := os.MkdirTemp("", "postrig-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	fname := filepath.Join(tmp, "ptrig.yaml")
	err = os.WriteFile(fname, []byte("port: [1, 2]\n"), 0644)
	if err != nil {
		t.Fatalf("could not write config file: %+v", err)
	}
	_, err = LoadConfig(fname)
	if err == nil {
		t.Fatalf("expected a decoding error")
	}
}

func TestConfigOptionsFail(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  func(cfg *Config)
	}{
		{"axis", func(cfg *Config) { cfg.TrigAxis = "Z" }},
		{"x-sign", func(cfg *Config) { cfg.XSign = 2 }},
		{"y-sign", func(cfg *Config) { cfg.YSign = -3 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.cfg(&cfg)
			_, err := cfg.Options()
			if err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}
