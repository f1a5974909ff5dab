// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ptrig

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/postrig/capture"
	"github.com/go-lpc/postrig/memodb"
	"github.com/go-lpc/postrig/panda"
	"gopkg.in/yaml.v3"
)

// Memo stores the memorized attributes of a device.
type Memo interface {
	Load(ctx context.Context, device string) (memodb.Memo, error)
	Save(ctx context.Context, device string, m memodb.Memo) error
}

// Alerter notifies operators of a failed worker.
type Alerter interface {
	Alert(subject, body string) error
}

type config struct {
	data    string        // address of the capture stream
	signs   [2]int        // X, Y encoder signs
	maxPts  int           // capacity of the capture buffers
	dwell   time.Duration // zero-D integration time
	timeout time.Duration // control reply deadline
	axis    panda.Axis    // initial trigger axis
	verify  bool          // read back comparator programs

	name  string // device name in the memo store
	memo  Memo
	alert Alerter
	msg   log.MsgStream
}

func newConfig(addr string) config {
	data := ""
	if host, _, err := net.SplitHostPort(addr); err == nil {
		data = net.JoinHostPort(host, strconv.Itoa(panda.DataPort))
	}
	return config{
		data:    data,
		signs:   [2]int{+1, +1},
		maxPts:  capture.DefaultMaxPoints,
		dwell:   10 * time.Millisecond,
		timeout: panda.DefaultTimeout,
		axis:    panda.AxisY,
		name:    "ptrig",
		msg:     log.NewMsgStream("ptrig", log.LvlInfo, os.Stdout),
	}
}

// Option configures a device.
type Option func(*config)

// WithDataAddr sets the address of the capture stream port.
// The default is the control host on port 8889.
func WithDataAddr(addr string) Option {
	return func(cfg *config) {
		cfg.data = addr
	}
}

// WithAxisSign sets the sign (+1 or -1) relating encoder counts of axis
// to sample positions.
func WithAxisSign(axis panda.Axis, sign int) Option {
	return func(cfg *config) {
		cfg.signs[axis] = sign
	}
}

// WithMaxPoints sets the maximum number of points of a scan line.
func WithMaxPoints(n int) Option {
	return func(cfg *config) {
		cfg.maxPts = n
	}
}

// WithDwell sets the initial zero-D integration time.
func WithDwell(d time.Duration) Option {
	return func(cfg *config) {
		cfg.dwell = d
	}
}

// WithTimeout sets the deadline for control replies.
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.timeout = d
	}
}

// WithTrigAxis sets the initial trigger axis.
func WithTrigAxis(axis panda.Axis) Option {
	return func(cfg *config) {
		cfg.axis = axis
	}
}

// WithVerify enables the read back of every comparator program.
func WithVerify(v bool) Option {
	return func(cfg *config) {
		cfg.verify = v
	}
}

// WithMemo persists the axis offsets of the device name into m.
func WithMemo(name string, m Memo) Option {
	return func(cfg *config) {
		cfg.name = name
		cfg.memo = m
	}
}

// WithAlerter sets the notifier used when a worker fails.
func WithAlerter(a Alerter) Option {
	return func(cfg *config) {
		cfg.alert = a
	}
}

// WithMsgStream sets the log stream of the device and of its workers.
func WithMsgStream(msg log.MsgStream) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// Config is the on-disk configuration of a device.
type Config struct {
	Name      string        `yaml:"name"`
	Host      string        `yaml:"host"`
	Port      int           `yaml:"port"`
	DataPort  int           `yaml:"data_port"`
	XSign     int           `yaml:"x_sign"`
	YSign     int           `yaml:"y_sign"`
	MaxPoints int           `yaml:"max_points"`
	Dwell     time.Duration `yaml:"dwell"`
	Timeout   time.Duration `yaml:"timeout"`
	TrigAxis  string        `yaml:"trig_axis"`
	Verify    bool          `yaml:"verify"`

	// Memo is the MySQL data source name of the database holding
	// memorized attributes, as in "user:${PWD_VAR}@tcp(host)/dbname".
	// Environment variables are expanded. Memorization is disabled
	// when empty.
	Memo string `yaml:"memo"`
}

// DefaultConfig returns the configuration of the beamline box.
func DefaultConfig() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads a YAML configuration file.
// Missing values are set to their defaults.
func LoadConfig(fname string) (Config, error) {
	var cfg Config

	raw, err := os.ReadFile(fname)
	if err != nil {
		return cfg, fmt.Errorf("ptrig: could not read config file %q: %w", fname, err)
	}

	err = yaml.Unmarshal(raw, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("ptrig: could not decode config file %q: %w", fname, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Name == "" {
		cfg.Name = "ptrig"
	}
	if cfg.Host == "" {
		cfg.Host = "b-softimax-panda-0"
	}
	if cfg.Port == 0 {
		cfg.Port = panda.ControlPort
	}
	if cfg.DataPort == 0 {
		cfg.DataPort = panda.DataPort
	}
	if cfg.XSign == 0 {
		cfg.XSign = +1
	}
	if cfg.YSign == 0 {
		cfg.YSign = +1
	}
	if cfg.MaxPoints == 0 {
		cfg.MaxPoints = capture.DefaultMaxPoints
	}
	if cfg.Dwell == 0 {
		cfg.Dwell = 10 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = panda.DefaultTimeout
	}
	if cfg.TrigAxis == "" {
		cfg.TrigAxis = "Y"
	}
}

// Addr returns the address of the control port.
func (cfg Config) Addr() string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// DataAddr returns the address of the capture stream port.
func (cfg Config) DataAddr() string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.DataPort))
}

// Options returns the device options described by cfg.
func (cfg Config) Options() ([]Option, error) {
	axis, err := panda.ParseAxis(cfg.TrigAxis)
	if err != nil {
		return nil, fmt.Errorf("ptrig: invalid trigger axis: %w", err)
	}
	for _, sign := range []int{cfg.XSign, cfg.YSign} {
		if sign != +1 && sign != -1 {
			return nil, fmt.Errorf("ptrig: invalid axis sign %d", sign)
		}
	}

	return []Option{
		WithDataAddr(cfg.DataAddr()),
		WithAxisSign(panda.AxisX, cfg.XSign),
		WithAxisSign(panda.AxisY, cfg.YSign),
		WithMaxPoints(cfg.MaxPoints),
		WithDwell(cfg.Dwell),
		WithTimeout(cfg.Timeout),
		WithTrigAxis(axis),
		WithVerify(cfg.Verify),
	}, nil
}
