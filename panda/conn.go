// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package panda

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-daq/tdaq/log"
)

const (
	// DefaultTimeout is the deadline for the box to answer a command.
	DefaultTimeout = 1 * time.Second

	// ControlPort is the default TCP port of the control protocol.
	ControlPort = 8888

	// DataPort is the default TCP port of the capture stream.
	DataPort = 8889
)

// Conn is a persistent control connection to the box.
//
// A Conn serializes its commands: each Send writes one command line and
// waits for one reply line. A Conn is meant to be owned by a single
// logical caller; concurrent callers should dial their own.
type Conn struct {
	addr    string
	timeout time.Duration
	msg     log.MsgStream

	mu     sync.Mutex
	sck    net.Conn
	r      *bufio.Reader
	closed bool
}

// ConnOption configures a control connection.
type ConnOption func(*Conn)

// WithTimeout sets the deadline for a reply.
// A zero timeout waits forever.
func WithTimeout(d time.Duration) ConnOption {
	return func(c *Conn) {
		c.timeout = d
	}
}

// WithMsgStream sets the stream commands and replies are logged to.
func WithMsgStream(msg log.MsgStream) ConnOption {
	return func(c *Conn) {
		c.msg = msg
	}
}

// Dial opens a control connection to the box at addr.
func Dial(addr string, opts ...ConnOption) (*Conn, error) {
	c := &Conn{
		addr:    addr,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.msg == nil {
		c.msg = log.NewMsgStream("panda", log.LvlInfo, os.Stdout)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.dial()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DialStream opens a raw connection to the capture stream of the box.
func DialStream(addr string, timeout time.Duration) (net.Conn, error) {
	sck, err := dial(addr, timeout)
	if err != nil {
		return nil, &ChannelError{Op: "dial", Cmd: addr, Err: err}
	}
	return sck, nil
}

func dial(addr string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{
		Timeout: timeout,
		Control: control,
	}
	return d.Dial("tcp", addr)
}

func (c *Conn) dial() error {
	sck, err := dial(c.addr, c.timeout)
	if err != nil {
		return &ChannelError{Op: "dial", Cmd: c.addr, Err: err}
	}
	c.sck = sck
	c.r = bufio.NewReader(sck)
	return nil
}

// Addr returns the address of the box.
func (c *Conn) Addr() string { return c.addr }

// Close closes the connection.
// Commands sent after Close fail with ErrChannel.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.sck == nil {
		return nil
	}
	err := c.sck.Close()
	c.sck = nil
	c.r = nil
	if err != nil {
		return fmt.Errorf("panda: could not close connection to %q: %w", c.addr, err)
	}
	return nil
}

// Send sends a raw command line and returns the raw reply line, without
// its line terminator.
//
// A connection broken by a failed exchange is re-dialed on the next Send.
// The failed command itself is never sent again.
func (c *Conn) Send(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", &ChannelError{Op: "send", Cmd: cmd, Err: net.ErrClosed}
	}

	if c.sck == nil {
		err := c.dial()
		if err != nil {
			c.msg.Errorf("could not re-dial box: %+v", err)
			return "", err
		}
	}

	reply, err := c.roundTrip(cmd)
	if err != nil {
		_ = c.sck.Close()
		c.sck = nil
		c.r = nil

		err = &ChannelError{Op: "send", Cmd: cmd, Err: err}
		c.msg.Errorf("%+v", err)
		return "", err
	}
	c.msg.Debugf("%s, resp: %q", cmd, reply)

	return reply, nil
}

func (c *Conn) roundTrip(cmd string) (string, error) {
	if c.timeout > 0 {
		err := c.sck.SetDeadline(time.Now().Add(c.timeout))
		if err != nil {
			return "", fmt.Errorf("could not set deadline: %w", err)
		}
	}

	_, err := io.WriteString(c.sck, cmd+"\n")
	if err != nil {
		return "", err
	}

	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Write sets block field (e.g. "PCOMP1.START") to value.
func (c *Conn) Write(field, value string) error {
	cmd := field + "=" + value
	reply, err := c.Send(cmd)
	if err != nil {
		return err
	}
	return checkOK(cmd, reply)
}

// Query reads the value of a block field (e.g. "INENC1.VAL").
func (c *Conn) Query(field string) (string, error) {
	cmd := field + "?"
	reply, err := c.Send(cmd)
	if err != nil {
		return "", err
	}
	return parseValue(cmd, reply)
}

// QueryInt reads the integer value of a block field.
func (c *Conn) QueryInt(field string) (int64, error) {
	v, err := c.Query(field)
	if err != nil {
		return 0, err
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("panda: invalid integer value %q for %s: %w", v, field, ErrParse)
	}
	return i, nil
}

// QueryFloat reads the floating point value of a block field.
func (c *Conn) QueryFloat(field string) (float64, error) {
	v, err := c.Query(field)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("panda: invalid value %q for %s: %w", v, field, ErrParse)
	}
	return f, nil
}

// Enable sets the ENABLE field of block to ONE.
func (c *Conn) Enable(block string) error {
	return c.Write(field(block, "ENABLE"), "ONE")
}

// Disable sets the ENABLE field of block to ZERO.
func (c *Conn) Disable(block string) error {
	return c.Write(field(block, "ENABLE"), "ZERO")
}

func checkOK(cmd, reply string) error {
	switch {
	case reply == "OK":
		return nil
	case strings.HasPrefix(reply, "ERR"):
		return fmt.Errorf("panda: %q: %s: %w", cmd, reply, ErrRejected)
	default:
		return fmt.Errorf("panda: invalid reply %q to %q: %w", reply, cmd, ErrParse)
	}
}

func parseValue(cmd, reply string) (string, error) {
	if strings.HasPrefix(reply, "ERR") {
		return "", fmt.Errorf("panda: %q: %s: %w", cmd, reply, ErrRejected)
	}
	i := strings.Index(reply, "=")
	if i < 0 {
		return "", fmt.Errorf("panda: invalid reply %q to %q: %w", reply, cmd, ErrParse)
	}
	return strings.TrimSpace(reply[i+1:]), nil
}
