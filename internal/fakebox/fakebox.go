// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakebox simulates a PandA box, with its control port and its
// capture stream port, for tests and bench work.
package fakebox // import "github.com/go-lpc/postrig/internal/fakebox"

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
)

// Fault is a failure the box can be told to produce for a field.
type Fault uint8

const (
	Reject  Fault = iota + 1 // reply "ERR ..."
	Garbage                  // reply an unparsable line
	Drop                     // close the connection without replying
	Mute                     // never reply
)

// Option configures a box.
type Option func(*Box)

// WithHook registers a function called after every accepted write.
func WithHook(f func(box *Box, field, value string)) Option {
	return func(box *Box) {
		box.hook = f
	}
}

// Box is a simulated PandA box.
type Box struct {
	ctl  net.Listener
	data net.Listener
	hook func(box *Box, field, value string)

	mu     sync.Mutex
	fields map[string]string
	cmds   []string
	faults map[string]Fault
	conns  map[net.Conn]struct{}

	stream chan string
	quit   chan struct{}
	wg     sync.WaitGroup
}

// New starts a box listening on the ctl and data addresses
// (e.g. "localhost:0").
func New(ctl, data string, opts ...Option) (*Box, error) {
	lctl, err := net.Listen("tcp", ctl)
	if err != nil {
		return nil, fmt.Errorf("fakebox: could not listen on %q: %w", ctl, err)
	}
	ldata, err := net.Listen("tcp", data)
	if err != nil {
		_ = lctl.Close()
		return nil, fmt.Errorf("fakebox: could not listen on %q: %w", data, err)
	}

	box := &Box{
		ctl:  lctl,
		data: ldata,
		fields: map[string]string{
			"INENC1.VAL":    "0",
			"INENC2.VAL":    "0",
			"COUNTER4.OUT":  "0",
			"COUNTER5.OUT":  "0",
			"COUNTER6.OUT":  "0",
			"PCOMP1.STATE":  "WAIT_ENABLE",
			"PULSE1.ENABLE": "ZERO",
			"PULSE1.PULSES": "1",
			"PULSE1.WIDTH":  "1",
			"PULSE1.STEP":   "1",
		},
		faults: make(map[string]Fault),
		conns:  make(map[net.Conn]struct{}),
		stream: make(chan string, 64),
		quit:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(box)
	}

	box.wg.Add(2)
	go box.accept(box.ctl, box.serveCtl)
	go box.accept(box.data, box.serveData)

	return box, nil
}

// CtlAddr returns the address of the control port.
func (box *Box) CtlAddr() string { return box.ctl.Addr().String() }

// DataAddr returns the address of the capture stream port.
func (box *Box) DataAddr() string { return box.data.Addr().String() }

// Close stops the box and closes all client connections.
func (box *Box) Close() error {
	select {
	case <-box.quit:
		return nil
	default:
	}
	close(box.quit)

	err1 := box.ctl.Close()
	err2 := box.data.Close()

	box.mu.Lock()
	for conn := range box.conns {
		_ = conn.Close()
	}
	box.mu.Unlock()

	box.wg.Wait()

	if err1 != nil {
		return fmt.Errorf("fakebox: could not close control port: %w", err1)
	}
	if err2 != nil {
		return fmt.Errorf("fakebox: could not close data port: %w", err2)
	}
	return nil
}

// Set presets the value of a field.
func (box *Box) Set(field, value string) {
	box.mu.Lock()
	defer box.mu.Unlock()
	box.fields[field] = value
}

// Field returns the current value of a field.
func (box *Box) Field(field string) (string, bool) {
	box.mu.Lock()
	defer box.mu.Unlock()
	v, ok := box.fields[field]
	return v, ok
}

// Commands returns the command lines received so far, in order.
func (box *Box) Commands() []string {
	box.mu.Lock()
	defer box.mu.Unlock()
	return append([]string(nil), box.cmds...)
}

// ClearCommands forgets the command lines received so far.
func (box *Box) ClearCommands() {
	box.mu.Lock()
	defer box.mu.Unlock()
	box.cmds = box.cmds[:0]
}

// Inject makes every command on field fail with f.
func (box *Box) Inject(field string, f Fault) {
	box.mu.Lock()
	defer box.mu.Unlock()
	box.faults[field] = f
}

// Clear removes the fault injected on field.
func (box *Box) Clear(field string) {
	box.mu.Lock()
	defer box.mu.Unlock()
	delete(box.faults, field)
}

// Capture queues lines on the capture stream. Lines are sent once the
// client has asked for data, and until a line "END" has been sent.
func (box *Box) Capture(lines ...string) {
	if len(lines) == 0 {
		return
	}
	box.stream <- strings.Join(lines, "\n") + "\n"
}

func (box *Box) accept(l net.Listener, serve func(conn net.Conn)) {
	defer box.wg.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		box.mu.Lock()
		select {
		case <-box.quit:
			box.mu.Unlock()
			_ = conn.Close()
			return
		default:
		}
		box.conns[conn] = struct{}{}
		box.mu.Unlock()

		box.wg.Add(1)
		go func() {
			defer box.wg.Done()
			defer func() {
				box.mu.Lock()
				delete(box.conns, conn)
				box.mu.Unlock()
				_ = conn.Close()
			}()
			serve(conn)
		}()
	}
}

func (box *Box) serveCtl(conn net.Conn) {
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		reply, ok := box.handle(line)
		if !ok {
			return
		}
		if reply == "" {
			continue
		}
		_, err := io.WriteString(conn, reply+"\n")
		if err != nil {
			return
		}
	}
}

// handle executes a command line and returns the reply to send.
// It returns false when the connection should be dropped.
func (box *Box) handle(line string) (string, bool) {
	var (
		name  string
		value string
		query bool
	)
	switch {
	case strings.HasSuffix(line, "?"):
		name = strings.TrimSuffix(line, "?")
		query = true
	case strings.Contains(line, "="):
		i := strings.Index(line, "=")
		name, value = line[:i], line[i+1:]
	default:
		box.mu.Lock()
		box.cmds = append(box.cmds, line)
		box.mu.Unlock()
		return "ERR Unknown command", true
	}

	box.mu.Lock()
	box.cmds = append(box.cmds, line)
	switch box.faults[name] {
	case Reject:
		box.mu.Unlock()
		return "ERR Invalid value", true
	case Garbage:
		box.mu.Unlock()
		return "garbage", true
	case Drop:
		box.mu.Unlock()
		return "", false
	case Mute:
		box.mu.Unlock()
		return "", true
	}

	if query {
		v, ok := box.fields[name]
		box.mu.Unlock()
		if !ok {
			return "ERR No such field", true
		}
		return "OK =" + v, true
	}

	box.write(name, value)
	hook := box.hook
	box.mu.Unlock()

	if hook != nil {
		hook(box, name, value)
	}
	return "OK", true
}

// write applies a field write. box.mu must be held.
func (box *Box) write(name, value string) {
	box.fields[name] = value

	block := name
	if i := strings.Index(name, "."); i >= 0 {
		block = name[:i]
	}

	switch {
	case name == "INENC1.RST_ON_Z" && value == "1":
		box.fields["INENC1.VAL"] = "0"
	case name == "INENC2.RST_ON_Z" && value == "1":
		box.fields["INENC2.VAL"] = "0"
	case strings.HasPrefix(block, "COUNTER") && strings.HasSuffix(name, ".ENABLE") && value == "ZERO":
		box.fields[block+".OUT"] = "0"
	case name == "PCOMP1.ENABLE":
		if value == "ONE" {
			box.fields["PCOMP1.STATE"] = "WAIT_PRE_START"
		} else {
			box.fields["PCOMP1.STATE"] = "WAIT_ENABLE"
		}
	}
}

func (box *Box) serveData(conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		_, err := r.ReadString('\n')
		if err != nil {
			return
		}
	cycle:
		for {
			select {
			case <-box.quit:
				return
			case payload := <-box.stream:
				_, err = io.WriteString(conn, payload)
				if err != nil {
					return
				}
				for _, line := range strings.Split(payload, "\n") {
					if strings.TrimSpace(line) == "END" {
						break cycle
					}
				}
			}
		}
	}
}
