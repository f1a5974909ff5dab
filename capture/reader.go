// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/go-daq/tdaq/log"
)

// Options is the request line sent to the box at the start of each
// capture cycle.
const Options = "NO_HEADER"

// Reader reads the capture stream of a box and assembles scan lines.
type Reader struct {
	conn net.Conn
	buf  *Buffers
	msg  log.MsgStream

	// OnEnd, if set, is called with the completed line each time the
	// box closes a capture cycle.
	OnEnd func(line Line)
}

// NewReader returns a reader decoding the stream of conn into buf.
// The reader owns conn and closes it when Run returns.
func NewReader(conn net.Conn, buf *Buffers, msg log.MsgStream) *Reader {
	return &Reader{
		conn: conn,
		buf:  buf,
		msg:  msg,
	}
}

// Run reads capture cycles until ctx is done or the stream fails.
//
// Lines that cannot be decoded and records that do not fit in the
// buffers are logged and dropped: only a failure of the stream itself
// ends Run. Run returns nil when ctx is done.
func (r *Reader) Run(ctx context.Context) error {
	defer r.conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			// unblock the pending read.
			_ = r.conn.Close()
		case <-stop:
		}
	}()

	br := bufio.NewReader(r.conn)
	for {
		err := r.cycle(br)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("capture: stream closed by box: %w", err)
			}
			return fmt.Errorf("capture: could not read stream: %w", err)
		}
	}
}

// cycle requests data and reads lines until "END".
func (r *Reader) cycle(br *bufio.Reader) error {
	_, err := io.WriteString(r.conn, Options+"\n")
	if err != nil {
		return fmt.Errorf("could not send options: %w", err)
	}

	for {
		raw, err := br.ReadString('\n')
		if err != nil {
			return err
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		rep, err := ParseLine(line)
		if err != nil {
			r.msg.Warnf("dropping line: %+v", err)
			continue
		}

		switch rep.Kind {
		case KindOK:
		case KindRecord:
			r.msg.Debugf("new point: %+v", rep.Record)
			err = r.buf.Append(rep.Record)
			if err != nil {
				r.msg.Errorf("dropping point %d: %+v", rep.Record.Point, err)
			}
		case KindEnd:
			r.msg.Debugf("end of line (%d points)", r.buf.Len())
			if r.OnEnd != nil {
				r.OnEnd(r.buf.Snapshot())
			}
			return nil
		}
	}
}
