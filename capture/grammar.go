// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package capture decodes the position-capture stream of a PandA box
// into scan lines.
//
// The stream is made of newline-terminated lines, each of them being
// one of:
//
//	OK
//	x y dwell pmt diode point
//	END
//
// where the six record values are signed integers: positions in nm,
// dwell in µs and raw detector counts.
package capture // import "github.com/go-lpc/postrig/capture"

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrParse reports a stream line matching none of the alternatives.
	ErrParse = errors.New("capture: could not parse line")

	// ErrOverflow reports a record that does not fit in the line buffers.
	ErrOverflow = errors.New("capture: buffer overflow")
)

// Kind is the kind of a stream line.
type Kind uint8

const (
	KindOK Kind = iota
	KindRecord
	KindEnd
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "OK"
	case KindRecord:
		return "Record"
	case KindEnd:
		return "END"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Record is a raw captured point.
type Record struct {
	X     int64 // nm
	Y     int64 // nm
	Dwell int64 // µs
	PMT   int64
	Diode int64
	Point int64
}

// Reply is a decoded stream line.
type Reply struct {
	Kind   Kind
	Record Record // valid if Kind is KindRecord
}

const nfields = 6

// ParseLine decodes one stream line, trying "OK", then a six-integer
// record, then "END".
func ParseLine(line string) (Reply, error) {
	line = strings.TrimSpace(line)
	if line == "OK" {
		return Reply{Kind: KindOK}, nil
	}

	if rec, ok := parseRecord(line); ok {
		return Reply{Kind: KindRecord, Record: rec}, nil
	}

	if line == "END" {
		return Reply{Kind: KindEnd}, nil
	}

	return Reply{}, fmt.Errorf("%w %q", ErrParse, line)
}

func parseRecord(line string) (Record, bool) {
	toks := strings.Fields(line)
	if len(toks) != nfields {
		return Record{}, false
	}

	var vs [nfields]int64
	for i, tok := range toks {
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return Record{}, false
		}
		vs[i] = v
	}

	return Record{
		X:     vs[0],
		Y:     vs[1],
		Dwell: vs[2],
		PMT:   vs[3],
		Diode: vs[4],
		Point: vs[5],
	}, true
}
