// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ptrig

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sort"
	"strings"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/postrig/panda"
	"github.com/go-lpc/postrig/zerod"
)

// Request is a control request, one JSON value per request.
type Request struct {
	Name string `json:"name"`
	Args *Args  `json:"args,omitempty"`
}

// Args are the arguments of a control request.
// Each command only looks at the fields it needs.
type Args struct {
	Axis   string  `json:"axis,omitempty"`
	Value  float64 `json:"value,omitempty"`
	On     bool    `json:"on,omitempty"`
	Source string  `json:"source,omitempty"`
}

// Reply is the answer to a control request.
// Msg is "ok" on success, the error message otherwise.
type Reply struct {
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ctlFunc func(dev *Device, args Args) (interface{}, error)

func noData(f func(dev *Device, args Args) error) ctlFunc {
	return func(dev *Device, args Args) (interface{}, error) {
		return nil, f(dev, args)
	}
}

func axisOf(args Args) (panda.Axis, error) {
	return panda.ParseAxis(args.Axis)
}

// intOf returns the integer value of args, refusing fractions.
func intOf(args Args) (int64, error) {
	v := args.Value
	if v != math.Trunc(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("ptrig: value %v is not an integer", v)
	}
	return int64(v), nil
}

var ctlFuncs = map[string]ctlFunc{
	"state": func(dev *Device, _ Args) (interface{}, error) {
		return dev.State().String(), nil
	},
	"reset": noData(func(dev *Device, _ Args) error {
		dev.Reset()
		return nil
	}),
	"set-moving": noData(func(dev *Device, args Args) error {
		switch st := dev.State(); {
		case args.On:
			dev.SetState(Moving)
		case st == Moving:
			dev.SetState(On)
		}
		return nil
	}),

	"arm":            noData(func(dev *Device, _ Args) error { return dev.ArmSingle() }),
	"disarm":         noData(func(dev *Device, _ Args) error { return dev.Disarm() }),
	"zero-abs":       noData(func(dev *Device, _ Args) error { return dev.ZeroAbs() }),
	"x-trig-to-curr": noData(func(dev *Device, _ Args) error { return dev.SetXTrigToCurr() }),
	"y-trig-to-curr": noData(func(dev *Device, _ Args) error { return dev.SetYTrigToCurr() }),

	"abs-pos": func(dev *Device, args Args) (interface{}, error) {
		axis, err := axisOf(args)
		if err != nil {
			return nil, err
		}
		return dev.AbsPos(axis)
	},
	"set-abs-pos": noData(func(dev *Device, args Args) error {
		axis, err := axisOf(args)
		if err != nil {
			return err
		}
		return dev.SetAbsPos(axis, args.Value)
	}),
	"abs-offset": func(dev *Device, args Args) (interface{}, error) {
		axis, err := axisOf(args)
		if err != nil {
			return nil, err
		}
		return dev.AbsOffset(axis), nil
	},
	"set-abs-offset": noData(func(dev *Device, args Args) error {
		axis, err := axisOf(args)
		if err != nil {
			return err
		}
		dev.SetAbsOffset(axis, args.Value)
		return nil
	}),

	"trig-axis": func(dev *Device, _ Args) (interface{}, error) {
		return dev.TrigAxis().String(), nil
	},
	"set-trig-axis": noData(func(dev *Device, args Args) error {
		axis, err := axisOf(args)
		if err != nil {
			return err
		}
		return dev.SetTrigAxis(axis)
	}),
	"trig-pos": func(dev *Device, args Args) (interface{}, error) {
		axis, err := axisOf(args)
		if err != nil {
			return nil, err
		}
		return dev.TrigPos(axis), nil
	},
	"set-trig-pos": noData(func(dev *Device, args Args) error {
		axis, err := axisOf(args)
		if err != nil {
			return err
		}
		dev.SetTrigPos(axis, args.Value)
		return nil
	}),
	"trig-state": func(dev *Device, _ Args) (interface{}, error) {
		return dev.TrigState()
	},

	"dwell": func(dev *Device, _ Args) (interface{}, error) {
		return dev.DetDwell(), nil
	},
	"set-dwell": noData(func(dev *Device, args Args) error {
		return dev.SetDetDwell(args.Value)
	}),
	"time-pulse": func(dev *Device, _ Args) (interface{}, error) {
		return dev.DetTimePulse()
	},
	"set-time-pulse-n": noData(func(dev *Device, args Args) error {
		n, err := intOf(args)
		if err != nil {
			return err
		}
		return dev.SetDetTimePulseN(n)
	}),
	"set-time-pulse-step": noData(func(dev *Device, args Args) error {
		return dev.SetDetTimePulseStep(args.Value)
	}),
	"set-time-pulse-width": noData(func(dev *Device, args Args) error {
		return dev.SetDetTimePulseWidth(args.Value)
	}),
	"set-time-pulse-block": noData(func(dev *Device, _ Args) error {
		return dev.SetDetTimePulseBlock()
	}),
	"time-pulses": func(dev *Device, _ Args) (interface{}, error) {
		return dev.TimePulsesEnabled()
	},
	"set-time-pulses": noData(func(dev *Device, args Args) error {
		return dev.SetTimePulsesEnable(args.On)
	}),

	"pos-capt": func(dev *Device, _ Args) (interface{}, error) {
		return dev.DetPosCapt(), nil
	},
	"set-pos-capt": noData(func(dev *Device, args Args) error {
		return dev.SetDetPosCapt(args.On)
	}),

	"trig-src": func(dev *Device, _ Args) (interface{}, error) {
		return dev.DetTrigSrc().String(), nil
	},
	"set-trig-src": noData(func(dev *Device, args Args) error {
		src, err := zerod.ParseSource(args.Source)
		if err != nil {
			return err
		}
		dev.SetDetTrigSrc(src)
		return nil
	}),
	"trig": func(dev *Device, _ Args) (interface{}, error) {
		return dev.DetTrig(), nil
	},
	"soft-trig": noData(func(dev *Device, _ Args) error {
		dev.SetDetTrig(true)
		return nil
	}),
	"set-trig": noData(func(dev *Device, args Args) error {
		dev.SetDetTrig(args.On)
		return nil
	}),
	"trig-cntr": func(dev *Device, _ Args) (interface{}, error) {
		return dev.DetTrigCntr(), nil
	},
	"set-trig-cntr": noData(func(dev *Device, args Args) error {
		n, err := intOf(args)
		if err != nil {
			return err
		}
		dev.SetDetTrigCntr(n)
		return nil
	}),
	"reset-trig-cntr": noData(func(dev *Device, _ Args) error {
		dev.ResetTrigCntr()
		return nil
	}),
	"point-cntr": func(dev *Device, _ Args) (interface{}, error) {
		return dev.DetPointCntr()
	},
	"reset-point-cntr": noData(func(dev *Device, _ Args) error {
		return dev.ResetPointCntr()
	}),

	"reading": func(dev *Device, _ Args) (interface{}, error) {
		return dev.Reading(), nil
	},
	"capture": func(dev *Device, _ Args) (interface{}, error) {
		return dev.Capture(), nil
	},
}

// Commands returns the sorted list of control commands.
func Commands() []string {
	names := make([]string, 0, len(ctlFuncs))
	for name := range ctlFuncs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ctlServer serves JSON control requests for a device.
type ctlServer struct {
	ctl net.Listener
	dev *Device
	msg log.MsgStream
}

// Serve serves control requests for dev on addr.
func Serve(addr string, dev *Device) error {
	srv, err := newCtlServer(addr, dev)
	if err != nil {
		return fmt.Errorf("ptrig: could not create control server: %w", err)
	}
	return srv.serve()
}

func newCtlServer(addr string, dev *Device) (*ctlServer, error) {
	ctl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ptrig: could not listen on %q: %w", addr, err)
	}

	return &ctlServer{
		ctl: ctl,
		dev: dev,
		msg: dev.msg,
	}, nil
}

func (srv *ctlServer) serve() error {
	defer srv.close()

	for {
		conn, err := srv.ctl.Accept()
		if err != nil {
			return fmt.Errorf("ptrig: could not accept connection: %w", err)
		}
		go srv.handle(conn)
	}
}

func (srv *ctlServer) handle(conn net.Conn) {
	defer conn.Close()
	srv.msg.Infof("serving %v...", conn.RemoteAddr())
	defer srv.msg.Infof("serving %v... [done]", conn.RemoteAddr())

	var (
		dec = json.NewDecoder(conn)
		enc = json.NewEncoder(conn)
	)

	for {
		var req Request
		err := dec.Decode(&req)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			srv.msg.Warnf("could not decode control request: %+v", err)
			srv.reply(enc, nil, err)
			return
		}
		srv.msg.Debugf("received request: name=%q", req.Name)

		f, ok := ctlFuncs[strings.ToLower(req.Name)]
		if !ok {
			srv.reply(enc, nil, fmt.Errorf("unknown command %q", req.Name))
			continue
		}

		var args Args
		if req.Args != nil {
			args = *req.Args
		}

		data, err := f(srv.dev, args)
		if err != nil {
			srv.msg.Errorf("could not run %q: %+v", req.Name, err)
		}
		srv.reply(enc, data, err)
	}
}

func (srv *ctlServer) reply(enc *json.Encoder, data interface{}, err error) {
	rep := Reply{Msg: "ok"}
	if err != nil {
		rep.Msg = fmt.Sprintf("%+v", err)
	}
	if err == nil && data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			rep.Msg = fmt.Sprintf("could not encode reply: %+v", err)
		}
		rep.Data = raw
	}

	err = enc.Encode(rep)
	if err != nil {
		srv.msg.Warnf("could not send reply: %+v", err)
	}
}

func (srv *ctlServer) close() {
	_ = srv.ctl.Close()
}
