// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ptrig

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/postrig/capture"
	"github.com/go-lpc/postrig/panda"
	"github.com/go-lpc/postrig/zerod"
)

// Server exposes a device to a tdaq run control.
type Server struct {
	cfg  Config
	opts []Option

	mu  sync.RWMutex
	dev *Device

	newDevice func(addr string, opts ...Option) (*Device, error)
}

// NewServer returns a server for the box described by cfg.
// opts are appended to the options derived from cfg.
func NewServer(cfg Config, opts ...Option) *Server {
	return &Server{
		cfg:       cfg,
		opts:      opts,
		newDevice: NewDevice,
	}
}

// Device returns the device driven by the server, nil before /config.
func (srv *Server) Device() *Device {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	return srv.dev
}

func (srv *Server) device() (*Device, error) {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	if srv.dev == nil {
		return nil, fmt.Errorf("ptrig: device not configured: %w", ErrConflict)
	}
	return srv.dev, nil
}

// swap installs dev as the current device and returns the previous one.
func (srv *Server) swap(dev *Device) *Device {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	old := srv.dev
	srv.dev = dev
	return old
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	if old := srv.swap(nil); old != nil {
		err := old.Close()
		if err != nil {
			ctx.Msg.Warnf("could not close previous device: %+v", err)
		}
	}

	opts, err := srv.cfg.Options()
	if err != nil {
		ctx.Msg.Errorf("invalid configuration: %+v", err)
		return fmt.Errorf("invalid configuration: %w", err)
	}
	opts = append(opts, WithMsgStream(ctx.Msg))
	opts = append(opts, srv.opts...)

	dev, err := srv.newDevice(srv.cfg.Addr(), opts...)
	if err != nil {
		ctx.Msg.Errorf("could not connect to box %s: %+v", srv.cfg.Addr(), err)
		return fmt.Errorf("could not connect to box %s: %w", srv.cfg.Addr(), err)
	}
	srv.swap(dev)
	ctx.Msg.Infof("connected to box %s", srv.cfg.Addr())

	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	dev, err := srv.device()
	if err != nil {
		return err
	}

	dev.ResetTrigCntr()
	err = dev.ResetPointCntr()
	if err != nil {
		ctx.Msg.Errorf("could not reset point counter: %+v", err)
		return fmt.Errorf("could not reset point counter: %w", err)
	}
	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	dev, err := srv.device()
	if err != nil {
		return err
	}

	err = dev.Stop()
	if err != nil {
		ctx.Msg.Warnf("%+v", err)
	}
	dev.Reset()
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	dev, err := srv.device()
	if err != nil {
		return err
	}

	err = dev.Start(context.Background())
	if err != nil {
		ctx.Msg.Errorf("could not start workers: %+v", err)
		return fmt.Errorf("could not start workers: %w", err)
	}
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	dev, err := srv.device()
	if err != nil {
		return err
	}

	err = dev.Stop()
	if err != nil {
		ctx.Msg.Errorf("%+v", err)
		return err
	}
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	dev := srv.swap(nil)
	if dev == nil {
		return nil
	}

	err := dev.Close()
	if err != nil {
		ctx.Msg.Errorf("could not close device: %+v", err)
		return fmt.Errorf("could not close device: %w", err)
	}
	return nil
}

func (srv *Server) OnArm(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /arm command...")
	dev, err := srv.device()
	if err != nil {
		return err
	}
	return dev.ArmSingle()
}

func (srv *Server) OnDisarm(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /disarm command...")
	dev, err := srv.device()
	if err != nil {
		return err
	}
	return dev.Disarm()
}

func (srv *Server) OnZeroAbs(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /zero-abs command...")
	dev, err := srv.device()
	if err != nil {
		return err
	}
	return dev.ZeroAbs()
}

func (srv *Server) OnXTrigToCurr(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /x-trig-to-curr command...")
	dev, err := srv.device()
	if err != nil {
		return err
	}
	return dev.SetXTrigToCurr()
}

func (srv *Server) OnYTrigToCurr(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /y-trig-to-curr command...")
	dev, err := srv.device()
	if err != nil {
		return err
	}
	return dev.SetYTrigToCurr()
}

// OnSoftTrig sets the software trigger latch.
func (srv *Server) OnSoftTrig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /soft-trig command...")
	dev, err := srv.device()
	if err != nil {
		return err
	}
	dev.SetDetTrig(true)
	return nil
}

// OnTrigAxis selects the trigger axis.
// The request body holds the axis name ("X" or "Y").
func (srv *Server) OnTrigAxis(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /trig-axis command...")
	dev, err := srv.device()
	if err != nil {
		return err
	}

	dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
	axis, err := panda.ParseAxis(dec.ReadStr())
	if err != nil {
		return fmt.Errorf("could not decode /trig-axis request: %w", err)
	}
	return dev.SetTrigAxis(axis)
}

// OnTrigPos sets the trigger position of an axis.
// The request body holds the axis name and the position in µm.
func (srv *Server) OnTrigPos(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /trig-pos command...")
	dev, err := srv.device()
	if err != nil {
		return err
	}

	dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
	var (
		name = dec.ReadStr()
		val  = dec.ReadStr()
	)
	axis, err := panda.ParseAxis(name)
	if err != nil {
		return fmt.Errorf("could not decode /trig-pos request: %w", err)
	}
	pos, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fmt.Errorf("could not decode /trig-pos position %q: %w", val, err)
	}

	dev.SetTrigPos(axis, pos)
	return nil
}

// OnDwell sets the zero-D dwell time.
// The request body holds the dwell in ms.
func (srv *Server) OnDwell(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /dwell command...")
	dev, err := srv.device()
	if err != nil {
		return err
	}

	dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
	val := dec.ReadStr()
	ms, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fmt.Errorf("could not decode /dwell request %q: %w", val, err)
	}
	return dev.SetDetDwell(ms)
}

// OnTrigSrc sets the zero-D trigger source.
// The request body holds the source name ("INTERNAL" or "EXT_SOFT").
func (srv *Server) OnTrigSrc(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /trig-src command...")
	dev, err := srv.device()
	if err != nil {
		return err
	}

	dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
	src, err := zerod.ParseSource(dec.ReadStr())
	if err != nil {
		return fmt.Errorf("could not decode /trig-src request: %w", err)
	}
	dev.SetDetTrigSrc(src)
	return nil
}

// DetOut publishes software-triggered detector readings.
func (srv *Server) DetOut(ctx tdaq.Context, dst *tdaq.Frame) error {
	dev, err := srv.device()
	if err != nil {
		return err
	}

	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case evt := <-dev.Events():
		dst.Body, err = encodeEvent(evt)
		return err
	}
}

// Capture publishes completed scan lines.
func (srv *Server) Capture(ctx tdaq.Context, dst *tdaq.Frame) error {
	dev, err := srv.device()
	if err != nil {
		return err
	}

	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case line := <-dev.Lines():
		dst.Body, err = encodeLine(line)
		return err
	}
}

func encodeEvent(evt zerod.Event) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := tdaq.NewEncoder(buf)
	enc.WriteI64(evt.Trigger)
	enc.WriteI64(evt.PD)
	enc.WriteI64(evt.PMT)
	if err := enc.Err(); err != nil {
		return nil, fmt.Errorf("could not encode detector event: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeLine(line capture.Line) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := tdaq.NewEncoder(buf)
	enc.WriteI64(int64(line.Len()))
	for i := 0; i < line.Len(); i++ {
		enc.WriteF64(line.X[i])
		enc.WriteF64(line.Y[i])
		enc.WriteF64(line.Dwell[i])
		enc.WriteI64(line.PMT[i])
		enc.WriteI64(line.Diode[i])
		enc.WriteI64(line.Point[i])
	}
	if err := enc.Err(); err != nil {
		return nil, fmt.Errorf("could not encode scan line: %w", err)
	}
	return buf.Bytes(), nil
}
