// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ptrig

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/postrig/capture"
	"github.com/go-lpc/postrig/memodb"
	"github.com/go-lpc/postrig/panda"
	"github.com/go-lpc/postrig/zerod"
	"golang.org/x/sync/errgroup"
)

// Device is a position-trigger device driving one box.
type Device struct {
	cfg config
	msg log.MsgStream

	ops sync.Mutex // serializes host requests on ctl
	ctl *panda.Conn
	det *panda.Conn // owned by the zero-D loop

	latch *zerod.Latch
	loop  *zerod.Loop
	buf   *capture.Buffers

	evts  chan zerod.Event
	lines chan capture.Line

	mu    sync.RWMutex
	state State
	trig  struct {
		axis  panda.Axis
		pos   [2]float64 // µm, relative to the offsets
		state string     // last comparator state read
	}
	abs      [2]float64 // last encoder positions, µm
	off      [2]float64 // µm
	cntr     int64      // trigger counter
	points   int64      // point counter
	dwell    float64    // ms
	pulse    panda.PulseConfig
	pulsesOn bool
	posCapt  bool

	run struct {
		cancel context.CancelFunc
		grp    *errgroup.Group
	}
}

// NewDevice connects to the box listening on addr and puts it in its
// initial configuration: trigger axis selected, detector dwell set and
// time pulses disabled.
func NewDevice(addr string, opts ...Option) (*Device, error) {
	cfg := newConfig(addr)
	for _, opt := range opts {
		opt(&cfg)
	}

	dev := &Device{
		cfg:   cfg,
		msg:   cfg.msg,
		latch: zerod.NewLatch(),
		buf:   capture.NewBuffers(cfg.maxPts),
		evts:  make(chan zerod.Event, 64),
		lines: make(chan capture.Line, 8),
		state: Off,
		dwell: millis(cfg.dwell),
		pulse: panda.PulseConfig{Pulses: 1, Width: 1, Step: 1},
	}
	dev.trig.axis = cfg.axis
	dev.trig.state = "NEVER ARMED"

	var err error
	dev.ctl, err = panda.Dial(addr, panda.WithTimeout(cfg.timeout), panda.WithMsgStream(cfg.msg))
	if err != nil {
		return nil, fmt.Errorf("ptrig: could not dial control port: %w", err)
	}

	dev.det, err = panda.Dial(addr, panda.WithTimeout(cfg.timeout), panda.WithMsgStream(cfg.msg))
	if err != nil {
		_ = dev.ctl.Close()
		return nil, fmt.Errorf("ptrig: could not dial detector control port: %w", err)
	}
	dev.loop = zerod.NewLoop(dev.det, dev.latch, (*worker)(dev), cfg.dwell, cfg.msg)

	dev.restore()
	dev.init()

	dev.state = On
	return dev, nil
}

func (dev *Device) init() {
	err := panda.SelectAxis(dev.ctl, panda.PCOMP1, dev.cfg.axis)
	if err != nil {
		dev.msg.Errorf("could not select initial trigger axis: %+v", err)
	}

	err = panda.SetDetDwell(dev.ctl, dev.dwell)
	if err != nil {
		dev.msg.Errorf("could not set initial detector dwell: %+v", err)
	}

	err = dev.ctl.Disable(panda.PULSE1)
	if err != nil {
		dev.msg.Errorf("could not disable time pulses: %+v", err)
	}
}

// Start launches the zero-D loop and the capture reader.
func (dev *Device) Start(ctx context.Context) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.run.cancel != nil {
		return fmt.Errorf("ptrig: workers already running: %w", ErrConflict)
	}

	sck, err := panda.DialStream(dev.cfg.data, dev.cfg.timeout)
	if err != nil {
		return fmt.Errorf("ptrig: could not dial capture stream: %w", err)
	}

	rdr := capture.NewReader(sck, dev.buf, dev.msg)
	rdr.OnEnd = dev.endOfLine

	ctx, cancel := context.WithCancel(ctx)
	grp := new(errgroup.Group)
	grp.Go(func() error {
		err := dev.loop.Run(ctx)
		if err != nil {
			dev.failed("zero-D loop", err, false)
		}
		return err
	})
	grp.Go(func() error {
		err := rdr.Run(ctx)
		if err != nil {
			dev.failed("capture reader", err, true)
		}
		return err
	})

	dev.run.cancel = cancel
	dev.run.grp = grp
	return nil
}

// Stop stops the workers and waits for them to exit.
// It returns the error of the first worker that failed, if any.
func (dev *Device) Stop() error {
	dev.mu.Lock()
	cancel, grp := dev.run.cancel, dev.run.grp
	dev.run.cancel = nil
	dev.run.grp = nil
	dev.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	err := grp.Wait()
	if err != nil {
		return fmt.Errorf("ptrig: worker failed: %w", err)
	}
	return nil
}

// Close stops the workers and closes the connections to the box.
func (dev *Device) Close() error {
	err := dev.Stop()
	if err != nil {
		dev.msg.Warnf("%+v", err)
	}

	dev.setState(Off)

	err1 := dev.det.Close()
	err2 := dev.ctl.Close()
	switch {
	case err1 != nil:
		return fmt.Errorf("ptrig: could not close detector connection: %w", err1)
	case err2 != nil:
		return fmt.Errorf("ptrig: could not close control connection: %w", err2)
	}
	return nil
}

func (dev *Device) failed(name string, err error, fatal bool) {
	dev.msg.Errorf("%s failed: %+v", name, err)
	if fatal {
		dev.setState(Fault)
	}

	if dev.cfg.alert == nil {
		return
	}
	aerr := dev.cfg.alert.Alert(
		name+" failed",
		fmt.Sprintf("device: %s\nbox: %s\nerror: %+v", dev.cfg.name, dev.ctl.Addr(), err),
	)
	if aerr != nil {
		dev.msg.Warnf("could not send alert: %+v", aerr)
	}
}

func (dev *Device) endOfLine(line capture.Line) {
	dev.mu.Lock()
	dev.points = 0
	dev.mu.Unlock()

	select {
	case dev.lines <- line:
	default:
		dev.msg.Warnf("dropping capture line (%d points): nobody listening", line.Len())
	}
}

// Events returns the channel of software-triggered detector readings.
func (dev *Device) Events() <-chan zerod.Event { return dev.evts }

// Lines returns the channel of completed scan lines.
func (dev *Device) Lines() <-chan capture.Line { return dev.lines }

// State returns the state of the device.
func (dev *Device) State() State {
	dev.mu.RLock()
	defer dev.mu.RUnlock()
	return dev.state
}

// SetState forces the state of the device, e.g. to flag motors moving.
func (dev *Device) SetState(st State) {
	dev.setState(st)
}

func (dev *Device) setState(st State) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.state = st
}

// Reset clears a fault.
func (dev *Device) Reset() {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.state == Fault {
		dev.state = On
	}
}

// program sets the comparator to trigger on axis at pos (µm, absolute).
func (dev *Device) program(axis panda.Axis, pos float64) error {
	cfg, err := panda.SetAxisTrigger(dev.ctl, panda.PCOMP1, pos, axis, dev.cfg.signs[axis])
	if err != nil {
		return err
	}
	if dev.cfg.verify {
		err = panda.Verify(dev.ctl, panda.PCOMP1, cfg)
		if err != nil {
			return fmt.Errorf("ptrig: could not verify %s-axis trigger: %w", axis, err)
		}
	}
	return nil
}

// ArmSingle arms the comparator for the next scan line.
//
// The trigger is programmed at the stored position of the trigger axis,
// the comparator is re-armed, the trigger counter incremented and the
// capture buffers cleared. ArmSingle fails with ErrConflict when the
// device is running or in fault.
//
// When some comparator fields could not be written, the sequence still
// completes and ArmSingle returns a *panda.ConfigError.
func (dev *Device) ArmSingle() error {
	dev.ops.Lock()
	defer dev.ops.Unlock()

	dev.mu.RLock()
	var (
		st   = dev.state
		axis = dev.trig.axis
		pos  = dev.trig.pos[axis] + dev.off[axis]
	)
	dev.mu.RUnlock()

	switch st {
	case Fault, Running:
		return fmt.Errorf("ptrig: could not arm in state %v: %w", st, ErrConflict)
	}

	errProg := dev.program(axis, pos)
	if errProg != nil {
		dev.msg.Errorf("could not program %s-axis trigger at %v um: %+v", axis, pos, errProg)
	}

	dev.setState(Running)
	errArm := panda.Rearm(dev.ctl, panda.PCOMP1)
	if errArm != nil {
		dev.msg.Errorf("could not re-arm comparator: %+v", errArm)
	}

	dev.mu.Lock()
	if errArm != nil {
		dev.state = Fault
	}
	if dev.state != Fault {
		dev.state = On
	}
	dev.cntr++
	dev.mu.Unlock()

	dev.buf.Reset()

	switch {
	case errArm != nil:
		return fmt.Errorf("ptrig: could not arm: %w", errArm)
	case errProg != nil:
		return fmt.Errorf("ptrig: armed with a partial trigger program: %w", errProg)
	}
	return nil
}

// Disarm disables the comparator.
func (dev *Device) Disarm() error {
	dev.ops.Lock()
	defer dev.ops.Unlock()

	err := dev.ctl.Disable(panda.PCOMP1)
	if err != nil {
		return fmt.Errorf("ptrig: could not disarm: %w", err)
	}
	return nil
}

// SetXTrigToCurr sets the X trigger at the current X position and makes
// X the trigger axis.
func (dev *Device) SetXTrigToCurr() error {
	return dev.setTrigToCurr(panda.AxisX)
}

// SetYTrigToCurr sets the Y trigger at the current Y position and makes
// Y the trigger axis.
func (dev *Device) SetYTrigToCurr() error {
	return dev.setTrigToCurr(panda.AxisY)
}

func (dev *Device) setTrigToCurr(axis panda.Axis) error {
	dev.ops.Lock()
	defer dev.ops.Unlock()

	err := dev.refreshAbs()
	if err != nil {
		return err
	}

	dev.mu.Lock()
	dev.trig.axis = axis
	dev.trig.pos[axis] = dev.abs[axis] - dev.off[axis]
	pos := dev.trig.pos[axis] + dev.off[axis]
	dev.mu.Unlock()

	return dev.push(axis, pos)
}

// push selects axis and programs its trigger at pos.
func (dev *Device) push(axis panda.Axis, pos float64) error {
	err := panda.SelectAxis(dev.ctl, panda.PCOMP1, axis)
	if err != nil {
		return fmt.Errorf("ptrig: could not select trigger axis: %w", err)
	}

	err = dev.program(axis, pos)
	if err != nil {
		return fmt.Errorf("ptrig: could not program trigger: %w", err)
	}
	return nil
}

// ZeroAbs resets both encoders and zeroes the axis offsets.
// The offsets are zeroed even if some encoder resets failed.
func (dev *Device) ZeroAbs() error {
	dev.ops.Lock()
	defer dev.ops.Unlock()

	err := panda.ResetEncoders(dev.ctl)

	dev.mu.Lock()
	dev.off = [2]float64{}
	dev.mu.Unlock()
	dev.memorize()

	if err != nil {
		return fmt.Errorf("ptrig: could not reset encoders: %w", err)
	}
	return nil
}

func (dev *Device) refreshAbs() error {
	x, y, err := panda.ReadAbsPos(dev.ctl)
	if err != nil {
		return fmt.Errorf("ptrig: could not read encoders: %w", err)
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.abs[panda.AxisX] = float64(x*int64(dev.cfg.signs[panda.AxisX])) / 1000
	dev.abs[panda.AxisY] = float64(y*int64(dev.cfg.signs[panda.AxisY])) / 1000
	return nil
}

// AbsPos reads the position of axis, in µm, relative to its offset.
func (dev *Device) AbsPos(axis panda.Axis) (float64, error) {
	dev.ops.Lock()
	defer dev.ops.Unlock()

	err := dev.refreshAbs()
	if err != nil {
		return 0, err
	}

	dev.mu.RLock()
	defer dev.mu.RUnlock()
	return dev.abs[axis] - dev.off[axis], nil
}

// SetAbsPos declares the current position of axis to be v, in µm,
// by adjusting its offset.
func (dev *Device) SetAbsPos(axis panda.Axis, v float64) error {
	dev.ops.Lock()
	defer dev.ops.Unlock()

	err := dev.refreshAbs()
	if err != nil {
		return err
	}

	dev.mu.Lock()
	dev.off[axis] = dev.abs[axis] - v
	dev.mu.Unlock()

	dev.memorize()
	return nil
}

// AbsOffset returns the offset of axis, in µm.
func (dev *Device) AbsOffset(axis panda.Axis) float64 {
	dev.mu.RLock()
	defer dev.mu.RUnlock()
	return dev.off[axis]
}

// SetAbsOffset sets the offset of axis, in µm.
func (dev *Device) SetAbsOffset(axis panda.Axis, v float64) {
	dev.mu.Lock()
	dev.off[axis] = v
	dev.mu.Unlock()

	dev.memorize()
}

// TrigAxis returns the trigger axis.
func (dev *Device) TrigAxis() panda.Axis {
	dev.mu.RLock()
	defer dev.mu.RUnlock()
	return dev.trig.axis
}

// SetTrigAxis makes axis the trigger axis and programs its trigger.
func (dev *Device) SetTrigAxis(axis panda.Axis) error {
	dev.ops.Lock()
	defer dev.ops.Unlock()

	dev.mu.Lock()
	dev.trig.axis = axis
	pos := dev.trig.pos[axis] + dev.off[axis]
	dev.mu.Unlock()

	return dev.push(axis, pos)
}

// TrigPos returns the trigger position of axis, in µm.
func (dev *Device) TrigPos(axis panda.Axis) float64 {
	dev.mu.RLock()
	defer dev.mu.RUnlock()
	return dev.trig.pos[axis]
}

// SetTrigPos sets the trigger position of axis, in µm.
// It is programmed by the next ArmSingle.
func (dev *Device) SetTrigPos(axis panda.Axis, v float64) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.trig.pos[axis] = v
}

// TrigState reads the state of the comparator.
func (dev *Device) TrigState() (string, error) {
	dev.ops.Lock()
	defer dev.ops.Unlock()

	st, err := panda.ComparatorState(dev.ctl, panda.PCOMP1)
	if err != nil {
		return "", fmt.Errorf("ptrig: could not read comparator state: %w", err)
	}

	dev.mu.Lock()
	dev.trig.state = st
	dev.mu.Unlock()
	return st, nil
}

// DetDwell returns the zero-D integration time, in ms.
func (dev *Device) DetDwell() float64 {
	dev.mu.RLock()
	defer dev.mu.RUnlock()
	return dev.dwell
}

// SetDetDwell sets the zero-D integration time, in ms.
// The time pulse step and width follow the dwell.
func (dev *Device) SetDetDwell(ms float64) error {
	if ms <= 0 {
		return fmt.Errorf("ptrig: invalid dwell %v ms", ms)
	}

	dev.ops.Lock()
	defer dev.ops.Unlock()

	dev.mu.Lock()
	dev.dwell = ms
	dev.pulse.Step = ms
	dev.pulse.Width = ms
	dev.mu.Unlock()
	dev.loop.SetDwell(duration(ms))

	var errs []error
	for _, f := range []func() error{
		func() error { return panda.SetDetDwell(dev.ctl, ms) },
		func() error { return panda.SetPulseField(dev.ctl, panda.PULSE1, "STEP", ms) },
		func() error { return panda.SetPulseField(dev.ctl, panda.PULSE1, "WIDTH", ms) },
	} {
		err := f()
		if err != nil {
			dev.msg.Errorf("could not set dwell: %+v", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("ptrig: could not set dwell to %v ms: %w", ms, errs[0])
	}
	return nil
}

// DetTimePulse reads back the time pulse program.
func (dev *Device) DetTimePulse() (panda.PulseConfig, error) {
	dev.ops.Lock()
	defer dev.ops.Unlock()

	cfg, err := panda.ReadPulse(dev.ctl, panda.PULSE1)
	if err != nil {
		return cfg, fmt.Errorf("ptrig: could not read time pulses: %w", err)
	}
	return cfg, nil
}

// SetDetTimePulseN sets the number of time pulses.
func (dev *Device) SetDetTimePulseN(n int64) error {
	return dev.setPulse("PULSES", float64(n), func(cfg *panda.PulseConfig) { cfg.Pulses = n })
}

// SetDetTimePulseStep sets the time pulse period, in ms.
func (dev *Device) SetDetTimePulseStep(ms float64) error {
	return dev.setPulse("STEP", ms, func(cfg *panda.PulseConfig) { cfg.Step = ms })
}

// SetDetTimePulseWidth sets the time pulse width, in ms.
func (dev *Device) SetDetTimePulseWidth(ms float64) error {
	return dev.setPulse("WIDTH", ms, func(cfg *panda.PulseConfig) { cfg.Width = ms })
}

func (dev *Device) setPulse(name string, v float64, set func(cfg *panda.PulseConfig)) error {
	dev.ops.Lock()
	defer dev.ops.Unlock()

	dev.mu.Lock()
	set(&dev.pulse)
	dev.mu.Unlock()

	err := panda.SetPulseField(dev.ctl, panda.PULSE1, name, v)
	if err != nil {
		return fmt.Errorf("ptrig: could not set time pulse %s: %w", name, err)
	}
	return nil
}

// SetDetTimePulseBlock writes the whole stored time pulse program.
func (dev *Device) SetDetTimePulseBlock() error {
	dev.ops.Lock()
	defer dev.ops.Unlock()

	dev.mu.RLock()
	cfg := dev.pulse
	dev.mu.RUnlock()

	err := cfg.Validate()
	if err != nil {
		return fmt.Errorf("ptrig: invalid time pulse program: %w", err)
	}

	err = panda.SetPulse(dev.ctl, panda.PULSE1, cfg)
	if err != nil {
		return fmt.Errorf("ptrig: could not set time pulse block: %w", err)
	}
	return nil
}

// TimePulsesEnabled reads whether time pulses are enabled.
func (dev *Device) TimePulsesEnabled() (bool, error) {
	dev.ops.Lock()
	defer dev.ops.Unlock()

	on, err := panda.PulseEnabled(dev.ctl, panda.PULSE1)
	if err != nil {
		return false, fmt.Errorf("ptrig: could not read time pulses state: %w", err)
	}

	dev.mu.Lock()
	dev.pulsesOn = on
	dev.mu.Unlock()
	return on, nil
}

// SetTimePulsesEnable enables or disables time pulses.
func (dev *Device) SetTimePulsesEnable(on bool) error {
	dev.ops.Lock()
	defer dev.ops.Unlock()

	var err error
	if on {
		err = dev.ctl.Enable(panda.PULSE1)
	} else {
		err = dev.ctl.Disable(panda.PULSE1)
	}
	if err != nil {
		return fmt.Errorf("ptrig: could not switch time pulses: %w", err)
	}

	dev.mu.Lock()
	dev.pulsesOn = on
	dev.mu.Unlock()
	return nil
}

// DetPosCapt reports whether position capture is armed.
func (dev *Device) DetPosCapt() bool {
	dev.mu.RLock()
	defer dev.mu.RUnlock()
	return dev.posCapt
}

// SetDetPosCapt arms or disarms position capture.
func (dev *Device) SetDetPosCapt(on bool) error {
	dev.ops.Lock()
	defer dev.ops.Unlock()

	var err error
	if on {
		err = panda.ArmCapture(dev.ctl)
	} else {
		err = panda.DisarmCapture(dev.ctl)
	}
	if err != nil {
		return fmt.Errorf("ptrig: could not switch position capture: %w", err)
	}

	dev.mu.Lock()
	dev.posCapt = on
	dev.mu.Unlock()
	return nil
}

// DetTrigSrc returns the zero-D trigger source.
func (dev *Device) DetTrigSrc() zerod.Source { return dev.loop.Source() }

// SetDetTrigSrc sets the zero-D trigger source.
func (dev *Device) SetDetTrigSrc(src zerod.Source) { dev.loop.SetSource(src) }

// DetTrig reports whether a software trigger is pending or being served.
func (dev *Device) DetTrig() bool { return dev.latch.Get() }

// SetDetTrig sets or clears the software trigger.
func (dev *Device) SetDetTrig(v bool) { dev.latch.Set(v) }

// DetTrigCntr returns the trigger counter.
func (dev *Device) DetTrigCntr() int64 {
	dev.mu.RLock()
	defer dev.mu.RUnlock()
	return dev.cntr
}

// SetDetTrigCntr sets the trigger counter.
func (dev *Device) SetDetTrigCntr(n int64) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.cntr = n
}

// ResetTrigCntr zeroes the trigger counter.
func (dev *Device) ResetTrigCntr() {
	dev.SetDetTrigCntr(0)
}

// DetPointCntr reads the point counter of the box.
func (dev *Device) DetPointCntr() (int64, error) {
	dev.ops.Lock()
	defer dev.ops.Unlock()

	n, err := panda.PointCounter(dev.ctl)
	if err != nil {
		return 0, fmt.Errorf("ptrig: could not read point counter: %w", err)
	}

	dev.mu.Lock()
	dev.points = n
	dev.mu.Unlock()
	return n, nil
}

// ResetPointCntr zeroes the point counter of the box.
func (dev *Device) ResetPointCntr() error {
	dev.ops.Lock()
	defer dev.ops.Unlock()

	err := panda.ResetPointCounter(dev.ctl)
	if err != nil {
		return fmt.Errorf("ptrig: could not reset point counter: %w", err)
	}

	dev.mu.Lock()
	dev.points = 0
	dev.mu.Unlock()
	return nil
}

// Reading returns the last zero-D integration.
func (dev *Device) Reading() zerod.Reading { return dev.loop.Reading() }

// Capture returns a copy of the scan line captured so far.
func (dev *Device) Capture() capture.Line { return dev.buf.Snapshot() }

func (dev *Device) restore() {
	if dev.cfg.memo == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	memo, err := dev.cfg.memo.Load(ctx, dev.cfg.name)
	switch {
	case errors.Is(err, memodb.ErrNoMemo):
		dev.msg.Infof("no memorized offsets for %q", dev.cfg.name)
	case err != nil:
		dev.msg.Warnf("could not restore memorized offsets: %+v", err)
	default:
		dev.off = [2]float64{memo.AbsXOffset, memo.AbsYOffset}
		dev.msg.Infof("restored offsets: x=%v um, y=%v um", memo.AbsXOffset, memo.AbsYOffset)
	}
}

func (dev *Device) memorize() {
	if dev.cfg.memo == nil {
		return
	}

	dev.mu.RLock()
	memo := memodb.Memo{
		AbsXOffset: dev.off[panda.AxisX],
		AbsYOffset: dev.off[panda.AxisY],
	}
	dev.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := dev.cfg.memo.Save(ctx, dev.cfg.name, memo)
	if err != nil {
		dev.msg.Warnf("could not memorize offsets: %+v", err)
	}
}

// worker is the view of a device the zero-D loop reports to.
type worker Device

// Begin marks an integration as running.
// Moving, Fault and Off are left in place.
func (w *worker) Begin() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == On {
		w.state = Running
	}
}

func (w *worker) End() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Running {
		w.state = On
	}
}

func (w *worker) Counter() int64 {
	return (*Device)(w).DetTrigCntr()
}

func (w *worker) Incr() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cntr++
}

func (w *worker) Publish(evt zerod.Event) {
	select {
	case w.evts <- evt:
	default:
		w.msg.Warnf("dropping detector event %+v: nobody listening", evt)
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func duration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

var _ zerod.Device = (*worker)(nil)
