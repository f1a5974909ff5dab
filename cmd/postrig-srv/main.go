// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command postrig-srv drives a PandA position-trigger box.
//
// By default, postrig-srv runs as a TDAQ server, configured and started
// by a run control. With -ctl, it runs standalone and serves JSON control
// requests (see postrig-ctl).
//
// Usage of postrig-srv:
//
//	$> postrig-srv -cfg ./ptrig.yaml -id ptrig -rc-addr :44000
//	$> postrig-srv -cfg ./ptrig.yaml -ctl :8866
package main // import "github.com/go-lpc/postrig/cmd/postrig-srv"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/postrig"
	"github.com/go-lpc/postrig/internal/alert"
	"github.com/go-lpc/postrig/memodb"
	"github.com/go-lpc/postrig/ptrig"
	"github.com/sbinet/pmon"
)

var (
	cfgFile = flag.String("cfg", "", "path to the YAML configuration file")
	ctlAddr = flag.String("ctl", "", "[ip]:port of the JSON control server (standalone mode)")
	doMon   = flag.Bool("pmon", false, "enable pmon monitoring")
	doFreq  = flag.Duration("freq", 1*time.Second, "pmon frequency")
	monFile = flag.String("pmon-out", "postrig-srv-pmon.log", "pmon output file")
)

func main() {
	cmd := flags.New()

	log.SetPrefix("postrig-srv: ")
	log.SetFlags(0)
	if v, _ := postrig.Version(); v != "" {
		log.Printf("version: %s", v)
	}

	cfg := ptrig.DefaultConfig()
	if *cfgFile != "" {
		var err error
		cfg, err = ptrig.LoadConfig(*cfgFile)
		if err != nil {
			log.Fatalf("%+v", err)
		}
	}

	opts, cleanup, err := options(cfg)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	defer cleanup()

	if *doMon {
		stop, err := monitor(*monFile, *doFreq)
		if err != nil {
			log.Fatalf("%+v", err)
		}
		defer stop()
	}

	if *ctlAddr != "" {
		err = standalone(cfg, *ctlAddr, opts)
		if err != nil {
			log.Fatalf("%+v", err)
		}
		return
	}

	srv := ptrig.NewServer(cfg, opts...)

	run := tdaq.New(cmd, os.Stdout)
	run.CmdHandle("/config", srv.OnConfig)
	run.CmdHandle("/init", srv.OnInit)
	run.CmdHandle("/reset", srv.OnReset)
	run.CmdHandle("/start", srv.OnStart)
	run.CmdHandle("/stop", srv.OnStop)
	run.CmdHandle("/quit", srv.OnQuit)

	run.CmdHandle("/arm", srv.OnArm)
	run.CmdHandle("/disarm", srv.OnDisarm)
	run.CmdHandle("/zero-abs", srv.OnZeroAbs)
	run.CmdHandle("/x-trig-to-curr", srv.OnXTrigToCurr)
	run.CmdHandle("/y-trig-to-curr", srv.OnYTrigToCurr)
	run.CmdHandle("/soft-trig", srv.OnSoftTrig)
	run.CmdHandle("/trig-axis", srv.OnTrigAxis)
	run.CmdHandle("/trig-pos", srv.OnTrigPos)
	run.CmdHandle("/dwell", srv.OnDwell)
	run.CmdHandle("/trig-src", srv.OnTrigSrc)

	run.OutputHandle("/det-out", srv.DetOut)
	run.OutputHandle("/capture", srv.Capture)

	err = run.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

// options returns the device options that need external resources.
func options(cfg ptrig.Config) ([]ptrig.Option, func(), error) {
	opts := []ptrig.Option{
		ptrig.WithAlerter(alert.New("postrig-srv")),
	}
	cleanup := func() {}

	if cfg.Memo == "" {
		return opts, cleanup, nil
	}

	db, err := memodb.Open(os.ExpandEnv(cfg.Memo))
	if err != nil {
		return nil, cleanup, fmt.Errorf("could not open memo db: %w", err)
	}
	cleanup = func() {
		err := db.Close()
		if err != nil {
			log.Printf("could not close memo db: %+v", err)
		}
	}
	opts = append(opts, ptrig.WithMemo(cfg.Name, db))

	return opts, cleanup, nil
}

func monitor(fname string, freq time.Duration) (func(), error) {
	p, err := pmon.Monitor(os.Getpid())
	if err != nil {
		return nil, fmt.Errorf("could not start monitoring: %w", err)
	}
	f, err := os.Create(fname)
	if err != nil {
		return nil, fmt.Errorf("could not create pmon log file: %w", err)
	}
	p.W = f
	p.Freq = freq

	go func() {
		log.Printf("run pmon...")
		err := p.Run()
		if err != nil {
			log.Printf("could not run pmon: %+v", err)
		}
	}()

	return func() {
		err := p.Kill()
		if err != nil {
			log.Printf("could not stop monitoring: %+v", err)
		}
		_ = f.Close()
	}, nil
}

func standalone(cfg ptrig.Config, addr string, extra []ptrig.Option) error {
	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	opts = append(opts, extra...)

	dev, err := ptrig.NewDevice(cfg.Addr(), opts...)
	if err != nil {
		return fmt.Errorf("could not connect to box %s: %w", cfg.Addr(), err)
	}
	defer dev.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = dev.Start(ctx)
	if err != nil {
		return fmt.Errorf("could not start device: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-dev.Events():
				log.Printf("trigger #%d: pd=%d, pmt=%d", evt.Trigger, evt.PD, evt.PMT)
			case line := <-dev.Lines():
				log.Printf("scan line: %d points", line.Len())
			}
		}
	}()

	errc := make(chan error, 1)
	go func() {
		log.Printf("serving control requests on %q...", addr)
		errc <- ptrig.Serve(addr, dev)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	select {
	case <-stop:
		log.Printf("interrupted")
		return nil
	case err := <-errc:
		return err
	}
}
