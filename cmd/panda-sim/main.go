// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command panda-sim simulates a PandA position-trigger box, for bench
// work without the beamline.
//
// The simulated box answers control requests like the real one. Each
// time position capture is armed, it streams a synthetic scan line
// along the selected trigger axis. Each time the detector gate opens,
// the photo-diode and PMT counters are refreshed with random counts.
package main // import "github.com/go-lpc/postrig/cmd/panda-sim"

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"github.com/go-lpc/postrig/internal/fakebox"
)

func main() {
	var (
		ctl    = flag.String("ctl", ":8888", "[ip]:port of the control port")
		data   = flag.String("data", ":8889", "[ip]:port of the capture stream port")
		points = flag.Int("points", 100, "number of points per scan line")
		seed   = flag.Int64("seed", 1234, "seed of the random counts")
	)

	flag.Parse()

	log.SetPrefix("panda-sim: ")
	log.SetFlags(0)

	sim := newSim(*points, *seed)
	box, err := fakebox.New(*ctl, *data, fakebox.WithHook(sim.hook))
	if err != nil {
		log.Fatalf("could not start simulated box: %+v", err)
	}
	defer box.Close()
	log.Printf("serving control on %s, capture on %s", box.CtlAddr(), box.DataAddr())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	tick := time.NewTicker(time.Minute)
	defer tick.Stop()

	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			box.ClearCommands()
		}
	}
}

type sim struct {
	points int

	mu  sync.Mutex
	rnd *rand.Rand
}

func newSim(points int, seed int64) *sim {
	return &sim{
		points: points,
		rnd:    rand.New(rand.NewSource(seed)),
	}
}

func (sim *sim) hook(box *fakebox.Box, field, value string) {
	switch field {
	case "PULSE2.TRIG":
		if value != "ONE" {
			return
		}
		sim.mu.Lock()
		pd, pmt := sim.rnd.Int63n(1000), sim.rnd.Int63n(10000)
		sim.mu.Unlock()
		box.Set("COUNTER5.OUT", strconv.FormatInt(pd, 10))
		box.Set("COUNTER6.OUT", strconv.FormatInt(pmt, 10))

	case "*PCAP.ARM":
		lines := sim.line(box)
		go box.Capture(lines...)
	}
}

// line generates a scan line starting at the comparator start position
// of the selected axis.
func (sim *sim) line(box *fakebox.Box) []string {
	var (
		start = sim.intField(box, "PCOMP1.START", 0)
		step  = sim.intField(box, "PCOMP1.STEP", 21)
		dwell = sim.floatField(box, "PULSE1.STEP", 1)
		other = sim.intField(box, "INENC2.VAL", 0)
		axisX = true
	)
	if inp, _ := box.Field("PCOMP1.INP"); inp == "INENC2.VAL" {
		axisX = false
		other = sim.intField(box, "INENC1.VAL", 0)
	}

	sim.mu.Lock()
	defer sim.mu.Unlock()

	lines := make([]string, 0, sim.points+2)
	lines = append(lines, "OK")
	for i := 0; i < sim.points; i++ {
		var (
			pos = start + int64(i)*step
			x   = pos
			y   = other
		)
		if !axisX {
			x, y = other, pos
		}
		lines = append(lines, fmt.Sprintf(
			"%d %d %d %d %d %d",
			x, y, int64(dwell*1000),
			sim.rnd.Int63n(10000), sim.rnd.Int63n(1000), i,
		))
	}
	lines = append(lines, "END")
	return lines
}

func (sim *sim) intField(box *fakebox.Box, name string, def int64) int64 {
	v, ok := box.Field(name)
	if !ok {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return i
}

func (sim *sim) floatField(box *fakebox.Box, name string, def float64) float64 {
	v, ok := box.Field(name)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
