// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fakebox

import (
	"bufio"
	"net"
	"reflect"
	"strings"
	"testing"
)

func TestBoxControl(t *testing.T) {
	box, err := New("localhost:0", "localhost:0")
	if err != nil {
		t.Fatalf("could not create box: %+v", err)
	}
	defer box.Close()

	conn, err := net.Dial("tcp", box.CtlAddr())
	if err != nil {
		t.Fatalf("could not dial box: %+v", err)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)

	box.Set("INENC1.VAL", "1234")
	box.Inject("PCOMP1.DIR", Reject)

	for _, tc := range []struct {
		cmd  string
		want string
	}{
		{"INENC1.VAL?", "OK =1234"},
		{"PCOMP1.START=42", "OK"},
		{"PCOMP1.START?", "OK =42"},
		{"PCOMP1.DIR=Positive", "ERR Invalid value"},
		{"NOPE.NOPE?", "ERR No such field"},
		{"hello", "ERR Unknown command"},
		{"INENC1.RST_ON_Z=1", "OK"},
		{"INENC1.VAL?", "OK =0"},
		{"COUNTER4.ENABLE=ZERO", "OK"},
		{"*PCAP.ARM=", "OK"},
	} {
		t.Run(tc.cmd, func(t *testing.T) {
			_, err := conn.Write([]byte(tc.cmd + "\n"))
			if err != nil {
				t.Fatalf("could not send %q: %+v", tc.cmd, err)
			}
			got, err := r.ReadString('\n')
			if err != nil {
				t.Fatalf("could not read reply to %q: %+v", tc.cmd, err)
			}
			if got := strings.TrimSpace(got); got != tc.want {
				t.Fatalf("invalid reply: got=%q, want=%q", got, tc.want)
			}
		})
	}

	if got, want := len(box.Commands()), 10; got != want {
		t.Fatalf("invalid number of commands: got=%d, want=%d", got, want)
	}
	if v, _ := box.Field("PCOMP1.DIR"); v != "" {
		t.Fatalf("rejected write was applied: %q", v)
	}
}

func TestBoxCapture(t *testing.T) {
	box, err := New("localhost:0", "localhost:0")
	if err != nil {
		t.Fatalf("could not create box: %+v", err)
	}
	defer box.Close()

	conn, err := net.Dial("tcp", box.DataAddr())
	if err != nil {
		t.Fatalf("could not dial box: %+v", err)
	}
	defer conn.Close()

	box.Capture("OK", "1 2 3 4 5 6")
	box.Capture("END")

	_, err = conn.Write([]byte("NO_HEADER\n"))
	if err != nil {
		t.Fatalf("could not send options: %+v", err)
	}

	var (
		sc   = bufio.NewScanner(conn)
		got  []string
		want = []string{"OK", "1 2 3 4 5 6", "END"}
	)
	for sc.Scan() {
		got = append(got, sc.Text())
		if sc.Text() == "END" {
			break
		}
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid capture stream:\ngot= %q\nwant=%q", got, want)
	}
}
