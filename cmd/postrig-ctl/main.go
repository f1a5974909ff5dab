// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command postrig-ctl sends control requests to a standalone postrig-srv.
//
// Requests are given as a command name followed by key=value arguments:
//
//	$> postrig-ctl -addr localhost:8866 set-trig-pos axis=X value=12.5
//	$> postrig-ctl -addr localhost:8866
//	postrig> arm
//	ok
//	postrig> trig-cntr
//	ok: 1
//
// Without a command, postrig-ctl starts an interactive shell.
package main // import "github.com/go-lpc/postrig/cmd/postrig-ctl"

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/postrig/ptrig"
	"github.com/peterh/liner"
)

func main() {
	var (
		addr    = flag.String("addr", "localhost:8866", "[ip]:port of the postrig-srv control server")
		timeout = flag.Duration("timeout", 5*time.Second, "timeout for control replies")
	)

	flag.Parse()

	log.SetPrefix("postrig-ctl: ")
	log.SetFlags(0)

	c, err := dial(*addr, *timeout)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	defer c.close()

	if flag.NArg() > 0 {
		err = c.exec(os.Stdout, strings.Join(flag.Args(), " "))
		if err != nil {
			log.Fatalf("%+v", err)
		}
		return
	}

	err = shell(c)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

type client struct {
	conn    net.Conn
	enc     *json.Encoder
	dec     *json.Decoder
	timeout time.Duration
}

func dial(addr string, timeout time.Duration) (*client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("could not dial postrig-srv on %q: %w", addr, err)
	}
	return &client{
		conn:    conn,
		enc:     json.NewEncoder(conn),
		dec:     json.NewDecoder(conn),
		timeout: timeout,
	}, nil
}

func (c *client) close() {
	_ = c.conn.Close()
}

func (c *client) send(req ptrig.Request) (ptrig.Reply, error) {
	var rep ptrig.Reply
	if c.timeout > 0 {
		err := c.conn.SetDeadline(time.Now().Add(c.timeout))
		if err != nil {
			return rep, fmt.Errorf("could not set deadline: %w", err)
		}
	}

	err := c.enc.Encode(req)
	if err != nil {
		return rep, fmt.Errorf("could not send %q request: %w", req.Name, err)
	}
	err = c.dec.Decode(&rep)
	if err != nil {
		return rep, fmt.Errorf("could not read %q reply: %w", req.Name, err)
	}
	return rep, nil
}

// exec parses and sends one request, and prints its reply to w.
func (c *client) exec(w io.Writer, line string) error {
	req, err := parse(line)
	if err != nil {
		return err
	}
	rep, err := c.send(req)
	if err != nil {
		return err
	}
	if rep.Msg != "ok" {
		return fmt.Errorf("%s: %s", req.Name, rep.Msg)
	}
	if len(rep.Data) == 0 {
		fmt.Fprintln(w, "ok")
		return nil
	}
	fmt.Fprintf(w, "ok: %s\n", rep.Data)
	return nil
}

// parse decodes a "name key=value..." request line.
func parse(line string) (ptrig.Request, error) {
	var req ptrig.Request
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return req, fmt.Errorf("empty request")
	}
	req.Name = toks[0]
	if len(toks) == 1 {
		return req, nil
	}

	args := new(ptrig.Args)
	for _, tok := range toks[1:] {
		i := strings.Index(tok, "=")
		if i <= 0 {
			return req, fmt.Errorf("invalid argument %q (want key=value)", tok)
		}
		k, v := strings.ToLower(tok[:i]), tok[i+1:]
		switch k {
		case "axis":
			args.Axis = v
		case "source", "src":
			args.Source = v
		case "value", "v":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return req, fmt.Errorf("invalid value %q: %w", v, err)
			}
			args.Value = f
		case "on":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return req, fmt.Errorf("invalid boolean %q: %w", v, err)
			}
			args.On = b
		default:
			return req, fmt.Errorf("unknown argument %q", k)
		}
	}
	req.Args = args
	return req, nil
}

func complete(line string) []string {
	var out []string
	for _, name := range append(ptrig.Commands(), "help", "quit") {
		if strings.HasPrefix(name, strings.ToLower(line)) {
			out = append(out, name)
		}
	}
	return out
}

func shell(c *client) error {
	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(complete)

	hist := ""
	if home, err := os.UserHomeDir(); err == nil {
		hist = filepath.Join(home, ".postrig_history")
		if f, err := os.Open(hist); err == nil {
			_, _ = term.ReadHistory(f)
			f.Close()
		}
	}
	defer func() {
		if hist == "" {
			return
		}
		f, err := os.Create(hist)
		if err != nil {
			return
		}
		defer f.Close()
		_, _ = term.WriteHistory(f)
	}()

	for {
		line, err := term.Prompt("postrig> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("could not read prompt: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		switch line {
		case "quit", "exit":
			return nil
		case "help":
			fmt.Printf("commands: %s\n", strings.Join(ptrig.Commands(), ", "))
			fmt.Printf("arguments: axis=X|Y value=<float> on=true|false source=INTERNAL|EXT_SOFT\n")
			continue
		}

		err = c.exec(os.Stdout, line)
		if err != nil {
			fmt.Printf("error: %+v\n", err)
			var nerr net.Error
			if errors.As(err, &nerr) || errors.Is(err, io.EOF) {
				return err
			}
		}
	}
}
