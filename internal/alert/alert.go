// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package alert sends mail alerts to the beamline operators.
package alert // import "github.com/go-lpc/postrig/internal/alert"

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	mail "gopkg.in/gomail.v2"
)

// ErrNoCredentials is returned when the mailer is not configured.
var ErrNoCredentials = errors.New("alert: missing mail credentials")

type sender interface {
	DialAndSend(m ...*mail.Message) error
}

// Mailer sends alerts by mail.
type Mailer struct {
	Usr  string
	Pwd  string
	Srv  string
	Port int
	Tgts []string

	prefix string
	dial   func(srv string, port int, usr, pwd string) sender
}

// New returns a mailer configured from the MAIL_USERNAME, MAIL_PASSWORD,
// MAIL_SERVER, MAIL_PORT and MAIL_TGTS (comma separated) environment
// variables. Subjects are prefixed with "[prefix] ".
func New(prefix string) *Mailer {
	var tgts []string
	for _, v := range strings.Split(os.Getenv("MAIL_TGTS"), ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		tgts = append(tgts, v)
	}

	return &Mailer{
		Usr:    os.Getenv("MAIL_USERNAME"),
		Pwd:    os.Getenv("MAIL_PASSWORD"),
		Srv:    os.Getenv("MAIL_SERVER"),
		Port:   atoi(os.Getenv("MAIL_PORT")),
		Tgts:   tgts,
		prefix: prefix,
		dial:   dialer,
	}
}

func dialer(srv string, port int, usr, pwd string) sender {
	dial := mail.NewDialer(srv, port, usr, pwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	return dial
}

// Alert sends a plain text alert to all targets.
func (m *Mailer) Alert(subject, body string) error {
	if m.Usr == "" || m.Pwd == "" || m.Srv == "" || m.Port == 0 || len(m.Tgts) == 0 {
		return ErrNoCredentials
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.Usr)
	msg.SetHeader("Bcc", m.Tgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[%s] %s", m.prefix, subject))
	msg.SetBody("text/plain", body)

	dial := m.dial
	if dial == nil {
		dial = dialer
	}
	err := dial(m.Srv, m.Port, m.Usr, m.Pwd).DialAndSend(msg)
	if err != nil {
		return fmt.Errorf("alert: could not send mail alert: %w", err)
	}
	return nil
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
