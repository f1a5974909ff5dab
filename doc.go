// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package postrig holds code to drive position-triggered acquisitions
// of a scanning transmission X-ray microscope through a PandA box.
//
// The box is reached over its ASCII control port (package panda), its
// capture stream is decoded by package capture and the software-triggered
// zero-dimensional detector readout lives in package zerod.
// Package ptrig ties everything together into a device that can be
// driven from a tdaq run-control or from the postrig-ctl client.
package postrig // import "github.com/go-lpc/postrig"

import (
	"fmt"
	"runtime/debug"
)

// Version returns the version of postrig and its checksum.
// The returned values are only valid in binaries built with module support.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return versionOf(b)
}

func versionOf(b *debug.BuildInfo) (version, sum string) {
	if b == nil {
		return "", ""
	}

	const root = "github.com/go-lpc/postrig"
	if b.Main.Path == root {
		return b.Main.Version, b.Main.Sum
	}

	for _, m := range b.Deps {
		if m.Path != root {
			continue
		}
		if m.Replace != nil {
			switch {
			case m.Replace.Version != "" && m.Replace.Path != "":
				return fmt.Sprintf("%s %s", m.Replace.Path, m.Replace.Version), m.Replace.Sum
			case m.Replace.Version != "":
				return m.Replace.Version, m.Replace.Sum
			case m.Replace.Path != "":
				return m.Replace.Path, m.Replace.Sum
			default:
				return m.Version + "*", ""
			}
		}
		return m.Version, m.Sum
	}
	return "", ""
}
