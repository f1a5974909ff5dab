// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !unix

package panda

import "syscall"

var control func(network, address string, c syscall.RawConn) error
