// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides small network I/O helpers shared by the
// router and supervisor: bounded reads of upstream bodies and
// classification of normal connection-teardown errors.
package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IsExpectedCloseError reports whether err is normal connection
// termination: EOF, closed connection, broken pipe, or connection
// reset. These occur when a proxy client disconnects mid-stream and
// the in-flight copy to it fails as a result; they are part of
// ordinary teardown and should not be logged as errors.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
