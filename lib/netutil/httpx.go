// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"io"
)

// MaxBodySize bounds diagnostic response body reads: 1 MB. Health
// probes and error bodies are tiny; the bound only exists so that a
// pathological backend cannot make the controller allocate without
// limit.
const MaxBodySize int64 = 1 << 20

// ErrorBody reads an HTTP response body for inclusion in a diagnostic
// message. Read errors are ignored — a partial body is still useful
// in an error message.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxBodySize))
	return string(data)
}

// Drain consumes and discards a response body (up to MaxBodySize) so
// the underlying connection can be reused by the HTTP client.
func Drain(body io.Reader) {
	io.Copy(io.Discard, io.LimitReader(body, MaxBodySize))
}
