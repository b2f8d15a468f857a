// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Transport is the addressable endpoint of a running service: either
// a loopback TCP port or a unix socket path, never both.
type Transport struct {
	Port   int
	Socket string
}

// IsZero reports whether no transport has been assigned.
func (t Transport) IsZero() bool {
	return t.Port == 0 && t.Socket == ""
}

// Env returns the value injected into the service's PORT variable:
// the numeric port, or the socket path for socket-capable runtimes.
func (t Transport) Env() string {
	if t.Socket != "" {
		return t.Socket
	}
	return strconv.Itoa(t.Port)
}

func (t Transport) String() string {
	if t.Socket != "" {
		return t.Socket
	}
	return "127.0.0.1:" + strconv.Itoa(t.Port)
}

// URL returns the base URL for HTTP requests to the transport. For
// socket transports the host component is a placeholder; the client's
// dialer ignores it and connects to the socket path.
func (t Transport) URL() string {
	if t.Socket != "" {
		return "http://unix"
	}
	return fmt.Sprintf("http://127.0.0.1:%d", t.Port)
}

// Client returns an HTTP client that reaches the transport, with a
// bounded overall timeout. Socket transports get a dialer pinned to
// the socket path.
func (t Transport) Client(timeout time.Duration) *http.Client {
	client := &http.Client{Timeout: timeout}
	if t.Socket != "" {
		socket := t.Socket
		client.Transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socket)
			},
		}
	}
	return client
}
