// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/slipway-sh/slipway/lib/netutil"
	"github.com/slipway-sh/slipway/supervisor"
)

// Resolver maps a deployment name to its transport.
type Resolver interface {
	Resolve(name string) (supervisor.Transport, bool)
}

// Config holds configuration for creating a Router.
type Config struct {
	// Resolver looks up deployments by name.
	Resolver Resolver

	// UpstreamTimeout bounds each proxied request.
	UpstreamTimeout time.Duration

	// Logger for routing events.
	Logger *slog.Logger
}

// Router is the Host-routing reverse proxy handler.
type Router struct {
	resolver Resolver
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a Router.
func New(config Config) (*Router, error) {
	if config.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if config.UpstreamTimeout <= 0 {
		return nil, fmt.Errorf("upstream timeout must be positive")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		resolver: config.Resolver,
		timeout:  config.UpstreamTimeout,
		logger:   logger,
	}, nil
}

// hopByHopHeaders are connection-scoped and must not cross the proxy.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name, ok := deploymentName(r.Host)
	if !ok {
		http.Error(w, "missing Host header", http.StatusBadRequest)
		return
	}

	transport, found := rt.resolver.Resolve(name)
	if !found {
		http.Error(w, fmt.Sprintf("no deployment named %q", name), http.StatusNotFound)
		return
	}
	if transport.IsZero() {
		http.Error(w, fmt.Sprintf("deployment %q is not running", name), http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), rt.timeout)
	defer cancel()

	outbound, err := http.NewRequestWithContext(ctx, r.Method, transport.URL()+r.URL.RequestURI(), r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("building upstream request: %v", err), http.StatusInternalServerError)
		return
	}
	copyHeaders(outbound.Header, r.Header)

	resp, err := rt.client(transport).Do(outbound)
	if err != nil {
		rt.logger.Warn("upstream request failed", "deployment", name, "error", err)
		http.Error(w, fmt.Sprintf("upstream request failed: %v", err), http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil && !netutil.IsExpectedCloseError(err) {
		rt.logger.Debug("streaming response body", "deployment", name, "error", err)
	}
}

// client returns the HTTP client for one upstream exchange. The
// overall deadline lives on the request context; the client itself
// carries no timeout so long streams are not cut off mid-body once
// headers have been flushed.
func (rt *Router) client(transport supervisor.Transport) *http.Client {
	client := &http.Client{
		// The router proxies redirects through verbatim.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	if transport.Socket != "" {
		socket := transport.Socket
		client.Transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socket)
			},
		}
	}
	return client
}

// deploymentName extracts the routing name from a Host header value:
// the first dot-delimited label, with any port stripped.
func deploymentName(host string) (string, bool) {
	if host == "" {
		return "", false
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	name, _, _ := strings.Cut(host, ".")
	if name == "" {
		return "", false
	}
	return name, true
}

// copyHeaders copies src into dst, dropping hop-by-hop headers and
// any header the Connection header nominates. Host is not in
// http.Header; the outbound client derives its own.
func copyHeaders(dst, src http.Header) {
	dropped := make(map[string]bool)
	for _, name := range hopByHopHeaders {
		dropped[name] = true
	}
	for _, value := range src.Values("Connection") {
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				dropped[http.CanonicalHeaderKey(name)] = true
			}
		}
	}
	for name, values := range src {
		if dropped[name] {
			continue
		}
		for _, value := range values {
			dst.Add(name, value)
		}
	}
}
