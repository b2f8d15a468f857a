// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slipway-sh/slipway/lib/testutil"
	"github.com/slipway-sh/slipway/supervisor"
)

type mapResolver map[string]supervisor.Transport

func (m mapResolver) Resolve(name string) (supervisor.Transport, bool) {
	transport, ok := m[name]
	return transport, ok
}

func newRouter(t *testing.T, resolver Resolver) *Router {
	t.Helper()
	rt, err := New(Config{Resolver: resolver, UpstreamTimeout: 5 * time.Second})
	require.NoError(t, err)
	return rt
}

func backendTransport(t *testing.T, handler http.Handler) supervisor.Transport {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	port, err := strconv.Atoi(server.URL[strings.LastIndex(server.URL, ":")+1:])
	require.NoError(t, err)
	return supervisor.Transport{Port: port}
}

func TestRoutesByFirstHostLabel(t *testing.T) {
	var seen *http.Request
	var seenBody []byte
	transport := backendTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Clone(r.Context())
		seenBody, _ = io.ReadAll(r.Body)
		w.Header().Set("X-Backend", "blog")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, "created")
	}))
	rt := newRouter(t, mapResolver{"blog": transport})

	req := httptest.NewRequest(http.MethodPost, "/posts?draft=1", strings.NewReader("payload"))
	req.Host = "blog.example.com"
	req.Header.Set("X-Custom", "kept")
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "blog", rec.Header().Get("X-Backend"))
	require.Equal(t, "created", rec.Body.String())

	require.NotNil(t, seen)
	require.Equal(t, http.MethodPost, seen.Method)
	require.Equal(t, "/posts", seen.URL.Path)
	require.Equal(t, "draft=1", seen.URL.RawQuery)
	require.Equal(t, "kept", seen.Header.Get("X-Custom"))
	require.Equal(t, "payload", string(seenBody))
	// The public Host is not forwarded; the client derives the
	// upstream's own.
	require.NotEqual(t, "blog.example.com", seen.Host)
}

func TestHostPortStripped(t *testing.T) {
	transport := backendTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rt := newRouter(t, mapResolver{"blog": transport})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "blog.example.com:8080"
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMissingHostIsBadRequest(t *testing.T) {
	rt := newRouter(t, mapResolver{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = ""
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownDeploymentIsNotFound(t *testing.T) {
	rt := newRouter(t, mapResolver{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "ghost.example.com"
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "ghost")
}

func TestUpstreamConnectFailureIsServerError(t *testing.T) {
	// Grab a free port and close the listener so nothing answers.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	rt := newRouter(t, mapResolver{"blog": {Port: port}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "blog.example.com"
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "upstream request failed")
}

func TestNotRunningDeploymentIsServerError(t *testing.T) {
	rt := newRouter(t, mapResolver{"blog": {}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "blog.example.com"
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "not running")
}

func TestSocketTransportUpstream(t *testing.T) {
	socket := filepath.Join(testutil.SocketDir(t), "blog.sock")
	listener, err := net.Listen("unix", socket)
	require.NoError(t, err)
	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "over the socket")
	}))
	server.Listener = listener
	server.Start()
	t.Cleanup(server.Close)

	rt := newRouter(t, mapResolver{"blog": {Socket: socket}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "blog.example.com"
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "over the socket", rec.Body.String())
}

func TestHopByHopHeadersStripped(t *testing.T) {
	var seen http.Header
	transport := backendTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
	}))
	rt := newRouter(t, mapResolver{"blog": transport})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "blog.example.com"
	req.Header.Set("Keep-Alive", "timeout=5")
	req.Header.Set("Proxy-Authorization", "Basic secret")
	req.Header.Set("Connection", "X-Dropped")
	req.Header.Set("X-Dropped", "value")
	req.Header.Set("X-Kept", "value")
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, seen.Get("Keep-Alive"))
	require.Empty(t, seen.Get("Proxy-Authorization"))
	require.Empty(t, seen.Get("X-Dropped"))
	require.Equal(t, "value", seen.Get("X-Kept"))
}

func TestRedirectsPassThroughVerbatim(t *testing.T) {
	transport := backendTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://elsewhere.example.com/", http.StatusFound)
	}))
	rt := newRouter(t, mapResolver{"blog": transport})

	req := httptest.NewRequest(http.MethodGet, "/old", nil)
	req.Host = "blog.example.com"
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://elsewhere.example.com/", rec.Header().Get("Location"))
}

func TestDeploymentNameExtraction(t *testing.T) {
	cases := map[string]struct {
		name string
		ok   bool
	}{
		"blog.example.com":      {"blog", true},
		"blog.example.com:8080": {"blog", true},
		"blog":                  {"blog", true},
		"":                      {"", false},
	}
	for host, want := range cases {
		name, ok := deploymentName(host)
		require.Equal(t, want.ok, ok, "host %q", host)
		require.Equal(t, want.name, name, "host %q", host)
	}
}
