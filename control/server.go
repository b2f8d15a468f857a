// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
)

// Deployer triggers a deployment by name and returns the captured
// build output.
type Deployer interface {
	Deploy(ctx context.Context, name string) ([]byte, error)
}

// Config holds configuration for creating a control Server.
type Config struct {
	// SocketPath is where the deploy socket is bound.
	SocketPath string

	// Deployer handles deploy requests.
	Deployer Deployer

	// Logger for server events.
	Logger *slog.Logger
}

// Server is the deploy endpoint: an HTTP server on a unix socket
// accepting GET /{name}.
type Server struct {
	socketPath string
	deployer   Deployer
	logger     *slog.Logger

	httpServer *http.Server
	listener   net.Listener
}

// New creates a control Server. Call Start to begin serving.
func New(config Config) (*Server, error) {
	if config.SocketPath == "" {
		return nil, fmt.Errorf("socket path is required")
	}
	if config.Deployer == nil {
		return nil, fmt.Errorf("deployer is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		socketPath: config.SocketPath,
		deployer:   config.Deployer,
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{name}", s.handleDeploy)
	s.httpServer = &http.Server{Handler: mux}
	return s, nil
}

// Start binds the unix socket and begins serving in a background
// goroutine. A stale socket file from a previous run is removed
// before the bind.
func (s *Server) Start() error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale control socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("binding control socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0o660); err != nil {
		listener.Close()
		return fmt.Errorf("setting control socket permissions: %w", err)
	}
	s.listener = listener

	s.logger.Info("control endpoint listening", "socket", s.socketPath)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control server stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server and removes the socket file.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if removeErr := os.Remove(s.socketPath); removeErr != nil && !os.IsNotExist(removeErr) && err == nil {
		err = removeErr
	}
	return err
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	s.logger.Info("deploy requested", "name", name)

	output, err := s.deployer.Deploy(r.Context(), name)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err != nil {
		s.logger.Warn("deploy failed", "name", name, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "deploy failed: %v\n", err)
		w.Write(output)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write(output)
}
