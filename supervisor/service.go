// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/slipway-sh/slipway/lib/clock"
	"github.com/slipway-sh/slipway/lib/netutil"
)

// State is the lifecycle phase of a Service.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateCrashed:
		return "crashed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	// restartDelay debounces crash restarts so a service failing
	// instantly on boot does not spin the supervisor.
	restartDelay = 2 * time.Second

	// checkTimeout bounds one health probe.
	checkTimeout = 5 * time.Second

	// healthPath is the endpoint every managed application must
	// serve while healthy.
	healthPath = "/health"
)

// ServiceConfig holds configuration for creating a Service.
type ServiceConfig struct {
	// Name is the sanitized deployment name.
	Name string

	// Dir is the deployment directory.
	Dir string

	// Profile is the resolved runtime profile.
	Profile RuntimeProfile

	// Allocator assigns the service's transport.
	Allocator *PortAllocator

	// JailBinary wraps the run command in the isolation jail when
	// non-empty.
	JailBinary string

	// Clock drives the crash-restart debounce.
	Clock clock.Clock

	// Logger for service events.
	Logger *slog.Logger
}

// Service supervises one deployed application. It owns at most one
// live child process at any instant and one assigned transport per
// start cycle.
type Service struct {
	name       string
	dir        string
	profile    RuntimeProfile
	allocator  *PortAllocator
	jailBinary string
	clock      clock.Clock
	logger     *slog.Logger

	mu        sync.Mutex
	state     State
	transport Transport
	child     *exec.Cmd
}

// NewService creates a Service in the stopped state.
func NewService(config ServiceConfig) (*Service, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("service name is required")
	}
	if config.Dir == "" {
		return nil, fmt.Errorf("deployment directory is required")
	}
	if len(config.Profile.Run) == 0 {
		return nil, fmt.Errorf("profile %q has no run command", config.Profile.Name)
	}
	if config.Allocator == nil {
		return nil, fmt.Errorf("allocator is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		name:       config.Name,
		dir:        config.Dir,
		profile:    config.Profile,
		allocator:  config.Allocator,
		jailBinary: config.JailBinary,
		clock:      config.Clock,
		logger:     logger.With("service", config.Name),
	}, nil
}

// Name returns the deployment name.
func (s *Service) Name() string { return s.name }

// State returns the current lifecycle phase.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transport returns the assigned transport and whether the service
// currently holds one.
func (s *Service) Transport() (Transport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport, !s.transport.IsZero()
}

// Pid returns the live child's pid, or zero when no child is live.
func (s *Service) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.child == nil || s.child.Process == nil {
		return 0
	}
	return s.child.Process.Pid
}

// Init runs the profile's build commands in sequence inside the
// deployment directory. The combined output of all commands is
// returned either way; a non-zero exit aborts the sequence with a
// BuildError carrying that output.
func (s *Service) Init(ctx context.Context) ([]byte, error) {
	var output []byte
	for _, command := range s.profile.Build {
		if len(command) == 0 {
			continue
		}
		cmd := exec.CommandContext(ctx, command[0], command[1:]...)
		cmd.Dir = s.dir
		cmd.Env = s.buildEnv()
		out, err := cmd.CombinedOutput()
		output = append(output, out...)
		if err != nil {
			return output, &BuildError{
				Command: strings.Join(command, " "),
				Output:  output,
				Err:     err,
			}
		}
	}
	return output, nil
}

// Start launches the run command. A call while a child is already
// live is a no-op guard, never a second spawn. Spawn failure is
// treated as a crash: the transport is released and a debounced
// restart is scheduled.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *Service) startLocked() error {
	if s.child != nil {
		return nil
	}
	s.state = StateStarting

	transport, err := s.acquireTransportLocked()
	if err != nil {
		s.state = StateStopped
		return err
	}

	cmd := s.runCommand(transport)
	if err := cmd.Start(); err != nil {
		s.releaseTransportLocked(transport)
		s.state = StateCrashed
		s.scheduleRestartLocked()
		return &LaunchError{Err: err}
	}

	s.transport = transport
	s.child = cmd
	s.state = StateRunning
	s.logger.Info("service started",
		"pid", cmd.Process.Pid,
		"transport", transport.String(),
	)

	go s.watch(cmd)
	return nil
}

func (s *Service) acquireTransportLocked() (Transport, error) {
	if s.profile.Sockets {
		if err := s.allocator.RemoveStaleSocket(s.name); err != nil {
			return Transport{}, err
		}
		return Transport{Socket: s.allocator.SocketPath(s.name)}, nil
	}
	port, err := s.allocator.Acquire()
	if err != nil {
		return Transport{}, err
	}
	return Transport{Port: port}, nil
}

func (s *Service) releaseTransportLocked(transport Transport) {
	if transport.Port != 0 {
		s.allocator.Release(transport.Port)
	}
	if s.transport == transport {
		s.transport = Transport{}
	}
}

// runCommand builds the child command, wrapped by the jail binary
// when one is configured. The jail sets its own working directory
// (the app mount); the unjailed form runs directly in the deployment
// directory.
func (s *Service) runCommand(transport Transport) *exec.Cmd {
	run := s.profile.Run
	var cmd *exec.Cmd
	if s.jailBinary != "" {
		args := []string{"run", "--dir", s.dir}
		if transport.Socket != "" {
			// The socket lives outside /app; the jail mounts its
			// directory so the bind path resolves inside the sandbox.
			args = append(args, "--sockets", s.allocator.SocketsDir())
		}
		args = append(args, "--")
		args = append(args, run...)
		cmd = exec.Command(s.jailBinary, args...)
	} else {
		cmd = exec.Command(run[0], run[1:]...)
		cmd.Dir = s.dir
	}
	cmd.Env = append(s.buildEnv(), "PORT="+transport.Env())
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	return cmd
}

// buildEnv is the deliberately small environment handed to every
// child: inherited PATH plus the production-mode markers.
func (s *Service) buildEnv() []string {
	return []string{
		"PATH=" + os.Getenv("PATH"),
		"NODE_ENV=production",
		"SLIPWAY=1",
	}
}

// watch waits for one child and handles its exit. A notification for
// a child that has since been replaced or discarded is stale and
// ignored; only the current handle's exit drives the state machine.
func (s *Service) watch(cmd *exec.Cmd) {
	err := cmd.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.child != cmd {
		return
	}
	s.child = nil
	s.releaseTransportLocked(s.transport)
	s.state = StateCrashed
	s.logger.Warn("service exited unexpectedly", "error", err)
	s.scheduleRestartLocked()
}

// scheduleRestartLocked arms the crash debounce. When it fires, the
// restart only proceeds if the service is still crashed; a Stop or a
// replacement deploy in the meantime wins.
func (s *Service) scheduleRestartLocked() {
	s.clock.AfterFunc(restartDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state != StateCrashed {
			return
		}
		s.logger.Info("restarting crashed service")
		if err := s.startLocked(); err != nil {
			s.logger.Error("crash restart failed", "error", err)
		}
	})
}

// Stop kills the live child, releases the transport, and moves to
// stopped. The discarded handle makes the exit watcher's notification
// stale, and the stopped state cancels any pending crash restart.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Service) stopLocked() {
	if s.child != nil && s.child.Process != nil {
		if err := s.child.Process.Kill(); err != nil {
			s.logger.Warn("killing service process", "error", err)
		}
	}
	s.child = nil
	s.releaseTransportLocked(s.transport)
	s.state = StateStopped
}

// Restart stops the live child, if any, and starts a fresh one.
func (s *Service) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return s.startLocked()
}

// Check probes the service's health endpoint over its transport. A
// transport error or a server-error status restarts the service; any
// other status is healthy. Services that are not running are skipped.
func (s *Service) Check(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	transport := s.transport
	child := s.child
	s.mu.Unlock()

	healthy, detail := probe(ctx, transport)
	if healthy {
		return nil
	}

	// The probe ran unlocked; a Stop, crash, or replacement deploy
	// may have won in the meantime. Restart only the child that was
	// actually probed, and only if it is still wanted.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning || s.child != child {
		return nil
	}
	s.logger.Warn("health check failed, restarting", "detail", detail)
	s.stopLocked()
	return s.startLocked()
}

func probe(ctx context.Context, transport Transport) (healthy bool, detail string) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, transport.URL()+healthPath, nil)
	if err != nil {
		return false, err.Error()
	}
	resp, err := transport.Client(checkTimeout).Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return false, fmt.Sprintf("status %d: %s", resp.StatusCode, netutil.ErrorBody(resp.Body))
	}
	netutil.Drain(resp.Body)
	return true, ""
}
