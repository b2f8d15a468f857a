// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/slipway-sh/slipway/lib/binhash"
	"github.com/slipway-sh/slipway/lib/clock"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateName checks a raw deployment name and returns the display
// name with any ".git" repository suffix stripped. Names are path
// components under the apps base directory, so anything that could
// escape it is rejected before any filesystem access.
func ValidateName(raw string) (string, error) {
	if raw == "" {
		return "", &ValidationError{Name: raw, Reason: "empty"}
	}
	if !namePattern.MatchString(raw) {
		return "", &ValidationError{Name: raw, Reason: "contains characters outside [A-Za-z0-9._-]"}
	}
	if strings.Contains(raw, "..") {
		return "", &ValidationError{Name: raw, Reason: "contains a parent directory reference"}
	}
	name := strings.TrimSuffix(raw, ".git")
	if name == "" || name == "." {
		return "", &ValidationError{Name: raw, Reason: "resolves to no name"}
	}
	return name, nil
}

// RegistryConfig holds configuration for creating a Registry.
type RegistryConfig struct {
	// BaseDir holds one deployment directory per name.
	BaseDir string

	// Profiles resolves runtime profiles for deployments.
	Profiles *ProfileLoader

	// Allocator assigns transports to services.
	Allocator *PortAllocator

	// JailBinary wraps run commands in the isolation jail when
	// non-empty.
	JailBinary string

	// Store persists the live-service snapshot. Optional.
	Store *StateStore

	// Clock drives service crash debounces.
	Clock clock.Clock

	// Logger for registry events.
	Logger *slog.Logger
}

// Registry maps deployment names to their Services and drives
// deploys. Deploys for the same name are serialized; deploys for
// different names proceed concurrently.
type Registry struct {
	baseDir    string
	profiles   *ProfileLoader
	allocator  *PortAllocator
	jailBinary string
	store      *StateStore
	clock      clock.Clock
	logger     *slog.Logger

	mu       sync.Mutex
	services map[string]*Service
	deploys  map[string]*sync.Mutex
}

// NewRegistry creates an empty Registry.
func NewRegistry(config RegistryConfig) (*Registry, error) {
	if config.BaseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if config.Profiles == nil {
		return nil, fmt.Errorf("profile loader is required")
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
	return &Registry{
		baseDir:    config.BaseDir,
		profiles:   config.Profiles,
		allocator:  config.Allocator,
		jailBinary: config.JailBinary,
		store:      config.Store,
		clock:      config.Clock,
		logger:     logger,
		services:   make(map[string]*Service),
		deploys:    make(map[string]*sync.Mutex),
	}, nil
}

// Lookup returns the Service for a display name.
func (r *Registry) Lookup(name string) (*Service, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	svc, ok := r.services[name]
	return svc, ok
}

// Resolve maps a deployment name to its current transport. The
// second result is false for unknown names; a known name whose
// service holds no transport right now resolves to a zero Transport.
func (r *Registry) Resolve(name string) (Transport, bool) {
	svc, ok := r.Lookup(name)
	if !ok {
		return Transport{}, false
	}
	transport, _ := svc.Transport()
	return transport, true
}

// Services returns a snapshot of all registered services.
func (r *Registry) Services() []*Service {
	r.mu.Lock()
	defer r.mu.Unlock()
	services := make([]*Service, 0, len(r.services))
	for _, svc := range r.services {
		services = append(services, svc)
	}
	return services
}

// deployLock returns the per-name deploy mutex, creating it on first
// use. Lock lifetime is the registry's; names are few.
func (r *Registry) deployLock(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.deploys[name]
	if !ok {
		lock = &sync.Mutex{}
		r.deploys[name] = lock
	}
	return lock
}

// Deploy builds and (re)starts the named deployment. The previous
// service for the name, if any, is fully stopped and its transport
// released before the replacement acquires one. The returned bytes
// are the captured build output, populated even when the deploy
// fails so the requester sees the build transcript.
func (r *Registry) Deploy(ctx context.Context, rawName string) ([]byte, error) {
	name, err := ValidateName(rawName)
	if err != nil {
		return nil, err
	}

	lock := r.deployLock(name)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Join(r.baseDir, name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, &ValidationError{Name: rawName, Reason: "no such deployment"}
	}

	if previous, ok := r.Lookup(name); ok {
		previous.Stop()
	}

	profile := r.profiles.Detect(dir)
	r.logger.Info("deploying", "name", name, "profile", profile.Name)

	svc, err := NewService(ServiceConfig{
		Name:       name,
		Dir:        dir,
		Profile:    profile,
		Allocator:  r.allocator,
		JailBinary: r.jailBinary,
		Clock:      r.clock,
		Logger:     r.logger,
	})
	if err != nil {
		return nil, err
	}

	output, err := svc.Init(ctx)
	if err != nil {
		return output, err
	}

	// Register before checking the start result: a launch failure
	// schedules a debounced retry, and that retry must stay visible
	// to later deploys and to shutdown or its child would leak.
	startErr := svc.Start()
	r.mu.Lock()
	r.services[name] = svc
	r.mu.Unlock()
	if startErr != nil {
		return output, startErr
	}

	r.logArtifact(svc, profile)
	r.writeSnapshot()
	return output, nil
}

// logArtifact records the run entrypoint's digest for audit
// correlation. Best effort; a run command with no per-deployment file
// behind it only skips the log line.
func (r *Registry) logArtifact(svc *Service, profile RuntimeProfile) {
	artifact, ok := runArtifact(svc.dir, profile)
	if !ok {
		return
	}
	digest, err := binhash.HashFile(artifact)
	if err != nil {
		r.logger.Debug("artifact digest unavailable", "name", svc.Name(), "error", err)
		return
	}
	r.logger.Info("deployed artifact", "name", svc.Name(), "artifact", artifact, "digest", digest.String())
}

// runArtifact resolves the file behind a profile's run command.
// Relative commands resolve inside the deployment directory.
// Commands found via PATH (npm, node) are interpreter launchers, not
// deployment bytes, so there is nothing meaningful to hash.
func runArtifact(dir string, profile RuntimeProfile) (string, bool) {
	if len(profile.Run) == 0 {
		return "", false
	}
	command := profile.Run[0]
	if !strings.Contains(command, "/") {
		return "", false
	}
	path := command
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return path, true
}

// writeSnapshot persists the current live set. Best effort; the
// snapshot only speeds up stale-socket cleanup at next boot.
func (r *Registry) writeSnapshot() {
	if r.store == nil {
		return
	}
	var records []ServiceRecord
	for _, svc := range r.Services() {
		transport, ok := svc.Transport()
		if !ok {
			continue
		}
		records = append(records, ServiceRecord{
			Name:   svc.Name(),
			Port:   transport.Port,
			Socket: transport.Socket,
			Pid:    svc.Pid(),
		})
	}
	if err := r.store.Write(records); err != nil {
		r.logger.Warn("writing state snapshot", "error", err)
	}
}

// Stop stops the named service and drops it from the registry.
func (r *Registry) Stop(name string) {
	r.mu.Lock()
	svc, ok := r.services[name]
	if ok {
		delete(r.services, name)
	}
	r.mu.Unlock()
	if ok {
		svc.Stop()
		r.writeSnapshot()
	}
}

// StopAll stops every registered service. Called on controller
// shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	services := r.services
	r.services = make(map[string]*Service)
	r.mu.Unlock()
	for _, svc := range services {
		svc.Stop()
	}
	r.writeSnapshot()
}

// ScanAndDeploy redeploys every deployment directory found under the
// base path. Individual failures are logged and the scan continues;
// a controller restart never strands the deployments that still
// build.
func (r *Registry) ScanAndDeploy(ctx context.Context) {
	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		r.logger.Warn("scanning deployments", "error", err)
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := r.Deploy(ctx, entry.Name()); err != nil {
			r.logger.Warn("redeploy failed", "name", entry.Name(), "error", err)
		}
	}
}

// RecoverState reads the previous boot's snapshot, unlinks any
// socket files it names, and clears it. Must run before the redeploy
// scan so stale sockets never shadow fresh binds.
func (r *Registry) RecoverState() {
	if r.store == nil {
		return
	}
	records, err := r.store.Read()
	if err != nil {
		r.logger.Warn("reading state snapshot", "error", err)
		return
	}
	for _, record := range records {
		if record.Socket == "" {
			continue
		}
		if err := os.Remove(record.Socket); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("removing stale socket", "path", record.Socket, "error", err)
		}
	}
	if err := r.store.Clear(); err != nil {
		r.logger.Warn("clearing state snapshot", "error", err)
	}
}
