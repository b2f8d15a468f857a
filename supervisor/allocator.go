// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// PortAllocator hands out loopback TCP ports from a fixed half-open
// range [first, limit) and derives per-name socket paths. Numeric
// ports are pooled and must be released; socket paths are
// deterministic per name and need no pooling, only stale-file cleanup
// before reuse.
type PortAllocator struct {
	first      int
	limit      int
	socketsDir string

	mu    sync.Mutex
	inUse map[int]bool
}

// NewPortAllocator creates an allocator over [first, limit) with
// socket paths rooted at socketsDir.
func NewPortAllocator(first, limit int, socketsDir string) (*PortAllocator, error) {
	if first <= 0 || limit <= first {
		return nil, fmt.Errorf("invalid port range [%d, %d)", first, limit)
	}
	return &PortAllocator{
		first:      first,
		limit:      limit,
		socketsDir: socketsDir,
		inUse:      make(map[int]bool),
	}, nil
}

// Acquire returns the lowest free port in the range, or
// ErrPortsExhausted when every port is held.
func (a *PortAllocator) Acquire() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for port := a.first; port < a.limit; port++ {
		if !a.inUse[port] {
			a.inUse[port] = true
			return port, nil
		}
	}
	return 0, ErrPortsExhausted
}

// Release returns a port to the pool. Releasing a port that is not
// held is a no-op.
func (a *PortAllocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inUse, port)
}

// SocketsDir returns the directory holding service socket files.
func (a *PortAllocator) SocketsDir() string {
	return a.socketsDir
}

// SocketPath returns the deterministic socket path for a deployment
// name.
func (a *PortAllocator) SocketPath(name string) string {
	return filepath.Join(a.socketsDir, name+".sock")
}

// RemoveStaleSocket unlinks a leftover socket file for name so the
// next bind does not fail on the stale entry. A missing file is not
// an error.
func (a *PortAllocator) RemoveStaleSocket(name string) error {
	err := os.Remove(a.SocketPath(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket: %w", err)
	}
	return nil
}
