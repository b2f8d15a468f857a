// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/slipway-sh/slipway/lib/codec"
)

// ServiceRecord is one live service in the persisted snapshot.
type ServiceRecord struct {
	Name   string `cbor:"name"`
	Port   int    `cbor:"port,omitempty"`
	Socket string `cbor:"socket,omitempty"`
	Pid    int    `cbor:"pid,omitempty"`
}

// StateStore persists the set of live services across controller
// restarts. The snapshot is advisory: at boot it tells the controller
// which socket files may be stale, nothing more.
type StateStore struct {
	path string
}

// NewStateStore creates a store writing to path.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Write replaces the snapshot atomically: encode to a temp file in
// the same directory, sync, then rename over the old snapshot. A
// crash mid-write leaves the previous snapshot intact.
func (s *StateStore) Write(records []ServiceRecord) error {
	encoded, err := codec.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding state snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// Read returns the persisted records. A missing snapshot is an empty
// result, not an error.
func (s *StateStore) Read() ([]ServiceRecord, error) {
	contents, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state snapshot: %w", err)
	}
	var records []ServiceRecord
	if err := codec.Unmarshal(contents, &records); err != nil {
		return nil, fmt.Errorf("decoding state snapshot: %w", err)
	}
	return records, nil
}

// Clear removes the snapshot. A missing snapshot is not an error.
func (s *StateStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing state snapshot: %w", err)
	}
	return nil
}
