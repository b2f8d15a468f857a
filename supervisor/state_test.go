// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateStoreRoundTrip(t *testing.T) {
	store := NewStateStore(filepath.Join(t.TempDir(), "state"))

	records := []ServiceRecord{
		{Name: "blog", Port: 40000, Pid: 123},
		{Name: "api", Socket: "/run/slipway/api.sock", Pid: 456},
	}
	require.NoError(t, store.Write(records))

	got, err := store.Read()
	require.NoError(t, err)
	require.Equal(t, records, got)
}

func TestStateStoreMissingFile(t *testing.T) {
	store := NewStateStore(filepath.Join(t.TempDir(), "state"))

	records, err := store.Read()
	require.NoError(t, err)
	require.Nil(t, records)

	require.NoError(t, store.Clear())
}

func TestStateStoreWriteReplaces(t *testing.T) {
	dir := t.TempDir()
	store := NewStateStore(filepath.Join(dir, "state"))

	require.NoError(t, store.Write([]ServiceRecord{{Name: "old", Port: 40000}}))
	require.NoError(t, store.Write([]ServiceRecord{{Name: "new", Port: 40001}}))

	got, err := store.Read()
	require.NoError(t, err)
	require.Equal(t, []ServiceRecord{{Name: "new", Port: 40001}}, got)

	// No temp files linger after the rename.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestStateStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	store := NewStateStore(path)

	require.NoError(t, store.Write([]ServiceRecord{{Name: "blog"}}))
	require.NoError(t, store.Clear())

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}
