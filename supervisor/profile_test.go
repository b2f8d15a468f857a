// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectNodeByMarker(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte("{}"), 0o644))

	loader, err := NewProfileLoader("")
	require.NoError(t, err)

	profile := loader.Detect(dir)
	require.Equal(t, "node", profile.Name)
	require.Equal(t, []string{"npm", "start", "--silent"}, profile.Run)
	require.True(t, profile.Sockets)
}

func TestDetectFallsBackToDefault(t *testing.T) {
	loader, err := NewProfileLoader("")
	require.NoError(t, err)

	profile := loader.Detect(t.TempDir())
	require.Equal(t, "default", profile.Name)
	require.Equal(t, []string{"./run"}, profile.Run)
	require.Equal(t, [][]string{{"./init"}}, profile.Build)
	require.False(t, profile.Sockets)
}

func TestProfileFileReplacesBuiltin(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "profiles.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
- name: node
  marker: package.json
  build:
    - [npm, ci]
  run: [node, server.js]
  sockets: false
`), 0o644))

	loader, err := NewProfileLoader(file)
	require.NoError(t, err)

	appDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "package.json"), []byte("{}"), 0o644))

	profile := loader.Detect(appDir)
	require.Equal(t, "node", profile.Name)
	require.Equal(t, []string{"node", "server.js"}, profile.Run)
	require.Equal(t, [][]string{{"npm", "ci"}}, profile.Build)
	require.False(t, profile.Sockets)
}

func TestProfileFileAddsHigherPriorityProfile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "profiles.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
- name: static
  marker: index.html
  run: [serve, .]
`), 0o644))

	loader, err := NewProfileLoader(file)
	require.NoError(t, err)

	// A directory matching both markers resolves to the file entry.
	appDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "index.html"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "package.json"), []byte("{}"), 0o644))

	profile := loader.Detect(appDir)
	require.Equal(t, "static", profile.Name)
}

func TestProfileFileValidation(t *testing.T) {
	dir := t.TempDir()

	unnamed := filepath.Join(dir, "unnamed.yaml")
	require.NoError(t, os.WriteFile(unnamed, []byte("- marker: x\n  run: [a]\n"), 0o644))
	_, err := NewProfileLoader(unnamed)
	require.Error(t, err)

	norun := filepath.Join(dir, "norun.yaml")
	require.NoError(t, os.WriteFile(norun, []byte("- name: broken\n  marker: x\n"), 0o644))
	_, err = NewProfileLoader(norun)
	require.Error(t, err)

	_, err = NewProfileLoader(filepath.Join(dir, "absent.yaml"))
	require.Error(t, err)
}
