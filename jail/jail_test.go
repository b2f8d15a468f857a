// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package jail

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestNewValidation(t *testing.T) {
	dir := t.TempDir()

	_, err := New(Config{Program: "true"})
	require.Error(t, err, "missing directory should be rejected")

	_, err = New(Config{Dir: dir})
	require.Error(t, err, "missing program should be rejected")

	_, err = New(Config{Dir: filepath.Join(dir, "absent"), Program: "true"})
	require.Error(t, err, "nonexistent directory should be rejected")

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = New(Config{Dir: file, Program: "true"})
	require.Error(t, err, "regular file should be rejected as directory")
}

func TestNewDefaultsToInvokingUser(t *testing.T) {
	j, err := New(Config{Dir: t.TempDir(), Program: "true"})
	require.NoError(t, err)
	require.Equal(t, os.Getuid(), j.uid)
	require.Equal(t, os.Getgid(), j.gid)
}

func TestCommandNamespacesAndMappings(t *testing.T) {
	dir := t.TempDir()
	j, err := New(Config{
		Dir:     dir,
		Program: "node",
		Args:    []string{"server.js", "--port", "3000"},
		UID:     1234,
		GID:     5678,
	})
	require.NoError(t, err)

	cmd, err := j.Command(context.Background())
	require.NoError(t, err)

	attr := cmd.SysProcAttr
	require.NotNil(t, attr)
	wantFlags := uintptr(unix.CLONE_NEWUSER | unix.CLONE_NEWPID | unix.CLONE_NEWNS)
	require.Equal(t, wantFlags, attr.Cloneflags)
	require.False(t, attr.GidMappingsEnableSetgroups)

	require.Equal(t, []syscall.SysProcIDMap{{ContainerID: 1234, HostID: 1234, Size: 1}}, attr.UidMappings)
	require.Equal(t, []syscall.SysProcIDMap{{ContainerID: 5678, HostID: 5678, Size: 1}}, attr.GidMappings)

	// The child is this binary re-exec'd into the setup stage with
	// the original program after the terminator.
	resolved, err := filepath.Abs(dir)
	require.NoError(t, err)
	require.Equal(t, []string{
		cmd.Path,
		"setup",
		"--dir", resolved,
		"--uid", "1234",
		"--gid", "5678",
		"--",
		"node", "server.js", "--port", "3000",
	}, cmd.Args)
}

func TestCommandWithSocketDir(t *testing.T) {
	dir := t.TempDir()
	sockets := t.TempDir()
	j, err := New(Config{
		Dir:       dir,
		SocketDir: sockets,
		Program:   "npm",
		Args:      []string{"start"},
		UID:       7,
		GID:       8,
	})
	require.NoError(t, err)

	cmd, err := j.Command(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{
		cmd.Path,
		"setup",
		"--dir", dir,
		"--sockets", sockets,
		"--uid", "7",
		"--gid", "8",
		"--",
		"npm", "start",
	}, cmd.Args)
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source")
	target := filepath.Join(dir, "target")
	require.NoError(t, os.WriteFile(source, []byte("nameserver 10.0.0.1\n"), 0o600))

	require.NoError(t, copyFile(source, target))

	contents, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "nameserver 10.0.0.1\n", string(contents))

	info, err := os.Stat(target)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestCopyFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := copyFile(filepath.Join(dir, "absent"), filepath.Join(dir, "target"))
	require.Error(t, err)
}

func TestSetupTempDir(t *testing.T) {
	dir := t.TempDir()
	app := filepath.Join(dir, "app")
	require.NoError(t, os.Mkdir(app, 0o755))
	link := filepath.Join(dir, "tmp")

	require.NoError(t, setupTempDir(app, link))

	info, err := os.Stat(filepath.Join(app, ".tmp"))
	require.NoError(t, err)
	require.True(t, info.IsDir())
	require.True(t, info.Mode()&os.ModeSticky != 0)

	target, err := os.Readlink(link)
	require.NoError(t, err)
	require.Equal(t, "/app/.tmp", target)

	// Re-running must be idempotent so a redeploy into the same
	// scratch layout does not fail on the existing symlink.
	require.NoError(t, setupTempDir(app, link))
}

func TestIsExitError(t *testing.T) {
	code, ok := IsExitError(&ExitError{Code: 3})
	require.True(t, ok)
	require.Equal(t, 3, code)

	wrapped := fmt.Errorf("running app: %w", &ExitError{Code: 7})
	code, ok = IsExitError(wrapped)
	require.True(t, ok)
	require.Equal(t, 7, code)

	_, ok = IsExitError(errors.New("unrelated"))
	require.False(t, ok)
}
