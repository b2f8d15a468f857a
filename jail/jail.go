// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package jail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// Jail runs one command inside the namespace sandbox.
type Jail struct {
	dir       string
	socketDir string
	program   string
	args      []string
	uid       int
	gid       int
	logger    *slog.Logger
}

// Config holds configuration for creating a new Jail.
type Config struct {
	// Dir is the application directory, bind-mounted read-write at
	// /app inside the sandbox and used as the working directory.
	Dir string

	// SocketDir, when non-empty, is bind-mounted read-write inside
	// the sandbox at its own host path, so a service can bind a unix
	// socket there that the host dials at the identical path.
	SocketDir string

	// Program is the command to exec inside the sandbox, resolved
	// against PATH when it contains no slash.
	Program string

	// Args are the program arguments.
	Args []string

	// UID and GID are the ids mapped identically into the new user
	// namespace and dropped to before exec. Zero values mean the
	// invoking user's real ids.
	UID int
	GID int

	// Logger for jail operations.
	Logger *slog.Logger
}

// New creates a new Jail.
func New(config Config) (*Jail, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("application directory is required")
	}
	if config.Program == "" {
		return nil, fmt.Errorf("program is required")
	}

	dir, err := filepath.Abs(config.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolving application directory: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("application directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("application directory %s is not a directory", dir)
	}

	socketDir := config.SocketDir
	if socketDir != "" {
		socketDir, err = filepath.Abs(socketDir)
		if err != nil {
			return nil, fmt.Errorf("resolving socket directory: %w", err)
		}
	}

	uid := config.UID
	if uid == 0 {
		uid = os.Getuid()
	}
	gid := config.GID
	if gid == 0 {
		gid = os.Getgid()
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Jail{
		dir:       dir,
		socketDir: socketDir,
		program:   config.Program,
		args:      config.Args,
		uid:       uid,
		gid:       gid,
		logger:    logger,
	}, nil
}

// Command creates the re-exec command that enters the sandbox. The
// child is created directly inside new user, pid, and mount
// namespaces (clone-time creation, so it becomes pid 1 of the pid
// namespace) with an identity uid/gid mapping of size 1. Setgroups is
// denied before the gid map is written — the kernel refuses
// unprivileged gid mappings otherwise.
func (j *Jail) Command(ctx context.Context) (*exec.Cmd, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating own binary for setup stage: %w", err)
	}

	args := []string{
		"setup",
		"--dir", j.dir,
	}
	if j.socketDir != "" {
		args = append(args, "--sockets", j.socketDir)
	}
	args = append(args,
		"--uid", strconv.Itoa(j.uid),
		"--gid", strconv.Itoa(j.gid),
		"--",
		j.program,
	)
	args = append(args, j.args...)

	cmd := exec.CommandContext(ctx, self, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: unix.CLONE_NEWUSER | unix.CLONE_NEWPID | unix.CLONE_NEWNS,
		UidMappings: []syscall.SysProcIDMap{
			{ContainerID: j.uid, HostID: j.uid, Size: 1},
		},
		GidMappings: []syscall.SysProcIDMap{
			{ContainerID: j.gid, HostID: j.gid, Size: 1},
		},
		GidMappingsEnableSetgroups: false,
	}
	return cmd, nil
}

// Run executes the jailed command with inherited stdio, waits for it,
// and returns an ExitError carrying the sandboxed program's exit code
// when it exits non-zero. The outer process reports the inner exit
// status to its own parent unchanged.
func (j *Jail) Run(ctx context.Context) error {
	cmd, err := j.Command(ctx)
	if err != nil {
		return err
	}

	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	j.logger.Debug("entering jail",
		"dir", j.dir,
		"program", j.program,
		"uid", j.uid,
		"gid", j.gid,
	)

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("jail command failed: %w", err)
	}
	return nil
}

// ExitError reports a non-zero exit from the jailed command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.Code)
}

// IsExitError checks if an error is an ExitError and returns the code.
func IsExitError(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
