// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package jail

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// baseMountFlags apply to every mount the jail creates. Nothing
// inside the sandbox may carry setuid bits or expose device nodes.
const baseMountFlags = unix.MS_NOSUID | unix.MS_NODEV

// bindMount binds source at target inside the scratch root, creating
// the mount point first. Restriction flags such as MS_RDONLY are
// ignored by the kernel on the initial bind call, so they take effect
// only through a second remount with the same flag set.
func bindMount(source, target string, extraFlags uintptr) error {
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("creating mount point: %w", err)
	}
	flags := uintptr(unix.MS_BIND|baseMountFlags) | extraFlags
	if err := unix.Mount(source, target, "", flags, ""); err != nil {
		return fmt.Errorf("bind mount: %w", err)
	}
	if err := unix.Mount("", target, "", unix.MS_REMOUNT|flags, ""); err != nil {
		return fmt.Errorf("remount: %w", err)
	}
	return nil
}

// mountTmpfs mounts a fresh tmpfs at target with the given size
// option.
func mountTmpfs(target, options string, extraFlags uintptr) error {
	flags := uintptr(baseMountFlags) | extraFlags
	if err := unix.Mount("tmpfs", target, "tmpfs", flags, options); err != nil {
		return fmt.Errorf("tmpfs at %s: %w", target, err)
	}
	return nil
}

// mountProc mounts procfs at target, creating the mount point first.
func mountProc(target string) error {
	if err := os.MkdirAll(target, 0o555); err != nil {
		return fmt.Errorf("creating mount point: %w", err)
	}
	flags := uintptr(baseMountFlags | unix.MS_NOEXEC)
	if err := unix.Mount("proc", target, "proc", flags, ""); err != nil {
		return fmt.Errorf("proc at %s: %w", target, err)
	}
	return nil
}

// remountReadOnly flips an existing mount to read-only in place.
func remountReadOnly(target string) error {
	flags := uintptr(unix.MS_REMOUNT | unix.MS_BIND | unix.MS_RDONLY | baseMountFlags)
	return unix.Mount("", target, "", flags, "")
}
