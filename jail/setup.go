// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package jail

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	// scratchRoot is the mount point for the tmpfs that becomes the
	// sandbox's root filesystem.
	scratchRoot = "/mnt"

	// appPath is where the application directory appears inside the
	// sandbox.
	appPath = "/app"
)

// systemMount is one read-only bind of host toolchain directories
// into the scratch root.
type systemMount struct {
	path string

	// optional mounts are skipped when the host does not have the
	// directory (merged-/usr systems have no separate /lib64 etc).
	optional bool
}

var systemMounts = []systemMount{
	{path: "/usr"},
	{path: "/bin"},
	{path: "/sbin", optional: true},
	{path: "/lib", optional: true},
	{path: "/lib64", optional: true},
}

// etcFile is one host configuration file copied — not bound — into
// the sandbox's /etc, so the sandbox holds a frozen snapshot rather
// than a live view of host changes.
type etcFile struct {
	name     string
	optional bool
}

var etcFiles = []etcFile{
	{name: "resolv.conf"},
	{name: "hosts"},
	{name: "passwd", optional: true},
	{name: "group", optional: true},
}

// Setup runs the inner sandbox construction pipeline and execs the
// configured program. It must only be called from the re-exec'd setup
// stage: the process is pid 1 of fresh user, pid, and mount
// namespaces, with uid/gid maps already written by the kernel at
// clone time.
//
// Every step is fatal. On the first failure Setup returns an error
// and the caller exits; the kernel reclaims the namespaces and
// mounts. Nothing here may continue past a failed step — a partially
// constructed sandbox is a weaker sandbox, not a degraded one.
//
// On success Setup does not return: the process image is replaced by
// the target program.
func (j *Jail) Setup() error {
	if err := mountTmpfs(scratchRoot, "size=1M", 0); err != nil {
		return fmt.Errorf("mounting scratch root: %w", err)
	}

	if err := os.Mkdir(filepath.Join(scratchRoot, "etc"), 0o755); err != nil {
		return fmt.Errorf("creating /etc: %w", err)
	}

	for _, mount := range systemMounts {
		if _, err := os.Stat(mount.path); err != nil {
			if mount.optional && os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("system directory %s: %w", mount.path, err)
		}
		if err := bindMount(mount.path, filepath.Join(scratchRoot, mount.path), unix.MS_RDONLY); err != nil {
			return fmt.Errorf("binding %s: %w", mount.path, err)
		}
	}

	// The application directory is the only writable mount.
	appTarget := filepath.Join(scratchRoot, appPath)
	if err := bindMount(j.dir, appTarget, 0); err != nil {
		return fmt.Errorf("binding application directory: %w", err)
	}

	if err := setupTempDir(appTarget, filepath.Join(scratchRoot, "tmp")); err != nil {
		return fmt.Errorf("setting up temp directory: %w", err)
	}

	// The sockets directory keeps its host path inside the sandbox:
	// the PORT variable carries one path that is valid on both sides
	// of the chroot.
	if j.socketDir != "" {
		if err := bindMount(j.socketDir, filepath.Join(scratchRoot, j.socketDir), 0); err != nil {
			return fmt.Errorf("binding socket directory: %w", err)
		}
	}

	for _, file := range etcFiles {
		source := filepath.Join("/etc", file.name)
		if _, err := os.Stat(source); err != nil {
			if file.optional && os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("host file %s: %w", source, err)
		}
		if err := copyFile(source, filepath.Join(scratchRoot, "etc", file.name)); err != nil {
			return fmt.Errorf("copying %s: %w", source, err)
		}
	}

	// proc reflects the new pid namespace; this process is its pid 1.
	if err := mountProc(filepath.Join(scratchRoot, "proc")); err != nil {
		return fmt.Errorf("mounting proc: %w", err)
	}

	// Seal the scratch root so the sandbox cannot create new entries
	// outside /app.
	if err := remountReadOnly(scratchRoot); err != nil {
		return fmt.Errorf("sealing scratch root: %w", err)
	}

	if err := unix.Chroot(scratchRoot); err != nil {
		return fmt.Errorf("chroot into scratch root: %w", err)
	}
	if err := unix.Chdir(appPath); err != nil {
		return fmt.Errorf("chdir into application directory: %w", err)
	}

	// Real, effective, and saved ids all set: the drop cannot be
	// undone from inside the process. Group first, while the process
	// can still change it.
	if err := unix.Setresgid(j.gid, j.gid, j.gid); err != nil {
		return fmt.Errorf("dropping gid to %d: %w", j.gid, err)
	}
	if err := unix.Setresuid(j.uid, j.uid, j.uid); err != nil {
		return fmt.Errorf("dropping uid to %d: %w", j.uid, err)
	}

	return j.exec()
}

// exec replaces the process image with the target program. Only
// reached after the privilege drop; a lookup or exec failure here
// surfaces to the outer stage as a failed-to-launch exit.
func (j *Jail) exec() error {
	path := j.program
	if !strings.Contains(path, "/") {
		resolved, err := exec.LookPath(path)
		if err != nil {
			return fmt.Errorf("resolving program %q: %w", path, err)
		}
		path = resolved
	}

	argv := append([]string{j.program}, j.args...)
	if err := unix.Exec(path, argv, os.Environ()); err != nil {
		return fmt.Errorf("exec %s: %w", path, err)
	}
	return nil
}

// setupTempDir creates a world-writable .tmp inside the application
// mount and symlinks it to the conventional /tmp of the sandbox. The
// sticky bit needs an explicit chmod: the mkdir mode is filtered by
// the umask.
func setupTempDir(appTarget, link string) error {
	tempDir := filepath.Join(appTarget, ".tmp")
	if err := os.MkdirAll(tempDir, 0o777); err != nil {
		return err
	}
	if err := os.Chmod(tempDir, os.FileMode(0o777)|os.ModeSticky); err != nil {
		return err
	}
	if err := os.Symlink(filepath.Join(appPath, ".tmp"), link); err != nil && !os.IsExist(err) {
		return err
	}
	return nil
}
