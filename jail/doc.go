// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

// Package jail executes untrusted application commands inside a
// from-scratch Linux container primitive: new user, pid, and mount
// namespaces, a tmpfs scratch root populated with read-only bind
// mounts of the host toolchain, a read-write bind of the application
// directory, and an irreversible drop to the invoking user's real
// uid/gid before exec.
//
// The jail is two cooperating stages of the same binary. The outer
// stage (Jail.Run) re-executes slipway-jail with clone-time namespace
// creation — Go cannot unshare(CLONE_NEWUSER) after the runtime has
// started threads — along with identity uid/gid mappings and the
// setgroups deny the kernel requires for unprivileged gid maps. The
// inner stage (Setup) runs as pid 1 of the new namespaces and walks a
// strictly ordered mount/chroot/privilege pipeline whose every step
// is fatal on failure: the process exits, the kernel tears the
// namespaces down, and no partially constructed sandbox ever runs a
// command.
//
// The jail trusts its direct arguments. Sanitizing deployment names
// is the supervisor's job before a directory path ever reaches this
// package.
package jail
