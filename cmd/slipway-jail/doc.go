// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

// Command slipway-jail runs one program inside the namespace
// isolation jail.
//
// Usage:
//
//	slipway-jail run [--dir DIR] [--uid UID] [--gid GID] -- program [args...]
//
// The run stage creates fresh user, pid, and mount namespaces and
// re-executes itself as the setup stage, which builds the sandbox
// filesystem as pid 1, drops privileges, and execs the program. The
// setup stage is internal and only reachable through the re-exec.
package main
