// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"errors"
	"fmt"
)

// ErrPortsExhausted reports that every port in the allocator's range
// is held by a live service.
var ErrPortsExhausted = errors.New("no free ports in range")

// ValidationError rejects a deployment name before any filesystem
// access happens on its behalf.
type ValidationError struct {
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid deployment name %q: %s", e.Name, e.Reason)
}

// BuildError reports a failed build command. Output holds the
// combined stdout and stderr accumulated across the build sequence up
// to and including the failing command, so the deploy requester sees
// the same transcript a local build would print.
type BuildError struct {
	Command string
	Output  []byte
	Err     error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build command %q failed: %v", e.Command, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// LaunchError reports that the run command could not be spawned at
// all, as opposed to spawning and then exiting.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching service: %v", e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }
