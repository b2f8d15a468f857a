// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor owns the lifecycle of deployed applications: it
// allocates their transports, detects their runtime profiles, builds
// and launches them, restarts them when they crash, and sweeps them
// with periodic health checks.
//
// The Registry is the package's entry point. One Registry manages all
// deployments under a base directory, one Service per deployment
// name, and guarantees that a name never has more than one live child
// process and that transports are released before being reassigned.
package supervisor
