// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

// Command slipwayd is the push-to-deploy controller daemon.
//
// It redeploys every application found under the apps directory,
// serves the deploy endpoint on a unix socket for the git
// post-receive hook, routes public HTTP traffic to deployed services
// by Host header, and sweeps all services with periodic health
// checks, restarting the ones that crash or stop answering.
package main
