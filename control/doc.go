// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

// Package control serves the deploy endpoint on a local unix socket.
// The git post-receive hook is its only client: a GET for a
// deployment name triggers a deploy and streams the build transcript
// back so the pusher sees it in their terminal.
package control
