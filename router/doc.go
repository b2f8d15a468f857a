// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

// Package router is the public face of the platform: an HTTP reverse
// proxy that maps the first label of each request's Host header to a
// deployed service and streams the exchange through to its transport.
//
// The router synthesizes exactly three responses of its own: 400 for
// a missing Host header, 404 for an unknown deployment, and 500 when
// the upstream cannot be reached. Everything else comes from the
// backend verbatim.
package router
