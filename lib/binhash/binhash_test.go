// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashFileStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexec ./server\n"), 0o755))

	first, err := HashFile(path)
	require.NoError(t, err)
	second, err := HashFile(path)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestHashFileDistinguishesContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(a, []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("two"), 0o644))

	digestA, err := HashFile(a)
	require.NoError(t, err)
	digestB, err := HashFile(b)
	require.NoError(t, err)
	require.NotEqual(t, digestA, digestB)
}

func TestHashFileMissing(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestParseDigestRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	digest, err := HashFile(path)
	require.NoError(t, err)

	parsed, err := ParseDigest(digest.String())
	require.NoError(t, err)
	require.Equal(t, digest, parsed)

	_, err = ParseDigest("zz")
	require.Error(t, err)
	_, err = ParseDigest("abcd")
	require.Error(t, err)
}
