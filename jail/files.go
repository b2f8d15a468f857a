// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package jail

import (
	"fmt"
	"io"
	"os"
)

// copyFile copies source to target as a regular file. The copy is
// deliberate: a snapshot made while the sandbox is being built, not a
// live bind that would track later host edits.
func copyFile(source, target string) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("opening target: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying contents: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing target: %w", err)
	}
	return nil
}
