// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RuntimeProfile describes how one class of application is detected,
// built, and run.
type RuntimeProfile struct {
	// Name identifies the profile.
	Name string `yaml:"name"`

	// Marker is a filename whose presence in a deployment directory
	// selects this profile. The profile with an empty marker is the
	// fallback when nothing matches.
	Marker string `yaml:"marker"`

	// Build commands run in sequence in the deployment directory
	// before every launch.
	Build [][]string `yaml:"build"`

	// Run is the long-running command.
	Run []string `yaml:"run"`

	// Sockets reports whether the runtime can bind a unix socket
	// path from its PORT variable instead of a numeric TCP port.
	Sockets bool `yaml:"sockets"`
}

func builtinProfiles() []RuntimeProfile {
	return []RuntimeProfile{
		{
			Name:    "node",
			Marker:  "package.json",
			Build:   [][]string{{"npm", "install"}},
			Run:     []string{"npm", "start", "--silent"},
			Sockets: true,
		},
		{
			Name:  "default",
			Build: [][]string{{"./init"}},
			Run:   []string{"./run"},
		},
	}
}

// ProfileLoader holds the ordered profile set used for detection.
type ProfileLoader struct {
	profiles []RuntimeProfile
}

// NewProfileLoader builds the loader from the builtin profiles,
// overlaid with entries from the given YAML file when path is
// non-empty. File entries replace builtins of the same name in place;
// new names are inserted ahead of the builtins so they win detection.
func NewProfileLoader(path string) (*ProfileLoader, error) {
	profiles := builtinProfiles()
	if path == "" {
		return &ProfileLoader{profiles: profiles}, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profiles file: %w", err)
	}
	var overrides []RuntimeProfile
	if err := yaml.Unmarshal(contents, &overrides); err != nil {
		return nil, fmt.Errorf("parsing profiles file %s: %w", path, err)
	}

	for i := len(overrides) - 1; i >= 0; i-- {
		override := overrides[i]
		if override.Name == "" {
			return nil, fmt.Errorf("profiles file %s: profile without a name", path)
		}
		if len(override.Run) == 0 {
			return nil, fmt.Errorf("profiles file %s: profile %q has no run command", path, override.Name)
		}
		replaced := false
		for j := range profiles {
			if profiles[j].Name == override.Name {
				profiles[j] = override
				replaced = true
				break
			}
		}
		if !replaced {
			profiles = append([]RuntimeProfile{override}, profiles...)
		}
	}

	return &ProfileLoader{profiles: profiles}, nil
}

// Detect returns the first profile whose marker file exists in dir,
// or the fallback profile when none matches.
func (l *ProfileLoader) Detect(dir string) RuntimeProfile {
	var fallback RuntimeProfile
	for _, profile := range l.profiles {
		if profile.Marker == "" {
			if fallback.Name == "" {
				fallback = profile
			}
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, profile.Marker)); err == nil {
			return profile
		}
	}
	return fallback
}
