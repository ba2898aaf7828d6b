// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package config

import (
	"os"
	"path/filepath"
)

const appName = "flickmate"

// Dir returns the XDG config directory for flickmate.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func Dir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultPath is the config file read when no --config is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// ResolvePath returns path when set. Otherwise it returns DefaultPath if
// that file exists, or "" to run on defaults and environment alone.
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	candidate := DefaultPath()
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}
