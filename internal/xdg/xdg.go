// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

// Package xdg resolves XDG Base Directory paths for todosite.
package xdg

import (
	"os"
	"path/filepath"
)

const (
	appName        = "todosite"
	configFileName = "config.yaml"
)

// ConfigDir returns the todosite config directory.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// ConfigFile returns the default config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), configFileName)
}
