package config

import (
	"os"
	"path/filepath"
)

// XDGConfigDir returns $XDG_CONFIG_HOME/keytally, falling back to
// ~/.config/keytally.
func XDGConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "keytally")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "keytally")
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{
		"toml",
		"json",
		"yaml",
		"yml",
	}
}

// FindConfigFile searches for a config file in standard locations.
// Returns the path to the first found config file, or empty string if none found.
func FindConfigFile() string {
	// Search order:
	// 1. Current directory
	// 2. keytally directory
	// 3. XDG config directory
	searchDirs := []string{
		".",
		Dir(),
		XDGConfigDir(),
	}

	for _, dir := range searchDirs {
		if dir == "" {
			continue
		}
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	return ""
}
