package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// EnvConfigPath is the environment variable for explicit config path
	EnvConfigPath = "NODEFLOW_CONFIG"
	// ConfigFileName is the default config file name
	ConfigFileName = "nodeflow.yaml"
	// ConfigDirName is the config directory name under XDG
	ConfigDirName = "nodeflow"
)

// FindConfigPath searches for config file in priority order:
// 1. $NODEFLOW_CONFIG (explicit path)
// 2. ./nodeflow.yaml (working directory)
// 3. $XDG_CONFIG_HOME/nodeflow/config.yaml
// 4. ~/.config/nodeflow/config.yaml
// 5. /etc/nodeflow/config.yaml
//
// Returns empty string if no config file found
func FindConfigPath() string {
	// 1. Explicit environment variable
	if path := os.Getenv(EnvConfigPath); path != "" {
		if fileExists(path) {
			return path
		}
	}

	// 2. Working directory
	if fileExists(ConfigFileName) {
		if abs, err := filepath.Abs(ConfigFileName); err == nil {
			return abs
		}
		return ConfigFileName
	}

	// 3. XDG config home
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		path := filepath.Join(xdgHome, ConfigDirName, "config.yaml")
		if fileExists(path) {
			return path
		}
	}

	// 4. Default XDG location (~/.config)
	if home := os.Getenv("HOME"); home != "" {
		path := filepath.Join(home, ".config", ConfigDirName, "config.yaml")
		if fileExists(path) {
			return path
		}
	}

	// 5. System-wide
	systemPath := filepath.Join("/etc", ConfigDirName, "config.yaml")
	if fileExists(systemPath) {
		return systemPath
	}

	// No config found
	return ""
}

// resolvePaths anchors the relative file locations of a loaded config at
// the directory holding the config file, so a server started from another
// working directory still finds its database and templates. Defaults are
// anchored the same way. The sqlite in-memory name is left alone.
func (c *Config) resolvePaths(configPath string) {
	base := filepath.Dir(configPath)
	if c.Database.Driver == DriverSQLite {
		c.Database.Path = resolvePath(base, c.Database.Path)
	}
	c.Templates.Dir = resolvePath(base, c.Templates.Dir)
}

func resolvePath(base, path string) string {
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir(configPath string) error {
	dir := filepath.Dir(configPath)
	return os.MkdirAll(dir, 0755)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
