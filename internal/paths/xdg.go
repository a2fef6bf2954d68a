package paths

import (
	"os"
	"path/filepath"
)

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	h, _ := os.UserHomeDir()
	return h
}

func xdgDir(envVar, fallbackSuffix string) string {
	if v := os.Getenv(envVar); v != "" {
		return filepath.Join(v, "forgebridge")
	}
	return filepath.Join(homeDir(), fallbackSuffix, "forgebridge")
}

// ConfigDir returns the forgebridge config directory ($XDG_CONFIG_HOME/forgebridge).
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// CacheDir returns the forgebridge cache directory ($XDG_CACHE_HOME/forgebridge).
func CacheDir() string {
	return xdgDir("XDG_CACHE_HOME", ".cache")
}

// StateDir returns the forgebridge state directory ($XDG_STATE_HOME/forgebridge).
func StateDir() string {
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

// RuntimeDir returns the runtime directory for sockets.
// Falls back to $XDG_STATE_HOME/forgebridge if XDG_RUNTIME_DIR is unset.
func RuntimeDir() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return filepath.Join(v, "forgebridge")
	}
	return StateDir()
}

// ConfigFile returns the path to config.toml.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// HostSocketPath returns the Unix socket path the hostsim listens on when
// configured for unix transport.
func HostSocketPath() string {
	return filepath.Join(RuntimeDir(), "host.sock")
}

// EnsureDir creates a directory and parents if needed.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}
