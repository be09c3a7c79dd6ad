// Package paths provides XDG-compliant path resolution for autoreg.
//
// Resolution order:
// 1. AUTOREG_HOME (portable root) → $AUTOREG_HOME/{config,state}
// 2. XDG env vars → $XDG_*_HOME/autoreg
// 3. Platform defaults → ~/.config/autoreg, ~/.local/state/autoreg
package paths

import (
	"os"
	"path/filepath"
)

const appName = "autoreg"

func getConfigHome() string {
	if home := os.Getenv("AUTOREG_HOME"); home != "" {
		return filepath.Join(home, "config")
	}
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, appName)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config", appName)
	}
	return ""
}

func getStateHome() string {
	if home := os.Getenv("AUTOREG_HOME"); home != "" {
		return filepath.Join(home, "state")
	}
	if xdgStateHome := os.Getenv("XDG_STATE_HOME"); xdgStateHome != "" {
		return filepath.Join(xdgStateHome, appName)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "state", appName)
	}
	return ""
}

// ConfigDir returns the configuration directory (global autoreg.yml).
func ConfigDir() string {
	return getConfigHome()
}

// StateDir returns the state directory.
// Used for the pid file, logs and the history database.
func StateDir() string {
	return getStateHome()
}

// LogDir returns the directory daemon logs are written to.
func LogDir() string {
	base := StateDir()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "logs")
}

// PidFilePath returns the path to the daemon PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "autoregd.pid")
}

// LockFilePath returns the path of the single-instance lock.
func LockFilePath() string {
	return filepath.Join(StateDir(), "autoregd.lock")
}

// HistoryDBPath returns the default path of the execution history database.
func HistoryDBPath() string {
	return filepath.Join(StateDir(), "history.db")
}

// EnsureDirs creates all autoreg directories if they don't exist.
func EnsureDirs() error {
	for _, dir := range []string{ConfigDir(), StateDir(), LogDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
