// Package pidfile provides PID file management and the single-instance lock
// for the autoreg daemon.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"github.com/grovetools/autoreg/errors"
	"github.com/grovetools/autoreg/pkg/process"
)

// Lock is held by the running daemon.
type Lock struct {
	pidPath string
	lock    *flock.Flock
}

// Acquire takes the exclusive lock and writes the current PID.
// It returns a DAEMON_RUNNING error if another instance holds the lock.
func Acquire(pidPath, lockPath string) (*Lock, error) {
	for _, p := range []string{pidPath, lockPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, fmt.Errorf("failed to create pid directory: %w", err)
		}
	}

	// The lock closes the window where two starts both see no live PID.
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire daemon lock: %w", err)
	}
	if !locked {
		e := errors.New(errors.ErrCodeDaemonRunning, "daemon already running")
		if pid, err := Read(pidPath); err == nil {
			e = errors.New(errors.ErrCodeDaemonRunning, fmt.Sprintf("daemon already running with PID %d", pid)).
				WithDetail("pid", pid)
		}
		return nil, e
	}

	// Write current PID
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		_ = fl.Unlock()
		return nil, fmt.Errorf("failed to write pid file: %w", err)
	}

	return &Lock{pidPath: pidPath, lock: fl}, nil
}

// Release removes the PID file and drops the lock.
func (l *Lock) Release() error {
	err := os.Remove(l.pidPath)
	if unlockErr := l.lock.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Read returns the PID from the file, or 0 if not found/invalid.
func Read(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pidStr := strings.TrimSpace(string(content))
	return strconv.Atoi(pidStr)
}

// IsRunning checks if the daemon described by the pidfile is active.
func IsRunning(path string) (bool, int, error) {
	pid, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return process.IsProcessAlive(pid), pid, nil
}
