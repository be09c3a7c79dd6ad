//go:build windows

package process

import (
	"os"
	"os/exec"
)

// NewGroup is a no-op on Windows.
func NewGroup(cmd *exec.Cmd) {}

// Terminate has no graceful equivalent on Windows and kills the process.
func Terminate(pid int) error {
	return Kill(pid)
}

// Kill forcefully stops the process.
func Kill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return p.Kill()
}
