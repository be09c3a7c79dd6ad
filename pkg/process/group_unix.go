//go:build !windows

package process

import (
	"errors"
	"os/exec"
	"syscall"
)

// NewGroup makes cmd the leader of a new process group so that signals
// reach every process it spawns.
func NewGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// Terminate asks the process group led by pid to exit.
func Terminate(pid int) error {
	return signalGroup(pid, syscall.SIGTERM)
}

// Kill forcefully stops the process group led by pid.
func Kill(pid int) error {
	return signalGroup(pid, syscall.SIGKILL)
}

func signalGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return syscall.ESRCH
	}
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		// Not a group leader (for example a PTY child in its own session); signal it directly.
		err = syscall.Kill(pid, sig)
	}
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
