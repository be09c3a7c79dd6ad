package errors

import (
	"fmt"
	"os/exec"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *AutoregError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *AutoregError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// SessionNotFound is returned when no session with the id is registered.
func SessionNotFound(id string) *AutoregError {
	return New(ErrCodeSessionNotFound, fmt.Sprintf("no process found for session '%s'", id)).
		WithDetail("session_id", id)
}

// SessionExists is returned when a live session already owns the id.
func SessionExists(id string, pid int) *AutoregError {
	return New(ErrCodeSessionExists, fmt.Sprintf("session '%s' already has a running process", id)).
		WithDetail("session_id", id).
		WithDetail("pid", pid)
}

// ProcessExited is returned when input is sent to a process that has gone away.
func ProcessExited(id string) *AutoregError {
	return New(ErrCodeProcessExited, fmt.Sprintf("process for session '%s' has exited", id)).
		WithDetail("session_id", id)
}

// LaunchFailed wraps a failure to spawn the external script.
func LaunchFailed(command []string, err error) *AutoregError {
	return Wrap(err, ErrCodeLaunchFailed, fmt.Sprintf("failed to start process: %v", err)).
		WithDetail("command", command)
}

// OperationNotFound is returned for operation names missing from the configuration.
func OperationNotFound(name string) *AutoregError {
	return New(ErrCodeOperationNotFound, fmt.Sprintf("unknown operation '%s'", name)).
		WithDetail("operation", name)
}

// ContainerNotRunning reports that the configured container is not up.
func ContainerNotRunning(name string) *AutoregError {
	return New(ErrCodeContainerNotRunning,
		fmt.Sprintf("container '%s' is not running", name)).
		WithDetail("container", name)
}

// FlagUnknown is returned for flag names the channel does not manage.
func FlagUnknown(name string) *AutoregError {
	return New(ErrCodeFlagUnknown, fmt.Sprintf("unknown flag '%s'", name)).
		WithDetail("flag", name)
}

// FlagProtected is returned when asked to delete a flag owned by the external script.
func FlagProtected(name string) *AutoregError {
	return New(ErrCodeFlagProtected,
		fmt.Sprintf("flag '%s' is consumed by the script and cannot be removed here", name)).
		WithDetail("flag", name)
}

// CommandFailed creates a command execution failure error
func CommandFailed(cmd string, err error) *AutoregError {
	ae := Wrap(err, ErrCodeCommandFailed, fmt.Sprintf("command failed: %s", cmd)).
		WithDetail("command", cmd)

	// Extract exit code if available
	if exitErr, ok := err.(*exec.ExitError); ok {
		ae = ae.WithDetail("exitCode", exitErr.ExitCode())
	}

	return ae
}
