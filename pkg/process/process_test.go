//go:build !windows

package process

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsProcessAlive(t *testing.T) {
	assert.True(t, IsProcessAlive(os.Getpid()))
	assert.False(t, IsProcessAlive(0))
	assert.False(t, IsProcessAlive(-1))
}

func TestTerminateReachesGroup(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "sleep 30 & wait")
	NewGroup(cmd)
	require.NoError(t, cmd.Start())

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	require.NoError(t, Terminate(cmd.Process.Pid))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = Kill(cmd.Process.Pid)
		t.Fatal("process group did not exit after SIGTERM")
	}

	// Signalling a reaped group is not an error.
	assert.NoError(t, Kill(cmd.Process.Pid))
}
