package pidfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/autoreg/errors"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "state", "autoregd.pid")
	lockPath := filepath.Join(dir, "state", "autoregd.lock")

	lock, err := Acquire(pidPath, lockPath)
	require.NoError(t, err)

	pid, err := Read(pidPath)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	running, runningPID, err := IsRunning(pidPath)
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), runningPID)

	_, err = Acquire(pidPath, lockPath)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDaemonRunning, errors.GetCode(err))

	require.NoError(t, lock.Release())
	assert.NoFileExists(t, pidPath)

	running, _, err = IsRunning(pidPath)
	require.NoError(t, err)
	assert.False(t, running)

	lock, err = Acquire(pidPath, lockPath)
	require.NoError(t, err, "lock is free again after release")
	require.NoError(t, lock.Release())
}

func TestReadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0644))
	_, err := Read(path)
	assert.Error(t, err)
}
