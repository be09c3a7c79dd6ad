package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoregHomeOverridesXDG(t *testing.T) {
	home := t.TempDir()
	t.Setenv("AUTOREG_HOME", home)
	t.Setenv("XDG_STATE_HOME", "/should/not/be/used")

	assert.Equal(t, filepath.Join(home, "config"), ConfigDir())
	assert.Equal(t, filepath.Join(home, "state"), StateDir())
	assert.Equal(t, filepath.Join(home, "state", "autoregd.pid"), PidFilePath())
	assert.Equal(t, filepath.Join(home, "state", "history.db"), HistoryDBPath())
}

func TestXDGStateHome(t *testing.T) {
	t.Setenv("AUTOREG_HOME", "")
	xdg := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdg)

	assert.Equal(t, filepath.Join(xdg, "autoreg"), StateDir())
	assert.Equal(t, filepath.Join(xdg, "autoreg", "logs"), LogDir())
}

func TestEnsureDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("AUTOREG_HOME", home)

	require.NoError(t, EnsureDirs())
	for _, dir := range []string{ConfigDir(), StateDir(), LogDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
