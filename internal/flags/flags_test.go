package flags

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/autoreg/config"
	"github.com/grovetools/autoreg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChannel(t *testing.T) *Channel {
	t.Helper()
	t.Setenv("AUTOREG_HOME", t.TempDir())
	return New(config.FlagsConfig{
		Dir:       t.TempDir(),
		Pause:     "pause.flag",
		ForceSave: "grava.flag",
		Skip:      "pula.flag",
	})
}

func TestRaiseCreatesAndOverwrites(t *testing.T) {
	c := newTestChannel(t)

	require.NoError(t, c.Raise(Skip))
	assert.True(t, c.IsRaised(Skip))
	assert.FileExists(t, filepath.Join(c.Dir(), "pula.flag"))

	// A stale flag is overwritten, not an error.
	require.NoError(t, os.WriteFile(c.Path(ForceSave), []byte("stale"), 0644))
	require.NoError(t, c.Raise(ForceSave))
	data, err := os.ReadFile(c.Path(ForceSave))
	require.NoError(t, err)
	assert.NotEqual(t, "stale", string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestClearProtectsScriptOwnedFlags(t *testing.T) {
	c := newTestChannel(t)
	require.NoError(t, c.Raise(ForceSave))
	require.NoError(t, c.Raise(Skip))

	for _, k := range []Kind{ForceSave, Skip} {
		err := c.Clear(k)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeFlagProtected, errors.GetCode(err))
		assert.True(t, c.IsRaised(k), "%s must survive", k)
	}

	require.NoError(t, c.Raise(Pause))
	require.NoError(t, c.Clear(Pause))
	assert.False(t, c.IsRaised(Pause))
	require.NoError(t, c.Clear(Pause), "clearing an absent pause flag is fine")
}

func TestHoldPauseReferenceCounting(t *testing.T) {
	c := newTestChannel(t)

	release1, err := c.HoldPause()
	require.NoError(t, err)
	release2, err := c.HoldPause()
	require.NoError(t, err)
	assert.True(t, c.IsRaised(Pause))

	release1()
	release1()
	assert.True(t, c.IsRaised(Pause), "still held by the second step")

	release2()
	assert.False(t, c.IsRaised(Pause))
}

func TestParseKind(t *testing.T) {
	c := newTestChannel(t)

	tests := []struct {
		in   string
		want Kind
	}{
		{"pause", Pause},
		{"pause.flag", Pause},
		{"grava", ForceSave},
		{"force-save", ForceSave},
		{"save", ForceSave},
		{"PULA.flag", Skip},
		{"skip", Skip},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			k, err := c.ParseKind(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, k)
		})
	}

	_, err := c.ParseKind("explode")
	assert.Equal(t, errors.ErrCodeFlagUnknown, errors.GetCode(err))
}

func TestPending(t *testing.T) {
	c := newTestChannel(t)
	require.NoError(t, c.Raise(Skip))

	pending := c.Pending()
	require.Len(t, pending, 3)
	for _, st := range pending {
		assert.Equal(t, st.Kind == Skip, st.Raised, "kind %s", st.Kind)
	}
}

func TestWatcherReportsConsumption(t *testing.T) {
	c := newTestChannel(t)

	changes := make(chan Change, 16)
	w, err := NewWatcher(c, func(ch Change) { changes <- ch })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	require.NoError(t, c.Raise(Skip))
	// The script consumes the flag.
	require.NoError(t, os.Remove(c.Path(Skip)))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ch := <-changes:
			if ch.Kind == Skip && !ch.Raised {
				return
			}
		case <-deadline:
			t.Fatal("expected a consumed skip flag to be reported")
		}
	}
}
