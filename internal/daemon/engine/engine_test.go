package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/autoreg/internal/daemon/store"
	"github.com/grovetools/autoreg/internal/flags"
)

type staticCollector struct {
	update store.Update
}

func (c staticCollector) Name() string { return "static" }

func (c staticCollector) Run(ctx context.Context, _ *store.Store, updates chan<- store.Update) error {
	updates <- c.update
	<-ctx.Done()
	return nil
}

func TestEngineAppliesCollectorUpdates(t *testing.T) {
	st := store.New()
	eng := New(st, logrus.NewEntry(logrus.New()))
	eng.Register(staticCollector{update: store.Update{
		Type:    store.UpdateFlags,
		Payload: []flags.Status{{Kind: flags.Skip, Raised: true}},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		eng.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(eng.Store().Get().Flags) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, flags.Skip, st.Get().Flags[0].Kind)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
}

type flakyCollector struct {
	failures int32
	runs     atomic.Int32
}

func (c *flakyCollector) Name() string { return "flaky" }

func (c *flakyCollector) Run(ctx context.Context, _ *store.Store, _ chan<- store.Update) error {
	if c.runs.Add(1) <= c.failures {
		return fmt.Errorf("docker socket closed")
	}
	<-ctx.Done()
	return nil
}

func TestEngineRestartsFailedCollector(t *testing.T) {
	st := store.New()
	eng := New(st, logrus.NewEntry(logrus.New()))
	eng.SetRestartDelay(5 * time.Millisecond)
	col := &flakyCollector{failures: 2}
	eng.Register(col)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		eng.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		hs := st.Get().Collectors
		return len(hs) == 1 && hs[0].Running && hs[0].Restarts == 2
	}, 5*time.Second, 5*time.Millisecond)
	h := st.Get().Collectors[0]
	assert.Equal(t, "flaky", h.Name)
	assert.Equal(t, "docker socket closed", h.LastError)
	assert.EqualValues(t, 3, col.runs.Load())

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
}
