package collector

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/autoreg/command"
	"github.com/grovetools/autoreg/config"
	"github.com/grovetools/autoreg/docker"
	"github.com/grovetools/autoreg/docker/mocks"
	"github.com/grovetools/autoreg/internal/daemon/store"
	"github.com/grovetools/autoreg/internal/flags"
	"github.com/grovetools/autoreg/internal/session"
)

func TestContainerCollectorPublishesStatus(t *testing.T) {
	client := &mocks.MockClient{
		ContainerStatusFunc: func(_ context.Context, name string) (*docker.ContainerStatus, error) {
			return &docker.ContainerStatus{Name: name, Exists: true, Running: true, State: "running"}, nil
		},
	}
	c := NewContainerCollector(client, "autoreg")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan store.Update, 1)
	go c.Run(ctx, store.New(), updates)

	select {
	case u := <-updates:
		assert.Equal(t, store.UpdateContainer, u.Type)
		report, ok := u.Payload.(store.ContainerReport)
		require.True(t, ok)
		require.NoError(t, report.Err)
		assert.Equal(t, "autoreg", report.Status.Name)
		assert.True(t, report.Status.Running)
	case <-time.After(5 * time.Second):
		t.Fatal("no container update")
	}
}

func TestFlagCollectorPublishesOnChange(t *testing.T) {
	t.Setenv("AUTOREG_HOME", t.TempDir())
	ch := flags.New(config.FlagsConfig{
		Dir:       t.TempDir(),
		Pause:     "pause.flag",
		ForceSave: "grava.flag",
		Skip:      "pula.flag",
	})
	c := NewFlagCollector(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan store.Update, 16)
	go c.Run(ctx, store.New(), updates)

	first := <-updates
	for _, st := range first.Payload.([]flags.Status) {
		assert.False(t, st.Raised)
	}

	require.NoError(t, ch.Raise(flags.Skip))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case u := <-updates:
			for _, st := range u.Payload.([]flags.Status) {
				if st.Kind == flags.Skip && st.Raised {
					require.NoError(t, os.Remove(ch.Path(flags.Skip)))
					return
				}
			}
		case <-deadline:
			t.Fatal("raised flag was not published")
		}
	}
}

func TestSessionCollectorPublishesInitialList(t *testing.T) {
	t.Setenv("AUTOREG_HOME", t.TempDir())
	m, err := session.NewManager(session.Options{
		Config:  &config.Config{},
		Builder: command.NewBuilder(command.Target{Entrypoint: "/bin/true"}),
	})
	require.NoError(t, err)
	c := NewSessionCollector(m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan store.Update, 1)
	go c.Run(ctx, store.New(), updates)

	select {
	case u := <-updates:
		assert.Equal(t, store.UpdateSessions, u.Type)
		infos, ok := u.Payload.([]session.Info)
		require.True(t, ok)
		assert.Empty(t, infos)
	case <-time.After(5 * time.Second):
		t.Fatal("no session update")
	}
}
