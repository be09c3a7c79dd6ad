package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/autoreg/docker"
	"github.com/grovetools/autoreg/internal/flags"
	"github.com/grovetools/autoreg/internal/session"
)

func TestApplyUpdateAndBroadcast(t *testing.T) {
	st := New()
	ch := st.Subscribe()
	defer st.Unsubscribe(ch)

	st.ApplyUpdate(Update{Type: UpdateSessions, Source: "session", Payload: []session.Info{{SessionID: "s1"}}})
	st.ApplyUpdate(Update{Type: UpdateFlags, Source: "flags", Payload: []flags.Status{{Kind: flags.Pause, Raised: true}}})
	st.ApplyUpdate(Update{Type: UpdateContainer, Source: "container", Payload: ContainerReport{
		Status: &docker.ContainerStatus{Name: "autoreg", Running: true},
	}})

	got := st.Get()
	require.Len(t, got.Sessions, 1)
	assert.Equal(t, "s1", got.Sessions[0].SessionID)
	require.Len(t, got.Flags, 1)
	assert.True(t, got.Flags[0].Raised)
	require.NotNil(t, got.Container)
	assert.True(t, got.Container.Running)
	assert.False(t, got.UpdatedAt.IsZero())

	for _, want := range []UpdateType{UpdateSessions, UpdateFlags, UpdateContainer} {
		u := <-ch
		assert.Equal(t, want, u.Type)
	}
}

func TestContainerErrorIsKept(t *testing.T) {
	st := New()
	st.ApplyUpdate(Update{Type: UpdateContainer, Payload: ContainerReport{Err: errors.New("socket missing")}})
	assert.Equal(t, "socket missing", st.Get().ContainerError)
	assert.Nil(t, st.Get().Container)

	st.ApplyUpdate(Update{Type: UpdateContainer, Payload: ContainerReport{Status: &docker.ContainerStatus{Name: "x"}}})
	assert.Empty(t, st.Get().ContainerError)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	st := New()
	ch := st.Subscribe()
	defer st.Unsubscribe(ch)

	for i := 0; i < 250; i++ {
		st.ApplyUpdate(Update{Type: UpdateSessions, Payload: []session.Info{}})
	}
	assert.Len(t, ch, 100)
}

func TestCollectorHealthUpsert(t *testing.T) {
	s := New()
	s.ApplyUpdate(Update{Type: UpdateCollector, Payload: CollectorHealth{Name: "container", LastError: "docker down"}})
	before := s.Get()
	s.ApplyUpdate(Update{Type: UpdateCollector, Payload: CollectorHealth{Name: "flags", Running: true}})
	s.ApplyUpdate(Update{Type: UpdateCollector, Payload: CollectorHealth{Name: "container", Running: true, Restarts: 1}})

	got := s.Get().Collectors
	require.Len(t, got, 2)
	assert.Equal(t, "container", got[0].Name)
	assert.Equal(t, 1, got[0].Restarts)
	assert.True(t, got[1].Running)

	require.Len(t, before.Collectors, 1, "earlier snapshots are not mutated")
	assert.Equal(t, "docker down", before.Collectors[0].LastError)
}
