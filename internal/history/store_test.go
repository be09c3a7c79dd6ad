package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/autoreg/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRecordAndList(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	zero := 0

	require.NoError(t, st.Record(ctx, Execution{
		SessionID: "a", Operation: "solicitar-tcs", Step: 0, Total: 3,
		Command: "python -u autoreg.py -eae", Status: StatusSuccess, ExitCode: &zero, Lines: 12,
		StartedAt: base, FinishedAt: base.Add(time.Minute),
	}))
	require.NoError(t, st.Record(ctx, Execution{
		SessionID: "b", Operation: "buscar-pendentes", Total: 1,
		Command: "python -u autoreg.py -aihs", Status: StatusInterrupted,
		StartedAt: base.Add(2 * time.Minute), FinishedAt: base.Add(3 * time.Minute),
	}))

	all, err := st.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].SessionID, "newest first")
	assert.Nil(t, all[0].ExitCode)
	require.NotNil(t, all[1].ExitCode)
	assert.Equal(t, 0, *all[1].ExitCode)
	assert.Equal(t, time.Minute, all[1].Duration())
	assert.True(t, all[1].StartedAt.Equal(base))

	filtered, err := st.List(ctx, Query{Operation: "solicitar-tcs"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, int64(12), filtered[0].Lines)

	recent, err := st.List(ctx, Query{Since: base.Add(150 * time.Second)})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "b", recent[0].SessionID)

	limited, err := st.List(ctx, Query{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestTimestampsSortWithFractionalSeconds(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 5, 0, time.UTC)

	require.NoError(t, st.Record(ctx, Execution{SessionID: "whole", Operation: "op", Status: StatusSuccess, FinishedAt: base}))
	require.NoError(t, st.Record(ctx, Execution{SessionID: "frac", Operation: "op", Status: StatusSuccess, FinishedAt: base.Add(500 * time.Millisecond)}))

	got, err := st.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "frac", got[0].SessionID)
}

func TestReports(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	r, err := st.AddReport(ctx, ReportEntry{Routine: " internacoes ", User: "maria", Records: 7})
	require.NoError(t, err)
	assert.NotZero(t, r.ID)
	assert.Equal(t, "internacoes", r.Routine)

	_, err = st.AddReport(ctx, ReportEntry{Routine: "x", User: "", Records: 1})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))

	_, err = st.AddReport(ctx, ReportEntry{Routine: "x", User: "y", Records: -1})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))

	list, err := st.Reports(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 7, list[0].Records)
}

func TestSummary(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, status := range []Status{StatusSuccess, StatusSuccess, StatusFailed, StatusLaunchFailed, StatusInterrupted} {
		require.NoError(t, st.Record(ctx, Execution{SessionID: "s", Operation: "solicitar-tcs", Status: status, FinishedAt: now}))
	}
	require.NoError(t, st.Record(ctx, Execution{SessionID: "old", Operation: "buscar-pendentes", Status: StatusSuccess, FinishedAt: now.Add(-48 * time.Hour)}))

	sum, err := st.Summary(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, sum, 1)
	assert.Equal(t, OperationSummary{
		Operation:   "solicitar-tcs",
		Runs:        5,
		Succeeded:   2,
		Failed:      2,
		Interrupted: 1,
		LastRun:     sum[0].LastRun,
	}, sum[0])
	assert.WithinDuration(t, now, sum[0].LastRun, time.Second)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	ctx := context.Background()

	st, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, st.Record(ctx, Execution{SessionID: "a", Operation: "op", Status: StatusSuccess}))
	require.NoError(t, st.Close())

	st, err = Open(ctx, path)
	require.NoError(t, err)
	defer st.Close()
	got, err := st.List(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
