package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmp/internal/testutil"
	"github.com/leapstack-labs/leapmp/pkg/session"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s := NewSQLiteStore("bridge", testutil.NewTestLogger(t))
	require.NoError(t, s.Open(context.Background(), ":memory:"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMigrationVersion(t *testing.T) {
	s := openTestStore(t)
	v, err := s.MigrationVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	// Migrating again is a no-op.
	require.NoError(t, s.Migrate(context.Background()))
}

func TestRecordAndListEvents(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	events := []session.Event{
		{SessionID: "a", Op: "open", At: base},
		{SessionID: "a", Op: "eval", Detail: "var x;", Duration: 3 * time.Millisecond, At: base.Add(time.Second)},
		{SessionID: "a", Op: "solve", Err: "infeasible", At: base.Add(2 * time.Second)},
	}
	for _, ev := range events {
		require.NoError(t, s.Record(ctx, ev))
	}

	got, err := s.ListEvents(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, events[1], got[1])
	assert.Equal(t, "infeasible", got[2].Err)
	assert.Empty(t, got[0].Err)

	_, err = s.ListEvents(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListSessions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, session.Event{SessionID: "old", Op: "open", At: base}))
	require.NoError(t, s.Record(ctx, session.Event{SessionID: "old", Op: "close", At: base.Add(time.Minute)}))
	require.NoError(t, s.Record(ctx, session.Event{SessionID: "new", Op: "open", At: base.Add(time.Hour)}))

	recs, err := s.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "new", recs[0].ID)
	assert.Nil(t, recs[0].ClosedAt)
	assert.Equal(t, 1, recs[0].Events)

	assert.Equal(t, "old", recs[1].ID)
	assert.Equal(t, "bridge", recs[1].Engine)
	require.NotNil(t, recs[1].ClosedAt)
	assert.Equal(t, base.Add(time.Minute), *recs[1].ClosedAt)
	assert.Equal(t, 2, recs[1].Events)

	recs, err = s.ListSessions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestStoreAsSessionJournal(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	s := NewSQLiteStore("bridge", testutil.NewTestLogger(t))
	require.NoError(t, s.Open(ctx, path))
	require.NoError(t, s.Record(ctx, session.Event{SessionID: "x", Op: "open"}))
	require.NoError(t, s.Close())

	// The history survives reopening the file.
	s = NewSQLiteStore("bridge", nil)
	require.NoError(t, s.Open(ctx, path))
	defer func() { _ = s.Close() }()
	got, err := s.ListEvents(ctx, "x")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].At.IsZero())
}

func TestClosedStore(t *testing.T) {
	s := NewSQLiteStore("", nil)
	assert.Error(t, s.Record(context.Background(), session.Event{SessionID: "a", Op: "open"}))
	_, err := s.ListSessions(context.Background(), 1)
	assert.Error(t, err)
	assert.NoError(t, s.Close())
}
