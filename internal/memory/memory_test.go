package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutribot/nutribot/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, storage.Migrate(db))

	store, err := NewStore(db)
	require.NoError(t, err)
	return store
}

func TestSnapshotLastWriteWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "alice", "training_days", "3", ""))
	require.NoError(t, store.Add(ctx, "alice", "diet", "vegetarian", "stated in chat"))
	require.NoError(t, store.Add(ctx, "alice", "training_days", "5", "updated schedule"))

	snapshot, err := store.Snapshot(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"training_days": "5",
		"diet":          "vegetarian",
	}, snapshot)
}

func TestSnapshotUnknownUserIsEmpty(t *testing.T) {
	store := newTestStore(t)

	snapshot, err := store.Snapshot(context.Background(), "stranger")
	require.NoError(t, err)
	assert.Empty(t, snapshot)
}

func TestRecentOrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "bob", "a", "1", ""))
	require.NoError(t, store.Add(ctx, "bob", "b", "2", ""))
	require.NoError(t, store.Add(ctx, "bob", "c", "3", "why"))

	entries, err := store.Recent(ctx, "bob", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "c", entries[0].Key)
	assert.Equal(t, "why", entries[0].Reason)
	assert.Equal(t, SourceAgent, entries[0].Source)
	assert.Equal(t, "b", entries[1].Key)
}

func TestAddCreatesUserRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "newcomer", "k", "v", ""))

	entries, err := store.Recent(ctx, "newcomer", 8)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
