package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printdesign-server/core"
	"printdesign-server/stores/storetest"
)

func newTestStore(t *testing.T) *sqliteStore {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store { return newTestStore(t) })
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	store, err := NewStore(path)
	require.NoError(t, err)
	rec := &core.DesignSnapshotRecord{DesignID: "d1", ViewID: "front"}
	require.NoError(t, store.PutSnapshot(context.Background(), rec, []byte("png")))
	require.NoError(t, store.Close())

	store, err = NewStore(path)
	require.NoError(t, err)
	defer store.Close()
	got, err := store.GetSnapshot(context.Background(), "d1", "front")
	require.NoError(t, err)
	assert.Equal(t, rec.PNGBlobRef, got.PNGBlobRef)
}

func TestSQLiteDeleteDropsSnapshots(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &core.Design{ID: "d1", UserID: "alice"}))
	require.NoError(t, store.PutSnapshot(ctx, &core.DesignSnapshotRecord{DesignID: "d1", ViewID: "front"}, []byte("png")))

	require.NoError(t, store.Delete(ctx, "alice", "d1"))
	_, err := store.GetSnapshot(ctx, "d1", "front")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "alice", "d1"), core.ErrNotFound)
}
