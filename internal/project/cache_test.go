package project

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore wraps a Store and counts Load calls.
type countingStore struct {
	Store
	loads int
}

func (c *countingStore) Load(ctx context.Context, id string) (*Context, error) {
	c.loads++
	return c.Store.Load(ctx, id)
}

func TestCachedStore_LoadHitsCacheSecondTime(t *testing.T) {
	inner := &countingStore{Store: newTestStore(t)}
	cached, err := NewCachedStore(inner, 8)
	require.NoError(t, err)
	ctx := context.Background()

	pc := New("prj-1")
	require.NoError(t, cached.Save(ctx, pc))

	_, err = cached.Load(ctx, "prj-1")
	require.NoError(t, err)
	_, err = cached.Load(ctx, "prj-1")
	require.NoError(t, err)
	assert.Equal(t, 0, inner.loads, "save primed the cache; loads never reach the inner store")
}

func TestCachedStore_LoadReturnsIsolatedClones(t *testing.T) {
	cached, err := NewCachedStore(newTestStore(t), 8)
	require.NoError(t, err)
	ctx := context.Background()

	pc := New("prj-1")
	pc.AppendResult(StageResult{Stage: "survey", Status: StatusSuccess})
	require.NoError(t, cached.Save(ctx, pc))

	a, err := cached.Load(ctx, "prj-1")
	require.NoError(t, err)
	a.AppendResult(StageResult{Stage: "layout", Status: StatusSuccess})

	b, err := cached.Load(ctx, "prj-1")
	require.NoError(t, err)
	assert.Nil(t, b.Latest("layout"), "mutating one caller's copy must not leak into the cache")
}

func TestCachedStore_ConflictEvictsStaleEntry(t *testing.T) {
	inner := newTestStore(t)
	cached, err := NewCachedStore(inner, 8)
	require.NoError(t, err)
	ctx := context.Background()

	pc := New("prj-1")
	require.NoError(t, cached.Save(ctx, pc))

	// Another writer commits directly against the inner store.
	direct, err := inner.Load(ctx, "prj-1")
	require.NoError(t, err)
	direct.AppendResult(StageResult{Stage: "survey", Status: StatusSuccess})
	require.NoError(t, inner.Save(ctx, direct))

	// The cached copy is now stale; saving it conflicts and evicts it.
	stale, err := cached.Load(ctx, "prj-1")
	require.NoError(t, err)
	stale.AppendResult(StageResult{Stage: "layout", Status: StatusSuccess})
	require.ErrorIs(t, cached.Save(ctx, stale), ErrVersionConflict)

	// The next read comes from the inner store and sees the winner.
	fresh, err := cached.Load(ctx, "prj-1")
	require.NoError(t, err)
	assert.True(t, fresh.HasSuccess("survey"))
}

func TestCachedStore_DeleteEvicts(t *testing.T) {
	cached, err := NewCachedStore(newTestStore(t), 8)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, cached.Save(ctx, New("prj-1")))
	require.NoError(t, cached.Delete(ctx, "prj-1"))

	_, err = cached.Load(ctx, "prj-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
