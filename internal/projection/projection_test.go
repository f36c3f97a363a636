package projection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_SetAndGet(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	err := store.Set(ctx, "k1", []byte("hello"), 0)
	require.NoError(t, err)

	val, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), val)
}

func TestInMemoryStore_KeyNotFound(t *testing.T) {
	store := NewInMemoryStore()

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestInMemoryStore_Delete(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	_ = store.Set(ctx, "k1", []byte("data"), 0)
	_ = store.Delete(ctx, "k1")

	_, err := store.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestInMemoryStore_TTLExpiry(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	_ = store.Set(ctx, "k1", []byte("data"), 1*time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, err := store.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrMiss)
}

func newCache() (*SnapshotCache, *InMemoryStore) {
	store := NewInMemoryStore()
	return NewSnapshotCache(store, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func TestSnapshotCache_ReadThrough(t *testing.T) {
	cache, _ := newCache()
	ctx := context.Background()
	userID := uuid.New()

	var loads int32
	load := func(context.Context) (*ProgressionProjection, error) {
		atomic.AddInt32(&loads, 1)
		return &ProgressionProjection{
			UserID:  userID,
			Balance: 120,
			Level:   2,
			Streaks: map[domain.Category]int{domain.CategoryLogin: 3},
		}, nil
	}

	first, err := cache.Get(ctx, userID, load)
	require.NoError(t, err)
	second, err := cache.Get(ctx, userID, load)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
	assert.Equal(t, int64(120), second.Balance)
	assert.Equal(t, 3, second.Streaks[domain.CategoryLogin])
	assert.False(t, first.CachedAt.IsZero())
}

func TestSnapshotCache_Invalidate(t *testing.T) {
	cache, _ := newCache()
	ctx := context.Background()
	userID := uuid.New()

	balance := int64(10)
	load := func(context.Context) (*ProgressionProjection, error) {
		return &ProgressionProjection{UserID: userID, Balance: balance}, nil
	}

	_, err := cache.Get(ctx, userID, load)
	require.NoError(t, err)

	balance = 40
	cache.Invalidate(ctx, userID)

	got, err := cache.Get(ctx, userID, load)
	require.NoError(t, err)
	assert.Equal(t, int64(40), got.Balance)
}

func TestSnapshotCache_FillDiscardedAfterConcurrentInvalidate(t *testing.T) {
	cache, store := newCache()
	ctx := context.Background()
	userID := uuid.New()

	balance := int64(50)
	var loads int32
	load := func(context.Context) (*ProgressionProjection, error) {
		read := balance
		if atomic.AddInt32(&loads, 1) == 1 {
			// a purchase commits and invalidates while this load is in flight
			balance = 20
			cache.Invalidate(ctx, userID)
		}
		return &ProgressionProjection{UserID: userID, Balance: read}, nil
	}

	got, err := cache.Get(ctx, userID, load)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.Balance)

	_, err = store.Get(ctx, progressionKey(userID))
	assert.ErrorIs(t, err, ErrMiss)

	got, err = cache.Get(ctx, userID, load)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.Balance)

	got, err = cache.Get(ctx, userID, load)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.Balance)
	assert.Equal(t, int32(2), atomic.LoadInt32(&loads))
}

func TestSnapshotCache_LoadErrorNotCached(t *testing.T) {
	cache, store := newCache()
	ctx := context.Background()
	userID := uuid.New()

	_, err := cache.Get(ctx, userID, func(context.Context) (*ProgressionProjection, error) {
		return nil, errors.New("db down")
	})
	require.Error(t, err)

	_, err = store.Get(ctx, progressionKey(userID))
	assert.ErrorIs(t, err, ErrMiss)
}

func TestSnapshotCache_CoalescesConcurrentMisses(t *testing.T) {
	cache, _ := newCache()
	ctx := context.Background()
	userID := uuid.New()

	var loads int32
	release := make(chan struct{})
	load := func(context.Context) (*ProgressionProjection, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return &ProgressionProjection{UserID: userID}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Get(ctx, userID, load)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Less(t, atomic.LoadInt32(&loads), int32(8))
}
