package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// ProgressionProjection is the cached per-user part of the snapshot.
type ProgressionProjection struct {
	UserID              uuid.UUID               `json:"user_id"`
	Balance             int64                   `json:"balance"`
	Level               int                     `json:"level"`
	ProgressToNextLevel float64                 `json:"progress_to_next_level"`
	Badges              []domain.EarnedBadge    `json:"badges"`
	Streaks             map[domain.Category]int `json:"streaks"`
	CachedAt            time.Time               `json:"cached_at"`
}

// DefaultSnapshotTTL bounds how stale a cached projection can get if an
// invalidation is lost.
const DefaultSnapshotTTL = 5 * time.Minute

func progressionKey(userID uuid.UUID) string {
	return fmt.Sprintf("projection:progression:%s", userID)
}

// generationKey holds a token that every Invalidate replaces. A fill only
// keeps its write when the token is unchanged across the load.
func generationKey(userID uuid.UUID) string {
	return fmt.Sprintf("projection:progression:gen:%s", userID)
}

// SnapshotCache is a read-through cache of ProgressionProjection. Concurrent
// misses for the same user share one load.
type SnapshotCache struct {
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewSnapshotCache creates a snapshot cache over store.
func NewSnapshotCache(store Store, ttl time.Duration, logger *slog.Logger) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &SnapshotCache{store: store, ttl: ttl, logger: logger}
}

// Get returns the cached projection or loads, stores and returns it. Cache
// errors degrade to a direct load.
func (c *SnapshotCache) Get(ctx context.Context, userID uuid.UUID, load func(ctx context.Context) (*ProgressionProjection, error)) (*ProgressionProjection, error) {
	key := progressionKey(userID)

	var cached ProgressionProjection
	err := GetJSON(ctx, c.store, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, ErrMiss) {
		c.logger.Warn("snapshot cache read failed", "user_id", userID, "error", err)
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		gen, genErr := c.generation(ctx, userID)
		p, err := load(ctx)
		if err != nil {
			return nil, err
		}
		p.CachedAt = time.Now().UTC()
		if genErr != nil {
			c.logger.Warn("snapshot cache generation read failed", "user_id", userID, "error", genErr)
			return p, nil
		}
		c.fill(ctx, userID, gen, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ProgressionProjection), nil
}

func (c *SnapshotCache) generation(ctx context.Context, userID uuid.UUID) (string, error) {
	b, err := c.store.Get(ctx, generationKey(userID))
	if errors.Is(err, ErrMiss) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// fill stores p unless an invalidation landed after gen was read. The
// generation is checked again after the write: Invalidate bumps before it
// deletes, so one of the two deletes always runs last.
func (c *SnapshotCache) fill(ctx context.Context, userID uuid.UUID, gen string, p *ProgressionProjection) {
	key := progressionKey(userID)
	if cur, err := c.generation(ctx, userID); err != nil || cur != gen {
		c.logger.Debug("snapshot fill skipped", "user_id", userID)
		return
	}
	if err := SetJSON(ctx, c.store, key, p, c.ttl); err != nil {
		c.logger.Warn("snapshot cache write failed", "user_id", userID, "error", err)
		return
	}
	if cur, err := c.generation(ctx, userID); err != nil || cur != gen {
		if err := c.store.Delete(ctx, key); err != nil {
			c.logger.Error("snapshot cache rollback failed", "user_id", userID, "error", err)
		}
	}
}

// Invalidate drops the user's projection and bumps its generation so fills
// that loaded before the mutation are discarded. Failures are logged, never
// returned.
func (c *SnapshotCache) Invalidate(ctx context.Context, userID uuid.UUID) {
	if err := c.store.Set(ctx, generationKey(userID), []byte(uuid.NewString()), c.ttl); err != nil {
		c.logger.Error("snapshot generation bump failed", "user_id", userID, "error", err)
	}
	if err := c.store.Delete(ctx, progressionKey(userID)); err != nil {
		c.logger.Error("snapshot cache invalidation failed", "user_id", userID, "error", err)
	}
}
