package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/babysteps/progression/internal/guard"
	"github.com/babysteps/progression/internal/handler"
	"github.com/babysteps/progression/internal/infra"
	"github.com/babysteps/progression/internal/projection"
	"github.com/babysteps/progression/internal/provider"
	"github.com/babysteps/progression/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Runtime holds the process-wide resources of a binary: the database pool,
// the optional Redis snapshot store and the wired engine.
type Runtime struct {
	Config *infra.Config
	Logger *slog.Logger
	Pool   *pgxpool.Pool
	Redis  *projection.RedisStore
	Runner repository.TxRunner
	Repos  repository.Repositories
	Engine *Engine
}

// Bootstrap connects to Postgres (and Redis when the cache is enabled) and
// wires the engine.
func Bootstrap(ctx context.Context, cfg *infra.Config, logger *slog.Logger) (*Runtime, error) {
	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("database connected")

	rt := &Runtime{
		Config: cfg,
		Logger: logger,
		Pool:   pool,
		Runner: infra.NewTxRunner(pool, logger),
		Repos:  repository.NewPostgres(),
	}

	var cache *projection.SnapshotCache
	if cfg.CacheEnabled {
		store, err := projection.NewRedisStore(ctx, cfg.RedisURL, "progression:")
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		rt.Redis = store
		cache = projection.NewSnapshotCache(store, cfg.SnapshotCacheTTL, logger)
		logger.Info("snapshot cache enabled", "ttl", cfg.SnapshotCacheTTL)
	}

	breaker := guard.NewCircuitBreaker(5, 30*time.Second)
	rewards := provider.NewAIRewardClient(cfg.AIRewardsBaseURL, cfg.AIRewardsTimeout, breaker, logger)

	rt.Engine, err = NewEngine(EngineDeps{
		Runner:  rt.Runner,
		Repos:   rt.Repos,
		Cache:   cache,
		Rewards: rewards,
		Config:  cfg,
		Logger:  logger,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// HealthChecks returns the dependency probes for /health.
func (rt *Runtime) HealthChecks() map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"postgres": func(ctx context.Context) error { return infra.HealthCheck(ctx, rt.Pool) },
	}
	if rt.Redis != nil {
		checks["redis"] = rt.Redis.Ping
	}
	return checks
}

// Close releases the runtime's connections.
func (rt *Runtime) Close() {
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			rt.Logger.Warn("close redis", "error", err)
		}
	}
	rt.Pool.Close()
}
