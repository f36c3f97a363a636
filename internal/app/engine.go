package app

import (
	"log/slog"
	"time"

	"github.com/babysteps/progression/internal/badge"
	"github.com/babysteps/progression/internal/challenge"
	"github.com/babysteps/progression/internal/infra"
	"github.com/babysteps/progression/internal/ledger"
	"github.com/babysteps/progression/internal/mission"
	"github.com/babysteps/progression/internal/projection"
	"github.com/babysteps/progression/internal/ranking"
	"github.com/babysteps/progression/internal/repository"
	"github.com/babysteps/progression/internal/service"
	"github.com/babysteps/progression/internal/shop"
	"github.com/babysteps/progression/internal/specialevent"
	"github.com/babysteps/progression/internal/streak"
)

// EngineDeps holds what NewEngine needs from the outside world.
type EngineDeps struct {
	Runner  repository.TxRunner
	Repos   repository.Repositories
	Cache   *projection.SnapshotCache // nil disables snapshot caching
	Rewards service.RewardSource      // nil makes AI reward unlocks unavailable
	Config  *infra.Config
	Logger  *slog.Logger
	Now     func() time.Time // defaults to time.Now
}

// Engine is the fully wired progression engine shared by every binary.
type Engine struct {
	Ledger      *ledger.Engine
	Challenges  *challenge.Engine
	Missions    *mission.Scheduler
	Events      *specialevent.Engine
	Progression *service.ProgressionService
	Catalog     *service.CatalogService
	Jobs        *service.Jobs
}

// NewEngine wires the progression components from configuration.
func NewEngine(d EngineDeps) (*Engine, error) {
	policy, err := d.Config.Calendar()
	if err != nil {
		return nil, err
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	r := d.Repos

	ledgerEngine := ledger.NewEngine(r.Progression, r.Transactions, r.Outbox)
	events := specialevent.NewEngine(r.Events, ledgerEngine, r.Outbox, d.Runner, d.Logger)
	missions := mission.NewScheduler(r.Missions, ledgerEngine, r.Outbox, d.Config.DailyMissionCap)
	challenges := challenge.NewEngine(r.Challenges, ledgerEngine, r.Outbox, policy, d.Config.WeeklyChallengeCount)

	progression := service.NewProgressionService(service.Deps{
		Runner:     d.Runner,
		Repos:      r,
		Ledger:     ledgerEngine,
		Streaks:    streak.NewTracker(r.Streaks),
		Badges:     badge.NewEvaluator(r.Rules, r.Badges, ledgerEngine, r.Outbox, d.Logger, d.Config.RuleCacheSize),
		Challenges: challenges,
		Missions:   missions,
		Shop:       shop.NewEconomy(r.Shop, ledgerEngine, r.Outbox),
		Events:     events,
		Ranking:    ranking.NewAggregator(r.Transactions, policy, d.Config.RankingLimit),
		Cache:      d.Cache,
		Rewards:    d.Rewards,
		Policy:     policy,
		Points:     d.Config.Points(),
		Logger:     d.Logger,
		Now:        now,
	})
	return &Engine{
		Ledger:      ledgerEngine,
		Challenges:  challenges,
		Missions:    missions,
		Events:      events,
		Progression: progression,
		Catalog:     service.NewCatalogService(d.Runner, r, events).WithClock(now),
		Jobs:        service.NewJobs(d.Runner, missions, challenges, events, d.Logger).WithClock(now),
	}, nil
}
