package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/babysteps/progression/internal/badge"
	"github.com/babysteps/progression/internal/calendar"
	"github.com/babysteps/progression/internal/challenge"
	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/ledger"
	"github.com/babysteps/progression/internal/mission"
	"github.com/babysteps/progression/internal/projection"
	"github.com/babysteps/progression/internal/ranking"
	"github.com/babysteps/progression/internal/repository/memstore"
	"github.com/babysteps/progression/internal/shop"
	"github.com/babysteps/progression/internal/specialevent"
	"github.com/babysteps/progression/internal/streak"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday of 2026-W11.
var wednesday = time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

type fakeRewards map[string]domain.AIReward

func (f fakeRewards) Reward(_ context.Context, id string) (*domain.AIReward, error) {
	r, ok := f[id]
	if !ok {
		return nil, domain.ErrNotFound("ai reward", id)
	}
	return &r, nil
}

type harness struct {
	store   *memstore.Store
	clock   *clock
	svc     *ProgressionService
	catalog *CatalogService
	jobs    *Jobs
}

func newHarness(t *testing.T, cached bool) *harness {
	t.Helper()
	s := memstore.New()
	clk := &clock{t: wednesday}
	s.Now = clk.Now
	r := s.Repositories()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	policy := calendar.DefaultPolicy()

	eng := ledger.NewEngine(r.Progression, r.Transactions, r.Outbox)
	events := specialevent.NewEngine(r.Events, eng, r.Outbox, s, logger)
	missions := mission.NewScheduler(r.Missions, eng, r.Outbox, 3)
	challenges := challenge.NewEngine(r.Challenges, eng, r.Outbox, policy, 3)

	var cache *projection.SnapshotCache
	if cached {
		cache = projection.NewSnapshotCache(projection.NewInMemoryStore(), time.Minute, logger)
	}

	svc := NewProgressionService(Deps{
		Runner:     s,
		Repos:      r,
		Ledger:     eng,
		Streaks:    streak.NewTracker(r.Streaks),
		Badges:     badge.NewEvaluator(r.Rules, r.Badges, eng, r.Outbox, logger, 16),
		Challenges: challenges,
		Missions:   missions,
		Shop:       shop.NewEconomy(r.Shop, eng, r.Outbox),
		Events:     events,
		Ranking:    ranking.NewAggregator(r.Transactions, policy, 10),
		Cache:      cache,
		Rewards:    fakeRewards{"lullaby": {ID: "lullaby", Title: "Lullaby", Price: 40}},
		Policy:     policy,
		Points:     domain.DefaultPointsConfig(),
		Logger:     logger,
		Now:        clk.Now,
	})
	catalog := NewCatalogService(s, r, events)
	catalog.now = clk.Now
	jobs := NewJobs(s, missions, challenges, events, logger)
	jobs.now = clk.Now

	return &harness{store: s, clock: clk, svc: svc, catalog: catalog, jobs: jobs}
}

func memory(userID uuid.UUID, eventID string) domain.ActivityEvent {
	return domain.MemoryCreated{UserID: userID, BabyID: uuid.New(), EventID: eventID}.Event()
}

func TestProcessActivity_WorkedExample(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	userID := uuid.New()

	snap, err := h.svc.ProcessActivity(ctx, memory(userID, "e1"))
	require.NoError(t, err)
	assert.Equal(t, int64(50), snap.Balance)
	assert.False(t, snap.Duplicate)

	snap, err = h.svc.ProcessActivity(ctx, memory(userID, "e1"))
	require.NoError(t, err)
	assert.True(t, snap.Duplicate)
	assert.Equal(t, int64(50), snap.Balance)
	assert.Len(t, h.store.Transactions(), 1)

	item := domain.ShopItem{Name: "Sticker pack", Price: 30, IsActive: true}
	require.NoError(t, h.catalog.SaveShopItem(ctx, &item))

	res, err := h.svc.Purchase(ctx, userID, item.ID, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), res.Balance)

	_, err = h.svc.Purchase(ctx, userID, item.ID, "r2")
	assert.True(t, domain.IsCode(err, domain.CodeInsufficientPoints))

	snap, err = h.svc.GetSnapshot(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), snap.Balance)
	assert.Len(t, snap.UserPurchases, 1)

	verify, err := h.svc.Verify(ctx, userID)
	require.NoError(t, err)
	assert.True(t, verify.AllPassed)
}

func TestProcessActivity_FansOut(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, h.catalog.SaveRule(ctx, &domain.GamificationRule{
		ID: "first_memory", Name: "First memory", Condition: "totalMemories >= 1", PointsReward: 10, Active: true,
	}))
	ch := domain.WeeklyChallenge{Title: "Save a memory", Category: domain.CategoryMemory, Goal: 1, PointsReward: 40, Active: true}
	require.NoError(t, h.catalog.SaveChallenge(ctx, &ch))
	m := domain.DailyMission{Title: "Memory of the day", Category: domain.CategoryMemory, Goal: 1, PointsReward: 15, Active: true}
	require.NoError(t, h.catalog.SaveMission(ctx, &m))
	ev := domain.SpecialEvent{
		Title:       "March memories",
		StartDate:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC),
		RewardTiers: []domain.RewardTier{{ID: "first", Key: "memory", Threshold: 1, Points: 25}},
	}
	require.NoError(t, h.catalog.CreateEvent(ctx, &ev))
	_, joined, err := h.svc.JoinEvent(ctx, userID, ev.ID)
	require.NoError(t, err)
	assert.True(t, joined)

	snap, err := h.svc.ProcessActivity(ctx, memory(userID, "m-1"))
	require.NoError(t, err)

	assert.Equal(t, []string{"first_memory"}, snap.NewBadges)
	assert.Equal(t, int64(60), snap.Balance)
	require.Len(t, snap.Badges, 1)
	assert.Equal(t, "First memory", snap.Badges[0].Name)
	assert.Equal(t, 1, snap.Streaks[domain.CategoryMemory])

	require.Len(t, snap.WeeklyChallenges, 1)
	assert.True(t, snap.WeeklyChallenges[0].IsCompleted)
	assert.Equal(t, "2026-W11", snap.WeeklyChallenges[0].WeekKey)

	require.Len(t, snap.DailyMissions, 1)
	assert.True(t, snap.DailyMissions[0].IsCompleted)

	require.Len(t, snap.ActiveEvents, 1)
	assert.Equal(t, int64(1), snap.ActiveEvents[0].ProgressValue("memory"))

	require.Len(t, snap.WeeklyRanking, 1)
	assert.Equal(t, int64(60), snap.WeeklyRanking[0].Points)

	claim, err := h.svc.ClaimChallenge(ctx, userID, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), claim.PointsAwarded)
	assert.Equal(t, int64(100), claim.Balance)

	_, err = h.svc.ClaimChallenge(ctx, userID, ch.ID)
	assert.True(t, domain.IsCode(err, domain.CodeAlreadyClaimed))

	claim, err = h.svc.ClaimMission(ctx, userID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(115), claim.Balance)

	events := h.store.OutboxEvents()
	assert.Contains(t, events, domain.EventBadgeEarned)
	assert.Contains(t, events, domain.EventChallengeCompleted)
	assert.Contains(t, events, domain.EventMissionCompleted)
}

func TestProcessActivity_LevelUp(t *testing.T) {
	h := newHarness(t, false)
	userID := uuid.New()

	evt := domain.MilestoneAchieved{UserID: userID, BabyID: uuid.New(), EventID: "ms-1"}.Event()
	snap, err := h.svc.ProcessActivity(context.Background(), evt)
	require.NoError(t, err)
	assert.True(t, snap.LevelUp)
	assert.Equal(t, 2, snap.Level)

	evt = domain.UserLoggedIn{UserID: userID, EventID: "login-1"}.Event()
	snap, err = h.svc.ProcessActivity(context.Background(), evt)
	require.NoError(t, err)
	assert.False(t, snap.LevelUp)
	assert.Equal(t, int64(105), snap.Balance)
	assert.Equal(t, 1, snap.Streaks[domain.CategoryLogin])
}

func TestProcessActivity_Validation(t *testing.T) {
	h := newHarness(t, false)
	tests := []struct {
		name string
		evt  domain.ActivityEvent
	}{
		{"unknown kind", domain.ActivityEvent{Kind: "Shared", EventID: "x", UserID: uuid.New()}},
		{"missing event id", domain.ActivityEvent{Kind: domain.KindMemoryCreated, UserID: uuid.New()}},
		{"missing user", domain.ActivityEvent{Kind: domain.KindMemoryCreated, EventID: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.ProcessActivity(context.Background(), tt.evt)
			assert.True(t, domain.IsCode(err, domain.CodeValidation))
		})
	}
	assert.Empty(t, h.store.Transactions())
}

func TestProcessActivity_StreakAcrossDays(t *testing.T) {
	h := newHarness(t, false)
	userID := uuid.New()
	ctx := context.Background()

	login := func(id string) *domain.GamificationSnapshot {
		snap, err := h.svc.ProcessActivity(ctx, domain.UserLoggedIn{UserID: userID, EventID: id, OccurredAt: h.clock.t}.Event())
		require.NoError(t, err)
		return snap
	}

	assert.Equal(t, 1, login("d1").Streaks[domain.CategoryLogin])
	h.clock.t = h.clock.t.AddDate(0, 0, 1)
	assert.Equal(t, 2, login("d2").Streaks[domain.CategoryLogin])
	h.clock.t = h.clock.t.AddDate(0, 0, 2)
	assert.Equal(t, 1, login("d4").Streaks[domain.CategoryLogin])
}

func TestGetSnapshot_CacheInvalidatedOnMutation(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	userID := uuid.New()

	snap, err := h.svc.GetSnapshot(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Balance)
	assert.Equal(t, 1, snap.Level)

	_, err = h.svc.ProcessActivity(ctx, memory(userID, "e1"))
	require.NoError(t, err)

	snap, err = h.svc.GetSnapshot(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), snap.Balance)
}

func TestGetSnapshot_NewUserWithMissions(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	userID := uuid.New()

	m := domain.DailyMission{Title: "Sign in", Category: domain.CategoryLogin, Goal: 1, Active: true}
	require.NoError(t, h.catalog.SaveMission(ctx, &m))

	p, err := h.store.Repositories().Progression.Find(ctx, nil, userID)
	require.NoError(t, err)
	require.Nil(t, p)

	snap, err := h.svc.GetSnapshot(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Balance)
	assert.Equal(t, 1, snap.Level)
	require.Len(t, snap.DailyMissions, 1)

	// the aggregate row exists before the assigned missions that reference it
	p, err = h.store.Repositories().Progression.Find(ctx, nil, userID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, userID, p.UserID)
}

func TestUnlockAIReward(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	userID := uuid.New()

	_, err := h.svc.UnlockAIReward(ctx, userID, "lullaby")
	assert.True(t, domain.IsCode(err, domain.CodeInsufficientPoints))

	_, err = h.svc.ProcessActivity(ctx, memory(userID, "e1"))
	require.NoError(t, err)

	res, err := h.svc.UnlockAIReward(ctx, userID, "lullaby")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, int64(10), res.Balance)

	res, err = h.svc.UnlockAIReward(ctx, userID, "lullaby")
	require.NoError(t, err)
	assert.False(t, res.Applied)

	_, err = h.svc.UnlockAIReward(ctx, userID, "nope")
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))
}

func TestRecordEventProgress(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	userID := uuid.New()

	ev := domain.SpecialEvent{
		Title:       "Photo week",
		StartDate:   time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 3, 15, 23, 59, 59, 0, time.UTC),
		RewardTiers: []domain.RewardTier{{ID: "three", Key: "photos", Threshold: 3, Points: 20}},
	}
	require.NoError(t, h.catalog.CreateEvent(ctx, &ev))

	_, err := h.svc.RecordEventProgress(ctx, userID, ev.ID, "photos", 3)
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))

	_, _, err = h.svc.JoinEvent(ctx, userID, ev.ID)
	require.NoError(t, err)

	tests := []struct {
		name  string
		key   string
		value int64
		code  string
	}{
		{"blank key", "  ", 1, domain.CodeValidation},
		{"negative value", "photos", -1, domain.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.RecordEventProgress(ctx, userID, ev.ID, tt.key, tt.value)
			assert.True(t, domain.IsCode(err, tt.code), "got %v", err)
		})
	}

	ue, err := h.svc.RecordEventProgress(ctx, userID, ev.ID, "photos", 3)
	require.NoError(t, err)
	require.NotNil(t, ue)
	assert.Equal(t, int64(3), ue.ProgressValue("photos"))
	assert.NotNil(t, ue.CompletedAt)

	h.clock.t = time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC)
	ue, err = h.svc.RecordEventProgress(ctx, userID, ev.ID, "photos", 9)
	require.NoError(t, err)
	assert.Nil(t, ue)
}

func TestSetTimezone(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	userID := uuid.New()

	err := h.svc.SetTimezone(ctx, userID, "Mars/Olympus")
	assert.True(t, domain.IsCode(err, domain.CodeValidation))

	require.NoError(t, h.svc.SetTimezone(ctx, userID, "Asia/Tokyo"))
	m := domain.DailyMission{Title: "Sign in", Category: domain.CategoryLogin, Goal: 1, Active: true}
	require.NoError(t, h.catalog.SaveMission(ctx, &m))

	// 20:00 UTC on the 11th is already the 12th in Tokyo.
	h.clock.t = time.Date(2026, 3, 11, 20, 0, 0, 0, time.UTC)
	snap, err := h.svc.GetSnapshot(ctx, userID)
	require.NoError(t, err)
	require.Len(t, snap.DailyMissions, 1)
	assert.Equal(t, "2026-03-12", snap.DailyMissions[0].Day)
}

func TestRanking(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	_, err := h.svc.ProcessActivity(ctx, memory(alice, "a1"))
	require.NoError(t, err)
	_, err = h.svc.ProcessActivity(ctx, domain.UserLoggedIn{UserID: bob, EventID: "b1"}.Event())
	require.NoError(t, err)

	entries, err := h.svc.Ranking(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, alice, entries[0].UserID)

	entries, err = h.svc.Ranking(ctx, "2026-W10", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = h.svc.Ranking(ctx, "bogus", 10)
	assert.True(t, domain.IsCode(err, domain.CodeValidation))

	history, err := h.svc.History(ctx, alice, nil, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
