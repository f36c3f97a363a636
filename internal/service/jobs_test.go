package service

import (
	"context"
	"testing"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobs_Names(t *testing.T) {
	h := newHarness(t, false)
	assert.Equal(t, []string{JobChallengeRollover, JobEventFinalize, JobMissionExpiry}, h.jobs.Names())

	_, err := h.jobs.Run(context.Background(), "vacuum")
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))
}

func TestJobs_Idempotent(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	userID := uuid.New()

	m := domain.DailyMission{Title: "Save a memory", Category: domain.CategoryMemory, Goal: 2, PointsReward: 10, Active: true}
	require.NoError(t, h.catalog.SaveMission(ctx, &m))
	ch := domain.WeeklyChallenge{Title: "Log activities", Category: domain.CategoryActivity, Goal: 5, PointsReward: 10, Active: true}
	require.NoError(t, h.catalog.SaveChallenge(ctx, &ch))
	ev := domain.SpecialEvent{
		Title:       "Short event",
		StartDate:   wednesday.Add(-time.Hour),
		EndDate:     wednesday.Add(time.Hour),
		RewardTiers: []domain.RewardTier{{ID: "one", Key: "memory", Threshold: 1, Points: 20}},
	}
	require.NoError(t, h.catalog.CreateEvent(ctx, &ev))
	_, _, err := h.svc.JoinEvent(ctx, userID, ev.ID)
	require.NoError(t, err)
	_, err = h.svc.ProcessActivity(ctx, memory(userID, "e1"))
	require.NoError(t, err)

	h.clock.t = wednesday.AddDate(0, 0, 1)
	results, err := h.jobs.RunAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byName := make(map[string]JobResult, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.Equal(t, map[string][]string{"weeks": {"2026-W11", "2026-W12"}}, byName[JobChallengeRollover].Detail)
	assert.Equal(t, map[string]int64{"expired": 1}, byName[JobMissionExpiry].Detail)

	finalized, ok := byName[JobEventFinalize].Detail.([]domain.FinalizeResult)
	require.True(t, ok)
	require.Len(t, finalized, 1)
	assert.Equal(t, int64(20), finalized[0].PointsAwarded)

	// Second run changes nothing.
	results, err = h.jobs.RunAll(ctx)
	require.NoError(t, err)
	for _, r := range results {
		switch r.Name {
		case JobMissionExpiry:
			assert.Equal(t, map[string]int64{"expired": 0}, r.Detail)
		case JobEventFinalize:
			assert.Empty(t, r.Detail)
		}
	}

	snap, err := h.svc.GetSnapshot(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(70), snap.Balance)
}

func TestCatalog_Validation(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	err := h.catalog.SaveRule(ctx, &domain.GamificationRule{ID: "bad", Condition: "totalMemories >>= 1", Active: true})
	assert.True(t, domain.IsCode(err, domain.CodeInvalidRuleCondition))

	err = h.catalog.SaveRule(ctx, &domain.GamificationRule{Condition: "level >= 2"})
	assert.True(t, domain.IsCode(err, domain.CodeValidation))

	err = h.catalog.SaveChallenge(ctx, &domain.WeeklyChallenge{Title: "x", Category: "naps", Goal: 1})
	assert.True(t, domain.IsCode(err, domain.CodeValidation))

	err = h.catalog.SaveMission(ctx, &domain.DailyMission{Title: "x", Category: domain.CategoryLogin, Goal: 0})
	assert.True(t, domain.IsCode(err, domain.CodeValidation))

	err = h.catalog.SaveShopItem(ctx, &domain.ShopItem{Name: "free", Price: 0})
	assert.True(t, domain.IsCode(err, domain.CodeValidation))

	err = h.catalog.SetShopItemActive(ctx, uuid.New(), false)
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))

	_, err = h.catalog.GetEvent(ctx, uuid.New())
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))
}
