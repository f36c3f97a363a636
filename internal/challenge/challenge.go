// Package challenge tracks per-user progress against the rotating set of
// week-scoped challenges and pays their rewards on claim.
package challenge

import (
	"context"
	"fmt"
	"time"

	"github.com/babysteps/progression/internal/calendar"
	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/ledger"
	"github.com/babysteps/progression/internal/repository"
	"github.com/babysteps/progression/internal/rotation"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Engine is the weekly challenge engine. Weeks follow the calendar policy, so
// every user shares the same week boundaries and the same challenge set.
type Engine struct {
	challenges repository.ChallengeRepository
	ledger     *ledger.Engine
	outbox     repository.OutboxRepository
	policy     calendar.Policy
	perWeek    int
}

// NewEngine creates a challenge engine that schedules perWeek challenges each week.
func NewEngine(
	challenges repository.ChallengeRepository,
	engine *ledger.Engine,
	outbox repository.OutboxRepository,
	policy calendar.Policy,
	perWeek int,
) *Engine {
	return &Engine{
		challenges: challenges,
		ledger:     engine,
		outbox:     outbox,
		policy:     policy,
		perWeek:    perWeek,
	}
}

// Select returns the ids of the challenges active in weekKey, chosen
// deterministically from the active catalog.
func Select(catalog []domain.WeeklyChallenge, weekKey string, n int) []uuid.UUID {
	picked := rotation.Pick(rotation.WeekSeed(weekKey), len(catalog), n)
	ids := make([]uuid.UUID, 0, len(picked))
	for _, i := range picked {
		ids = append(ids, catalog[i].ID)
	}
	return ids
}

// EnsureSchedule materializes the week's challenge set if it does not exist
// yet and returns it. Safe to call concurrently and repeatedly.
func (e *Engine) EnsureSchedule(ctx context.Context, db repository.DBTX, weekKey string) ([]domain.WeeklyChallenge, error) {
	scheduled, err := e.challenges.ListScheduled(ctx, db, weekKey)
	if err != nil {
		return nil, fmt.Errorf("list scheduled: %w", err)
	}
	if len(scheduled) > 0 {
		return scheduled, nil
	}

	catalog, err := e.challenges.List(ctx, db, true)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	ids := Select(catalog, weekKey, e.perWeek)
	if len(ids) == 0 {
		return nil, nil
	}
	if err := e.challenges.Schedule(ctx, db, weekKey, ids); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", weekKey, err)
	}
	return e.challenges.ListScheduled(ctx, db, weekKey)
}

// scheduledView returns the week's set without writing, for read-only callers.
func (e *Engine) scheduledView(ctx context.Context, db repository.DBTX, weekKey string) ([]domain.WeeklyChallenge, error) {
	scheduled, err := e.challenges.ListScheduled(ctx, db, weekKey)
	if err != nil {
		return nil, fmt.Errorf("list scheduled: %w", err)
	}
	if len(scheduled) > 0 {
		return scheduled, nil
	}

	catalog, err := e.challenges.List(ctx, db, true)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	byID := make(map[uuid.UUID]domain.WeeklyChallenge, len(catalog))
	for _, c := range catalog {
		byID[c.ID] = c
	}
	for _, id := range Select(catalog, weekKey, e.perWeek) {
		scheduled = append(scheduled, byID[id])
	}
	return scheduled, nil
}

// RecordProgress adds delta to every challenge of the current week whose
// category matches and returns the rows it touched. Rows are created lazily;
// progress stops at the goal. The caller must hold the user lock.
func (e *Engine) RecordProgress(ctx context.Context, tx pgx.Tx, userID uuid.UUID, category domain.Category, delta int, now time.Time) ([]domain.ChallengeProgress, error) {
	if delta <= 0 {
		return nil, nil
	}
	weekKey := e.policy.WeekKey(now)
	scheduled, err := e.EnsureSchedule(ctx, tx, weekKey)
	if err != nil {
		return nil, err
	}

	var touched []domain.ChallengeProgress
	for _, c := range scheduled {
		if c.Category != category {
			continue
		}

		p, err := e.challenges.FindProgress(ctx, tx, userID, c.ID, weekKey)
		if err != nil {
			return nil, fmt.Errorf("find progress: %w", err)
		}
		if p == nil {
			p = &domain.ChallengeProgress{
				ChallengeID:  c.ID,
				UserID:       userID,
				WeekKey:      weekKey,
				Title:        c.Title,
				Category:     c.Category,
				Goal:         c.Goal,
				PointsReward: c.PointsReward,
			}
		}
		if p.IsCompleted {
			continue
		}

		p.Progress = min(p.Progress+delta, p.Goal)
		p.IsCompleted = p.Progress >= p.Goal
		p.UpdatedAt = now
		if err := e.challenges.SaveProgress(ctx, tx, p); err != nil {
			return nil, fmt.Errorf("save progress: %w", err)
		}
		if p.IsCompleted {
			if err := e.outbox.Insert(ctx, tx, domain.NewChallengeCompletedEvent(p, now)); err != nil {
				return nil, fmt.Errorf("insert challenge event: %w", err)
			}
		}
		touched = append(touched, *p)
	}
	return touched, nil
}

// Current returns the user's view of this week's challenges, including ones
// not yet touched at zero progress. It never writes.
func (e *Engine) Current(ctx context.Context, db repository.DBTX, userID uuid.UUID, now time.Time) ([]domain.ChallengeProgress, error) {
	weekKey := e.policy.WeekKey(now)
	scheduled, err := e.scheduledView(ctx, db, weekKey)
	if err != nil {
		return nil, err
	}
	rows, err := e.challenges.ListProgress(ctx, db, userID, weekKey)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}

	have := make(map[uuid.UUID]domain.ChallengeProgress, len(rows))
	for _, p := range rows {
		have[p.ChallengeID] = p
	}

	out := make([]domain.ChallengeProgress, 0, len(scheduled))
	for _, c := range scheduled {
		if p, ok := have[c.ID]; ok {
			out = append(out, p)
			continue
		}
		out = append(out, domain.ChallengeProgress{
			ChallengeID:  c.ID,
			UserID:       userID,
			WeekKey:      weekKey,
			Title:        c.Title,
			Category:     c.Category,
			Goal:         c.Goal,
			PointsReward: c.PointsReward,
		})
	}
	return out, nil
}

// Claim pays the reward of a completed challenge of the current week.
// Pattern: Lock → Load → Guard → MarkClaimed → Award
//
// Claiming twice fails with AlreadyClaimed and pays nothing.
func (e *Engine) Claim(ctx context.Context, tx pgx.Tx, userID, challengeID uuid.UUID, now time.Time) (*domain.ClaimResult, error) {
	user, err := e.ledger.LockUserForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	weekKey := e.policy.WeekKey(now)
	p, err := e.challenges.FindProgress(ctx, tx, userID, challengeID, weekKey)
	if err != nil {
		return nil, fmt.Errorf("find progress: %w", err)
	}
	if p == nil {
		c, err := e.challenges.FindByID(ctx, tx, challengeID)
		if err != nil {
			return nil, fmt.Errorf("find challenge: %w", err)
		}
		if c == nil {
			return nil, domain.ErrNotFound("challenge", challengeID.String())
		}
		return nil, domain.ErrNotCompleted("challenge")
	}
	if p.RewardClaimed {
		return nil, domain.ErrAlreadyClaimed("challenge")
	}
	if !p.IsCompleted {
		return nil, domain.ErrNotCompleted("challenge")
	}

	ok, err := e.challenges.MarkClaimed(ctx, tx, userID, challengeID, weekKey, now)
	if err != nil {
		return nil, fmt.Errorf("mark claimed: %w", err)
	}
	if !ok {
		return nil, domain.ErrAlreadyClaimed("challenge")
	}

	result := &domain.ClaimResult{Balance: user.Balance, Applied: true}
	if p.PointsReward > 0 {
		award, err := e.ledger.Award(ctx, tx, domain.AwardParams{
			UserID:        userID,
			Amount:        p.PointsReward,
			Reason:        domain.ReasonChallengeReward,
			SourceEventID: fmt.Sprintf("challenge:%s:%s", challengeID, weekKey),
			Metadata:      ledger.Meta(map[string]interface{}{"challenge_id": challengeID, "week_key": weekKey}),
			At:            now,
		})
		if err != nil {
			return nil, err
		}
		if !award.Applied {
			return nil, domain.ErrAlreadyClaimed("challenge")
		}
		result.PointsAwarded = p.PointsReward
		result.Balance = award.Balance
	}

	if err := e.outbox.Insert(ctx, tx, domain.NewChallengeClaimedEvent(userID, challengeID, weekKey, result.PointsAwarded, now)); err != nil {
		return nil, fmt.Errorf("insert claim event: %w", err)
	}
	return result, nil
}

// Rollover materializes the current and the next week's schedules.
func (e *Engine) Rollover(ctx context.Context, db repository.DBTX, now time.Time) ([]string, error) {
	keys := []string{e.policy.WeekKey(now), e.policy.NextWeekKey(now)}
	for _, k := range keys {
		if _, err := e.EnsureSchedule(ctx, db, k); err != nil {
			return nil, err
		}
	}
	return keys, nil
}
