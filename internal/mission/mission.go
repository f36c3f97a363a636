// Package mission assigns a bounded set of daily missions per user, tracks
// their progress and pays rewards on claim until the day ends.
package mission

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

// Scheduler is the daily mission scheduler.
type Scheduler struct {
	missions repository.MissionRepository
	ledger   *ledger.Engine
	outbox   repository.OutboxRepository
	perDay   int
}

// NewScheduler creates a scheduler that assigns at most perDay missions per user and day.
func NewScheduler(
	missions repository.MissionRepository,
	engine *ledger.Engine,
	outbox repository.OutboxRepository,
	perDay int,
) *Scheduler {
	return &Scheduler{
		missions: missions,
		ledger:   engine,
		outbox:   outbox,
		perDay:   perDay,
	}
}

// Select picks the user's missions for a day from the active catalog.
func Select(catalog []domain.DailyMission, userID uuid.UUID, dayKey string, n int) []domain.DailyMission {
	picked := rotation.Pick(rotation.DaySeed(userID.String(), dayKey), len(catalog), n)
	out := make([]domain.DailyMission, 0, len(picked))
	for _, i := range picked {
		out = append(out, catalog[i])
	}
	return out
}

// Assign returns the user's missions for the day containing now in loc,
// creating them on first call. Existing assignments are returned unchanged.
func (s *Scheduler) Assign(ctx context.Context, db repository.DBTX, userID uuid.UUID, now time.Time, loc *time.Location) ([]domain.UserMission, error) {
	day := calendar.DayKey(now, loc)
	existing, err := s.missions.ListForDay(ctx, db, userID, day)
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	catalog, err := s.missions.List(ctx, db, true)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	picked := Select(catalog, userID, day, s.perDay)
	if len(picked) == 0 {
		return nil, nil
	}

	expires := calendar.EndOfDay(now, loc)
	rows := make([]domain.UserMission, 0, len(picked))
	for _, m := range picked {
		rows = append(rows, domain.UserMission{
			MissionID:    m.ID,
			UserID:       userID,
			Day:          day,
			Title:        m.Title,
			Category:     m.Category,
			Goal:         m.Goal,
			PointsReward: m.PointsReward,
			AssignedAt:   now,
			ExpiresAt:    expires,
		})
	}
	if err := s.missions.Assign(ctx, db, rows); err != nil {
		return nil, fmt.Errorf("assign missions: %w", err)
	}
	return s.missions.ListForDay(ctx, db, userID, day)
}

// Today returns the user's assignments for the day without creating any.
func (s *Scheduler) Today(ctx context.Context, db repository.DBTX, userID uuid.UUID, now time.Time, loc *time.Location) ([]domain.UserMission, error) {
	rows, err := s.missions.ListForDay(ctx, db, userID, calendar.DayKey(now, loc))
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	for i := range rows {
		if rows[i].ExpiredAt(now) {
			rows[i].Expired = true
		}
	}
	return rows, nil
}

// RecordProgress adds delta to today's unexpired, uncompleted missions of the
// category. The caller must hold the user lock.
func (s *Scheduler) RecordProgress(ctx context.Context, tx pgx.Tx, userID uuid.UUID, category domain.Category, delta int, now time.Time, loc *time.Location) ([]domain.UserMission, error) {
	if delta <= 0 {
		return nil, nil
	}
	assigned, err := s.Assign(ctx, tx, userID, now, loc)
	if err != nil {
		return nil, err
	}

	var touched []domain.UserMission
	for i := range assigned {
		m := &assigned[i]
		if m.Category != category || m.IsCompleted || m.ExpiredAt(now) {
			continue
		}

		m.Progress = min(m.Progress+delta, m.Goal)
		m.IsCompleted = m.Progress >= m.Goal
		if err := s.missions.SaveProgress(ctx, tx, m); err != nil {
			return nil, fmt.Errorf("save mission progress: %w", err)
		}
		if m.IsCompleted {
			if err := s.outbox.Insert(ctx, tx, domain.NewMissionCompletedEvent(m, now)); err != nil {
				return nil, fmt.Errorf("insert mission event: %w", err)
			}
		}
		touched = append(touched, *m)
	}
	return touched, nil
}

// Claim pays the reward of the user's latest assignment of the mission.
// Pattern: Lock → Load → Guard → MarkClaimed → Award
func (s *Scheduler) Claim(ctx context.Context, tx pgx.Tx, userID, missionID uuid.UUID, now time.Time) (*domain.ClaimResult, error) {
	user, err := s.ledger.LockUserForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	m, err := s.missions.FindLatest(ctx, tx, userID, missionID)
	if err != nil {
		return nil, fmt.Errorf("find mission: %w", err)
	}
	switch {
	case m == nil:
		return nil, domain.ErrNotFound("mission", missionID.String())
	case m.RewardClaimed:
		return nil, domain.ErrAlreadyClaimed("mission")
	case m.ExpiredAt(now):
		return nil, domain.ErrMissionExpired(missionID.String())
	case !m.IsCompleted:
		return nil, domain.ErrNotCompleted("mission")
	}

	ok, err := s.missions.MarkClaimed(ctx, tx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("mark claimed: %w", err)
	}
	if !ok {
		return nil, domain.ErrAlreadyClaimed("mission")
	}
	m.RewardClaimed = true

	result := &domain.ClaimResult{Balance: user.Balance, Applied: true}
	if m.PointsReward > 0 {
		award, err := s.ledger.Award(ctx, tx, domain.AwardParams{
			UserID:        userID,
			Amount:        m.PointsReward,
			Reason:        domain.ReasonMissionReward,
			SourceEventID: fmt.Sprintf("mission:%s:%s", m.Day, missionID),
			Metadata:      ledger.Meta(map[string]interface{}{"mission_id": missionID, "day": m.Day}),
			At:            now,
		})
		if err != nil {
			return nil, err
		}
		if !award.Applied {
			return nil, domain.ErrAlreadyClaimed("mission")
		}
		result.PointsAwarded = m.PointsReward
		result.Balance = award.Balance
	}

	if err := s.outbox.Insert(ctx, tx, domain.NewMissionClaimedEvent(m, now)); err != nil {
		return nil, fmt.Errorf("insert claim event: %w", err)
	}
	return result, nil
}

// ExpireSweep marks every unclaimed assignment past its expiry. Re-running it
// is a no-op.
func (s *Scheduler) ExpireSweep(ctx context.Context, db repository.DBTX, now time.Time) (int64, error) {
	n, err := s.missions.ExpireBefore(ctx, db, now)
	if err != nil {
		return 0, fmt.Errorf("expire missions: %w", err)
	}
	return n, nil
}
