// Package specialevent runs time-boxed, admin-defined events: participation,
// free-form progress and a one-time tiered payout after the event ends.
package specialevent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/ledger"
	"github.com/babysteps/progression/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Engine is the special event engine.
type Engine struct {
	events repository.EventRepository
	ledger *ledger.Engine
	outbox repository.OutboxRepository
	runner repository.TxRunner
	logger *slog.Logger
}

// NewEngine creates a special event engine. runner is used by Finalize, which
// pays each participant in its own transaction.
func NewEngine(
	events repository.EventRepository,
	engine *ledger.Engine,
	outbox repository.OutboxRepository,
	runner repository.TxRunner,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		events: events,
		ledger: engine,
		outbox: outbox,
		runner: runner,
		logger: logger,
	}
}

// Create validates and stores a new event.
func (e *Engine) Create(ctx context.Context, db repository.DBTX, ev *domain.SpecialEvent) error {
	if err := domain.ValidateSpecialEvent(ev); err != nil {
		return domain.ErrValidation(err.Error())
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if err := e.events.Create(ctx, db, ev); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// Join enrolls the user while the event is running. Joining again is a no-op
// that returns the existing participation with joined=false.
func (e *Engine) Join(ctx context.Context, tx pgx.Tx, userID, eventID uuid.UUID, now time.Time) (*domain.UserEvent, bool, error) {
	if _, err := e.ledger.LockUserForUpdate(ctx, tx, userID); err != nil {
		return nil, false, err
	}

	ev, err := e.events.FindByID(ctx, tx, eventID)
	if err != nil {
		return nil, false, fmt.Errorf("find event: %w", err)
	}
	if ev == nil {
		return nil, false, domain.ErrNotFound("event", eventID.String())
	}
	if !ev.ActiveAt(now) || ev.Finalized {
		return nil, false, domain.ErrEventNotActive(eventID.String())
	}

	joined, err := e.events.Join(ctx, tx, &domain.UserEvent{
		EventID:  eventID,
		UserID:   userID,
		Progress: map[string]any{},
		JoinedAt: now,
	})
	if err != nil {
		return nil, false, fmt.Errorf("join event: %w", err)
	}
	ue, err := e.events.FindParticipation(ctx, tx, userID, eventID)
	if err != nil {
		return nil, false, fmt.Errorf("find participation: %w", err)
	}
	return ue, joined, nil
}

// RecordProgress adds delta under key in every running event the user joined.
// Events that have ended are skipped. The caller must hold the user lock.
func (e *Engine) RecordProgress(ctx context.Context, tx pgx.Tx, userID uuid.UUID, key string, delta int64, now time.Time) ([]domain.UserEvent, error) {
	joined, err := e.events.ListJoinedActive(ctx, tx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("list joined events: %w", err)
	}
	if len(joined) == 0 {
		return nil, nil
	}

	var touched []domain.UserEvent
	for i := range joined {
		ue := &joined[i]
		ev, err := e.events.FindByID(ctx, tx, ue.EventID)
		if err != nil {
			return nil, fmt.Errorf("find event: %w", err)
		}
		if ev == nil || !ev.ActiveAt(now) {
			continue
		}
		ue.Progress[key] = ue.ProgressValue(key) + delta
		markCompleted(ue, ev, now)
		if err := e.events.SaveParticipation(ctx, tx, ue); err != nil {
			return nil, fmt.Errorf("save participation: %w", err)
		}
		touched = append(touched, *ue)
	}
	return touched, nil
}

// SetProgress stores value under key for one event. Updates arriving after
// the event ended are dropped without error and return nil.
func (e *Engine) SetProgress(ctx context.Context, tx pgx.Tx, userID, eventID uuid.UUID, key string, value int64, now time.Time) (*domain.UserEvent, error) {
	if _, err := e.ledger.LockUserForUpdate(ctx, tx, userID); err != nil {
		return nil, err
	}

	ev, err := e.events.FindByID(ctx, tx, eventID)
	if err != nil {
		return nil, fmt.Errorf("find event: %w", err)
	}
	if ev == nil {
		return nil, domain.ErrNotFound("event", eventID.String())
	}
	ue, err := e.events.FindParticipation(ctx, tx, userID, eventID)
	if err != nil {
		return nil, fmt.Errorf("find participation: %w", err)
	}
	if ue == nil {
		return nil, domain.ErrNotFound("participation", eventID.String())
	}
	if now.After(ev.EndDate) || ev.Finalized {
		e.logger.Debug("dropping late event progress", "event_id", eventID, "user_id", userID, "key", key)
		return nil, nil
	}

	ue.Progress[key] = value
	markCompleted(ue, ev, now)
	if err := e.events.SaveParticipation(ctx, tx, ue); err != nil {
		return nil, fmt.Errorf("save participation: %w", err)
	}
	return ue, nil
}

// Active returns the user's participations in running events.
func (e *Engine) Active(ctx context.Context, db repository.DBTX, userID uuid.UUID, now time.Time) ([]domain.UserEvent, error) {
	out, err := e.events.ListJoinedActive(ctx, db, userID, now)
	if err != nil {
		return nil, fmt.Errorf("list joined events: %w", err)
	}
	return out, nil
}

// MetTiers returns the tiers whose threshold the participation reached.
func MetTiers(ev *domain.SpecialEvent, ue *domain.UserEvent) []domain.RewardTier {
	var met []domain.RewardTier
	for _, t := range ev.RewardTiers {
		if ue.ProgressValue(t.Key) >= t.Threshold {
			met = append(met, t)
		}
	}
	return met
}

func markCompleted(ue *domain.UserEvent, ev *domain.SpecialEvent, now time.Time) {
	if ue.CompletedAt != nil || len(ev.RewardTiers) == 0 {
		return
	}
	if len(MetTiers(ev, ue)) == len(ev.RewardTiers) {
		at := now
		ue.CompletedAt = &at
	}
}

// Finalize pays every participant the tiers they reached, then flips the
// event's finalized flag. Each participant is paid in its own transaction
// under a per-tier ledger key, so a run interrupted halfway can be repeated.
func (e *Engine) Finalize(ctx context.Context, eventID uuid.UUID, now time.Time) (*domain.FinalizeResult, error) {
	var ev *domain.SpecialEvent
	var participants []uuid.UUID
	err := e.runner.InReadTx(ctx, func(tx pgx.Tx) error {
		var err error
		ev, err = e.events.FindByID(ctx, tx, eventID)
		if err != nil || ev == nil {
			return err
		}
		participants, err = e.events.ListParticipants(ctx, tx, eventID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	if ev == nil {
		return nil, domain.ErrNotFound("event", eventID.String())
	}

	result := &domain.FinalizeResult{EventID: eventID, Participants: len(participants)}
	if ev.Finalized {
		result.AlreadyDone = true
		return result, nil
	}
	if !now.After(ev.EndDate) {
		return nil, domain.ErrConflict(fmt.Sprintf("event %s has not ended", eventID))
	}

	for _, userID := range participants {
		var grants int
		var points int64
		err := e.runner.InTx(ctx, func(tx pgx.Tx) error {
			var err error
			grants, points, err = e.payParticipant(ctx, tx, ev, userID, now)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("finalize participant %s: %w", userID, err)
		}
		result.RewardsGrants += grants
		result.PointsAwarded += points
	}

	err = e.runner.InTx(ctx, func(tx pgx.Tx) error {
		flipped, err := e.events.MarkFinalized(ctx, tx, eventID, now)
		if err != nil {
			return err
		}
		if !flipped {
			result.AlreadyDone = true
			return nil
		}
		return e.outbox.Insert(ctx, tx, domain.NewEventFinalizedEvent(result, now))
	})
	if err != nil {
		return nil, fmt.Errorf("mark finalized: %w", err)
	}

	e.logger.Info("special event finalized",
		"event_id", eventID,
		"participants", result.Participants,
		"rewards_granted", result.RewardsGrants,
		"points_awarded", result.PointsAwarded)
	return result, nil
}

func (e *Engine) payParticipant(ctx context.Context, tx pgx.Tx, ev *domain.SpecialEvent, userID uuid.UUID, now time.Time) (int, int64, error) {
	if _, err := e.ledger.LockUserForUpdate(ctx, tx, userID); err != nil {
		return 0, 0, err
	}
	ue, err := e.events.FindParticipation(ctx, tx, userID, ev.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("find participation: %w", err)
	}
	if ue == nil {
		return 0, 0, nil
	}

	var grants int
	var points int64
	for _, tier := range MetTiers(ev, ue) {
		if ue.HasReward(tier.ID) {
			continue
		}
		award, err := e.ledger.Award(ctx, tx, domain.AwardParams{
			UserID:        userID,
			Amount:        tier.Points,
			Reason:        domain.ReasonEventReward,
			SourceEventID: fmt.Sprintf("event:%s:%s", ev.ID, tier.ID),
			Metadata:      ledger.Meta(map[string]interface{}{"event_id": ev.ID, "tier_id": tier.ID}),
			At:            now,
		})
		if err != nil {
			return 0, 0, err
		}
		ue.RewardsGranted = append(ue.RewardsGranted, tier.ID)
		if !award.Applied {
			continue
		}
		grants++
		points += tier.Points
		if err := e.outbox.Insert(ctx, tx, domain.NewEventRewardGrantedEvent(userID, ev.ID, tier, now)); err != nil {
			return 0, 0, fmt.Errorf("insert reward event: %w", err)
		}
	}
	if err := e.events.SaveParticipation(ctx, tx, ue); err != nil {
		return 0, 0, fmt.Errorf("save participation: %w", err)
	}
	return grants, points, nil
}

// FinalizeEnded finalizes every event that has ended and is not finalized yet.
func (e *Engine) FinalizeEnded(ctx context.Context, now time.Time) ([]domain.FinalizeResult, error) {
	var ended []domain.SpecialEvent
	err := e.runner.InReadTx(ctx, func(tx pgx.Tx) error {
		var err error
		ended, err = e.events.ListEndedUnfinalized(ctx, tx, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list ended events: %w", err)
	}

	out := make([]domain.FinalizeResult, 0, len(ended))
	for _, ev := range ended {
		res, err := e.Finalize(ctx, ev.ID, now)
		if err != nil {
			return out, err
		}
		out = append(out, *res)
	}
	return out, nil
}
