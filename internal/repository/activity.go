package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/jackc/pgx/v5"
)

type activityRepo struct{}

// NewActivityRepository returns a pgx-backed ActivityRepository.
func NewActivityRepository() ActivityRepository {
	return &activityRepo{}
}

func (r *activityRepo) MarkProcessed(ctx context.Context, tx pgx.Tx, evt domain.ActivityEvent) (bool, error) {
	var occurredAt *time.Time
	if !evt.OccurredAt.IsZero() {
		occurredAt = &evt.OccurredAt
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO activity_events (event_id, user_id, kind, occurred_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING`,
		evt.EventID, evt.UserID, string(evt.Kind), occurredAt)
	if err != nil {
		return false, fmt.Errorf("mark activity processed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
