package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/babysteps/progression/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// scanner is satisfied by pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

const progressionColumns = `user_id, balance, total_activities, total_memories, total_milestones,
	total_logins, timezone, created_at, updated_at`

type progressionRepo struct{}

// NewProgressionRepository returns a pgx-backed ProgressionRepository.
func NewProgressionRepository() ProgressionRepository {
	return &progressionRepo{}
}

func (r *progressionRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.UserProgression, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO user_progression (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return nil, fmt.Errorf("ensure progression row: %w", err)
	}
	row := tx.QueryRow(ctx, `
		SELECT `+progressionColumns+`
		FROM user_progression WHERE user_id = $1 FOR UPDATE`, userID)
	return scanProgression(row)
}

func (r *progressionRepo) Find(ctx context.Context, db DBTX, userID uuid.UUID) (*domain.UserProgression, error) {
	row := db.QueryRow(ctx, `
		SELECT `+progressionColumns+`
		FROM user_progression WHERE user_id = $1`, userID)
	return scanProgression(row)
}

// ApplyBalance uses server-side arithmetic guarded by the non-negative invariant.
func (r *progressionRepo) ApplyBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, delta int64) (*domain.UserProgression, error) {
	row := tx.QueryRow(ctx, `
		UPDATE user_progression
		SET balance = balance + $2, updated_at = now()
		WHERE user_id = $1 AND balance + $2 >= 0
		RETURNING `+progressionColumns, userID, delta)
	return scanProgression(row)
}

func (r *progressionRepo) IncrementCounters(ctx context.Context, tx pgx.Tx, userID uuid.UUID, d domain.CounterDelta) error {
	if d.IsZero() {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE user_progression
		SET total_activities = total_activities + $2,
		    total_memories   = total_memories + $3,
		    total_milestones = total_milestones + $4,
		    total_logins     = total_logins + $5,
		    updated_at       = now()
		WHERE user_id = $1`,
		userID, d.Activities, d.Memories, d.Milestones, d.Logins)
	if err != nil {
		return fmt.Errorf("increment counters: %w", err)
	}
	return nil
}

func (r *progressionRepo) SetTimezone(ctx context.Context, db DBTX, userID uuid.UUID, tz string) error {
	_, err := db.Exec(ctx, `
		INSERT INTO user_progression (user_id, timezone) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET timezone = EXCLUDED.timezone, updated_at = now()`,
		userID, tz)
	if err != nil {
		return fmt.Errorf("set timezone: %w", err)
	}
	return nil
}

func (r *progressionRepo) ListUserIDs(ctx context.Context, db DBTX) ([]uuid.UUID, error) {
	rows, err := db.Query(ctx, `SELECT user_id FROM user_progression ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query user ids: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func scanProgression(row scanner) (*domain.UserProgression, error) {
	var p domain.UserProgression
	err := row.Scan(&p.UserID, &p.Balance, &p.TotalActivities, &p.TotalMemories, &p.TotalMilestones,
		&p.TotalLogins, &p.Timezone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan progression: %w", err)
	}
	return &p, nil
}
