package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/babysteps/progression/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type streakRepo struct{}

// NewStreakRepository returns a pgx-backed StreakRepository.
func NewStreakRepository() StreakRepository {
	return &streakRepo{}
}

func (r *streakRepo) Find(ctx context.Context, db DBTX, userID uuid.UUID, category domain.Category) (*domain.Streak, error) {
	row := db.QueryRow(ctx, `
		SELECT user_id, category, current, longest, last_day
		FROM user_streaks WHERE user_id = $1 AND category = $2`, userID, string(category))
	return scanStreak(row)
}

func (r *streakRepo) ListByUser(ctx context.Context, db DBTX, userID uuid.UUID) ([]domain.Streak, error) {
	rows, err := db.Query(ctx, `
		SELECT user_id, category, current, longest, last_day
		FROM user_streaks WHERE user_id = $1 ORDER BY category`, userID)
	if err != nil {
		return nil, fmt.Errorf("query streaks: %w", err)
	}
	defer rows.Close()

	var streaks []domain.Streak
	for rows.Next() {
		s, err := scanStreak(rows)
		if err != nil {
			return nil, err
		}
		streaks = append(streaks, *s)
	}
	return streaks, rows.Err()
}

func (r *streakRepo) Upsert(ctx context.Context, db DBTX, s *domain.Streak) error {
	_, err := db.Exec(ctx, `
		INSERT INTO user_streaks (user_id, category, current, longest, last_day)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, category) DO UPDATE
		SET current = EXCLUDED.current, longest = EXCLUDED.longest, last_day = EXCLUDED.last_day`,
		s.UserID, string(s.Category), s.Current, s.Longest, s.LastDay)
	if err != nil {
		return fmt.Errorf("upsert streak: %w", err)
	}
	return nil
}

func scanStreak(row scanner) (*domain.Streak, error) {
	var s domain.Streak
	if err := row.Scan(&s.UserID, &s.Category, &s.Current, &s.Longest, &s.LastDay); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan streak: %w", err)
	}
	return &s, nil
}
