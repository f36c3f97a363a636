package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const challengeColumns = `id, title, description, category, goal, points_reward, active, created_at`

type challengeRepo struct{}

// NewChallengeRepository returns a pgx-backed ChallengeRepository.
func NewChallengeRepository() ChallengeRepository {
	return &challengeRepo{}
}

func (r *challengeRepo) List(ctx context.Context, db DBTX, activeOnly bool) ([]domain.WeeklyChallenge, error) {
	rows, err := db.Query(ctx, `
		SELECT `+challengeColumns+`
		FROM weekly_challenges
		WHERE active OR NOT $1
		ORDER BY id`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("query challenges: %w", err)
	}
	defer rows.Close()
	return collectChallenges(rows)
}

func (r *challengeRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.WeeklyChallenge, error) {
	row := db.QueryRow(ctx, `SELECT `+challengeColumns+` FROM weekly_challenges WHERE id = $1`, id)
	c, err := scanChallenge(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *challengeRepo) Upsert(ctx context.Context, db DBTX, c *domain.WeeklyChallenge) error {
	_, err := db.Exec(ctx, `
		INSERT INTO weekly_challenges (id, title, description, category, goal, points_reward, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, description = EXCLUDED.description, category = EXCLUDED.category,
		    goal = EXCLUDED.goal, points_reward = EXCLUDED.points_reward, active = EXCLUDED.active`,
		c.ID, c.Title, c.Description, string(c.Category), c.Goal, c.PointsReward, c.Active)
	if err != nil {
		return fmt.Errorf("upsert challenge: %w", err)
	}
	return nil
}

func (r *challengeRepo) Schedule(ctx context.Context, db DBTX, weekKey string, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.Exec(ctx, `
		INSERT INTO weekly_challenge_schedule (week_key, challenge_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT DO NOTHING`, weekKey, ids)
	if err != nil {
		return fmt.Errorf("schedule challenges: %w", err)
	}
	return nil
}

func (r *challengeRepo) ListScheduled(ctx context.Context, db DBTX, weekKey string) ([]domain.WeeklyChallenge, error) {
	rows, err := db.Query(ctx, `
		SELECT c.id, c.title, c.description, c.category, c.goal, c.points_reward, c.active, c.created_at
		FROM weekly_challenge_schedule s
		JOIN weekly_challenges c ON c.id = s.challenge_id
		WHERE s.week_key = $1 AND c.active
		ORDER BY c.id`, weekKey)
	if err != nil {
		return nil, fmt.Errorf("query scheduled challenges: %w", err)
	}
	defer rows.Close()
	return collectChallenges(rows)
}

const progressSelect = `
	SELECT p.challenge_id, p.user_id, p.week_key, c.title, c.category, p.progress, p.goal,
	       c.points_reward, p.is_completed, p.reward_claimed, p.claimed_at, p.updated_at
	FROM challenge_progress p
	JOIN weekly_challenges c ON c.id = p.challenge_id`

func (r *challengeRepo) FindProgress(ctx context.Context, db DBTX, userID, challengeID uuid.UUID, weekKey string) (*domain.ChallengeProgress, error) {
	row := db.QueryRow(ctx, progressSelect+`
		WHERE p.user_id = $1 AND p.challenge_id = $2 AND p.week_key = $3`,
		userID, challengeID, weekKey)
	p, err := scanProgress(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *challengeRepo) ListProgress(ctx context.Context, db DBTX, userID uuid.UUID, weekKey string) ([]domain.ChallengeProgress, error) {
	rows, err := db.Query(ctx, progressSelect+`
		WHERE p.user_id = $1 AND p.week_key = $2
		ORDER BY c.title, p.challenge_id`, userID, weekKey)
	if err != nil {
		return nil, fmt.Errorf("query challenge progress: %w", err)
	}
	defer rows.Close()

	var out []domain.ChallengeProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *challengeRepo) SaveProgress(ctx context.Context, db DBTX, p *domain.ChallengeProgress) error {
	_, err := db.Exec(ctx, `
		INSERT INTO challenge_progress (user_id, challenge_id, week_key, progress, goal, is_completed, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, challenge_id, week_key) DO UPDATE
		SET progress = EXCLUDED.progress, is_completed = EXCLUDED.is_completed,
		    updated_at = EXCLUDED.updated_at`,
		p.UserID, p.ChallengeID, p.WeekKey, p.Progress, p.Goal, p.IsCompleted, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save challenge progress: %w", err)
	}
	return nil
}

func (r *challengeRepo) MarkClaimed(ctx context.Context, db DBTX, userID, challengeID uuid.UUID, weekKey string, at time.Time) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE challenge_progress
		SET reward_claimed = true, claimed_at = $4, updated_at = $4
		WHERE user_id = $1 AND challenge_id = $2 AND week_key = $3
		  AND is_completed AND NOT reward_claimed`,
		userID, challengeID, weekKey, at)
	if err != nil {
		return false, fmt.Errorf("mark challenge claimed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanChallenge(row scanner) (*domain.WeeklyChallenge, error) {
	var c domain.WeeklyChallenge
	if err := row.Scan(&c.ID, &c.Title, &c.Description, &c.Category, &c.Goal,
		&c.PointsReward, &c.Active, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan challenge: %w", err)
	}
	return &c, nil
}

func collectChallenges(rows pgx.Rows) ([]domain.WeeklyChallenge, error) {
	var out []domain.WeeklyChallenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanProgress(row scanner) (*domain.ChallengeProgress, error) {
	var p domain.ChallengeProgress
	if err := row.Scan(&p.ChallengeID, &p.UserID, &p.WeekKey, &p.Title, &p.Category, &p.Progress,
		&p.Goal, &p.PointsReward, &p.IsCompleted, &p.RewardClaimed, &p.ClaimedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan challenge progress: %w", err)
	}
	return &p, nil
}
