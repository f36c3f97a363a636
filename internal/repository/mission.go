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

type missionRepo struct{}

// NewMissionRepository returns a pgx-backed MissionRepository.
func NewMissionRepository() MissionRepository {
	return &missionRepo{}
}

func (r *missionRepo) List(ctx context.Context, db DBTX, activeOnly bool) ([]domain.DailyMission, error) {
	rows, err := db.Query(ctx, `
		SELECT id, title, description, category, goal, points_reward, active
		FROM daily_missions
		WHERE active OR NOT $1
		ORDER BY id`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("query missions: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyMission
	for rows.Next() {
		var m domain.DailyMission
		if err := rows.Scan(&m.ID, &m.Title, &m.Description, &m.Category, &m.Goal,
			&m.PointsReward, &m.Active); err != nil {
			return nil, fmt.Errorf("scan mission: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *missionRepo) Upsert(ctx context.Context, db DBTX, m *domain.DailyMission) error {
	_, err := db.Exec(ctx, `
		INSERT INTO daily_missions (id, title, description, category, goal, points_reward, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, description = EXCLUDED.description, category = EXCLUDED.category,
		    goal = EXCLUDED.goal, points_reward = EXCLUDED.points_reward, active = EXCLUDED.active`,
		m.ID, m.Title, m.Description, string(m.Category), m.Goal, m.PointsReward, m.Active)
	if err != nil {
		return fmt.Errorf("upsert mission: %w", err)
	}
	return nil
}

const userMissionSelect = `
	SELECT um.id, um.mission_id, um.user_id, um.day::text, m.title, m.category, um.progress, um.goal,
	       um.points_reward, um.is_completed, um.reward_claimed, um.expired, um.assigned_at, um.expires_at
	FROM user_missions um
	JOIN daily_missions m ON m.id = um.mission_id`

func (r *missionRepo) ListForDay(ctx context.Context, db DBTX, userID uuid.UUID, day string) ([]domain.UserMission, error) {
	rows, err := db.Query(ctx, userMissionSelect+`
		WHERE um.user_id = $1 AND um.day = $2::date
		ORDER BY m.title, um.mission_id`, userID, day)
	if err != nil {
		return nil, fmt.Errorf("query user missions: %w", err)
	}
	defer rows.Close()

	var out []domain.UserMission
	for rows.Next() {
		m, err := scanUserMission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *missionRepo) Assign(ctx context.Context, db DBTX, missions []domain.UserMission) error {
	for _, m := range missions {
		_, err := db.Exec(ctx, `
			INSERT INTO user_missions (user_id, mission_id, day, goal, points_reward, assigned_at, expires_at)
			VALUES ($1, $2, $3::date, $4, $5, $6, $7)
			ON CONFLICT (user_id, mission_id, day) DO NOTHING`,
			m.UserID, m.MissionID, m.Day, m.Goal, m.PointsReward, m.AssignedAt, m.ExpiresAt)
		if err != nil {
			return fmt.Errorf("assign mission %s: %w", m.MissionID, err)
		}
	}
	return nil
}

func (r *missionRepo) FindLatest(ctx context.Context, db DBTX, userID, missionID uuid.UUID) (*domain.UserMission, error) {
	row := db.QueryRow(ctx, userMissionSelect+`
		WHERE um.user_id = $1 AND um.mission_id = $2
		ORDER BY um.day DESC
		LIMIT 1`, userID, missionID)
	m, err := scanUserMission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *missionRepo) SaveProgress(ctx context.Context, db DBTX, m *domain.UserMission) error {
	_, err := db.Exec(ctx, `
		UPDATE user_missions SET progress = $2, is_completed = $3
		WHERE id = $1 AND NOT expired`,
		m.ID, m.Progress, m.IsCompleted)
	if err != nil {
		return fmt.Errorf("save mission progress: %w", err)
	}
	return nil
}

func (r *missionRepo) MarkClaimed(ctx context.Context, db DBTX, id uuid.UUID) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE user_missions SET reward_claimed = true
		WHERE id = $1 AND is_completed AND NOT reward_claimed AND NOT expired`, id)
	if err != nil {
		return false, fmt.Errorf("mark mission claimed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *missionRepo) ExpireBefore(ctx context.Context, db DBTX, now time.Time) (int64, error) {
	tag, err := db.Exec(ctx, `
		UPDATE user_missions SET expired = true
		WHERE NOT expired AND NOT reward_claimed AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("expire missions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanUserMission(row scanner) (*domain.UserMission, error) {
	var m domain.UserMission
	if err := row.Scan(&m.ID, &m.MissionID, &m.UserID, &m.Day, &m.Title, &m.Category, &m.Progress,
		&m.Goal, &m.PointsReward, &m.IsCompleted, &m.RewardClaimed, &m.Expired,
		&m.AssignedAt, &m.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan user mission: %w", err)
	}
	return &m, nil
}
