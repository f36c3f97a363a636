package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const eventColumns = `id, title, description, start_date, end_date, reward_tiers, finalized, finalized_at, created_at`

type eventRepo struct{}

// NewEventRepository returns a pgx-backed EventRepository.
func NewEventRepository() EventRepository {
	return &eventRepo{}
}

func (r *eventRepo) Create(ctx context.Context, db DBTX, e *domain.SpecialEvent) error {
	tiers, err := json.Marshal(e.RewardTiers)
	if err != nil {
		return fmt.Errorf("marshal reward tiers: %w", err)
	}
	_, err = db.Exec(ctx, `
		INSERT INTO special_events (id, title, description, start_date, end_date, reward_tiers)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Title, e.Description, e.StartDate, e.EndDate, tiers)
	if err != nil {
		return fmt.Errorf("insert special event: %w", err)
	}
	return nil
}

func (r *eventRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.SpecialEvent, error) {
	row := db.QueryRow(ctx, `SELECT `+eventColumns+` FROM special_events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (r *eventRepo) ListEndedUnfinalized(ctx context.Context, db DBTX, now time.Time) ([]domain.SpecialEvent, error) {
	rows, err := db.Query(ctx, `
		SELECT `+eventColumns+`
		FROM special_events
		WHERE NOT finalized AND end_date < $1
		ORDER BY end_date, id`, now)
	if err != nil {
		return nil, fmt.Errorf("query ended events: %w", err)
	}
	defer rows.Close()

	var out []domain.SpecialEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *eventRepo) MarkFinalized(ctx context.Context, db DBTX, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE special_events SET finalized = true, finalized_at = $2
		WHERE id = $1 AND NOT finalized`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark event finalized: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *eventRepo) Join(ctx context.Context, db DBTX, ue *domain.UserEvent) (bool, error) {
	tag, err := db.Exec(ctx, `
		INSERT INTO user_events (event_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id, user_id) DO NOTHING`,
		ue.EventID, ue.UserID, ue.JoinedAt)
	if err != nil {
		return false, fmt.Errorf("join event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const participationSelect = `
	SELECT ue.event_id, ue.user_id, e.title, ue.progress, ue.rewards_granted,
	       ue.joined_at, ue.completed_at, e.end_date
	FROM user_events ue
	JOIN special_events e ON e.id = ue.event_id`

func (r *eventRepo) FindParticipation(ctx context.Context, db DBTX, userID, eventID uuid.UUID) (*domain.UserEvent, error) {
	row := db.QueryRow(ctx, participationSelect+`
		WHERE ue.user_id = $1 AND ue.event_id = $2`, userID, eventID)
	ue, err := scanParticipation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return ue, err
}

func (r *eventRepo) ListJoinedActive(ctx context.Context, db DBTX, userID uuid.UUID, now time.Time) ([]domain.UserEvent, error) {
	rows, err := db.Query(ctx, participationSelect+`
		WHERE ue.user_id = $1 AND e.start_date <= $2 AND e.end_date >= $2
		ORDER BY e.end_date, ue.event_id`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("query joined events: %w", err)
	}
	defer rows.Close()

	var out []domain.UserEvent
	for rows.Next() {
		ue, err := scanParticipation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ue)
	}
	return out, rows.Err()
}

func (r *eventRepo) SaveParticipation(ctx context.Context, db DBTX, ue *domain.UserEvent) error {
	progress, err := json.Marshal(ue.Progress)
	if err != nil {
		return fmt.Errorf("marshal event progress: %w", err)
	}
	granted, err := json.Marshal(ue.RewardsGranted)
	if err != nil {
		return fmt.Errorf("marshal rewards granted: %w", err)
	}
	_, err = db.Exec(ctx, `
		UPDATE user_events SET progress = $3, rewards_granted = $4, completed_at = $5
		WHERE event_id = $1 AND user_id = $2`,
		ue.EventID, ue.UserID, progress, granted, ue.CompletedAt)
	if err != nil {
		return fmt.Errorf("save participation: %w", err)
	}
	return nil
}

func (r *eventRepo) ListParticipants(ctx context.Context, db DBTX, eventID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := db.Query(ctx, `
		SELECT user_id FROM user_events WHERE event_id = $1 ORDER BY user_id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func scanEvent(row scanner) (*domain.SpecialEvent, error) {
	var e domain.SpecialEvent
	var tiers []byte
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &e.StartDate, &e.EndDate, &tiers,
		&e.Finalized, &e.FinalizedAt, &e.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan special event: %w", err)
	}
	if err := json.Unmarshal(tiers, &e.RewardTiers); err != nil {
		return nil, fmt.Errorf("decode reward tiers: %w", err)
	}
	return &e, nil
}

func scanParticipation(row scanner) (*domain.UserEvent, error) {
	var ue domain.UserEvent
	var progress, granted []byte
	if err := row.Scan(&ue.EventID, &ue.UserID, &ue.Title, &progress, &granted,
		&ue.JoinedAt, &ue.CompletedAt, &ue.EndDate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan participation: %w", err)
	}
	ue.Progress = map[string]any{}
	if err := json.Unmarshal(progress, &ue.Progress); err != nil {
		return nil, fmt.Errorf("decode event progress: %w", err)
	}
	if err := json.Unmarshal(granted, &ue.RewardsGranted); err != nil {
		return nil, fmt.Errorf("decode rewards granted: %w", err)
	}
	return &ue, nil
}
