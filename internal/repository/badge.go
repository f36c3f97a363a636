package repository

import (
	"context"
	"fmt"

	"github.com/babysteps/progression/internal/domain"
	"github.com/google/uuid"
)

type ruleRepo struct{}

// NewRuleRepository returns a pgx-backed RuleRepository.
func NewRuleRepository() RuleRepository {
	return &ruleRepo{}
}

func (r *ruleRepo) List(ctx context.Context, db DBTX, activeOnly bool) ([]domain.GamificationRule, error) {
	rows, err := db.Query(ctx, `
		SELECT id, name, description, icon, condition, points_reward, active, created_at
		FROM gamification_rules
		WHERE active OR NOT $1
		ORDER BY id`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.GamificationRule
	for rows.Next() {
		var g domain.GamificationRule
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.Icon, &g.Condition,
			&g.PointsReward, &g.Active, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, g)
	}
	return rules, rows.Err()
}

func (r *ruleRepo) Upsert(ctx context.Context, db DBTX, g *domain.GamificationRule) error {
	_, err := db.Exec(ctx, `
		INSERT INTO gamification_rules (id, name, description, icon, condition, points_reward, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, description = EXCLUDED.description, icon = EXCLUDED.icon,
		    condition = EXCLUDED.condition, points_reward = EXCLUDED.points_reward,
		    active = EXCLUDED.active`,
		g.ID, g.Name, g.Description, g.Icon, g.Condition, g.PointsReward, g.Active)
	if err != nil {
		return fmt.Errorf("upsert rule: %w", err)
	}
	return nil
}

type badgeRepo struct{}

// NewBadgeRepository returns a pgx-backed BadgeRepository.
func NewBadgeRepository() BadgeRepository {
	return &badgeRepo{}
}

func (r *badgeRepo) ListByUser(ctx context.Context, db DBTX, userID uuid.UUID) ([]domain.Badge, error) {
	rows, err := db.Query(ctx, `
		SELECT user_id, badge_id, earned_at
		FROM user_badges WHERE user_id = $1
		ORDER BY earned_at, badge_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query badges: %w", err)
	}
	defer rows.Close()

	var badges []domain.Badge
	for rows.Next() {
		var b domain.Badge
		if err := rows.Scan(&b.UserID, &b.BadgeID, &b.EarnedAt); err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

func (r *badgeRepo) Insert(ctx context.Context, db DBTX, b domain.Badge) (bool, error) {
	tag, err := db.Exec(ctx, `
		INSERT INTO user_badges (user_id, badge_id, earned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, badge_id) DO NOTHING`,
		b.UserID, b.BadgeID, b.EarnedAt)
	if err != nil {
		return false, fmt.Errorf("insert badge: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
