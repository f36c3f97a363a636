package domain

import (
	"time"

	"github.com/google/uuid"
)

// GamificationRule represents a gamification_rules row. A rule awards the badge
// with the same ID once its condition holds.
type GamificationRule struct {
	ID           string    `json:"id" toml:"id"`
	Name         string    `json:"name" toml:"name"`
	Description  string    `json:"description" toml:"description"`
	Icon         string    `json:"icon" toml:"icon"`
	Condition    string    `json:"condition" toml:"condition"`
	PointsReward int64     `json:"points_reward" toml:"points_reward"`
	Active       bool      `json:"active" toml:"active"`
	CreatedAt    time.Time `json:"created_at" toml:"-"`
}

// Badge represents a user_badges row.
type Badge struct {
	UserID   uuid.UUID `json:"user_id"`
	BadgeID  string    `json:"badge_id"`
	EarnedAt time.Time `json:"earned_at"`
}
