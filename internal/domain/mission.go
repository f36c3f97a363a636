package domain

import (
	"time"

	"github.com/google/uuid"
)

// DailyMission represents a daily_missions catalog row.
type DailyMission struct {
	ID           uuid.UUID `json:"id" toml:"id"`
	Title        string    `json:"title" toml:"title"`
	Description  string    `json:"description" toml:"description"`
	Category     Category  `json:"category" toml:"category"`
	Goal         int       `json:"goal" toml:"goal"`
	PointsReward int64     `json:"points_reward" toml:"points_reward"`
	Active       bool      `json:"active" toml:"active"`
}

// UserMission represents a user_missions row: one assignment per user, mission and day.
type UserMission struct {
	ID            uuid.UUID `json:"id"`
	MissionID     uuid.UUID `json:"mission_id"`
	UserID        uuid.UUID `json:"user_id"`
	Day           string    `json:"day"`
	Title         string    `json:"title,omitempty"`
	Category      Category  `json:"category"`
	Progress      int       `json:"progress"`
	Goal          int       `json:"goal"`
	PointsReward  int64     `json:"points_reward"`
	IsCompleted   bool      `json:"is_completed"`
	RewardClaimed bool      `json:"reward_claimed"`
	Expired       bool      `json:"expired"`
	AssignedAt    time.Time `json:"assigned_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// ExpiredAt reports whether the mission can no longer progress or be claimed at now.
func (m *UserMission) ExpiredAt(now time.Time) bool {
	return m.Expired || !now.Before(m.ExpiresAt)
}
