package domain

import (
	"time"

	"github.com/google/uuid"
)

// WeeklyChallenge represents a weekly_challenges catalog row.
type WeeklyChallenge struct {
	ID           uuid.UUID `json:"id" toml:"id"`
	Title        string    `json:"title" toml:"title"`
	Description  string    `json:"description" toml:"description"`
	Category     Category  `json:"category" toml:"category"`
	Goal         int       `json:"goal" toml:"goal"`
	PointsReward int64     `json:"points_reward" toml:"points_reward"`
	Active       bool      `json:"active" toml:"active"`
	CreatedAt    time.Time `json:"created_at" toml:"-"`
}

// ChallengeProgress represents a challenge_progress row, one per user, challenge and week.
type ChallengeProgress struct {
	ChallengeID   uuid.UUID  `json:"challenge_id"`
	UserID        uuid.UUID  `json:"user_id"`
	WeekKey       string     `json:"week_key"`
	Title         string     `json:"title,omitempty"`
	Category      Category   `json:"category"`
	Progress      int        `json:"progress"`
	Goal          int        `json:"goal"`
	PointsReward  int64      `json:"points_reward"`
	IsCompleted   bool       `json:"is_completed"`
	RewardClaimed bool       `json:"reward_claimed"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ClaimResult is returned by the challenge and mission claim operations.
type ClaimResult struct {
	PointsAwarded int64 `json:"points_awarded"`
	Balance       int64 `json:"balance"`
	Applied       bool  `json:"applied"`
}
