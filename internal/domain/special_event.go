package domain

import (
	"time"

	"github.com/google/uuid"
)

// RewardTier pays Points to every participant whose progress[Key] reaches Threshold.
type RewardTier struct {
	ID        string `json:"id" toml:"id"`
	Key       string `json:"key" toml:"key"`
	Threshold int64  `json:"threshold" toml:"threshold"`
	Points    int64  `json:"points" toml:"points"`
}

// SpecialEvent represents a special_events catalog row.
type SpecialEvent struct {
	ID          uuid.UUID    `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	StartDate   time.Time    `json:"start_date"`
	EndDate     time.Time    `json:"end_date"`
	RewardTiers []RewardTier `json:"reward_tiers"`
	Finalized   bool         `json:"finalized"`
	FinalizedAt *time.Time   `json:"finalized_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ActiveAt reports whether now lies within [StartDate, EndDate].
func (e *SpecialEvent) ActiveAt(now time.Time) bool {
	return !now.Before(e.StartDate) && !now.After(e.EndDate)
}

// UserEvent represents a user_events row (participation).
type UserEvent struct {
	EventID        uuid.UUID      `json:"event_id"`
	UserID         uuid.UUID      `json:"user_id"`
	Title          string         `json:"title,omitempty"`
	Progress       map[string]any `json:"progress"`
	RewardsGranted []string       `json:"rewards_granted"`
	JoinedAt       time.Time      `json:"joined_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	EndDate        time.Time      `json:"end_date"`
}

// ProgressValue returns the numeric progress stored under key, or 0.
func (u *UserEvent) ProgressValue(key string) int64 {
	switch v := u.Progress[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// HasReward reports whether the tier was already granted.
func (u *UserEvent) HasReward(tierID string) bool {
	for _, id := range u.RewardsGranted {
		if id == tierID {
			return true
		}
	}
	return false
}

// FinalizeResult summarizes an event finalization run.
type FinalizeResult struct {
	EventID       uuid.UUID `json:"event_id"`
	Participants  int       `json:"participants"`
	RewardsGrants int       `json:"rewards_granted"`
	PointsAwarded int64     `json:"points_awarded"`
	AlreadyDone   bool      `json:"already_finalized"`
}
