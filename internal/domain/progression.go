package domain

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies user activity for streaks, challenges, missions and events.
type Category string

const (
	CategoryLogin     Category = "login"
	CategoryMemory    Category = "memory"
	CategoryActivity  Category = "activity"
	CategoryMilestone Category = "milestone"
)

// StreakCategories are the categories that maintain consecutive-day streaks.
var StreakCategories = []Category{CategoryLogin, CategoryMemory, CategoryActivity}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryLogin, CategoryMemory, CategoryActivity, CategoryMilestone:
		return true
	}
	return false
}

// UserProgression represents a user_progression row: the materialized per-user
// aggregate updated in the same transaction as every ledger write.
type UserProgression struct {
	UserID          uuid.UUID `json:"user_id"`
	Balance         int64     `json:"balance"`
	TotalActivities int       `json:"total_activities"`
	TotalMemories   int       `json:"total_memories"`
	TotalMilestones int       `json:"total_milestones"`
	TotalLogins     int       `json:"total_logins"`
	Timezone        string    `json:"timezone"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CounterDelta describes increments to the aggregate activity counters.
type CounterDelta struct {
	Activities int
	Memories   int
	Milestones int
	Logins     int
}

// IsZero reports whether no counter changes.
func (d CounterDelta) IsZero() bool {
	return d.Activities == 0 && d.Memories == 0 && d.Milestones == 0 && d.Logins == 0
}

// Streak represents a user_streaks row.
type Streak struct {
	UserID   uuid.UUID `json:"user_id"`
	Category Category  `json:"category"`
	Current  int       `json:"current"`
	Longest  int       `json:"longest"`
	// LastDay is the civil date of the last counted activity, at 00:00 UTC.
	LastDay time.Time `json:"last_day"`
}

// ProgressionState is the derived per-user view badge rules are evaluated against.
type ProgressionState struct {
	UserID                     uuid.UUID            `json:"user_id"`
	Balance                    int64                `json:"balance"`
	Level                      int                  `json:"level"`
	ProgressToNextLevel        float64              `json:"progress_to_next_level"`
	TotalActivities            int                  `json:"total_activities"`
	TotalMemories              int                  `json:"total_memories"`
	TotalMilestones            int                  `json:"total_milestones"`
	TotalLogins                int                  `json:"total_logins"`
	Streaks                    map[Category]int     `json:"streaks"`
	LongestStreaks             map[Category]int     `json:"longest_streaks"`
	LastActivityDateByCategory map[Category]string  `json:"last_activity_date_by_category"`
	Badges                     map[string]time.Time `json:"badges"`
}

// NewProgressionState returns the lazily-initialized state of a user with no history.
func NewProgressionState(userID uuid.UUID) *ProgressionState {
	return &ProgressionState{
		UserID:                     userID,
		Level:                      1,
		Streaks:                    make(map[Category]int),
		LongestStreaks:             make(map[Category]int),
		LastActivityDateByCategory: make(map[Category]string),
		Badges:                     make(map[string]time.Time),
	}
}

// HasBadge reports whether the user already holds the badge.
func (s *ProgressionState) HasBadge(badgeID string) bool {
	_, ok := s.Badges[badgeID]
	return ok
}
