package domain

import (
	"time"

	"github.com/google/uuid"
)

// EarnedBadge is a badge as shown to the user.
type EarnedBadge struct {
	ID       string    `json:"id"`
	Name     string    `json:"name,omitempty"`
	Icon     string    `json:"icon,omitempty"`
	EarnedAt time.Time `json:"earned_at"`
}

// GamificationSnapshot is the unified response rendered by the UI.
type GamificationSnapshot struct {
	UserID              uuid.UUID                  `json:"user_id"`
	Balance             int64                      `json:"balance"`
	Level               int                        `json:"level"`
	ProgressToNextLevel float64                    `json:"progress_to_next_level"`
	Badges              []EarnedBadge              `json:"badges"`
	Streaks             map[Category]int           `json:"streaks"`
	WeeklyChallenges    []ChallengeProgress        `json:"weekly_challenges"`
	DailyMissions       []UserMission              `json:"daily_missions"`
	ActiveEvents        []UserEvent                `json:"active_events"`
	ShopItems           []ShopItem                 `json:"shop_items"`
	UserPurchases       []UserPurchase             `json:"user_purchases"`
	WeeklyRanking       []GamificationRankingEntry `json:"weekly_ranking"`
	NewBadges           []string                   `json:"new_badges"`
	LevelUp             bool                       `json:"level_up"`
	Duplicate           bool                       `json:"duplicate,omitempty"`
}
