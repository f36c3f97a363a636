package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// GamificationRankingEntry is one row of a weekly leaderboard. Rank is computed on read.
type GamificationRankingEntry struct {
	UserID  uuid.UUID `json:"user_id"`
	WeekKey string    `json:"week_key"`
	Points  int64     `json:"points"`
	Rank    int       `json:"rank"`
	// FirstEntryAt is the user's earliest transaction in the week; ties break on it.
	FirstEntryAt time.Time `json:"-"`
}

// SortRankingEntries orders entries by points descending, then by earliest
// entry, then by user id so the order never depends on input order.
func SortRankingEntries(entries []GamificationRankingEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if !a.FirstEntryAt.Equal(b.FirstEntryAt) {
			return a.FirstEntryAt.Before(b.FirstEntryAt)
		}
		return a.UserID.String() < b.UserID.String()
	})
}
