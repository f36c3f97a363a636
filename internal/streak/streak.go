// Package streak maintains per-category consecutive-day counters.
package streak

import (
	"context"
	"fmt"
	"time"

	"github.com/babysteps/progression/internal/calendar"
	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/repository"
	"github.com/google/uuid"
)

// Advance applies an activity on civil date day to s and reports whether s changed.
//   - first touch: streak 1
//   - same day as the last touch: no change
//   - the following day: +1
//   - a later day: reset to 1
//   - an earlier day (out-of-order delivery): ignored
func Advance(s *domain.Streak, day time.Time) bool {
	if s.LastDay.IsZero() || s.Current == 0 {
		s.Current = 1
		s.LastDay = day
		if s.Longest < 1 {
			s.Longest = 1
		}
		return true
	}

	switch gap := calendar.DaysBetween(s.LastDay, day); {
	case gap <= 0:
		return false
	case gap == 1:
		s.Current++
	default:
		s.Current = 1
	}
	s.LastDay = day
	if s.Current > s.Longest {
		s.Longest = s.Current
	}
	return true
}

// Tracker persists streaks. Callers hold the user's row lock.
type Tracker struct {
	streaks repository.StreakRepository
}

// NewTracker creates a streak tracker.
func NewTracker(streaks repository.StreakRepository) *Tracker {
	return &Tracker{streaks: streaks}
}

// Touch records activity in category at the given instant, interpreted in loc,
// and returns the resulting streak.
func (t *Tracker) Touch(ctx context.Context, db repository.DBTX, userID uuid.UUID, category domain.Category, at time.Time, loc *time.Location) (*domain.Streak, error) {
	s, err := t.streaks.Find(ctx, db, userID, category)
	if err != nil {
		return nil, fmt.Errorf("find streak: %w", err)
	}
	if s == nil {
		s = &domain.Streak{UserID: userID, Category: category}
	}

	if !Advance(s, calendar.Day(at, loc)) {
		return s, nil
	}
	if err := t.streaks.Upsert(ctx, db, s); err != nil {
		return nil, fmt.Errorf("save streak: %w", err)
	}
	return s, nil
}

// Current returns the user's streaks keyed by category. A streak whose last
// day is older than yesterday (in loc, relative to now) reads as 0.
func (t *Tracker) Current(ctx context.Context, db repository.DBTX, userID uuid.UUID, now time.Time, loc *time.Location) (map[domain.Category]int, map[domain.Category]int, map[domain.Category]string, error) {
	list, err := t.streaks.ListByUser(ctx, db, userID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list streaks: %w", err)
	}

	today := calendar.Day(now, loc)
	current := make(map[domain.Category]int, len(domain.StreakCategories))
	longest := make(map[domain.Category]int, len(domain.StreakCategories))
	last := make(map[domain.Category]string, len(domain.StreakCategories))
	for _, c := range domain.StreakCategories {
		current[c] = 0
	}
	for _, s := range list {
		longest[s.Category] = s.Longest
		last[s.Category] = s.LastDay.Format("2006-01-02")
		if calendar.DaysBetween(s.LastDay, today) <= 1 {
			current[s.Category] = s.Current
		}
	}
	return current, longest, last, nil
}
