package streak

import (
	"context"
	"testing"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/repository/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestAdvance(t *testing.T) {
	tests := []struct {
		name        string
		start       domain.Streak
		day         time.Time
		wantCurrent int
		wantLongest int
		wantChanged bool
	}{
		{"first touch", domain.Streak{}, day(1), 1, 1, true},
		{"same day", domain.Streak{Current: 3, Longest: 3, LastDay: day(5)}, day(5), 3, 3, false},
		{"next day", domain.Streak{Current: 3, Longest: 3, LastDay: day(5)}, day(6), 4, 4, true},
		{"skipped day resets", domain.Streak{Current: 3, Longest: 5, LastDay: day(5)}, day(7), 1, 5, true},
		{"out of order ignored", domain.Streak{Current: 3, Longest: 3, LastDay: day(5)}, day(4), 3, 3, false},
		{"longest preserved", domain.Streak{Current: 2, Longest: 9, LastDay: day(5)}, day(6), 3, 9, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.start
			changed := Advance(&s, tt.day)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.wantCurrent, s.Current)
			assert.Equal(t, tt.wantLongest, s.Longest)
		})
	}
}

func TestAdvance_WorkedExample(t *testing.T) {
	var s domain.Streak
	Advance(&s, day(1))
	assert.Equal(t, 1, s.Current)
	Advance(&s, day(2))
	assert.Equal(t, 2, s.Current)
	Advance(&s, day(4))
	assert.Equal(t, 1, s.Current)
	assert.Equal(t, 2, s.Longest)
}

func TestTracker_Touch_UsesTimezone(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	tr := NewTracker(store.Repositories().Streaks)
	userID := uuid.New()

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 20:00 UTC on the 1st is already the 2nd in Tokyo.
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	second := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	s, err := tr.Touch(ctx, nil, userID, domain.CategoryLogin, first, tokyo)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Current)

	s, err = tr.Touch(ctx, nil, userID, domain.CategoryLogin, second, tokyo)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Current)

	// In UTC both instants fall on the same day.
	other := uuid.New()
	_, err = tr.Touch(ctx, nil, other, domain.CategoryLogin, first, time.UTC)
	require.NoError(t, err)
	s, err = tr.Touch(ctx, nil, other, domain.CategoryLogin, second, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Current)
}

func TestTracker_CurrentDecaysAfterGap(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	tr := NewTracker(store.Repositories().Streaks)
	userID := uuid.New()

	for d := 1; d <= 3; d++ {
		_, err := tr.Touch(ctx, nil, userID, domain.CategoryMemory, day(d).Add(9*time.Hour), time.UTC)
		require.NoError(t, err)
	}

	cur, longest, last, err := tr.Current(ctx, nil, userID, day(4).Add(time.Hour), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 3, cur[domain.CategoryMemory])
	assert.Equal(t, 0, cur[domain.CategoryLogin])
	assert.Equal(t, 3, longest[domain.CategoryMemory])
	assert.Equal(t, "2026-03-03", last[domain.CategoryMemory])

	cur, _, _, err = tr.Current(ctx, nil, userID, day(6), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 0, cur[domain.CategoryMemory])
}
