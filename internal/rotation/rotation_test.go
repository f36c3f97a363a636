package rotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPick(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		count int
		want  int
	}{
		{"empty catalog", 0, 3, 0},
		{"zero count", 5, 0, 0},
		{"count capped at catalog size", 2, 3, 2},
		{"subset", 10, 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Pick("seed", tt.n, tt.count)
			assert.Len(t, got, tt.want)
			seen := map[int]bool{}
			for i, idx := range got {
				assert.GreaterOrEqual(t, idx, 0)
				assert.Less(t, idx, tt.n)
				assert.False(t, seen[idx], "duplicate index %d", idx)
				seen[idx] = true
				if i > 0 {
					assert.Less(t, got[i-1], idx)
				}
			}
		})
	}
}

func TestPick_Deterministic(t *testing.T) {
	a := Pick(WeekSeed("2026-W12"), 20, 3)
	b := Pick(WeekSeed("2026-W12"), 20, 3)
	assert.Equal(t, a, b)
}

func TestPick_VariesBySeed(t *testing.T) {
	distinct := map[string]bool{}
	for _, week := range []string{"2026-W01", "2026-W02", "2026-W03", "2026-W04", "2026-W05", "2026-W06"} {
		distinct[formatInts(Pick(WeekSeed(week), 20, 3))] = true
	}
	assert.Greater(t, len(distinct), 1)
}

func formatInts(v []int) string {
	out := ""
	for _, i := range v {
		out += string(rune('a'+i)) + ","
	}
	return out
}
