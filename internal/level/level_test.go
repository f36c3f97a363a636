package level

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOf(t *testing.T) {
	tests := []struct {
		name    string
		balance int64
		level   int
		floor   int64
		ceiling int64
		pct     float64
	}{
		{"zero", 0, 1, 0, 100, 0},
		{"negative treated as zero", -5, 1, 0, 100, 0},
		{"mid level one", 50, 1, 0, 100, 50},
		{"exact threshold", 100, 2, 100, 250, 0},
		{"level three", 400, 3, 250, 500, 60},
		{"last table level", 11000, 10, 11000, 14000, 0},
		{"extrapolated", 14000, 11, 14000, 17000, 0},
		{"extrapolated mid", 15500, 11, 14000, 17000, 50},
		{"far beyond table", 11000 + 3000*50 + 1500, 60, 161000, 164000, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Of(tt.balance)
			assert.Equal(t, tt.level, info.Level)
			assert.Equal(t, tt.floor, info.Floor)
			assert.Equal(t, tt.ceiling, info.Ceiling)
			assert.InDelta(t, tt.pct, info.Percent, 0.0001)
		})
	}
}

func TestOf_MonotonicAndPure(t *testing.T) {
	prev := Of(0).Level
	for b := int64(0); b <= 60000; b += 7 {
		info := Of(b)
		assert.GreaterOrEqual(t, info.Level, prev, "balance %d", b)
		assert.GreaterOrEqual(t, info.Percent, 0.0)
		assert.LessOrEqual(t, info.Percent, 100.0)
		assert.GreaterOrEqual(t, b, info.Floor)
		assert.Less(t, b, info.Ceiling)
		assert.Equal(t, info, Of(b))
		prev = info.Level
	}
}

func TestThresholdFor(t *testing.T) {
	assert.Equal(t, int64(0), ThresholdFor(0))
	assert.Equal(t, int64(0), ThresholdFor(1))
	assert.Equal(t, int64(100), ThresholdFor(2))
	assert.Equal(t, int64(11000), ThresholdFor(10))
	assert.Equal(t, int64(14000), ThresholdFor(11))
	assert.Equal(t, int64(17000), ThresholdFor(12))
}

func TestCrossed(t *testing.T) {
	from, to, up := Crossed(90, 120)
	assert.Equal(t, 1, from)
	assert.Equal(t, 2, to)
	assert.True(t, up)

	_, _, up = Crossed(120, 200)
	assert.False(t, up)

	from, to, up = Crossed(90, 600)
	assert.Equal(t, 1, from)
	assert.Equal(t, 4, to)
	assert.True(t, up)

	_, _, up = Crossed(600, 570)
	assert.False(t, up)
}
