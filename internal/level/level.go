// Package level maps a point balance to a level. Level is never stored
// authoritatively; it is recomputed from the balance on every read.
package level

// thresholds[i] is the balance required to reach level i+1.
var thresholds = []int64{0, 100, 250, 500, 1000, 2000, 3500, 5500, 8000, 11000}

// Extrapolation step past the last configured threshold.
const increment int64 = 3000

// Info describes where a balance sits on the level curve.
type Info struct {
	Level   int     `json:"level"`
	Floor   int64   `json:"current_level_floor"`
	Ceiling int64   `json:"next_level_ceiling"`
	Percent float64 `json:"progress_to_next_level"`
}

// ThresholdFor returns the balance required to reach level.
func ThresholdFor(level int) int64 {
	if level <= 1 {
		return 0
	}
	if level <= len(thresholds) {
		return thresholds[level-1]
	}
	return thresholds[len(thresholds)-1] + int64(level-len(thresholds))*increment
}

// Of returns the level info for balance. Negative balances are treated as 0.
func Of(balance int64) Info {
	if balance < 0 {
		balance = 0
	}

	lvl := 1
	last := thresholds[len(thresholds)-1]
	if balance >= last {
		lvl = len(thresholds) + int((balance-last)/increment)
	} else {
		for lvl < len(thresholds) && balance >= thresholds[lvl] {
			lvl++
		}
	}

	floor := ThresholdFor(lvl)
	ceiling := ThresholdFor(lvl + 1)
	return Info{
		Level:   lvl,
		Floor:   floor,
		Ceiling: ceiling,
		Percent: progress(balance, floor, ceiling),
	}
}

func progress(balance, floor, ceiling int64) float64 {
	span := ceiling - floor
	if span <= 0 {
		return 100
	}
	pct := float64(balance-floor) / float64(span) * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Crossed reports whether moving from balance before to after raised the level.
func Crossed(before, after int64) (from, to int, up bool) {
	from, to = Of(before).Level, Of(after).Level
	return from, to, to > from
}
