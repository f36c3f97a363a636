// Package rotation picks a deterministic subset of a catalog from a seed, so
// every process computes the same weekly challenge set and the same daily
// missions for a user without coordination.
package rotation

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
)

// Pick returns count distinct indices in [0, n), chosen by a Fisher-Yates
// shuffle seeded from sha256(seed). The result is sorted ascending.
func Pick(seed string, n, count int) []int {
	if n <= 0 || count <= 0 {
		return nil
	}
	if count > n {
		count = n
	}

	h := sha256.Sum256([]byte(seed))
	state := binary.BigEndian.Uint64(h[:8])

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	for i := n - 1; i > 0; i-- {
		state = state*6364136223846793005 + 1442695040888963407 // LCG step
		j := int(state % uint64(i+1))
		indices[i], indices[j] = indices[j], indices[i]
	}

	out := append([]int(nil), indices[:count]...)
	sort.Ints(out)
	return out
}

// WeekSeed is the seed of the shared weekly challenge set.
func WeekSeed(weekKey string) string {
	return "challenges:" + weekKey
}

// DaySeed is the seed of a user's daily missions.
func DaySeed(userID, dayKey string) string {
	return "missions:" + userID + ":" + dayKey
}
