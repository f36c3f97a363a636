// Package guard holds in-process admission checks that run before the
// database: duplicate inbound events, per-user rate limits and a circuit
// breaker for outbound collaborators. None of them is authoritative.
package guard

import (
	"context"

	"github.com/babysteps/progression/internal/domain"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultSeenSize bounds how many recent event ids the guard remembers.
const DefaultSeenSize = 100_000

// IdempotencyGuard short-circuits recently seen inbound event ids. The set is
// LRU-bounded, so an old id can pass again; the ledger's unique key still
// rejects it.
type IdempotencyGuard struct {
	seen *lru.Cache
}

// NewIdempotencyGuard creates a guard remembering at most size ids.
func NewIdempotencyGuard(size int) *IdempotencyGuard {
	if size <= 0 {
		size = DefaultSeenSize
	}
	seen, _ := lru.New(size)
	return &IdempotencyGuard{seen: seen}
}

// Check reports whether key has not been seen yet and records it.
func (ig *IdempotencyGuard) Check(_ context.Context, key string) domain.GuardResult {
	if key == "" {
		return domain.GuardResult{Allowed: true}
	}

	if ok, _ := ig.seen.ContainsOrAdd(key, struct{}{}); ok {
		return domain.GuardResult{
			Allowed: false,
			Reason:  "duplicate event: id already processed",
			Guard:   "idempotency",
		}
	}
	return domain.GuardResult{Allowed: true}
}

// Remove forgets a key so a failed event can be retried.
func (ig *IdempotencyGuard) Remove(key string) {
	ig.seen.Remove(key)
}
