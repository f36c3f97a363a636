// Package ranking computes the weekly leaderboard from the point ledger on
// every read.
package ranking

import (
	"context"
	"fmt"
	"time"

	"github.com/babysteps/progression/internal/calendar"
	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/repository"
)

// MaxLimit caps the number of entries a single read returns.
const MaxLimit = 100

// Aggregator computes weekly rankings.
type Aggregator struct {
	transactions repository.TransactionRepository
	policy       calendar.Policy
	defaultLimit int
}

// NewAggregator creates a ranking aggregator.
func NewAggregator(transactions repository.TransactionRepository, policy calendar.Policy, defaultLimit int) *Aggregator {
	return &Aggregator{transactions: transactions, policy: policy, defaultLimit: defaultLimit}
}

// Weekly returns the leaderboard of weekKey: points summed over transactions
// created in [week start, week end), highest first. Ties go to the user whose
// first transaction of the week came earlier.
func (a *Aggregator) Weekly(ctx context.Context, db repository.DBTX, weekKey string, limit int) ([]domain.GamificationRankingEntry, error) {
	start, end, err := a.policy.WeekRange(weekKey)
	if err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if limit <= 0 {
		limit = a.defaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	entries, err := a.transactions.WeeklyTotals(ctx, db, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("weekly totals: %w", err)
	}
	return Rank(entries, weekKey), nil
}

// Current returns the leaderboard of the week containing now.
func (a *Aggregator) Current(ctx context.Context, db repository.DBTX, now time.Time, limit int) ([]domain.GamificationRankingEntry, error) {
	return a.Weekly(ctx, db, a.policy.WeekKey(now), limit)
}

// Rank orders entries and assigns 1-based ranks. The order is total, so
// equal points never share a rank.
func Rank(entries []domain.GamificationRankingEntry, weekKey string) []domain.GamificationRankingEntry {
	domain.SortRankingEntries(entries)
	for i := range entries {
		entries[i].Rank = i + 1
		entries[i].WeekKey = weekKey
	}
	return entries
}
