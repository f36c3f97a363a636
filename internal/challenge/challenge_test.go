package challenge

import (
	"context"
	"testing"
	"time"

	"github.com/babysteps/progression/internal/calendar"
	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/ledger"
	"github.com/babysteps/progression/internal/repository/memstore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday of ISO week 2026-W11.
var wednesday = time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store  *memstore.Store
	engine *Engine
	memory domain.WeeklyChallenge
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memstore.New()
	r := s.Repositories()
	memory := domain.WeeklyChallenge{ID: uuid.New(), Title: "Seven memories", Category: domain.CategoryMemory, Goal: 7, PointsReward: 150, Active: true}
	require.NoError(t, r.Challenges.Upsert(context.Background(), nil, &memory))

	engine := ledger.NewEngine(r.Progression, r.Transactions, r.Outbox)
	return &fixture{
		store:  s,
		engine: NewEngine(r.Challenges, engine, r.Outbox, calendar.DefaultPolicy(), 3),
		memory: memory,
	}
}

func (f *fixture) record(t *testing.T, userID uuid.UUID, cat domain.Category, delta int, now time.Time) []domain.ChallengeProgress {
	t.Helper()
	var out []domain.ChallengeProgress
	err := f.store.InTx(context.Background(), func(tx pgx.Tx) error {
		if _, err := f.store.Repositories().Progression.LockForUpdate(context.Background(), tx, userID); err != nil {
			return err
		}
		var err error
		out, err = f.engine.RecordProgress(context.Background(), tx, userID, cat, delta, now)
		return err
	})
	require.NoError(t, err)
	return out
}

func (f *fixture) claim(userID, challengeID uuid.UUID, now time.Time) (*domain.ClaimResult, error) {
	var out *domain.ClaimResult
	err := f.store.InTx(context.Background(), func(tx pgx.Tx) error {
		var err error
		out, err = f.engine.Claim(context.Background(), tx, userID, challengeID, now)
		return err
	})
	return out, err
}

func balance(t *testing.T, s *memstore.Store, userID uuid.UUID) int64 {
	t.Helper()
	u, err := s.Repositories().Progression.Find(context.Background(), nil, userID)
	require.NoError(t, err)
	if u == nil {
		return 0
	}
	return u.Balance
}

func TestSelect_DeterministicAndBounded(t *testing.T) {
	var catalog []domain.WeeklyChallenge
	for i := 0; i < 10; i++ {
		catalog = append(catalog, domain.WeeklyChallenge{ID: uuid.New()})
	}

	a := Select(catalog, "2026-W11", 3)
	b := Select(catalog, "2026-W11", 3)
	assert.Len(t, a, 3)
	assert.Equal(t, a, b)
	assert.Len(t, Select(catalog[:2], "2026-W11", 3), 2)
	assert.Empty(t, Select(nil, "2026-W11", 3))
}

func TestRecordProgress_LazyRowsAndGoalCap(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	assert.Empty(t, f.record(t, userID, domain.CategoryLogin, 1, wednesday))

	rows := f.record(t, userID, domain.CategoryMemory, 5, wednesday)
	require.Len(t, rows, 1)
	assert.Equal(t, 5, rows[0].Progress)
	assert.False(t, rows[0].IsCompleted)
	assert.Equal(t, "2026-W11", rows[0].WeekKey)

	rows = f.record(t, userID, domain.CategoryMemory, 5, wednesday)
	require.Len(t, rows, 1)
	assert.Equal(t, 7, rows[0].Progress)
	assert.True(t, rows[0].IsCompleted)
	assert.Contains(t, f.store.OutboxEvents(), domain.EventChallengeCompleted)

	// Completed rows are not touched again.
	assert.Empty(t, f.record(t, userID, domain.CategoryMemory, 1, wednesday))
}

func TestRecordProgress_ResetsAcrossWeeks(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	saturday := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	nextMonday := time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC)

	f.record(t, userID, domain.CategoryMemory, 6, saturday)
	rows := f.record(t, userID, domain.CategoryMemory, 1, nextMonday)
	require.Len(t, rows, 1)
	assert.Equal(t, "2026-W12", rows[0].WeekKey)
	assert.Equal(t, 1, rows[0].Progress)

	old, err := f.store.Repositories().Challenges.FindProgress(context.Background(), nil, userID, f.memory.ID, "2026-W11")
	require.NoError(t, err)
	assert.Equal(t, 6, old.Progress)
}

func TestClaim(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	_, err := f.claim(userID, f.memory.ID, wednesday)
	assert.True(t, domain.IsCode(err, domain.CodeNotCompleted))

	_, err = f.claim(userID, uuid.New(), wednesday)
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))

	f.record(t, userID, domain.CategoryMemory, 3, wednesday)
	_, err = f.claim(userID, f.memory.ID, wednesday)
	assert.True(t, domain.IsCode(err, domain.CodeNotCompleted))

	f.record(t, userID, domain.CategoryMemory, 4, wednesday)
	res, err := f.claim(userID, f.memory.ID, wednesday)
	require.NoError(t, err)
	assert.Equal(t, int64(150), res.PointsAwarded)
	assert.Equal(t, int64(150), res.Balance)
	assert.True(t, res.Applied)

	_, err = f.claim(userID, f.memory.ID, wednesday)
	assert.True(t, domain.IsCode(err, domain.CodeAlreadyClaimed))
	assert.Equal(t, int64(150), balance(t, f.store, userID))

	txs := f.store.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, "challenge:"+f.memory.ID.String()+":2026-W11", txs[0].SourceEventID)
	assert.Contains(t, f.store.OutboxEvents(), domain.EventChallengeClaimed)
}

func TestClaim_OnlyCurrentWeek(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	f.record(t, userID, domain.CategoryMemory, 7, wednesday)
	_, err := f.claim(userID, f.memory.ID, wednesday.AddDate(0, 0, 7))
	assert.True(t, domain.IsCode(err, domain.CodeNotCompleted))
	assert.Equal(t, int64(0), balance(t, f.store, userID))
}

func TestCurrent_IncludesUntouched(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	var rows []domain.ChallengeProgress
	err := f.store.InReadTx(context.Background(), func(tx pgx.Tx) error {
		var err error
		rows, err = f.engine.Current(context.Background(), tx, userID, wednesday)
		return err
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].Progress)
	assert.Equal(t, 7, rows[0].Goal)
	assert.Equal(t, "Seven memories", rows[0].Title)
}

func TestRollover_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		keys, err := f.engine.Rollover(ctx, nil, wednesday)
		require.NoError(t, err)
		assert.Equal(t, []string{"2026-W11", "2026-W12"}, keys)
	}

	scheduled, err := f.store.Repositories().Challenges.ListScheduled(ctx, nil, "2026-W12")
	require.NoError(t, err)
	assert.Len(t, scheduled, 1)
}
