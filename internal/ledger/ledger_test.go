package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/repository/memstore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store  *memstore.Store
	engine *Engine
}

func newFixture() *fixture {
	s := memstore.New()
	r := s.Repositories()
	return &fixture{store: s, engine: NewEngine(r.Progression, r.Transactions, r.Outbox)}
}

func (f *fixture) award(t *testing.T, p domain.AwardParams) (*domain.AwardResult, error) {
	t.Helper()
	var out *domain.AwardResult
	err := f.store.InTx(context.Background(), func(tx pgx.Tx) error {
		var err error
		out, err = f.engine.Award(context.Background(), tx, p)
		return err
	})
	return out, err
}

func TestAward_Idempotent(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	p := domain.AwardParams{UserID: userID, Amount: 50, Reason: domain.ReasonMemory, SourceEventID: "e1"}

	first, err := f.award(t, p)
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.Equal(t, int64(50), first.Balance)
	assert.Equal(t, int64(50), first.Transaction.BalanceAfter)

	second, err := f.award(t, p)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, int64(50), second.Balance)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)

	assert.Len(t, f.store.Transactions(), 1)
}

func TestAward_SameEventDifferentReason(t *testing.T) {
	f := newFixture()
	userID := uuid.New()

	_, err := f.award(t, domain.AwardParams{UserID: userID, Amount: 50, Reason: domain.ReasonMemory, SourceEventID: "e1"})
	require.NoError(t, err)
	res, err := f.award(t, domain.AwardParams{UserID: userID, Amount: 20, Reason: domain.ReasonBadge, SourceEventID: "e1"})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, int64(70), res.Balance)
}

func TestAward_RejectsOverdraft(t *testing.T) {
	f := newFixture()
	userID := uuid.New()

	_, err := f.award(t, domain.AwardParams{UserID: userID, Amount: 20, Reason: domain.ReasonActivity, SourceEventID: "a1"})
	require.NoError(t, err)

	_, err = f.award(t, domain.AwardParams{UserID: userID, Amount: -30, Reason: domain.ReasonPurchase, SourceEventID: "p1"})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeInsufficientPoints))

	res, err := f.award(t, domain.AwardParams{UserID: userID, Amount: -20, Reason: domain.ReasonPurchase, SourceEventID: "p2"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Balance)
	assert.Len(t, f.store.Transactions(), 2)
}

func TestAward_Validation(t *testing.T) {
	f := newFixture()
	userID := uuid.New()

	tests := []struct {
		name   string
		params domain.AwardParams
		errMsg string
	}{
		{"zero amount", domain.AwardParams{UserID: userID, Reason: domain.ReasonActivity, SourceEventID: "x"}, "must not be zero"},
		{"unknown reason", domain.AwardParams{UserID: userID, Amount: 1, Reason: "bet", SourceEventID: "x"}, "unknown reason"},
		{"missing source", domain.AwardParams{UserID: userID, Amount: 1, Reason: domain.ReasonActivity}, "source event id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.award(t, tt.params)
			require.Error(t, err)
			assert.True(t, domain.IsCode(err, domain.CodeValidation))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestAward_WritesOutboxAndLevelUp(t *testing.T) {
	f := newFixture()
	userID := uuid.New()

	_, err := f.award(t, domain.AwardParams{UserID: userID, Amount: 90, Reason: domain.ReasonMilestone, SourceEventID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, []domain.EventType{domain.EventPointsAwarded}, f.store.OutboxEvents())

	_, err = f.award(t, domain.AwardParams{UserID: userID, Amount: 20, Reason: domain.ReasonActivity, SourceEventID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, []domain.EventType{
		domain.EventPointsAwarded,
		domain.EventPointsAwarded,
		domain.EventLevelUp,
	}, f.store.OutboxEvents())
}

func TestAward_KeepsMetadataAndTimestamp(t *testing.T) {
	f := newFixture()
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	res, err := f.award(t, domain.AwardParams{
		UserID:        uuid.New(),
		Amount:        10,
		Reason:        domain.ReasonActivity,
		SourceEventID: "a1",
		Metadata:      Meta(map[string]interface{}{"activity_type": "feeding"}),
		At:            at,
	})
	require.NoError(t, err)
	assert.Equal(t, at, res.Transaction.CreatedAt)

	var meta map[string]string
	require.NoError(t, json.Unmarshal(res.Transaction.Metadata, &meta))
	assert.Equal(t, "feeding", meta["activity_type"])
}

func TestAward_ConcurrentSameKey(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	p := domain.AwardParams{UserID: userID, Amount: 10, Reason: domain.ReasonLogin, SourceEventID: "login-1"}

	var wg sync.WaitGroup
	applied := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.award(t, p)
			if err == nil {
				applied <- res.Applied
			}
		}()
	}
	wg.Wait()
	close(applied)

	count := 0
	for a := range applied {
		if a {
			count++
		}
	}
	assert.Equal(t, 1, count)

	v, err := f.engine.Verify(context.Background(), nil, userID)
	require.NoError(t, err)
	assert.True(t, v.AllPassed)
	assert.Equal(t, int64(10), v.Balance)
}

func TestHistory_Pagination(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := f.award(t, domain.AwardParams{
			UserID: userID, Amount: int64(i + 1), Reason: domain.ReasonActivity,
			SourceEventID: fmt.Sprintf("a%d", i), At: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	page, err := f.engine.History(context.Background(), nil, userID, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(5), page[0].Amount)
	assert.Equal(t, int64(4), page[1].Amount)

	cursor := page[1].ID.String()
	page, err = f.engine.History(context.Background(), nil, userID, &cursor, 10)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, int64(3), page[0].Amount)
}

func TestReplay_WorkedExample(t *testing.T) {
	f := newFixture()
	h := NewReplayHarness(f.engine, f.store)
	userID := uuid.New()

	res, err := h.Execute(context.Background(), userID, []domain.AwardParams{
		{Amount: 50, Reason: domain.ReasonMemory, SourceEventID: "e1"},
		{Amount: 50, Reason: domain.ReasonMemory, SourceEventID: "e1"},
		{Amount: -30, Reason: domain.ReasonPurchase, SourceEventID: "buy-1"},
		{Amount: -30, Reason: domain.ReasonPurchase, SourceEventID: "buy-2"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 1, res.Idempotent)
	assert.Equal(t, 1, res.Rejected)
	assert.True(t, res.Verify.AllPassed)
	assert.Equal(t, int64(20), res.Verify.Balance)
	assert.Equal(t, int64(2), res.Verify.TransactionCount)
}

func TestVerify_EmptyLedger(t *testing.T) {
	f := newFixture()
	v, err := f.engine.Verify(context.Background(), nil, uuid.New())
	require.NoError(t, err)
	assert.True(t, v.AllPassed)
	assert.Equal(t, int64(0), v.Balance)
}

func TestEnsureJSON(t *testing.T) {
	assert.Equal(t, json.RawMessage(`{}`), ensureJSON(nil))
	data := json.RawMessage(`{"key":"value"}`)
	assert.Equal(t, data, ensureJSON(data))
}
