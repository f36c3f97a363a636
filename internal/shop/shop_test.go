package shop

import (
	"context"
	"testing"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/ledger"
	"github.com/babysteps/progression/internal/repository/memstore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memstore.Store
	ledger  *ledger.Engine
	economy *Economy
}

func newFixture() *fixture {
	s := memstore.New()
	r := s.Repositories()
	engine := ledger.NewEngine(r.Progression, r.Transactions, r.Outbox)
	return &fixture{store: s, ledger: engine, economy: NewEconomy(r.Shop, engine, r.Outbox)}
}

func (f *fixture) item(t *testing.T, price int64, stock *int, active bool) domain.ShopItem {
	t.Helper()
	item := domain.ShopItem{ID: uuid.New(), Name: "Sticker pack", Price: price, Stock: stock, IsLimited: stock != nil, IsActive: active}
	require.NoError(t, f.store.Repositories().Shop.Upsert(context.Background(), nil, &item))
	return item
}

func (f *fixture) fund(t *testing.T, userID uuid.UUID, amount int64) {
	t.Helper()
	err := f.store.InTx(context.Background(), func(tx pgx.Tx) error {
		_, err := f.ledger.Award(context.Background(), tx, domain.AwardParams{
			UserID: userID, Amount: amount, Reason: domain.ReasonMemory, SourceEventID: uuid.NewString(),
		})
		return err
	})
	require.NoError(t, err)
}

func (f *fixture) purchase(userID, itemID uuid.UUID, requestID string) (*domain.PurchaseResult, error) {
	var out *domain.PurchaseResult
	err := f.store.InTx(context.Background(), func(tx pgx.Tx) error {
		var err error
		out, err = f.economy.Purchase(context.Background(), tx, userID, itemID, requestID, now)
		return err
	})
	return out, err
}

func (f *fixture) unlock(userID uuid.UUID, reward domain.AIReward) (*domain.UnlockResult, error) {
	var out *domain.UnlockResult
	err := f.store.InTx(context.Background(), func(tx pgx.Tx) error {
		var err error
		out, err = f.economy.UnlockAIReward(context.Background(), tx, userID, reward, now)
		return err
	})
	return out, err
}

func (f *fixture) balance(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	u, err := f.store.Repositories().Progression.Find(context.Background(), nil, userID)
	require.NoError(t, err)
	if u == nil {
		return 0
	}
	return u.Balance
}

func intPtr(v int) *int { return &v }

func TestPurchase_WorkedExample(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	item := f.item(t, 30, nil, true)
	f.fund(t, userID, 50)

	res, err := f.purchase(userID, item.ID, "r1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Applied)
	assert.Equal(t, int64(20), res.Balance)
	assert.Equal(t, int64(30), res.Purchase.PointsSpent)

	_, err = f.purchase(userID, item.ID, "r2")
	assert.True(t, domain.IsCode(err, domain.CodeInsufficientPoints))
	assert.Equal(t, int64(20), f.balance(t, userID))

	receipts, err := f.economy.Purchases(context.Background(), nil, userID)
	require.NoError(t, err)
	assert.Len(t, receipts, 1)
}

func TestPurchase_IdempotentByRequestID(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	item := f.item(t, 10, nil, true)
	f.fund(t, userID, 100)

	first, err := f.purchase(userID, item.ID, "same")
	require.NoError(t, err)
	second, err := f.purchase(userID, item.ID, "same")
	require.NoError(t, err)

	assert.False(t, second.Applied)
	assert.Equal(t, first.Purchase.ID, second.Purchase.ID)
	assert.Equal(t, int64(90), f.balance(t, userID))

	other := f.item(t, 10, nil, true)
	_, err = f.purchase(userID, other.ID, "same")
	assert.True(t, domain.IsCode(err, domain.CodeConflict))
}

func TestPurchase_Guards(t *testing.T) {
	tests := []struct {
		name     string
		price    int64
		stock    *int
		active   bool
		wantCode string
	}{
		{"inactive", 10, nil, false, domain.CodeItemInactive},
		{"zero stock", 10, intPtr(0), true, domain.CodeOutOfStock},
		{"too expensive", 1000, nil, true, domain.CodeInsufficientPoints},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			userID := uuid.New()
			item := f.item(t, tt.price, tt.stock, tt.active)
			f.fund(t, userID, 100)

			_, err := f.purchase(userID, item.ID, uuid.NewString())
			assert.True(t, domain.IsCode(err, tt.wantCode), "got %v", err)
			assert.Equal(t, int64(100), f.balance(t, userID))
			assert.Len(t, f.store.Transactions(), 1)
		})
	}
}

func TestPurchase_UnknownItem(t *testing.T) {
	f := newFixture()
	_, err := f.purchase(uuid.New(), uuid.New(), "r")
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))
}

func TestPurchase_LimitedStockNeverOversold(t *testing.T) {
	f := newFixture()
	item := f.item(t, 10, intPtr(2), true)

	var sold int
	for i := 0; i < 4; i++ {
		userID := uuid.New()
		f.fund(t, userID, 10)
		_, err := f.purchase(userID, item.ID, "r")
		if err == nil {
			sold++
			assert.Equal(t, int64(0), f.balance(t, userID))
			continue
		}
		assert.True(t, domain.IsCode(err, domain.CodeOutOfStock))
		assert.Equal(t, int64(10), f.balance(t, userID))
	}
	assert.Equal(t, 2, sold)

	stored, err := f.store.Repositories().Shop.FindByID(context.Background(), nil, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Sold)
}

func TestPurchase_ValidatesRequestID(t *testing.T) {
	f := newFixture()
	_, err := f.purchase(uuid.New(), uuid.New(), "  ")
	assert.True(t, domain.IsCode(err, domain.CodeValidation))
}

func TestUnlockAIReward(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	f.fund(t, userID, 500)

	res, err := f.unlock(userID, domain.AIReward{ID: "lullaby-42", Title: "Custom lullaby", Price: 150})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, int64(350), res.Balance)

	again, err := f.unlock(userID, domain.AIReward{ID: "lullaby-42", Price: 150})
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.False(t, again.Applied)
	assert.Equal(t, int64(350), f.balance(t, userID))
	assert.Contains(t, f.store.OutboxEvents(), domain.EventAIRewardUnlocked)
}

func TestUnlockAIReward_DefaultPriceAndOverdraft(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	f.fund(t, userID, 199)

	_, err := f.unlock(userID, domain.AIReward{ID: "story-1"})
	assert.True(t, domain.IsCode(err, domain.CodeInsufficientPoints))

	f.fund(t, userID, 1)
	res, err := f.unlock(userID, domain.AIReward{ID: "story-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultAIRewardPrice, res.Unlock.PointsSpent)
	assert.Equal(t, int64(0), res.Balance)
}
