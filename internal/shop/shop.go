// Package shop is the points economy: catalog purchases and AI reward unlocks,
// each an atomic debit plus receipt.
package shop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/ledger"
	"github.com/babysteps/progression/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Economy runs purchases inside the caller's transaction.
type Economy struct {
	shop   repository.ShopRepository
	ledger *ledger.Engine
	outbox repository.OutboxRepository
}

// NewEconomy creates the shop economy.
func NewEconomy(shop repository.ShopRepository, engine *ledger.Engine, outbox repository.OutboxRepository) *Economy {
	return &Economy{shop: shop, ledger: engine, outbox: outbox}
}

// Purchase buys one unit of an item, at most once per requestID.
// Pattern: Lock → Idempotency → Load → Guard → Debit → Reserve stock → Receipt
//
// Any failure after the debit returns an error, which rolls the debit back
// with the rest of the transaction.
func (e *Economy) Purchase(ctx context.Context, tx pgx.Tx, userID, itemID uuid.UUID, requestID string, now time.Time) (*domain.PurchaseResult, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, domain.ErrValidation("request id is required")
	}

	// Lock
	user, err := e.ledger.LockUserForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	// Idempotency check
	existing, err := e.shop.FindPurchase(ctx, tx, userID, requestID)
	if err != nil {
		return nil, fmt.Errorf("find purchase: %w", err)
	}
	if existing != nil {
		if existing.ItemID != itemID {
			return nil, domain.ErrConflict("request id already used for another item")
		}
		return &domain.PurchaseResult{Success: true, Purchase: existing, Balance: user.Balance, Applied: false}, nil
	}

	item, err := e.shop.FindByID(ctx, tx, itemID)
	if err != nil {
		return nil, fmt.Errorf("find item: %w", err)
	}
	switch {
	case item == nil:
		return nil, domain.ErrNotFound("shop item", itemID.String())
	case !item.IsActive:
		return nil, domain.ErrItemInactive(itemID.String())
	case item.SoldOut():
		return nil, domain.ErrOutOfStock(itemID.String())
	case user.Balance < item.Price:
		return nil, domain.ErrInsufficientPoints()
	}

	balance := user.Balance
	if item.Price > 0 {
		award, err := e.ledger.Award(ctx, tx, domain.AwardParams{
			UserID:        userID,
			Amount:        -item.Price,
			Reason:        domain.ReasonPurchase,
			SourceEventID: requestID,
			Metadata:      ledger.Meta(map[string]interface{}{"item_id": itemID}),
			At:            now,
		})
		if err != nil {
			return nil, err
		}
		if !award.Applied {
			return nil, domain.ErrConflict("request id already used for another debit")
		}
		balance = award.Balance
	}

	if item.IsLimited {
		ok, err := e.shop.IncrementSold(ctx, tx, itemID)
		if err != nil {
			return nil, fmt.Errorf("increment sold: %w", err)
		}
		if !ok {
			return nil, domain.ErrOutOfStock(itemID.String())
		}
	}

	receipt, err := e.shop.InsertPurchase(ctx, tx, &domain.UserPurchase{
		UserID:      userID,
		ItemID:      itemID,
		PointsSpent: item.Price,
		RequestID:   requestID,
		PurchasedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("insert purchase: %w", err)
	}
	if receipt == nil {
		return nil, domain.ErrConflict("concurrent purchase with the same request id")
	}

	if err := e.outbox.Insert(ctx, tx, domain.NewItemPurchasedEvent(receipt)); err != nil {
		return nil, fmt.Errorf("insert purchase event: %w", err)
	}
	return &domain.PurchaseResult{Success: true, Purchase: receipt, Balance: balance, Applied: true}, nil
}

// UnlockAIReward debits the reward's price and records the unlock. Unlocking
// an already unlocked reward succeeds without a second debit.
func (e *Economy) UnlockAIReward(ctx context.Context, tx pgx.Tx, userID uuid.UUID, reward domain.AIReward, now time.Time) (*domain.UnlockResult, error) {
	if strings.TrimSpace(reward.ID) == "" {
		return nil, domain.ErrValidation("reward id is required")
	}

	user, err := e.ledger.LockUserForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	existing, err := e.shop.FindUnlock(ctx, tx, userID, reward.ID)
	if err != nil {
		return nil, fmt.Errorf("find unlock: %w", err)
	}
	if existing != nil {
		return &domain.UnlockResult{Success: true, Unlock: existing, Balance: user.Balance, Applied: false}, nil
	}

	price := reward.Price
	if price <= 0 {
		price = domain.DefaultAIRewardPrice
	}
	if user.Balance < price {
		return nil, domain.ErrInsufficientPoints()
	}

	award, err := e.ledger.Award(ctx, tx, domain.AwardParams{
		UserID:        userID,
		Amount:        -price,
		Reason:        domain.ReasonAIRewardUnlock,
		SourceEventID: "ai_reward:" + reward.ID,
		Metadata:      ledger.Meta(map[string]interface{}{"reward_id": reward.ID, "title": reward.Title}),
		At:            now,
	})
	if err != nil {
		return nil, err
	}
	if !award.Applied {
		return nil, domain.ErrConflict("reward already debited")
	}

	unlock, err := e.shop.InsertUnlock(ctx, tx, &domain.AIRewardUnlock{
		UserID:      userID,
		RewardID:    reward.ID,
		PointsSpent: price,
		UnlockedAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("insert unlock: %w", err)
	}
	if unlock == nil {
		return nil, domain.ErrConflict("concurrent unlock of the same reward")
	}

	if err := e.outbox.Insert(ctx, tx, domain.NewAIRewardUnlockedEvent(unlock)); err != nil {
		return nil, fmt.Errorf("insert unlock event: %w", err)
	}
	return &domain.UnlockResult{Success: true, Unlock: unlock, Balance: award.Balance, Applied: true}, nil
}

// Catalog returns the items users can see.
func (e *Economy) Catalog(ctx context.Context, db repository.DBTX) ([]domain.ShopItem, error) {
	items, err := e.shop.List(ctx, db, true)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// Purchases returns the user's receipts, newest first.
func (e *Economy) Purchases(ctx context.Context, db repository.DBTX, userID uuid.UUID) ([]domain.UserPurchase, error) {
	out, err := e.shop.ListPurchases(ctx, db, userID)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return out, nil
}
