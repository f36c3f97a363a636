package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/babysteps/progression/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const shopItemColumns = `id, name, description, price, stock, sold, is_limited, is_active, created_at`

type shopRepo struct{}

// NewShopRepository returns a pgx-backed ShopRepository.
func NewShopRepository() ShopRepository {
	return &shopRepo{}
}

func (r *shopRepo) List(ctx context.Context, db DBTX, activeOnly bool) ([]domain.ShopItem, error) {
	rows, err := db.Query(ctx, `
		SELECT `+shopItemColumns+`
		FROM shop_items
		WHERE is_active OR NOT $1
		ORDER BY price, name`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("query shop items: %w", err)
	}
	defer rows.Close()

	var out []domain.ShopItem
	for rows.Next() {
		item, err := scanShopItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

func (r *shopRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.ShopItem, error) {
	row := db.QueryRow(ctx, `SELECT `+shopItemColumns+` FROM shop_items WHERE id = $1`, id)
	item, err := scanShopItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

func (r *shopRepo) Upsert(ctx context.Context, db DBTX, item *domain.ShopItem) error {
	_, err := db.Exec(ctx, `
		INSERT INTO shop_items (id, name, description, price, stock, is_limited, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, description = EXCLUDED.description, price = EXCLUDED.price,
		    stock = EXCLUDED.stock, is_limited = EXCLUDED.is_limited, is_active = EXCLUDED.is_active`,
		item.ID, item.Name, item.Description, item.Price, item.Stock, item.IsLimited, item.IsActive)
	if err != nil {
		return fmt.Errorf("upsert shop item: %w", err)
	}
	return nil
}

func (r *shopRepo) SetActive(ctx context.Context, db DBTX, id uuid.UUID, active bool) (bool, error) {
	tag, err := db.Exec(ctx, `UPDATE shop_items SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return false, fmt.Errorf("set shop item active: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// IncrementSold is the stock guard: the conditional update cannot oversell
// regardless of how many purchases race for the last unit.
func (r *shopRepo) IncrementSold(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE shop_items SET sold = sold + 1
		WHERE id = $1 AND (NOT is_limited OR sold < stock)`, id)
	if err != nil {
		return false, fmt.Errorf("increment sold: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *shopRepo) InsertPurchase(ctx context.Context, tx pgx.Tx, p *domain.UserPurchase) (*domain.UserPurchase, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO user_purchases (user_id, item_id, points_spent, request_id, purchased_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, request_id) DO NOTHING
		RETURNING id, user_id, item_id, points_spent, request_id, purchased_at`,
		p.UserID, p.ItemID, p.PointsSpent, p.RequestID, p.PurchasedAt)
	return scanPurchase(row)
}

func (r *shopRepo) FindPurchase(ctx context.Context, db DBTX, userID uuid.UUID, requestID string) (*domain.UserPurchase, error) {
	row := db.QueryRow(ctx, `
		SELECT id, user_id, item_id, points_spent, request_id, purchased_at
		FROM user_purchases WHERE user_id = $1 AND request_id = $2`, userID, requestID)
	return scanPurchase(row)
}

func (r *shopRepo) ListPurchases(ctx context.Context, db DBTX, userID uuid.UUID) ([]domain.UserPurchase, error) {
	rows, err := db.Query(ctx, `
		SELECT id, user_id, item_id, points_spent, request_id, purchased_at
		FROM user_purchases WHERE user_id = $1
		ORDER BY purchased_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query purchases: %w", err)
	}
	defer rows.Close()

	var out []domain.UserPurchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *shopRepo) InsertUnlock(ctx context.Context, tx pgx.Tx, u *domain.AIRewardUnlock) (*domain.AIRewardUnlock, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO ai_reward_unlocks (user_id, reward_id, points_spent, unlocked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, reward_id) DO NOTHING
		RETURNING id, user_id, reward_id, points_spent, unlocked_at`,
		u.UserID, u.RewardID, u.PointsSpent, u.UnlockedAt)
	return scanUnlock(row)
}

func (r *shopRepo) FindUnlock(ctx context.Context, db DBTX, userID uuid.UUID, rewardID string) (*domain.AIRewardUnlock, error) {
	row := db.QueryRow(ctx, `
		SELECT id, user_id, reward_id, points_spent, unlocked_at
		FROM ai_reward_unlocks WHERE user_id = $1 AND reward_id = $2`, userID, rewardID)
	return scanUnlock(row)
}

func scanShopItem(row scanner) (*domain.ShopItem, error) {
	var item domain.ShopItem
	if err := row.Scan(&item.ID, &item.Name, &item.Description, &item.Price, &item.Stock,
		&item.Sold, &item.IsLimited, &item.IsActive, &item.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan shop item: %w", err)
	}
	return &item, nil
}

func scanPurchase(row scanner) (*domain.UserPurchase, error) {
	var p domain.UserPurchase
	if err := row.Scan(&p.ID, &p.UserID, &p.ItemID, &p.PointsSpent, &p.RequestID, &p.PurchasedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan purchase: %w", err)
	}
	return &p, nil
}

func scanUnlock(row scanner) (*domain.AIRewardUnlock, error) {
	var u domain.AIRewardUnlock
	if err := row.Scan(&u.ID, &u.UserID, &u.RewardID, &u.PointsSpent, &u.UnlockedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan ai reward unlock: %w", err)
	}
	return &u, nil
}
