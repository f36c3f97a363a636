package domain

import (
	"time"

	"github.com/google/uuid"
)

// ShopItem represents a shop_items catalog row. Stock nil means unlimited.
type ShopItem struct {
	ID          uuid.UUID `json:"id" toml:"id"`
	Name        string    `json:"name" toml:"name"`
	Description string    `json:"description" toml:"description"`
	Price       int64     `json:"price" toml:"price"`
	Stock       *int      `json:"stock,omitempty" toml:"stock"`
	Sold        int       `json:"sold" toml:"-"`
	IsLimited   bool      `json:"is_limited" toml:"is_limited"`
	IsActive    bool      `json:"is_active" toml:"is_active"`
	CreatedAt   time.Time `json:"created_at" toml:"-"`
}

// SoldOut reports whether a limited item has no remaining stock.
func (i *ShopItem) SoldOut() bool {
	if !i.IsLimited {
		return false
	}
	if i.Stock == nil {
		return false
	}
	return i.Sold >= *i.Stock
}

// UserPurchase represents a user_purchases row (immutable receipt).
type UserPurchase struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	ItemID      uuid.UUID `json:"item_id"`
	PointsSpent int64     `json:"points_spent"`
	RequestID   string    `json:"request_id"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// PurchaseResult is returned by the shop purchase operation.
type PurchaseResult struct {
	Success  bool          `json:"success"`
	Purchase *UserPurchase `json:"purchase,omitempty"`
	Balance  int64         `json:"balance"`
	Applied  bool          `json:"applied"`
}

// AIReward is a reward offered by the AI content collaborator. Its price is
// catalog data carried on the reward itself.
type AIReward struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Price int64  `json:"price"`
}

// DefaultAIRewardPrice is the price assumed when the collaborator omits one.
const DefaultAIRewardPrice int64 = 200

// AIRewardUnlock represents an ai_reward_unlocks row.
type AIRewardUnlock struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	RewardID    string    `json:"reward_id"`
	PointsSpent int64     `json:"points_spent"`
	UnlockedAt  time.Time `json:"unlocked_at"`
}

// UnlockResult is returned by the AI reward unlock operation.
type UnlockResult struct {
	Success bool            `json:"success"`
	Unlock  *AIRewardUnlock `json:"unlock,omitempty"`
	Balance int64           `json:"balance"`
	Applied bool            `json:"applied"`
}
