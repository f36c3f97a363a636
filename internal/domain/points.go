package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Reason enumerates why a point transaction was written.
type Reason string

const (
	// Activity
	ReasonActivity  Reason = "activity"
	ReasonMemory    Reason = "memory"
	ReasonMilestone Reason = "milestone"
	ReasonLogin     Reason = "login"

	// Rewards
	ReasonBadge           Reason = "badge"
	ReasonChallengeReward Reason = "challenge_reward"
	ReasonMissionReward   Reason = "mission_reward"
	ReasonEventReward     Reason = "event_reward"

	// Spending
	ReasonPurchase       Reason = "purchase"
	ReasonAIRewardUnlock Reason = "ai_reward_unlock"

	// Compensating entries
	ReasonAdjustment Reason = "adjustment"
)

// Valid reports whether r is a known reason.
func (r Reason) Valid() bool {
	switch r {
	case ReasonActivity, ReasonMemory, ReasonMilestone, ReasonLogin,
		ReasonBadge, ReasonChallengeReward, ReasonMissionReward, ReasonEventReward,
		ReasonPurchase, ReasonAIRewardUnlock, ReasonAdjustment:
		return true
	}
	return false
}

// PointTransaction represents a point_transactions row (append-only ledger entry).
type PointTransaction struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Amount        int64           `json:"amount"`
	Reason        Reason          `json:"reason"`
	SourceEventID string          `json:"source_event_id"`
	BalanceAfter  int64           `json:"balance_after"`
	Metadata      json.RawMessage `json:"metadata"`
	CreatedAt     time.Time       `json:"created_at"`
}

// IdempotencyKey is the composite key a transaction is written under at most once.
type IdempotencyKey struct {
	UserID        uuid.UUID
	SourceEventID string
	Reason        Reason
}

// AwardParams is the input to the ledger's Award command.
type AwardParams struct {
	UserID        uuid.UUID
	Amount        int64
	Reason        Reason
	SourceEventID string
	Metadata      json.RawMessage
	// At overrides the transaction timestamp; zero means the database clock.
	At time.Time
}

// Key returns the idempotency key of the award.
func (p AwardParams) Key() IdempotencyKey {
	return IdempotencyKey{UserID: p.UserID, SourceEventID: p.SourceEventID, Reason: p.Reason}
}

// AwardResult is the return value of the ledger's Award command.
type AwardResult struct {
	Transaction *PointTransaction
	Balance     int64
	Applied     bool // false if the key was already recorded
}

// PointsConfig holds the points granted per inbound activity.
type PointsConfig struct {
	Activity  int64 `json:"activity"`
	Memory    int64 `json:"memory"`
	Milestone int64 `json:"milestone"`
	Login     int64 `json:"login"`
}

// DefaultPointsConfig returns the default per-activity points.
func DefaultPointsConfig() PointsConfig {
	return PointsConfig{
		Activity:  10,
		Memory:    50,
		Milestone: 100,
		Login:     5,
	}
}

// For returns the points for the given activity reason.
func (c PointsConfig) For(reason Reason) int64 {
	switch reason {
	case ReasonActivity:
		return c.Activity
	case ReasonMemory:
		return c.Memory
	case ReasonMilestone:
		return c.Milestone
	case ReasonLogin:
		return c.Login
	}
	return 0
}
