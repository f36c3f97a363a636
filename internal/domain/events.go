package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

func userDraft(userID uuid.UUID, evtType EventType, payload any, at time.Time) OutboxDraft {
	body, _ := json.Marshal(payload)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateUser,
		AggregateID:   userID.String(),
		EventType:     evtType,
		PartitionKey:  userID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       body,
		OccurredAt:    at,
	}
}

// NewPointsAwardedEvent creates the standard ledger event for a point transaction.
func NewPointsAwardedEvent(tx *PointTransaction) OutboxDraft {
	return userDraft(tx.UserID, EventPointsAwarded, tx, tx.CreatedAt)
}

// NewLevelUpEvent is emitted when a balance change crosses one or more level thresholds.
func NewLevelUpEvent(userID uuid.UUID, from, to int, at time.Time) OutboxDraft {
	return userDraft(userID, EventLevelUp, map[string]any{
		"user_id":    userID.String(),
		"from_level": from,
		"to_level":   to,
	}, at)
}

// NewBadgeEarnedEvent is emitted once per newly awarded badge.
func NewBadgeEarnedEvent(userID uuid.UUID, badgeID string, at time.Time) OutboxDraft {
	return userDraft(userID, EventBadgeEarned, map[string]any{
		"user_id":  userID.String(),
		"badge_id": badgeID,
	}, at)
}

// NewChallengeCompletedEvent is emitted when progress first reaches the goal.
func NewChallengeCompletedEvent(p *ChallengeProgress, at time.Time) OutboxDraft {
	return userDraft(p.UserID, EventChallengeCompleted, map[string]any{
		"user_id":      p.UserID.String(),
		"challenge_id": p.ChallengeID.String(),
		"week_key":     p.WeekKey,
		"title":        p.Title,
	}, at)
}

// NewChallengeClaimedEvent is emitted when a weekly challenge reward is paid.
func NewChallengeClaimedEvent(userID, challengeID uuid.UUID, weekKey string, points int64, at time.Time) OutboxDraft {
	return userDraft(userID, EventChallengeClaimed, map[string]any{
		"user_id":      userID.String(),
		"challenge_id": challengeID.String(),
		"week_key":     weekKey,
		"points":       points,
	}, at)
}

// NewMissionCompletedEvent is emitted when a daily mission reaches its goal.
func NewMissionCompletedEvent(m *UserMission, at time.Time) OutboxDraft {
	return userDraft(m.UserID, EventMissionCompleted, map[string]any{
		"user_id":    m.UserID.String(),
		"mission_id": m.MissionID.String(),
		"day":        m.Day,
		"title":      m.Title,
	}, at)
}

// NewMissionClaimedEvent is emitted when a daily mission reward is paid.
func NewMissionClaimedEvent(m *UserMission, at time.Time) OutboxDraft {
	return userDraft(m.UserID, EventMissionClaimed, map[string]any{
		"user_id":    m.UserID.String(),
		"mission_id": m.MissionID.String(),
		"day":        m.Day,
		"points":     m.PointsReward,
	}, at)
}

// NewItemPurchasedEvent is emitted for every shop receipt.
func NewItemPurchasedEvent(p *UserPurchase) OutboxDraft {
	return userDraft(p.UserID, EventItemPurchased, p, p.PurchasedAt)
}

// NewAIRewardUnlockedEvent is emitted once per unlocked AI reward.
func NewAIRewardUnlockedEvent(u *AIRewardUnlock) OutboxDraft {
	return userDraft(u.UserID, EventAIRewardUnlocked, u, u.UnlockedAt)
}

// NewEventRewardGrantedEvent is emitted for every tier paid out at finalization.
func NewEventRewardGrantedEvent(userID, eventID uuid.UUID, tier RewardTier, at time.Time) OutboxDraft {
	return userDraft(userID, EventEventRewardGranted, map[string]any{
		"user_id":  userID.String(),
		"event_id": eventID.String(),
		"tier_id":  tier.ID,
		"points":   tier.Points,
	}, at)
}

// NewEventFinalizedEvent closes out a special event.
func NewEventFinalizedEvent(res *FinalizeResult, at time.Time) OutboxDraft {
	body, _ := json.Marshal(res)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateEvent,
		AggregateID:   res.EventID.String(),
		EventType:     EventEventFinalized,
		PartitionKey:  res.EventID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       body,
		OccurredAt:    at,
	}
}
