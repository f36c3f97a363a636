package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all outbound domain event types.
type EventType string

const (
	EventPointsAwarded      EventType = "progression.points.awarded"
	EventLevelUp            EventType = "progression.level.up"
	EventBadgeEarned        EventType = "progression.badge.earned"
	EventChallengeCompleted EventType = "progression.challenge.completed"
	EventChallengeClaimed   EventType = "progression.challenge.claimed"
	EventMissionCompleted   EventType = "progression.mission.completed"
	EventMissionClaimed     EventType = "progression.mission.claimed"
	EventItemPurchased      EventType = "progression.shop.purchased"
	EventAIRewardUnlocked   EventType = "progression.ai_reward.unlocked"
	EventEventRewardGranted EventType = "progression.event.reward_granted"
	EventEventFinalized     EventType = "progression.event.finalized"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateUser  AggregateType = "user"
	AggregateEvent AggregateType = "special_event"
)

// OutboxDraft is the payload written to the event_outbox table.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// OutboxRecord is a stored outbox row as read back by the relay.
type OutboxRecord struct {
	ID int64
	OutboxDraft
	PublishedAt *time.Time
}

// GuardResult is the outcome of a guard check.
type GuardResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Guard   string `json:"guard,omitempty"` // which guard blocked
}
