package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActivityKind identifies the inbound collaborator event.
type ActivityKind string

const (
	KindActivityLogged    ActivityKind = "ActivityLogged"
	KindMemoryCreated     ActivityKind = "MemoryCreated"
	KindMilestoneAchieved ActivityKind = "MilestoneAchieved"
	KindUserLoggedIn      ActivityKind = "UserLoggedIn"
)

// ActivityEvent is the normalized form of every inbound event. EventID is the
// idempotency key supplied by the emitting collaborator.
type ActivityEvent struct {
	Kind         ActivityKind `json:"type"`
	EventID      string       `json:"event_id"`
	UserID       uuid.UUID    `json:"user_id"`
	BabyID       *uuid.UUID   `json:"baby_id,omitempty"`
	ActivityType string       `json:"activity_type,omitempty"`
	OccurredAt   time.Time    `json:"occurred_at"`
}

// Category returns the progression category of the event.
func (e ActivityEvent) Category() Category {
	switch e.Kind {
	case KindMemoryCreated:
		return CategoryMemory
	case KindMilestoneAchieved:
		return CategoryMilestone
	case KindUserLoggedIn:
		return CategoryLogin
	}
	return CategoryActivity
}

// Reason returns the ledger reason the event's points are written under.
func (e ActivityEvent) Reason() Reason {
	switch e.Kind {
	case KindMemoryCreated:
		return ReasonMemory
	case KindMilestoneAchieved:
		return ReasonMilestone
	case KindUserLoggedIn:
		return ReasonLogin
	}
	return ReasonActivity
}

// Counters returns the aggregate counter increments of the event.
func (e ActivityEvent) Counters() CounterDelta {
	switch e.Kind {
	case KindMemoryCreated:
		return CounterDelta{Memories: 1}
	case KindMilestoneAchieved:
		return CounterDelta{Milestones: 1}
	case KindUserLoggedIn:
		return CounterDelta{Logins: 1}
	}
	return CounterDelta{Activities: 1}
}

// Streaked reports whether the event's category maintains a streak.
func (e ActivityEvent) Streaked() bool {
	c := e.Category()
	for _, sc := range StreakCategories {
		if sc == c {
			return true
		}
	}
	return false
}

// ActivityLogged is emitted when a caregiver logs an activity.
type ActivityLogged struct {
	UserID       uuid.UUID `json:"user_id"`
	BabyID       uuid.UUID `json:"baby_id"`
	ActivityType string    `json:"activity_type"`
	OccurredAt   time.Time `json:"occurred_at"`
	EventID      string    `json:"event_id"`
}

// Event normalizes the payload.
func (a ActivityLogged) Event() ActivityEvent {
	baby := a.BabyID
	return ActivityEvent{Kind: KindActivityLogged, EventID: a.EventID, UserID: a.UserID, BabyID: &baby, ActivityType: a.ActivityType, OccurredAt: a.OccurredAt}
}

// MemoryCreated is emitted when a memory is stored.
type MemoryCreated struct {
	UserID  uuid.UUID `json:"user_id"`
	BabyID  uuid.UUID `json:"baby_id"`
	EventID string    `json:"event_id"`
}

// Event normalizes the payload.
func (m MemoryCreated) Event() ActivityEvent {
	baby := m.BabyID
	return ActivityEvent{Kind: KindMemoryCreated, EventID: m.EventID, UserID: m.UserID, BabyID: &baby}
}

// MilestoneAchieved is emitted when a milestone is recorded.
type MilestoneAchieved struct {
	UserID  uuid.UUID `json:"user_id"`
	BabyID  uuid.UUID `json:"baby_id"`
	EventID string    `json:"event_id"`
}

// Event normalizes the payload.
func (m MilestoneAchieved) Event() ActivityEvent {
	baby := m.BabyID
	return ActivityEvent{Kind: KindMilestoneAchieved, EventID: m.EventID, UserID: m.UserID, BabyID: &baby}
}

// UserLoggedIn is emitted on every sign-in.
type UserLoggedIn struct {
	UserID     uuid.UUID `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
	EventID    string    `json:"event_id"`
}

// Event normalizes the payload.
func (u UserLoggedIn) Event() ActivityEvent {
	return ActivityEvent{Kind: KindUserLoggedIn, EventID: u.EventID, UserID: u.UserID, OccurredAt: u.OccurredAt}
}

// Envelope is the wire form of an inbound event: a kind tag plus the
// kind-specific payload.
type Envelope struct {
	Type    ActivityKind    `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeActivity parses an envelope and normalizes its payload. Unknown kinds
// and malformed payloads are validation errors.
func DecodeActivity(data []byte) (ActivityEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ActivityEvent{}, ErrValidation(fmt.Sprintf("malformed envelope: %v", err))
	}
	if len(env.Payload) == 0 {
		return ActivityEvent{}, ErrValidation("envelope payload is required")
	}

	var (
		evt ActivityEvent
		err error
	)
	switch env.Type {
	case KindActivityLogged:
		var p ActivityLogged
		err = json.Unmarshal(env.Payload, &p)
		evt = p.Event()
	case KindMemoryCreated:
		var p MemoryCreated
		err = json.Unmarshal(env.Payload, &p)
		evt = p.Event()
	case KindMilestoneAchieved:
		var p MilestoneAchieved
		err = json.Unmarshal(env.Payload, &p)
		evt = p.Event()
	case KindUserLoggedIn:
		var p UserLoggedIn
		err = json.Unmarshal(env.Payload, &p)
		evt = p.Event()
	default:
		return ActivityEvent{}, ErrValidation(fmt.Sprintf("unknown event type %q", env.Type))
	}
	if err != nil {
		return ActivityEvent{}, ErrValidation(fmt.Sprintf("malformed %s payload: %v", env.Type, err))
	}
	return evt, nil
}
