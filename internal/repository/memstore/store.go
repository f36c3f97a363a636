// Package memstore is an in-memory implementation of every repository and of
// the transaction runner. Transactions are fully serialized and roll back by
// restoring a snapshot of the state taken when they began.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type streakKey struct {
	userID   uuid.UUID
	category domain.Category
}

type badgeKey struct {
	userID  uuid.UUID
	badgeID string
}

type progressKey struct {
	userID      uuid.UUID
	challengeID uuid.UUID
	weekKey     string
}

type participationKey struct {
	eventID uuid.UUID
	userID  uuid.UUID
}

type state struct {
	progression  map[uuid.UUID]domain.UserProgression
	transactions []domain.PointTransaction
	activities   map[string]domain.ActivityEvent
	streaks      map[streakKey]domain.Streak
	rules        map[string]domain.GamificationRule
	badges       map[badgeKey]domain.Badge
	challenges   map[uuid.UUID]domain.WeeklyChallenge
	schedule     map[string][]uuid.UUID
	progress     map[progressKey]domain.ChallengeProgress
	missions     map[uuid.UUID]domain.DailyMission
	userMissions []domain.UserMission
	shopItems    map[uuid.UUID]domain.ShopItem
	purchases    []domain.UserPurchase
	unlocks      []domain.AIRewardUnlock
	events       map[uuid.UUID]domain.SpecialEvent
	participants map[participationKey]domain.UserEvent
	outbox       []domain.OutboxRecord
	outboxSeq    int64
}

func newState() *state {
	return &state{
		progression:  make(map[uuid.UUID]domain.UserProgression),
		activities:   make(map[string]domain.ActivityEvent),
		streaks:      make(map[streakKey]domain.Streak),
		rules:        make(map[string]domain.GamificationRule),
		badges:       make(map[badgeKey]domain.Badge),
		challenges:   make(map[uuid.UUID]domain.WeeklyChallenge),
		schedule:     make(map[string][]uuid.UUID),
		progress:     make(map[progressKey]domain.ChallengeProgress),
		missions:     make(map[uuid.UUID]domain.DailyMission),
		shopItems:    make(map[uuid.UUID]domain.ShopItem),
		events:       make(map[uuid.UUID]domain.SpecialEvent),
		participants: make(map[participationKey]domain.UserEvent),
	}
}

// clone copies every collection. Stored values are replaced, never mutated in
// place, so copying the containers is enough for rollback.
func (s *state) clone() *state {
	c := *s
	c.progression = maps.Clone(s.progression)
	c.transactions = slices.Clone(s.transactions)
	c.activities = maps.Clone(s.activities)
	c.streaks = maps.Clone(s.streaks)
	c.rules = maps.Clone(s.rules)
	c.badges = maps.Clone(s.badges)
	c.challenges = maps.Clone(s.challenges)
	c.schedule = maps.Clone(s.schedule)
	c.progress = maps.Clone(s.progress)
	c.missions = maps.Clone(s.missions)
	c.userMissions = slices.Clone(s.userMissions)
	c.shopItems = maps.Clone(s.shopItems)
	c.purchases = slices.Clone(s.purchases)
	c.unlocks = slices.Clone(s.unlocks)
	c.events = maps.Clone(s.events)
	c.participants = maps.Clone(s.participants)
	c.outbox = slices.Clone(s.outbox)
	return &c
}

// Store holds the in-memory state.
type Store struct {
	txMu sync.Mutex // serializes transactions
	mu   sync.Mutex // guards st for reads outside transactions
	st   *state

	// Now supplies timestamps for rows written without one.
	Now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), Now: time.Now}
}

// Repositories returns every repository backed by this store.
func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Progression:  &progressionRepo{s},
		Transactions: &transactionRepo{s},
		Activities:   &activityRepo{s},
		Streaks:      &streakRepo{s},
		Rules:        &ruleRepo{s},
		Badges:       &badgeRepo{s},
		Challenges:   &challengeRepo{s},
		Missions:     &missionRepo{s},
		Shop:         &shopRepo{s},
		Events:       &eventRepo{s},
		Outbox:       &outboxRepo{s},
	}
}

// InTx runs fn with exclusive access and restores the prior state if fn fails.
// fn receives a nil pgx.Tx; memstore repositories ignore it.
func (s *Store) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	saved := s.st.clone()
	s.mu.Unlock()

	if err := fn(nil); err != nil {
		s.mu.Lock()
		s.st = saved
		s.mu.Unlock()
		return err
	}
	return nil
}

// InReadTx runs fn with exclusive access. Writes inside fn are discarded.
func (s *Store) InReadTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	saved := s.st.clone()
	s.mu.Unlock()

	err := fn(nil)
	s.mu.Lock()
	s.st = saved
	s.mu.Unlock()
	return err
}

var _ repository.TxRunner = (*Store)(nil)

// with runs f against the state under the data lock.
func (s *Store) with(f func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(s.st)
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
