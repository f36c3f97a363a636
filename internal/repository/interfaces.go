package repository

import (
	"context"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// TxRunner runs a function inside a database transaction. The function may be
// invoked more than once when the transaction is retried, so it must not have
// side effects outside tx.
type TxRunner interface {
	// InTx runs fn in a read-committed read-write transaction.
	InTx(ctx context.Context, fn func(tx pgx.Tx) error) error

	// InReadTx runs fn in a repeatable-read read-only transaction.
	InReadTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// ProgressionRepository provides access to user_progression, the per-user
// aggregate row that every per-user mutation locks first.
type ProgressionRepository interface {
	// LockForUpdate lazily creates the user's row and acquires a row-level lock on it.
	LockForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.UserProgression, error)

	// Find returns the user's row, or nil if the user has no history.
	Find(ctx context.Context, db DBTX, userID uuid.UUID) (*domain.UserProgression, error)

	// ApplyBalance adds delta to the balance using server-side arithmetic. It
	// returns nil without writing when the result would be negative.
	ApplyBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, delta int64) (*domain.UserProgression, error)

	// IncrementCounters adds d to the activity counters.
	IncrementCounters(ctx context.Context, tx pgx.Tx, userID uuid.UUID, d domain.CounterDelta) error

	// SetTimezone stores the user's IANA timezone.
	SetTimezone(ctx context.Context, db DBTX, userID uuid.UUID, tz string) error

	// ListUserIDs returns every user with a progression row, ordered by id.
	ListUserIDs(ctx context.Context, db DBTX) ([]uuid.UUID, error)
}

// TransactionRepository provides access to point_transactions.
type TransactionRepository interface {
	// FindExisting checks the idempotency index for a recorded transaction.
	FindExisting(ctx context.Context, db DBTX, key domain.IdempotencyKey) (*domain.PointTransaction, error)

	// Insert appends a ledger entry. It returns nil if the idempotency key already exists.
	Insert(ctx context.Context, db DBTX, entry *domain.PointTransaction) (*domain.PointTransaction, error)

	// ListByUser returns transactions for a user, newest first, with cursor pagination.
	ListByUser(ctx context.Context, db DBTX, userID uuid.UUID, cursor *string, limit int) ([]domain.PointTransaction, error)

	// Totals returns the sum of amounts, the entry count and the newest entry of a user.
	Totals(ctx context.Context, db DBTX, userID uuid.UUID) (sum int64, count int64, last *domain.PointTransaction, err error)

	// WeeklyTotals sums amounts per user over [start, end), ordered by points
	// descending, earliest entry ascending, then user id. Rank is left unset.
	WeeklyTotals(ctx context.Context, db DBTX, start, end time.Time, limit int) ([]domain.GamificationRankingEntry, error)
}

// ActivityRepository provides access to activity_events, the processed inbound event ids.
type ActivityRepository interface {
	// MarkProcessed records the event. It returns false if the event id was already recorded.
	MarkProcessed(ctx context.Context, tx pgx.Tx, evt domain.ActivityEvent) (bool, error)
}

// StreakRepository provides access to user_streaks.
type StreakRepository interface {
	Find(ctx context.Context, db DBTX, userID uuid.UUID, category domain.Category) (*domain.Streak, error)
	ListByUser(ctx context.Context, db DBTX, userID uuid.UUID) ([]domain.Streak, error)
	Upsert(ctx context.Context, db DBTX, s *domain.Streak) error
}

// RuleRepository provides access to gamification_rules.
type RuleRepository interface {
	List(ctx context.Context, db DBTX, activeOnly bool) ([]domain.GamificationRule, error)
	Upsert(ctx context.Context, db DBTX, rule *domain.GamificationRule) error
}

// BadgeRepository provides access to user_badges.
type BadgeRepository interface {
	ListByUser(ctx context.Context, db DBTX, userID uuid.UUID) ([]domain.Badge, error)

	// Insert awards a badge. It returns false if the user already holds it.
	Insert(ctx context.Context, db DBTX, badge domain.Badge) (bool, error)
}

// ChallengeRepository provides access to weekly_challenges, the weekly
// schedule and challenge_progress.
type ChallengeRepository interface {
	List(ctx context.Context, db DBTX, activeOnly bool) ([]domain.WeeklyChallenge, error)
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.WeeklyChallenge, error)
	Upsert(ctx context.Context, db DBTX, c *domain.WeeklyChallenge) error

	// Schedule materializes the week's challenge set. Existing entries are kept.
	Schedule(ctx context.Context, db DBTX, weekKey string, ids []uuid.UUID) error

	// ListScheduled returns the active challenges scheduled for the week.
	ListScheduled(ctx context.Context, db DBTX, weekKey string) ([]domain.WeeklyChallenge, error)

	FindProgress(ctx context.Context, db DBTX, userID, challengeID uuid.UUID, weekKey string) (*domain.ChallengeProgress, error)
	ListProgress(ctx context.Context, db DBTX, userID uuid.UUID, weekKey string) ([]domain.ChallengeProgress, error)

	// SaveProgress inserts or updates the progress row for (user, challenge, week).
	SaveProgress(ctx context.Context, db DBTX, p *domain.ChallengeProgress) error

	// MarkClaimed flips reward_claimed on a completed, unclaimed row. It returns
	// false when no row qualified.
	MarkClaimed(ctx context.Context, db DBTX, userID, challengeID uuid.UUID, weekKey string, at time.Time) (bool, error)
}

// MissionRepository provides access to daily_missions and user_missions.
type MissionRepository interface {
	List(ctx context.Context, db DBTX, activeOnly bool) ([]domain.DailyMission, error)
	Upsert(ctx context.Context, db DBTX, m *domain.DailyMission) error

	// ListForDay returns the user's assignments for the day, ordered by mission title.
	ListForDay(ctx context.Context, db DBTX, userID uuid.UUID, day string) ([]domain.UserMission, error)

	// Assign inserts assignments, skipping any (user, mission, day) that exists.
	Assign(ctx context.Context, db DBTX, missions []domain.UserMission) error

	// FindLatest returns the user's most recent assignment of the mission.
	FindLatest(ctx context.Context, db DBTX, userID, missionID uuid.UUID) (*domain.UserMission, error)

	// SaveProgress updates progress and completion of an assignment.
	SaveProgress(ctx context.Context, db DBTX, m *domain.UserMission) error

	// MarkClaimed flips reward_claimed on a completed, unclaimed, unexpired assignment.
	MarkClaimed(ctx context.Context, db DBTX, id uuid.UUID) (bool, error)

	// ExpireBefore marks every unclaimed assignment whose expires_at <= now as expired.
	ExpireBefore(ctx context.Context, db DBTX, now time.Time) (int64, error)
}

// ShopRepository provides access to shop_items, user_purchases and ai_reward_unlocks.
type ShopRepository interface {
	List(ctx context.Context, db DBTX, activeOnly bool) ([]domain.ShopItem, error)
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.ShopItem, error)
	Upsert(ctx context.Context, db DBTX, item *domain.ShopItem) error
	SetActive(ctx context.Context, db DBTX, id uuid.UUID, active bool) (bool, error)

	// IncrementSold reserves one unit. It returns false when a limited item is sold out.
	IncrementSold(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)

	// InsertPurchase writes a receipt. It returns nil if (user, request id) already exists.
	InsertPurchase(ctx context.Context, tx pgx.Tx, p *domain.UserPurchase) (*domain.UserPurchase, error)
	FindPurchase(ctx context.Context, db DBTX, userID uuid.UUID, requestID string) (*domain.UserPurchase, error)
	ListPurchases(ctx context.Context, db DBTX, userID uuid.UUID) ([]domain.UserPurchase, error)

	// InsertUnlock writes an AI reward unlock. It returns nil if already unlocked.
	InsertUnlock(ctx context.Context, tx pgx.Tx, u *domain.AIRewardUnlock) (*domain.AIRewardUnlock, error)
	FindUnlock(ctx context.Context, db DBTX, userID uuid.UUID, rewardID string) (*domain.AIRewardUnlock, error)
}

// EventRepository provides access to special_events and user_events.
type EventRepository interface {
	Create(ctx context.Context, db DBTX, e *domain.SpecialEvent) error
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.SpecialEvent, error)

	// ListEndedUnfinalized returns events whose end_date is before now and not finalized.
	ListEndedUnfinalized(ctx context.Context, db DBTX, now time.Time) ([]domain.SpecialEvent, error)

	// MarkFinalized flips the finalized flag. It returns false if already set.
	MarkFinalized(ctx context.Context, db DBTX, id uuid.UUID, at time.Time) (bool, error)

	// Join inserts a participation row. It returns false if the user already joined.
	Join(ctx context.Context, db DBTX, ue *domain.UserEvent) (bool, error)
	FindParticipation(ctx context.Context, db DBTX, userID, eventID uuid.UUID) (*domain.UserEvent, error)

	// ListJoinedActive returns the user's participations in events active at now.
	ListJoinedActive(ctx context.Context, db DBTX, userID uuid.UUID, now time.Time) ([]domain.UserEvent, error)

	// SaveParticipation updates progress, rewards and completion.
	SaveParticipation(ctx context.Context, db DBTX, ue *domain.UserEvent) error

	// ListParticipants returns every user that joined the event, ordered by id.
	ListParticipants(ctx context.Context, db DBTX, eventID uuid.UUID) ([]uuid.UUID, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the ledger entry).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events for the outbox poller.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxRecord, error)

	// MarkPublished deletes published events.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}

// Repositories bundles every repository the engine uses.
type Repositories struct {
	Progression  ProgressionRepository
	Transactions TransactionRepository
	Activities   ActivityRepository
	Streaks      StreakRepository
	Rules        RuleRepository
	Badges       BadgeRepository
	Challenges   ChallengeRepository
	Missions     MissionRepository
	Shop         ShopRepository
	Events       EventRepository
	Outbox       OutboxRepository
}

// NewPostgres returns the pgx-backed repositories.
func NewPostgres() Repositories {
	return Repositories{
		Progression:  NewProgressionRepository(),
		Transactions: NewTransactionRepository(),
		Activities:   NewActivityRepository(),
		Streaks:      NewStreakRepository(),
		Rules:        NewRuleRepository(),
		Badges:       NewBadgeRepository(),
		Challenges:   NewChallengeRepository(),
		Missions:     NewMissionRepository(),
		Shop:         NewShopRepository(),
		Events:       NewEventRepository(),
		Outbox:       NewOutboxRepository(),
	}
}
