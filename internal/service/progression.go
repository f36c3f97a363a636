package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/babysteps/progression/internal/badge"
	"github.com/babysteps/progression/internal/calendar"
	"github.com/babysteps/progression/internal/challenge"
	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/ledger"
	"github.com/babysteps/progression/internal/level"
	"github.com/babysteps/progression/internal/mission"
	"github.com/babysteps/progression/internal/projection"
	"github.com/babysteps/progression/internal/ranking"
	"github.com/babysteps/progression/internal/repository"
	"github.com/babysteps/progression/internal/shop"
	"github.com/babysteps/progression/internal/specialevent"
	"github.com/babysteps/progression/internal/streak"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RewardSource resolves AI rewards offered by the content collaborator.
type RewardSource interface {
	Reward(ctx context.Context, rewardID string) (*domain.AIReward, error)
}

// Deps holds everything NewProgressionService needs. Cache and Rewards are
// optional.
type Deps struct {
	Runner     repository.TxRunner
	Repos      repository.Repositories
	Ledger     *ledger.Engine
	Streaks    *streak.Tracker
	Badges     *badge.Evaluator
	Challenges *challenge.Engine
	Missions   *mission.Scheduler
	Shop       *shop.Economy
	Events     *specialevent.Engine
	Ranking    *ranking.Aggregator
	Cache      *projection.SnapshotCache
	Rewards    RewardSource
	Policy     calendar.Policy
	Points     domain.PointsConfig
	Logger     *slog.Logger
	Now        func() time.Time
}

// ProgressionService is the progression orchestrator: it turns inbound
// activity into ledger, streak, badge, challenge, mission and event updates
// in a single transaction, and composes the snapshot the UI renders.
type ProgressionService struct {
	runner     repository.TxRunner
	repos      repository.Repositories
	ledger     *ledger.Engine
	streaks    *streak.Tracker
	badges     *badge.Evaluator
	challenges *challenge.Engine
	missions   *mission.Scheduler
	shop       *shop.Economy
	events     *specialevent.Engine
	ranking    *ranking.Aggregator
	cache      *projection.SnapshotCache
	rewards    RewardSource
	policy     calendar.Policy
	points     domain.PointsConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewProgressionService creates a ProgressionService.
func NewProgressionService(d Deps) *ProgressionService {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &ProgressionService{
		runner:     d.Runner,
		repos:      d.Repos,
		ledger:     d.Ledger,
		streaks:    d.Streaks,
		badges:     d.Badges,
		challenges: d.Challenges,
		missions:   d.Missions,
		shop:       d.Shop,
		events:     d.Events,
		ranking:    d.Ranking,
		cache:      d.Cache,
		rewards:    d.Rewards,
		policy:     d.Policy,
		points:     d.Points,
		logger:     d.Logger,
		now:        now,
	}
}

func validateActivity(evt domain.ActivityEvent) error {
	switch evt.Kind {
	case domain.KindActivityLogged, domain.KindMemoryCreated, domain.KindMilestoneAchieved, domain.KindUserLoggedIn:
	default:
		return domain.ErrValidation(fmt.Sprintf("unknown activity type: %q", evt.Kind))
	}
	if strings.TrimSpace(evt.EventID) == "" {
		return domain.ErrValidation("event_id is required")
	}
	if evt.UserID == uuid.Nil {
		return domain.ErrValidation("user_id is required")
	}
	return nil
}

// ProcessActivity applies one inbound event exactly once.
// Pattern: MarkProcessed → Lock → Award → Counters → Streak → Challenges →
// Missions → Events → Badges
//
// A previously seen event id changes nothing and returns the current snapshot
// with Duplicate set.
func (s *ProgressionService) ProcessActivity(ctx context.Context, evt domain.ActivityEvent) (*domain.GamificationSnapshot, error) {
	if err := validateActivity(evt); err != nil {
		return nil, err
	}
	now := s.now()
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = now
	}

	var (
		duplicate bool
		levelUp   bool
		newBadges []string
	)
	err := s.runner.InTx(ctx, func(tx pgx.Tx) error {
		duplicate, levelUp, newBadges = false, false, nil

		fresh, err := s.repos.Activities.MarkProcessed(ctx, tx, evt)
		if err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
		if !fresh {
			duplicate = true
			return nil
		}

		user, err := s.ledger.LockUserForUpdate(ctx, tx, evt.UserID)
		if err != nil {
			return err
		}
		before := user.Balance
		loc := s.policy.UserLocation(user.Timezone)
		category := evt.Category()

		if pts := s.points.For(evt.Reason()); pts > 0 {
			if _, err := s.ledger.Award(ctx, tx, domain.AwardParams{
				UserID:        evt.UserID,
				Amount:        pts,
				Reason:        evt.Reason(),
				SourceEventID: evt.EventID,
				Metadata:      ledger.Meta(map[string]interface{}{"activity_type": evt.ActivityType, "kind": evt.Kind}),
				At:            now,
			}); err != nil {
				return err
			}
		}

		if err := s.repos.Progression.IncrementCounters(ctx, tx, evt.UserID, evt.Counters()); err != nil {
			return fmt.Errorf("increment counters: %w", err)
		}
		if evt.Streaked() {
			if _, err := s.streaks.Touch(ctx, tx, evt.UserID, category, evt.OccurredAt, loc); err != nil {
				return err
			}
		}
		if _, err := s.challenges.RecordProgress(ctx, tx, evt.UserID, category, 1, now); err != nil {
			return err
		}
		if _, err := s.missions.RecordProgress(ctx, tx, evt.UserID, category, 1, now, loc); err != nil {
			return err
		}
		if _, err := s.events.RecordProgress(ctx, tx, evt.UserID, string(category), 1, now); err != nil {
			return err
		}

		user, err = s.repos.Progression.Find(ctx, tx, evt.UserID)
		if err != nil {
			return fmt.Errorf("reload progression: %w", err)
		}
		state, err := s.state(ctx, tx, user, loc, now)
		if err != nil {
			return err
		}
		newBadges, user, err = s.badges.Evaluate(ctx, tx, user, state, now)
		if err != nil {
			return err
		}

		_, _, levelUp = level.Crossed(before, user.Balance)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if duplicate {
		s.logger.Debug("duplicate activity event", "event_id", evt.EventID, "user_id", evt.UserID)
	} else {
		s.invalidate(ctx, evt.UserID)
	}

	snap, err := s.GetSnapshot(ctx, evt.UserID)
	if err != nil {
		return nil, err
	}
	snap.NewBadges = newBadges
	snap.LevelUp = levelUp
	snap.Duplicate = duplicate
	return snap, nil
}

// state builds the badge evaluation view of a user. user may be nil for a
// user with no history.
func (s *ProgressionService) state(ctx context.Context, db repository.DBTX, user *domain.UserProgression, loc *time.Location, now time.Time) (*domain.ProgressionState, error) {
	if user == nil {
		return nil, fmt.Errorf("build state: nil user")
	}
	st := domain.NewProgressionState(user.UserID)
	st.Balance = user.Balance
	info := level.Of(user.Balance)
	st.Level = info.Level
	st.ProgressToNextLevel = info.Percent
	st.TotalActivities = user.TotalActivities
	st.TotalMemories = user.TotalMemories
	st.TotalMilestones = user.TotalMilestones
	st.TotalLogins = user.TotalLogins

	current, longest, last, err := s.streaks.Current(ctx, db, user.UserID, now, loc)
	if err != nil {
		return nil, err
	}
	st.Streaks = current
	st.LongestStreaks = longest
	st.LastActivityDateByCategory = last

	held, err := s.repos.Badges.ListByUser(ctx, db, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	for _, b := range held {
		st.Badges[b.BadgeID] = b.EarnedAt
	}
	return st, nil
}

func (s *ProgressionService) invalidate(ctx context.Context, userID uuid.UUID) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, userID)
	}
}

// GetSnapshot assembles the user's full gamification view. Today's missions
// and this week's challenge schedule are materialized first; the balance,
// level, badges and streaks come from the snapshot cache when one is set.
func (s *ProgressionService) GetSnapshot(ctx context.Context, userID uuid.UUID) (*domain.GamificationSnapshot, error) {
	now := s.now()

	var loc *time.Location
	err := s.runner.InTx(ctx, func(tx pgx.Tx) error {
		// assigned missions reference the aggregate row, so a user with no
		// history gets one here
		user, err := s.ledger.LockUserForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		loc = s.policy.UserLocation(user.Timezone)

		if _, err := s.challenges.EnsureSchedule(ctx, tx, s.policy.WeekKey(now)); err != nil {
			return err
		}
		_, err = s.missions.Assign(ctx, tx, userID, now, loc)
		return err
	})
	if err != nil {
		return nil, err
	}

	proj, err := s.projection(ctx, userID, now, loc)
	if err != nil {
		return nil, err
	}

	snap := &domain.GamificationSnapshot{
		UserID:              userID,
		Balance:             proj.Balance,
		Level:               proj.Level,
		ProgressToNextLevel: proj.ProgressToNextLevel,
		Badges:              proj.Badges,
		Streaks:             proj.Streaks,
		NewBadges:           []string{},
	}
	err = s.runner.InReadTx(ctx, func(tx pgx.Tx) error {
		var err error
		if snap.WeeklyChallenges, err = s.challenges.Current(ctx, tx, userID, now); err != nil {
			return err
		}
		if snap.DailyMissions, err = s.missions.Today(ctx, tx, userID, now, loc); err != nil {
			return err
		}
		if snap.ActiveEvents, err = s.events.Active(ctx, tx, userID, now); err != nil {
			return err
		}
		if snap.ShopItems, err = s.shop.Catalog(ctx, tx); err != nil {
			return err
		}
		if snap.UserPurchases, err = s.shop.Purchases(ctx, tx, userID); err != nil {
			return err
		}
		snap.WeeklyRanking, err = s.ranking.Current(ctx, tx, now, 0)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *ProgressionService) projection(ctx context.Context, userID uuid.UUID, now time.Time, loc *time.Location) (*projection.ProgressionProjection, error) {
	load := func(ctx context.Context) (*projection.ProgressionProjection, error) {
		var out *projection.ProgressionProjection
		err := s.runner.InReadTx(ctx, func(tx pgx.Tx) error {
			var err error
			out, err = s.loadProjection(ctx, tx, userID, now, loc)
			return err
		})
		return out, err
	}
	if s.cache == nil {
		return load(ctx)
	}
	return s.cache.Get(ctx, userID, load)
}

func (s *ProgressionService) loadProjection(ctx context.Context, db repository.DBTX, userID uuid.UUID, now time.Time, loc *time.Location) (*projection.ProgressionProjection, error) {
	user, err := s.repos.Progression.Find(ctx, db, userID)
	if err != nil {
		return nil, fmt.Errorf("find progression: %w", err)
	}
	if user == nil {
		user = &domain.UserProgression{UserID: userID}
	}
	st, err := s.state(ctx, db, user, loc, now)
	if err != nil {
		return nil, err
	}

	rules, err := s.repos.Rules.List(ctx, db, false)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	byID := make(map[string]domain.GamificationRule, len(rules))
	for _, r := range rules {
		byID[r.ID] = r
	}

	held, err := s.repos.Badges.ListByUser(ctx, db, userID)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	badges := make([]domain.EarnedBadge, 0, len(held))
	for _, b := range held {
		rule := byID[b.BadgeID]
		badges = append(badges, domain.EarnedBadge{ID: b.BadgeID, Name: rule.Name, Icon: rule.Icon, EarnedAt: b.EarnedAt})
	}

	return &projection.ProgressionProjection{
		UserID:              userID,
		Balance:             st.Balance,
		Level:               st.Level,
		ProgressToNextLevel: st.ProgressToNextLevel,
		Badges:              badges,
		Streaks:             st.Streaks,
	}, nil
}

// ClaimChallenge pays the reward of a completed challenge of the current week.
func (s *ProgressionService) ClaimChallenge(ctx context.Context, userID, challengeID uuid.UUID) (*domain.ClaimResult, error) {
	var out *domain.ClaimResult
	err := s.runner.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = s.challenges.Claim(ctx, tx, userID, challengeID, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return out, nil
}

// ClaimMission pays the reward of a completed mission of today.
func (s *ProgressionService) ClaimMission(ctx context.Context, userID, missionID uuid.UUID) (*domain.ClaimResult, error) {
	var out *domain.ClaimResult
	err := s.runner.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = s.missions.Claim(ctx, tx, userID, missionID, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return out, nil
}

// Purchase buys a shop item. requestID makes retries safe; an empty one is
// replaced by a fresh id, so such a purchase is never deduplicated.
func (s *ProgressionService) Purchase(ctx context.Context, userID, itemID uuid.UUID, requestID string) (*domain.PurchaseResult, error) {
	if strings.TrimSpace(requestID) == "" {
		requestID = uuid.NewString()
	}
	var out *domain.PurchaseResult
	err := s.runner.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = s.shop.Purchase(ctx, tx, userID, itemID, requestID, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	if out.Applied {
		s.invalidate(ctx, userID)
	}
	return out, nil
}

// UnlockAIReward resolves the reward from the collaborator, then debits its
// price. The lookup happens before the transaction starts.
func (s *ProgressionService) UnlockAIReward(ctx context.Context, userID uuid.UUID, rewardID string) (*domain.UnlockResult, error) {
	if s.rewards == nil {
		return nil, domain.ErrUnavailable("ai rewards are not configured", nil)
	}
	reward, err := s.rewards.Reward(ctx, rewardID)
	if err != nil {
		return nil, err
	}

	var out *domain.UnlockResult
	err = s.runner.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = s.shop.UnlockAIReward(ctx, tx, userID, *reward, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	if out.Applied {
		s.invalidate(ctx, userID)
	}
	return out, nil
}

// JoinEvent enrolls the user in an active special event.
func (s *ProgressionService) JoinEvent(ctx context.Context, userID, eventID uuid.UUID) (*domain.UserEvent, bool, error) {
	var (
		out    *domain.UserEvent
		joined bool
	)
	err := s.runner.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, joined, err = s.events.Join(ctx, tx, userID, eventID, s.now())
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return out, joined, nil
}

// RecordEventProgress stores an absolute progress value reported by a
// collaborator for one event the user joined. A nil participation with a nil
// error means the event had already ended and the update was dropped.
func (s *ProgressionService) RecordEventProgress(ctx context.Context, userID, eventID uuid.UUID, key string, value int64) (*domain.UserEvent, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, domain.ErrValidation("key is required")
	}
	if value < 0 {
		return nil, domain.ErrValidation("value must not be negative")
	}

	var out *domain.UserEvent
	err := s.runner.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = s.events.SetProgress(ctx, tx, userID, eventID, key, value, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetTimezone stores the IANA timezone streaks and missions use for the user.
func (s *ProgressionService) SetTimezone(ctx context.Context, userID uuid.UUID, tz string) error {
	if err := domain.ValidateTimezone(tz); err != nil {
		return domain.ErrValidation(err.Error())
	}
	err := s.runner.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := s.ledger.LockUserForUpdate(ctx, tx, userID); err != nil {
			return err
		}
		if err := s.repos.Progression.SetTimezone(ctx, tx, userID, tz); err != nil {
			return fmt.Errorf("set timezone: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// History returns a page of the user's ledger, newest first.
func (s *ProgressionService) History(ctx context.Context, userID uuid.UUID, cursor *string, limit int) ([]domain.PointTransaction, error) {
	var out []domain.PointTransaction
	err := s.runner.InReadTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = s.ledger.History(ctx, tx, userID, cursor, limit)
		return err
	})
	return out, err
}

// Ranking returns the leaderboard of weekKey, or of the current week when
// weekKey is empty.
func (s *ProgressionService) Ranking(ctx context.Context, weekKey string, limit int) ([]domain.GamificationRankingEntry, error) {
	var out []domain.GamificationRankingEntry
	err := s.runner.InReadTx(ctx, func(tx pgx.Tx) error {
		var err error
		if weekKey == "" {
			out, err = s.ranking.Current(ctx, tx, s.now(), limit)
			return err
		}
		out, err = s.ranking.Weekly(ctx, tx, weekKey, limit)
		return err
	})
	return out, err
}

// Verify checks the user's ledger invariants.
func (s *ProgressionService) Verify(ctx context.Context, userID uuid.UUID) (*ledger.VerifyResult, error) {
	var out *ledger.VerifyResult
	err := s.runner.InReadTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = s.ledger.Verify(ctx, tx, userID)
		return err
	})
	return out, err
}
