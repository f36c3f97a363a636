// Package badge awards badges from declarative rule conditions evaluated
// against a user's progression state.
package badge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/ledger"
	"github.com/babysteps/progression/internal/level"
	"github.com/babysteps/progression/internal/repository"
	lru "github.com/hashicorp/golang-lru"
	"github.com/jackc/pgx/v5"
)

// DefaultCacheSize bounds the number of compiled conditions kept in memory.
const DefaultCacheSize = 512

// compiled is a cache entry. A nil expr records a condition that failed to
// parse so it is not reparsed on every event.
type compiled struct {
	expr Expr
	err  error
}

// Evaluator runs the active rule catalog against a user and awards newly met badges.
type Evaluator struct {
	rules  repository.RuleRepository
	badges repository.BadgeRepository
	ledger *ledger.Engine
	outbox repository.OutboxRepository
	cache  *lru.Cache
	logger *slog.Logger
}

// NewEvaluator creates a badge evaluator.
func NewEvaluator(
	rules repository.RuleRepository,
	badges repository.BadgeRepository,
	engine *ledger.Engine,
	outbox repository.OutboxRepository,
	logger *slog.Logger,
	cacheSize int,
) *Evaluator {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New(cacheSize)
	return &Evaluator{
		rules:  rules,
		badges: badges,
		ledger: engine,
		outbox: outbox,
		cache:  cache,
		logger: logger,
	}
}

// Compile returns the parsed condition, consulting the cache first.
func (e *Evaluator) Compile(condition string) (Expr, error) {
	if v, ok := e.cache.Get(condition); ok {
		c := v.(compiled)
		return c.expr, c.err
	}
	expr, err := Parse(condition)
	e.cache.Add(condition, compiled{expr: expr, err: err})
	return expr, err
}

// ValidateCondition checks an admin-submitted rule before it is stored.
func ValidateCondition(rule *domain.GamificationRule) error {
	if _, err := Parse(rule.Condition); err != nil {
		return domain.ErrInvalidRuleCondition(rule.ID, err)
	}
	return nil
}

// Evaluate awards every active rule whose condition holds and that the user
// does not already hold. The caller must hold the user lock; user is the
// locked row and state the derived view built from it. Rules are re-run until
// no new badge fires, so badges can depend on badgeCount or on points paid by
// other badges.
//
// Malformed conditions are logged and skipped. The returned user reflects any
// points paid for the new badges.
func (e *Evaluator) Evaluate(ctx context.Context, tx pgx.Tx, user *domain.UserProgression, state *domain.ProgressionState, at time.Time) ([]string, *domain.UserProgression, error) {
	rules, err := e.rules.List(ctx, tx, true)
	if err != nil {
		return nil, nil, fmt.Errorf("list rules: %w", err)
	}

	var awarded []string
	for pass := 0; pass <= len(rules); pass++ {
		fired := false
		for i := range rules {
			rule := &rules[i]
			if state.HasBadge(rule.ID) {
				continue
			}

			expr, err := e.Compile(rule.Condition)
			if err != nil {
				e.logger.Warn("invalid rule condition",
					"error", domain.ErrInvalidRuleCondition(rule.ID, err),
					"rule_id", rule.ID,
					"condition", rule.Condition)
				continue
			}
			if !expr.Eval(state) {
				continue
			}

			var inserted bool
			user, inserted, err = e.award(ctx, tx, user, rule, at)
			if err != nil {
				return nil, nil, err
			}
			state.Badges[rule.ID] = at
			if !inserted {
				continue
			}
			state.Balance = user.Balance
			info := level.Of(user.Balance)
			state.Level = info.Level
			state.ProgressToNextLevel = info.Percent
			awarded = append(awarded, rule.ID)
			fired = true
		}
		if !fired {
			break
		}
	}
	return awarded, user, nil
}

// award inserts the badge and pays its reward. It reports false when the user
// already held the badge.
func (e *Evaluator) award(ctx context.Context, tx pgx.Tx, user *domain.UserProgression, rule *domain.GamificationRule, at time.Time) (*domain.UserProgression, bool, error) {
	inserted, err := e.badges.Insert(ctx, tx, domain.Badge{UserID: user.UserID, BadgeID: rule.ID, EarnedAt: at})
	if err != nil {
		return nil, false, fmt.Errorf("insert badge %s: %w", rule.ID, err)
	}
	if !inserted {
		return user, false, nil
	}

	if err := e.outbox.Insert(ctx, tx, domain.NewBadgeEarnedEvent(user.UserID, rule.ID, at)); err != nil {
		return nil, false, fmt.Errorf("insert badge event: %w", err)
	}

	if rule.PointsReward <= 0 {
		return user, true, nil
	}
	params := domain.AwardParams{
		UserID:        user.UserID,
		Amount:        rule.PointsReward,
		Reason:        domain.ReasonBadge,
		SourceEventID: "badge:" + rule.ID,
		Metadata:      ledger.Meta(map[string]interface{}{"badge_id": rule.ID}),
		At:            at,
	}
	entry, updated, err := e.ledger.PostLedgerEntry(ctx, tx, user, params)
	if err != nil {
		return nil, false, fmt.Errorf("badge reward %s: %w", rule.ID, err)
	}
	if entry == nil {
		return user, true, nil
	}
	return updated, true, nil
}
