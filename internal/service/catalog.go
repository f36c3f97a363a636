package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/babysteps/progression/internal/badge"
	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/repository"
	"github.com/babysteps/progression/internal/specialevent"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CatalogService manages the admin-curated catalogs: badge rules, weekly
// challenges, daily missions, shop items and special events.
type CatalogService struct {
	runner repository.TxRunner
	repos  repository.Repositories
	events *specialevent.Engine
	now    func() time.Time
}

// NewCatalogService creates a CatalogService.
func NewCatalogService(runner repository.TxRunner, repos repository.Repositories, events *specialevent.Engine) *CatalogService {
	return &CatalogService{runner: runner, repos: repos, events: events, now: time.Now}
}

// WithClock replaces the time source used to finalize events.
func (s *CatalogService) WithClock(now func() time.Time) *CatalogService {
	if now != nil {
		s.now = now
	}
	return s
}

func validateGoal(title string, category domain.Category, goal int, reward int64) error {
	if strings.TrimSpace(title) == "" {
		return domain.ErrValidation("title is required")
	}
	if err := domain.ValidateCategory(category); err != nil {
		return domain.ErrValidation(err.Error())
	}
	if goal <= 0 {
		return domain.ErrValidation("goal must be positive")
	}
	if reward < 0 {
		return domain.ErrValidation("points_reward must not be negative")
	}
	return nil
}

// ListRules returns every badge rule.
func (s *CatalogService) ListRules(ctx context.Context) ([]domain.GamificationRule, error) {
	var out []domain.GamificationRule
	err := s.runner.InReadTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = s.repos.Rules.List(ctx, tx, false)
		return err
	})
	return out, err
}

// SaveRule creates or replaces a badge rule. The condition must parse.
func (s *CatalogService) SaveRule(ctx context.Context, rule *domain.GamificationRule) error {
	if strings.TrimSpace(rule.ID) == "" {
		return domain.ErrValidation("rule id is required")
	}
	if rule.PointsReward < 0 {
		return domain.ErrValidation("points_reward must not be negative")
	}
	if err := badge.ValidateCondition(rule); err != nil {
		return err
	}
	return s.runner.InTx(ctx, func(tx pgx.Tx) error {
		return s.repos.Rules.Upsert(ctx, tx, rule)
	})
}

// ListChallenges returns the weekly challenge catalog.
func (s *CatalogService) ListChallenges(ctx context.Context) ([]domain.WeeklyChallenge, error) {
	var out []domain.WeeklyChallenge
	err := s.runner.InReadTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = s.repos.Challenges.List(ctx, tx, false)
		return err
	})
	return out, err
}

// SaveChallenge creates or replaces a weekly challenge.
func (s *CatalogService) SaveChallenge(ctx context.Context, c *domain.WeeklyChallenge) error {
	if err := validateGoal(c.Title, c.Category, c.Goal, c.PointsReward); err != nil {
		return err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return s.runner.InTx(ctx, func(tx pgx.Tx) error {
		return s.repos.Challenges.Upsert(ctx, tx, c)
	})
}

// ListMissions returns the daily mission catalog.
func (s *CatalogService) ListMissions(ctx context.Context) ([]domain.DailyMission, error) {
	var out []domain.DailyMission
	err := s.runner.InReadTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = s.repos.Missions.List(ctx, tx, false)
		return err
	})
	return out, err
}

// SaveMission creates or replaces a daily mission.
func (s *CatalogService) SaveMission(ctx context.Context, m *domain.DailyMission) error {
	if err := validateGoal(m.Title, m.Category, m.Goal, m.PointsReward); err != nil {
		return err
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return s.runner.InTx(ctx, func(tx pgx.Tx) error {
		return s.repos.Missions.Upsert(ctx, tx, m)
	})
}

// ListShopItems returns every shop item, active or not.
func (s *CatalogService) ListShopItems(ctx context.Context) ([]domain.ShopItem, error) {
	var out []domain.ShopItem
	err := s.runner.InReadTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = s.repos.Shop.List(ctx, tx, false)
		return err
	})
	return out, err
}

// SaveShopItem creates or replaces a shop item. The sold counter is kept.
func (s *CatalogService) SaveShopItem(ctx context.Context, item *domain.ShopItem) error {
	if err := domain.ValidateShopItem(item); err != nil {
		return domain.ErrValidation(err.Error())
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return s.runner.InTx(ctx, func(tx pgx.Tx) error {
		return s.repos.Shop.Upsert(ctx, tx, item)
	})
}

// SetShopItemActive enables or disables an item.
func (s *CatalogService) SetShopItemActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.runner.InTx(ctx, func(tx pgx.Tx) error {
		found, err := s.repos.Shop.SetActive(ctx, tx, id, active)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrNotFound("shop item", id.String())
		}
		return nil
	})
}

// CreateEvent stores a new special event.
func (s *CatalogService) CreateEvent(ctx context.Context, ev *domain.SpecialEvent) error {
	return s.runner.InTx(ctx, func(tx pgx.Tx) error {
		return s.events.Create(ctx, tx, ev)
	})
}

// GetEvent returns a special event by id.
func (s *CatalogService) GetEvent(ctx context.Context, id uuid.UUID) (*domain.SpecialEvent, error) {
	var out *domain.SpecialEvent
	err := s.runner.InReadTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = s.repos.Events.FindByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("find event: %w", err)
	}
	if out == nil {
		return nil, domain.ErrNotFound("event", id.String())
	}
	return out, nil
}

// FinalizeEvent pays the rewards of an ended event exactly once.
func (s *CatalogService) FinalizeEvent(ctx context.Context, id uuid.UUID) (*domain.FinalizeResult, error) {
	return s.events.Finalize(ctx, id, s.now())
}
