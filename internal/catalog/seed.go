// Package catalog loads the starter catalog of badge rules, weekly
// challenges, daily missions and shop items from a TOML file.
package catalog

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/babysteps/progression/internal/badge"
	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/service"
	"github.com/google/uuid"
)

// Seed is the decoded catalog file.
type Seed struct {
	Rules      []domain.GamificationRule `toml:"rules"`
	Challenges []domain.WeeklyChallenge  `toml:"challenges"`
	Missions   []domain.DailyMission     `toml:"missions"`
	ShopItems  []domain.ShopItem         `toml:"shop_items"`
}

// Summary counts the rows written by Apply.
type Summary struct {
	Rules      int `json:"rules"`
	Challenges int `json:"challenges"`
	Missions   int `json:"missions"`
	ShopItems  int `json:"shop_items"`
}

// LoadFile decodes and validates a catalog file.
func LoadFile(path string) (*Seed, error) {
	var s Seed
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return finish(&s, md)
}

// Load decodes and validates a catalog from r.
func Load(r io.Reader) (*Seed, error) {
	var s Seed
	md, err := toml.NewDecoder(r).Decode(&s)
	if err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return finish(&s, md)
}

func finish(s *Seed, md toml.MetaData) (*Seed, error) {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("unknown catalog keys: %s", strings.Join(keys, ", "))
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks every entry. Challenge, mission and shop item ids are
// required so that seeding twice updates rows instead of duplicating them.
func (s *Seed) Validate() error {
	ruleIDs := map[string]bool{}
	for i := range s.Rules {
		r := &s.Rules[i]
		if r.ID == "" {
			return fmt.Errorf("rules[%d]: id is required", i)
		}
		if ruleIDs[r.ID] {
			return fmt.Errorf("rules[%d]: duplicate id %q", i, r.ID)
		}
		ruleIDs[r.ID] = true
		if err := badge.ValidateCondition(r); err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
	}

	ids := map[uuid.UUID]string{}
	claim := func(id uuid.UUID, where string) error {
		if id == uuid.Nil {
			return fmt.Errorf("%s: id is required", where)
		}
		if prev, ok := ids[id]; ok {
			return fmt.Errorf("%s: id %s already used by %s", where, id, prev)
		}
		ids[id] = where
		return nil
	}

	for i, c := range s.Challenges {
		where := fmt.Sprintf("challenges[%d]", i)
		if err := claim(c.ID, where); err != nil {
			return err
		}
		if err := domain.ValidateCategory(c.Category); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
		if c.Goal <= 0 {
			return fmt.Errorf("%s: goal must be positive", where)
		}
	}
	for i, m := range s.Missions {
		where := fmt.Sprintf("missions[%d]", i)
		if err := claim(m.ID, where); err != nil {
			return err
		}
		if err := domain.ValidateCategory(m.Category); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
		if m.Goal <= 0 {
			return fmt.Errorf("%s: goal must be positive", where)
		}
	}
	for i := range s.ShopItems {
		where := fmt.Sprintf("shop_items[%d]", i)
		if err := claim(s.ShopItems[i].ID, where); err != nil {
			return err
		}
		if err := domain.ValidateShopItem(&s.ShopItems[i]); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
	}
	return nil
}

// Apply upserts every entry through the catalog service. It is safe to run
// repeatedly.
func Apply(ctx context.Context, svc *service.CatalogService, s *Seed) (Summary, error) {
	var sum Summary
	for i := range s.Rules {
		if err := svc.SaveRule(ctx, &s.Rules[i]); err != nil {
			return sum, fmt.Errorf("rule %s: %w", s.Rules[i].ID, err)
		}
		sum.Rules++
	}
	for i := range s.Challenges {
		if err := svc.SaveChallenge(ctx, &s.Challenges[i]); err != nil {
			return sum, fmt.Errorf("challenge %s: %w", s.Challenges[i].ID, err)
		}
		sum.Challenges++
	}
	for i := range s.Missions {
		if err := svc.SaveMission(ctx, &s.Missions[i]); err != nil {
			return sum, fmt.Errorf("mission %s: %w", s.Missions[i].ID, err)
		}
		sum.Missions++
	}
	for i := range s.ShopItems {
		if err := svc.SaveShopItem(ctx, &s.ShopItems[i]); err != nil {
			return sum, fmt.Errorf("shop item %s: %w", s.ShopItems[i].ID, err)
		}
		sum.ShopItems++
	}
	return sum, nil
}
