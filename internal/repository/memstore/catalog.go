package memstore

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func byID(a, b uuid.UUID) bool { return a.String() < b.String() }

type streakRepo struct{ s *Store }

func (r *streakRepo) Find(_ context.Context, _ repository.DBTX, userID uuid.UUID, category domain.Category) (*domain.Streak, error) {
	var out *domain.Streak
	r.s.with(func(st *state) {
		if v, ok := st.streaks[streakKey{userID, category}]; ok {
			out = &v
		}
	})
	return out, nil
}

func (r *streakRepo) ListByUser(_ context.Context, _ repository.DBTX, userID uuid.UUID) ([]domain.Streak, error) {
	var out []domain.Streak
	r.s.with(func(st *state) {
		for k, v := range st.streaks {
			if k.userID == userID {
				out = append(out, v)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (r *streakRepo) Upsert(_ context.Context, _ repository.DBTX, s *domain.Streak) error {
	r.s.with(func(st *state) {
		st.streaks[streakKey{s.UserID, s.Category}] = *s
	})
	return nil
}

type ruleRepo struct{ s *Store }

func (r *ruleRepo) List(_ context.Context, _ repository.DBTX, activeOnly bool) ([]domain.GamificationRule, error) {
	var out []domain.GamificationRule
	r.s.with(func(st *state) {
		for _, v := range st.rules {
			if v.Active || !activeOnly {
				out = append(out, v)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *ruleRepo) Upsert(_ context.Context, _ repository.DBTX, g *domain.GamificationRule) error {
	r.s.with(func(st *state) {
		v := *g
		if old, ok := st.rules[g.ID]; ok {
			v.CreatedAt = old.CreatedAt
		} else if v.CreatedAt.IsZero() {
			v.CreatedAt = r.s.now()
		}
		st.rules[g.ID] = v
	})
	return nil
}

type badgeRepo struct{ s *Store }

func (r *badgeRepo) ListByUser(_ context.Context, _ repository.DBTX, userID uuid.UUID) ([]domain.Badge, error) {
	var out []domain.Badge
	r.s.with(func(st *state) {
		for k, v := range st.badges {
			if k.userID == userID {
				out = append(out, v)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EarnedAt.Equal(out[j].EarnedAt) {
			return out[i].EarnedAt.Before(out[j].EarnedAt)
		}
		return out[i].BadgeID < out[j].BadgeID
	})
	return out, nil
}

func (r *badgeRepo) Insert(_ context.Context, _ repository.DBTX, b domain.Badge) (bool, error) {
	inserted := false
	r.s.with(func(st *state) {
		k := badgeKey{b.UserID, b.BadgeID}
		if _, ok := st.badges[k]; ok {
			return
		}
		st.badges[k] = b
		inserted = true
	})
	return inserted, nil
}

type challengeRepo struct{ s *Store }

func (r *challengeRepo) List(_ context.Context, _ repository.DBTX, activeOnly bool) ([]domain.WeeklyChallenge, error) {
	var out []domain.WeeklyChallenge
	r.s.with(func(st *state) {
		for _, v := range st.challenges {
			if v.Active || !activeOnly {
				out = append(out, v)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return byID(out[i].ID, out[j].ID) })
	return out, nil
}

func (r *challengeRepo) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.WeeklyChallenge, error) {
	var out *domain.WeeklyChallenge
	r.s.with(func(st *state) {
		if v, ok := st.challenges[id]; ok {
			out = &v
		}
	})
	return out, nil
}

func (r *challengeRepo) Upsert(_ context.Context, _ repository.DBTX, c *domain.WeeklyChallenge) error {
	r.s.with(func(st *state) {
		v := *c
		if v.CreatedAt.IsZero() {
			v.CreatedAt = r.s.now()
		}
		st.challenges[c.ID] = v
	})
	return nil
}

func (r *challengeRepo) Schedule(_ context.Context, _ repository.DBTX, weekKey string, ids []uuid.UUID) error {
	r.s.with(func(st *state) {
		cur := slices.Clone(st.schedule[weekKey])
		for _, id := range ids {
			if !slices.Contains(cur, id) {
				cur = append(cur, id)
			}
		}
		st.schedule[weekKey] = cur
	})
	return nil
}

func (r *challengeRepo) ListScheduled(_ context.Context, _ repository.DBTX, weekKey string) ([]domain.WeeklyChallenge, error) {
	var out []domain.WeeklyChallenge
	r.s.with(func(st *state) {
		for _, id := range st.schedule[weekKey] {
			if c, ok := st.challenges[id]; ok && c.Active {
				out = append(out, c)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return byID(out[i].ID, out[j].ID) })
	return out, nil
}

// withCatalog fills the catalog-owned fields the pgx implementation joins in.
func withCatalog(st *state, p domain.ChallengeProgress) domain.ChallengeProgress {
	if c, ok := st.challenges[p.ChallengeID]; ok {
		p.Title = c.Title
		p.Category = c.Category
		p.PointsReward = c.PointsReward
	}
	return p
}

func (r *challengeRepo) FindProgress(_ context.Context, _ repository.DBTX, userID, challengeID uuid.UUID, weekKey string) (*domain.ChallengeProgress, error) {
	var out *domain.ChallengeProgress
	r.s.with(func(st *state) {
		if v, ok := st.progress[progressKey{userID, challengeID, weekKey}]; ok {
			v = withCatalog(st, v)
			out = &v
		}
	})
	return out, nil
}

func (r *challengeRepo) ListProgress(_ context.Context, _ repository.DBTX, userID uuid.UUID, weekKey string) ([]domain.ChallengeProgress, error) {
	var out []domain.ChallengeProgress
	r.s.with(func(st *state) {
		for k, v := range st.progress {
			if k.userID == userID && k.weekKey == weekKey {
				out = append(out, withCatalog(st, v))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return byID(out[i].ChallengeID, out[j].ChallengeID)
	})
	return out, nil
}

func (r *challengeRepo) SaveProgress(_ context.Context, _ repository.DBTX, p *domain.ChallengeProgress) error {
	r.s.with(func(st *state) {
		k := progressKey{p.UserID, p.ChallengeID, p.WeekKey}
		v := *p
		if old, ok := st.progress[k]; ok {
			v.RewardClaimed = old.RewardClaimed
			v.ClaimedAt = old.ClaimedAt
		}
		st.progress[k] = v
	})
	return nil
}

func (r *challengeRepo) MarkClaimed(_ context.Context, _ repository.DBTX, userID, challengeID uuid.UUID, weekKey string, at time.Time) (bool, error) {
	claimed := false
	r.s.with(func(st *state) {
		k := progressKey{userID, challengeID, weekKey}
		v, ok := st.progress[k]
		if !ok || !v.IsCompleted || v.RewardClaimed {
			return
		}
		v.RewardClaimed = true
		v.ClaimedAt = &at
		v.UpdatedAt = at
		st.progress[k] = v
		claimed = true
	})
	return claimed, nil
}

type missionRepo struct{ s *Store }

func (r *missionRepo) List(_ context.Context, _ repository.DBTX, activeOnly bool) ([]domain.DailyMission, error) {
	var out []domain.DailyMission
	r.s.with(func(st *state) {
		for _, v := range st.missions {
			if v.Active || !activeOnly {
				out = append(out, v)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return byID(out[i].ID, out[j].ID) })
	return out, nil
}

func (r *missionRepo) Upsert(_ context.Context, _ repository.DBTX, m *domain.DailyMission) error {
	r.s.with(func(st *state) {
		st.missions[m.ID] = *m
	})
	return nil
}

func missionWithCatalog(st *state, m domain.UserMission) domain.UserMission {
	if c, ok := st.missions[m.MissionID]; ok {
		m.Title = c.Title
		m.Category = c.Category
	}
	return m
}

func (r *missionRepo) ListForDay(_ context.Context, _ repository.DBTX, userID uuid.UUID, day string) ([]domain.UserMission, error) {
	var out []domain.UserMission
	r.s.with(func(st *state) {
		for _, m := range st.userMissions {
			if m.UserID == userID && m.Day == day {
				out = append(out, missionWithCatalog(st, m))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return byID(out[i].MissionID, out[j].MissionID)
	})
	return out, nil
}

func (r *missionRepo) Assign(_ context.Context, _ repository.DBTX, missions []domain.UserMission) error {
	r.s.with(func(st *state) {
		for _, m := range missions {
			exists := slices.ContainsFunc(st.userMissions, func(x domain.UserMission) bool {
				return x.UserID == m.UserID && x.MissionID == m.MissionID && x.Day == m.Day
			})
			if exists {
				continue
			}
			m.ID = uuid.New()
			st.userMissions = append(st.userMissions, m)
		}
	})
	return nil
}

func (r *missionRepo) FindLatest(_ context.Context, _ repository.DBTX, userID, missionID uuid.UUID) (*domain.UserMission, error) {
	var out *domain.UserMission
	r.s.with(func(st *state) {
		for _, m := range st.userMissions {
			if m.UserID != userID || m.MissionID != missionID {
				continue
			}
			if out == nil || m.Day > out.Day {
				v := missionWithCatalog(st, m)
				out = &v
			}
		}
	})
	return out, nil
}

func (r *missionRepo) update(id uuid.UUID, f func(m *domain.UserMission) bool) bool {
	changed := false
	r.s.with(func(st *state) {
		for i := range st.userMissions {
			if st.userMissions[i].ID != id {
				continue
			}
			m := st.userMissions[i]
			if f(&m) {
				st.userMissions[i] = m
				changed = true
			}
			return
		}
	})
	return changed
}

func (r *missionRepo) SaveProgress(_ context.Context, _ repository.DBTX, m *domain.UserMission) error {
	r.update(m.ID, func(cur *domain.UserMission) bool {
		if cur.Expired {
			return false
		}
		cur.Progress = m.Progress
		cur.IsCompleted = m.IsCompleted
		return true
	})
	return nil
}

func (r *missionRepo) MarkClaimed(_ context.Context, _ repository.DBTX, id uuid.UUID) (bool, error) {
	return r.update(id, func(cur *domain.UserMission) bool {
		if !cur.IsCompleted || cur.RewardClaimed || cur.Expired {
			return false
		}
		cur.RewardClaimed = true
		return true
	}), nil
}

func (r *missionRepo) ExpireBefore(_ context.Context, _ repository.DBTX, now time.Time) (int64, error) {
	var n int64
	r.s.with(func(st *state) {
		for i, m := range st.userMissions {
			if m.Expired || m.RewardClaimed || now.Before(m.ExpiresAt) {
				continue
			}
			m.Expired = true
			st.userMissions[i] = m
			n++
		}
	})
	return n, nil
}

type shopRepo struct{ s *Store }

func (r *shopRepo) List(_ context.Context, _ repository.DBTX, activeOnly bool) ([]domain.ShopItem, error) {
	var out []domain.ShopItem
	r.s.with(func(st *state) {
		for _, v := range st.shopItems {
			if v.IsActive || !activeOnly {
				out = append(out, v)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *shopRepo) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.ShopItem, error) {
	var out *domain.ShopItem
	r.s.with(func(st *state) {
		if v, ok := st.shopItems[id]; ok {
			out = &v
		}
	})
	return out, nil
}

func (r *shopRepo) Upsert(_ context.Context, _ repository.DBTX, item *domain.ShopItem) error {
	r.s.with(func(st *state) {
		v := *item
		if old, ok := st.shopItems[item.ID]; ok {
			v.Sold = old.Sold
			v.CreatedAt = old.CreatedAt
		} else if v.CreatedAt.IsZero() {
			v.CreatedAt = r.s.now()
		}
		if v.Stock != nil {
			stock := *v.Stock
			v.Stock = &stock
		}
		st.shopItems[item.ID] = v
	})
	return nil
}

func (r *shopRepo) SetActive(_ context.Context, _ repository.DBTX, id uuid.UUID, active bool) (bool, error) {
	found := false
	r.s.with(func(st *state) {
		v, ok := st.shopItems[id]
		if !ok {
			return
		}
		v.IsActive = active
		st.shopItems[id] = v
		found = true
	})
	return found, nil
}

func (r *shopRepo) IncrementSold(_ context.Context, _ pgx.Tx, id uuid.UUID) (bool, error) {
	ok := false
	r.s.with(func(st *state) {
		v, exists := st.shopItems[id]
		if !exists || v.SoldOut() {
			return
		}
		v.Sold++
		st.shopItems[id] = v
		ok = true
	})
	return ok, nil
}

func (r *shopRepo) InsertPurchase(ctx context.Context, _ pgx.Tx, p *domain.UserPurchase) (*domain.UserPurchase, error) {
	if existing, _ := r.FindPurchase(ctx, nil, p.UserID, p.RequestID); existing != nil {
		return nil, nil
	}
	v := *p
	v.ID = uuid.New()
	if v.PurchasedAt.IsZero() {
		v.PurchasedAt = r.s.now()
	}
	r.s.with(func(st *state) {
		st.purchases = append(st.purchases, v)
	})
	return &v, nil
}

func (r *shopRepo) FindPurchase(_ context.Context, _ repository.DBTX, userID uuid.UUID, requestID string) (*domain.UserPurchase, error) {
	var out *domain.UserPurchase
	r.s.with(func(st *state) {
		for _, p := range st.purchases {
			if p.UserID == userID && p.RequestID == requestID {
				v := p
				out = &v
				return
			}
		}
	})
	return out, nil
}

func (r *shopRepo) ListPurchases(_ context.Context, _ repository.DBTX, userID uuid.UUID) ([]domain.UserPurchase, error) {
	var out []domain.UserPurchase
	r.s.with(func(st *state) {
		for i := len(st.purchases) - 1; i >= 0; i-- {
			if st.purchases[i].UserID == userID {
				out = append(out, st.purchases[i])
			}
		}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].PurchasedAt.After(out[j].PurchasedAt) })
	return out, nil
}

func (r *shopRepo) InsertUnlock(ctx context.Context, _ pgx.Tx, u *domain.AIRewardUnlock) (*domain.AIRewardUnlock, error) {
	if existing, _ := r.FindUnlock(ctx, nil, u.UserID, u.RewardID); existing != nil {
		return nil, nil
	}
	v := *u
	v.ID = uuid.New()
	if v.UnlockedAt.IsZero() {
		v.UnlockedAt = r.s.now()
	}
	r.s.with(func(st *state) {
		st.unlocks = append(st.unlocks, v)
	})
	return &v, nil
}

func (r *shopRepo) FindUnlock(_ context.Context, _ repository.DBTX, userID uuid.UUID, rewardID string) (*domain.AIRewardUnlock, error) {
	var out *domain.AIRewardUnlock
	r.s.with(func(st *state) {
		for _, u := range st.unlocks {
			if u.UserID == userID && u.RewardID == rewardID {
				v := u
				out = &v
				return
			}
		}
	})
	return out, nil
}
