package memstore

import (
	"context"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/repository"
	"github.com/google/uuid"
)

type eventRepo struct{ s *Store }

func cloneEvent(e domain.SpecialEvent) domain.SpecialEvent {
	e.RewardTiers = slices.Clone(e.RewardTiers)
	return e
}

func cloneParticipation(ue domain.UserEvent) domain.UserEvent {
	ue.Progress = maps.Clone(ue.Progress)
	if ue.Progress == nil {
		ue.Progress = map[string]any{}
	}
	ue.RewardsGranted = slices.Clone(ue.RewardsGranted)
	return ue
}

func (r *eventRepo) Create(_ context.Context, _ repository.DBTX, e *domain.SpecialEvent) error {
	r.s.with(func(st *state) {
		v := cloneEvent(*e)
		if v.CreatedAt.IsZero() {
			v.CreatedAt = r.s.now()
		}
		st.events[e.ID] = v
	})
	return nil
}

func (r *eventRepo) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.SpecialEvent, error) {
	var out *domain.SpecialEvent
	r.s.with(func(st *state) {
		if v, ok := st.events[id]; ok {
			v = cloneEvent(v)
			out = &v
		}
	})
	return out, nil
}

func (r *eventRepo) ListEndedUnfinalized(_ context.Context, _ repository.DBTX, now time.Time) ([]domain.SpecialEvent, error) {
	var out []domain.SpecialEvent
	r.s.with(func(st *state) {
		for _, e := range st.events {
			if !e.Finalized && e.EndDate.Before(now) {
				out = append(out, cloneEvent(e))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EndDate.Equal(out[j].EndDate) {
			return out[i].EndDate.Before(out[j].EndDate)
		}
		return byID(out[i].ID, out[j].ID)
	})
	return out, nil
}

func (r *eventRepo) MarkFinalized(_ context.Context, _ repository.DBTX, id uuid.UUID, at time.Time) (bool, error) {
	flipped := false
	r.s.with(func(st *state) {
		e, ok := st.events[id]
		if !ok || e.Finalized {
			return
		}
		e.Finalized = true
		e.FinalizedAt = &at
		st.events[id] = e
		flipped = true
	})
	return flipped, nil
}

func (r *eventRepo) Join(_ context.Context, _ repository.DBTX, ue *domain.UserEvent) (bool, error) {
	joined := false
	r.s.with(func(st *state) {
		k := participationKey{ue.EventID, ue.UserID}
		if _, ok := st.participants[k]; ok {
			return
		}
		v := cloneParticipation(*ue)
		v.RewardsGranted = nil
		v.CompletedAt = nil
		st.participants[k] = v
		joined = true
	})
	return joined, nil
}

func withEvent(st *state, ue domain.UserEvent) domain.UserEvent {
	ue = cloneParticipation(ue)
	if e, ok := st.events[ue.EventID]; ok {
		ue.Title = e.Title
		ue.EndDate = e.EndDate
	}
	return ue
}

func (r *eventRepo) FindParticipation(_ context.Context, _ repository.DBTX, userID, eventID uuid.UUID) (*domain.UserEvent, error) {
	var out *domain.UserEvent
	r.s.with(func(st *state) {
		if v, ok := st.participants[participationKey{eventID, userID}]; ok {
			v = withEvent(st, v)
			out = &v
		}
	})
	return out, nil
}

func (r *eventRepo) ListJoinedActive(_ context.Context, _ repository.DBTX, userID uuid.UUID, now time.Time) ([]domain.UserEvent, error) {
	var out []domain.UserEvent
	r.s.with(func(st *state) {
		for k, v := range st.participants {
			if k.userID != userID {
				continue
			}
			e, ok := st.events[k.eventID]
			if !ok || !e.ActiveAt(now) {
				continue
			}
			out = append(out, withEvent(st, v))
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EndDate.Equal(out[j].EndDate) {
			return out[i].EndDate.Before(out[j].EndDate)
		}
		return byID(out[i].EventID, out[j].EventID)
	})
	return out, nil
}

func (r *eventRepo) SaveParticipation(_ context.Context, _ repository.DBTX, ue *domain.UserEvent) error {
	r.s.with(func(st *state) {
		k := participationKey{ue.EventID, ue.UserID}
		old, ok := st.participants[k]
		if !ok {
			return
		}
		v := cloneParticipation(*ue)
		v.JoinedAt = old.JoinedAt
		st.participants[k] = v
	})
	return nil
}

func (r *eventRepo) ListParticipants(_ context.Context, _ repository.DBTX, eventID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	r.s.with(func(st *state) {
		for k := range st.participants {
			if k.eventID == eventID {
				out = append(out, k.userID)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return byID(out[i], out[j]) })
	return out, nil
}
