package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type progressionRepo struct{ s *Store }

func (r *progressionRepo) LockForUpdate(_ context.Context, _ pgx.Tx, userID uuid.UUID) (*domain.UserProgression, error) {
	var out domain.UserProgression
	r.s.with(func(st *state) {
		p, ok := st.progression[userID]
		if !ok {
			now := r.s.now()
			p = domain.UserProgression{UserID: userID, CreatedAt: now, UpdatedAt: now}
			st.progression[userID] = p
		}
		out = p
	})
	return &out, nil
}

func (r *progressionRepo) Find(_ context.Context, _ repository.DBTX, userID uuid.UUID) (*domain.UserProgression, error) {
	var out *domain.UserProgression
	r.s.with(func(st *state) {
		if p, ok := st.progression[userID]; ok {
			out = &p
		}
	})
	return out, nil
}

func (r *progressionRepo) ApplyBalance(_ context.Context, _ pgx.Tx, userID uuid.UUID, delta int64) (*domain.UserProgression, error) {
	var out *domain.UserProgression
	r.s.with(func(st *state) {
		p, ok := st.progression[userID]
		if !ok || p.Balance+delta < 0 {
			return
		}
		p.Balance += delta
		p.UpdatedAt = r.s.now()
		st.progression[userID] = p
		out = &p
	})
	return out, nil
}

func (r *progressionRepo) IncrementCounters(_ context.Context, _ pgx.Tx, userID uuid.UUID, d domain.CounterDelta) error {
	r.s.with(func(st *state) {
		p, ok := st.progression[userID]
		if !ok {
			return
		}
		p.TotalActivities += d.Activities
		p.TotalMemories += d.Memories
		p.TotalMilestones += d.Milestones
		p.TotalLogins += d.Logins
		st.progression[userID] = p
	})
	return nil
}

func (r *progressionRepo) SetTimezone(_ context.Context, _ repository.DBTX, userID uuid.UUID, tz string) error {
	r.s.with(func(st *state) {
		p, ok := st.progression[userID]
		if !ok {
			now := r.s.now()
			p = domain.UserProgression{UserID: userID, CreatedAt: now}
		}
		p.Timezone = tz
		p.UpdatedAt = r.s.now()
		st.progression[userID] = p
	})
	return nil
}

func (r *progressionRepo) ListUserIDs(_ context.Context, _ repository.DBTX) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	r.s.with(func(st *state) {
		for id := range st.progression {
			ids = append(ids, id)
		}
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

type transactionRepo struct{ s *Store }

func (r *transactionRepo) FindExisting(_ context.Context, _ repository.DBTX, key domain.IdempotencyKey) (*domain.PointTransaction, error) {
	var out *domain.PointTransaction
	r.s.with(func(st *state) {
		for i := range st.transactions {
			tx := st.transactions[i]
			if tx.UserID == key.UserID && tx.SourceEventID == key.SourceEventID && tx.Reason == key.Reason {
				out = &tx
				return
			}
		}
	})
	return out, nil
}

func (r *transactionRepo) Insert(ctx context.Context, db repository.DBTX, entry *domain.PointTransaction) (*domain.PointTransaction, error) {
	existing, _ := r.FindExisting(ctx, db, domain.IdempotencyKey{UserID: entry.UserID, SourceEventID: entry.SourceEventID, Reason: entry.Reason})
	if existing != nil {
		return nil, nil
	}
	tx := *entry
	tx.ID = uuid.New()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = r.s.now()
	}
	if tx.Metadata == nil {
		tx.Metadata = []byte(`{}`)
	}
	r.s.with(func(st *state) {
		st.transactions = append(st.transactions, tx)
	})
	return &tx, nil
}

// newestFirst returns the user's transactions ordered by created_at DESC, insertion DESC.
func (r *transactionRepo) newestFirst(userID uuid.UUID) []domain.PointTransaction {
	var out []domain.PointTransaction
	r.s.with(func(st *state) {
		for i := len(st.transactions) - 1; i >= 0; i-- {
			if st.transactions[i].UserID == userID {
				out = append(out, st.transactions[i])
			}
		}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *transactionRepo) ListByUser(_ context.Context, _ repository.DBTX, userID uuid.UUID, cursor *string, limit int) ([]domain.PointTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	all := r.newestFirst(userID)
	if cursor != nil {
		for i, tx := range all {
			if tx.ID.String() == *cursor {
				all = all[i+1:]
				break
			}
		}
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *transactionRepo) Totals(_ context.Context, _ repository.DBTX, userID uuid.UUID) (int64, int64, *domain.PointTransaction, error) {
	all := r.newestFirst(userID)
	var sum int64
	for _, tx := range all {
		sum += tx.Amount
	}
	if len(all) == 0 {
		return 0, 0, nil, nil
	}
	last := all[0]
	return sum, int64(len(all)), &last, nil
}

func (r *transactionRepo) WeeklyTotals(_ context.Context, _ repository.DBTX, start, end time.Time, limit int) ([]domain.GamificationRankingEntry, error) {
	byUser := make(map[uuid.UUID]*domain.GamificationRankingEntry)
	r.s.with(func(st *state) {
		for _, tx := range st.transactions {
			if tx.CreatedAt.Before(start) || !tx.CreatedAt.Before(end) {
				continue
			}
			e, ok := byUser[tx.UserID]
			if !ok {
				e = &domain.GamificationRankingEntry{UserID: tx.UserID, FirstEntryAt: tx.CreatedAt}
				byUser[tx.UserID] = e
			}
			e.Points += tx.Amount
			if tx.CreatedAt.Before(e.FirstEntryAt) {
				e.FirstEntryAt = tx.CreatedAt
			}
		}
	})

	entries := make([]domain.GamificationRankingEntry, 0, len(byUser))
	for _, e := range byUser {
		entries = append(entries, *e)
	}
	domain.SortRankingEntries(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

type activityRepo struct{ s *Store }

func (r *activityRepo) MarkProcessed(_ context.Context, _ pgx.Tx, evt domain.ActivityEvent) (bool, error) {
	inserted := false
	r.s.with(func(st *state) {
		if _, ok := st.activities[evt.EventID]; ok {
			return
		}
		st.activities[evt.EventID] = evt
		inserted = true
	})
	return inserted, nil
}

type outboxRepo struct{ s *Store }

func (r *outboxRepo) Insert(_ context.Context, _ repository.DBTX, draft domain.OutboxDraft) error {
	r.s.with(func(st *state) {
		st.outboxSeq++
		st.outbox = append(st.outbox, domain.OutboxRecord{ID: st.outboxSeq, OutboxDraft: draft})
	})
	return nil
}

func (r *outboxRepo) FetchUnpublished(_ context.Context, _ repository.DBTX, limit int) ([]domain.OutboxRecord, error) {
	var out []domain.OutboxRecord
	r.s.with(func(st *state) {
		for _, rec := range st.outbox {
			if limit > 0 && len(out) >= limit {
				break
			}
			out = append(out, rec)
		}
	})
	return out, nil
}

func (r *outboxRepo) MarkPublished(_ context.Context, _ repository.DBTX, ids []int64) error {
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	r.s.with(func(st *state) {
		kept := st.outbox[:0:0]
		for _, rec := range st.outbox {
			if !drop[rec.ID] {
				kept = append(kept, rec)
			}
		}
		st.outbox = kept
	})
	return nil
}

// OutboxEvents returns the event types currently queued, oldest first.
func (s *Store) OutboxEvents() []domain.EventType {
	var out []domain.EventType
	s.with(func(st *state) {
		for _, rec := range st.outbox {
			out = append(out, rec.EventType)
		}
	})
	return out
}

// Transactions returns every ledger entry in insertion order.
func (s *Store) Transactions() []domain.PointTransaction {
	var out []domain.PointTransaction
	s.with(func(st *state) {
		out = append(out, st.transactions...)
	})
	return out
}
