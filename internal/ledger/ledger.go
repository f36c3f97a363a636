// Package ledger is the append-only point ledger. Every balance change goes
// through Award, which runs inside the caller's transaction.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/level"
	"github.com/babysteps/progression/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Engine provides the 3 foundational ledger operations:
//  1. LockUserForUpdate: row-level pessimistic lock on the user's aggregate
//  2. FindExistingTransaction: idempotency check
//  3. PostLedgerEntry: append-only insert + balance update + outbox events
type Engine struct {
	progression  repository.ProgressionRepository
	transactions repository.TransactionRepository
	outbox       repository.OutboxRepository
}

// NewEngine creates a ledger engine with the given repositories.
func NewEngine(
	progression repository.ProgressionRepository,
	transactions repository.TransactionRepository,
	outbox repository.OutboxRepository,
) *Engine {
	return &Engine{
		progression:  progression,
		transactions: transactions,
		outbox:       outbox,
	}
}

// LockUserForUpdate lazily creates the user's aggregate row and locks it.
// Must be called within a transaction.
func (e *Engine) LockUserForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.UserProgression, error) {
	user, err := e.progression.LockForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user", userID.String())
	}
	return user, nil
}

// FindExistingTransaction checks if a transaction with the same idempotency key exists.
// Returns nil if no duplicate found.
func (e *Engine) FindExistingTransaction(ctx context.Context, tx pgx.Tx, key domain.IdempotencyKey) (*domain.PointTransaction, error) {
	existing, err := e.transactions.FindExisting(ctx, tx, key)
	if err != nil {
		return nil, fmt.Errorf("find existing transaction: %w", err)
	}
	return existing, nil
}

// PostLedgerEntry appends the entry and moves the balance. The caller must hold
// the user lock and have checked idempotency and overdraft against user.
//
// Steps:
//  1. Insert the transaction with the post-update balance snapshot
//  2. Update the balance using server-side arithmetic
//  3. Insert outbox events
//
// A nil entry with a nil error means a concurrent writer recorded the same key
// first; nothing was changed.
func (e *Engine) PostLedgerEntry(ctx context.Context, tx pgx.Tx, user *domain.UserProgression, params domain.AwardParams) (*domain.PointTransaction, *domain.UserProgression, error) {
	// Step 1: Insert ledger entry; the unique key is the final idempotency backstop
	entry, err := e.transactions.Insert(ctx, tx, &domain.PointTransaction{
		UserID:        params.UserID,
		Amount:        params.Amount,
		Reason:        params.Reason,
		SourceEventID: params.SourceEventID,
		BalanceAfter:  user.Balance + params.Amount,
		Metadata:      ensureJSON(params.Metadata),
		CreatedAt:     params.At,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("insert transaction: %w", err)
	}
	if entry == nil {
		return nil, user, nil
	}

	// Step 2: Atomic balance update guarded by balance >= 0
	updated, err := e.progression.ApplyBalance(ctx, tx, params.UserID, params.Amount)
	if err != nil {
		return nil, nil, fmt.Errorf("apply balance: %w", err)
	}
	if updated == nil {
		return nil, nil, domain.ErrInsufficientPoints()
	}

	// Step 3: Outbox events (same transaction for atomicity)
	if err := e.outbox.Insert(ctx, tx, domain.NewPointsAwardedEvent(entry)); err != nil {
		return nil, nil, fmt.Errorf("insert outbox event: %w", err)
	}
	if from, to, up := level.Crossed(user.Balance, updated.Balance); up {
		if err := e.outbox.Insert(ctx, tx, domain.NewLevelUpEvent(params.UserID, from, to, entry.CreatedAt)); err != nil {
			return nil, nil, fmt.Errorf("insert level-up event: %w", err)
		}
	}

	return entry, updated, nil
}

// History returns a page of the user's transactions, newest first.
func (e *Engine) History(ctx context.Context, db repository.DBTX, userID uuid.UUID, cursor *string, limit int) ([]domain.PointTransaction, error) {
	txs, err := e.transactions.ListByUser(ctx, db, userID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func ensureJSON(data json.RawMessage) json.RawMessage {
	if data == nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// Meta builds a metadata object from key/value pairs.
func Meta(kv map[string]interface{}) json.RawMessage {
	if len(kv) == 0 {
		return json.RawMessage(`{}`)
	}
	out, _ := json.Marshal(kv)
	return out
}
