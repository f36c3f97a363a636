package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/babysteps/progression/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Award records a signed point change for a user, at most once per
// (user, source event, reason).
// Pattern: Lock → Idempotency → Overdraft check → PostLedgerEntry
//
// A repeated key returns the recorded transaction with Applied=false. A debit
// that would make the balance negative fails with InsufficientPoints and
// changes nothing.
func (e *Engine) Award(ctx context.Context, tx pgx.Tx, params domain.AwardParams) (*domain.AwardResult, error) {
	if err := validateAward(params); err != nil {
		return nil, err
	}

	// Lock
	user, err := e.LockUserForUpdate(ctx, tx, params.UserID)
	if err != nil {
		return nil, fmt.Errorf("award: %w", err)
	}

	// Idempotency check
	existing, err := e.FindExistingTransaction(ctx, tx, params.Key())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &domain.AwardResult{Transaction: existing, Balance: user.Balance, Applied: false}, nil
	}

	// Overdraft: rejected, never clamped
	if user.Balance+params.Amount < 0 {
		return nil, domain.ErrInsufficientPoints()
	}

	entry, updated, err := e.PostLedgerEntry(ctx, tx, user, params)
	if err != nil {
		return nil, fmt.Errorf("award post: %w", err)
	}
	if entry == nil {
		existing, err := e.FindExistingTransaction(ctx, tx, params.Key())
		if err != nil {
			return nil, err
		}
		return &domain.AwardResult{Transaction: existing, Balance: user.Balance, Applied: false}, nil
	}

	return &domain.AwardResult{Transaction: entry, Balance: updated.Balance, Applied: true}, nil
}

func validateAward(p domain.AwardParams) error {
	if p.Amount == 0 {
		return domain.ErrValidation("amount must not be zero")
	}
	if !p.Reason.Valid() {
		return domain.ErrValidation(fmt.Sprintf("unknown reason: %s", p.Reason))
	}
	if strings.TrimSpace(p.SourceEventID) == "" {
		return domain.ErrValidation("source event id is required")
	}
	return nil
}
