package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/babysteps/progression/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maxTxAttempts = 3

// PgTxRunner runs engine operations in pgx transactions. Read-write
// transactions that fail with a serialization failure or a deadlock are
// retried from the start.
type PgTxRunner struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewTxRunner creates a transaction runner over pool.
func NewTxRunner(pool *pgxpool.Pool, logger *slog.Logger) *PgTxRunner {
	return &PgTxRunner{pool: pool, logger: logger}
}

var _ repository.TxRunner = (*PgTxRunner)(nil)

// InTx runs fn in a read-committed read-write transaction.
func (r *PgTxRunner) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}

	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = r.run(ctx, opts, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		r.logger.Warn("retrying transaction", "attempt", attempt, "error", err)
		if err := sleepWithContext(ctx, time.Duration(attempt)*20*time.Millisecond); err != nil {
			return err
		}
	}
	return err
}

// InReadTx runs fn in a repeatable-read read-only transaction.
func (r *PgTxRunner) InReadTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return r.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (r *PgTxRunner) run(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// isRetryable reports serialization failures and deadlocks.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01":
		return true
	}
	return false
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
