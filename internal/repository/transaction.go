package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, user_id, amount, reason, source_event_id, balance_after, metadata, created_at`

type transactionRepo struct{}

// NewTransactionRepository returns a pgx-backed TransactionRepository.
func NewTransactionRepository() TransactionRepository {
	return &transactionRepo{}
}

func (r *transactionRepo) FindExisting(ctx context.Context, db DBTX, key domain.IdempotencyKey) (*domain.PointTransaction, error) {
	row := db.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM point_transactions
		WHERE user_id = $1 AND source_event_id = $2 AND reason = $3`,
		key.UserID, key.SourceEventID, string(key.Reason))
	return scanTransaction(row)
}

// Insert relies on the unique (user_id, source_event_id, reason) index as the
// final idempotency backstop: a concurrent duplicate yields no row.
func (r *transactionRepo) Insert(ctx context.Context, db DBTX, entry *domain.PointTransaction) (*domain.PointTransaction, error) {
	meta := entry.Metadata
	if meta == nil {
		meta = json.RawMessage(`{}`)
	}
	var createdAt *time.Time
	if !entry.CreatedAt.IsZero() {
		createdAt = &entry.CreatedAt
	}

	row := db.QueryRow(ctx, `
		INSERT INTO point_transactions
		  (user_id, amount, reason, source_event_id, balance_after, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
		ON CONFLICT (user_id, source_event_id, reason) DO NOTHING
		RETURNING `+transactionColumns,
		entry.UserID,
		entry.Amount,
		string(entry.Reason),
		entry.SourceEventID,
		entry.BalanceAfter,
		meta,
		createdAt,
	)
	return scanTransaction(row)
}

func (r *transactionRepo) ListByUser(ctx context.Context, db DBTX, userID uuid.UUID, cursor *string, limit int) ([]domain.PointTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = db.Query(ctx, `
			SELECT `+transactionColumns+`
			FROM point_transactions
			WHERE user_id = $1
			  AND (created_at, id) < ((SELECT created_at, id FROM point_transactions WHERE id = $2))
			ORDER BY created_at DESC, id DESC
			LIMIT $3`, userID, *cursor, limit)
	} else {
		rows, err = db.Query(ctx, `
			SELECT `+transactionColumns+`
			FROM point_transactions
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`, userID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func (r *transactionRepo) Totals(ctx context.Context, db DBTX, userID uuid.UUID) (int64, int64, *domain.PointTransaction, error) {
	var sum, count int64
	err := db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::BIGINT, COUNT(*)
		FROM point_transactions WHERE user_id = $1`, userID).Scan(&sum, &count)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("sum transactions: %w", err)
	}

	row := db.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM point_transactions WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, userID)
	last, err := scanTransaction(row)
	if err != nil {
		return 0, 0, nil, err
	}
	return sum, count, last, nil
}

func (r *transactionRepo) WeeklyTotals(ctx context.Context, db DBTX, start, end time.Time, limit int) ([]domain.GamificationRankingEntry, error) {
	rows, err := db.Query(ctx, `
		SELECT user_id, SUM(amount)::BIGINT AS points, MIN(created_at) AS first_at
		FROM point_transactions
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY user_id
		ORDER BY points DESC, first_at ASC, user_id ASC
		LIMIT $3`, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("query weekly totals: %w", err)
	}
	defer rows.Close()

	var entries []domain.GamificationRankingEntry
	for rows.Next() {
		var e domain.GamificationRankingEntry
		if err := rows.Scan(&e.UserID, &e.Points, &e.FirstEntryAt); err != nil {
			return nil, fmt.Errorf("scan weekly total: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanTransaction(row scanner) (*domain.PointTransaction, error) {
	var tx domain.PointTransaction
	err := row.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Reason, &tx.SourceEventID,
		&tx.BalanceAfter, &tx.Metadata, &tx.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return &tx, nil
}

func collectTransactions(rows pgx.Rows) ([]domain.PointTransaction, error) {
	var txs []domain.PointTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}
