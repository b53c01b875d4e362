package postgres

import (
	"context"
	"errors"
	"fmt"

	"marketplace-settlement/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

// IdempotencyRepo implements ports.IdempotencyRepository. The binding of
// key to ledger transaction id is what lets the ledger distinguish a safe
// retry from a key reused for different entries.
type IdempotencyRepo struct {
	pool Pool
}

// NewIdempotencyRepo creates a new IdempotencyRepo.
func NewIdempotencyRepo(pool Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// Create inserts an idempotency binding within a database transaction.
func (r *IdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, rec *ports.IdempotencyRecord) error {
	query := `INSERT INTO idempotency_keys (key, transaction_id, created_at) VALUES ($1, $2, $3)`

	_, err := tx.Exec(ctx, query, rec.Key, rec.TransactionID, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}
	return nil
}

// Get fetches an idempotency binding by key.
func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*ports.IdempotencyRecord, error) {
	query := `SELECT key, transaction_id, created_at FROM idempotency_keys WHERE key = $1`

	rec := &ports.IdempotencyRecord{}
	err := r.pool.QueryRow(ctx, query, key).Scan(&rec.Key, &rec.TransactionID, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	return rec, nil
}
