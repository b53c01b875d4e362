package postgres

import (
	"context"
	"errors"
	"fmt"

	"marketplace-settlement/internal/core/domain"
	"marketplace-settlement/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WithdrawalRepo implements ports.WithdrawalRepository.
type WithdrawalRepo struct {
	pool Pool
}

// NewWithdrawalRepo creates a new WithdrawalRepo.
func NewWithdrawalRepo(pool Pool) *WithdrawalRepo {
	return &WithdrawalRepo{pool: pool}
}

const withdrawalColumns = `id, wallet_id, requested::text, fee::text, net::text, destination,
		state, requested_by, failure_reason, requested_at, completed_at`

// Create inserts a new withdrawal in state PENDING.
func (r *WithdrawalRepo) Create(ctx context.Context, w *domain.Withdrawal) error {
	query := `INSERT INTO withdrawals (id, wallet_id, requested, fee, net, destination,
		state, requested_by, failure_reason, requested_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		w.ID, w.WalletID, w.Requested.String(), w.Fee.String(), w.Net.String(), w.Destination,
		w.State, w.RequestedBy, w.FailureReason, w.RequestedAt, w.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

// GetByID fetches a withdrawal by UUID.
func (r *WithdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1`
	return scanWithdrawal(r.pool.QueryRow(ctx, query, id))
}

// GetByIDForUpdate fetches a withdrawal with pessimistic locking.
func (r *WithdrawalRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1 FOR UPDATE`
	return scanWithdrawal(tx.QueryRow(ctx, query, id))
}

// Update rewrites the mutable withdrawal fields within a transaction.
func (r *WithdrawalRepo) Update(ctx context.Context, tx pgx.Tx, w *domain.Withdrawal) error {
	query := `UPDATE withdrawals SET state = $1, failure_reason = $2, completed_at = $3 WHERE id = $4`

	tag, err := tx.Exec(ctx, query, w.State, w.FailureReason, w.CompletedAt, w.ID)
	if err != nil {
		return fmt.Errorf("update withdrawal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("withdrawal not found: %s", w.ID)
	}
	return nil
}

// UpdateState transitions a withdrawal outside a money-moving transaction.
func (r *WithdrawalRepo) UpdateState(ctx context.Context, id uuid.UUID, state domain.WithdrawalState, failureReason *string) error {
	query := `UPDATE withdrawals SET state = $1, failure_reason = $2 WHERE id = $3`

	tag, err := r.pool.Exec(ctx, query, state, failureReason, id)
	if err != nil {
		return fmt.Errorf("update withdrawal state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("withdrawal not found: %s", id)
	}
	return nil
}

// ListByStateInWindow fetches withdrawals in a state within a time window.
func (r *WithdrawalRepo) ListByStateInWindow(ctx context.Context, state domain.WithdrawalState, window ports.EntryWindow) ([]domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals
		WHERE state = $1 AND requested_at >= $2 AND requested_at <= $3 ORDER BY requested_at LIMIT $4`
	return r.queryWithdrawals(ctx, query, state, window.From, window.To, windowLimit(window))
}

// ListInWindow fetches all withdrawals within a time window (payout export).
func (r *WithdrawalRepo) ListInWindow(ctx context.Context, window ports.EntryWindow) ([]domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals
		WHERE requested_at >= $1 AND requested_at <= $2 ORDER BY requested_at LIMIT $3`
	return r.queryWithdrawals(ctx, query, window.From, window.To, windowLimit(window))
}

// ExistingIDs reports which of the given withdrawal ids exist.
func (r *WithdrawalRepo) ExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]bool{}, nil
	}
	query := `SELECT id FROM withdrawals WHERE id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("check existing withdrawal ids: %w", err)
	}
	defer rows.Close()

	existing := make(map[uuid.UUID]bool, len(ids))
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan withdrawal id: %w", err)
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate withdrawal ids: %w", err)
	}
	return existing, nil
}

func windowLimit(window ports.EntryWindow) int {
	if window.Limit < 1 {
		return 10000
	}
	return window.Limit
}

func (r *WithdrawalRepo) queryWithdrawals(ctx context.Context, query string, args ...any) ([]domain.Withdrawal, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	defer rows.Close()

	var withdrawals []domain.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawalValues(rows)
		if err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate withdrawal rows: %w", err)
	}
	return withdrawals, nil
}

func scanWithdrawalValues(row rowScanner) (*domain.Withdrawal, error) {
	var (
		w            domain.Withdrawal
		requestedStr string
		feeStr       string
		netStr       string
	)
	err := row.Scan(
		&w.ID, &w.WalletID, &requestedStr, &feeStr, &netStr, &w.Destination,
		&w.State, &w.RequestedBy, &w.FailureReason, &w.RequestedAt, &w.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if w.Requested, err = decimal.NewFromString(requestedStr); err != nil {
		return nil, fmt.Errorf("parse requested amount %q: %w", requestedStr, err)
	}
	if w.Fee, err = decimal.NewFromString(feeStr); err != nil {
		return nil, fmt.Errorf("parse fee %q: %w", feeStr, err)
	}
	if w.Net, err = decimal.NewFromString(netStr); err != nil {
		return nil, fmt.Errorf("parse net %q: %w", netStr, err)
	}
	return &w, nil
}

func scanWithdrawal(row pgx.Row) (*domain.Withdrawal, error) {
	w, err := scanWithdrawalValues(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan withdrawal: %w", err)
	}
	return w, nil
}
