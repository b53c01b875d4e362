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

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

const paymentColumns = `id, order_id, payer_wallet_id, payee_wallet_id, amount::text, method,
		platform_fee_percent::text, platform_fee::text, state, external_ref, failure_reason,
		initiated_at, authorized_at, captured_at`

// Create inserts a new payment in state INITIATED.
func (r *PaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	query := `INSERT INTO payments (id, order_id, payer_wallet_id, payee_wallet_id, amount, method,
		platform_fee_percent, platform_fee, state, external_ref, failure_reason,
		initiated_at, authorized_at, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.OrderID, p.PayerWalletID, p.PayeeWalletID, p.Amount.String(), p.Method,
		p.PlatformFeePercent.String(), p.PlatformFee.String(), p.State, p.ExternalRef, p.FailureReason,
		p.InitiatedAt, p.AuthorizedAt, p.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID fetches a payment by UUID.
func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPayment(r.pool.QueryRow(ctx, query, id))
}

// GetByIDForUpdate fetches a payment with pessimistic locking. All state
// transitions and refund aggregate checks lock the payment row first.
func (r *PaymentRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`
	return scanPayment(tx.QueryRow(ctx, query, id))
}

// Update rewrites the mutable payment fields within a transaction.
func (r *PaymentRepo) Update(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	query := `UPDATE payments SET platform_fee = $1, state = $2, external_ref = $3,
		failure_reason = $4, authorized_at = $5, captured_at = $6 WHERE id = $7`

	tag, err := tx.Exec(ctx, query,
		p.PlatformFee.String(), p.State, p.ExternalRef,
		p.FailureReason, p.AuthorizedAt, p.CapturedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment not found: %s", p.ID)
	}
	return nil
}

// UpdateState transitions a payment outside a money-moving transaction.
func (r *PaymentRepo) UpdateState(ctx context.Context, id uuid.UUID, state domain.PaymentState, failureReason *string) error {
	query := `UPDATE payments SET state = $1, failure_reason = $2 WHERE id = $3`

	tag, err := r.pool.Exec(ctx, query, state, failureReason, id)
	if err != nil {
		return fmt.Errorf("update payment state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment not found: %s", id)
	}
	return nil
}

// ListByStateInWindow fetches payments in a state within a time window.
func (r *PaymentRepo) ListByStateInWindow(ctx context.Context, state domain.PaymentState, window ports.EntryWindow) ([]domain.Payment, error) {
	limit := window.Limit
	if limit < 1 {
		limit = 10000
	}
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE state = $1 AND initiated_at >= $2 AND initiated_at <= $3 ORDER BY initiated_at LIMIT $4`

	rows, err := r.pool.Query(ctx, query, state, window.From, window.To, limit)
	if err != nil {
		return nil, fmt.Errorf("list payments by state: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPaymentValues(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment rows: %w", err)
	}
	return payments, nil
}

// ExistingIDs reports which of the given payment ids exist.
func (r *PaymentRepo) ExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]bool{}, nil
	}
	query := `SELECT id FROM payments WHERE id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("check existing payment ids: %w", err)
	}
	defer rows.Close()

	existing := make(map[uuid.UUID]bool, len(ids))
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan payment id: %w", err)
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment ids: %w", err)
	}
	return existing, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaymentValues(row rowScanner) (*domain.Payment, error) {
	var (
		p          domain.Payment
		amountStr  string
		percentStr string
		feeStr     string
	)
	err := row.Scan(
		&p.ID, &p.OrderID, &p.PayerWalletID, &p.PayeeWalletID, &amountStr, &p.Method,
		&percentStr, &feeStr, &p.State, &p.ExternalRef, &p.FailureReason,
		&p.InitiatedAt, &p.AuthorizedAt, &p.CapturedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("parse payment amount %q: %w", amountStr, err)
	}
	if p.PlatformFeePercent, err = decimal.NewFromString(percentStr); err != nil {
		return nil, fmt.Errorf("parse fee percent %q: %w", percentStr, err)
	}
	if p.PlatformFee, err = decimal.NewFromString(feeStr); err != nil {
		return nil, fmt.Errorf("parse platform fee %q: %w", feeStr, err)
	}
	return &p, nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	p, err := scanPaymentValues(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return p, nil
}
