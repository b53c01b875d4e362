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

// RefundRepo implements ports.RefundRepository.
type RefundRepo struct {
	pool Pool
}

// NewRefundRepo creates a new RefundRepo.
func NewRefundRepo(pool Pool) *RefundRepo {
	return &RefundRepo{pool: pool}
}

const refundColumns = `id, payment_id, amount::text, reason, refund_platform_fee,
		issuer_wallet_id, recipient_wallet_id, requested_by, decided_by, decision_note,
		status, failure_reason, requested_at, decided_at, completed_at`

// Create inserts a new refund in state PENDING.
func (r *RefundRepo) Create(ctx context.Context, ref *domain.Refund) error {
	query := `INSERT INTO refunds (id, payment_id, amount, reason, refund_platform_fee,
		issuer_wallet_id, recipient_wallet_id, requested_by, decided_by, decision_note,
		status, failure_reason, requested_at, decided_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.pool.Exec(ctx, query,
		ref.ID, ref.PaymentID, ref.Amount.String(), ref.Reason, ref.RefundPlatformFee,
		ref.IssuerWalletID, ref.RecipientWalletID, ref.RequestedBy, ref.DecidedBy, ref.DecisionNote,
		ref.Status, ref.FailureReason, ref.RequestedAt, ref.DecidedAt, ref.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}
	return nil
}

// GetByID fetches a refund by UUID.
func (r *RefundRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE id = $1`
	return scanRefund(r.pool.QueryRow(ctx, query, id))
}

// GetByIDForUpdate fetches a refund with pessimistic locking. Must be
// called within a transaction.
func (r *RefundRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE id = $1 FOR UPDATE`
	return scanRefund(tx.QueryRow(ctx, query, id))
}

// Update rewrites the mutable refund fields within a transaction.
func (r *RefundRepo) Update(ctx context.Context, tx pgx.Tx, ref *domain.Refund) error {
	query := `UPDATE refunds SET decided_by = $1, decision_note = $2, status = $3,
		failure_reason = $4, decided_at = $5, completed_at = $6 WHERE id = $7`

	tag, err := tx.Exec(ctx, query,
		ref.DecidedBy, ref.DecisionNote, ref.Status,
		ref.FailureReason, ref.DecidedAt, ref.CompletedAt, ref.ID,
	)
	if err != nil {
		return fmt.Errorf("update refund: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("refund not found: %s", ref.ID)
	}
	return nil
}

// UpdateStatus transitions a refund outside a money-moving transaction
// (approve, reject, mark failed).
func (r *RefundRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RefundStatus, failureReason *string) error {
	query := `UPDATE refunds SET status = $1, failure_reason = $2 WHERE id = $3`

	tag, err := r.pool.Exec(ctx, query, status, failureReason, id)
	if err != nil {
		return fmt.Errorf("update refund status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("refund not found: %s", id)
	}
	return nil
}

// SumAmountsByStatus totals refund amounts for a payment across statuses.
func (r *RefundRepo) SumAmountsByStatus(ctx context.Context, paymentID uuid.UUID, statuses []domain.RefundStatus) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0)::text FROM refunds WHERE payment_id = $1 AND status = ANY($2)`
	return scanSum(r.pool.QueryRow(ctx, query, paymentID, statusStrings(statuses)))
}

// SumAmountsByStatusTx is the in-transaction variant used to re-validate
// the refund bound immediately before entry submission.
func (r *RefundRepo) SumAmountsByStatusTx(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID, statuses []domain.RefundStatus) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0)::text FROM refunds WHERE payment_id = $1 AND status = ANY($2)`
	return scanSum(tx.QueryRow(ctx, query, paymentID, statusStrings(statuses)))
}

// ListByStatusInWindow fetches refunds in a status within a time window.
func (r *RefundRepo) ListByStatusInWindow(ctx context.Context, status domain.RefundStatus, window ports.EntryWindow) ([]domain.Refund, error) {
	limit := window.Limit
	if limit < 1 {
		limit = 10000
	}
	query := `SELECT ` + refundColumns + ` FROM refunds
		WHERE status = $1 AND requested_at >= $2 AND requested_at <= $3 ORDER BY requested_at LIMIT $4`

	rows, err := r.pool.Query(ctx, query, status, window.From, window.To, limit)
	if err != nil {
		return nil, fmt.Errorf("list refunds by status: %w", err)
	}
	defer rows.Close()

	var refunds []domain.Refund
	for rows.Next() {
		ref, err := scanRefundValues(rows)
		if err != nil {
			return nil, err
		}
		refunds = append(refunds, *ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refund rows: %w", err)
	}
	return refunds, nil
}

// ExistingIDs reports which of the given refund ids exist.
func (r *RefundRepo) ExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]bool{}, nil
	}
	query := `SELECT id FROM refunds WHERE id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("check existing refund ids: %w", err)
	}
	defer rows.Close()

	existing := make(map[uuid.UUID]bool, len(ids))
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan refund id: %w", err)
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refund ids: %w", err)
	}
	return existing, nil
}

func statusStrings(statuses []domain.RefundStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func scanRefundValues(row rowScanner) (*domain.Refund, error) {
	var (
		ref       domain.Refund
		amountStr string
	)
	err := row.Scan(
		&ref.ID, &ref.PaymentID, &amountStr, &ref.Reason, &ref.RefundPlatformFee,
		&ref.IssuerWalletID, &ref.RecipientWalletID, &ref.RequestedBy, &ref.DecidedBy, &ref.DecisionNote,
		&ref.Status, &ref.FailureReason, &ref.RequestedAt, &ref.DecidedAt, &ref.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if ref.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("parse refund amount %q: %w", amountStr, err)
	}
	return &ref, nil
}

func scanRefund(row pgx.Row) (*domain.Refund, error) {
	ref, err := scanRefundValues(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan refund: %w", err)
	}
	return ref, nil
}
