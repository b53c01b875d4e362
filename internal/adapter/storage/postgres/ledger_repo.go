package postgres

import (
	"context"
	"fmt"
	"strings"

	"marketplace-settlement/internal/core/domain"
	"marketplace-settlement/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LedgerRepo implements ports.LedgerRepository. The ledger_entries table
// is append-only: this repo exposes inserts and reads, nothing else.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

const entryColumns = `id, wallet_id, amount::text, type, description,
		payment_id, refund_id, withdrawal_id, order_id, transaction_id, idempotency_key, created_at`

// InsertEntries appends an entry set within a database transaction.
// All entries of one logical operation commit together or not at all.
func (r *LedgerRepo) InsertEntries(ctx context.Context, tx pgx.Tx, entries []domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (id, wallet_id, amount, type, description,
		payment_id, refund_id, withdrawal_id, order_id, transaction_id, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	for i := range entries {
		e := &entries[i]
		_, err := tx.Exec(ctx, query,
			e.ID, e.WalletID, e.Amount.String(), e.Type, e.Description,
			e.PaymentID, e.RefundID, e.WithdrawalID, e.OrderID,
			e.TransactionID, e.IdempotencyKey, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
	}
	return nil
}

// GetByTransaction fetches all entries grouped under one transaction id,
// in insertion order.
func (r *LedgerRepo) GetByTransaction(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE transaction_id = $1 ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("get entries by transaction: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// GetByTransactionForUpdate reads a transaction's entries inside the
// caller's transaction with a lock, so the idempotency existence check
// and the subsequent insert share one atomic view.
func (r *LedgerRepo) GetByTransactionForUpdate(ctx context.Context, tx pgx.Tx, transactionID string) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE transaction_id = $1 ORDER BY created_at, id FOR UPDATE`

	rows, err := tx.Query(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("get entries by transaction for update: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListForWallet fetches a wallet's entries with filtering and pagination,
// preserving insertion order for balance-over-time audits.
func (r *LedgerRepo) ListForWallet(ctx context.Context, walletID uuid.UUID, filter ports.EntryFilter) ([]domain.LedgerEntry, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("wallet_id = $%d", argIdx))
	args = append(args, walletID)
	argIdx++

	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, *filter.Type)
		argIdx++
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *filter.From)
		argIdx++
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *filter.To)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM ledger_entries %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	dataQuery := fmt.Sprintf(`SELECT `+entryColumns+` FROM ledger_entries %s ORDER BY created_at, id LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, pageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListInWindow fetches entries for a reconciliation run, bounded by limit.
func (r *LedgerRepo) ListInWindow(ctx context.Context, window ports.EntryWindow) ([]domain.LedgerEntry, error) {
	limit := window.Limit
	if limit < 1 {
		limit = 10000
	}
	query := `SELECT ` + entryColumns + ` FROM ledger_entries
		WHERE created_at >= $1 AND created_at <= $2 ORDER BY created_at, id LIMIT $3`

	rows, err := r.pool.Query(ctx, query, window.From, window.To, limit)
	if err != nil {
		return nil, fmt.Errorf("list entries in window: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// SumForWallet derives a wallet balance; the only source of truth.
func (r *LedgerRepo) SumForWallet(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0)::text FROM ledger_entries WHERE wallet_id = $1`
	return scanSum(r.pool.QueryRow(ctx, query, walletID))
}

// SumForWalletTx derives a wallet balance inside a transaction so the
// balance check and insert share one snapshot.
func (r *LedgerRepo) SumForWalletTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0)::text FROM ledger_entries WHERE wallet_id = $1`
	return scanSum(tx.QueryRow(ctx, query, walletID))
}

// TotalBalanceByKind sums entries across all wallets of a kind and status.
func (r *LedgerRepo) TotalBalanceByKind(ctx context.Context, kind domain.WalletKind, status domain.WalletStatus) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(e.amount), 0)::text
		FROM ledger_entries e JOIN wallets w ON w.id = e.wallet_id
		WHERE w.kind = $1 AND w.status = $2`
	return scanSum(r.pool.QueryRow(ctx, query, kind, status))
}

func scanSum(row pgx.Row) (decimal.Decimal, error) {
	var sumStr string
	if err := row.Scan(&sumStr); err != nil {
		return decimal.Zero, fmt.Errorf("scan sum: %w", err)
	}
	sum, err := decimal.NewFromString(sumStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse sum %q: %w", sumStr, err)
	}
	return sum, nil
}

func scanEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			e         domain.LedgerEntry
			amountStr string
		)
		err := rows.Scan(
			&e.ID, &e.WalletID, &amountStr, &e.Type, &e.Description,
			&e.PaymentID, &e.RefundID, &e.WithdrawalID, &e.OrderID,
			&e.TransactionID, &e.IdempotencyKey, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Amount, err = decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("parse entry amount %q: %w", amountStr, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entry rows: %w", err)
	}
	return entries, nil
}
