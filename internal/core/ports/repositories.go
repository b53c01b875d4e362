package ports

import (
	"context"
	"time"

	"marketplace-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepository defines persistence operations for wallets.
// Wallets carry no balance; balance queries live on LedgerRepository.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByCode(ctx context.Context, code string) (*domain.Wallet, error)
	// GetByIDForUpdate locks the wallet row so a status flip cannot race
	// an entry submission. Must be called within a transaction.
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.WalletStatus) error
	ListByKind(ctx context.Context, kind domain.WalletKind) ([]domain.Wallet, error)
}

// EntryFilter narrows wallet entry listings.
type EntryFilter struct {
	Type     *domain.EntryType
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// EntryWindow bounds a reconciliation or export run.
type EntryWindow struct {
	From  time.Time
	To    time.Time
	Limit int
}

// LedgerRepository defines persistence for the append-only entry log.
// InsertEntries is the sole write path for money; there is no update and
// no delete.
type LedgerRepository interface {
	InsertEntries(ctx context.Context, tx pgx.Tx, entries []domain.LedgerEntry) error
	GetByTransaction(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error)
	// GetByTransactionForUpdate reads the entries for a transaction id
	// inside the caller's transaction, locking them so the idempotency
	// check and the insert are observed atomically.
	GetByTransactionForUpdate(ctx context.Context, tx pgx.Tx, transactionID string) ([]domain.LedgerEntry, error)
	ListForWallet(ctx context.Context, walletID uuid.UUID, filter EntryFilter) ([]domain.LedgerEntry, int64, error)
	ListInWindow(ctx context.Context, window EntryWindow) ([]domain.LedgerEntry, error)
	SumForWallet(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)
	// SumForWalletTx derives the balance inside a transaction so a
	// balance check and the subsequent insert share one snapshot.
	SumForWalletTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (decimal.Decimal, error)
	// TotalBalanceByKind sums entries across all wallets of a kind and
	// status (solvency reporting).
	TotalBalanceByKind(ctx context.Context, kind domain.WalletKind, status domain.WalletStatus) (decimal.Decimal, error)
}

// IdempotencyRecord maps a caller-supplied key to the ledger transaction
// it committed, so a reused key with a different transaction id can be
// flagged as a caller bug.
type IdempotencyRecord struct {
	Key           string
	TransactionID string
	CreatedAt     time.Time
}

// IdempotencyRepository persists idempotency key bindings.
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, rec *IdempotencyRecord) error
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)
}

// PaymentRepository defines persistence operations for payments.
type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	// GetByIDForUpdate locks the payment row for state transitions and
	// for the refund aggregate check. Must be called within a transaction.
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payment, error)
	Update(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error
	// UpdateState transitions outside a money-moving transaction
	// (authorize, markFailed).
	UpdateState(ctx context.Context, id uuid.UUID, state domain.PaymentState, failureReason *string) error
	ListByStateInWindow(ctx context.Context, state domain.PaymentState, window EntryWindow) ([]domain.Payment, error)
	ExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)
}

// RefundRepository defines persistence operations for refunds.
type RefundRepository interface {
	Create(ctx context.Context, refund *domain.Refund) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Refund, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Refund, error)
	Update(ctx context.Context, tx pgx.Tx, refund *domain.Refund) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RefundStatus, failureReason *string) error
	// SumAmountsByStatus totals refund amounts for a payment across the
	// given statuses. The tx variant is used for the in-transaction
	// re-validation of the refund bound.
	SumAmountsByStatus(ctx context.Context, paymentID uuid.UUID, statuses []domain.RefundStatus) (decimal.Decimal, error)
	SumAmountsByStatusTx(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID, statuses []domain.RefundStatus) (decimal.Decimal, error)
	ListByStatusInWindow(ctx context.Context, status domain.RefundStatus, window EntryWindow) ([]domain.Refund, error)
	ExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)
}

// WithdrawalRepository defines persistence operations for withdrawals.
type WithdrawalRepository interface {
	Create(ctx context.Context, withdrawal *domain.Withdrawal) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Withdrawal, error)
	Update(ctx context.Context, tx pgx.Tx, withdrawal *domain.Withdrawal) error
	UpdateState(ctx context.Context, id uuid.UUID, state domain.WithdrawalState, failureReason *string) error
	ListByStateInWindow(ctx context.Context, state domain.WithdrawalState, window EntryWindow) ([]domain.Withdrawal, error)
	ListInWindow(ctx context.Context, window EntryWindow) ([]domain.Withdrawal, error)
	ExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
