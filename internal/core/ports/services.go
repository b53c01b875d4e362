package ports

import (
	"context"
	"io"
	"time"

	"marketplace-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IdempotencyCache is the Redis-layer fast path for retried capture and
// refund-process calls. The database transaction remains the authority;
// the cache only short-circuits obvious retries.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// --- Ledger ---

// EntryInput is one leg of an entry set to be recorded.
type EntryInput struct {
	WalletID     uuid.UUID
	Amount       decimal.Decimal
	Type         domain.EntryType
	Description  string
	PaymentID    *uuid.UUID
	RefundID     *uuid.UUID
	WithdrawalID *uuid.UUID
	OrderID      *string
}

// LedgerService is the sole write path into the entry log.
type LedgerService interface {
	// Record persists a balanced entry set atomically under transactionID.
	// If entries already exist for the id, the existing set is returned
	// unchanged. A non-zero sum is rejected as UnbalancedTransaction.
	Record(ctx context.Context, transactionID string, idempotencyKey *string, entries []EntryInput) ([]domain.LedgerEntry, error)
	// RecordAdjustment records a manually authorized compensating entry
	// set, subject to the same zero-sum rule.
	RecordAdjustment(ctx context.Context, actor string, reason string, entries []EntryInput) ([]domain.LedgerEntry, error)
	EntriesForTransaction(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error)
	EntriesForWallet(ctx context.Context, walletID uuid.UUID, filter EntryFilter) ([]domain.LedgerEntry, int64, error)
}

// --- Wallets ---

// WalletService derives balances and manages wallet status. It never
// authorizes a balance change itself.
type WalletService interface {
	Provision(ctx context.Context, req ProvisionWalletRequest) (*domain.Wallet, error)
	Get(ctx context.Context, walletID uuid.UUID) (*domain.Wallet, error)
	Balance(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)
	AssertSufficientBalance(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) error
	SetStatus(ctx context.Context, walletID uuid.UUID, status domain.WalletStatus, actor string) (*domain.Wallet, error)
}

// ProvisionWalletRequest holds input for wallet creation.
type ProvisionWalletRequest struct {
	Code        string
	Kind        domain.WalletKind
	Currency    string
	OwnerUserID *uuid.UUID
}

// --- Payments ---

// PaymentService owns the payment lifecycle state machine.
type PaymentService interface {
	Initiate(ctx context.Context, req InitiatePaymentRequest) (*domain.Payment, error)
	Authorize(ctx context.Context, paymentID uuid.UUID, externalRef string) (*domain.Payment, error)
	// Capture moves the money: buyer debit, seller credit, platform fee
	// credit, all under one transaction id. Idempotent on retry.
	Capture(ctx context.Context, paymentID uuid.UUID, externalRef string) (*domain.Payment, error)
	MarkFailed(ctx context.Context, paymentID uuid.UUID, reason string) (*domain.Payment, error)
	Get(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error)
}

// InitiatePaymentRequest holds validated input for payment initiation.
type InitiatePaymentRequest struct {
	OrderID            string
	PayerWalletID      uuid.UUID
	PayeeWalletID      uuid.UUID
	Amount             decimal.Decimal
	Method             string
	PlatformFeePercent *decimal.Decimal // nil = configured default
}

// --- Refunds ---

// RefundService owns the refund lifecycle.
type RefundService interface {
	Initiate(ctx context.Context, req InitiateRefundRequest) (*domain.Refund, error)
	Approve(ctx context.Context, refundID uuid.UUID, approvedBy string) (*domain.Refund, error)
	Reject(ctx context.Context, refundID uuid.UUID, rejectedBy string, reason string) (*domain.Refund, error)
	// Process moves the money back. Idempotent: if ledger entries exist
	// for the refund the completed refund is returned as-is.
	Process(ctx context.Context, refundID uuid.UUID) (*domain.Refund, error)
	Get(ctx context.Context, refundID uuid.UUID) (*domain.Refund, error)
	CheckRefundable(ctx context.Context, paymentID uuid.UUID) (*Refundability, error)
	TotalRefunded(ctx context.Context, paymentID uuid.UUID) (decimal.Decimal, error)
}

// InitiateRefundRequest holds validated input for refund initiation.
type InitiateRefundRequest struct {
	PaymentID         uuid.UUID
	Amount            decimal.Decimal
	Reason            string
	RefundPlatformFee bool
	RequestedBy       string
}

// Refundability reports whether and how much of a payment can still be
// refunded.
type Refundability struct {
	Refundable bool            `json:"refundable"`
	Remaining  decimal.Decimal `json:"remaining"`
	Reason     string          `json:"reason,omitempty"`
}

// --- Withdrawals ---

// WithdrawalService owns the payout lifecycle.
type WithdrawalService interface {
	Request(ctx context.Context, req RequestWithdrawalRequest) (*domain.Withdrawal, error)
	Complete(ctx context.Context, withdrawalID uuid.UUID) (*domain.Withdrawal, error)
	MarkFailed(ctx context.Context, withdrawalID uuid.UUID, reason string) (*domain.Withdrawal, error)
	Get(ctx context.Context, withdrawalID uuid.UUID) (*domain.Withdrawal, error)
}

// RequestWithdrawalRequest holds validated input for a payout request.
type RequestWithdrawalRequest struct {
	WalletID    uuid.UUID
	Amount      decimal.Decimal
	Destination string
	RequestedBy string
}

// --- Reconciliation & reporting ---

// ValidationService is the read-only reconciliation engine.
type ValidationService interface {
	Run(ctx context.Context, window EntryWindow) (*domain.ValidationReport, error)
}

// ReportingService writes tabular exports for offline audit.
type ReportingService interface {
	ExportLedger(ctx context.Context, w io.Writer, window EntryWindow) error
	ExportPayouts(ctx context.Context, w io.Writer, window EntryWindow) error
}
