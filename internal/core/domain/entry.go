package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType tags a ledger entry with the operation that produced it.
// The sign convention lives in the amount itself: debits are negative,
// credits positive.
type EntryType string

const (
	EntryTypePaymentDebit       EntryType = "PAYMENT_DEBIT"
	EntryTypePaymentCredit      EntryType = "PAYMENT_CREDIT"
	EntryTypePlatformFeeCredit  EntryType = "PLATFORM_FEE_CREDIT"
	EntryTypePlatformFeeDebit   EntryType = "PLATFORM_FEE_DEBIT"
	EntryTypeRefundDebit        EntryType = "REFUND_DEBIT"
	EntryTypeRefundCredit       EntryType = "REFUND_CREDIT"
	EntryTypeWithdrawalDebit    EntryType = "WITHDRAWAL_DEBIT"
	EntryTypeWithdrawalFee      EntryType = "WITHDRAWAL_FEE_CREDIT"
	EntryTypeWithdrawalNet      EntryType = "WITHDRAWAL_NET_CREDIT"
	EntryTypeAdjustmentDebit    EntryType = "ADJUSTMENT_DEBIT"
	EntryTypeAdjustmentCredit   EntryType = "ADJUSTMENT_CREDIT"
)

// LedgerEntry is a single signed movement of money attributed to a wallet.
// Entries are append-only: once written they are never updated or deleted.
// Corrections are made with compensating adjustment entries.
type LedgerEntry struct {
	ID             uuid.UUID       `json:"id"`
	WalletID       uuid.UUID       `json:"wallet_id"`
	Amount         decimal.Decimal `json:"amount"`
	Type           EntryType       `json:"type"`
	Description    string          `json:"description"`
	PaymentID      *uuid.UUID      `json:"payment_id,omitempty"`
	RefundID       *uuid.UUID      `json:"refund_id,omitempty"`
	WithdrawalID   *uuid.UUID      `json:"withdrawal_id,omitempty"`
	OrderID        *string         `json:"order_id,omitempty"`
	TransactionID  string          `json:"transaction_id"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// SumEntries returns the exact decimal sum of the entry amounts.
// A balanced set sums to zero with no epsilon.
func SumEntries(entries []LedgerEntry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	return sum
}

// HasMinorUnitPrecision reports whether amount carries no more fractional
// digits than the currency's minor-unit exponent allows.
func HasMinorUnitPrecision(amount decimal.Decimal, exponent int32) bool {
	return amount.Equal(amount.Round(exponent))
}

// Transaction id builders. Every logical operation groups its entries
// under one stable id so retries are detectable.

func PaymentTransactionID(paymentID uuid.UUID) string {
	return "payment-" + paymentID.String()
}

func RefundTransactionID(refundID uuid.UUID) string {
	return "refund-" + refundID.String()
}

func WithdrawalTransactionID(withdrawalID uuid.UUID) string {
	return "withdrawal-" + withdrawalID.String()
}

func AdjustmentTransactionID(adjustmentID uuid.UUID) string {
	return "adjustment-" + adjustmentID.String()
}
