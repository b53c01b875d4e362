package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalState is the lifecycle state of a payout request.
type WithdrawalState string

const (
	WithdrawalStatePending   WithdrawalState = "PENDING"
	WithdrawalStateCompleted WithdrawalState = "COMPLETED"
	WithdrawalStateFailed    WithdrawalState = "FAILED"
)

// Withdrawal is a request to move money from a user wallet out of the
// platform. Completion writes a three-entry set: wallet debit for the
// requested amount, platform fee credit, and payout-clearing credit for
// the net. The invariant net = requested - fee holds exactly.
type Withdrawal struct {
	ID            uuid.UUID       `json:"id"`
	WalletID      uuid.UUID       `json:"wallet_id"`
	Requested     decimal.Decimal `json:"requested"`
	Fee           decimal.Decimal `json:"fee"`
	Net           decimal.Decimal `json:"net"`
	Destination   string          `json:"destination"`
	State         WithdrawalState `json:"state"`
	RequestedBy   string          `json:"requested_by"`
	FailureReason *string         `json:"failure_reason,omitempty"`
	RequestedAt   time.Time       `json:"requested_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// CanComplete reports whether completion is a legal transition.
func (w *Withdrawal) CanComplete() bool {
	return w.State == WithdrawalStatePending
}

// CanFail reports whether the withdrawal can be marked FAILED.
func (w *Withdrawal) CanFail() bool {
	return w.State == WithdrawalStatePending
}

// FeeIntegrityHolds verifies net = requested - fee at exact precision.
func (w *Withdrawal) FeeIntegrityHolds() bool {
	return w.Net.Equal(w.Requested.Sub(w.Fee))
}
