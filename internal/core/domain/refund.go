package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RefundStatus is the lifecycle state of a refund.
type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "PENDING"
	RefundStatusApproved   RefundStatus = "APPROVED"
	RefundStatusRejected   RefundStatus = "REJECTED"
	RefundStatusProcessing RefundStatus = "PROCESSING"
	RefundStatusCompleted  RefundStatus = "COMPLETED"
	RefundStatusFailed     RefundStatus = "FAILED"
)

// ActiveRefundStatuses are the states that count toward the refundable
// bound of a payment. PENDING requests do not reserve amount until approved.
var ActiveRefundStatuses = []RefundStatus{
	RefundStatusApproved,
	RefundStatusProcessing,
	RefundStatusCompleted,
}

// Refund is a compensating money movement against a captured payment.
// Multiple refunds may target one payment; completed amounts never exceed
// the payment amount.
type Refund struct {
	ID                uuid.UUID       `json:"id"`
	PaymentID         uuid.UUID       `json:"payment_id"`
	Amount            decimal.Decimal `json:"amount"`
	Reason            string          `json:"reason"`
	RefundPlatformFee bool            `json:"refund_platform_fee"`
	IssuerWalletID    uuid.UUID       `json:"issuer_wallet_id"`    // seller
	RecipientWalletID uuid.UUID       `json:"recipient_wallet_id"` // buyer
	RequestedBy       string          `json:"requested_by"`
	DecidedBy         *string         `json:"decided_by,omitempty"`
	DecisionNote      *string         `json:"decision_note,omitempty"`
	Status            RefundStatus    `json:"status"`
	FailureReason     *string         `json:"failure_reason,omitempty"`
	RequestedAt       time.Time       `json:"requested_at"`
	DecidedAt         *time.Time      `json:"decided_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}

// CanDecide reports whether approve/reject is legal.
func (r *Refund) CanDecide() bool {
	return r.Status == RefundStatusPending
}

// CanProcess reports whether processing is legal.
func (r *Refund) CanProcess() bool {
	return r.Status == RefundStatusApproved
}

// IsTerminal returns true for final states. FAILED is terminal: it is
// resolved by manual intervention, never auto-retried.
func (r *Refund) IsTerminal() bool {
	switch r.Status {
	case RefundStatusRejected, RefundStatusCompleted, RefundStatusFailed:
		return true
	}
	return false
}
