package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentState is the lifecycle state of a payment.
type PaymentState string

const (
	PaymentStateInitiated  PaymentState = "INITIATED"
	PaymentStateAuthorized PaymentState = "AUTHORIZED"
	PaymentStateCaptured   PaymentState = "CAPTURED"
	PaymentStateRefunded   PaymentState = "REFUNDED"
	PaymentStateCancelled  PaymentState = "CANCELLED"
	PaymentStateFailed     PaymentState = "FAILED"
)

// Payment records a buyer-to-seller money movement with a platform fee.
// The payment row carries lifecycle state only; the monetary truth lives
// in the ledger entries written at capture time.
type Payment struct {
	ID                 uuid.UUID       `json:"id"`
	OrderID            string          `json:"order_id"`
	PayerWalletID      uuid.UUID       `json:"payer_wallet_id"`
	PayeeWalletID      uuid.UUID       `json:"payee_wallet_id"`
	Amount             decimal.Decimal `json:"amount"`
	Method             string          `json:"method"`
	PlatformFeePercent decimal.Decimal `json:"platform_fee_percent"`
	PlatformFee        decimal.Decimal `json:"platform_fee"` // computed and frozen at capture
	State              PaymentState    `json:"state"`
	ExternalRef        *string         `json:"external_ref,omitempty"`
	FailureReason      *string         `json:"failure_reason,omitempty"`
	InitiatedAt        time.Time       `json:"initiated_at"`
	AuthorizedAt       *time.Time      `json:"authorized_at,omitempty"`
	CapturedAt         *time.Time      `json:"captured_at,omitempty"`
}

// CanCapture reports whether capture is a legal transition.
func (p *Payment) CanCapture() bool {
	return p.State == PaymentStateInitiated || p.State == PaymentStateAuthorized
}

// CanAuthorize reports whether the payment can move to AUTHORIZED.
func (p *Payment) CanAuthorize() bool {
	return p.State == PaymentStateInitiated
}

// CanFail reports whether the payment can be marked FAILED.
// CAPTURED payments never fail; money already moved.
func (p *Payment) CanFail() bool {
	return p.State == PaymentStateInitiated || p.State == PaymentStateAuthorized
}

// IsRefundable reports whether refunds may target this payment.
func (p *Payment) IsRefundable() bool {
	return p.State == PaymentStateCaptured
}

// IsTerminal returns true for final states.
func (p *Payment) IsTerminal() bool {
	switch p.State {
	case PaymentStateRefunded, PaymentStateCancelled, PaymentStateFailed:
		return true
	}
	return false
}

// ComputePlatformFee derives the fee from the stored percent, rounded to
// the currency's minor-unit exponent.
func (p *Payment) ComputePlatformFee(exponent int32) decimal.Decimal {
	return p.Amount.Mul(p.PlatformFeePercent).Div(decimal.NewFromInt(100)).Round(exponent)
}

// ProportionalFeeShare returns the slice of the captured platform fee that
// corresponds to refundAmount, rounded to the minor-unit exponent.
func (p *Payment) ProportionalFeeShare(refundAmount decimal.Decimal, exponent int32) decimal.Decimal {
	if p.Amount.IsZero() {
		return decimal.Zero
	}
	return p.PlatformFee.Mul(refundAmount).Div(p.Amount).Round(exponent)
}
