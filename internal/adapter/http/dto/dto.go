package dto

import (
	"time"

	"marketplace-settlement/internal/core/domain"

	"github.com/shopspring/decimal"
)

// InitiatePaymentRequest is the request body for payment initiation.
type InitiatePaymentRequest struct {
	OrderID            string           `json:"order_id" binding:"required,max=100,safe_id"`
	PayerWalletID      string           `json:"payer_wallet_id" binding:"required,uuid"`
	PayeeWalletID      string           `json:"payee_wallet_id" binding:"required,uuid"`
	Amount             decimal.Decimal  `json:"amount" binding:"required"`
	Method             string           `json:"method" binding:"required,max=50"`
	PlatformFeePercent *decimal.Decimal `json:"platform_fee_percent,omitempty"`
}

// ExternalRefRequest carries the gateway reference for authorize/capture.
type ExternalRefRequest struct {
	ExternalRef string `json:"external_ref" binding:"max=200"`
}

// FailRequest carries the operator-supplied failure reason.
type FailRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// InitiateRefundRequest is the request body for refund initiation.
type InitiateRefundRequest struct {
	PaymentID         string          `json:"payment_id" binding:"required,uuid"`
	Amount            decimal.Decimal `json:"amount" binding:"required"`
	Reason            string          `json:"reason" binding:"required,max=500"`
	RefundPlatformFee bool            `json:"refund_platform_fee"`
}

// RejectRefundRequest carries the reviewer's rejection note.
type RejectRefundRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// RequestWithdrawalRequest is the request body for a payout request.
type RequestWithdrawalRequest struct {
	WalletID    string          `json:"wallet_id" binding:"required,uuid"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Destination string          `json:"destination" binding:"required,max=200"`
}

// ProvisionWalletRequest is the request body for wallet creation.
type ProvisionWalletRequest struct {
	Code        string  `json:"code" binding:"required,max=100,safe_id"`
	Kind        string  `json:"kind" binding:"required,oneof=PLATFORM USER ESCROW"`
	Currency    string  `json:"currency" binding:"required,len=3"`
	OwnerUserID *string `json:"owner_user_id,omitempty" binding:"omitempty,uuid"`
}

// WalletStatusRequest is the request body for freezing or unfreezing.
type WalletStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=ACTIVE FROZEN"`
}

// AdjustmentEntry is one leg of a manual compensating entry set.
type AdjustmentEntry struct {
	WalletID    string          `json:"wallet_id" binding:"required,uuid"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Type        string          `json:"type" binding:"required,oneof=ADJUSTMENT_DEBIT ADJUSTMENT_CREDIT"`
	Description string          `json:"description" binding:"max=500"`
}

// AdjustmentRequest is the request body for a manual adjustment. The
// entry set must sum to zero like any other transaction.
type AdjustmentRequest struct {
	Reason  string            `json:"reason" binding:"required,max=500"`
	Entries []AdjustmentEntry `json:"entries" binding:"required,min=2,dive"`
}

// WindowRequest bounds a validation run or an export.
type WindowRequest struct {
	From time.Time `json:"from" binding:"required" form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To   time.Time `json:"to" binding:"required" form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// PaymentResponse is the response body for payment operations.
type PaymentResponse struct {
	ID                 string  `json:"id"`
	OrderID            string  `json:"order_id"`
	PayerWalletID      string  `json:"payer_wallet_id"`
	PayeeWalletID      string  `json:"payee_wallet_id"`
	Amount             string  `json:"amount"`
	Method             string  `json:"method"`
	PlatformFeePercent string  `json:"platform_fee_percent"`
	PlatformFee        string  `json:"platform_fee"`
	State              string  `json:"state"`
	ExternalRef        *string `json:"external_ref,omitempty"`
	FailureReason      *string `json:"failure_reason,omitempty"`
	InitiatedAt        string  `json:"initiated_at"`
	AuthorizedAt       *string `json:"authorized_at,omitempty"`
	CapturedAt         *string `json:"captured_at,omitempty"`
}

// RefundResponse is the response body for refund operations.
type RefundResponse struct {
	ID                string  `json:"id"`
	PaymentID         string  `json:"payment_id"`
	Amount            string  `json:"amount"`
	Reason            string  `json:"reason"`
	RefundPlatformFee bool    `json:"refund_platform_fee"`
	Status            string  `json:"status"`
	RequestedBy       string  `json:"requested_by"`
	DecidedBy         *string `json:"decided_by,omitempty"`
	DecisionNote      *string `json:"decision_note,omitempty"`
	FailureReason     *string `json:"failure_reason,omitempty"`
	RequestedAt       string  `json:"requested_at"`
	DecidedAt         *string `json:"decided_at,omitempty"`
	CompletedAt       *string `json:"completed_at,omitempty"`
}

// WithdrawalResponse is the response body for payout operations.
type WithdrawalResponse struct {
	ID            string  `json:"id"`
	WalletID      string  `json:"wallet_id"`
	Requested     string  `json:"requested"`
	Fee           string  `json:"fee"`
	Net           string  `json:"net"`
	Destination   string  `json:"destination"`
	State         string  `json:"state"`
	RequestedBy   string  `json:"requested_by"`
	FailureReason *string `json:"failure_reason,omitempty"`
	RequestedAt   string  `json:"requested_at"`
	CompletedAt   *string `json:"completed_at,omitempty"`
}

// WalletResponse is the response body for wallet queries.
type WalletResponse struct {
	ID          string  `json:"id"`
	Code        string  `json:"code"`
	Kind        string  `json:"kind"`
	Status      string  `json:"status"`
	Currency    string  `json:"currency"`
	OwnerUserID *string `json:"owner_user_id,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// BalanceResponse is the response for a derived balance query.
type BalanceResponse struct {
	WalletID string `json:"wallet_id"`
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
}

// EntryResponse is one ledger entry in a listing.
type EntryResponse struct {
	ID            string  `json:"id"`
	WalletID      string  `json:"wallet_id"`
	Amount        string  `json:"amount"`
	Type          string  `json:"type"`
	Description   string  `json:"description,omitempty"`
	TransactionID string  `json:"transaction_id"`
	PaymentID     *string `json:"payment_id,omitempty"`
	RefundID      *string `json:"refund_id,omitempty"`
	WithdrawalID  *string `json:"withdrawal_id,omitempty"`
	OrderID       *string `json:"order_id,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// EntryListResponse wraps a paginated entry listing.
type EntryListResponse struct {
	Items    []EntryResponse `json:"items"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// RefundabilityResponse reports how much of a payment remains refundable.
type RefundabilityResponse struct {
	Refundable bool   `json:"refundable"`
	Remaining  string `json:"remaining"`
	Reason     string `json:"reason,omitempty"`
}

// FromPayment converts a domain payment to its response shape.
func FromPayment(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:                 p.ID.String(),
		OrderID:            p.OrderID,
		PayerWalletID:      p.PayerWalletID.String(),
		PayeeWalletID:      p.PayeeWalletID.String(),
		Amount:             p.Amount.String(),
		Method:             p.Method,
		PlatformFeePercent: p.PlatformFeePercent.String(),
		PlatformFee:        p.PlatformFee.String(),
		State:              string(p.State),
		ExternalRef:        p.ExternalRef,
		FailureReason:      p.FailureReason,
		InitiatedAt:        p.InitiatedAt.Format(time.RFC3339Nano),
		AuthorizedAt:       timePtr(p.AuthorizedAt),
		CapturedAt:         timePtr(p.CapturedAt),
	}
}

// FromRefund converts a domain refund to its response shape.
func FromRefund(r *domain.Refund) RefundResponse {
	return RefundResponse{
		ID:                r.ID.String(),
		PaymentID:         r.PaymentID.String(),
		Amount:            r.Amount.String(),
		Reason:            r.Reason,
		RefundPlatformFee: r.RefundPlatformFee,
		Status:            string(r.Status),
		RequestedBy:       r.RequestedBy,
		DecidedBy:         r.DecidedBy,
		DecisionNote:      r.DecisionNote,
		FailureReason:     r.FailureReason,
		RequestedAt:       r.RequestedAt.Format(time.RFC3339Nano),
		DecidedAt:         timePtr(r.DecidedAt),
		CompletedAt:       timePtr(r.CompletedAt),
	}
}

// FromWithdrawal converts a domain withdrawal to its response shape.
func FromWithdrawal(w *domain.Withdrawal) WithdrawalResponse {
	return WithdrawalResponse{
		ID:            w.ID.String(),
		WalletID:      w.WalletID.String(),
		Requested:     w.Requested.String(),
		Fee:           w.Fee.String(),
		Net:           w.Net.String(),
		Destination:   w.Destination,
		State:         string(w.State),
		RequestedBy:   w.RequestedBy,
		FailureReason: w.FailureReason,
		RequestedAt:   w.RequestedAt.Format(time.RFC3339Nano),
		CompletedAt:   timePtr(w.CompletedAt),
	}
}

// FromWallet converts a domain wallet to its response shape.
func FromWallet(w *domain.Wallet) WalletResponse {
	resp := WalletResponse{
		ID:        w.ID.String(),
		Code:      w.Code,
		Kind:      string(w.Kind),
		Status:    string(w.Status),
		Currency:  w.Currency,
		CreatedAt: w.CreatedAt.Format(time.RFC3339Nano),
	}
	if w.OwnerUserID != nil {
		owner := w.OwnerUserID.String()
		resp.OwnerUserID = &owner
	}
	return resp
}

// FromEntry converts a domain ledger entry to its response shape.
func FromEntry(e *domain.LedgerEntry) EntryResponse {
	resp := EntryResponse{
		ID:            e.ID.String(),
		WalletID:      e.WalletID.String(),
		Amount:        e.Amount.String(),
		Type:          string(e.Type),
		Description:   e.Description,
		TransactionID: e.TransactionID,
		OrderID:       e.OrderID,
		CreatedAt:     e.CreatedAt.Format(time.RFC3339Nano),
	}
	if e.PaymentID != nil {
		s := e.PaymentID.String()
		resp.PaymentID = &s
	}
	if e.RefundID != nil {
		s := e.RefundID.String()
		resp.RefundID = &s
	}
	if e.WithdrawalID != nil {
		s := e.WithdrawalID.String()
		resp.WithdrawalID = &s
	}
	return resp
}

// FromEntries converts a slice of entries.
func FromEntries(entries []domain.LedgerEntry) []EntryResponse {
	out := make([]EntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, FromEntry(&entries[i]))
	}
	return out
}

func timePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}
