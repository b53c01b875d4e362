package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Ledger (LGR) ----

// ErrUnbalancedTransaction signals an entry set that does not sum to zero.
// This is always an orchestrator bug, never a valid caller error.
func ErrUnbalancedTransaction(transactionID string, sum string) *AppError {
	return New("LGR_001",
		fmt.Sprintf("entry set for transaction %s sums to %s, expected 0", transactionID, sum),
		http.StatusInternalServerError)
}

func ErrDuplicateIdempotencyKey(key string) *AppError {
	return New("LGR_002",
		fmt.Sprintf("idempotency key %q was already used for a different transaction", key),
		http.StatusConflict)
}

func ErrInvalidEntryAmount(msg string) *AppError {
	return New("LGR_003", msg, http.StatusBadRequest)
}

func ErrEmptyEntrySet() *AppError {
	return New("LGR_004", "entry set must contain at least one entry", http.StatusBadRequest)
}

// ---- Wallet (WAL) ----

func ErrInsufficientBalance(walletID string) *AppError {
	return New("WAL_001",
		fmt.Sprintf("wallet %s has insufficient balance", walletID),
		http.StatusUnprocessableEntity)
}

func ErrWalletFrozen(walletID string) *AppError {
	return New("WAL_002",
		fmt.Sprintf("wallet %s is frozen", walletID),
		http.StatusForbidden)
}

// ---- Payment & Refund (PAY / RFD) ----

func ErrInvalidStateTransition(entity, from, attempted string) *AppError {
	return New("PAY_001",
		fmt.Sprintf("%s in state %s cannot %s", entity, from, attempted),
		http.StatusConflict)
}

func ErrRefundExceedsPayment() *AppError {
	return New("RFD_001",
		"refund amount exceeds the remaining refundable amount of the payment",
		http.StatusUnprocessableEntity)
}

func ErrInvalidAmount(msg string) *AppError {
	return New("PAY_002", msg, http.StatusBadRequest)
}

// ---- General ----

func ErrNotFound(entity string) *AppError {
	return New("GEN_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New("GEN_002", message, http.StatusBadRequest)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_002", "Internal database error", http.StatusInternalServerError, err)
}
