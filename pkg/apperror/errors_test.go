package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("WAL_001", "Insufficient balance", http.StatusUnprocessableEntity),
			expected: "[WAL_001] Insufficient balance",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("SYS_002", "DB error", http.StatusInternalServerError, fmt.Errorf("connection refused")),
			expected: "[SYS_002] DB error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("SYS_001", "wrapped", http.StatusInternalServerError, inner)

	assert.True(t, errors.Is(appErr, inner))
}

func TestAppError_IsNilUnwrap(t *testing.T) {
	appErr := New("PAY_001", "test", http.StatusBadRequest)
	assert.Nil(t, appErr.Unwrap())
}

func TestLedgerErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"UnbalancedTransaction", ErrUnbalancedTransaction("payment-abc", "42"), "LGR_001", 500},
		{"DuplicateIdempotencyKey", ErrDuplicateIdempotencyKey("key-1"), "LGR_002", 409},
		{"InvalidEntryAmount", ErrInvalidEntryAmount("amount must be non-zero"), "LGR_003", 400},
		{"EmptyEntrySet", ErrEmptyEntrySet(), "LGR_004", 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestUnbalancedTransactionMessage(t *testing.T) {
	err := ErrUnbalancedTransaction("refund-xyz", "-500")
	assert.Contains(t, err.Message, "refund-xyz")
	assert.Contains(t, err.Message, "-500")
}

func TestWalletErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"InsufficientBalance", ErrInsufficientBalance("w-1"), "WAL_001", 422},
		{"WalletFrozen", ErrWalletFrozen("w-1"), "WAL_002", 403},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestLifecycleErrors(t *testing.T) {
	stateErr := ErrInvalidStateTransition("payment", "CAPTURED", "capture")
	assert.Equal(t, "PAY_001", stateErr.Code)
	assert.Equal(t, 409, stateErr.HTTPStatus)
	assert.Contains(t, stateErr.Message, "CAPTURED")

	boundErr := ErrRefundExceedsPayment()
	assert.Equal(t, "RFD_001", boundErr.Code)
	assert.Equal(t, 422, boundErr.HTTPStatus)
}

func TestSystemErrors(t *testing.T) {
	inner := fmt.Errorf("pg: connection closed")
	dbErr := ErrDatabaseError(inner)
	assert.Equal(t, "SYS_002", dbErr.Code)
	assert.Equal(t, 500, dbErr.HTTPStatus)
	assert.True(t, errors.Is(dbErr, inner))
}

func TestNotFoundEntity(t *testing.T) {
	err := ErrNotFound("payment")
	assert.Contains(t, err.Message, "payment")
	assert.Equal(t, "GEN_001", err.Code)
}
