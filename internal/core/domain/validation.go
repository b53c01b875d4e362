package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ViolationKind classifies a reconciliation finding.
type ViolationKind string

const (
	ViolationZeroSum       ViolationKind = "ZERO_SUM"
	ViolationOrphanedEntry ViolationKind = "ORPHANED_ENTRY"
	ViolationMissingEntry  ViolationKind = "MISSING_ENTRIES"
	ViolationFeeIntegrity  ViolationKind = "FEE_INTEGRITY"
)

// Violation is a single invariant breach found by the reconciliation
// engine. Findings are reported, never auto-corrected.
type Violation struct {
	Kind          ViolationKind `json:"kind"`
	TransactionID string        `json:"transaction_id,omitempty"`
	EntryID       *uuid.UUID    `json:"entry_id,omitempty"`
	RecordID      *uuid.UUID    `json:"record_id,omitempty"`
	Detail        string        `json:"detail"`
}

// WalletSummary reports solvency figures derived from the ledger.
type WalletSummary struct {
	TotalUserLiability decimal.Decimal            `json:"total_user_liability"`
	PlatformBalances   map[string]decimal.Decimal `json:"platform_balances"` // keyed by wallet code
}

// ValidationReport is the output of one reconciliation run over a
// bounded time window.
type ValidationReport struct {
	WindowStart   time.Time     `json:"window_start"`
	WindowEnd     time.Time     `json:"window_end"`
	GeneratedAt   time.Time     `json:"generated_at"`
	EntriesViewed int           `json:"entries_viewed"`
	Violations    []Violation   `json:"violations"`
	Wallets       WalletSummary `json:"wallets"`
}

// Clean returns true if the run found no violations.
func (r *ValidationReport) Clean() bool {
	return len(r.Violations) == 0
}
