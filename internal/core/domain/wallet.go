package domain

import (
	"time"

	"github.com/google/uuid"
)

// WalletKind distinguishes platform-owned wallets from user wallets.
type WalletKind string

const (
	WalletKindPlatform WalletKind = "PLATFORM"
	WalletKindUser     WalletKind = "USER"
	WalletKindEscrow   WalletKind = "ESCROW"
)

// WalletStatus represents the administrative state of a wallet.
type WalletStatus string

const (
	WalletStatusActive WalletStatus = "ACTIVE"
	WalletStatusFrozen WalletStatus = "FROZEN"
)

// Well-known wallet codes provisioned at bootstrap.
const (
	WalletCodePlatformMain   = "platform-main"
	WalletCodePlatformEscrow = "platform-escrow"
)

// Wallet identifies a party that ledger entries can be attributed to.
// It carries no balance field: the balance is always the sum of the
// wallet's ledger entries and nothing else.
type Wallet struct {
	ID          uuid.UUID    `json:"id"`
	Code        string       `json:"code"`
	Kind        WalletKind   `json:"kind"`
	Status      WalletStatus `json:"status"`
	Currency    string       `json:"currency"`
	OwnerUserID *uuid.UUID   `json:"owner_user_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// IsActive returns true if the wallet accepts new entry-producing operations.
func (w *Wallet) IsActive() bool {
	return w.Status == WalletStatusActive
}
