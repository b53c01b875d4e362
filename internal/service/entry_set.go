package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"marketplace-settlement/internal/core/domain"
	"marketplace-settlement/internal/core/ports"
	"marketplace-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// validateEntrySet enforces the structural rules before any DB work:
// non-empty, non-zero amounts at valid precision, exact zero sum.
func validateEntrySet(transactionID string, entries []ports.EntryInput, exponent int32) error {
	if transactionID == "" {
		return apperror.Validation("transaction id is required")
	}
	if len(entries) == 0 {
		return apperror.ErrEmptyEntrySet()
	}

	sum := decimal.Zero
	for _, in := range entries {
		if in.Amount.IsZero() {
			return apperror.ErrInvalidEntryAmount("entry amount must be non-zero")
		}
		if !domain.HasMinorUnitPrecision(in.Amount, exponent) {
			return apperror.ErrInvalidEntryAmount(
				fmt.Sprintf("amount %s exceeds minor-unit precision %d", in.Amount.String(), exponent))
		}
		sum = sum.Add(in.Amount)
	}
	if !sum.IsZero() {
		return apperror.ErrUnbalancedTransaction(transactionID, sum.String())
	}
	return nil
}

// materializeEntries turns validated inputs into ledger rows sharing one
// transaction id and timestamp.
func materializeEntries(transactionID string, idempotencyKey *string, inputs []ports.EntryInput, now time.Time) []domain.LedgerEntry {
	rows := make([]domain.LedgerEntry, 0, len(inputs))
	for _, in := range inputs {
		rows = append(rows, domain.LedgerEntry{
			ID:             uuid.New(),
			WalletID:       in.WalletID,
			Amount:         in.Amount,
			Type:           in.Type,
			Description:    in.Description,
			PaymentID:      in.PaymentID,
			RefundID:       in.RefundID,
			WithdrawalID:   in.WithdrawalID,
			OrderID:        in.OrderID,
			TransactionID:  transactionID,
			IdempotencyKey: idempotencyKey,
			CreatedAt:      now,
		})
	}
	return rows
}

// lockEntryWallets acquires row locks on every distinct wallet in the
// entry set, ordered by id so concurrent writers cannot deadlock, and
// rejects frozen or missing wallets.
func lockEntryWallets(ctx context.Context, dbTx pgx.Tx, walletRepo ports.WalletRepository, entries []ports.EntryInput) error {
	seen := make(map[uuid.UUID]bool, len(entries))
	ids := make([]uuid.UUID, 0, len(entries))
	for _, in := range entries {
		if !seen[in.WalletID] {
			seen[in.WalletID] = true
			ids = append(ids, in.WalletID)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	for _, id := range ids {
		wallet, err := walletRepo.GetByIDForUpdate(ctx, dbTx, id)
		if err != nil {
			return apperror.ErrDatabaseError(fmt.Errorf("lock wallet %s: %w", id, err))
		}
		if wallet == nil {
			return apperror.ErrNotFound("wallet")
		}
		if !wallet.IsActive() {
			return apperror.ErrWalletFrozen(wallet.ID.String())
		}
	}
	return nil
}
