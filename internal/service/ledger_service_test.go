package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketplace-settlement/internal/core/domain"
	"marketplace-settlement/internal/core/ports"
	"marketplace-settlement/pkg/apperror"
	"marketplace-settlement/pkg/logger"
	"marketplace-settlement/pkg/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ledgerFixture struct {
	svc        *LedgerServiceImpl
	walletRepo *memWalletRepo
	ledgerRepo *memLedgerRepo
	idempRepo  *memIdempotencyRepo
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	walletRepo := newMemWalletRepo()
	ledgerRepo := newMemLedgerRepo(walletRepo)
	idempRepo := newMemIdempotencyRepo()
	svc := NewLedgerService(ledgerRepo, walletRepo, idempRepo, newMemTransactor(),
		metrics.NewForTest(), 0, logger.New("error", false))
	return &ledgerFixture{svc: svc, walletRepo: walletRepo, ledgerRepo: ledgerRepo, idempRepo: idempRepo}
}

func (f *ledgerFixture) addWallet(t *testing.T, kind domain.WalletKind, status domain.WalletStatus) *domain.Wallet {
	t.Helper()
	w := &domain.Wallet{
		ID:        uuid.New(),
		Code:      "w-" + uuid.NewString()[:8],
		Kind:      kind,
		Status:    status,
		Currency:  "VND",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.walletRepo.Create(context.Background(), w))
	return w
}

func appErrCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.Code
}

func TestLedgerService_Record(t *testing.T) {
	f := newLedgerFixture(t)
	a := f.addWallet(t, domain.WalletKindUser, domain.WalletStatusActive)
	b := f.addWallet(t, domain.WalletKindUser, domain.WalletStatusActive)

	entries := []ports.EntryInput{
		{WalletID: a.ID, Amount: decimal.NewFromInt(-5000), Type: domain.EntryTypePaymentDebit},
		{WalletID: b.ID, Amount: decimal.NewFromInt(5000), Type: domain.EntryTypePaymentCredit},
	}
	recorded, err := f.svc.Record(context.Background(), "payment-x1", nil, entries)
	require.NoError(t, err)
	require.Len(t, recorded, 2)
	assert.True(t, domain.SumEntries(recorded).IsZero())
	for _, e := range recorded {
		assert.Equal(t, "payment-x1", e.TransactionID)
		assert.False(t, e.CreatedAt.IsZero())
	}

	balA, err := f.ledgerRepo.SumForWallet(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, balA.Equal(decimal.NewFromInt(-5000)))
}

func TestLedgerService_Record_Unbalanced(t *testing.T) {
	f := newLedgerFixture(t)
	a := f.addWallet(t, domain.WalletKindUser, domain.WalletStatusActive)
	b := f.addWallet(t, domain.WalletKindUser, domain.WalletStatusActive)

	entries := []ports.EntryInput{
		{WalletID: a.ID, Amount: decimal.NewFromInt(-5000), Type: domain.EntryTypePaymentDebit},
		{WalletID: b.ID, Amount: decimal.NewFromInt(4999), Type: domain.EntryTypePaymentCredit},
	}
	_, err := f.svc.Record(context.Background(), "payment-x2", nil, entries)
	assert.Equal(t, "LGR_001", appErrCode(t, err))

	// Nothing may be written on rejection.
	existing, err := f.ledgerRepo.GetByTransaction(context.Background(), "payment-x2")
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestLedgerService_Record_EmptySet(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.svc.Record(context.Background(), "payment-x3", nil, nil)
	assert.Equal(t, "LGR_004", appErrCode(t, err))
}

func TestLedgerService_Record_ZeroAmountEntry(t *testing.T) {
	f := newLedgerFixture(t)
	a := f.addWallet(t, domain.WalletKindUser, domain.WalletStatusActive)

	entries := []ports.EntryInput{
		{WalletID: a.ID, Amount: decimal.Zero, Type: domain.EntryTypePaymentDebit},
	}
	_, err := f.svc.Record(context.Background(), "payment-x4", nil, entries)
	assert.Equal(t, "LGR_003", appErrCode(t, err))
}

func TestLedgerService_Record_PrecisionViolation(t *testing.T) {
	f := newLedgerFixture(t)
	a := f.addWallet(t, domain.WalletKindUser, domain.WalletStatusActive)
	b := f.addWallet(t, domain.WalletKindUser, domain.WalletStatusActive)

	// Exponent 0: fractional amounts are rejected even though they balance.
	entries := []ports.EntryInput{
		{WalletID: a.ID, Amount: decimal.RequireFromString("-10.5"), Type: domain.EntryTypePaymentDebit},
		{WalletID: b.ID, Amount: decimal.RequireFromString("10.5"), Type: domain.EntryTypePaymentCredit},
	}
	_, err := f.svc.Record(context.Background(), "payment-x5", nil, entries)
	assert.Equal(t, "LGR_003", appErrCode(t, err))
}

func TestLedgerService_Record_FrozenWallet(t *testing.T) {
	f := newLedgerFixture(t)
	a := f.addWallet(t, domain.WalletKindUser, domain.WalletStatusFrozen)
	b := f.addWallet(t, domain.WalletKindUser, domain.WalletStatusActive)

	entries := []ports.EntryInput{
		{WalletID: a.ID, Amount: decimal.NewFromInt(-100), Type: domain.EntryTypePaymentDebit},
		{WalletID: b.ID, Amount: decimal.NewFromInt(100), Type: domain.EntryTypePaymentCredit},
	}
	_, err := f.svc.Record(context.Background(), "payment-x6", nil, entries)
	assert.Equal(t, "WAL_002", appErrCode(t, err))
}

func TestLedgerService_Record_ReplaySameTransaction(t *testing.T) {
	f := newLedgerFixture(t)
	a := f.addWallet(t, domain.WalletKindUser, domain.WalletStatusActive)
	b := f.addWallet(t, domain.WalletKindUser, domain.WalletStatusActive)

	entries := []ports.EntryInput{
		{WalletID: a.ID, Amount: decimal.NewFromInt(-100), Type: domain.EntryTypePaymentDebit},
		{WalletID: b.ID, Amount: decimal.NewFromInt(100), Type: domain.EntryTypePaymentCredit},
	}
	first, err := f.svc.Record(context.Background(), "payment-x7", nil, entries)
	require.NoError(t, err)

	second, err := f.svc.Record(context.Background(), "payment-x7", nil, entries)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, first[0].ID, second[0].ID, "retry must return the committed set, not write a new one")

	all, err := f.ledgerRepo.GetByTransaction(context.Background(), "payment-x7")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLedgerService_Record_IdempotencyKeyReuse(t *testing.T) {
	f := newLedgerFixture(t)
	a := f.addWallet(t, domain.WalletKindUser, domain.WalletStatusActive)
	b := f.addWallet(t, domain.WalletKindUser, domain.WalletStatusActive)

	key := "client-key-1"
	entries := []ports.EntryInput{
		{WalletID: a.ID, Amount: decimal.NewFromInt(-100), Type: domain.EntryTypePaymentDebit},
		{WalletID: b.ID, Amount: decimal.NewFromInt(100), Type: domain.EntryTypePaymentCredit},
	}
	_, err := f.svc.Record(context.Background(), "payment-x8", &key, entries)
	require.NoError(t, err)

	// Same key, same transaction: returns the committed set.
	replay, err := f.svc.Record(context.Background(), "payment-x8", &key, entries)
	require.NoError(t, err)
	assert.Len(t, replay, 2)

	// Same key, different transaction: caller bug.
	_, err = f.svc.Record(context.Background(), "payment-x9", &key, entries)
	assert.Equal(t, "LGR_002", appErrCode(t, err))
}

func TestLedgerService_Record_InsertFailureWritesNothing(t *testing.T) {
	f := newLedgerFixture(t)
	a := f.addWallet(t, domain.WalletKindUser, domain.WalletStatusActive)
	b := f.addWallet(t, domain.WalletKindUser, domain.WalletStatusActive)

	f.ledgerRepo.insertErr = errors.New("connection reset")

	entries := []ports.EntryInput{
		{WalletID: a.ID, Amount: decimal.NewFromInt(-100), Type: domain.EntryTypePaymentDebit},
		{WalletID: b.ID, Amount: decimal.NewFromInt(100), Type: domain.EntryTypePaymentCredit},
	}
	_, err := f.svc.Record(context.Background(), "payment-x10", nil, entries)
	assert.Equal(t, "SYS_002", appErrCode(t, err))

	existing, err := f.ledgerRepo.GetByTransaction(context.Background(), "payment-x10")
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestLedgerService_RecordAdjustment(t *testing.T) {
	f := newLedgerFixture(t)
	a := f.addWallet(t, domain.WalletKindUser, domain.WalletStatusActive)
	b := f.addWallet(t, domain.WalletKindPlatform, domain.WalletStatusActive)

	entries := []ports.EntryInput{
		{WalletID: a.ID, Amount: decimal.NewFromInt(-250), Type: domain.EntryTypeAdjustmentDebit},
		{WalletID: b.ID, Amount: decimal.NewFromInt(250), Type: domain.EntryTypeAdjustmentCredit},
	}
	recorded, err := f.svc.RecordAdjustment(context.Background(), "ops-alice", "reconciliation finding RPT-42", entries)
	require.NoError(t, err)
	require.Len(t, recorded, 2)
	assert.Contains(t, recorded[0].TransactionID, "adjustment-")
	assert.Contains(t, recorded[0].Description, "ops-alice")
	assert.Contains(t, recorded[0].Description, "RPT-42")
}

func TestLedgerService_RecordAdjustment_Validation(t *testing.T) {
	f := newLedgerFixture(t)
	a := f.addWallet(t, domain.WalletKindUser, domain.WalletStatusActive)

	entries := []ports.EntryInput{
		{WalletID: a.ID, Amount: decimal.NewFromInt(-250), Type: domain.EntryTypePaymentDebit},
		{WalletID: a.ID, Amount: decimal.NewFromInt(250), Type: domain.EntryTypeAdjustmentCredit},
	}

	_, err := f.svc.RecordAdjustment(context.Background(), "", "reason", entries)
	assert.Equal(t, "GEN_002", appErrCode(t, err))

	_, err = f.svc.RecordAdjustment(context.Background(), "ops-alice", "", entries)
	assert.Equal(t, "GEN_002", appErrCode(t, err))

	// Non-adjustment entry types are rejected.
	_, err = f.svc.RecordAdjustment(context.Background(), "ops-alice", "reason", entries)
	assert.Equal(t, "GEN_002", appErrCode(t, err))
}

func TestLedgerService_EntriesForTransaction_NotFound(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.svc.EntriesForTransaction(context.Background(), "payment-missing")
	assert.Equal(t, "GEN_001", appErrCode(t, err))
}
