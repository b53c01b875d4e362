package service

import (
	"context"
	"testing"
	"time"

	"marketplace-settlement/internal/core/domain"
	"marketplace-settlement/internal/core/ports"
	"marketplace-settlement/pkg/logger"
	"marketplace-settlement/pkg/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type withdrawalFixture struct {
	svc        *WithdrawalServiceImpl
	walletRepo *memWalletRepo
	ledgerRepo *memLedgerRepo
	seller     *domain.Wallet
	platform   *domain.Wallet
	escrow     *domain.Wallet
}

func newWithdrawalFixture(t *testing.T) *withdrawalFixture {
	t.Helper()
	walletRepo := newMemWalletRepo()
	ledgerRepo := newMemLedgerRepo(walletRepo)

	now := time.Now().UTC()
	seller := &domain.Wallet{ID: uuid.New(), Code: "seller-1", Kind: domain.WalletKindUser, Status: domain.WalletStatusActive, Currency: "VND", CreatedAt: now}
	platform := &domain.Wallet{ID: uuid.New(), Code: domain.WalletCodePlatformMain, Kind: domain.WalletKindPlatform, Status: domain.WalletStatusActive, Currency: "VND", CreatedAt: now}
	escrow := &domain.Wallet{ID: uuid.New(), Code: domain.WalletCodePlatformEscrow, Kind: domain.WalletKindEscrow, Status: domain.WalletStatusActive, Currency: "VND", CreatedAt: now}
	for _, w := range []*domain.Wallet{seller, platform, escrow} {
		require.NoError(t, walletRepo.Create(context.Background(), w))
	}

	svc := NewWithdrawalService(newMemWithdrawalRepo(), walletRepo, ledgerRepo, newMemTransactor(),
		metrics.NewForTest(), decimal.NewFromInt(1), domain.WalletCodePlatformMain,
		domain.WalletCodePlatformEscrow, 0, logger.New("error", false))

	return &withdrawalFixture{svc: svc, walletRepo: walletRepo, ledgerRepo: ledgerRepo,
		seller: seller, platform: platform, escrow: escrow}
}

// fund seeds the wallet with a balanced adjustment pair against escrow.
func (f *withdrawalFixture) fund(t *testing.T, walletID uuid.UUID, amount int64) {
	t.Helper()
	txID := domain.AdjustmentTransactionID(uuid.New())
	now := time.Now().UTC()
	err := f.ledgerRepo.InsertEntries(context.Background(), nil, []domain.LedgerEntry{
		{ID: uuid.New(), WalletID: walletID, Amount: decimal.NewFromInt(amount), Type: domain.EntryTypeAdjustmentCredit, TransactionID: txID, CreatedAt: now},
		{ID: uuid.New(), WalletID: f.escrow.ID, Amount: decimal.NewFromInt(-amount), Type: domain.EntryTypeAdjustmentDebit, TransactionID: txID, CreatedAt: now},
	})
	require.NoError(t, err)
}

func (f *withdrawalFixture) request(t *testing.T, amount int64) *domain.Withdrawal {
	t.Helper()
	w, err := f.svc.Request(context.Background(), ports.RequestWithdrawalRequest{
		WalletID:    f.seller.ID,
		Amount:      decimal.NewFromInt(amount),
		Destination: "bank:0123456789",
		RequestedBy: "seller-1",
	})
	require.NoError(t, err)
	return w
}

func TestWithdrawalService_Request(t *testing.T) {
	f := newWithdrawalFixture(t)
	f.fund(t, f.seller.ID, 20000)

	w := f.request(t, 10000)
	assert.Equal(t, domain.WithdrawalStatePending, w.State)
	assert.True(t, w.Fee.Equal(decimal.NewFromInt(100)), "1 percent of 10000")
	assert.True(t, w.Net.Equal(decimal.NewFromInt(9900)))

	// Nothing moves until completion.
	bal, err := f.ledgerRepo.SumForWallet(context.Background(), f.seller.ID)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(20000)))
}

func TestWithdrawalService_Request_Validation(t *testing.T) {
	f := newWithdrawalFixture(t)
	f.fund(t, f.seller.ID, 5000)

	_, err := f.svc.Request(context.Background(), ports.RequestWithdrawalRequest{
		WalletID: f.seller.ID, Amount: decimal.NewFromInt(-1), Destination: "bank:1",
	})
	assert.Equal(t, "PAY_002", appErrCode(t, err))

	_, err = f.svc.Request(context.Background(), ports.RequestWithdrawalRequest{
		WalletID: f.seller.ID, Amount: decimal.NewFromInt(1000), Destination: "",
	})
	assert.Equal(t, "GEN_002", appErrCode(t, err))

	// More than the wallet holds.
	_, err = f.svc.Request(context.Background(), ports.RequestWithdrawalRequest{
		WalletID: f.seller.ID, Amount: decimal.NewFromInt(6000), Destination: "bank:1",
	})
	assert.Equal(t, "WAL_001", appErrCode(t, err))

	// Platform wallets never withdraw through this flow.
	_, err = f.svc.Request(context.Background(), ports.RequestWithdrawalRequest{
		WalletID: f.platform.ID, Amount: decimal.NewFromInt(1000), Destination: "bank:1",
	})
	assert.Equal(t, "GEN_002", appErrCode(t, err))
}

func TestWithdrawalService_Complete(t *testing.T) {
	f := newWithdrawalFixture(t)
	f.fund(t, f.seller.ID, 20000)

	w := f.request(t, 10000)
	w, err := f.svc.Complete(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStateCompleted, w.State)
	require.NotNil(t, w.CompletedAt)

	entries, err := f.ledgerRepo.GetByTransaction(context.Background(), domain.WithdrawalTransactionID(w.ID))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, domain.SumEntries(entries).IsZero())

	sellerBal, _ := f.ledgerRepo.SumForWallet(context.Background(), f.seller.ID)
	platformBal, _ := f.ledgerRepo.SumForWallet(context.Background(), f.platform.ID)
	assert.True(t, sellerBal.Equal(decimal.NewFromInt(10000)))
	assert.True(t, platformBal.Equal(decimal.NewFromInt(100)))
}

func TestWithdrawalService_Complete_Retry(t *testing.T) {
	f := newWithdrawalFixture(t)
	f.fund(t, f.seller.ID, 20000)

	w := f.request(t, 10000)
	_, err := f.svc.Complete(context.Background(), w.ID)
	require.NoError(t, err)

	retried, err := f.svc.Complete(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStateCompleted, retried.State)

	entries, err := f.ledgerRepo.GetByTransaction(context.Background(), domain.WithdrawalTransactionID(w.ID))
	require.NoError(t, err)
	assert.Len(t, entries, 3, "retry must not duplicate the entry set")
}

func TestWithdrawalService_Complete_BalanceDrainedFails(t *testing.T) {
	f := newWithdrawalFixture(t)
	f.fund(t, f.seller.ID, 10000)

	w := f.request(t, 10000)

	// Funds leave between request and completion.
	f.fund(t, f.seller.ID, -8000)

	_, err := f.svc.Complete(context.Background(), w.ID)
	assert.Equal(t, "WAL_001", appErrCode(t, err))

	got, err := f.svc.Get(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStateFailed, got.State)
	require.NotNil(t, got.FailureReason)

	entries, err := f.ledgerRepo.GetByTransaction(context.Background(), domain.WithdrawalTransactionID(w.ID))
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Terminal: no retry after failure.
	_, err = f.svc.Complete(context.Background(), w.ID)
	assert.Equal(t, "PAY_001", appErrCode(t, err))
}

func TestWithdrawalService_MarkFailed(t *testing.T) {
	f := newWithdrawalFixture(t)
	f.fund(t, f.seller.ID, 10000)

	w := f.request(t, 5000)
	w, err := f.svc.MarkFailed(context.Background(), w.ID, "payout provider rejected account")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStateFailed, w.State)
	require.NotNil(t, w.FailureReason)

	// A settled withdrawal cannot be failed after the fact.
	f.fund(t, f.seller.ID, 10000)
	w2 := f.request(t, 5000)
	_, err = f.svc.Complete(context.Background(), w2.ID)
	require.NoError(t, err)
	_, err = f.svc.MarkFailed(context.Background(), w2.ID, "too late")
	assert.Equal(t, "PAY_001", appErrCode(t, err))
}
