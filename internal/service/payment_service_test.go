package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketplace-settlement/internal/core/domain"
	"marketplace-settlement/internal/core/ports"
	"marketplace-settlement/internal/core/ports/mocks"
	"marketplace-settlement/pkg/logger"
	"marketplace-settlement/pkg/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type paymentFixture struct {
	svc        *PaymentServiceImpl
	walletRepo *memWalletRepo
	ledgerRepo *memLedgerRepo
	cache      *memCache
	buyer      *domain.Wallet
	seller     *domain.Wallet
	platform   *domain.Wallet
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	walletRepo := newMemWalletRepo()
	ledgerRepo := newMemLedgerRepo(walletRepo)
	paymentRepo := newMemPaymentRepo()
	cache := newMemCache()

	now := time.Now().UTC()
	buyer := &domain.Wallet{ID: uuid.New(), Code: "buyer-1", Kind: domain.WalletKindUser, Status: domain.WalletStatusActive, Currency: "VND", CreatedAt: now}
	seller := &domain.Wallet{ID: uuid.New(), Code: "seller-1", Kind: domain.WalletKindUser, Status: domain.WalletStatusActive, Currency: "VND", CreatedAt: now}
	platform := &domain.Wallet{ID: uuid.New(), Code: domain.WalletCodePlatformMain, Kind: domain.WalletKindPlatform, Status: domain.WalletStatusActive, Currency: "VND", CreatedAt: now}
	for _, w := range []*domain.Wallet{buyer, seller, platform} {
		require.NoError(t, walletRepo.Create(context.Background(), w))
	}

	svc := NewPaymentService(paymentRepo, walletRepo, ledgerRepo, cache, newMemTransactor(),
		metrics.NewForTest(), decimal.NewFromInt(10), domain.WalletCodePlatformMain, 0,
		time.Hour, logger.New("error", false))

	return &paymentFixture{svc: svc, walletRepo: walletRepo, ledgerRepo: ledgerRepo, cache: cache,
		buyer: buyer, seller: seller, platform: platform}
}

func (f *paymentFixture) initiate(t *testing.T, amount int64) *domain.Payment {
	t.Helper()
	p, err := f.svc.Initiate(context.Background(), ports.InitiatePaymentRequest{
		OrderID:       "ORD-" + uuid.New().String()[:8],
		PayerWalletID: f.buyer.ID,
		PayeeWalletID: f.seller.ID,
		Amount:        decimal.NewFromInt(amount),
		Method:        "card",
	})
	require.NoError(t, err)
	return p
}

func TestPaymentService_Initiate(t *testing.T) {
	f := newPaymentFixture(t)

	p := f.initiate(t, 10000)
	assert.Equal(t, domain.PaymentStateInitiated, p.State)
	assert.True(t, p.PlatformFeePercent.Equal(decimal.NewFromInt(10)), "configured default applies")
	assert.True(t, p.PlatformFee.IsZero(), "fee is frozen only at capture")

	// No ledger entries at initiation.
	entries, err := f.ledgerRepo.GetByTransaction(context.Background(), domain.PaymentTransactionID(p.ID))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPaymentService_Initiate_Validation(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.svc.Initiate(context.Background(), ports.InitiatePaymentRequest{
		OrderID: "ORD-1", PayerWalletID: f.buyer.ID, PayeeWalletID: f.seller.ID,
		Amount: decimal.NewFromInt(-5),
	})
	assert.Equal(t, "PAY_002", appErrCode(t, err))

	_, err = f.svc.Initiate(context.Background(), ports.InitiatePaymentRequest{
		OrderID: "ORD-1", PayerWalletID: f.buyer.ID, PayeeWalletID: f.buyer.ID,
		Amount: decimal.NewFromInt(100),
	})
	assert.Equal(t, "GEN_002", appErrCode(t, err))

	over := decimal.NewFromInt(101)
	_, err = f.svc.Initiate(context.Background(), ports.InitiatePaymentRequest{
		OrderID: "ORD-1", PayerWalletID: f.buyer.ID, PayeeWalletID: f.seller.ID,
		Amount: decimal.NewFromInt(100), PlatformFeePercent: &over,
	})
	assert.Equal(t, "GEN_002", appErrCode(t, err))
}

func TestPaymentService_Capture(t *testing.T) {
	f := newPaymentFixture(t)
	p := f.initiate(t, 10000)

	captured, err := f.svc.Capture(context.Background(), p.ID, "gw-ref-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStateCaptured, captured.State)
	assert.True(t, captured.PlatformFee.Equal(decimal.NewFromInt(1000)), "10 percent of 10000")

	entries, err := f.ledgerRepo.GetByTransaction(context.Background(), domain.PaymentTransactionID(p.ID))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, domain.SumEntries(entries).IsZero())

	buyerBal, _ := f.ledgerRepo.SumForWallet(context.Background(), f.buyer.ID)
	sellerBal, _ := f.ledgerRepo.SumForWallet(context.Background(), f.seller.ID)
	platformBal, _ := f.ledgerRepo.SumForWallet(context.Background(), f.platform.ID)
	assert.True(t, buyerBal.Equal(decimal.NewFromInt(-10000)))
	assert.True(t, sellerBal.Equal(decimal.NewFromInt(9000)))
	assert.True(t, platformBal.Equal(decimal.NewFromInt(1000)))
}

func TestPaymentService_Capture_Retry(t *testing.T) {
	f := newPaymentFixture(t)
	p := f.initiate(t, 10000)

	_, err := f.svc.Capture(context.Background(), p.ID, "gw-ref-1")
	require.NoError(t, err)

	retried, err := f.svc.Capture(context.Background(), p.ID, "gw-ref-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStateCaptured, retried.State)

	entries, err := f.ledgerRepo.GetByTransaction(context.Background(), domain.PaymentTransactionID(p.ID))
	require.NoError(t, err)
	assert.Len(t, entries, 3, "retry must not duplicate the entry set")
}

func TestPaymentService_Capture_ZeroFee(t *testing.T) {
	f := newPaymentFixture(t)
	zero := decimal.Zero
	p, err := f.svc.Initiate(context.Background(), ports.InitiatePaymentRequest{
		OrderID: "ORD-free", PayerWalletID: f.buyer.ID, PayeeWalletID: f.seller.ID,
		Amount: decimal.NewFromInt(5000), PlatformFeePercent: &zero,
	})
	require.NoError(t, err)

	_, err = f.svc.Capture(context.Background(), p.ID, "gw-ref-2")
	require.NoError(t, err)

	entries, err := f.ledgerRepo.GetByTransaction(context.Background(), domain.PaymentTransactionID(p.ID))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no fee leg when the fee is zero")
	assert.True(t, domain.SumEntries(entries).IsZero())
}

func TestPaymentService_Capture_AfterAuthorize(t *testing.T) {
	f := newPaymentFixture(t)
	p := f.initiate(t, 10000)

	authorized, err := f.svc.Authorize(context.Background(), p.ID, "gw-auth-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStateAuthorized, authorized.State)
	require.NotNil(t, authorized.AuthorizedAt)

	captured, err := f.svc.Capture(context.Background(), p.ID, "gw-cap-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStateCaptured, captured.State)
}

func TestPaymentService_Capture_InvalidState(t *testing.T) {
	f := newPaymentFixture(t)
	p := f.initiate(t, 10000)

	_, err := f.svc.MarkFailed(context.Background(), p.ID, "gateway declined")
	require.NoError(t, err)

	_, err = f.svc.Capture(context.Background(), p.ID, "gw-ref-1")
	assert.Equal(t, "PAY_001", appErrCode(t, err))
}

func TestPaymentService_MarkFailed_AfterCapture(t *testing.T) {
	f := newPaymentFixture(t)
	p := f.initiate(t, 10000)

	_, err := f.svc.Capture(context.Background(), p.ID, "gw-ref-1")
	require.NoError(t, err)

	// Money already moved; the payment cannot fail anymore.
	_, err = f.svc.MarkFailed(context.Background(), p.ID, "too late")
	assert.Equal(t, "PAY_001", appErrCode(t, err))
}

func TestPaymentService_Capture_FrozenSeller(t *testing.T) {
	f := newPaymentFixture(t)
	p := f.initiate(t, 10000)

	require.NoError(t, f.walletRepo.UpdateStatus(context.Background(), f.seller.ID, domain.WalletStatusFrozen))

	_, err := f.svc.Capture(context.Background(), p.ID, "gw-ref-1")
	assert.Equal(t, "WAL_002", appErrCode(t, err))

	entries, err := f.ledgerRepo.GetByTransaction(context.Background(), domain.PaymentTransactionID(p.ID))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPaymentService_Capture_BeginFailure(t *testing.T) {
	f := newPaymentFixture(t)
	p := f.initiate(t, 10000)

	ctrl := gomock.NewController(t)
	transactor := mocks.NewMockDBTransactor(ctrl)
	transactor.EXPECT().Begin(gomock.Any()).Return(nil, errors.New("pool exhausted"))

	svc := NewPaymentService(f.svc.paymentRepo, f.walletRepo, f.ledgerRepo, f.cache, transactor,
		metrics.NewForTest(), decimal.NewFromInt(10), domain.WalletCodePlatformMain, 0,
		time.Hour, logger.New("error", false))

	_, err := svc.Capture(context.Background(), p.ID, "gw-ref-1")
	assert.Equal(t, "SYS_001", appErrCode(t, err))
}

func TestPaymentService_Capture_SurvivesCacheOutage(t *testing.T) {
	f := newPaymentFixture(t)
	p := f.initiate(t, 10000)

	ctrl := gomock.NewController(t)
	cache := mocks.NewMockIdempotencyCache(ctrl)
	cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("redis down")).AnyTimes()
	cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("redis down")).AnyTimes()

	svc := NewPaymentService(f.svc.paymentRepo, f.walletRepo, f.ledgerRepo, cache, newMemTransactor(),
		metrics.NewForTest(), decimal.NewFromInt(10), domain.WalletCodePlatformMain, 0,
		time.Hour, logger.New("error", false))

	// The cache is a fast path only; capture settles through the database.
	captured, err := svc.Capture(context.Background(), p.ID, "gw-ref-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStateCaptured, captured.State)

	entries, err := f.ledgerRepo.GetByTransaction(context.Background(), domain.PaymentTransactionID(p.ID))
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
