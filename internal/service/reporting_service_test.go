package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"marketplace-settlement/internal/core/domain"
	"marketplace-settlement/internal/core/ports"
	"marketplace-settlement/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportingService_ExportLedger(t *testing.T) {
	walletRepo := newMemWalletRepo()
	ledgerRepo := newMemLedgerRepo(walletRepo)
	svc := NewReportingService(ledgerRepo, newMemWithdrawalRepo(), logger.New("error", false))

	paymentID := uuid.New()
	orderID := "ORD-42"
	txID := domain.PaymentTransactionID(paymentID)
	now := time.Now().UTC()
	walletA, walletB := uuid.New(), uuid.New()
	require.NoError(t, ledgerRepo.InsertEntries(context.Background(), nil, []domain.LedgerEntry{
		{ID: uuid.New(), WalletID: walletA, Amount: decimal.NewFromInt(-1500), Type: domain.EntryTypePaymentDebit,
			Description: "order ORD-42", PaymentID: &paymentID, OrderID: &orderID, TransactionID: txID, CreatedAt: now},
		{ID: uuid.New(), WalletID: walletB, Amount: decimal.NewFromInt(1500), Type: domain.EntryTypePaymentCredit,
			Description: "order ORD-42", PaymentID: &paymentID, OrderID: &orderID, TransactionID: txID, CreatedAt: now},
	}))

	var buf bytes.Buffer
	err := svc.ExportLedger(context.Background(), &buf, ports.EntryWindow{From: now.Add(-time.Hour), To: now.Add(time.Hour)})
	require.NoError(t, err)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus two entries")

	assert.Equal(t, []string{"entry_id", "transaction_id", "wallet_id", "amount", "type",
		"description", "payment_id", "refund_id", "withdrawal_id", "order_id", "created_at"}, rows[0])
	assert.Equal(t, txID, rows[1][1])
	assert.Equal(t, "-1500", rows[1][3])
	assert.Equal(t, "PAYMENT_DEBIT", rows[1][4])
	assert.Equal(t, paymentID.String(), rows[1][6])
	assert.Equal(t, "", rows[1][7], "no refund reference")
	assert.Equal(t, "ORD-42", rows[1][9])
}

func TestReportingService_ExportLedger_EmptyWindow(t *testing.T) {
	walletRepo := newMemWalletRepo()
	svc := NewReportingService(newMemLedgerRepo(walletRepo), newMemWithdrawalRepo(), logger.New("error", false))

	var buf bytes.Buffer
	now := time.Now().UTC()
	err := svc.ExportLedger(context.Background(), &buf, ports.EntryWindow{From: now, To: now.Add(time.Minute)})
	require.NoError(t, err)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1, "header only")
}

func TestReportingService_ExportPayouts(t *testing.T) {
	walletRepo := newMemWalletRepo()
	withdrawalRepo := newMemWithdrawalRepo()
	svc := NewReportingService(newMemLedgerRepo(walletRepo), withdrawalRepo, logger.New("error", false))

	now := time.Now().UTC()
	completed := now.Add(time.Minute)
	w := &domain.Withdrawal{
		ID: uuid.New(), WalletID: uuid.New(),
		Requested: decimal.NewFromInt(10000), Fee: decimal.NewFromInt(100), Net: decimal.NewFromInt(9900),
		Destination: "bank:0123456789", State: domain.WithdrawalStateCompleted,
		RequestedBy: "seller-1", RequestedAt: now, CompletedAt: &completed,
	}
	require.NoError(t, withdrawalRepo.Create(context.Background(), w))

	var buf bytes.Buffer
	err := svc.ExportPayouts(context.Background(), &buf, ports.EntryWindow{From: now.Add(-time.Hour), To: now.Add(time.Hour)})
	require.NoError(t, err)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []string{"withdrawal_id", "wallet_id", "requested", "fee", "net",
		"destination", "state", "requested_by", "failure_reason", "requested_at", "completed_at"}, rows[0])
	assert.Equal(t, w.ID.String(), rows[1][0])
	assert.Equal(t, "10000", rows[1][2])
	assert.Equal(t, "100", rows[1][3])
	assert.Equal(t, "9900", rows[1][4])
	assert.Equal(t, "COMPLETED", rows[1][6])
	assert.Equal(t, "", rows[1][8], "no failure reason")
	assert.Equal(t, completed.Format(time.RFC3339Nano), rows[1][10])
}
