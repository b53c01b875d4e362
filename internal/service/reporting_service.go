package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"marketplace-settlement/internal/core/ports"
	"marketplace-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReportingServiceImpl implements ports.ReportingService.
type ReportingServiceImpl struct {
	ledgerRepo     ports.LedgerRepository
	withdrawalRepo ports.WithdrawalRepository
	log            zerolog.Logger
}

// NewReportingService creates a new ReportingServiceImpl.
func NewReportingService(
	ledgerRepo ports.LedgerRepository,
	withdrawalRepo ports.WithdrawalRepository,
	log zerolog.Logger,
) *ReportingServiceImpl {
	return &ReportingServiceImpl{
		ledgerRepo:     ledgerRepo,
		withdrawalRepo: withdrawalRepo,
		log:            log,
	}
}

// ExportLedger streams the window's entries as CSV, one row per entry.
func (s *ReportingServiceImpl) ExportLedger(ctx context.Context, w io.Writer, window ports.EntryWindow) error {
	entries, err := s.ledgerRepo.ListInWindow(ctx, window)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("list entries: %w", err))
	}

	cw := csv.NewWriter(w)
	header := []string{"entry_id", "transaction_id", "wallet_id", "amount", "type", "description",
		"payment_id", "refund_id", "withdrawal_id", "order_id", "created_at"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, e := range entries {
		row := []string{
			e.ID.String(),
			e.TransactionID,
			e.WalletID.String(),
			e.Amount.String(),
			string(e.Type),
			e.Description,
			uuidOrEmpty(e.PaymentID),
			uuidOrEmpty(e.RefundID),
			uuidOrEmpty(e.WithdrawalID),
			strOrEmpty(e.OrderID),
			e.CreatedAt.Format(time.RFC3339Nano),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	s.log.Info().
		Int("rows", len(entries)).
		Time("from", window.From).
		Time("to", window.To).
		Msg("ledger export written")

	return nil
}

// ExportPayouts streams the window's withdrawals as CSV, one row per
// payout request regardless of state.
func (s *ReportingServiceImpl) ExportPayouts(ctx context.Context, w io.Writer, window ports.EntryWindow) error {
	withdrawals, err := s.withdrawalRepo.ListInWindow(ctx, window)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("list withdrawals: %w", err))
	}

	cw := csv.NewWriter(w)
	header := []string{"withdrawal_id", "wallet_id", "requested", "fee", "net", "destination",
		"state", "requested_by", "failure_reason", "requested_at", "completed_at"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, wd := range withdrawals {
		row := []string{
			wd.ID.String(),
			wd.WalletID.String(),
			wd.Requested.String(),
			wd.Fee.String(),
			wd.Net.String(),
			wd.Destination,
			string(wd.State),
			wd.RequestedBy,
			strOrEmpty(wd.FailureReason),
			wd.RequestedAt.Format(time.RFC3339Nano),
			timeOrEmpty(wd.CompletedAt),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	s.log.Info().
		Int("rows", len(withdrawals)).
		Time("from", window.From).
		Time("to", window.To).
		Msg("payout export written")

	return nil
}

func uuidOrEmpty(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func timeOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}
