package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-settlement/internal/core/domain"
	"marketplace-settlement/internal/core/ports"
	"marketplace-settlement/pkg/apperror"
	"marketplace-settlement/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ValidationServiceImpl implements ports.ValidationService. It is strictly
// read-only: violations are reported for manual adjustment, never
// auto-corrected.
type ValidationServiceImpl struct {
	ledgerRepo     ports.LedgerRepository
	walletRepo     ports.WalletRepository
	paymentRepo    ports.PaymentRepository
	refundRepo     ports.RefundRepository
	withdrawalRepo ports.WithdrawalRepository
	metrics        *metrics.Metrics
	log            zerolog.Logger
}

// NewValidationService creates a new ValidationServiceImpl.
func NewValidationService(
	ledgerRepo ports.LedgerRepository,
	walletRepo ports.WalletRepository,
	paymentRepo ports.PaymentRepository,
	refundRepo ports.RefundRepository,
	withdrawalRepo ports.WithdrawalRepository,
	m *metrics.Metrics,
	log zerolog.Logger,
) *ValidationServiceImpl {
	return &ValidationServiceImpl{
		ledgerRepo:     ledgerRepo,
		walletRepo:     walletRepo,
		paymentRepo:    paymentRepo,
		refundRepo:     refundRepo,
		withdrawalRepo: withdrawalRepo,
		metrics:        m,
		log:            log,
	}
}

// Run executes one reconciliation pass over the window: per-transaction
// zero-sum, orphaned entry references, lifecycle records missing their
// entry sets, fee integrity, and the ledger-derived solvency summary.
func (s *ValidationServiceImpl) Run(ctx context.Context, window ports.EntryWindow) (*domain.ValidationReport, error) {
	entries, err := s.ledgerRepo.ListInWindow(ctx, window)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list entries: %w", err))
	}

	report := &domain.ValidationReport{
		WindowStart:   window.From,
		WindowEnd:     window.To,
		GeneratedAt:   time.Now().UTC(),
		EntriesViewed: len(entries),
		Violations:    []domain.Violation{},
	}

	groups := groupByTransaction(entries)
	s.checkZeroSum(groups, report)
	if err := s.checkOrphans(ctx, entries, report); err != nil {
		return nil, err
	}
	if err := s.checkMissingEntries(ctx, window, groups, report); err != nil {
		return nil, err
	}
	if err := s.checkFeeIntegrity(ctx, window, groups, report); err != nil {
		return nil, err
	}
	if err := s.summarizeWallets(ctx, report); err != nil {
		return nil, err
	}

	s.metrics.ValidationRuns.Inc()
	for _, v := range report.Violations {
		s.metrics.ValidationViolations.WithLabelValues(string(v.Kind)).Inc()
	}

	s.log.Info().
		Int("entries", report.EntriesViewed).
		Int("violations", len(report.Violations)).
		Time("from", window.From).
		Time("to", window.To).
		Msg("reconciliation run completed")

	return report, nil
}

func groupByTransaction(entries []domain.LedgerEntry) map[string][]domain.LedgerEntry {
	groups := make(map[string][]domain.LedgerEntry)
	for _, e := range entries {
		groups[e.TransactionID] = append(groups[e.TransactionID], e)
	}
	return groups
}

// checkZeroSum verifies every transaction group in the window sums to
// exactly zero.
func (s *ValidationServiceImpl) checkZeroSum(groups map[string][]domain.LedgerEntry, report *domain.ValidationReport) {
	for txID, group := range groups {
		sum := domain.SumEntries(group)
		if !sum.IsZero() {
			report.Violations = append(report.Violations, domain.Violation{
				Kind:          domain.ViolationZeroSum,
				TransactionID: txID,
				Detail:        fmt.Sprintf("entries for %s sum to %s, want 0", txID, sum),
			})
		}
	}
}

// checkOrphans flags entries referencing payment, refund or withdrawal
// records that do not exist.
func (s *ValidationServiceImpl) checkOrphans(ctx context.Context, entries []domain.LedgerEntry, report *domain.ValidationReport) error {
	paymentIDs := map[uuid.UUID]bool{}
	refundIDs := map[uuid.UUID]bool{}
	withdrawalIDs := map[uuid.UUID]bool{}
	for _, e := range entries {
		if e.PaymentID != nil {
			paymentIDs[*e.PaymentID] = true
		}
		if e.RefundID != nil {
			refundIDs[*e.RefundID] = true
		}
		if e.WithdrawalID != nil {
			withdrawalIDs[*e.WithdrawalID] = true
		}
	}

	existingPayments, err := s.paymentRepo.ExistingIDs(ctx, keys(paymentIDs))
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("check payment ids: %w", err))
	}
	existingRefunds, err := s.refundRepo.ExistingIDs(ctx, keys(refundIDs))
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("check refund ids: %w", err))
	}
	existingWithdrawals, err := s.withdrawalRepo.ExistingIDs(ctx, keys(withdrawalIDs))
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("check withdrawal ids: %w", err))
	}

	for _, e := range entries {
		entry := e
		if e.PaymentID != nil && !existingPayments[*e.PaymentID] {
			report.Violations = append(report.Violations, domain.Violation{
				Kind:          domain.ViolationOrphanedEntry,
				TransactionID: e.TransactionID,
				EntryID:       &entry.ID,
				RecordID:      e.PaymentID,
				Detail:        fmt.Sprintf("entry %s references missing payment %s", e.ID, *e.PaymentID),
			})
		}
		if e.RefundID != nil && !existingRefunds[*e.RefundID] {
			report.Violations = append(report.Violations, domain.Violation{
				Kind:          domain.ViolationOrphanedEntry,
				TransactionID: e.TransactionID,
				EntryID:       &entry.ID,
				RecordID:      e.RefundID,
				Detail:        fmt.Sprintf("entry %s references missing refund %s", e.ID, *e.RefundID),
			})
		}
		if e.WithdrawalID != nil && !existingWithdrawals[*e.WithdrawalID] {
			report.Violations = append(report.Violations, domain.Violation{
				Kind:          domain.ViolationOrphanedEntry,
				TransactionID: e.TransactionID,
				EntryID:       &entry.ID,
				RecordID:      e.WithdrawalID,
				Detail:        fmt.Sprintf("entry %s references missing withdrawal %s", e.ID, *e.WithdrawalID),
			})
		}
	}
	return nil
}

// checkMissingEntries flags settled lifecycle records whose entry sets are
// absent from the ledger entirely. Records settled near the window edges
// are checked against the full ledger, not just the window slice, to
// avoid false positives.
func (s *ValidationServiceImpl) checkMissingEntries(ctx context.Context, window ports.EntryWindow, groups map[string][]domain.LedgerEntry, report *domain.ValidationReport) error {
	capturedStates := []domain.PaymentState{domain.PaymentStateCaptured, domain.PaymentStateRefunded}
	for _, state := range capturedStates {
		payments, err := s.paymentRepo.ListByStateInWindow(ctx, state, window)
		if err != nil {
			return apperror.ErrDatabaseError(fmt.Errorf("list payments: %w", err))
		}
		for _, p := range payments {
			payment := p
			txID := domain.PaymentTransactionID(p.ID)
			if err := s.requireEntries(ctx, groups, txID, report, &payment.ID,
				fmt.Sprintf("payment %s is %s but has no ledger entries", p.ID, p.State)); err != nil {
				return err
			}
		}
	}

	refunds, err := s.refundRepo.ListByStatusInWindow(ctx, domain.RefundStatusCompleted, window)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("list refunds: %w", err))
	}
	for _, r := range refunds {
		refund := r
		txID := domain.RefundTransactionID(r.ID)
		if err := s.requireEntries(ctx, groups, txID, report, &refund.ID,
			fmt.Sprintf("refund %s is COMPLETED but has no ledger entries", r.ID)); err != nil {
			return err
		}
	}

	withdrawals, err := s.withdrawalRepo.ListByStateInWindow(ctx, domain.WithdrawalStateCompleted, window)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("list withdrawals: %w", err))
	}
	for _, w := range withdrawals {
		withdrawal := w
		txID := domain.WithdrawalTransactionID(w.ID)
		if err := s.requireEntries(ctx, groups, txID, report, &withdrawal.ID,
			fmt.Sprintf("withdrawal %s is COMPLETED but has no ledger entries", w.ID)); err != nil {
			return err
		}
	}
	return nil
}

func (s *ValidationServiceImpl) requireEntries(ctx context.Context, groups map[string][]domain.LedgerEntry, txID string, report *domain.ValidationReport, recordID *uuid.UUID, detail string) error {
	if len(groups[txID]) > 0 {
		return nil
	}
	existing, err := s.ledgerRepo.GetByTransaction(ctx, txID)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("get entries for %s: %w", txID, err))
	}
	if len(existing) == 0 {
		report.Violations = append(report.Violations, domain.Violation{
			Kind:          domain.ViolationMissingEntry,
			TransactionID: txID,
			RecordID:      recordID,
			Detail:        detail,
		})
	}
	return nil
}

// checkFeeIntegrity verifies that the frozen fee figures agree with the
// ledger: a capture's fee entries total the payment's stored fee, and a
// completed withdrawal satisfies net = requested - fee exactly.
func (s *ValidationServiceImpl) checkFeeIntegrity(ctx context.Context, window ports.EntryWindow, groups map[string][]domain.LedgerEntry, report *domain.ValidationReport) error {
	payments, err := s.paymentRepo.ListByStateInWindow(ctx, domain.PaymentStateCaptured, window)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("list payments: %w", err))
	}
	for _, p := range payments {
		payment := p
		group := groups[domain.PaymentTransactionID(p.ID)]
		if len(group) == 0 {
			continue // missing entries reported separately
		}
		feeSum := decimal.Zero
		for _, e := range group {
			if e.Type == domain.EntryTypePlatformFeeCredit {
				feeSum = feeSum.Add(e.Amount)
			}
		}
		if !feeSum.Equal(p.PlatformFee) {
			report.Violations = append(report.Violations, domain.Violation{
				Kind:          domain.ViolationFeeIntegrity,
				TransactionID: domain.PaymentTransactionID(p.ID),
				RecordID:      &payment.ID,
				Detail:        fmt.Sprintf("payment %s fee entries total %s, stored fee %s", p.ID, feeSum, p.PlatformFee),
			})
		}
	}

	withdrawals, err := s.withdrawalRepo.ListByStateInWindow(ctx, domain.WithdrawalStateCompleted, window)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("list withdrawals: %w", err))
	}
	for _, w := range withdrawals {
		withdrawal := w
		if !w.FeeIntegrityHolds() {
			report.Violations = append(report.Violations, domain.Violation{
				Kind:          domain.ViolationFeeIntegrity,
				TransactionID: domain.WithdrawalTransactionID(w.ID),
				RecordID:      &withdrawal.ID,
				Detail:        fmt.Sprintf("withdrawal %s: net %s != requested %s - fee %s", w.ID, w.Net, w.Requested, w.Fee),
			})
		}
	}
	return nil
}

// summarizeWallets derives the solvency figures: total user liability and
// per-wallet platform balances, all straight from the ledger.
func (s *ValidationServiceImpl) summarizeWallets(ctx context.Context, report *domain.ValidationReport) error {
	// Liability counts active user wallets only. Frozen balances are
	// excluded until the wallet is unfrozen.
	liability, err := s.ledgerRepo.TotalBalanceByKind(ctx, domain.WalletKindUser, domain.WalletStatusActive)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("sum user balances: %w", err))
	}

	balances := map[string]decimal.Decimal{}
	for _, kind := range []domain.WalletKind{domain.WalletKindPlatform, domain.WalletKindEscrow} {
		wallets, err := s.walletRepo.ListByKind(ctx, kind)
		if err != nil {
			return apperror.ErrDatabaseError(fmt.Errorf("list %s wallets: %w", kind, err))
		}
		for _, w := range wallets {
			balance, err := s.ledgerRepo.SumForWallet(ctx, w.ID)
			if err != nil {
				return apperror.ErrDatabaseError(fmt.Errorf("sum wallet %s: %w", w.Code, err))
			}
			balances[w.Code] = balance
		}
	}

	report.Wallets = domain.WalletSummary{
		TotalUserLiability: liability,
		PlatformBalances:   balances,
	}
	return nil
}

func keys(m map[uuid.UUID]bool) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
