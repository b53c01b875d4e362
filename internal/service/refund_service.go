package service

import (
	"context"
	"encoding/json"
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

// RefundServiceImpl implements ports.RefundService.
type RefundServiceImpl struct {
	refundRepo   ports.RefundRepository
	paymentRepo  ports.PaymentRepository
	walletRepo   ports.WalletRepository
	ledgerRepo   ports.LedgerRepository
	idempCache   ports.IdempotencyCache
	transactor   ports.DBTransactor
	metrics      *metrics.Metrics
	platformCode string
	exponent     int32
	cacheTTL     time.Duration
	log          zerolog.Logger
}

// NewRefundService creates a new RefundServiceImpl.
func NewRefundService(
	refundRepo ports.RefundRepository,
	paymentRepo ports.PaymentRepository,
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	m *metrics.Metrics,
	platformCode string,
	exponent int32,
	cacheTTL time.Duration,
	log zerolog.Logger,
) *RefundServiceImpl {
	return &RefundServiceImpl{
		refundRepo:   refundRepo,
		paymentRepo:  paymentRepo,
		walletRepo:   walletRepo,
		ledgerRepo:   ledgerRepo,
		idempCache:   idempCache,
		transactor:   transactor,
		metrics:      m,
		platformCode: platformCode,
		exponent:     exponent,
		cacheTTL:     cacheTTL,
		log:          log,
	}
}

// Initiate records a PENDING refund request against a captured payment.
// The bound check here is advisory; PENDING requests reserve nothing.
// The binding check happens again under lock at approval.
func (s *RefundServiceImpl) Initiate(ctx context.Context, req ports.InitiateRefundRequest) (*domain.Refund, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperror.ErrInvalidAmount("refund amount must be positive")
	}
	if !domain.HasMinorUnitPrecision(req.Amount, s.exponent) {
		return nil, apperror.ErrInvalidAmount(
			fmt.Sprintf("amount %s exceeds minor-unit precision %d", req.Amount.String(), s.exponent))
	}

	payment, err := s.paymentRepo.GetByID(ctx, req.PaymentID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	if !payment.IsRefundable() {
		return nil, apperror.ErrInvalidStateTransition("payment", string(payment.State), "REFUND")
	}

	reserved, err := s.refundRepo.SumAmountsByStatus(ctx, payment.ID, domain.ActiveRefundStatuses)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("sum active refunds: %w", err))
	}
	if reserved.Add(req.Amount).GreaterThan(payment.Amount) {
		return nil, apperror.ErrRefundExceedsPayment()
	}

	refund := &domain.Refund{
		ID:                uuid.New(),
		PaymentID:         payment.ID,
		Amount:            req.Amount,
		Reason:            req.Reason,
		RefundPlatformFee: req.RefundPlatformFee,
		IssuerWalletID:    payment.PayeeWalletID,
		RecipientWalletID: payment.PayerWalletID,
		RequestedBy:       req.RequestedBy,
		Status:            domain.RefundStatusPending,
		RequestedAt:       time.Now().UTC(),
	}
	if err := s.refundRepo.Create(ctx, refund); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create refund: %w", err))
	}

	s.log.Info().
		Str("refund_id", refund.ID.String()).
		Str("payment_id", payment.ID.String()).
		Str("amount", refund.Amount.String()).
		Msg("refund requested")

	return refund, nil
}

// Approve moves a PENDING refund to APPROVED. Approval is the reserving
// step: the aggregate bound is re-checked with the payment row locked so
// two concurrent approvals cannot jointly exceed the payment amount.
func (s *RefundServiceImpl) Approve(ctx context.Context, refundID uuid.UUID, approvedBy string) (*domain.Refund, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	refund, err := s.refundRepo.GetByIDForUpdate(ctx, dbTx, refundID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock refund: %w", err))
	}
	if refund == nil {
		return nil, apperror.ErrNotFound("refund")
	}
	if !refund.CanDecide() {
		return nil, apperror.ErrInvalidStateTransition("refund", string(refund.Status), string(domain.RefundStatusApproved))
	}

	payment, err := s.paymentRepo.GetByIDForUpdate(ctx, dbTx, refund.PaymentID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	if !payment.IsRefundable() {
		return nil, apperror.ErrInvalidStateTransition("payment", string(payment.State), "REFUND")
	}

	reserved, err := s.refundRepo.SumAmountsByStatusTx(ctx, dbTx, payment.ID, domain.ActiveRefundStatuses)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("sum active refunds: %w", err))
	}
	if reserved.Add(refund.Amount).GreaterThan(payment.Amount) {
		return nil, apperror.ErrRefundExceedsPayment()
	}

	now := time.Now().UTC()
	refund.Status = domain.RefundStatusApproved
	refund.DecidedBy = &approvedBy
	refund.DecidedAt = &now
	if err := s.refundRepo.Update(ctx, dbTx, refund); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update refund: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("refund_id", refund.ID.String()).
		Str("approved_by", approvedBy).
		Msg("refund approved")

	return refund, nil
}

// Reject moves a PENDING refund to REJECTED. Terminal; nothing moved.
func (s *RefundServiceImpl) Reject(ctx context.Context, refundID uuid.UUID, rejectedBy string, reason string) (*domain.Refund, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	refund, err := s.refundRepo.GetByIDForUpdate(ctx, dbTx, refundID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock refund: %w", err))
	}
	if refund == nil {
		return nil, apperror.ErrNotFound("refund")
	}
	if !refund.CanDecide() {
		return nil, apperror.ErrInvalidStateTransition("refund", string(refund.Status), string(domain.RefundStatusRejected))
	}

	now := time.Now().UTC()
	refund.Status = domain.RefundStatusRejected
	refund.DecidedBy = &rejectedBy
	refund.DecisionNote = &reason
	refund.DecidedAt = &now
	if err := s.refundRepo.Update(ctx, dbTx, refund); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update refund: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("refund_id", refund.ID.String()).
		Str("rejected_by", rejectedBy).
		Msg("refund rejected")

	return refund, nil
}

// Process moves the money back for an APPROVED refund. Everything happens
// in one database transaction: the bound is re-validated, issuer and
// platform balances are checked, the entry set is written, and the refund
// flips to COMPLETED. If the money cannot move the refund lands in
// terminal FAILED after rollback.
func (s *RefundServiceImpl) Process(ctx context.Context, refundID uuid.UUID) (*domain.Refund, error) {
	cacheKey := "refund-process:" + refundID.String()

	cached, err := s.idempCache.Get(ctx, cacheKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", cacheKey).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		return unmarshalCachedRefund(cached)
	}

	platformWallet, err := s.walletRepo.GetByCode(ctx, s.platformCode)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get platform wallet: %w", err))
	}
	if platformWallet == nil {
		return nil, apperror.ErrNotFound("platform wallet")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	refund, err := s.refundRepo.GetByIDForUpdate(ctx, dbTx, refundID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock refund: %w", err))
	}
	if refund == nil {
		return nil, apperror.ErrNotFound("refund")
	}

	transactionID := domain.RefundTransactionID(refund.ID)

	// Replay: a COMPLETED refund with committed entries is returned as-is.
	if refund.Status == domain.RefundStatusCompleted {
		existing, err := s.ledgerRepo.GetByTransactionForUpdate(ctx, dbTx, transactionID)
		if err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("check existing entries: %w", err))
		}
		if len(existing) > 0 {
			return refund, nil
		}
	}
	if !refund.CanProcess() {
		return nil, apperror.ErrInvalidStateTransition("refund", string(refund.Status), string(domain.RefundStatusProcessing))
	}

	payment, err := s.paymentRepo.GetByIDForUpdate(ctx, dbTx, refund.PaymentID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("payment")
	}

	// Re-validate the aggregate bound under lock. The refund itself is
	// APPROVED and therefore already included in the reserved sum.
	reserved, err := s.refundRepo.SumAmountsByStatusTx(ctx, dbTx, payment.ID, domain.ActiveRefundStatuses)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("sum active refunds: %w", err))
	}
	if reserved.GreaterThan(payment.Amount) {
		return nil, apperror.ErrRefundExceedsPayment()
	}

	feeShare := decimal.Zero
	if refund.RefundPlatformFee {
		feeShare = payment.ProportionalFeeShare(refund.Amount, s.exponent)
	}
	issuerShare := refund.Amount.Sub(feeShare)

	entries := s.buildRefundEntries(refund, payment, platformWallet.ID, issuerShare, feeShare)
	if err := validateEntrySet(transactionID, entries, s.exponent); err != nil {
		return nil, err
	}
	if err := lockEntryWallets(ctx, dbTx, s.walletRepo, entries); err != nil {
		return nil, err
	}

	// Funds checks inside the tx: the issuer covers its share and the
	// platform covers the fee claw-back. A shortfall rolls back and
	// leaves the refund APPROVED, so Process can be retried once the
	// short wallet is funded.
	if issuerShare.IsPositive() {
		balance, err := s.ledgerRepo.SumForWalletTx(ctx, dbTx, refund.IssuerWalletID)
		if err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("sum issuer balance: %w", err))
		}
		if balance.LessThan(issuerShare) {
			s.log.Warn().
				Str("refund_id", refund.ID.String()).
				Str("wallet_id", refund.IssuerWalletID.String()).
				Str("balance", balance.String()).
				Str("required", issuerShare.String()).
				Msg("refund deferred, issuer balance below refund share")
			return nil, apperror.ErrInsufficientBalance(refund.IssuerWalletID.String())
		}
	}
	if feeShare.IsPositive() {
		balance, err := s.ledgerRepo.SumForWalletTx(ctx, dbTx, platformWallet.ID)
		if err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("sum platform balance: %w", err))
		}
		if balance.LessThan(feeShare) {
			s.log.Warn().
				Str("refund_id", refund.ID.String()).
				Str("wallet_id", platformWallet.ID.String()).
				Str("balance", balance.String()).
				Str("required", feeShare.String()).
				Msg("refund deferred, platform balance below fee claw-back")
			return nil, apperror.ErrInsufficientBalance(platformWallet.ID.String())
		}
	}

	refund.Status = domain.RefundStatusProcessing
	if err := s.refundRepo.Update(ctx, dbTx, refund); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update refund: %w", err))
	}

	now := time.Now().UTC()
	rows := materializeEntries(transactionID, nil, entries, now)
	if err := s.ledgerRepo.InsertEntries(ctx, dbTx, rows); err != nil {
		// Release the row locks before the FAILED update runs on the
		// pool connection, or it would wait on our own lock.
		_ = dbTx.Rollback(ctx)
		return nil, s.failRefund(ctx, refund,
			fmt.Sprintf("ledger submission failed: %v", err),
			apperror.ErrDatabaseError(fmt.Errorf("insert entries: %w", err)))
	}

	refund.Status = domain.RefundStatusCompleted
	refund.CompletedAt = &now
	if err := s.refundRepo.Update(ctx, dbTx, refund); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update refund: %w", err))
	}

	// A fully refunded payment moves to its terminal REFUNDED state.
	completed, err := s.refundRepo.SumAmountsByStatusTx(ctx, dbTx, payment.ID, []domain.RefundStatus{domain.RefundStatusCompleted})
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("sum completed refunds: %w", err))
	}
	if completed.Equal(payment.Amount) {
		payment.State = domain.PaymentStateRefunded
		if err := s.paymentRepo.Update(ctx, dbTx, payment); err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("update payment: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.metrics.RefundsCompleted.Inc()
	s.metrics.EntriesRecorded.Add(float64(len(rows)))

	if respJSON, err := json.Marshal(refund); err == nil {
		if err := s.idempCache.Set(ctx, cacheKey, respJSON, s.cacheTTL); err != nil {
			s.log.Warn().Err(err).Str("key", cacheKey).Msg("failed to cache refund in redis")
		}
	}

	s.log.Info().
		Str("refund_id", refund.ID.String()).
		Str("payment_id", payment.ID.String()).
		Str("amount", refund.Amount.String()).
		Str("fee_share", feeShare.String()).
		Msg("refund processed")

	return refund, nil
}

// Get fetches a refund by id.
func (s *RefundServiceImpl) Get(ctx context.Context, refundID uuid.UUID) (*domain.Refund, error) {
	refund, err := s.refundRepo.GetByID(ctx, refundID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get refund: %w", err))
	}
	if refund == nil {
		return nil, apperror.ErrNotFound("refund")
	}
	return refund, nil
}

// CheckRefundable reports whether and how much of a payment can still be
// refunded, counting approved, processing and completed refunds against
// the bound.
func (s *RefundServiceImpl) CheckRefundable(ctx context.Context, paymentID uuid.UUID) (*ports.Refundability, error) {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	if !payment.IsRefundable() {
		return &ports.Refundability{
			Refundable: false,
			Remaining:  decimal.Zero,
			Reason:     fmt.Sprintf("payment state is %s", payment.State),
		}, nil
	}

	reserved, err := s.refundRepo.SumAmountsByStatus(ctx, paymentID, domain.ActiveRefundStatuses)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("sum active refunds: %w", err))
	}
	remaining := payment.Amount.Sub(reserved)
	if remaining.LessThanOrEqual(decimal.Zero) {
		return &ports.Refundability{
			Refundable: false,
			Remaining:  decimal.Zero,
			Reason:     "refundable amount exhausted",
		}, nil
	}
	return &ports.Refundability{Refundable: true, Remaining: remaining}, nil
}

// TotalRefunded returns the sum of COMPLETED refund amounts for a payment.
func (s *RefundServiceImpl) TotalRefunded(ctx context.Context, paymentID uuid.UUID) (decimal.Decimal, error) {
	return s.refundRepo.SumAmountsByStatus(ctx, paymentID, []domain.RefundStatus{domain.RefundStatusCompleted})
}

// buildRefundEntries assembles the compensating entry set. The buyer gets
// the full amount back; the issuer funds its share and the platform gives
// back its proportional fee slice when claw-back is requested.
func (s *RefundServiceImpl) buildRefundEntries(refund *domain.Refund, payment *domain.Payment, platformWalletID uuid.UUID, issuerShare, feeShare decimal.Decimal) []ports.EntryInput {
	desc := fmt.Sprintf("refund for order %s", payment.OrderID)
	entries := make([]ports.EntryInput, 0, 3)
	if issuerShare.IsPositive() {
		entries = append(entries, ports.EntryInput{
			WalletID:    refund.IssuerWalletID,
			Amount:      issuerShare.Neg(),
			Type:        domain.EntryTypeRefundDebit,
			Description: desc,
			PaymentID:   &refund.PaymentID,
			RefundID:    &refund.ID,
			OrderID:     &payment.OrderID,
		})
	}
	if feeShare.IsPositive() {
		entries = append(entries, ports.EntryInput{
			WalletID:    platformWalletID,
			Amount:      feeShare.Neg(),
			Type:        domain.EntryTypePlatformFeeDebit,
			Description: fmt.Sprintf("platform fee claw-back for order %s", payment.OrderID),
			PaymentID:   &refund.PaymentID,
			RefundID:    &refund.ID,
			OrderID:     &payment.OrderID,
		})
	}
	entries = append(entries, ports.EntryInput{
		WalletID:    refund.RecipientWalletID,
		Amount:      refund.Amount,
		Type:        domain.EntryTypeRefundCredit,
		Description: desc,
		PaymentID:   &refund.PaymentID,
		RefundID:    &refund.ID,
		OrderID:     &payment.OrderID,
	})
	return entries
}

// failRefund marks the refund terminal FAILED outside the rolled-back
// transaction and returns the submission error. Only ledger-submission
// failures land here; funds shortfalls leave the refund APPROVED.
func (s *RefundServiceImpl) failRefund(ctx context.Context, refund *domain.Refund, reason string, cause error) error {
	if err := s.refundRepo.UpdateStatus(ctx, refund.ID, domain.RefundStatusFailed, &reason); err != nil {
		s.log.Error().Err(err).
			Str("refund_id", refund.ID.String()).
			Msg("failed to mark refund FAILED")
	}
	s.metrics.RefundsFailed.Inc()

	s.log.Error().
		Str("refund_id", refund.ID.String()).
		Str("reason", reason).
		Msg("refund failed")

	return cause
}

func unmarshalCachedRefund(data []byte) (*domain.Refund, error) {
	refund := &domain.Refund{}
	if err := json.Unmarshal(data, refund); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached refund: %w", err))
	}
	return refund, nil
}
