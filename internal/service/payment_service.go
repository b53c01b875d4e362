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

// PaymentServiceImpl implements ports.PaymentService.
type PaymentServiceImpl struct {
	paymentRepo       ports.PaymentRepository
	walletRepo        ports.WalletRepository
	ledgerRepo        ports.LedgerRepository
	idempCache        ports.IdempotencyCache
	transactor        ports.DBTransactor
	metrics           *metrics.Metrics
	defaultFeePercent decimal.Decimal
	platformCode      string
	exponent          int32
	cacheTTL          time.Duration
	log               zerolog.Logger
}

// NewPaymentService creates a new PaymentServiceImpl.
func NewPaymentService(
	paymentRepo ports.PaymentRepository,
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	m *metrics.Metrics,
	defaultFeePercent decimal.Decimal,
	platformCode string,
	exponent int32,
	cacheTTL time.Duration,
	log zerolog.Logger,
) *PaymentServiceImpl {
	return &PaymentServiceImpl{
		paymentRepo:       paymentRepo,
		walletRepo:        walletRepo,
		ledgerRepo:        ledgerRepo,
		idempCache:        idempCache,
		transactor:        transactor,
		metrics:           m,
		defaultFeePercent: defaultFeePercent,
		platformCode:      platformCode,
		exponent:          exponent,
		cacheTTL:          cacheTTL,
		log:               log,
	}
}

// Initiate records a new payment in state INITIATED. Nothing moves yet;
// ledger entries are written only at capture.
func (s *PaymentServiceImpl) Initiate(ctx context.Context, req ports.InitiatePaymentRequest) (*domain.Payment, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperror.ErrInvalidAmount("payment amount must be positive")
	}
	if !domain.HasMinorUnitPrecision(req.Amount, s.exponent) {
		return nil, apperror.ErrInvalidAmount(
			fmt.Sprintf("amount %s exceeds minor-unit precision %d", req.Amount.String(), s.exponent))
	}
	if req.PayerWalletID == req.PayeeWalletID {
		return nil, apperror.Validation("payer and payee wallets must differ")
	}
	if req.OrderID == "" {
		return nil, apperror.Validation("order id is required")
	}

	feePercent := s.defaultFeePercent
	if req.PlatformFeePercent != nil {
		feePercent = *req.PlatformFeePercent
	}
	if feePercent.IsNegative() || feePercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, apperror.Validation("platform fee percent must be within [0, 100]")
	}

	for _, walletID := range []uuid.UUID{req.PayerWalletID, req.PayeeWalletID} {
		wallet, err := s.walletRepo.GetByID(ctx, walletID)
		if err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("get wallet: %w", err))
		}
		if wallet == nil {
			return nil, apperror.ErrNotFound("wallet")
		}
		if !wallet.IsActive() {
			return nil, apperror.ErrWalletFrozen(wallet.ID.String())
		}
	}

	payment := &domain.Payment{
		ID:                 uuid.New(),
		OrderID:            req.OrderID,
		PayerWalletID:      req.PayerWalletID,
		PayeeWalletID:      req.PayeeWalletID,
		Amount:             req.Amount,
		Method:             req.Method,
		PlatformFeePercent: feePercent,
		PlatformFee:        decimal.Zero,
		State:              domain.PaymentStateInitiated,
		InitiatedAt:        time.Now().UTC(),
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create payment: %w", err))
	}

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("order_id", payment.OrderID).
		Str("amount", payment.Amount.String()).
		Msg("payment initiated")

	return payment, nil
}

// Authorize moves an INITIATED payment to AUTHORIZED, recording the
// external gateway reference.
func (s *PaymentServiceImpl) Authorize(ctx context.Context, paymentID uuid.UUID, externalRef string) (*domain.Payment, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	payment, err := s.paymentRepo.GetByIDForUpdate(ctx, dbTx, paymentID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	if !payment.CanAuthorize() {
		return nil, apperror.ErrInvalidStateTransition("payment", string(payment.State), string(domain.PaymentStateAuthorized))
	}

	now := time.Now().UTC()
	payment.State = domain.PaymentStateAuthorized
	payment.ExternalRef = &externalRef
	payment.AuthorizedAt = &now

	if err := s.paymentRepo.Update(ctx, dbTx, payment); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update payment: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("external_ref", externalRef).
		Msg("payment authorized")

	return payment, nil
}

// Capture settles the payment: in one database transaction it writes the
// balanced entry set (buyer debit, seller net credit, platform fee credit)
// and flips the payment to CAPTURED with the fee frozen. A retried capture
// finds the committed entries under the payment's transaction id and
// returns the payment as-is.
func (s *PaymentServiceImpl) Capture(ctx context.Context, paymentID uuid.UUID, externalRef string) (*domain.Payment, error) {
	cacheKey := "capture:" + paymentID.String()

	// Layer 1: Redis fast path for obvious retries.
	cached, err := s.idempCache.Get(ctx, cacheKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", cacheKey).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		return unmarshalCachedPayment(cached)
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

	payment, err := s.paymentRepo.GetByIDForUpdate(ctx, dbTx, paymentID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("payment")
	}

	transactionID := domain.PaymentTransactionID(payment.ID)

	// Layer 2: the committed entry set is the authority on replays.
	if payment.State == domain.PaymentStateCaptured || payment.State == domain.PaymentStateRefunded {
		existing, err := s.ledgerRepo.GetByTransactionForUpdate(ctx, dbTx, transactionID)
		if err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("check existing entries: %w", err))
		}
		if len(existing) > 0 {
			return payment, nil
		}
	}
	if !payment.CanCapture() {
		return nil, apperror.ErrInvalidStateTransition("payment", string(payment.State), string(domain.PaymentStateCaptured))
	}

	fee := payment.ComputePlatformFee(s.exponent)
	net := payment.Amount.Sub(fee)

	// The buyer wallet is gateway-funded at capture time, so its balance
	// is intentionally not checked here; it may go negative pending the
	// external settlement, and reconciliation watches the aggregate.
	desc := fmt.Sprintf("capture of order %s", payment.OrderID)
	entries := []ports.EntryInput{
		{
			WalletID:    payment.PayerWalletID,
			Amount:      payment.Amount.Neg(),
			Type:        domain.EntryTypePaymentDebit,
			Description: desc,
			PaymentID:   &payment.ID,
			OrderID:     &payment.OrderID,
		},
		{
			WalletID:    payment.PayeeWalletID,
			Amount:      net,
			Type:        domain.EntryTypePaymentCredit,
			Description: desc,
			PaymentID:   &payment.ID,
			OrderID:     &payment.OrderID,
		},
	}
	if fee.IsPositive() {
		entries = append(entries, ports.EntryInput{
			WalletID:    platformWallet.ID,
			Amount:      fee,
			Type:        domain.EntryTypePlatformFeeCredit,
			Description: fmt.Sprintf("platform fee for order %s", payment.OrderID),
			PaymentID:   &payment.ID,
			OrderID:     &payment.OrderID,
		})
	}

	if err := validateEntrySet(transactionID, entries, s.exponent); err != nil {
		return nil, err
	}
	if err := lockEntryWallets(ctx, dbTx, s.walletRepo, entries); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rows := materializeEntries(transactionID, nil, entries, now)
	if err := s.ledgerRepo.InsertEntries(ctx, dbTx, rows); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("insert entries: %w", err))
	}

	payment.PlatformFee = fee
	payment.State = domain.PaymentStateCaptured
	payment.ExternalRef = &externalRef
	payment.CapturedAt = &now
	if err := s.paymentRepo.Update(ctx, dbTx, payment); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update payment: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.metrics.PaymentsCaptured.Inc()
	s.metrics.EntriesRecorded.Add(float64(len(rows)))

	// Post-process: cache in Redis (best-effort).
	if respJSON, err := json.Marshal(payment); err == nil {
		if err := s.idempCache.Set(ctx, cacheKey, respJSON, s.cacheTTL); err != nil {
			s.log.Warn().Err(err).Str("key", cacheKey).Msg("failed to cache capture in redis")
		}
	}

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("order_id", payment.OrderID).
		Str("amount", payment.Amount.String()).
		Str("platform_fee", fee.String()).
		Msg("payment captured")

	return payment, nil
}

// MarkFailed flags a not-yet-captured payment as FAILED.
func (s *PaymentServiceImpl) MarkFailed(ctx context.Context, paymentID uuid.UUID, reason string) (*domain.Payment, error) {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	if !payment.CanFail() {
		return nil, apperror.ErrInvalidStateTransition("payment", string(payment.State), string(domain.PaymentStateFailed))
	}

	if err := s.paymentRepo.UpdateState(ctx, paymentID, domain.PaymentStateFailed, &reason); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update payment state: %w", err))
	}
	payment.State = domain.PaymentStateFailed
	payment.FailureReason = &reason

	s.log.Info().
		Str("payment_id", paymentID.String()).
		Str("reason", reason).
		Msg("payment marked failed")

	return payment, nil
}

// Get fetches a payment by id.
func (s *PaymentServiceImpl) Get(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	return payment, nil
}

func unmarshalCachedPayment(data []byte) (*domain.Payment, error) {
	payment := &domain.Payment{}
	if err := json.Unmarshal(data, payment); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached payment: %w", err))
	}
	return payment, nil
}
