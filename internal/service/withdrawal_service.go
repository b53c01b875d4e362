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

// WithdrawalServiceImpl implements ports.WithdrawalService.
type WithdrawalServiceImpl struct {
	withdrawalRepo ports.WithdrawalRepository
	walletRepo     ports.WalletRepository
	ledgerRepo     ports.LedgerRepository
	transactor     ports.DBTransactor
	metrics        *metrics.Metrics
	feePercent     decimal.Decimal
	platformCode   string
	escrowCode     string
	exponent       int32
	log            zerolog.Logger
}

// NewWithdrawalService creates a new WithdrawalServiceImpl.
func NewWithdrawalService(
	withdrawalRepo ports.WithdrawalRepository,
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	transactor ports.DBTransactor,
	m *metrics.Metrics,
	feePercent decimal.Decimal,
	platformCode string,
	escrowCode string,
	exponent int32,
	log zerolog.Logger,
) *WithdrawalServiceImpl {
	return &WithdrawalServiceImpl{
		withdrawalRepo: withdrawalRepo,
		walletRepo:     walletRepo,
		ledgerRepo:     ledgerRepo,
		transactor:     transactor,
		metrics:        m,
		feePercent:     feePercent,
		platformCode:   platformCode,
		escrowCode:     escrowCode,
		exponent:       exponent,
		log:            log,
	}
}

// Request records a PENDING payout. The fee is computed and frozen here so
// a config change cannot alter an in-flight withdrawal. The balance check
// at request time is advisory; completion re-checks under lock.
func (s *WithdrawalServiceImpl) Request(ctx context.Context, req ports.RequestWithdrawalRequest) (*domain.Withdrawal, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperror.ErrInvalidAmount("withdrawal amount must be positive")
	}
	if !domain.HasMinorUnitPrecision(req.Amount, s.exponent) {
		return nil, apperror.ErrInvalidAmount(
			fmt.Sprintf("amount %s exceeds minor-unit precision %d", req.Amount.String(), s.exponent))
	}
	if req.Destination == "" {
		return nil, apperror.Validation("payout destination is required")
	}

	wallet, err := s.walletRepo.GetByID(ctx, req.WalletID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	if !wallet.IsActive() {
		return nil, apperror.ErrWalletFrozen(wallet.ID.String())
	}
	if wallet.Kind != domain.WalletKindUser {
		return nil, apperror.Validation("withdrawals are only available for user wallets")
	}

	balance, err := s.ledgerRepo.SumForWallet(ctx, req.WalletID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("sum wallet balance: %w", err))
	}
	if balance.LessThan(req.Amount) {
		return nil, apperror.ErrInsufficientBalance(req.WalletID.String())
	}

	fee := req.Amount.Mul(s.feePercent).Div(decimal.NewFromInt(100)).Round(s.exponent)
	net := req.Amount.Sub(fee)

	withdrawal := &domain.Withdrawal{
		ID:          uuid.New(),
		WalletID:    req.WalletID,
		Requested:   req.Amount,
		Fee:         fee,
		Net:         net,
		Destination: req.Destination,
		State:       domain.WithdrawalStatePending,
		RequestedBy: req.RequestedBy,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.withdrawalRepo.Create(ctx, withdrawal); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create withdrawal: %w", err))
	}

	s.log.Info().
		Str("withdrawal_id", withdrawal.ID.String()).
		Str("wallet_id", withdrawal.WalletID.String()).
		Str("requested", withdrawal.Requested.String()).
		Str("fee", withdrawal.Fee.String()).
		Msg("withdrawal requested")

	return withdrawal, nil
}

// Complete settles a PENDING withdrawal: in one transaction the balance is
// re-checked under lock and the three-entry set is written (wallet debit
// for the requested amount, platform fee credit, payout-clearing credit
// for the net). A retry after commit finds the entries and returns as-is.
func (s *WithdrawalServiceImpl) Complete(ctx context.Context, withdrawalID uuid.UUID) (*domain.Withdrawal, error) {
	platformWallet, err := s.walletRepo.GetByCode(ctx, s.platformCode)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get platform wallet: %w", err))
	}
	if platformWallet == nil {
		return nil, apperror.ErrNotFound("platform wallet")
	}
	escrowWallet, err := s.walletRepo.GetByCode(ctx, s.escrowCode)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get escrow wallet: %w", err))
	}
	if escrowWallet == nil {
		return nil, apperror.ErrNotFound("escrow wallet")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	withdrawal, err := s.withdrawalRepo.GetByIDForUpdate(ctx, dbTx, withdrawalID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock withdrawal: %w", err))
	}
	if withdrawal == nil {
		return nil, apperror.ErrNotFound("withdrawal")
	}

	transactionID := domain.WithdrawalTransactionID(withdrawal.ID)

	// Replay: a COMPLETED withdrawal with committed entries is final.
	if withdrawal.State == domain.WithdrawalStateCompleted {
		existing, err := s.ledgerRepo.GetByTransactionForUpdate(ctx, dbTx, transactionID)
		if err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("check existing entries: %w", err))
		}
		if len(existing) > 0 {
			return withdrawal, nil
		}
	}
	if !withdrawal.CanComplete() {
		return nil, apperror.ErrInvalidStateTransition("withdrawal", string(withdrawal.State), string(domain.WithdrawalStateCompleted))
	}
	if !withdrawal.FeeIntegrityHolds() {
		return nil, apperror.InternalError(fmt.Errorf("withdrawal %s fee integrity broken: net %s != requested %s - fee %s",
			withdrawal.ID, withdrawal.Net, withdrawal.Requested, withdrawal.Fee))
	}

	desc := fmt.Sprintf("payout to %s", withdrawal.Destination)
	entries := []ports.EntryInput{
		{
			WalletID:     withdrawal.WalletID,
			Amount:       withdrawal.Requested.Neg(),
			Type:         domain.EntryTypeWithdrawalDebit,
			Description:  desc,
			WithdrawalID: &withdrawal.ID,
		},
		{
			WalletID:     escrowWallet.ID,
			Amount:       withdrawal.Net,
			Type:         domain.EntryTypeWithdrawalNet,
			Description:  desc,
			WithdrawalID: &withdrawal.ID,
		},
	}
	if withdrawal.Fee.IsPositive() {
		entries = append(entries, ports.EntryInput{
			WalletID:     platformWallet.ID,
			Amount:       withdrawal.Fee,
			Type:         domain.EntryTypeWithdrawalFee,
			Description:  fmt.Sprintf("withdrawal fee for %s", withdrawal.ID),
			WithdrawalID: &withdrawal.ID,
		})
	}

	if err := validateEntrySet(transactionID, entries, s.exponent); err != nil {
		return nil, err
	}
	if err := lockEntryWallets(ctx, dbTx, s.walletRepo, entries); err != nil {
		return nil, err
	}

	// Funds re-check under lock: a concurrent spend since request time
	// must not let the wallet go negative.
	balance, err := s.ledgerRepo.SumForWalletTx(ctx, dbTx, withdrawal.WalletID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("sum wallet balance: %w", err))
	}
	if balance.LessThan(withdrawal.Requested) {
		_ = dbTx.Rollback(ctx)
		return nil, s.failWithdrawal(ctx, withdrawal,
			fmt.Sprintf("wallet balance %s below requested %s", balance, withdrawal.Requested))
	}

	now := time.Now().UTC()
	rows := materializeEntries(transactionID, nil, entries, now)
	if err := s.ledgerRepo.InsertEntries(ctx, dbTx, rows); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("insert entries: %w", err))
	}

	withdrawal.State = domain.WithdrawalStateCompleted
	withdrawal.CompletedAt = &now
	if err := s.withdrawalRepo.Update(ctx, dbTx, withdrawal); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update withdrawal: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.metrics.WithdrawalsCompleted.Inc()
	s.metrics.EntriesRecorded.Add(float64(len(rows)))

	s.log.Info().
		Str("withdrawal_id", withdrawal.ID.String()).
		Str("requested", withdrawal.Requested.String()).
		Str("net", withdrawal.Net.String()).
		Msg("withdrawal completed")

	return withdrawal, nil
}

// MarkFailed flags a PENDING withdrawal as FAILED (payout bounced,
// destination invalid, operator abort). Nothing moved, nothing to reverse.
func (s *WithdrawalServiceImpl) MarkFailed(ctx context.Context, withdrawalID uuid.UUID, reason string) (*domain.Withdrawal, error) {
	withdrawal, err := s.withdrawalRepo.GetByID(ctx, withdrawalID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get withdrawal: %w", err))
	}
	if withdrawal == nil {
		return nil, apperror.ErrNotFound("withdrawal")
	}
	if !withdrawal.CanFail() {
		return nil, apperror.ErrInvalidStateTransition("withdrawal", string(withdrawal.State), string(domain.WithdrawalStateFailed))
	}

	if err := s.withdrawalRepo.UpdateState(ctx, withdrawalID, domain.WithdrawalStateFailed, &reason); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update withdrawal state: %w", err))
	}
	withdrawal.State = domain.WithdrawalStateFailed
	withdrawal.FailureReason = &reason

	s.log.Info().
		Str("withdrawal_id", withdrawalID.String()).
		Str("reason", reason).
		Msg("withdrawal marked failed")

	return withdrawal, nil
}

// Get fetches a withdrawal by id.
func (s *WithdrawalServiceImpl) Get(ctx context.Context, withdrawalID uuid.UUID) (*domain.Withdrawal, error) {
	withdrawal, err := s.withdrawalRepo.GetByID(ctx, withdrawalID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get withdrawal: %w", err))
	}
	if withdrawal == nil {
		return nil, apperror.ErrNotFound("withdrawal")
	}
	return withdrawal, nil
}

// failWithdrawal marks the withdrawal terminal FAILED outside the
// rolled-back transaction and returns the business error.
func (s *WithdrawalServiceImpl) failWithdrawal(ctx context.Context, withdrawal *domain.Withdrawal, reason string) error {
	if err := s.withdrawalRepo.UpdateState(ctx, withdrawal.ID, domain.WithdrawalStateFailed, &reason); err != nil {
		s.log.Error().Err(err).
			Str("withdrawal_id", withdrawal.ID.String()).
			Msg("failed to mark withdrawal FAILED")
	}

	s.log.Warn().
		Str("withdrawal_id", withdrawal.ID.String()).
		Str("reason", reason).
		Msg("withdrawal failed")

	return apperror.ErrInsufficientBalance(withdrawal.WalletID.String())
}
