package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-settlement/internal/core/domain"
	"marketplace-settlement/internal/core/ports"
	"marketplace-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// WalletServiceImpl implements ports.WalletService. Balances are always
// derived from the ledger; this service never stores or mutates one.
type WalletServiceImpl struct {
	walletRepo ports.WalletRepository
	ledgerRepo ports.LedgerRepository
	log        zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		log:        log,
	}
}

// Provision creates a wallet. Codes are unique; provisioning an existing
// code is rejected rather than silently returning the old wallet.
func (s *WalletServiceImpl) Provision(ctx context.Context, req ports.ProvisionWalletRequest) (*domain.Wallet, error) {
	if req.Code == "" {
		return nil, apperror.Validation("wallet code is required")
	}
	switch req.Kind {
	case domain.WalletKindPlatform, domain.WalletKindUser, domain.WalletKindEscrow:
	default:
		return nil, apperror.Validation(fmt.Sprintf("unknown wallet kind %q", req.Kind))
	}
	if req.Kind == domain.WalletKindUser && req.OwnerUserID == nil {
		return nil, apperror.Validation("user wallets require an owner")
	}

	existing, err := s.walletRepo.GetByCode(ctx, req.Code)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("check wallet code: %w", err))
	}
	if existing != nil {
		return nil, apperror.Validation(fmt.Sprintf("wallet code %q already exists", req.Code))
	}

	now := time.Now().UTC()
	wallet := &domain.Wallet{
		ID:          uuid.New(),
		Code:        req.Code,
		Kind:        req.Kind,
		Status:      domain.WalletStatusActive,
		Currency:    req.Currency,
		OwnerUserID: req.OwnerUserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.walletRepo.Create(ctx, wallet); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create wallet: %w", err))
	}

	s.log.Info().
		Str("wallet_id", wallet.ID.String()).
		Str("code", wallet.Code).
		Str("kind", string(wallet.Kind)).
		Msg("wallet provisioned")

	return wallet, nil
}

// Get fetches a wallet by id.
func (s *WalletServiceImpl) Get(ctx context.Context, walletID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	return wallet, nil
}

// Balance derives the wallet balance as the sum of its ledger entries.
// A wallet with no entries has balance zero.
func (s *WalletServiceImpl) Balance(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return decimal.Zero, apperror.ErrDatabaseError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return decimal.Zero, apperror.ErrNotFound("wallet")
	}
	return s.ledgerRepo.SumForWallet(ctx, walletID)
}

// AssertSufficientBalance fails with InsufficientBalance when the derived
// balance is below amount. This check and a later entry write are not one
// atomic unit; settlement paths re-derive the balance under the row lock
// and treat a late shortfall as a hard failure.
func (s *WalletServiceImpl) AssertSufficientBalance(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) error {
	balance, err := s.Balance(ctx, walletID)
	if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return apperror.ErrInsufficientBalance(walletID.String())
	}
	return nil
}

// SetStatus freezes or unfreezes a wallet. Freezing blocks new
// entry-producing operations; reading balances and history stays open.
func (s *WalletServiceImpl) SetStatus(ctx context.Context, walletID uuid.UUID, status domain.WalletStatus, actor string) (*domain.Wallet, error) {
	switch status {
	case domain.WalletStatusActive, domain.WalletStatusFrozen:
	default:
		return nil, apperror.Validation(fmt.Sprintf("unknown wallet status %q", status))
	}

	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	if wallet.Status == status {
		return wallet, nil
	}

	if err := s.walletRepo.UpdateStatus(ctx, walletID, status); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update wallet status: %w", err))
	}
	wallet.Status = status
	wallet.UpdatedAt = time.Now().UTC()

	s.log.Info().
		Str("wallet_id", walletID.String()).
		Str("status", string(status)).
		Str("actor", actor).
		Msg("wallet status changed")

	return wallet, nil
}
