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
)

// LedgerServiceImpl implements ports.LedgerService. It is the only code
// path that inserts ledger entries; every other service delegates here.
type LedgerServiceImpl struct {
	ledgerRepo ports.LedgerRepository
	walletRepo ports.WalletRepository
	idempRepo  ports.IdempotencyRepository
	transactor ports.DBTransactor
	metrics    *metrics.Metrics
	exponent   int32
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl. exponent is the
// currency's minor-unit exponent; amounts with more fractional digits
// are rejected before anything touches the database.
func NewLedgerService(
	ledgerRepo ports.LedgerRepository,
	walletRepo ports.WalletRepository,
	idempRepo ports.IdempotencyRepository,
	transactor ports.DBTransactor,
	m *metrics.Metrics,
	exponent int32,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		ledgerRepo: ledgerRepo,
		walletRepo: walletRepo,
		idempRepo:  idempRepo,
		transactor: transactor,
		metrics:    m,
		exponent:   exponent,
		log:        log,
	}
}

// Record persists a balanced entry set atomically under transactionID.
// Retried calls with the same transaction id return the already-committed
// set unchanged. A reused idempotency key bound to a different transaction
// id is rejected as a caller bug.
func (s *LedgerServiceImpl) Record(ctx context.Context, transactionID string, idempotencyKey *string, entries []ports.EntryInput) ([]domain.LedgerEntry, error) {
	if err := validateEntrySet(transactionID, entries, s.exponent); err != nil {
		return nil, err
	}

	// Idempotency key check outside the tx is advisory only; the binding
	// is re-created inside the tx where a unique constraint settles races.
	if idempotencyKey != nil {
		rec, err := s.idempRepo.Get(ctx, *idempotencyKey)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("idempotency lookup: %w", err))
		}
		if rec != nil {
			if rec.TransactionID != transactionID {
				return nil, apperror.ErrDuplicateIdempotencyKey(*idempotencyKey)
			}
			return s.ledgerRepo.GetByTransaction(ctx, transactionID)
		}
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Replay detection: entries already committed for this id win.
	existing, err := s.ledgerRepo.GetByTransactionForUpdate(ctx, dbTx, transactionID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check existing entries: %w", err))
	}
	if len(existing) > 0 {
		return existing, nil
	}

	// Lock involved wallets in a stable order and reject frozen ones.
	if err := lockEntryWallets(ctx, dbTx, s.walletRepo, entries); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rows := materializeEntries(transactionID, idempotencyKey, entries, now)

	if err := s.ledgerRepo.InsertEntries(ctx, dbTx, rows); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("insert entries: %w", err))
	}

	if idempotencyKey != nil {
		rec := &ports.IdempotencyRecord{
			Key:           *idempotencyKey,
			TransactionID: transactionID,
			CreatedAt:     now,
		}
		if err := s.idempRepo.Create(ctx, dbTx, rec); err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("save idempotency record: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.metrics.EntriesRecorded.Add(float64(len(rows)))

	s.log.Info().
		Str("transaction_id", transactionID).
		Int("entries", len(rows)).
		Msg("entry set recorded")

	return rows, nil
}

// RecordAdjustment records a manually authorized compensating entry set.
// It goes through the same zero-sum and precision gates as every other
// write; the only privilege is that no payment or refund needs to exist.
func (s *LedgerServiceImpl) RecordAdjustment(ctx context.Context, actor string, reason string, entries []ports.EntryInput) ([]domain.LedgerEntry, error) {
	if actor == "" {
		return nil, apperror.Validation("adjustment requires an actor")
	}
	if reason == "" {
		return nil, apperror.Validation("adjustment requires a reason")
	}
	for i := range entries {
		switch entries[i].Type {
		case domain.EntryTypeAdjustmentDebit, domain.EntryTypeAdjustmentCredit:
		default:
			return nil, apperror.Validation("adjustment entries must use adjustment types")
		}
		entries[i].Description = fmt.Sprintf("adjustment by %s: %s", actor, reason)
	}

	transactionID := domain.AdjustmentTransactionID(uuid.New())

	recorded, err := s.Record(ctx, transactionID, nil, entries)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("transaction_id", transactionID).
		Str("actor", actor).
		Str("reason", reason).
		Msg("manual adjustment recorded")

	return recorded, nil
}

// EntriesForTransaction returns all entries grouped under a transaction id.
func (s *LedgerServiceImpl) EntriesForTransaction(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error) {
	entries, err := s.ledgerRepo.GetByTransaction(ctx, transactionID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get entries: %w", err))
	}
	if len(entries) == 0 {
		return nil, apperror.ErrNotFound("transaction")
	}
	return entries, nil
}

// EntriesForWallet lists a wallet's entries with filtering and pagination.
func (s *LedgerServiceImpl) EntriesForWallet(ctx context.Context, walletID uuid.UUID, filter ports.EntryFilter) ([]domain.LedgerEntry, int64, error) {
	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, 0, apperror.ErrNotFound("wallet")
	}
	return s.ledgerRepo.ListForWallet(ctx, walletID, filter)
}
