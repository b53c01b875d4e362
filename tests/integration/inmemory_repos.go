package integration

import (
	"context"
	"fmt"
	"sync"

	"marketplace-settlement/internal/core/domain"
	"marketplace-settlement/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// In-memory implementations of the storage ports. They back the full HTTP
// stack in these tests so the suite exercises real middleware, handlers,
// services, and Redis stores without a Postgres instance.

// --- Wallet repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	r.wallets[w.ID] = &cp
	return nil
}

func (r *inMemoryWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) GetByCode(ctx context.Context, code string) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wallets {
		if w.Code == code {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryWalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryWalletRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.WalletStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[id]
	if !ok {
		return fmt.Errorf("wallet not found")
	}
	w.Status = status
	return nil
}

func (r *inMemoryWalletRepo) ListByKind(ctx context.Context, kind domain.WalletKind) ([]domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Wallet
	for _, w := range r.wallets {
		if w.Kind == kind {
			out = append(out, *w)
		}
	}
	return out, nil
}

// --- Ledger repo ---

type inMemoryLedgerRepo struct {
	mu      sync.RWMutex
	entries []domain.LedgerEntry
	wallets *inMemoryWalletRepo
}

func newInMemoryLedgerRepo(wallets *inMemoryWalletRepo) *inMemoryLedgerRepo {
	return &inMemoryLedgerRepo{wallets: wallets}
}

func (r *inMemoryLedgerRepo) InsertEntries(ctx context.Context, tx pgx.Tx, entries []domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entries...)
	return nil
}

func (r *inMemoryLedgerRepo) GetByTransaction(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.LedgerEntry
	for _, e := range r.entries {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *inMemoryLedgerRepo) GetByTransactionForUpdate(ctx context.Context, tx pgx.Tx, transactionID string) ([]domain.LedgerEntry, error) {
	return r.GetByTransaction(ctx, transactionID)
}

func (r *inMemoryLedgerRepo) ListForWallet(ctx context.Context, walletID uuid.UUID, filter ports.EntryFilter) ([]domain.LedgerEntry, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.LedgerEntry
	for _, e := range r.entries {
		if e.WalletID != walletID {
			continue
		}
		if filter.Type != nil && e.Type != *filter.Type {
			continue
		}
		if filter.From != nil && e.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.CreatedAt.After(*filter.To) {
			continue
		}
		out = append(out, e)
	}
	return out, int64(len(out)), nil
}

func (r *inMemoryLedgerRepo) ListInWindow(ctx context.Context, window ports.EntryWindow) ([]domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.LedgerEntry
	for _, e := range r.entries {
		if e.CreatedAt.Before(window.From) || e.CreatedAt.After(window.To) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *inMemoryLedgerRepo) SumForWallet(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sum := decimal.Zero
	for _, e := range r.entries {
		if e.WalletID == walletID {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

func (r *inMemoryLedgerRepo) SumForWalletTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (decimal.Decimal, error) {
	return r.SumForWallet(ctx, walletID)
}

func (r *inMemoryLedgerRepo) TotalBalanceByKind(ctx context.Context, kind domain.WalletKind, status domain.WalletStatus) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sum := decimal.Zero
	for _, e := range r.entries {
		w := r.wallets.wallets[e.WalletID]
		if w == nil || w.Kind != kind || w.Status != status {
			continue
		}
		sum = sum.Add(e.Amount)
	}
	return sum, nil
}

// --- Idempotency repo ---

type inMemoryIdempotencyRepo struct {
	mu      sync.RWMutex
	records map[string]*ports.IdempotencyRecord
}

func newInMemoryIdempotencyRepo() *inMemoryIdempotencyRepo {
	return &inMemoryIdempotencyRepo{records: make(map[string]*ports.IdempotencyRecord)}
}

func (r *inMemoryIdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, rec *ports.IdempotencyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.Key]; ok {
		return fmt.Errorf("duplicate key")
	}
	r.records[rec.Key] = rec
	return nil
}

func (r *inMemoryIdempotencyRepo) Get(ctx context.Context, key string) (*ports.IdempotencyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[key]
	if !ok {
		return nil, nil
	}
	return rec, nil
}

// --- Payment repo ---

type inMemoryPaymentRepo struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]*domain.Payment
}

func newInMemoryPaymentRepo() *inMemoryPaymentRepo {
	return &inMemoryPaymentRepo{payments: make(map[uuid.UUID]*domain.Payment)}
}

func (r *inMemoryPaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.payments[p.ID] = &cp
	return nil
}

func (r *inMemoryPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *inMemoryPaymentRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payment, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryPaymentRepo) Update(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.ID]; !ok {
		return fmt.Errorf("payment not found")
	}
	cp := *p
	r.payments[p.ID] = &cp
	return nil
}

func (r *inMemoryPaymentRepo) UpdateState(ctx context.Context, id uuid.UUID, state domain.PaymentState, failureReason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return fmt.Errorf("payment not found")
	}
	p.State = state
	p.FailureReason = failureReason
	return nil
}

func (r *inMemoryPaymentRepo) ListByStateInWindow(ctx context.Context, state domain.PaymentState, window ports.EntryWindow) ([]domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Payment
	for _, p := range r.payments {
		if p.State != state {
			continue
		}
		if p.InitiatedAt.Before(window.From) || p.InitiatedAt.After(window.To) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *inMemoryPaymentRepo) ExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if _, ok := r.payments[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

// --- Refund repo ---

type inMemoryRefundRepo struct {
	mu      sync.RWMutex
	refunds map[uuid.UUID]*domain.Refund
}

func newInMemoryRefundRepo() *inMemoryRefundRepo {
	return &inMemoryRefundRepo{refunds: make(map[uuid.UUID]*domain.Refund)}
}

func (r *inMemoryRefundRepo) Create(ctx context.Context, rf *domain.Refund) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rf
	r.refunds[rf.ID] = &cp
	return nil
}

func (r *inMemoryRefundRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Refund, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rf, ok := r.refunds[id]
	if !ok {
		return nil, nil
	}
	cp := *rf
	return &cp, nil
}

func (r *inMemoryRefundRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Refund, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryRefundRepo) Update(ctx context.Context, tx pgx.Tx, rf *domain.Refund) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.refunds[rf.ID]; !ok {
		return fmt.Errorf("refund not found")
	}
	cp := *rf
	r.refunds[rf.ID] = &cp
	return nil
}

func (r *inMemoryRefundRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RefundStatus, failureReason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rf, ok := r.refunds[id]
	if !ok {
		return fmt.Errorf("refund not found")
	}
	rf.Status = status
	rf.FailureReason = failureReason
	return nil
}

func (r *inMemoryRefundRepo) SumAmountsByStatus(ctx context.Context, paymentID uuid.UUID, statuses []domain.RefundStatus) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sum := decimal.Zero
	for _, rf := range r.refunds {
		if rf.PaymentID != paymentID {
			continue
		}
		for _, st := range statuses {
			if rf.Status == st {
				sum = sum.Add(rf.Amount)
				break
			}
		}
	}
	return sum, nil
}

func (r *inMemoryRefundRepo) SumAmountsByStatusTx(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID, statuses []domain.RefundStatus) (decimal.Decimal, error) {
	return r.SumAmountsByStatus(ctx, paymentID, statuses)
}

func (r *inMemoryRefundRepo) ListByStatusInWindow(ctx context.Context, status domain.RefundStatus, window ports.EntryWindow) ([]domain.Refund, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Refund
	for _, rf := range r.refunds {
		if rf.Status != status {
			continue
		}
		if rf.RequestedAt.Before(window.From) || rf.RequestedAt.After(window.To) {
			continue
		}
		out = append(out, *rf)
	}
	return out, nil
}

func (r *inMemoryRefundRepo) ExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if _, ok := r.refunds[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

// --- Withdrawal repo ---

type inMemoryWithdrawalRepo struct {
	mu          sync.RWMutex
	withdrawals map[uuid.UUID]*domain.Withdrawal
}

func newInMemoryWithdrawalRepo() *inMemoryWithdrawalRepo {
	return &inMemoryWithdrawalRepo{withdrawals: make(map[uuid.UUID]*domain.Withdrawal)}
}

func (r *inMemoryWithdrawalRepo) Create(ctx context.Context, w *domain.Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	r.withdrawals[w.ID] = &cp
	return nil
}

func (r *inMemoryWithdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.withdrawals[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWithdrawalRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Withdrawal, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryWithdrawalRepo) Update(ctx context.Context, tx pgx.Tx, w *domain.Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.withdrawals[w.ID]; !ok {
		return fmt.Errorf("withdrawal not found")
	}
	cp := *w
	r.withdrawals[w.ID] = &cp
	return nil
}

func (r *inMemoryWithdrawalRepo) UpdateState(ctx context.Context, id uuid.UUID, state domain.WithdrawalState, failureReason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.withdrawals[id]
	if !ok {
		return fmt.Errorf("withdrawal not found")
	}
	w.State = state
	w.FailureReason = failureReason
	return nil
}

func (r *inMemoryWithdrawalRepo) ListByStateInWindow(ctx context.Context, state domain.WithdrawalState, window ports.EntryWindow) ([]domain.Withdrawal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Withdrawal
	for _, w := range r.withdrawals {
		if w.State != state {
			continue
		}
		if w.RequestedAt.Before(window.From) || w.RequestedAt.After(window.To) {
			continue
		}
		out = append(out, *w)
	}
	return out, nil
}

func (r *inMemoryWithdrawalRepo) ListInWindow(ctx context.Context, window ports.EntryWindow) ([]domain.Withdrawal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Withdrawal
	for _, w := range r.withdrawals {
		if w.RequestedAt.Before(window.From) || w.RequestedAt.After(window.To) {
			continue
		}
		out = append(out, *w)
	}
	return out, nil
}

func (r *inMemoryWithdrawalRepo) ExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if _, ok := r.withdrawals[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

// --- Serializing transactor ---

// inMemoryTransactor hands out transactions guarded by a single mutex so
// concurrent service calls serialize the way row locks serialize them
// against Postgres. Commit and Rollback both release; double release is
// a no-op.
type inMemoryTransactor struct {
	mu sync.Mutex
}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &inMemoryTx{release: &t.mu}, nil
}

type inMemoryTx struct {
	noopTx
	mu      sync.Mutex
	release *sync.Mutex
	done    bool
}

func (t *inMemoryTx) Commit(ctx context.Context) error {
	t.finish()
	return nil
}

func (t *inMemoryTx) Rollback(ctx context.Context) error {
	t.finish()
	return nil
}

func (t *inMemoryTx) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.done {
		t.done = true
		t.release.Unlock()
	}
}

// noopTx satisfies the rest of pgx.Tx.
type noopTx struct{}

func (noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (noopTx) Commit(ctx context.Context) error          { return nil }
func (noopTx) Rollback(ctx context.Context) error        { return nil }
func (noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (noopTx) Conn() *pgx.Conn                                               { return nil }
