package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/webxv/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks for TxBeginner, PointsAccountStore and PointsTxSink.
// These let us test the real transfer logic without a database.
// ---------------------------------------------------------------------------

// fakeTx satisfies pgx.Tx by embedding; only Commit/Rollback are exercised.
type fakeTx struct {
	pgx.Tx
	mu         sync.Mutex
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Commit(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	mu  sync.Mutex
	txs []*fakeTx
}

func (d *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tx := &fakeTx{}
	d.txs = append(d.txs, tx)
	return tx, nil
}

func (d *fakeDB) committedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, tx := range d.txs {
		if tx.committed {
			n++
		}
	}
	return n
}

// ---

type mockPointsAccounts struct {
	mu        sync.Mutex
	accounts  map[uuid.UUID]*models.Account
	lockOrder []uuid.UUID
}

func newMockPointsAccounts(accs ...*models.Account) *mockPointsAccounts {
	m := &mockPointsAccounts{accounts: make(map[uuid.UUID]*models.Account)}
	for _, a := range accs {
		cp := *a
		m.accounts[a.ID] = &cp
	}
	return m
}

func (m *mockPointsAccounts) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockPointsAccounts) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	m.lockOrder = append(m.lockOrder, id)
	cp := *a
	return &cp, nil
}

func (m *mockPointsAccounts) lockedIDs() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uuid.UUID, len(m.lockOrder))
	copy(out, m.lockOrder)
	return out
}

func (m *mockPointsAccounts) DebitPoints(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return 0, ErrAccountNotFound
	}
	if a.PointsBalance < amount {
		return 0, ErrInsufficientBalance
	}
	a.PointsBalance -= amount
	return a.PointsBalance, nil
}

func (m *mockPointsAccounts) CreditPoints(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return 0, ErrAccountNotFound
	}
	a.PointsBalance += amount
	return a.PointsBalance, nil
}

func (m *mockPointsAccounts) balance(id uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id].PointsBalance
}

// ---

type mockPointsSink struct {
	mu      sync.Mutex
	failOn  models.ActionType
	entries []*models.PointsTransaction
}

func (m *mockPointsSink) CreateTx(_ context.Context, _ pgx.Tx, t *models.PointsTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != "" && t.ActionType == m.failOn {
		return errors.New("sink failure")
	}
	cp := *t
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockPointsSink) byType(action models.ActionType) []*models.PointsTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PointsTransaction
	for _, e := range m.entries {
		if e.ActionType == action {
			out = append(out, e)
		}
	}
	return out
}

func (m *mockPointsSink) all() []*models.PointsTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.PointsTransaction, len(m.entries))
	copy(out, m.entries)
	return out
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func pointsAcct(id uuid.UUID, balance int64) *models.Account {
	return &models.Account{ID: id, PointsBalance: balance}
}

// ---------------------------------------------------------------------------
// 1. TestPointsTransfer_FeeRouting
//    100-point transfer with a 10-point fee from a 500-point balance:
//    sender 400, recipient +90, system +10, three ledger entries.
// ---------------------------------------------------------------------------

func TestPointsTransfer_FeeRouting(t *testing.T) {
	sender := uuid.New()
	recipient := uuid.New()
	system := uuid.New()

	accounts := newMockPointsAccounts(
		pointsAcct(sender, 500),
		pointsAcct(recipient, 0),
		pointsAcct(system, 0),
	)
	sink := &mockPointsSink{}
	db := &fakeDB{}
	svc := NewPoints(db, accounts, sink, system)

	ctx := context.Background()
	result, err := svc.Transfer(ctx, sender, recipient, 100, 10, TransferOptions{Message: "thanks"})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	if got := accounts.balance(sender); got != 400 {
		t.Errorf("sender balance: got %d, want 400", got)
	}
	if got := accounts.balance(recipient); got != 90 {
		t.Errorf("recipient balance: got %d, want 90", got)
	}
	if got := accounts.balance(system); got != 10 {
		t.Errorf("system balance: got %d, want 10", got)
	}

	if len(sink.all()) != 3 {
		t.Fatalf("ledger entries: got %d, want 3", len(sink.all()))
	}

	outs := sink.byType(models.ActionTransferOut)
	if len(outs) != 1 || outs[0].Points != -100 {
		t.Errorf("transfer_out entry: got %+v, want points -100", outs)
	}
	if outs[0].BalanceAfter != 400 {
		t.Errorf("transfer_out balance_after: got %d, want 400", outs[0].BalanceAfter)
	}
	if outs[0].CounterpartyID == nil || *outs[0].CounterpartyID != recipient {
		t.Error("transfer_out should reference the recipient")
	}

	ins := sink.byType(models.ActionTransferIn)
	if len(ins) != 1 || ins[0].Points != 90 {
		t.Errorf("transfer_in entry: got %+v, want points 90", ins)
	}
	if ins[0].BalanceAfter != 90 {
		t.Errorf("transfer_in balance_after: got %d, want 90", ins[0].BalanceAfter)
	}

	fees := sink.byType(models.ActionTransferFee)
	if len(fees) != 1 || fees[0].Points != 10 {
		t.Errorf("transfer_fee entry: got %+v, want points 10", fees)
	}
	if fees[0].AccountID != system {
		t.Errorf("fee entry should go to the system account, got %s", fees[0].AccountID)
	}

	if result.FeeTx == nil {
		t.Error("result should include the fee entry")
	}
	if db.committedCount() != 1 {
		t.Errorf("committed transactions: got %d, want 1", db.committedCount())
	}
}

// ---------------------------------------------------------------------------
// 2. TestPointsTransfer_NoFee
// ---------------------------------------------------------------------------

func TestPointsTransfer_NoFee(t *testing.T) {
	sender := uuid.New()
	recipient := uuid.New()

	accounts := newMockPointsAccounts(pointsAcct(sender, 200), pointsAcct(recipient, 50))
	sink := &mockPointsSink{}
	svc := NewPoints(&fakeDB{}, accounts, sink, uuid.Nil)

	result, err := svc.Transfer(context.Background(), sender, recipient, 75, 0, TransferOptions{})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if result.FeeTx != nil {
		t.Error("no fee entry expected for a zero-fee transfer")
	}
	if got := len(sink.all()); got != 2 {
		t.Errorf("ledger entries: got %d, want 2", got)
	}
	if got := accounts.balance(recipient); got != 125 {
		t.Errorf("recipient balance: got %d, want 125", got)
	}
}

// ---------------------------------------------------------------------------
// 3. TestPointsTransfer_Validation
//    Rejections happen before any balance is touched or entry written.
// ---------------------------------------------------------------------------

func TestPointsTransfer_Validation(t *testing.T) {
	sender := uuid.New()
	recipient := uuid.New()
	system := uuid.New()

	cases := []struct {
		name      string
		recipient uuid.UUID
		points    int64
		fee       int64
		wantErr   error
	}{
		{"self transfer", sender, 100, 0, ErrSelfTransfer},
		{"zero amount", recipient, 0, 0, ErrInvalidAmount},
		{"negative amount", recipient, -5, 0, ErrInvalidAmount},
		{"negative fee", recipient, 100, -1, ErrInvalidFee},
		{"fee equals amount", recipient, 100, 100, ErrFeeExceedsAmount},
		{"fee exceeds amount", recipient, 100, 150, ErrFeeExceedsAmount},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			accounts := newMockPointsAccounts(pointsAcct(sender, 500), pointsAcct(recipient, 0))
			sink := &mockPointsSink{}
			svc := NewPoints(&fakeDB{}, accounts, sink, system)

			_, err := svc.Transfer(context.Background(), sender, tc.recipient, tc.points, tc.fee, TransferOptions{})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got error %v, want %v", err, tc.wantErr)
			}
			if got := accounts.balance(sender); got != 500 {
				t.Errorf("sender balance mutated on rejected transfer: %d", got)
			}
			if len(sink.all()) != 0 {
				t.Errorf("ledger entries written on rejected transfer: %d", len(sink.all()))
			}
		})
	}
}

// ---------------------------------------------------------------------------
// 4. TestPointsTransfer_InsufficientBalance
// ---------------------------------------------------------------------------

func TestPointsTransfer_InsufficientBalance(t *testing.T) {
	sender := uuid.New()
	recipient := uuid.New()

	accounts := newMockPointsAccounts(pointsAcct(sender, 50), pointsAcct(recipient, 0))
	sink := &mockPointsSink{}
	db := &fakeDB{}
	svc := NewPoints(db, accounts, sink, uuid.Nil)

	_, err := svc.Transfer(context.Background(), sender, recipient, 100, 0, TransferOptions{})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("got error %v, want ErrInsufficientBalance", err)
	}
	if got := accounts.balance(sender); got != 50 {
		t.Errorf("sender balance: got %d, want 50", got)
	}
	if got := accounts.balance(recipient); got != 0 {
		t.Errorf("recipient balance: got %d, want 0", got)
	}
	if len(sink.all()) != 0 {
		t.Errorf("ledger entries: got %d, want 0", len(sink.all()))
	}
	if db.committedCount() != 0 {
		t.Error("transaction should not commit on insufficient balance")
	}
	if len(db.txs) != 1 || !db.txs[0].rolledBack {
		t.Error("transaction should roll back on insufficient balance")
	}
}

// ---------------------------------------------------------------------------
// 5. TestPointsTransfer_UnknownAccounts
// ---------------------------------------------------------------------------

func TestPointsTransfer_UnknownAccounts(t *testing.T) {
	sender := uuid.New()
	recipient := uuid.New()
	system := uuid.New()

	t.Run("missing recipient", func(t *testing.T) {
		accounts := newMockPointsAccounts(pointsAcct(sender, 500))
		svc := NewPoints(&fakeDB{}, accounts, &mockPointsSink{}, system)
		_, err := svc.Transfer(context.Background(), sender, recipient, 100, 0, TransferOptions{})
		if !errors.Is(err, ErrAccountNotFound) {
			t.Fatalf("got error %v, want ErrAccountNotFound", err)
		}
		if got := accounts.balance(sender); got != 500 {
			t.Errorf("sender balance mutated: %d", got)
		}
	})

	t.Run("missing sender", func(t *testing.T) {
		accounts := newMockPointsAccounts(pointsAcct(recipient, 0))
		svc := NewPoints(&fakeDB{}, accounts, &mockPointsSink{}, system)
		_, err := svc.Transfer(context.Background(), sender, recipient, 100, 0, TransferOptions{})
		if !errors.Is(err, ErrAccountNotFound) {
			t.Fatalf("got error %v, want ErrAccountNotFound", err)
		}
	})

	t.Run("missing system account with fee", func(t *testing.T) {
		accounts := newMockPointsAccounts(pointsAcct(sender, 500), pointsAcct(recipient, 0))
		db := &fakeDB{}
		svc := NewPoints(db, accounts, &mockPointsSink{}, system)
		_, err := svc.Transfer(context.Background(), sender, recipient, 100, 10, TransferOptions{})
		if !errors.Is(err, ErrSystemAccountNotFound) {
			t.Fatalf("got error %v, want ErrSystemAccountNotFound", err)
		}
		if db.committedCount() != 0 {
			t.Error("transaction should not commit when the system account is missing")
		}
	})

	t.Run("unconfigured system account with fee", func(t *testing.T) {
		accounts := newMockPointsAccounts(pointsAcct(sender, 500), pointsAcct(recipient, 0))
		svc := NewPoints(&fakeDB{}, accounts, &mockPointsSink{}, uuid.Nil)
		_, err := svc.Transfer(context.Background(), sender, recipient, 100, 10, TransferOptions{})
		if !errors.Is(err, ErrSystemAccountNotFound) {
			t.Fatalf("got error %v, want ErrSystemAccountNotFound", err)
		}
	})
}

// ---------------------------------------------------------------------------
// 6. TestPointsTransfer_AtomicOnSinkFailure
//    A failure writing any ledger entry aborts the whole transfer.
// ---------------------------------------------------------------------------

func TestPointsTransfer_AtomicOnSinkFailure(t *testing.T) {
	sender := uuid.New()
	recipient := uuid.New()
	system := uuid.New()

	accounts := newMockPointsAccounts(
		pointsAcct(sender, 500),
		pointsAcct(recipient, 0),
		pointsAcct(system, 0),
	)
	sink := &mockPointsSink{failOn: models.ActionTransferFee}
	db := &fakeDB{}
	svc := NewPoints(db, accounts, sink, system)

	_, err := svc.Transfer(context.Background(), sender, recipient, 100, 10, TransferOptions{})
	if err == nil {
		t.Fatal("expected a sink failure error")
	}
	if db.committedCount() != 0 {
		t.Error("transaction should not commit when a ledger write fails")
	}
	if len(db.txs) != 1 || !db.txs[0].rolledBack {
		t.Error("transaction should roll back when a ledger write fails")
	}
}

// ---------------------------------------------------------------------------
// 7. TestPointsTransfer_ConcurrentOverdraw
//    Two concurrent 100-point transfers from a 150-point balance: exactly
//    one succeeds, and the balance never goes negative.
// ---------------------------------------------------------------------------

func TestPointsTransfer_ConcurrentOverdraw(t *testing.T) {
	sender := uuid.New()
	a := uuid.New()
	b := uuid.New()

	accounts := newMockPointsAccounts(
		pointsAcct(sender, 150),
		pointsAcct(a, 0),
		pointsAcct(b, 0),
	)
	sink := &mockPointsSink{}
	svc := NewPoints(&fakeDB{}, accounts, sink, uuid.Nil)

	ctx := context.Background()
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, recipient := range []uuid.UUID{a, b} {
		wg.Add(1)
		go func(r uuid.UUID) {
			defer wg.Done()
			_, err := svc.Transfer(ctx, sender, r, 100, 0, TransferOptions{})
			errs <- err
		}(recipient)
	}
	wg.Wait()
	close(errs)

	var ok, insufficient int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Fatalf("got %d successes and %d insufficient-balance failures, want 1 and 1", ok, insufficient)
	}
	if got := accounts.balance(sender); got != 50 {
		t.Errorf("sender balance: got %d, want 50", got)
	}
	if got := accounts.balance(a) + accounts.balance(b); got != 100 {
		t.Errorf("recipients received %d total, want 100", got)
	}
	if got := len(sink.all()); got != 2 {
		t.Errorf("ledger entries: got %d, want 2", got)
	}
}

// ---------------------------------------------------------------------------
// 8. TestPointsTransfer_Conservation
//    Across a burst of transfers the total points in the system (including
//    the system fee account) never change.
// ---------------------------------------------------------------------------

func TestPointsTransfer_Conservation(t *testing.T) {
	system := uuid.New()
	ids := make([]uuid.UUID, 4)
	accs := []*models.Account{pointsAcct(system, 0)}
	const initial = int64(1000)
	for i := range ids {
		ids[i] = uuid.New()
		accs = append(accs, pointsAcct(ids[i], initial))
	}

	accounts := newMockPointsAccounts(accs...)
	sink := &mockPointsSink{}
	svc := NewPoints(&fakeDB{}, accounts, sink, system)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from := ids[i%len(ids)]
			to := ids[(i+1)%len(ids)]
			// Some transfers fail on balance; conservation must hold anyway.
			svc.Transfer(ctx, from, to, int64(10+i), int64(i%5), TransferOptions{})
		}(i)
	}
	wg.Wait()

	total := accounts.balance(system)
	for _, id := range ids {
		total += accounts.balance(id)
	}
	if want := initial * int64(len(ids)); total != want {
		t.Errorf("points conservation violated: got total %d, want %d", total, want)
	}

	// Per-entry sanity: every entry's balance_after is non-negative.
	for _, e := range sink.all() {
		if e.BalanceAfter < 0 {
			t.Errorf("negative balance_after on %s entry: %d", e.ActionType, e.BalanceAfter)
		}
	}
}

// ---------------------------------------------------------------------------
// 9. TestPointsTransfer_LockOrdering
//    Row locks are always taken in ascending account-ID order, so opposing
//    transfers (A->B racing B->A) cannot deadlock on each other's locks.
// ---------------------------------------------------------------------------

func TestPointsTransfer_LockOrdering(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	system := uuid.New()

	assertAscending := func(t *testing.T, ids []uuid.UUID, want int) {
		t.Helper()
		if len(ids) != want {
			t.Fatalf("locked %d accounts, want %d", len(ids), want)
		}
		for i := 1; i < len(ids); i++ {
			if ids[i-1].String() > ids[i].String() {
				t.Fatalf("locks taken out of order: %s before %s", ids[i-1], ids[i])
			}
		}
	}

	t.Run("both directions lock in the same order", func(t *testing.T) {
		for _, pair := range [][2]uuid.UUID{{a, b}, {b, a}} {
			accounts := newMockPointsAccounts(pointsAcct(pair[0], 500), pointsAcct(pair[1], 0))
			svc := NewPoints(&fakeDB{}, accounts, &mockPointsSink{}, uuid.Nil)
			if _, err := svc.Transfer(context.Background(), pair[0], pair[1], 100, 0, TransferOptions{}); err != nil {
				t.Fatalf("Transfer: %v", err)
			}
			assertAscending(t, accounts.lockedIDs(), 2)
		}
	})

	t.Run("fee transfers include the system account", func(t *testing.T) {
		accounts := newMockPointsAccounts(pointsAcct(a, 500), pointsAcct(b, 0), pointsAcct(system, 0))
		svc := NewPoints(&fakeDB{}, accounts, &mockPointsSink{}, system)
		if _, err := svc.Transfer(context.Background(), a, b, 100, 10, TransferOptions{}); err != nil {
			t.Fatalf("Transfer: %v", err)
		}
		assertAscending(t, accounts.lockedIDs(), 3)
	})
}

// ---------------------------------------------------------------------------
// 10. TestPointsTransfer_StatusHistory
// ---------------------------------------------------------------------------

func TestPointsTransfer_StatusHistory(t *testing.T) {
	sender := uuid.New()
	recipient := uuid.New()
	actor := uuid.New()

	accounts := newMockPointsAccounts(pointsAcct(sender, 500), pointsAcct(recipient, 0))
	sink := &mockPointsSink{}
	svc := NewPoints(&fakeDB{}, accounts, sink, uuid.Nil)

	_, err := svc.Transfer(context.Background(), sender, recipient, 100, 0, TransferOptions{
		ActorID: &actor,
		Reason:  "peer transfer",
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	for _, e := range sink.all() {
		if len(e.StatusHistory) != 1 {
			t.Fatalf("status history length: got %d, want 1", len(e.StatusHistory))
		}
		h := e.StatusHistory[0]
		if h.Status != models.TxStatusCompleted {
			t.Errorf("status history status: got %s, want completed", h.Status)
		}
		if h.ChangedBy == nil || *h.ChangedBy != actor {
			t.Error("status history should record the acting account")
		}
		if h.Reason != "peer transfer" {
			t.Errorf("status history reason: got %q", h.Reason)
		}
	}
}
