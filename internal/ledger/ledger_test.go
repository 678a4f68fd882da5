package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shivammacoss/profitVision-new-sub000/internal/ledger"
	"github.com/shivammacoss/profitVision-new-sub000/internal/model"
	"github.com/shivammacoss/profitVision-new-sub000/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var fixedNow = time.Date(2025, time.February, 1, 9, 0, 0, 0, time.UTC)

func testClock() time.Time { return fixedNow }

// seedEntry inserts a PENDING entry directly into the store.
func seedEntry(t *testing.T, ms *store.MemoryStore, id, beneficiary string, amount decimal.Decimal) *model.CommissionLedgerEntry {
	t.Helper()
	e := &model.CommissionLedgerEntry{
		ID:              id,
		BeneficiaryID:   beneficiary,
		SourceID:        "trader",
		PeriodOrTrigger: "2025-01",
		Level:           1,
		Mode:            model.ModeBatch,
		Rate:            d(4),
		Amount:          amount,
		Status:          model.EntryPending,
		CreatedAt:       fixedNow,
	}
	inserted, err := ms.InsertLedgerEntry(context.Background(), e)
	if err != nil || !inserted {
		t.Fatalf("seed entry: inserted=%v err=%v", inserted, err)
	}
	return e
}

func TestCredit_PairsWalletAndEntry(t *testing.T) {
	ms := store.NewMemoryStore()
	l := ledger.New(ms, testClock)
	ctx := context.Background()

	e := seedEntry(t, ms, "e1", "b1", d(10))
	if err := l.Credit(ctx, e); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	w, _ := ms.GetWallet(ctx, "b1")
	if !w.Balance.Equal(d(10)) {
		t.Errorf("balance = %s, want 10", w.Balance)
	}
	if !w.TotalEarned.Equal(d(10)) {
		t.Errorf("total earned = %s, want 10", w.TotalEarned)
	}

	stored, _ := ms.GetLedgerEntry(ctx, "e1")
	if stored.Status != model.EntryCredited {
		t.Errorf("status = %s, want CREDITED", stored.Status)
	}
	if stored.CreditedAt == nil || !stored.CreditedAt.Equal(fixedNow) {
		t.Errorf("credited_at = %v, want %v", stored.CreditedAt, fixedNow)
	}
}

// failingWalletStore simulates a wallet backend outage.
type failingWalletStore struct {
	store.Store
}

func (s *failingWalletStore) CreditWallet(context.Context, string, decimal.Decimal) error {
	return errors.New("wallet backend unavailable")
}

func TestCredit_WalletFailureMarksEntryFailed(t *testing.T) {
	ms := store.NewMemoryStore()
	l := ledger.New(&failingWalletStore{Store: ms}, testClock)
	ctx := context.Background()

	e := seedEntry(t, ms, "e1", "b1", d(10))
	if err := l.Credit(ctx, e); err == nil {
		t.Fatal("expected credit error")
	}

	// The entry must be discoverable as failed, never stuck PENDING with
	// money in limbo.
	stored, _ := ms.GetLedgerEntry(ctx, "e1")
	if stored.Status != model.EntryFailed {
		t.Errorf("status = %s, want FAILED", stored.Status)
	}
	if stored.ErrorMessage == "" {
		t.Error("expected error message on failed entry")
	}

	w, _ := ms.GetWallet(ctx, "b1")
	if !w.Balance.IsZero() {
		t.Errorf("balance = %s, want 0", w.Balance)
	}
}

func TestReverse_RestoresWalletExactly(t *testing.T) {
	ms := store.NewMemoryStore()
	l := ledger.New(ms, testClock)
	ctx := context.Background()

	// Pre-existing earnings so reversal must restore a non-zero baseline.
	ms.CreditWallet(ctx, "b1", d(33.27))

	e := seedEntry(t, ms, "e1", "b1", d(7.50))
	if err := l.Credit(ctx, e); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	reversed, err := l.Reverse(ctx, "e1", "admin-7", "chargeback")
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}

	if reversed.Status != model.EntryReversed {
		t.Errorf("status = %s, want REVERSED", reversed.Status)
	}
	if reversed.ReversedBy != "admin-7" || reversed.ReversalReason != "chargeback" {
		t.Errorf("reversal fields = %q/%q", reversed.ReversedBy, reversed.ReversalReason)
	}
	if reversed.ReversedAt == nil {
		t.Error("expected reversed_at to be set")
	}

	w, _ := ms.GetWallet(ctx, "b1")
	if !w.Balance.Equal(d(33.27)) {
		t.Errorf("balance = %s, want 33.27 to the cent", w.Balance)
	}
	if !w.TotalEarned.Equal(d(33.27)) {
		t.Errorf("total earned = %s, want 33.27", w.TotalEarned)
	}
}

func TestReverse_TerminalState(t *testing.T) {
	ms := store.NewMemoryStore()
	l := ledger.New(ms, testClock)
	ctx := context.Background()

	e := seedEntry(t, ms, "e1", "b1", d(5))
	l.Credit(ctx, e)
	if _, err := l.Reverse(ctx, "e1", "admin", "dup"); err != nil {
		t.Fatalf("first reverse: %v", err)
	}

	_, err := l.Reverse(ctx, "e1", "admin", "again")
	if !errors.Is(err, ledger.ErrAlreadyReversed) {
		t.Fatalf("expected ErrAlreadyReversed, got %v", err)
	}

	// Double reversal must not double the debit.
	w, _ := ms.GetWallet(ctx, "b1")
	if !w.Balance.IsZero() {
		t.Errorf("balance = %s, want 0", w.Balance)
	}
}

func TestReverse_PendingEntrySkipsDebit(t *testing.T) {
	ms := store.NewMemoryStore()
	l := ledger.New(ms, testClock)
	ctx := context.Background()

	seedEntry(t, ms, "e1", "b1", d(5))

	reversed, err := l.Reverse(ctx, "e1", "admin", "created in error")
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if reversed.Status != model.EntryReversed {
		t.Errorf("status = %s, want REVERSED", reversed.Status)
	}

	// No money ever moved, so none may move back.
	w, _ := ms.GetWallet(ctx, "b1")
	if !w.Balance.IsZero() {
		t.Errorf("balance = %s, want 0", w.Balance)
	}
}

func TestReverse_UnknownEntry(t *testing.T) {
	ms := store.NewMemoryStore()
	l := ledger.New(ms, testClock)

	_, err := l.Reverse(context.Background(), "nope", "admin", "x")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
