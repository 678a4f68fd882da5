package commission_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shivammacoss/profitVision-new-sub000/internal/commission"
	"github.com/shivammacoss/profitVision-new-sub000/internal/model"
	"github.com/shivammacoss/profitVision-new-sub000/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var testNow = time.Date(2025, time.February, 10, 8, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

// instantSettings is the direct-joining fixture: flat $15 to the direct
// referrer on FIRST_DEPOSIT, auto-credited.
func instantSettings() model.Settings {
	return model.Settings{
		InstantEnabled:    true,
		InstantTrigger:    model.TriggerFirstDeposit,
		InstantMaxLevels:  2,
		InstantAmounts:    map[int]decimal.Decimal{1: d(15), 2: d(5)},
		InstantAutoCredit: true,
	}
}

func newInstantEnv(t *testing.T) (*commission.Service, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	ms.SeedSettings(instantSettings())
	return commission.NewService(ms, nil, testClock), ms
}

func TestDistributeActivation_SingleLevel(t *testing.T) {
	svc, ms := newInstantEnv(t)
	ctx := context.Background()
	ms.SeedUser("newbie", true)
	ms.SeedUser("b1", true)
	ms.SeedReferral("newbie", "b1")

	res, err := svc.DistributeActivation(ctx, "newbie", model.TriggerFirstDeposit)
	if err != nil {
		t.Fatalf("DistributeActivation: %v", err)
	}

	if !res.Processed {
		t.Fatalf("expected processed, got reason %q", res.Reason)
	}
	if res.CommissionsCreated != 1 {
		t.Errorf("commissions created = %d, want 1", res.CommissionsCreated)
	}
	if !res.TotalDistributed.Equal(d(15)) {
		t.Errorf("total distributed = %s, want 15.00", res.TotalDistributed)
	}

	w, _ := ms.GetWallet(ctx, "b1")
	if !w.Balance.Equal(d(15)) {
		t.Errorf("b1 balance = %s, want exactly 15.00", w.Balance)
	}

	entries, _ := ms.ListLedgerEntries(ctx, store.EntryFilter{SourceID: "newbie"})
	if len(entries) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Status != model.EntryCredited {
		t.Errorf("status = %s, want CREDITED", e.Status)
	}
	if e.Mode != model.ModeInstant {
		t.Errorf("mode = %s, want INSTANT", e.Mode)
	}
	if e.PeriodOrTrigger != model.TriggerFirstDeposit {
		t.Errorf("period_or_trigger = %s, want FIRST_DEPOSIT", e.PeriodOrTrigger)
	}
	if e.Level != 1 {
		t.Errorf("level = %d, want 1", e.Level)
	}
}

func TestDistributeActivation_TwoLevels(t *testing.T) {
	svc, ms := newInstantEnv(t)
	ctx := context.Background()
	ms.SeedUser("newbie", true)
	ms.SeedUser("b1", true)
	ms.SeedUser("b2", true)
	ms.SeedReferral("newbie", "b1")
	ms.SeedReferral("b1", "b2")

	res, err := svc.DistributeActivation(ctx, "newbie", model.TriggerFirstDeposit)
	if err != nil {
		t.Fatalf("DistributeActivation: %v", err)
	}

	if res.CommissionsCreated != 2 {
		t.Errorf("commissions created = %d, want 2", res.CommissionsCreated)
	}
	if !res.TotalDistributed.Equal(d(20)) {
		t.Errorf("total distributed = %s, want 20.00", res.TotalDistributed)
	}
	if !res.PerLevel[1].Equal(d(15)) || !res.PerLevel[2].Equal(d(5)) {
		t.Errorf("per level = %v, want 15/5", res.PerLevel)
	}

	w2, _ := ms.GetWallet(ctx, "b2")
	if !w2.Balance.Equal(d(5)) {
		t.Errorf("b2 balance = %s, want 5.00", w2.Balance)
	}
}

func TestDistributeActivation_RetryIsNoOp(t *testing.T) {
	svc, ms := newInstantEnv(t)
	ctx := context.Background()
	ms.SeedUser("newbie", true)
	ms.SeedUser("b1", true)
	ms.SeedReferral("newbie", "b1")

	first, err := svc.DistributeActivation(ctx, "newbie", model.TriggerFirstDeposit)
	if err != nil || !first.Processed {
		t.Fatalf("first call: processed=%v err=%v", first.Processed, err)
	}

	second, err := svc.DistributeActivation(ctx, "newbie", model.TriggerFirstDeposit)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if second.Processed {
		t.Error("retry should not process again")
	}
	if second.Reason != commission.ReasonAlreadyProcessed {
		t.Errorf("reason = %q, want %q", second.Reason, commission.ReasonAlreadyProcessed)
	}

	// Exactly one entry and one credit, never two.
	entries, _ := ms.ListLedgerEntries(ctx, store.EntryFilter{SourceID: "newbie"})
	if len(entries) != 1 {
		t.Errorf("expected 1 entry after retry, got %d", len(entries))
	}
	w, _ := ms.GetWallet(ctx, "b1")
	if !w.Balance.Equal(d(15)) {
		t.Errorf("b1 balance = %s, want 15.00 after retry", w.Balance)
	}
}

func TestDistributeActivation_Disabled(t *testing.T) {
	svc, ms := newInstantEnv(t)
	st := instantSettings()
	st.InstantEnabled = false
	ms.SeedSettings(st)

	res, err := svc.DistributeActivation(context.Background(), "newbie", model.TriggerFirstDeposit)
	if err != nil {
		t.Fatalf("DistributeActivation: %v", err)
	}
	if res.Processed || res.Reason != commission.ReasonDisabled {
		t.Errorf("got processed=%v reason=%q", res.Processed, res.Reason)
	}
}

func TestDistributeActivation_TriggerMismatch(t *testing.T) {
	svc, ms := newInstantEnv(t)
	ms.SeedUser("newbie", true)
	ms.SeedUser("b1", true)
	ms.SeedReferral("newbie", "b1")

	res, err := svc.DistributeActivation(context.Background(), "newbie", model.TriggerRegistration)
	if err != nil {
		t.Fatalf("DistributeActivation: %v", err)
	}
	if res.Processed || res.Reason != commission.ReasonTriggerMismatch {
		t.Errorf("got processed=%v reason=%q", res.Processed, res.Reason)
	}
}

func TestDistributeActivation_AnyTriggerWhenUnconfigured(t *testing.T) {
	svc, ms := newInstantEnv(t)
	st := instantSettings()
	st.InstantTrigger = ""
	ms.SeedSettings(st)
	ms.SeedUser("newbie", true)
	ms.SeedUser("b1", true)
	ms.SeedReferral("newbie", "b1")

	res, err := svc.DistributeActivation(context.Background(), "newbie", model.TriggerKYCApproved)
	if err != nil {
		t.Fatalf("DistributeActivation: %v", err)
	}
	if !res.Processed {
		t.Errorf("expected any trigger to qualify, got reason %q", res.Reason)
	}
}

func TestDistributeActivation_NoUpline(t *testing.T) {
	svc, ms := newInstantEnv(t)
	ms.SeedUser("orphan", true)

	res, err := svc.DistributeActivation(context.Background(), "orphan", model.TriggerFirstDeposit)
	if err != nil {
		t.Fatalf("DistributeActivation: %v", err)
	}
	if res.Processed || res.Reason != commission.ReasonNoUpline {
		t.Errorf("got processed=%v reason=%q", res.Processed, res.Reason)
	}
}

func TestDistributeActivation_SkipsZeroAmountLevels(t *testing.T) {
	svc, ms := newInstantEnv(t)
	st := instantSettings()
	st.InstantAmounts = map[int]decimal.Decimal{1: d(15)} // level 2 unconfigured
	ms.SeedSettings(st)
	ctx := context.Background()
	ms.SeedUser("newbie", true)
	ms.SeedUser("b1", true)
	ms.SeedUser("b2", true)
	ms.SeedReferral("newbie", "b1")
	ms.SeedReferral("b1", "b2")

	res, err := svc.DistributeActivation(ctx, "newbie", model.TriggerFirstDeposit)
	if err != nil {
		t.Fatalf("DistributeActivation: %v", err)
	}
	if res.CommissionsCreated != 1 {
		t.Errorf("commissions created = %d, want 1 (level 2 has no amount)", res.CommissionsCreated)
	}
	w2, _ := ms.GetWallet(ctx, "b2")
	if !w2.Balance.IsZero() {
		t.Errorf("b2 balance = %s, want 0", w2.Balance)
	}
}

func TestDistributeActivation_PendingWhenAutoCreditOff(t *testing.T) {
	svc, ms := newInstantEnv(t)
	st := instantSettings()
	st.InstantAutoCredit = false
	ms.SeedSettings(st)
	ctx := context.Background()
	ms.SeedUser("newbie", true)
	ms.SeedUser("b1", true)
	ms.SeedReferral("newbie", "b1")

	res, err := svc.DistributeActivation(ctx, "newbie", model.TriggerFirstDeposit)
	if err != nil {
		t.Fatalf("DistributeActivation: %v", err)
	}
	if !res.Processed || res.CommissionsCreated != 1 {
		t.Fatalf("got processed=%v created=%d", res.Processed, res.CommissionsCreated)
	}

	// Entry exists but no money moved yet.
	entries, _ := ms.ListLedgerEntries(ctx, store.EntryFilter{SourceID: "newbie"})
	if entries[0].Status != model.EntryPending {
		t.Errorf("status = %s, want PENDING", entries[0].Status)
	}
	w, _ := ms.GetWallet(ctx, "b1")
	if !w.Balance.IsZero() {
		t.Errorf("b1 balance = %s, want 0 until credited", w.Balance)
	}
}
