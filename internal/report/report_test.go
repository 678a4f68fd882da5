package report_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/shivammacoss/profitVision-new-sub000/internal/model"
	"github.com/shivammacoss/profitVision-new-sub000/internal/report"
	"github.com/shivammacoss/profitVision-new-sub000/internal/store"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func newRouter(svc *report.Service) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/commissions", svc.HandleListCommissions)
		r.Get("/reports/beneficiaries/{userID}", svc.HandleBeneficiarySummary)
		r.Get("/reports/periods/{period}", svc.HandlePeriodSummary)
		r.Get("/batches", svc.HandleListBatches)
		r.Get("/batches/{batchID}", svc.HandleGetBatch)
	})
	return r
}

// seedCredited inserts a CREDITED entry and mirrors the amount into the
// beneficiary's wallet, as the ledger would.
func seedCredited(t *testing.T, ms *store.MemoryStore, id, beneficiary, source, periodKey string, level int, amount decimal.Decimal) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	e := &model.CommissionLedgerEntry{
		ID:              id,
		BeneficiaryID:   beneficiary,
		SourceID:        source,
		PeriodOrTrigger: periodKey,
		Level:           level,
		Mode:            model.ModeBatch,
		Amount:          amount,
		Status:          model.EntryCredited,
		CreatedAt:       now,
		CreditedAt:      &now,
	}
	if inserted, err := ms.InsertLedgerEntry(ctx, e); err != nil || !inserted {
		t.Fatalf("seed entry %s: inserted=%v err=%v", id, inserted, err)
	}
	if err := ms.CreditWallet(ctx, beneficiary, amount); err != nil {
		t.Fatalf("seed wallet %s: %v", beneficiary, err)
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandleBeneficiarySummary(t *testing.T) {
	ms := store.NewMemoryStore()
	seedCredited(t, ms, "e1", "bob", "t1", "2025-01", 1, d(10))
	seedCredited(t, ms, "e2", "bob", "t2", "2025-01", 1, d(4))
	seedCredited(t, ms, "e3", "bob", "t3", "2025-01", 2, d(3))
	seedCredited(t, ms, "e4", "carol", "t1", "2025-01", 2, d(7.5))
	h := newRouter(report.NewService(ms))

	rec := get(t, h, "/api/v1/reports/beneficiaries/bob")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var sum report.BeneficiarySummary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !sum.Balance.Equal(d(17)) || !sum.TotalEarned.Equal(d(17)) {
		t.Errorf("wallet = %s/%s, want 17/17", sum.Balance, sum.TotalEarned)
	}
	if len(sum.ByLevel) != 2 {
		t.Fatalf("by_level has %d rows, want 2", len(sum.ByLevel))
	}
	if sum.ByLevel[0].Level != 1 || sum.ByLevel[0].Entries != 2 || !sum.ByLevel[0].Amount.Equal(d(14)) {
		t.Errorf("level 1 row = %+v, want 2 entries / 14.00", sum.ByLevel[0])
	}
	if sum.ByLevel[1].Level != 2 || !sum.ByLevel[1].Amount.Equal(d(3)) {
		t.Errorf("level 2 row = %+v, want 3.00", sum.ByLevel[1])
	}
}

func TestHandleBeneficiarySummary_UnknownUserIsEmpty(t *testing.T) {
	h := newRouter(report.NewService(store.NewMemoryStore()))

	rec := get(t, h, "/api/v1/reports/beneficiaries/ghost")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var sum report.BeneficiarySummary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !sum.Balance.IsZero() || len(sum.ByLevel) != 0 {
		t.Errorf("summary = %+v, want empty", sum)
	}
}

func TestHandlePeriodSummary(t *testing.T) {
	ms := store.NewMemoryStore()
	seedCredited(t, ms, "e1", "bob", "t1", "2025-01", 1, d(10))
	seedCredited(t, ms, "e2", "carol", "t1", "2025-01", 2, d(7.5))
	seedCredited(t, ms, "e3", "bob", "t2", "2025-02", 1, d(4))
	h := newRouter(report.NewService(ms))

	rec := get(t, h, "/api/v1/reports/periods/2025-01")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var sum report.PeriodSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.Period != "2025-01" {
		t.Errorf("period = %s", sum.Period)
	}
	if sum.Entries != 2 || !sum.Amount.Equal(d(17.5)) {
		t.Errorf("entries/amount = %d/%s, want 2/17.50", sum.Entries, sum.Amount)
	}
}

func TestHandleListCommissions_Filters(t *testing.T) {
	ms := store.NewMemoryStore()
	seedCredited(t, ms, "e1", "bob", "t1", "2025-01", 1, d(10))
	seedCredited(t, ms, "e2", "carol", "t1", "2025-01", 2, d(7.5))
	h := newRouter(report.NewService(ms))

	rec := get(t, h, "/api/v1/commissions?beneficiary_id=bob")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var entries []model.CommissionLedgerEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "e1" {
		t.Errorf("got %d entries, want just e1", len(entries))
	}

	// No match returns an empty array, never null.
	rec = get(t, h, "/api/v1/commissions?status=FAILED")
	if rec.Body.String() != "[]\n" {
		t.Errorf("body = %q, want empty JSON array", rec.Body.String())
	}
}

func TestHandleGetBatch(t *testing.T) {
	ms := store.NewMemoryStore()
	if err := ms.CreateBatchRun(context.Background(), &model.BatchRun{ID: "run-1", TargetPeriod: "2025-01", Status: model.BatchCompleted}); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	h := newRouter(report.NewService(ms))

	rec := get(t, h, "/api/v1/batches/run-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var run model.BatchRun
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.TargetPeriod != "2025-01" {
		t.Errorf("target period = %s", run.TargetPeriod)
	}

	if rec := get(t, h, "/api/v1/batches/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown batch status = %d, want 404", rec.Code)
	}
}

func TestHandleListBatches(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	ms.CreateBatchRun(ctx, &model.BatchRun{ID: "run-1", Status: model.BatchCompleted})
	ms.CreateBatchRun(ctx, &model.BatchRun{ID: "run-2", Status: model.BatchSkipped})
	h := newRouter(report.NewService(ms))

	rec := get(t, h, "/api/v1/batches")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var runs []model.BatchRun
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" {
		t.Errorf("got %v, want newest first", runs)
	}
}
