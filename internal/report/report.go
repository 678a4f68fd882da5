// Package report provides the read-only admin views over commission ledger
// entries and batch runs. It consumes core data but never produces it.
package report

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/shivammacoss/profitVision-new-sub000/internal/model"
	"github.com/shivammacoss/profitVision-new-sub000/internal/store"
)

// Service answers admin reporting queries.
type Service struct {
	store store.Store
}

// NewService creates a reporting service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// BeneficiarySummary is the per-beneficiary commission overview: current
// wallet state plus credited totals broken down by upline level.
type BeneficiarySummary struct {
	UserID      string               `json:"user_id"`
	Balance     decimal.Decimal      `json:"balance"`
	TotalEarned decimal.Decimal      `json:"total_earned"`
	ByLevel     []store.LevelSummary `json:"by_level"`
}

// PeriodSummary aggregates credited commission for one period by level.
type PeriodSummary struct {
	Period  string               `json:"period"`
	Entries int                  `json:"entries"`
	Amount  decimal.Decimal      `json:"amount"`
	ByLevel []store.LevelSummary `json:"by_level"`
}

// HandleBeneficiarySummary handles GET /api/v1/reports/beneficiaries/{userID}.
func (s *Service) HandleBeneficiarySummary(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	wallet, err := s.store.GetWallet(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to load wallet", http.StatusInternalServerError)
		return
	}

	byLevel, err := s.store.SummarizeByLevel(r.Context(), userID, "")
	if err != nil {
		writeError(w, "failed to summarize commissions", http.StatusInternalServerError)
		return
	}
	if byLevel == nil {
		byLevel = []store.LevelSummary{}
	}

	writeJSON(w, http.StatusOK, BeneficiarySummary{
		UserID:      userID,
		Balance:     wallet.Balance,
		TotalEarned: wallet.TotalEarned,
		ByLevel:     byLevel,
	})
}

// HandlePeriodSummary handles GET /api/v1/reports/periods/{period}.
func (s *Service) HandlePeriodSummary(w http.ResponseWriter, r *http.Request) {
	periodKey := chi.URLParam(r, "period")

	byLevel, err := s.store.SummarizeByLevel(r.Context(), "", periodKey)
	if err != nil {
		writeError(w, "failed to summarize period", http.StatusInternalServerError)
		return
	}
	if byLevel == nil {
		byLevel = []store.LevelSummary{}
	}

	summary := PeriodSummary{Period: periodKey, ByLevel: byLevel}
	for _, ls := range byLevel {
		summary.Entries += ls.Entries
		summary.Amount = summary.Amount.Add(ls.Amount)
	}

	writeJSON(w, http.StatusOK, summary)
}

// HandleListCommissions handles GET /api/v1/commissions with optional
// beneficiary_id, source_id, period, status, and batch_id query filters.
// Admin views rely on the status filter to separate PENDING (awaiting
// crediting), CREDITED, FAILED (needs reconciliation), and REVERSED.
func (s *Service) HandleListCommissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := s.store.ListLedgerEntries(r.Context(), store.EntryFilter{
		BeneficiaryID:   q.Get("beneficiary_id"),
		SourceID:        q.Get("source_id"),
		PeriodOrTrigger: q.Get("period"),
		Status:          q.Get("status"),
		BatchID:         q.Get("batch_id"),
	})
	if err != nil {
		writeError(w, "failed to list commissions", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.CommissionLedgerEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

// HandleListBatches handles GET /api/v1/batches.
func (s *Service) HandleListBatches(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListBatchRuns(r.Context())
	if err != nil {
		writeError(w, "failed to list batch runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []model.BatchRun{}
	}

	writeJSON(w, http.StatusOK, runs)
}

// HandleGetBatch handles GET /api/v1/batches/{batchID}.
func (s *Service) HandleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	run, err := s.store.GetBatchRun(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "batch run not found", http.StatusNotFound)
			return
		}
		writeError(w, "failed to load batch run", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
