package commission

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/shivammacoss/profitVision-new-sub000/internal/ledger"
	"github.com/shivammacoss/profitVision-new-sub000/internal/model"
	"github.com/shivammacoss/profitVision-new-sub000/internal/period"
	"github.com/shivammacoss/profitVision-new-sub000/internal/store"
	"github.com/shivammacoss/profitVision-new-sub000/internal/volume"
)

// --- Request/Response types ---

// TradeClosedRequest is the JSON body for POST /events/trade-closed,
// delivered by the trading subsystem as an already-validated fact.
type TradeClosedRequest struct {
	UserID       string          `json:"user_id"`
	Symbol       string          `json:"symbol"`
	QuantityLots decimal.Decimal `json:"quantity_lots"`
	Notional     decimal.Decimal `json:"notional"`
	TradeID      string          `json:"trade_id"`
	ClosedAt     time.Time       `json:"closed_at"`
}

// UserActivatedRequest is the JSON body for POST /events/user-activated.
type UserActivatedRequest struct {
	UserID  string `json:"user_id"`
	Trigger string `json:"trigger"`
}

// RunPayoutRequest is the JSON body for POST /payouts/run. TargetPeriod is
// optional; empty means the previous calendar month.
type RunPayoutRequest struct {
	TargetPeriod string `json:"target_period,omitempty"`
}

// ReverseRequest is the JSON body for POST /commissions/{entryID}/reverse.
type ReverseRequest struct {
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason"`
}

// --- HTTP Handlers ---

// HandleTradeClosed handles POST /api/v1/events/trade-closed.
func (s *Service) HandleTradeClosed(w http.ResponseWriter, r *http.Request) {
	var req TradeClosedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.TradeID == "" {
		writeError(w, "user_id and trade_id are required", http.StatusBadRequest)
		return
	}
	if req.ClosedAt.IsZero() {
		writeError(w, "closed_at is required", http.StatusBadRequest)
		return
	}

	acc, err := s.recorder.RecordVolume(r.Context(), req.UserID, req.QuantityLots, req.Notional, req.TradeID, req.ClosedAt)
	if err != nil {
		switch {
		case errors.Is(err, volume.ErrNegativeVolume):
			writeError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, store.ErrStalePeriod):
			writeError(w, "period already processed, late fact rejected", http.StatusConflict)
		default:
			writeError(w, "failed to record volume", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, acc)
}

// HandleUserActivated handles POST /api/v1/events/user-activated.
// Declined distributions (feature disabled, no upline, already processed)
// return 200 with processed=false — they are outcomes, not errors.
func (s *Service) HandleUserActivated(w http.ResponseWriter, r *http.Request) {
	var req UserActivatedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if !model.ValidTrigger(req.Trigger) {
		writeError(w, "unknown activation trigger: "+req.Trigger, http.StatusBadRequest)
		return
	}

	result, err := s.DistributeActivation(r.Context(), req.UserID, req.Trigger)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleRunPayout handles POST /api/v1/payouts/run, the scheduler entry
// point. A rerun of a settled period returns the SKIPPED run with 200.
func (s *Service) HandleRunPayout(w http.ResponseWriter, r *http.Request) {
	var req RunPayoutRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	run, err := s.RunMonthlyPayout(r.Context(), req.TargetPeriod)
	if err != nil {
		if errors.Is(err, period.ErrInvalidKey) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// HandleReverse handles POST /api/v1/commissions/{entryID}/reverse.
func (s *Service) HandleReverse(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryID")

	var req ReverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ActorID == "" || req.Reason == "" {
		writeError(w, "actor_id and reason are required", http.StatusBadRequest)
		return
	}

	entry, err := s.ReverseCommission(r.Context(), entryID, req.ActorID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, "entry not found", http.StatusNotFound)
		case errors.Is(err, ledger.ErrAlreadyReversed):
			writeError(w, err.Error(), http.StatusConflict)
		default:
			writeError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
