// Package commission implements the two commission distributors: instant
// per-activation credits and monthly batch payouts from aggregated trading
// volume. Both post through the ledger primitive, so every credit is
// individually reversible and never applied twice.
package commission

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shivammacoss/profitVision-new-sub000/internal/ledger"
	"github.com/shivammacoss/profitVision-new-sub000/internal/metrics"
	"github.com/shivammacoss/profitVision-new-sub000/internal/model"
	"github.com/shivammacoss/profitVision-new-sub000/internal/store"
	"github.com/shivammacoss/profitVision-new-sub000/internal/upline"
	"github.com/shivammacoss/profitVision-new-sub000/internal/volume"
)

// Result reasons for distributions that were declined rather than failed.
const (
	ReasonDisabled         = "instant mode disabled"
	ReasonTriggerMismatch  = "activation trigger does not match configured trigger"
	ReasonAlreadyProcessed = "already processed"
	ReasonNoUpline         = "no upline found"
)

// DistributionResult reports the outcome of one activation distribution.
// Processed=false with a Reason is an expected business outcome, not an
// error.
type DistributionResult struct {
	Processed          bool                    `json:"processed"`
	Reason             string                  `json:"reason,omitempty"`
	CommissionsCreated int                     `json:"commissions_created"`
	TotalDistributed   decimal.Decimal         `json:"total_distributed"`
	PerLevel           map[int]decimal.Decimal `json:"per_level,omitempty"`
}

// Service wires the upline resolver, volume recorder, and ledger primitive
// into the two distribution flows. Settings are fetched from the store once
// per operation and threaded through as a parameter.
type Service struct {
	store    store.Store
	resolver *upline.Resolver
	recorder *volume.Recorder
	ledger   *ledger.Ledger
	hub      *Hub // optional event stream for admin dashboards
	now      func() time.Time
}

// NewService creates a commission service. Pass nil for hub if event
// broadcasting is not needed and nil for now to use the real clock.
func NewService(st store.Store, hub *Hub, now func() time.Time) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:    st,
		resolver: upline.NewResolver(st),
		recorder: volume.NewRecorder(st),
		ledger:   ledger.New(st, now),
		hub:      hub,
		now:      now,
	}
}

// Recorder exposes the volume recorder for the trade-fact intake path.
func (s *Service) Recorder() *volume.Recorder {
	return s.recorder
}

// DistributeActivation distributes flat per-level amounts up the newly
// activated user's upline, exactly once per user. Preconditions are checked
// in order; the first failing one short-circuits with Processed=false.
func (s *Service) DistributeActivation(ctx context.Context, newUserID, trigger string) (*DistributionResult, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if !settings.InstantEnabled {
		return &DistributionResult{Reason: ReasonDisabled}, nil
	}
	if settings.InstantTrigger != "" && settings.InstantTrigger != trigger {
		return &DistributionResult{Reason: ReasonTriggerMismatch}, nil
	}

	// Fast path for retried activations. The composite uniqueness of the
	// ledger insert below remains the authoritative guard.
	exists, err := s.store.HasEntriesForSource(ctx, newUserID)
	if err != nil {
		return nil, fmt.Errorf("idempotency pre-check for %s: %w", newUserID, err)
	}
	if exists {
		return &DistributionResult{Reason: ReasonAlreadyProcessed}, nil
	}

	chain, err := s.resolver.Resolve(ctx, newUserID, settings.InstantMaxLevels)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return &DistributionResult{Reason: ReasonNoUpline}, nil
	}

	result := &DistributionResult{
		Processed: true,
		PerLevel:  make(map[int]decimal.Decimal),
	}

	for _, step := range chain {
		amount := settings.InstantAmount(step.Level)
		if amount.LessThanOrEqual(decimal.Zero) {
			continue
		}

		entry := &model.CommissionLedgerEntry{
			ID:                uuid.New().String(),
			BeneficiaryID:     step.BeneficiaryID,
			SourceID:          newUserID,
			PeriodOrTrigger:   trigger,
			Level:             step.Level,
			Mode:              model.ModeInstant,
			Rate:              amount,
			Amount:            amount,
			Status:            model.EntryPending,
			ActivationTrigger: trigger,
			CreatedAt:         s.now(),
		}

		inserted, err := s.store.InsertLedgerEntry(ctx, entry)
		if err != nil {
			return nil, fmt.Errorf("insert instant entry level %d for %s: %w", step.Level, newUserID, err)
		}
		if !inserted {
			// A concurrent or retried call already created this level.
			slog.Debug("instant entry already exists, skipping",
				"beneficiary", step.BeneficiaryID, "source", newUserID, "level", step.Level)
			metrics.DuplicateSkips.WithLabelValues(model.ModeInstant).Inc()
			continue
		}
		metrics.EntriesCreated.WithLabelValues(model.ModeInstant).Inc()

		if settings.InstantAutoCredit {
			if err := s.ledger.Credit(ctx, entry); err != nil {
				// Entry is marked FAILED and discoverable; surface the
				// failure to the caller of this activation.
				metrics.CreditFailures.Inc()
				return nil, err
			}
			amountF, _ := amount.Float64()
			metrics.AmountDistributed.WithLabelValues(model.ModeInstant).Add(amountF)
		}

		result.CommissionsCreated++
		result.TotalDistributed = result.TotalDistributed.Add(amount)
		result.PerLevel[step.Level] = amount

		s.broadcast(Event{
			Type:          EventCommissionCreated,
			Mode:          model.ModeInstant,
			BeneficiaryID: step.BeneficiaryID,
			SourceID:      newUserID,
			Level:         step.Level,
			Amount:        amount.StringFixed(2),
			Trigger:       trigger,
		})
	}

	slog.Info("activation distributed",
		"user", newUserID,
		"trigger", trigger,
		"levels", result.CommissionsCreated,
		"total", result.TotalDistributed.String(),
	)

	return result, nil
}

// ReverseCommission undoes a single credit: the beneficiary wallet is
// debited by the entry's amount and the entry moves to the terminal
// REVERSED state.
func (s *Service) ReverseCommission(ctx context.Context, entryID, actorID, reason string) (*model.CommissionLedgerEntry, error) {
	e, err := s.ledger.Reverse(ctx, entryID, actorID, reason)
	if err != nil {
		return nil, err
	}

	metrics.Reversals.Inc()
	s.broadcast(Event{
		Type:          EventCommissionReversed,
		Mode:          e.Mode,
		BeneficiaryID: e.BeneficiaryID,
		SourceID:      e.SourceID,
		Level:         e.Level,
		Amount:        e.Amount.StringFixed(2),
	})
	return e, nil
}

func (s *Service) broadcast(ev Event) {
	if s.hub != nil {
		s.hub.Broadcast(ev)
	}
}
