package commission

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shivammacoss/profitVision-new-sub000/internal/metrics"
	"github.com/shivammacoss/profitVision-new-sub000/internal/model"
	"github.com/shivammacoss/profitVision-new-sub000/internal/period"
	"github.com/shivammacoss/profitVision-new-sub000/internal/store"
)

// Skip reasons for payout runs that performed no work.
const (
	ReasonBatchDisabled   = "batch mode disabled"
	ReasonPeriodProcessed = "already processed"
)

// RunMonthlyPayout executes one payout run for targetPeriod (empty =
// previous calendar month). The run proceeds through selection,
// distribution (create PENDING entries), crediting (move money), and
// settling (advance the last-processed-period marker).
//
// Distribution and crediting are deliberately separate phases: entry
// creation is idempotent and cheap to re-run, so a crash between the two
// never leaves the system ambiguous — PENDING entries stay discoverable
// and creditable. Each trader is processed independently; one trader's
// failure lands in the run's error list and the batch continues.
//
// A rerun for an already-settled period is a no-op reported as a SKIPPED
// run, never a double payout.
func (s *Service) RunMonthlyPayout(ctx context.Context, targetPeriod string) (*model.BatchRun, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if targetPeriod == "" {
		targetPeriod = period.Previous(s.now())
	}
	if err := period.Validate(targetPeriod); err != nil {
		return nil, err
	}

	run := &model.BatchRun{
		ID:           uuid.New().String(),
		TargetPeriod: targetPeriod,
		Status:       model.BatchRunning,
		StartedAt:    s.now(),
	}

	if !settings.BatchEnabled {
		return s.skipRun(ctx, run, ReasonBatchDisabled)
	}
	if settings.LastProcessedPeriod == targetPeriod {
		return s.skipRun(ctx, run, ReasonPeriodProcessed)
	}

	if err := s.store.CreateBatchRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create batch run: %w", err)
	}
	start := time.Now()
	slog.Info("payout run started", "run", run.ID, "period", targetPeriod)

	// SELECTING
	accums, err := s.store.ListAccumulators(ctx, targetPeriod, model.AccumStatusAccumulating, settings.MinLots)
	if err != nil {
		return nil, fmt.Errorf("select accumulators for %s: %w", targetPeriod, err)
	}
	run.TradersSelected = len(accums)

	// DISTRIBUTING
	cancelled := false
	for _, acc := range accums {
		if ctx.Err() != nil {
			// Cancellation between trader iterations: already-created
			// entries are idempotent, so a rerun resumes cleanly as long
			// as the period marker is not advanced.
			cancelled = true
			break
		}
		s.distributeTrader(ctx, run, settings, acc)
	}

	// CREDITING
	if !cancelled {
		pending, err := s.store.ListLedgerEntries(ctx, store.EntryFilter{
			BatchID: run.ID,
			Status:  model.EntryPending,
		})
		if err != nil {
			return nil, fmt.Errorf("list pending entries for run %s: %w", run.ID, err)
		}
		for i := range pending {
			if ctx.Err() != nil {
				cancelled = true
				break
			}
			e := &pending[i]
			if err := s.ledger.Credit(ctx, e); err != nil {
				// Entry is FAILED with the error message, not stuck in
				// PENDING; surfaced in reporting for reconciliation.
				metrics.CreditFailures.Inc()
				run.EntriesFailed++
				run.Errors = append(run.Errors, model.BatchError{
					SourceID: e.SourceID,
					Message:  fmt.Sprintf("credit level %d to %s: %v", e.Level, e.BeneficiaryID, err),
				})
				continue
			}
			run.EntriesCredited++
			run.TotalAmount = run.TotalAmount.Add(e.Amount)
			amountF, _ := e.Amount.Float64()
			metrics.AmountDistributed.WithLabelValues(model.ModeBatch).Add(amountF)

			s.broadcast(Event{
				Type:          EventCommissionCredited,
				Mode:          model.ModeBatch,
				BeneficiaryID: e.BeneficiaryID,
				SourceID:      e.SourceID,
				Level:         e.Level,
				Amount:        e.Amount.StringFixed(2),
				Period:        targetPeriod,
				BatchID:       run.ID,
			})
		}
	}

	// SETTLING — skipped on cancellation so a rerun can resume the period.
	if cancelled {
		run.Errors = append(run.Errors, model.BatchError{Message: "run cancelled before settling"})
	} else if err := s.store.SetLastProcessedPeriod(ctx, targetPeriod, s.now()); err != nil {
		run.Errors = append(run.Errors, model.BatchError{Message: fmt.Sprintf("settle period marker: %v", err)})
	}

	run.Status = model.BatchCompleted
	if len(run.Errors) > 0 {
		run.Status = model.BatchCompletedWithError
	}
	finished := s.now()
	run.FinishedAt = &finished

	if err := s.store.UpdateBatchRun(ctx, run); err != nil {
		slog.Error("failed to persist batch run", "run", run.ID, "err", err)
	}

	metrics.BatchRuns.WithLabelValues(run.Status).Inc()
	metrics.BatchRunDuration.Observe(time.Since(start).Seconds())
	slog.Info("payout run finished",
		"run", run.ID,
		"period", targetPeriod,
		"status", run.Status,
		"traders", run.TradersProcessed,
		"created", run.EntriesCreated,
		"credited", run.EntriesCredited,
		"total", run.TotalAmount.String(),
		"errors", len(run.Errors),
	)

	if cancelled {
		return run, ctx.Err()
	}
	return run, nil
}

// distributeTrader creates PENDING entries for one trader's upline. Errors
// are recorded into the run and never abort the batch. The accumulator is
// marked PROCESSED even when some levels failed, so a broken trader cannot
// be reprocessed forever; missed levels stay visible in the error list.
func (s *Service) distributeTrader(ctx context.Context, run *model.BatchRun, settings *model.Settings, acc model.VolumeAccumulator) {
	chain, err := s.resolver.Resolve(ctx, acc.UserID, settings.BatchMaxLevels)
	if err != nil {
		run.Errors = append(run.Errors, model.BatchError{
			SourceID: acc.UserID,
			Message:  fmt.Sprintf("resolve upline: %v", err),
		})
		return
	}

	for _, step := range chain {
		rate := settings.BatchRate(step.Level)
		if rate.LessThanOrEqual(decimal.Zero) {
			continue
		}
		amount := acc.TotalLots.Mul(rate).Round(2)
		if amount.LessThanOrEqual(decimal.Zero) {
			continue
		}

		entry := &model.CommissionLedgerEntry{
			ID:              uuid.New().String(),
			BeneficiaryID:   step.BeneficiaryID,
			SourceID:        acc.UserID,
			PeriodOrTrigger: acc.PeriodKey,
			Level:           step.Level,
			Mode:            model.ModeBatch,
			Rate:            rate,
			Amount:          amount,
			Status:          model.EntryPending,
			BatchID:         run.ID,
			CreatedAt:       s.now(),
		}

		inserted, err := s.store.InsertLedgerEntry(ctx, entry)
		if err != nil {
			run.Errors = append(run.Errors, model.BatchError{
				SourceID: acc.UserID,
				Message:  fmt.Sprintf("insert level %d for %s: %v", step.Level, step.BeneficiaryID, err),
			})
			continue
		}
		if !inserted {
			// Created by a prior partial run; this is what makes re-running
			// a failed batch safe.
			slog.Debug("batch entry already exists, skipping",
				"beneficiary", step.BeneficiaryID, "source", acc.UserID,
				"period", acc.PeriodKey, "level", step.Level)
			metrics.DuplicateSkips.WithLabelValues(model.ModeBatch).Inc()
			run.DuplicatesSkipped++
			continue
		}
		metrics.EntriesCreated.WithLabelValues(model.ModeBatch).Inc()
		run.EntriesCreated++
	}

	if err := s.store.MarkAccumulatorProcessed(ctx, acc.UserID, acc.PeriodKey, run.ID); err != nil {
		run.Errors = append(run.Errors, model.BatchError{
			SourceID: acc.UserID,
			Message:  fmt.Sprintf("mark accumulator processed: %v", err),
		})
		return
	}
	run.TradersProcessed++
}

// skipRun finalizes a run that performed no work.
func (s *Service) skipRun(ctx context.Context, run *model.BatchRun, reason string) (*model.BatchRun, error) {
	run.Status = model.BatchSkipped
	run.Reason = reason
	finished := s.now()
	run.FinishedAt = &finished

	// Skipped runs are persisted too; a scheduler double-fire should be
	// visible in the audit trail.
	if err := s.store.CreateBatchRun(ctx, run); err != nil {
		slog.Error("failed to persist skipped run", "run", run.ID, "err", err)
	}

	metrics.BatchRuns.WithLabelValues(model.BatchSkipped).Inc()
	slog.Info("payout run skipped", "run", run.ID, "period", run.TargetPeriod, "reason", reason)
	return run, nil
}
