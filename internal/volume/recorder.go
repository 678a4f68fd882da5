// Package volume maintains the per-trader, per-period aggregate of closed
// trading volume consumed by the monthly payout engine.
package volume

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shivammacoss/profitVision-new-sub000/internal/metrics"
	"github.com/shivammacoss/profitVision-new-sub000/internal/model"
	"github.com/shivammacoss/profitVision-new-sub000/internal/period"
	"github.com/shivammacoss/profitVision-new-sub000/internal/store"
)

// ErrNegativeVolume is returned for trade facts with negative lot volume.
// The trading subsystem delivers validated facts; a negative value here is
// an integrity failure.
var ErrNegativeVolume = errors.New("volume: negative lot volume")

// Recorder accumulates trade facts into volume accumulators.
type Recorder struct {
	store store.Store
}

// NewRecorder creates a recorder backed by the given store.
func NewRecorder(st store.Store) *Recorder {
	return &Recorder{store: st}
}

// RecordVolume applies one closed-trade fact to the trader's accumulator
// for the period containing closedAt. The period key is derived from the
// caller-supplied trade timestamp, never from wall time here. The store's
// upsert is a single atomic increment, so concurrent trade closings for
// the same (user, period) never lose updates.
//
// Facts that arrive after the period's accumulator has been consumed by a
// payout run are rejected with store.ErrStalePeriod.
func (r *Recorder) RecordVolume(ctx context.Context, userID string, lots, notional decimal.Decimal, tradeID string, closedAt time.Time) (*model.VolumeAccumulator, error) {
	if lots.IsNegative() {
		return nil, fmt.Errorf("%w: %s lots for trade %s", ErrNegativeVolume, lots, tradeID)
	}

	periodKey := period.FromTime(closedAt)
	acc, err := r.store.UpsertVolume(ctx, userID, periodKey, lots, notional, tradeID)
	if err != nil {
		if errors.Is(err, store.ErrStalePeriod) {
			slog.Warn("late trade fact for closed period",
				"user", userID, "period", periodKey, "trade", tradeID)
		}
		return nil, err
	}

	metrics.VolumeRecorded.Add(lotsFloat(lots))
	slog.Debug("volume recorded",
		"user", userID,
		"period", periodKey,
		"trade", tradeID,
		"lots", lots.String(),
		"total_lots", acc.TotalLots.String(),
	)
	return acc, nil
}

// lotsFloat converts lots for the metrics counter only; ledger math stays
// in decimal.
func lotsFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
