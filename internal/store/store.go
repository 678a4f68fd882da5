// Package store defines the persistence interface for the commission engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shivammacoss/profitVision-new-sub000/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrStalePeriod is returned when a volume increment arrives for an
	// accumulator that has already been processed or paid out.
	ErrStalePeriod = errors.New("store: accumulator period already processed")
)

// EntryFilter narrows ledger entry listings for reporting.
type EntryFilter struct {
	BeneficiaryID   string
	SourceID        string
	PeriodOrTrigger string
	Status          string
	BatchID         string
}

// LevelSummary aggregates credited commission per upline level.
type LevelSummary struct {
	Level   int             `json:"level"`
	Entries int             `json:"entries"`
	Amount  decimal.Decimal `json:"amount"`
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer for settings and wallets.
type Store interface {
	// --- Referral graph (read-only to the engine) ---

	// GetActiveReferralEdge returns the single ACTIVE edge for a child,
	// or ErrNotFound when the child has no active referrer.
	GetActiveReferralEdge(ctx context.Context, childUserID string) (*model.ReferralEdge, error)

	// IsUserActive reports whether a user's account status is ACTIVE.
	IsUserActive(ctx context.Context, userID string) (bool, error)

	// --- Volume accumulators ---

	// UpsertVolume atomically creates or increments the accumulator for
	// (userID, periodKey). Returns ErrStalePeriod if the accumulator is no
	// longer ACCUMULATING. The increment must not lose updates under
	// concurrent calls for the same key.
	UpsertVolume(ctx context.Context, userID, periodKey string, lots, notional decimal.Decimal, tradeID string) (*model.VolumeAccumulator, error)

	// ListAccumulators returns accumulators for a period with the given
	// status and totalLots >= minLots.
	ListAccumulators(ctx context.Context, periodKey, status string, minLots decimal.Decimal) ([]model.VolumeAccumulator, error)

	// MarkAccumulatorProcessed transitions an accumulator to PROCESSED and
	// stamps it with the consuming batch run's id.
	MarkAccumulatorProcessed(ctx context.Context, userID, periodKey, batchID string) error

	// GetAccumulator retrieves one accumulator by key.
	GetAccumulator(ctx context.Context, userID, periodKey string) (*model.VolumeAccumulator, error)

	// --- Commission ledger ---

	// InsertLedgerEntry inserts an entry if no entry with the same
	// (beneficiary, source, periodOrTrigger, level) tuple exists. Returns
	// (true, nil) on insert and (false, nil) when the tuple is already
	// present — the caller treats the latter as already-processed.
	InsertLedgerEntry(ctx context.Context, e *model.CommissionLedgerEntry) (inserted bool, err error)

	// HasEntriesForSource reports whether any ledger entry exists for a
	// source user, at any level.
	HasEntriesForSource(ctx context.Context, sourceID string) (bool, error)

	// GetLedgerEntry retrieves one entry by id.
	GetLedgerEntry(ctx context.Context, id string) (*model.CommissionLedgerEntry, error)

	// ListLedgerEntries returns entries matching the filter, oldest first.
	ListLedgerEntries(ctx context.Context, f EntryFilter) ([]model.CommissionLedgerEntry, error)

	// MarkEntryCredited transitions PENDING → CREDITED.
	MarkEntryCredited(ctx context.Context, id string, at time.Time) error

	// MarkEntryFailed transitions an entry to FAILED with an error message.
	MarkEntryFailed(ctx context.Context, id, msg string) error

	// MarkEntryReversed transitions an entry to the terminal REVERSED state
	// with actor, reason, and timestamp.
	MarkEntryReversed(ctx context.Context, id, actorID, reason string, at time.Time) error

	// SummarizeByLevel aggregates credited entries per level, optionally
	// scoped to one beneficiary and/or one period-or-trigger.
	SummarizeByLevel(ctx context.Context, beneficiaryID, periodOrTrigger string) ([]LevelSummary, error)

	// --- Beneficiary wallets ---

	// CreditWallet atomically adds amount to a wallet's balance and
	// totalEarned, creating the wallet if absent.
	CreditWallet(ctx context.Context, userID string, amount decimal.Decimal) error

	// DebitWallet atomically subtracts amount from a wallet's balance and
	// totalEarned. No overdraft check: reversals may bring a wallet back
	// below its prior state.
	DebitWallet(ctx context.Context, userID string, amount decimal.Decimal) error

	// GetWallet retrieves a wallet, returning a zero-balance wallet when
	// none has been created yet.
	GetWallet(ctx context.Context, userID string) (*model.BeneficiaryWallet, error)

	// --- Batch runs ---

	// CreateBatchRun persists a new run record.
	CreateBatchRun(ctx context.Context, run *model.BatchRun) error

	// UpdateBatchRun overwrites a run record with its final counts.
	UpdateBatchRun(ctx context.Context, run *model.BatchRun) error

	// GetBatchRun retrieves one run by id.
	GetBatchRun(ctx context.Context, id string) (*model.BatchRun, error)

	// ListBatchRuns returns runs, newest first.
	ListBatchRuns(ctx context.Context) ([]model.BatchRun, error)

	// --- Settings ---

	// GetSettings returns the current rate table and mode configuration.
	GetSettings(ctx context.Context) (*model.Settings, error)

	// SetLastProcessedPeriod updates the last-processed-period marker and
	// last-run timestamp after a batch run settles.
	SetLastProcessedPeriod(ctx context.Context, periodKey string, at time.Time) error
}
