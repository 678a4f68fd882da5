// Package model defines the core domain types shared across the commission
// engine. All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Referral edge status.
const (
	EdgeActive   = "ACTIVE"
	EdgeInactive = "INACTIVE"
)

// ReferralEdge records that a child user was referred by a beneficiary.
// Created by referral management (external); read-only to this engine.
// At most one ACTIVE edge exists per child.
type ReferralEdge struct {
	ChildUserID       string `json:"child_user_id" db:"child_user_id"`
	BeneficiaryUserID string `json:"beneficiary_user_id" db:"beneficiary_user_id"`
	Status            string `json:"status" db:"status"` // "ACTIVE" or "INACTIVE"
}

// UplineEntry is one step of a resolved referral ancestry chain.
// Level 1 is the direct referrer.
type UplineEntry struct {
	BeneficiaryID string `json:"beneficiary_id"`
	Level         int    `json:"level"`
}

// Volume accumulator lifecycle.
const (
	AccumStatusAccumulating = "ACCUMULATING"
	AccumStatusProcessed    = "PROCESSED"
	AccumStatusPaid         = "PAID"
)

// VolumeAccumulator is the running per-user, per-period aggregate of closed
// trading volume. Keyed by (UserID, PeriodKey). Never deleted; once a batch
// run consumes it the status moves to PROCESSED and further increments are
// rejected.
type VolumeAccumulator struct {
	UserID              string          `json:"user_id" db:"user_id"`
	PeriodKey           string          `json:"period_key" db:"period_key"` // "YYYY-MM"
	TotalLots           decimal.Decimal `json:"total_lots" db:"total_lots"`
	TotalTrades         int             `json:"total_trades" db:"total_trades"`
	TotalVolumeNotional decimal.Decimal `json:"total_volume_notional" db:"total_volume_notional"`
	Status              string          `json:"status" db:"status"`
	LastSourceFactID    string          `json:"last_source_fact_id" db:"last_source_fact_id"`
	BatchID             string          `json:"batch_id,omitempty" db:"batch_id"` // stamped when processed
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
}

// Commission ledger entry status.
const (
	EntryPending  = "PENDING"
	EntryCredited = "CREDITED"
	EntryFailed   = "FAILED"
	EntryReversed = "REVERSED"
)

// Commission modes.
const (
	ModeInstant = "INSTANT"
	ModeBatch   = "BATCH"
)

// CommissionLedgerEntry is one immutable record of a single
// beneficiary/source/level commission. The tuple
// (BeneficiaryID, SourceID, PeriodOrTrigger, Level) is unique — that
// uniqueness is the sole idempotency guard against double crediting.
// Entries are never deleted; REVERSED is terminal.
type CommissionLedgerEntry struct {
	ID                string          `json:"id" db:"id"`
	BeneficiaryID     string          `json:"beneficiary_id" db:"beneficiary_id"`
	SourceID          string          `json:"source_id" db:"source_id"` // trader (batch) or activated user (instant)
	PeriodOrTrigger   string          `json:"period_or_trigger" db:"period_or_trigger"`
	Level             int             `json:"level" db:"level"`
	Mode              string          `json:"mode" db:"mode"` // "INSTANT" or "BATCH"
	Rate              decimal.Decimal `json:"rate" db:"rate"`
	Amount            decimal.Decimal `json:"amount" db:"amount"`
	Status            string          `json:"status" db:"status"`
	BatchID           string          `json:"batch_id,omitempty" db:"batch_id"`                     // batch mode only
	ActivationTrigger string          `json:"activation_trigger,omitempty" db:"activation_trigger"` // instant mode only
	ErrorMessage      string          `json:"error_message,omitempty" db:"error_message"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	CreditedAt        *time.Time      `json:"credited_at,omitempty" db:"credited_at"`
	ReversedAt        *time.Time      `json:"reversed_at,omitempty" db:"reversed_at"`
	ReversedBy        string          `json:"reversed_by,omitempty" db:"reversed_by"`
	ReversalReason    string          `json:"reversal_reason,omitempty" db:"reversal_reason"`
}

// BeneficiaryWallet holds a referrer's commission balance. Mutated only
// through the ledger primitive's credit/debit operations, each paired 1:1
// with a ledger entry state transition.
type BeneficiaryWallet struct {
	UserID      string          `json:"user_id" db:"user_id"`
	Balance     decimal.Decimal `json:"balance" db:"balance"`
	TotalEarned decimal.Decimal `json:"total_earned" db:"total_earned"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Batch run status.
const (
	BatchRunning            = "RUNNING"
	BatchCompleted          = "COMPLETED"
	BatchCompletedWithError = "COMPLETED_WITH_ERRORS"
	BatchSkipped            = "SKIPPED" // period already processed
)

// BatchError records one trader whose distribution failed mid-run.
type BatchError struct {
	SourceID string `json:"source_id"`
	Message  string `json:"message"`
}

// BatchRun is the audit record of one execution of the monthly payout job.
// Immutable once the run completes.
type BatchRun struct {
	ID                string          `json:"id" db:"id"`
	TargetPeriod      string          `json:"target_period" db:"target_period"`
	Status            string          `json:"status" db:"status"`
	Reason            string          `json:"reason,omitempty" db:"reason"` // set when SKIPPED
	TradersSelected   int             `json:"traders_selected" db:"traders_selected"`
	TradersProcessed  int             `json:"traders_processed" db:"traders_processed"`
	EntriesCreated    int             `json:"entries_created" db:"entries_created"`
	DuplicatesSkipped int             `json:"duplicates_skipped" db:"duplicates_skipped"`
	EntriesCredited   int             `json:"entries_credited" db:"entries_credited"`
	EntriesFailed     int             `json:"entries_failed" db:"entries_failed"`
	TotalAmount       decimal.Decimal `json:"total_amount" db:"total_amount"`
	Errors            []BatchError    `json:"errors,omitempty" db:"errors"`
	StartedAt         time.Time       `json:"started_at" db:"started_at"`
	FinishedAt        *time.Time      `json:"finished_at,omitempty" db:"finished_at"`
}

// Activation triggers accepted from the identity subsystem.
const (
	TriggerRegistration = "REGISTRATION"
	TriggerFirstDeposit = "FIRST_DEPOSIT"
	TriggerFirstTrade   = "FIRST_TRADE"
	TriggerKYCApproved  = "KYC_APPROVED"
)

// ValidTrigger reports whether t is a known activation trigger.
func ValidTrigger(t string) bool {
	switch t {
	case TriggerRegistration, TriggerFirstDeposit, TriggerFirstTrade, TriggerKYCApproved:
		return true
	}
	return false
}

// Settings is the rate table and mode configuration, owned by the admin
// panel (external) and read-only here except for the last-processed-period
// marker. Fetched once per operation and threaded through as a parameter —
// never a module-level global.
type Settings struct {
	// Instant (per-activation) mode.
	InstantEnabled    bool                    `json:"instant_enabled"`
	InstantTrigger    string                  `json:"instant_trigger"` // required trigger; empty = any
	InstantMaxLevels  int                     `json:"instant_max_levels"`
	InstantAmounts    map[int]decimal.Decimal `json:"instant_amounts"` // level → flat amount
	InstantAutoCredit bool                    `json:"instant_auto_credit"`

	// Batch (monthly volume) mode.
	BatchEnabled   bool                    `json:"batch_enabled"`
	BatchMaxLevels int                     `json:"batch_max_levels"`
	BatchRates     map[int]decimal.Decimal `json:"batch_rates"` // level → per-lot rate
	MinLots        decimal.Decimal         `json:"min_lots"`    // selection threshold

	// Batch bookkeeping (read-write).
	LastProcessedPeriod string     `json:"last_processed_period"`
	LastBatchRunAt      *time.Time `json:"last_batch_run_at,omitempty"`
}

// InstantAmount returns the flat commission for a level, zero when the
// level is not configured.
func (s *Settings) InstantAmount(level int) decimal.Decimal {
	if a, ok := s.InstantAmounts[level]; ok {
		return a
	}
	return decimal.Zero
}

// BatchRate returns the per-lot rate for a level, zero when the level is
// not configured.
func (s *Settings) BatchRate(level int) decimal.Decimal {
	if r, ok := s.BatchRates[level]; ok {
		return r
	}
	return decimal.Zero
}
