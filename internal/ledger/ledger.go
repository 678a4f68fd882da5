// Package ledger is the shared posting primitive used by both commission
// distributors. It is the only code that moves money: every wallet
// credit/debit is paired 1:1 with a ledger entry state transition.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shivammacoss/profitVision-new-sub000/internal/model"
	"github.com/shivammacoss/profitVision-new-sub000/internal/store"
)

// ErrAlreadyReversed is returned when reversing an entry that is already
// in the terminal REVERSED state.
var ErrAlreadyReversed = errors.New("ledger: entry already reversed")

// Ledger pairs wallet mutations with ledger entry transitions. Atomicity of
// the individual wallet mutation comes from the store (single conditional
// increment in PostgreSQL, mutex in memory).
type Ledger struct {
	store store.Store
	now   func() time.Time
}

// New creates a ledger over the given store. now is injectable for tests;
// pass nil for the real clock.
func New(st store.Store, now func() time.Time) *Ledger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Ledger{store: st, now: now}
}

// Credit moves a PENDING entry's amount into the beneficiary wallet and
// transitions the entry to CREDITED. If the wallet update fails after the
// entry was created, the entry is marked FAILED with the error message so
// reconciliation can find it — the money is never silently lost.
func (l *Ledger) Credit(ctx context.Context, e *model.CommissionLedgerEntry) error {
	if err := l.store.CreditWallet(ctx, e.BeneficiaryID, e.Amount); err != nil {
		if markErr := l.store.MarkEntryFailed(ctx, e.ID, err.Error()); markErr != nil {
			slog.Error("entry left PENDING after wallet credit failure",
				"entry", e.ID, "credit_err", err, "mark_err", markErr)
		}
		return fmt.Errorf("credit wallet %s: %w", e.BeneficiaryID, err)
	}

	if err := l.store.MarkEntryCredited(ctx, e.ID, l.now()); err != nil {
		return fmt.Errorf("mark entry %s credited: %w", e.ID, err)
	}
	e.Status = model.EntryCredited
	return nil
}

// Reverse debits the beneficiary wallet by the entry's amount (balance and
// totalEarned both decrease) and transitions the entry to REVERSED. This is
// the only sanctioned way to undo a credit; entries are never deleted.
func (l *Ledger) Reverse(ctx context.Context, entryID, actorID, reason string) (*model.CommissionLedgerEntry, error) {
	e, err := l.store.GetLedgerEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if e.Status == model.EntryReversed {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyReversed, entryID)
	}

	// Only settled entries moved money; PENDING/FAILED entries just flip
	// state without a debit.
	if e.Status == model.EntryCredited {
		if err := l.store.DebitWallet(ctx, e.BeneficiaryID, e.Amount); err != nil {
			return nil, fmt.Errorf("debit wallet %s: %w", e.BeneficiaryID, err)
		}
	}

	at := l.now()
	if err := l.store.MarkEntryReversed(ctx, entryID, actorID, reason, at); err != nil {
		return nil, fmt.Errorf("mark entry %s reversed: %w", entryID, err)
	}

	slog.Info("commission reversed",
		"entry", entryID,
		"beneficiary", e.BeneficiaryID,
		"amount", e.Amount.String(),
		"actor", actorID,
		"reason", reason,
	)

	return l.store.GetLedgerEntry(ctx, entryID)
}
