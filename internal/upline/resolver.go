// Package upline resolves a user's referral ancestry: the ordered chain of
// users who directly or transitively referred them, nearest-first.
//
// A missing or short chain is a valid result, not an error. The walk is
// bounded by maxLevels, which also caps the damage of a pathological cycle;
// on top of that the resolver tracks visited ids and aborts with ErrCycle
// if any id repeats, since cyclic edges would mean corrupted referral data.
package upline

import (
	"context"
	"errors"
	"fmt"

	"github.com/shivammacoss/profitVision-new-sub000/internal/model"
	"github.com/shivammacoss/profitVision-new-sub000/internal/store"
)

// ErrCycle is returned when the referral chain revisits a user id.
// Cycles must be prevented by referral management; finding one here is an
// integrity failure, never silently truncated.
var ErrCycle = errors.New("upline: referral cycle detected")

// Resolver walks the referral-parent chain.
type Resolver struct {
	store store.Store
}

// NewResolver creates a resolver backed by the given store.
func NewResolver(st store.Store) *Resolver {
	return &Resolver{store: st}
}

// Resolve returns up to maxLevels (beneficiary, level) pairs for userID,
// level 1 being the direct referrer. The walk stops early when a user has
// no ACTIVE referral edge or the beneficiary's own account is not ACTIVE.
func (r *Resolver) Resolve(ctx context.Context, userID string, maxLevels int) ([]model.UplineEntry, error) {
	if maxLevels <= 0 {
		return nil, nil
	}

	seen := map[string]bool{userID: true}
	chain := make([]model.UplineEntry, 0, maxLevels)
	currentID := userID

	for level := 1; level <= maxLevels; level++ {
		edge, err := r.store.GetActiveReferralEdge(ctx, currentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return chain, nil
			}
			return nil, fmt.Errorf("resolve upline for %s: %w", userID, err)
		}

		beneficiary := edge.BeneficiaryUserID
		if seen[beneficiary] {
			return nil, fmt.Errorf("%w: %s reappears in chain of %s", ErrCycle, beneficiary, userID)
		}
		seen[beneficiary] = true

		active, err := r.store.IsUserActive(ctx, beneficiary)
		if err != nil {
			return nil, fmt.Errorf("resolve upline for %s: %w", userID, err)
		}
		if !active {
			return chain, nil
		}

		chain = append(chain, model.UplineEntry{BeneficiaryID: beneficiary, Level: level})
		currentID = beneficiary
	}

	return chain, nil
}
