package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shivammacoss/profitVision-new-sub000/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	edges    map[string]model.ReferralEdge // childUserID → active edge
	users    map[string]bool               // userID → account active
	accums   map[string]*model.VolumeAccumulator
	entries  []*model.CommissionLedgerEntry
	entryIdx map[string]*model.CommissionLedgerEntry // id → entry
	keys     map[string]bool                         // uniqueness tuple → exists
	wallets  map[string]*model.BeneficiaryWallet
	runs     map[string]*model.BatchRun
	runOrder []string
	settings model.Settings
}

// NewMemoryStore creates a new in-memory store with empty settings.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		edges:    make(map[string]model.ReferralEdge),
		users:    make(map[string]bool),
		accums:   make(map[string]*model.VolumeAccumulator),
		entryIdx: make(map[string]*model.CommissionLedgerEntry),
		keys:     make(map[string]bool),
		wallets:  make(map[string]*model.BeneficiaryWallet),
		runs:     make(map[string]*model.BatchRun),
	}
}

func accumKey(userID, periodKey string) string { return userID + "|" + periodKey }

func entryKey(beneficiaryID, sourceID, periodOrTrigger string, level int) string {
	return beneficiaryID + "|" + sourceID + "|" + periodOrTrigger + "|" + strconv.Itoa(level)
}

// --- Test fixtures ---

// SeedUser registers a user account with the given active flag.
func (s *MemoryStore) SeedUser(userID string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = active
}

// SeedReferral registers an ACTIVE referral edge child → beneficiary.
func (s *MemoryStore) SeedReferral(childUserID, beneficiaryUserID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[childUserID] = model.ReferralEdge{
		ChildUserID:       childUserID,
		BeneficiaryUserID: beneficiaryUserID,
		Status:            model.EdgeActive,
	}
}

// SeedSettings replaces the settings fixture.
func (s *MemoryStore) SeedSettings(st model.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = st
}

// --- Referral graph ---

func (s *MemoryStore) GetActiveReferralEdge(_ context.Context, childUserID string) (*model.ReferralEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.edges[childUserID]
	if !ok || e.Status != model.EdgeActive {
		return nil, ErrNotFound
	}
	copy := e
	return &copy, nil
}

func (s *MemoryStore) IsUserActive(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[userID], nil
}

// --- Volume accumulators ---

func (s *MemoryStore) UpsertVolume(_ context.Context, userID, periodKey string, lots, notional decimal.Decimal, tradeID string) (*model.VolumeAccumulator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := accumKey(userID, periodKey)
	acc, ok := s.accums[key]
	if !ok {
		acc = &model.VolumeAccumulator{
			UserID:              userID,
			PeriodKey:           periodKey,
			TotalLots:           lots,
			TotalTrades:         1,
			TotalVolumeNotional: notional,
			Status:              model.AccumStatusAccumulating,
			LastSourceFactID:    tradeID,
			UpdatedAt:           time.Now().UTC(),
		}
		s.accums[key] = acc
		copy := *acc
		return &copy, nil
	}

	if acc.Status != model.AccumStatusAccumulating {
		return nil, ErrStalePeriod
	}

	acc.TotalLots = acc.TotalLots.Add(lots)
	acc.TotalTrades++
	acc.TotalVolumeNotional = acc.TotalVolumeNotional.Add(notional)
	acc.LastSourceFactID = tradeID
	acc.UpdatedAt = time.Now().UTC()
	copy := *acc
	return &copy, nil
}

func (s *MemoryStore) ListAccumulators(_ context.Context, periodKey, status string, minLots decimal.Decimal) ([]model.VolumeAccumulator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.VolumeAccumulator
	for _, acc := range s.accums {
		if acc.PeriodKey != periodKey || acc.Status != status {
			continue
		}
		if acc.TotalLots.LessThan(minLots) {
			continue
		}
		out = append(out, *acc)
	}
	// Deterministic iteration order for the batch engine.
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemoryStore) MarkAccumulatorProcessed(_ context.Context, userID, periodKey, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accums[accumKey(userID, periodKey)]
	if !ok {
		return ErrNotFound
	}
	acc.Status = model.AccumStatusProcessed
	acc.BatchID = batchID
	acc.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) GetAccumulator(_ context.Context, userID, periodKey string) (*model.VolumeAccumulator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accums[accumKey(userID, periodKey)]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *acc
	return &copy, nil
}

// --- Commission ledger ---

func (s *MemoryStore) InsertLedgerEntry(_ context.Context, e *model.CommissionLedgerEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey(e.BeneficiaryID, e.SourceID, e.PeriodOrTrigger, e.Level)
	if s.keys[key] {
		return false, nil
	}
	s.keys[key] = true

	copy := *e
	s.entries = append(s.entries, &copy)
	s.entryIdx[e.ID] = &copy
	return true, nil
}

func (s *MemoryStore) HasEntriesForSource(_ context.Context, sourceID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.SourceID == sourceID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetLedgerEntry(_ context.Context, id string) (*model.CommissionLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entryIdx[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *e
	return &copy, nil
}

func (s *MemoryStore) ListLedgerEntries(_ context.Context, f EntryFilter) ([]model.CommissionLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.CommissionLedgerEntry
	for _, e := range s.entries {
		if f.BeneficiaryID != "" && e.BeneficiaryID != f.BeneficiaryID {
			continue
		}
		if f.SourceID != "" && e.SourceID != f.SourceID {
			continue
		}
		if f.PeriodOrTrigger != "" && e.PeriodOrTrigger != f.PeriodOrTrigger {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.BatchID != "" && e.BatchID != f.BatchID {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (s *MemoryStore) MarkEntryCredited(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entryIdx[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = model.EntryCredited
	t := at.UTC()
	e.CreditedAt = &t
	return nil
}

func (s *MemoryStore) MarkEntryFailed(_ context.Context, id, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entryIdx[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = model.EntryFailed
	e.ErrorMessage = msg
	return nil
}

func (s *MemoryStore) MarkEntryReversed(_ context.Context, id, actorID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entryIdx[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = model.EntryReversed
	t := at.UTC()
	e.ReversedAt = &t
	e.ReversedBy = actorID
	e.ReversalReason = reason
	return nil
}

func (s *MemoryStore) SummarizeByLevel(_ context.Context, beneficiaryID, periodOrTrigger string) ([]LevelSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg := make(map[int]*LevelSummary)
	for _, e := range s.entries {
		if e.Status != model.EntryCredited {
			continue
		}
		if beneficiaryID != "" && e.BeneficiaryID != beneficiaryID {
			continue
		}
		if periodOrTrigger != "" && e.PeriodOrTrigger != periodOrTrigger {
			continue
		}
		ls, ok := agg[e.Level]
		if !ok {
			ls = &LevelSummary{Level: e.Level}
			agg[e.Level] = ls
		}
		ls.Entries++
		ls.Amount = ls.Amount.Add(e.Amount)
	}

	out := make([]LevelSummary, 0, len(agg))
	for _, ls := range agg {
		out = append(out, *ls)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

// --- Beneficiary wallets ---

func (s *MemoryStore) CreditWallet(_ context.Context, userID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.walletLocked(userID)
	w.Balance = w.Balance.Add(amount)
	w.TotalEarned = w.TotalEarned.Add(amount)
	w.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) DebitWallet(_ context.Context, userID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.walletLocked(userID)
	w.Balance = w.Balance.Sub(amount)
	w.TotalEarned = w.TotalEarned.Sub(amount)
	w.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) GetWallet(_ context.Context, userID string) (*model.BeneficiaryWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[userID]
	if !ok {
		return &model.BeneficiaryWallet{UserID: userID}, nil
	}
	copy := *w
	return &copy, nil
}

// walletLocked returns the wallet for userID, creating it if absent.
// Caller must hold s.mu.
func (s *MemoryStore) walletLocked(userID string) *model.BeneficiaryWallet {
	w, ok := s.wallets[userID]
	if !ok {
		w = &model.BeneficiaryWallet{UserID: userID}
		s.wallets[userID] = w
	}
	return w
}

// --- Batch runs ---

func (s *MemoryStore) CreateBatchRun(_ context.Context, run *model.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := cloneRun(run)
	s.runs[run.ID] = copy
	s.runOrder = append(s.runOrder, run.ID)
	return nil
}

func (s *MemoryStore) UpdateBatchRun(_ context.Context, run *model.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; !ok {
		return ErrNotFound
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) GetBatchRun(_ context.Context, id string) (*model.BatchRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRun(run), nil
}

func (s *MemoryStore) ListBatchRuns(_ context.Context) ([]model.BatchRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.BatchRun, 0, len(s.runOrder))
	for i := len(s.runOrder) - 1; i >= 0; i-- {
		out = append(out, *cloneRun(s.runs[s.runOrder[i]]))
	}
	return out, nil
}

func cloneRun(run *model.BatchRun) *model.BatchRun {
	copy := *run
	copy.Errors = append([]model.BatchError(nil), run.Errors...)
	return &copy
}

// --- Settings ---

func (s *MemoryStore) GetSettings(_ context.Context) (*model.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copy := s.settings
	return &copy, nil
}

func (s *MemoryStore) SetLastProcessedPeriod(_ context.Context, periodKey string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings.LastProcessedPeriod = periodKey
	t := at.UTC()
	s.settings.LastBatchRunAt = &t
	return nil
}
