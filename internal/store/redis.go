package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/shivammacoss/profitVision-new-sub000/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot read paths: settings (fetched once per operation) and
// beneficiary wallets (read by reporting and by every reversal). Writes go
// to the primary store and invalidate the cache.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetSettings(ctx context.Context) (*model.Settings, error) {
	data, err := s.rdb.Get(ctx, settingsKey()).Bytes()
	if err == nil {
		var st model.Settings
		if json.Unmarshal(data, &st) == nil {
			return &st, nil
		}
	}

	st, err := s.primary.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(st); err == nil {
		s.rdb.Set(ctx, settingsKey(), data, s.ttl)
	}
	return st, nil
}

func (s *CachedStore) GetWallet(ctx context.Context, userID string) (*model.BeneficiaryWallet, error) {
	data, err := s.rdb.Get(ctx, walletKey(userID)).Bytes()
	if err == nil {
		var w model.BeneficiaryWallet
		if json.Unmarshal(data, &w) == nil {
			return &w, nil
		}
	}

	w, err := s.primary.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(w); err == nil {
		s.rdb.Set(ctx, walletKey(userID), data, s.ttl)
	}
	return w, nil
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreditWallet(ctx context.Context, userID string, amount decimal.Decimal) error {
	if err := s.primary.CreditWallet(ctx, userID, amount); err != nil {
		return err
	}
	s.rdb.Del(ctx, walletKey(userID))
	return nil
}

func (s *CachedStore) DebitWallet(ctx context.Context, userID string, amount decimal.Decimal) error {
	if err := s.primary.DebitWallet(ctx, userID, amount); err != nil {
		return err
	}
	s.rdb.Del(ctx, walletKey(userID))
	return nil
}

func (s *CachedStore) SetLastProcessedPeriod(ctx context.Context, periodKey string, at time.Time) error {
	if err := s.primary.SetLastProcessedPeriod(ctx, periodKey, at); err != nil {
		return err
	}
	s.rdb.Del(ctx, settingsKey())
	return nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetActiveReferralEdge(ctx context.Context, childUserID string) (*model.ReferralEdge, error) {
	return s.primary.GetActiveReferralEdge(ctx, childUserID)
}

func (s *CachedStore) IsUserActive(ctx context.Context, userID string) (bool, error) {
	return s.primary.IsUserActive(ctx, userID)
}

func (s *CachedStore) UpsertVolume(ctx context.Context, userID, periodKey string, lots, notional decimal.Decimal, tradeID string) (*model.VolumeAccumulator, error) {
	return s.primary.UpsertVolume(ctx, userID, periodKey, lots, notional, tradeID)
}

func (s *CachedStore) ListAccumulators(ctx context.Context, periodKey, status string, minLots decimal.Decimal) ([]model.VolumeAccumulator, error) {
	return s.primary.ListAccumulators(ctx, periodKey, status, minLots)
}

func (s *CachedStore) MarkAccumulatorProcessed(ctx context.Context, userID, periodKey, batchID string) error {
	return s.primary.MarkAccumulatorProcessed(ctx, userID, periodKey, batchID)
}

func (s *CachedStore) GetAccumulator(ctx context.Context, userID, periodKey string) (*model.VolumeAccumulator, error) {
	return s.primary.GetAccumulator(ctx, userID, periodKey)
}

func (s *CachedStore) InsertLedgerEntry(ctx context.Context, e *model.CommissionLedgerEntry) (bool, error) {
	return s.primary.InsertLedgerEntry(ctx, e)
}

func (s *CachedStore) HasEntriesForSource(ctx context.Context, sourceID string) (bool, error) {
	return s.primary.HasEntriesForSource(ctx, sourceID)
}

func (s *CachedStore) GetLedgerEntry(ctx context.Context, id string) (*model.CommissionLedgerEntry, error) {
	return s.primary.GetLedgerEntry(ctx, id)
}

func (s *CachedStore) ListLedgerEntries(ctx context.Context, f EntryFilter) ([]model.CommissionLedgerEntry, error) {
	return s.primary.ListLedgerEntries(ctx, f)
}

func (s *CachedStore) MarkEntryCredited(ctx context.Context, id string, at time.Time) error {
	return s.primary.MarkEntryCredited(ctx, id, at)
}

func (s *CachedStore) MarkEntryFailed(ctx context.Context, id, msg string) error {
	return s.primary.MarkEntryFailed(ctx, id, msg)
}

func (s *CachedStore) MarkEntryReversed(ctx context.Context, id, actorID, reason string, at time.Time) error {
	return s.primary.MarkEntryReversed(ctx, id, actorID, reason, at)
}

func (s *CachedStore) SummarizeByLevel(ctx context.Context, beneficiaryID, periodOrTrigger string) ([]LevelSummary, error) {
	return s.primary.SummarizeByLevel(ctx, beneficiaryID, periodOrTrigger)
}

func (s *CachedStore) CreateBatchRun(ctx context.Context, run *model.BatchRun) error {
	return s.primary.CreateBatchRun(ctx, run)
}

func (s *CachedStore) UpdateBatchRun(ctx context.Context, run *model.BatchRun) error {
	return s.primary.UpdateBatchRun(ctx, run)
}

func (s *CachedStore) GetBatchRun(ctx context.Context, id string) (*model.BatchRun, error) {
	return s.primary.GetBatchRun(ctx, id)
}

func (s *CachedStore) ListBatchRuns(ctx context.Context) ([]model.BatchRun, error) {
	return s.primary.ListBatchRuns(ctx)
}

// --- Cache keys ---

func settingsKey() string           { return "commission:settings" }
func walletKey(userID string) string { return fmt.Sprintf("commission:wallet:%s", userID) }
