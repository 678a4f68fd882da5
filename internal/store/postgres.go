package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shivammacoss/profitVision-new-sub000/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// Idempotency of commission inserts rests on a unique index over
// (beneficiary_id, source_id, period_or_trigger, level).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// --- Referral graph ---

func (s *PostgresStore) GetActiveReferralEdge(ctx context.Context, childUserID string) (*model.ReferralEdge, error) {
	var e model.ReferralEdge
	err := s.pool.QueryRow(ctx,
		`SELECT child_user_id, beneficiary_user_id, status
		 FROM referral_edges
		 WHERE child_user_id = $1 AND status = 'ACTIVE'`, childUserID).
		Scan(&e.ChildUserID, &e.BeneficiaryUserID, &e.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get referral edge %s: %w", childUserID, err)
	}
	return &e, nil
}

func (s *PostgresStore) IsUserActive(ctx context.Context, userID string) (bool, error) {
	var active bool
	err := s.pool.QueryRow(ctx,
		`SELECT status = 'ACTIVE' FROM users WHERE id = $1`, userID).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("user status %s: %w", userID, err)
	}
	return active, nil
}

// --- Volume accumulators ---

// UpsertVolume relies on a single conditional upsert statement so concurrent
// trade facts for the same (user, period) never lose updates. The WHERE on
// the conflict arm refuses increments once the row has left ACCUMULATING.
func (s *PostgresStore) UpsertVolume(ctx context.Context, userID, periodKey string, lots, notional decimal.Decimal, tradeID string) (*model.VolumeAccumulator, error) {
	var acc model.VolumeAccumulator
	var lotsS, notionalS string

	err := s.pool.QueryRow(ctx,
		`INSERT INTO volume_accumulators
		   (user_id, period_key, total_lots, total_trades, total_volume_notional, status, last_source_fact_id, updated_at)
		 VALUES ($1, $2, $3::NUMERIC, 1, $4::NUMERIC, 'ACCUMULATING', $5, $6)
		 ON CONFLICT (user_id, period_key) DO UPDATE SET
		   total_lots = volume_accumulators.total_lots + EXCLUDED.total_lots,
		   total_trades = volume_accumulators.total_trades + 1,
		   total_volume_notional = volume_accumulators.total_volume_notional + EXCLUDED.total_volume_notional,
		   last_source_fact_id = EXCLUDED.last_source_fact_id,
		   updated_at = EXCLUDED.updated_at
		 WHERE volume_accumulators.status = 'ACCUMULATING'
		 RETURNING user_id, period_key, total_lots::TEXT, total_trades,
		           total_volume_notional::TEXT, status, last_source_fact_id,
		           COALESCE(batch_id, ''), updated_at`,
		userID, periodKey, lots.String(), notional.String(), tradeID, time.Now().UTC()).
		Scan(&acc.UserID, &acc.PeriodKey, &lotsS, &acc.TotalTrades,
			&notionalS, &acc.Status, &acc.LastSourceFactID, &acc.BatchID, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Conflict arm rejected the update: the period is closed.
			return nil, ErrStalePeriod
		}
		return nil, fmt.Errorf("upsert volume %s/%s: %w", userID, periodKey, err)
	}

	acc.TotalLots, _ = decimal.NewFromString(lotsS)
	acc.TotalVolumeNotional, _ = decimal.NewFromString(notionalS)
	return &acc, nil
}

func (s *PostgresStore) ListAccumulators(ctx context.Context, periodKey, status string, minLots decimal.Decimal) ([]model.VolumeAccumulator, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, period_key, total_lots::TEXT, total_trades,
		        total_volume_notional::TEXT, status, last_source_fact_id,
		        COALESCE(batch_id, ''), updated_at
		 FROM volume_accumulators
		 WHERE period_key = $1 AND status = $2 AND total_lots >= $3::NUMERIC
		 ORDER BY user_id`, periodKey, status, minLots.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.VolumeAccumulator
	for rows.Next() {
		var acc model.VolumeAccumulator
		var lotsS, notionalS string
		if err := rows.Scan(&acc.UserID, &acc.PeriodKey, &lotsS, &acc.TotalTrades,
			&notionalS, &acc.Status, &acc.LastSourceFactID, &acc.BatchID, &acc.UpdatedAt); err != nil {
			return nil, err
		}
		acc.TotalLots, _ = decimal.NewFromString(lotsS)
		acc.TotalVolumeNotional, _ = decimal.NewFromString(notionalS)
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkAccumulatorProcessed(ctx context.Context, userID, periodKey, batchID string) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE volume_accumulators
		 SET status = 'PROCESSED', batch_id = $3, updated_at = $4
		 WHERE user_id = $1 AND period_key = $2`,
		userID, periodKey, batchID, time.Now().UTC())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetAccumulator(ctx context.Context, userID, periodKey string) (*model.VolumeAccumulator, error) {
	var acc model.VolumeAccumulator
	var lotsS, notionalS string

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, period_key, total_lots::TEXT, total_trades,
		        total_volume_notional::TEXT, status, last_source_fact_id,
		        COALESCE(batch_id, ''), updated_at
		 FROM volume_accumulators
		 WHERE user_id = $1 AND period_key = $2`, userID, periodKey).
		Scan(&acc.UserID, &acc.PeriodKey, &lotsS, &acc.TotalTrades,
			&notionalS, &acc.Status, &acc.LastSourceFactID, &acc.BatchID, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get accumulator %s/%s: %w", userID, periodKey, err)
	}

	acc.TotalLots, _ = decimal.NewFromString(lotsS)
	acc.TotalVolumeNotional, _ = decimal.NewFromString(notionalS)
	return &acc, nil
}

// --- Commission ledger ---

// InsertLedgerEntry uses ON CONFLICT DO NOTHING ... RETURNING against the
// composite unique index. A retried insert for the same tuple returns no
// row, which surfaces as (false, nil) — the tagged already-exists result.
func (s *PostgresStore) InsertLedgerEntry(ctx context.Context, e *model.CommissionLedgerEntry) (bool, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO commission_ledger_entries
		   (id, beneficiary_id, source_id, period_or_trigger, level, mode,
		    rate, amount, status, batch_id, activation_trigger, error_message, created_at, credited_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9,
		         NULLIF($10, ''), NULLIF($11, ''), $12, $13, $14)
		 ON CONFLICT (beneficiary_id, source_id, period_or_trigger, level) DO NOTHING
		 RETURNING id`,
		e.ID, e.BeneficiaryID, e.SourceID, e.PeriodOrTrigger, e.Level, e.Mode,
		e.Rate.String(), e.Amount.String(), e.Status,
		e.BatchID, e.ActivationTrigger, e.ErrorMessage, e.CreatedAt, e.CreditedAt).
		Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert ledger entry: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) HasEntriesForSource(ctx context.Context, sourceID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM commission_ledger_entries WHERE source_id = $1)`,
		sourceID).Scan(&exists)
	return exists, err
}

const entryColumns = `id, beneficiary_id, source_id, period_or_trigger, level, mode,
	rate::TEXT, amount::TEXT, status, COALESCE(batch_id, ''),
	COALESCE(activation_trigger, ''), COALESCE(error_message, ''),
	created_at, credited_at, reversed_at, COALESCE(reversed_by, ''), COALESCE(reversal_reason, '')`

func (s *PostgresStore) GetLedgerEntry(ctx context.Context, id string) (*model.CommissionLedgerEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM commission_ledger_entries WHERE id = $1`, id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get ledger entry %s: %w", id, err)
	}
	return e, nil
}

func (s *PostgresStore) ListLedgerEntries(ctx context.Context, f EntryFilter) ([]model.CommissionLedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+`
		 FROM commission_ledger_entries
		 WHERE ($1 = '' OR beneficiary_id = $1)
		   AND ($2 = '' OR source_id = $2)
		   AND ($3 = '' OR period_or_trigger = $3)
		   AND ($4 = '' OR status = $4)
		   AND ($5 = '' OR batch_id = $5)
		 ORDER BY created_at`,
		f.BeneficiaryID, f.SourceID, f.PeriodOrTrigger, f.Status, f.BatchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CommissionLedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkEntryCredited(ctx context.Context, id string, at time.Time) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE commission_ledger_entries
		 SET status = 'CREDITED', credited_at = $2
		 WHERE id = $1 AND status = 'PENDING'`, id, at.UTC())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkEntryFailed(ctx context.Context, id, msg string) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE commission_ledger_entries
		 SET status = 'FAILED', error_message = $2
		 WHERE id = $1 AND status != 'REVERSED'`, id, msg)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkEntryReversed(ctx context.Context, id, actorID, reason string, at time.Time) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE commission_ledger_entries
		 SET status = 'REVERSED', reversed_at = $2, reversed_by = $3, reversal_reason = $4
		 WHERE id = $1 AND status != 'REVERSED'`, id, at.UTC(), actorID, reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SummarizeByLevel(ctx context.Context, beneficiaryID, periodOrTrigger string) ([]LevelSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT level, COUNT(*), COALESCE(SUM(amount), 0)::TEXT
		 FROM commission_ledger_entries
		 WHERE status = 'CREDITED'
		   AND ($1 = '' OR beneficiary_id = $1)
		   AND ($2 = '' OR period_or_trigger = $2)
		 GROUP BY level
		 ORDER BY level`, beneficiaryID, periodOrTrigger)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LevelSummary
	for rows.Next() {
		var ls LevelSummary
		var amountS string
		if err := rows.Scan(&ls.Level, &ls.Entries, &amountS); err != nil {
			return nil, err
		}
		ls.Amount, _ = decimal.NewFromString(amountS)
		out = append(out, ls)
	}
	return out, rows.Err()
}

// --- Beneficiary wallets ---

func (s *PostgresStore) CreditWallet(ctx context.Context, userID string, amount decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO beneficiary_wallets (user_id, balance, total_earned, updated_at)
		 VALUES ($1, $2::NUMERIC, $2::NUMERIC, $3)
		 ON CONFLICT (user_id) DO UPDATE SET
		   balance = beneficiary_wallets.balance + EXCLUDED.balance,
		   total_earned = beneficiary_wallets.total_earned + EXCLUDED.total_earned,
		   updated_at = EXCLUDED.updated_at`,
		userID, amount.String(), time.Now().UTC())
	return err
}

func (s *PostgresStore) DebitWallet(ctx context.Context, userID string, amount decimal.Decimal) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE beneficiary_wallets
		 SET balance = balance - $2::NUMERIC,
		     total_earned = total_earned - $2::NUMERIC,
		     updated_at = $3
		 WHERE user_id = $1`,
		userID, amount.String(), time.Now().UTC())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetWallet(ctx context.Context, userID string) (*model.BeneficiaryWallet, error) {
	var w model.BeneficiaryWallet
	var balanceS, earnedS string

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, balance::TEXT, total_earned::TEXT, updated_at
		 FROM beneficiary_wallets WHERE user_id = $1`, userID).
		Scan(&w.UserID, &balanceS, &earnedS, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.BeneficiaryWallet{UserID: userID}, nil
		}
		return nil, fmt.Errorf("get wallet %s: %w", userID, err)
	}

	w.Balance, _ = decimal.NewFromString(balanceS)
	w.TotalEarned, _ = decimal.NewFromString(earnedS)
	return &w, nil
}

// --- Batch runs ---

func (s *PostgresStore) CreateBatchRun(ctx context.Context, run *model.BatchRun) error {
	errsJSON, err := json.Marshal(run.Errors)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO batch_runs
		   (id, target_period, status, reason, traders_selected, traders_processed,
		    entries_created, duplicates_skipped, entries_credited, entries_failed,
		    total_amount, errors, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::NUMERIC, $12, $13, $14)`,
		run.ID, run.TargetPeriod, run.Status, run.Reason,
		run.TradersSelected, run.TradersProcessed,
		run.EntriesCreated, run.DuplicatesSkipped, run.EntriesCredited, run.EntriesFailed,
		run.TotalAmount.String(), errsJSON, run.StartedAt, run.FinishedAt)
	return err
}

func (s *PostgresStore) UpdateBatchRun(ctx context.Context, run *model.BatchRun) error {
	errsJSON, err := json.Marshal(run.Errors)
	if err != nil {
		return err
	}
	cmd, err := s.pool.Exec(ctx,
		`UPDATE batch_runs SET
		   status = $2, reason = $3, traders_selected = $4, traders_processed = $5,
		   entries_created = $6, duplicates_skipped = $7, entries_credited = $8,
		   entries_failed = $9, total_amount = $10::NUMERIC, errors = $11, finished_at = $12
		 WHERE id = $1`,
		run.ID, run.Status, run.Reason, run.TradersSelected, run.TradersProcessed,
		run.EntriesCreated, run.DuplicatesSkipped, run.EntriesCredited,
		run.EntriesFailed, run.TotalAmount.String(), errsJSON, run.FinishedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetBatchRun(ctx context.Context, id string) (*model.BatchRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, target_period, status, COALESCE(reason, ''), traders_selected,
		        traders_processed, entries_created, duplicates_skipped,
		        entries_credited, entries_failed, total_amount::TEXT, errors,
		        started_at, finished_at
		 FROM batch_runs WHERE id = $1`, id)
	run, err := scanBatchRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get batch run %s: %w", id, err)
	}
	return run, nil
}

func (s *PostgresStore) ListBatchRuns(ctx context.Context) ([]model.BatchRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, target_period, status, COALESCE(reason, ''), traders_selected,
		        traders_processed, entries_created, duplicates_skipped,
		        entries_credited, entries_failed, total_amount::TEXT, errors,
		        started_at, finished_at
		 FROM batch_runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BatchRun
	for rows.Next() {
		run, err := scanBatchRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

// --- Settings ---

func (s *PostgresStore) GetSettings(ctx context.Context) (*model.Settings, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT config FROM commission_settings WHERE singleton = TRUE`).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}

	var st model.Settings
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &st, nil
}

func (s *PostgresStore) SetLastProcessedPeriod(ctx context.Context, periodKey string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE commission_settings
		 SET config = jsonb_set(
		       jsonb_set(config, '{last_processed_period}', to_jsonb($1::TEXT)),
		       '{last_batch_run_at}', to_jsonb($2::TIMESTAMPTZ))
		 WHERE singleton = TRUE`,
		periodKey, at.UTC())
	return err
}

// --- Row scanning helpers ---

type pgxRow interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row pgxRow) (*model.CommissionLedgerEntry, error) {
	var e model.CommissionLedgerEntry
	var rateS, amountS string

	if err := row.Scan(&e.ID, &e.BeneficiaryID, &e.SourceID, &e.PeriodOrTrigger,
		&e.Level, &e.Mode, &rateS, &amountS, &e.Status, &e.BatchID,
		&e.ActivationTrigger, &e.ErrorMessage, &e.CreatedAt, &e.CreditedAt,
		&e.ReversedAt, &e.ReversedBy, &e.ReversalReason); err != nil {
		return nil, err
	}

	e.Rate, _ = decimal.NewFromString(rateS)
	e.Amount, _ = decimal.NewFromString(amountS)
	return &e, nil
}

func scanBatchRun(row pgxRow) (*model.BatchRun, error) {
	var run model.BatchRun
	var totalS string
	var errsJSON []byte

	if err := row.Scan(&run.ID, &run.TargetPeriod, &run.Status, &run.Reason,
		&run.TradersSelected, &run.TradersProcessed, &run.EntriesCreated,
		&run.DuplicatesSkipped, &run.EntriesCredited, &run.EntriesFailed,
		&totalS, &errsJSON, &run.StartedAt, &run.FinishedAt); err != nil {
		return nil, err
	}

	run.TotalAmount, _ = decimal.NewFromString(totalS)
	if len(errsJSON) > 0 {
		if err := json.Unmarshal(errsJSON, &run.Errors); err != nil {
			return nil, fmt.Errorf("decode batch errors: %w", err)
		}
	}
	return &run, nil
}
