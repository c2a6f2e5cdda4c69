package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"pocketwatch/internal/model"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	listTransactionsSinceSQL = `SELECT
        id, vault_id, amount, category, occurred_on, note
    FROM transactions
    WHERE vault_id = $1
      AND occurred_on >= $2
    ORDER BY occurred_on DESC, id DESC;`

	insertTransactionSQL = `INSERT INTO transactions (
        id, vault_id, amount, category, occurred_on, note
    ) VALUES ($1,$2,$3,$4,$5,$6);`

	getBudgetSQL = `SELECT
        monthly_income, savings_goal, category_limits
    FROM budgets
    WHERE vault_id = $1;`

	upsertBudgetSQL = `INSERT INTO budgets (
        vault_id, monthly_income, savings_goal, category_limits
    ) VALUES ($1,$2,$3,$4)
    ON CONFLICT (vault_id) DO UPDATE
    SET monthly_income  = EXCLUDED.monthly_income,
        savings_goal    = EXCLUDED.savings_goal,
        category_limits = EXCLUDED.category_limits;`

	listGoalsSQL = `SELECT
        id, name, target, progress, created_at, deadline
    FROM goals
    WHERE vault_id = $1
    ORDER BY deadline;`

	getProfileSQL = `SELECT
        dismissed, shown_counts, muted_rules
    FROM profiles
    WHERE vault_id = $1;`

	upsertProfileSQL = `INSERT INTO profiles (
        vault_id, dismissed, shown_counts, muted_rules, updated_at
    ) VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT (vault_id) DO UPDATE
    SET dismissed    = EXCLUDED.dismissed,
        shown_counts = EXCLUDED.shown_counts,
        muted_rules  = EXCLUDED.muted_rules,
        updated_at   = EXCLUDED.updated_at;`

	insertInsightSQL = `INSERT INTO insight_history (
        id, vault_id, rule_id, dedupe_key, severity, title, final_score, suppressed, generated_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`

	recentlyShownSQL = `SELECT
        id, vault_id, rule_id, dedupe_key, severity, title, final_score, suppressed, generated_at, created_at
    FROM insight_history
    WHERE vault_id = $1
      AND suppressed = FALSE
      AND created_at >= $2
    ORDER BY created_at DESC;`

	insertWalletEventSQL = `INSERT INTO wallet_events (
        vault_id, from_level, to_level, runway_days, occurred_at
    ) VALUES ($1,$2,$3,$4,$5)
    RETURNING id;`

	listWalletEventsSQL = `SELECT
        id, vault_id, from_level, to_level, runway_days, occurred_at
    FROM wallet_events
    WHERE vault_id = $1
      AND occurred_at >= $2
      AND occurred_at < $3
    ORDER BY occurred_at;`

	listVaultsSQL = `SELECT DISTINCT vault_id FROM transactions ORDER BY vault_id;`

	dailySpendSQL = `SELECT
        occurred_on::date AS day, SUM(amount)
    FROM transactions
    WHERE vault_id = $1
      AND occurred_on >= $2
      AND occurred_on < $3
    GROUP BY day
    ORDER BY day;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ProfileStore defines user-profile persistence.
type ProfileStore interface {
	GetProfile(ctx context.Context, vaultID string) (*model.UserProfile, error)
	SaveProfile(ctx context.Context, profile *model.UserProfile) error
}

// InsightHistoryStore is the append-only log of ranked insights.
type InsightHistoryStore interface {
	InsertInsight(ctx context.Context, rec model.InsightRecord) error
	RecentlyShown(ctx context.Context, vaultID string, since time.Time) ([]model.InsightRecord, error)
}

// WalletEventStore records risk-level transitions for auditing.
type WalletEventStore interface {
	InsertWalletEvent(ctx context.Context, evt model.WalletEvent) (int64, error)
	ListWalletEvents(ctx context.Context, vaultID string, from, to time.Time) ([]model.WalletEvent, error)
}

// VaultLister enumerates vaults known to the ledger.
type VaultLister interface {
	ListVaults(ctx context.Context) ([]string, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// DailySpend is one day's aggregated outflow, used by export.
type DailySpend struct {
	Day    time.Time
	Amount decimal.Decimal
}

// Store aggregates Postgres access for all pocketwatch repositories.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

// ListTransactionsSince lists a vault's ledger entries on or after the cutoff,
// most recent first.
func (s *Store) ListTransactionsSince(ctx context.Context, vaultID string, since time.Time) ([]model.Transaction, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listTransactionsSinceSQL, vaultID, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list transactions: %w", queryErr)
	}
	defer rows.Close()

	txs := make([]model.Transaction, 0)
	for rows.Next() {
		var (
			tx        model.Transaction
			amountStr string
		)
		if err := rows.Scan(&tx.ID, &tx.VaultID, &amountStr, &tx.Category, &tx.Date, &tx.Note); err != nil {
			return nil, err
		}
		tx.Amount, err = decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("parse transaction amount: %w", err)
		}
		txs = append(txs, tx)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return txs, nil
}

// InsertTransaction appends one ledger entry.
func (s *Store) InsertTransaction(ctx context.Context, tx model.Transaction) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, insertTransactionSQL,
		tx.ID, tx.VaultID, tx.Amount.String(), tx.Category, tx.Date, tx.Note,
	); execErr != nil {
		return fmt.Errorf("insert transaction: %w", execErr)
	}
	return nil
}

// GetBudget fetches a vault's budget; a vault without one gets zero targets.
func (s *Store) GetBudget(ctx context.Context, vaultID string) (model.Budget, error) {
	pool, err := s.getPool()
	if err != nil {
		return model.Budget{}, err
	}

	var (
		incomeStr  string
		savingsStr string
		limitsJSON []byte
	)
	row := pool.QueryRow(ctx, getBudgetSQL, vaultID)
	if scanErr := row.Scan(&incomeStr, &savingsStr, &limitsJSON); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return model.Budget{}, nil
		}
		return model.Budget{}, fmt.Errorf("get budget: %w", scanErr)
	}

	budget := model.Budget{}
	budget.MonthlyIncome, err = decimal.NewFromString(incomeStr)
	if err != nil {
		return model.Budget{}, fmt.Errorf("parse monthly income: %w", err)
	}
	budget.SavingsGoalMonthly, err = decimal.NewFromString(savingsStr)
	if err != nil {
		return model.Budget{}, fmt.Errorf("parse savings goal: %w", err)
	}
	if len(limitsJSON) > 0 {
		raw := make(map[string]string)
		if err := json.Unmarshal(limitsJSON, &raw); err != nil {
			return model.Budget{}, fmt.Errorf("decode category limits: %w", err)
		}
		budget.PerCategoryLimits = make(map[string]decimal.Decimal, len(raw))
		for category, value := range raw {
			limit, convErr := decimal.NewFromString(value)
			if convErr != nil {
				return model.Budget{}, fmt.Errorf("parse limit for %s: %w", category, convErr)
			}
			budget.PerCategoryLimits[category] = limit
		}
	}
	return budget, nil
}

// SaveBudget upserts a vault's budget targets.
func (s *Store) SaveBudget(ctx context.Context, vaultID string, budget model.Budget) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	limits := make(map[string]string, len(budget.PerCategoryLimits))
	for category, limit := range budget.PerCategoryLimits {
		limits[category] = limit.String()
	}
	limitsJSON, err := json.Marshal(limits)
	if err != nil {
		return fmt.Errorf("encode category limits: %w", err)
	}

	if _, execErr := pool.Exec(ctx, upsertBudgetSQL,
		vaultID, budget.MonthlyIncome.String(), budget.SavingsGoalMonthly.String(), limitsJSON,
	); execErr != nil {
		return fmt.Errorf("save budget: %w", execErr)
	}
	return nil
}

// ListGoals lists a vault's savings goals ordered by deadline.
func (s *Store) ListGoals(ctx context.Context, vaultID string) ([]model.Goal, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listGoalsSQL, vaultID)
	if queryErr != nil {
		return nil, fmt.Errorf("list goals: %w", queryErr)
	}
	defer rows.Close()

	goals := make([]model.Goal, 0)
	for rows.Next() {
		var (
			goal        model.Goal
			targetStr   string
			progressStr string
		)
		if err := rows.Scan(&goal.ID, &goal.Name, &targetStr, &progressStr, &goal.Created, &goal.Deadline); err != nil {
			return nil, err
		}
		goal.Target, err = decimal.NewFromString(targetStr)
		if err != nil {
			return nil, fmt.Errorf("parse goal target: %w", err)
		}
		goal.Progress, err = decimal.NewFromString(progressStr)
		if err != nil {
			return nil, fmt.Errorf("parse goal progress: %w", err)
		}
		goals = append(goals, goal)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return goals, nil
}

// GetProfile fetches the personalisation profile, defaulting to an empty one
// for vaults that never interacted with insights.
func (s *Store) GetProfile(ctx context.Context, vaultID string) (*model.UserProfile, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var dismissedJSON, shownJSON, mutedJSON []byte
	row := pool.QueryRow(ctx, getProfileSQL, vaultID)
	if scanErr := row.Scan(&dismissedJSON, &shownJSON, &mutedJSON); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return model.NewUserProfile(vaultID), nil
		}
		return nil, fmt.Errorf("get profile: %w", scanErr)
	}

	profile := model.NewUserProfile(vaultID)
	if len(dismissedJSON) > 0 {
		if err := json.Unmarshal(dismissedJSON, &profile.Dismissed); err != nil {
			return nil, fmt.Errorf("decode dismissed keys: %w", err)
		}
	}
	if len(shownJSON) > 0 {
		if err := json.Unmarshal(shownJSON, &profile.ShownCounts); err != nil {
			return nil, fmt.Errorf("decode shown counts: %w", err)
		}
	}
	if len(mutedJSON) > 0 {
		if err := json.Unmarshal(mutedJSON, &profile.MutedRules); err != nil {
			return nil, fmt.Errorf("decode muted rules: %w", err)
		}
	}
	profile.Normalize()
	return profile, nil
}

// SaveProfile upserts the personalisation profile.
func (s *Store) SaveProfile(ctx context.Context, profile *model.UserProfile) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	dismissedJSON, err := json.Marshal(profile.Dismissed)
	if err != nil {
		return fmt.Errorf("encode dismissed keys: %w", err)
	}
	shownJSON, err := json.Marshal(profile.ShownCounts)
	if err != nil {
		return fmt.Errorf("encode shown counts: %w", err)
	}
	mutedJSON, err := json.Marshal(profile.MutedRules)
	if err != nil {
		return fmt.Errorf("encode muted rules: %w", err)
	}

	if _, execErr := pool.Exec(ctx, upsertProfileSQL,
		profile.VaultID, dismissedJSON, shownJSON, mutedJSON, time.Now().UTC(),
	); execErr != nil {
		return fmt.Errorf("save profile: %w", execErr)
	}
	return nil
}

// InsertInsight appends one ranked insight to the history log.
func (s *Store) InsertInsight(ctx context.Context, rec model.InsightRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, insertInsightSQL,
		rec.ID, rec.VaultID, rec.RuleID, rec.DedupeKey, string(rec.Severity),
		rec.Title, rec.FinalScore.String(), rec.Suppressed, rec.GeneratedAt,
	); execErr != nil {
		return fmt.Errorf("insert insight: %w", execErr)
	}
	return nil
}

// RecentlyShown lists visible insights logged since the cutoff.
func (s *Store) RecentlyShown(ctx context.Context, vaultID string, since time.Time) ([]model.InsightRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, recentlyShownSQL, vaultID, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list recently shown: %w", queryErr)
	}
	defer rows.Close()

	records := make([]model.InsightRecord, 0)
	for rows.Next() {
		var (
			rec      model.InsightRecord
			severity string
			scoreStr string
		)
		if err := rows.Scan(
			&rec.ID, &rec.VaultID, &rec.RuleID, &rec.DedupeKey, &severity,
			&rec.Title, &scoreStr, &rec.Suppressed, &rec.GeneratedAt, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Severity = model.Severity(severity)
		rec.FinalScore, err = decimal.NewFromString(scoreStr)
		if err != nil {
			return nil, fmt.Errorf("parse final score: %w", err)
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// InsertWalletEvent records one risk-level transition.
func (s *Store) InsertWalletEvent(ctx context.Context, evt model.WalletEvent) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var runway interface{}
	if evt.RunwayDays != nil {
		runway = evt.RunwayDays.String()
	}

	var id int64
	row := pool.QueryRow(ctx, insertWalletEventSQL,
		evt.VaultID, string(evt.FromLevel), string(evt.ToLevel), runway, evt.OccurredAt,
	)
	if scanErr := row.Scan(&id); scanErr != nil {
		return 0, fmt.Errorf("insert wallet event: %w", scanErr)
	}
	return id, nil
}

// ListWalletEvents lists transitions within a time window.
func (s *Store) ListWalletEvents(ctx context.Context, vaultID string, from, to time.Time) ([]model.WalletEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listWalletEventsSQL, vaultID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list wallet events: %w", queryErr)
	}
	defer rows.Close()

	events := make([]model.WalletEvent, 0)
	for rows.Next() {
		var (
			evt              model.WalletEvent
			fromStr, toStr   string
			runwayStr        *string
		)
		if err := rows.Scan(&evt.ID, &evt.VaultID, &fromStr, &toStr, &runwayStr, &evt.OccurredAt); err != nil {
			return nil, err
		}
		evt.FromLevel = model.RiskLevel(fromStr)
		evt.ToLevel = model.RiskLevel(toStr)
		if runwayStr != nil {
			runway, convErr := decimal.NewFromString(*runwayStr)
			if convErr != nil {
				return nil, fmt.Errorf("parse runway days: %w", convErr)
			}
			evt.RunwayDays = &runway
		}
		events = append(events, evt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

// ListVaults enumerates vault ids present in the ledger.
func (s *Store) ListVaults(ctx context.Context) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listVaultsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list vaults: %w", queryErr)
	}
	defer rows.Close()

	vaults := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		vaults = append(vaults, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return vaults, nil
}

// DailySpendBetween aggregates spend per day for export.
func (s *Store) DailySpendBetween(ctx context.Context, vaultID string, from, to time.Time) ([]DailySpend, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, dailySpendSQL, vaultID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("daily spend: %w", queryErr)
	}
	defer rows.Close()

	days := make([]DailySpend, 0)
	for rows.Next() {
		var (
			day       DailySpend
			amountStr string
		)
		if err := rows.Scan(&day.Day, &amountStr); err != nil {
			return nil, err
		}
		day.Amount, err = decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("parse daily amount: %w", err)
		}
		days = append(days, day)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return days, nil
}

var (
	_ ProfileStore        = (*Store)(nil)
	_ InsightHistoryStore = (*Store)(nil)
	_ WalletEventStore    = (*Store)(nil)
	_ VaultLister         = (*Store)(nil)
	_ AdvisoryLocker      = (*Store)(nil)
)
