// Package snapshot aggregates a vault's raw activity into the immutable
// FinancialSnapshot consumed by one evaluation cycle.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pocketwatch/internal/model"
)

// ErrDataUnavailable signals a vault with no transaction history. The
// builder absorbs it into a zeroed snapshot; it never propagates to
// callers as a hard failure.
var ErrDataUnavailable = errors.New("snapshot: no transaction data for vault")

// TransactionStore lists a vault's ledger inside a lookback window.
type TransactionStore interface {
	ListTransactionsSince(ctx context.Context, vaultID string, since time.Time) ([]model.Transaction, error)
}

// BudgetStore fetches a vault's budget targets.
type BudgetStore interface {
	GetBudget(ctx context.Context, vaultID string) (model.Budget, error)
}

// GoalStore lists a vault's savings goals.
type GoalStore interface {
	ListGoals(ctx context.Context, vaultID string) ([]model.Goal, error)
}

// Options bound what the builder reads and derives.
type Options struct {
	LookbackDays   int
	BurnWindowDays int
}

// Builder assembles snapshots. It never mutates repository state.
type Builder struct {
	transactions TransactionStore
	budgets      BudgetStore
	goals        GoalStore
	opts         Options
	logger       zerolog.Logger
}

// New constructs a Builder.
func New(transactions TransactionStore, budgets BudgetStore, goals GoalStore, opts Options, logger zerolog.Logger) *Builder {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 120
	}
	if opts.BurnWindowDays <= 0 {
		opts.BurnWindowDays = 30
	}
	return &Builder{
		transactions: transactions,
		budgets:      budgets,
		goals:        goals,
		opts:         opts,
		logger:       logger.With().Str("component", "snapshot").Logger(),
	}
}

// Build produces a snapshot for the vault as of the given instant.
// Repository failures propagate as a single wrapped error; an empty vault
// yields a zeroed snapshot instead.
func (b *Builder) Build(ctx context.Context, vaultID string, asOf time.Time) (*model.FinancialSnapshot, error) {
	asOf = asOf.UTC()

	budget, err := b.budgets.GetBudget(ctx, vaultID)
	if err != nil {
		return nil, fmt.Errorf("load budget for %s: %w", vaultID, err)
	}

	goals, err := b.goals.ListGoals(ctx, vaultID)
	if err != nil {
		return nil, fmt.Errorf("load goals for %s: %w", vaultID, err)
	}

	snap, err := b.buildFromLedger(ctx, vaultID, asOf, budget)
	if errors.Is(err, ErrDataUnavailable) {
		b.logger.Debug().Str("vault", vaultID).Msg("vault has no transactions; using zeroed snapshot")
		snap = b.zeroedSnapshot(vaultID, asOf, budget)
	} else if err != nil {
		return nil, err
	}

	snap.Goals = goals
	return snap, nil
}

func (b *Builder) buildFromLedger(ctx context.Context, vaultID string, asOf time.Time, budget model.Budget) (*model.FinancialSnapshot, error) {
	since := asOf.AddDate(0, 0, -b.opts.LookbackDays)
	txs, err := b.transactions.ListTransactionsSince(ctx, vaultID, since)
	if err != nil {
		return nil, fmt.Errorf("load transactions for %s: %w", vaultID, err)
	}
	if len(txs) == 0 {
		return nil, ErrDataUnavailable
	}

	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.After(txs[j].Date)
		}
		return txs[i].ID > txs[j].ID
	})

	monthStart := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC)
	burnStart := asOf.AddDate(0, 0, -b.opts.BurnWindowDays)

	totalSpent := decimal.Zero
	breakdown := make(map[string]decimal.Decimal)
	burnSpent := decimal.Zero
	observed := make(map[string]struct{})

	for _, tx := range txs {
		if !tx.Date.Before(monthStart) && !tx.Date.After(asOf) {
			totalSpent = totalSpent.Add(tx.Amount)
			breakdown[tx.Category] = breakdown[tx.Category].Add(tx.Amount)
		}
		if !tx.Date.Before(burnStart) && !tx.Date.After(asOf) {
			burnSpent = burnSpent.Add(tx.Amount)
			observed[tx.Date.UTC().Format("2006-01-02")] = struct{}{}
		}
	}

	dailyAverage := burnSpent.Div(decimal.NewFromInt(int64(b.opts.BurnWindowDays)))

	snap := &model.FinancialSnapshot{
		VaultID:              vaultID,
		AsOf:                 asOf,
		Version:              asOf.UnixNano(),
		MonthlyIncome:        budget.MonthlyIncome,
		SavingsGoalMonthly:   budget.SavingsGoalMonthly,
		TotalSpentThisMonth:  totalSpent,
		DailyAverageSpend:    dailyAverage,
		DaysRemainingInMonth: daysRemaining(asOf),
		AvailableCash:        budget.MonthlyIncome.Sub(totalSpent),
		CategoryBreakdown:    breakdown,
		RecentTransactions:   txs,
		CategoryHistory:      categoryHistory(txs, monthStart),
		Streak:               computeStreak(txs, budget, asOf),
		ObservedDays:         len(observed),
	}
	return snap, nil
}

func (b *Builder) zeroedSnapshot(vaultID string, asOf time.Time, budget model.Budget) *model.FinancialSnapshot {
	return &model.FinancialSnapshot{
		VaultID:              vaultID,
		AsOf:                 asOf,
		Version:              asOf.UnixNano(),
		MonthlyIncome:        budget.MonthlyIncome,
		SavingsGoalMonthly:   budget.SavingsGoalMonthly,
		DaysRemainingInMonth: daysRemaining(asOf),
		AvailableCash:        budget.MonthlyIncome,
		CategoryBreakdown:    make(map[string]decimal.Decimal),
		CategoryHistory:      make(map[string][]decimal.Decimal),
		Empty:                true,
	}
}

// daysRemaining counts today plus the days left in the month.
func daysRemaining(asOf time.Time) int {
	return daysInMonth(asOf) - asOf.Day() + 1
}

// categoryHistory aggregates per-category totals for complete months before
// the current one, oldest first, with leading inactive months trimmed so a
// category's history starts when the category does.
func categoryHistory(txs []model.Transaction, monthStart time.Time) map[string][]decimal.Decimal {
	byMonth := make(map[string]map[string]decimal.Decimal)
	months := make(map[string]struct{})

	for _, tx := range txs {
		if !tx.Date.Before(monthStart) {
			continue
		}
		bucket := tx.Date.UTC().Format("2006-01")
		months[bucket] = struct{}{}
		if byMonth[bucket] == nil {
			byMonth[bucket] = make(map[string]decimal.Decimal)
		}
		byMonth[bucket][tx.Category] = byMonth[bucket][tx.Category].Add(tx.Amount)
	}
	if len(months) == 0 {
		return make(map[string][]decimal.Decimal)
	}

	ordered := make([]string, 0, len(months))
	for m := range months {
		ordered = append(ordered, m)
	}
	sort.Strings(ordered)

	history := make(map[string][]decimal.Decimal)
	for _, bucket := range ordered {
		for category := range byMonth[bucket] {
			if _, seen := history[category]; seen {
				continue
			}
			history[category] = []decimal.Decimal{}
		}
		for category := range history {
			history[category] = append(history[category], byMonth[bucket][category])
		}
	}
	return history
}

// computeStreak derives the consecutive-days-under-budget counters from the
// ledger. Days without any spend count as under budget; scanning starts at
// the first observed transaction so empty history does not inflate runs.
func computeStreak(txs []model.Transaction, budget model.Budget, asOf time.Time) model.Streak {
	spendBudget := budget.MonthlyIncome.Sub(budget.SavingsGoalMonthly)
	if !spendBudget.IsPositive() {
		return model.Streak{}
	}
	dailyBudget := spendBudget.Div(decimal.NewFromInt(int64(daysInMonth(asOf))))

	byDay := make(map[string]decimal.Decimal)
	oldest := asOf
	for _, tx := range txs {
		byDay[tx.Date.UTC().Format("2006-01-02")] = byDay[tx.Date.UTC().Format("2006-01-02")].Add(tx.Amount)
		if tx.Date.Before(oldest) {
			oldest = tx.Date
		}
	}

	var streak model.Streak
	run := 0
	var runStart time.Time

	day := time.Date(oldest.Year(), oldest.Month(), oldest.Day(), 0, 0, 0, 0, time.UTC)
	yesterday := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)

	// Best counts completed runs only, so the ongoing run can beat it.
	for !day.After(yesterday) {
		spent := byDay[day.Format("2006-01-02")]
		if spent.LessThanOrEqual(dailyBudget) {
			if run == 0 {
				runStart = day
			}
			run++
		} else {
			if run > streak.Best {
				streak.Best = run
				streak.BestEndedAt = day.AddDate(0, 0, -1)
			}
			run = 0
		}
		day = day.AddDate(0, 0, 1)
	}

	streak.Current = run
	if run > 0 {
		streak.CurrentSince = runStart
	}
	return streak
}

func daysInMonth(t time.Time) int {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 1, -1).Day()
}
