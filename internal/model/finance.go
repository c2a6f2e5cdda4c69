package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single categorised spend entry in a vault's ledger.
type Transaction struct {
	ID       string
	VaultID  string
	Amount   decimal.Decimal
	Category string
	Date     time.Time
	Note     string
}

// Budget carries the monthly targets for a vault.
type Budget struct {
	MonthlyIncome      decimal.Decimal
	SavingsGoalMonthly decimal.Decimal
	PerCategoryLimits  map[string]decimal.Decimal
}

// Goal is a savings goal with a deadline.
type Goal struct {
	ID       string
	Name     string
	Target   decimal.Decimal
	Progress decimal.Decimal
	Created  time.Time
	Deadline time.Time
}

// Streak tracks consecutive days under the daily budget.
type Streak struct {
	Current      int
	Best         int
	CurrentSince time.Time
	BestEndedAt  time.Time
}

// FinancialSnapshot is an immutable, point-in-time aggregation of a vault's
// activity. Built fresh for every evaluation cycle and discarded after.
type FinancialSnapshot struct {
	VaultID string
	AsOf    time.Time

	// Version identifies the snapshot for idempotent wallet transitions.
	Version int64

	MonthlyIncome      decimal.Decimal
	SavingsGoalMonthly decimal.Decimal

	TotalSpentThisMonth  decimal.Decimal
	DailyAverageSpend    decimal.Decimal
	DaysRemainingInMonth int
	AvailableCash        decimal.Decimal

	CategoryBreakdown map[string]decimal.Decimal

	// RecentTransactions is ordered most-recent-first and bounded to the
	// builder's lookback window.
	RecentTransactions []Transaction

	// CategoryHistory holds per-category totals for complete months before
	// the current one, oldest first.
	CategoryHistory map[string][]decimal.Decimal

	Streak Streak
	Goals  []Goal

	// ObservedDays counts distinct calendar days with activity inside the
	// burn-rate window.
	ObservedDays int

	// Empty marks a vault with no transactions; derived scalars are zeroed
	// and rules must tolerate it.
	Empty bool
}

// MonthlySpendBudget is the amount available for spending this month after
// the savings goal is set aside.
func (s *FinancialSnapshot) MonthlySpendBudget() decimal.Decimal {
	return s.MonthlyIncome.Sub(s.SavingsGoalMonthly)
}

// MonthBucket is a stable period identifier used in dedupe keys.
func (s *FinancialSnapshot) MonthBucket() string {
	return s.AsOf.UTC().Format("2006-01")
}
