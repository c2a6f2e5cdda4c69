package rules

import (
	"fmt"

	"pocketwatch/internal/model"
)

// SafeToSpend warns when the remaining daily budget for the rest of the
// month has gone negative.
type SafeToSpend struct{}

// NewSafeToSpend constructs the rule.
func NewSafeToSpend() *SafeToSpend { return &SafeToSpend{} }

// ID implements Rule.
func (r *SafeToSpend) ID() string { return "safe_to_spend" }

// Evaluate implements Rule.
func (r *SafeToSpend) Evaluate(snap *model.FinancialSnapshot, _ *model.WalletRiskState) (*model.InsightCandidate, error) {
	if snap.Empty {
		return nil, nil
	}

	budget := snap.MonthlySpendBudget()
	if !budget.IsPositive() {
		return nil, nil
	}

	remaining := budget.Sub(snap.TotalSpentThisMonth)
	if !remaining.IsNegative() {
		return nil, nil
	}

	days := snap.DaysRemainingInMonth
	if days < 1 {
		days = 1
	}

	overshoot := remaining.Neg()
	score := overshoot.Div(budget).Mul(hundred)

	return &model.InsightCandidate{
		RuleID:    r.ID(),
		DedupeKey: dedupeKey(r.ID(), snap.MonthBucket()),
		Severity:  model.SeverityWarning,
		Title:     "Budget exhausted for this month",
		Description: fmt.Sprintf(
			"You've spent %s of a %s budget with %s left in the month.",
			money(snap.TotalSpentThisMonth), money(budget), daysLabel(days),
		),
		Recommendation: fmt.Sprintf("Pausing non-essential spending would avoid going another %s over.", money(overshoot)),
		RawScore:       score,
		GeneratedAt:    snap.AsOf,
	}, nil
}

var _ Rule = (*SafeToSpend)(nil)
