package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"pocketwatch/internal/model"
)

// SpendingVelocity flags a short burst of spending that, extrapolated to
// month-end, would blow through the monthly budget even though the running
// total still looks fine.
type SpendingVelocity struct {
	windowDays int
}

// NewSpendingVelocity constructs the rule.
func NewSpendingVelocity(windowDays int) *SpendingVelocity {
	if windowDays < 1 {
		windowDays = 3
	}
	return &SpendingVelocity{windowDays: windowDays}
}

// ID implements Rule.
func (r *SpendingVelocity) ID() string { return "spending_velocity" }

// Evaluate implements Rule.
func (r *SpendingVelocity) Evaluate(snap *model.FinancialSnapshot, _ *model.WalletRiskState) (*model.InsightCandidate, error) {
	if snap.Empty {
		return nil, nil
	}

	budget := snap.MonthlySpendBudget()
	if !budget.IsPositive() {
		return nil, nil
	}

	cutoff := snap.AsOf.AddDate(0, 0, -r.windowDays)
	recent := spentSince(snap, cutoff)
	if !recent.IsPositive() {
		return nil, nil
	}

	rate := recent.Div(decimal.NewFromInt(int64(r.windowDays)))
	projected := snap.TotalSpentThisMonth.Add(rate.Mul(decimal.NewFromInt(int64(snap.DaysRemainingInMonth))))

	if projected.LessThanOrEqual(budget) {
		return nil, nil
	}

	overshoot := projected.Sub(budget)

	return &model.InsightCandidate{
		RuleID:    r.ID(),
		DedupeKey: dedupeKey(r.ID(), snap.MonthBucket()),
		Severity:  model.SeverityWarning,
		Title:     "Spending has accelerated",
		Description: fmt.Sprintf(
			"At the pace of the last %s (%s/day), you'd finish the month %s over budget.",
			daysLabel(r.windowDays), money(rate), money(overshoot),
		),
		Recommendation: "Slowing down now keeps the month on track.",
		RawScore:       overshoot.Div(budget).Mul(hundred).Round(2),
		GeneratedAt:    snap.AsOf,
	}, nil
}

var _ Rule = (*SpendingVelocity)(nil)
