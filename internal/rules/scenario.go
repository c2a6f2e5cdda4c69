package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"pocketwatch/internal/model"
)

// Scenario answers a "can I afford X?" hypothetical against the remaining
// monthly budget and the cash runway. It is constructed per question rather
// than registered permanently; the service builds one on demand.
type Scenario struct {
	label  string
	amount decimal.Decimal
}

// NewScenario constructs a rule for a single hypothetical purchase.
func NewScenario(label string, amount decimal.Decimal) *Scenario {
	return &Scenario{label: label, amount: amount}
}

// ID implements Rule.
func (r *Scenario) ID() string { return "scenario" }

// Evaluate implements Rule.
func (r *Scenario) Evaluate(snap *model.FinancialSnapshot, wallet *model.WalletRiskState) (*model.InsightCandidate, error) {
	if !r.amount.IsPositive() {
		return nil, nil
	}

	budget := snap.MonthlySpendBudget()
	remaining := budget.Sub(snap.TotalSpentThisMonth)
	fitsBudget := remaining.GreaterThanOrEqual(r.amount)

	runwayCost := decimal.Zero
	runwayOK := true
	if wallet != nil && wallet.BurnRatePerDay.IsPositive() {
		runwayCost = r.amount.Div(wallet.BurnRatePerDay)
		if wallet.RunwayDays != nil {
			runwayOK = wallet.RunwayDays.Sub(runwayCost).GreaterThan(decimal.Zero)
		}
	}

	candidate := &model.InsightCandidate{
		RuleID:      r.ID(),
		DedupeKey:   dedupeKey(r.ID(), r.label, snap.MonthBucket()),
		GeneratedAt: snap.AsOf,
	}

	switch {
	case fitsBudget && runwayOK:
		candidate.Severity = model.SeverityInfo
		candidate.Title = fmt.Sprintf("You can afford %s", r.label)
		candidate.Description = fmt.Sprintf(
			"%s fits: %s of budget would remain this month.",
			money(r.amount), money(remaining.Sub(r.amount)),
		)
		candidate.RawScore = decimal.NewFromInt(10)
	case fitsBudget:
		candidate.Severity = model.SeverityWarning
		candidate.Title = fmt.Sprintf("%s fits the budget but hurts your runway", r.label)
		candidate.Description = fmt.Sprintf(
			"The purchase costs about %s days of cash runway.",
			runwayCost.StringFixed(1),
		)
		candidate.RawScore = decimal.NewFromInt(40)
	default:
		candidate.Severity = model.SeverityWarning
		candidate.Title = fmt.Sprintf("%s doesn't fit this month", r.label)
		candidate.Description = fmt.Sprintf(
			"Only %s of budget remains; the purchase needs %s.",
			money(remaining), money(r.amount),
		)
		candidate.Recommendation = "Deferring to next month keeps the budget intact."
		candidate.RawScore = decimal.NewFromInt(70)
	}

	return candidate, nil
}

var _ Rule = (*Scenario)(nil)
