package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"pocketwatch/internal/model"
)

// CashflowForecast projects the end-of-month balance from the trailing
// spend trend and warns when it lands below zero.
type CashflowForecast struct{}

// NewCashflowForecast constructs the rule.
func NewCashflowForecast() *CashflowForecast { return &CashflowForecast{} }

// ID implements Rule.
func (r *CashflowForecast) ID() string { return "cashflow_forecast" }

// Evaluate implements Rule.
func (r *CashflowForecast) Evaluate(snap *model.FinancialSnapshot, _ *model.WalletRiskState) (*model.InsightCandidate, error) {
	if snap.Empty || snap.DailyAverageSpend.IsZero() {
		return nil, nil
	}

	projectedOutflow := snap.DailyAverageSpend.Mul(decimal.NewFromInt(int64(snap.DaysRemainingInMonth)))
	projectedBalance := snap.AvailableCash.Sub(projectedOutflow)
	if !projectedBalance.IsNegative() {
		return nil, nil
	}

	shortfall := projectedBalance.Neg()

	score := shortfall
	if snap.MonthlyIncome.IsPositive() {
		score = shortfall.Div(snap.MonthlyIncome).Mul(hundred)
	}

	return &model.InsightCandidate{
		RuleID:    r.ID(),
		DedupeKey: dedupeKey(r.ID(), snap.MonthBucket()),
		Severity:  model.SeverityWarning,
		Title:     "Month-end balance trending negative",
		Description: fmt.Sprintf(
			"At %s/day, you're projected to end the month %s short.",
			money(snap.DailyAverageSpend), money(shortfall),
		),
		Recommendation: "Cutting the daily average or deferring a purchase closes the gap.",
		RawScore:       score.Round(2),
		GeneratedAt:    snap.AsOf,
	}, nil
}

var _ Rule = (*CashflowForecast)(nil)
