package rules

import (
	"testing"

	"github.com/shopspring/decimal"

	"pocketwatch/internal/model"
)

func TestScenarioAffordable(t *testing.T) {
	snap := tightMonthSnap()
	snap.TotalSpentThisMonth = decimal.NewFromInt(1000)
	snap.AvailableCash = decimal.NewFromInt(4000)
	runway := decimal.NewFromInt(40)
	state := &model.WalletRiskState{
		Level:          model.RiskNormal,
		RunwayDays:     &runway,
		BurnRatePerDay: decimal.NewFromInt(100),
	}

	candidate, err := NewScenario("headphones", decimal.NewFromInt(200)).Evaluate(snap, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if candidate == nil {
		t.Fatal("scenario always answers")
	}
	if candidate.Severity != model.SeverityInfo {
		t.Fatalf("severity = %s, want info for an affordable purchase", candidate.Severity)
	}
}

func TestScenarioFitsBudgetButHurtsRunway(t *testing.T) {
	snap := tightMonthSnap()
	snap.TotalSpentThisMonth = decimal.NewFromInt(1000)
	runway := decimal.NewFromInt(2)
	state := &model.WalletRiskState{
		Level:          model.RiskWar,
		RunwayDays:     &runway,
		BurnRatePerDay: decimal.NewFromInt(100),
	}

	candidate, _ := NewScenario("headphones", decimal.NewFromInt(500)).Evaluate(snap, state)
	if candidate == nil {
		t.Fatal("scenario always answers")
	}
	if candidate.Severity != model.SeverityWarning {
		t.Fatalf("severity = %s, want warning when runway suffers", candidate.Severity)
	}
	if !candidate.RawScore.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("raw score = %s, want 40", candidate.RawScore)
	}
}

func TestScenarioOverBudget(t *testing.T) {
	snap := tightMonthSnap() // 4800 spent of a 4000 budget

	candidate, _ := NewScenario("weekend trip", decimal.NewFromInt(300)).Evaluate(snap, nil)
	if candidate == nil {
		t.Fatal("scenario always answers")
	}
	if !candidate.RawScore.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("raw score = %s, want 70 when the budget is already gone", candidate.RawScore)
	}
	if candidate.Recommendation == "" {
		t.Fatal("over-budget answer should carry a recommendation")
	}
}
