package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"pocketwatch/internal/model"
)

// GoalProgress flags the goal falling furthest behind its
// time-proportional target.
type GoalProgress struct {
	lagTolerance float64
}

// NewGoalProgress constructs the rule. lagTolerance scales the expected
// progress line; 0.85 means a goal only fires once it drops below 85% of
// where the calendar says it should be.
func NewGoalProgress(lagTolerance float64) *GoalProgress {
	if lagTolerance <= 0 || lagTolerance > 1 {
		lagTolerance = 0.85
	}
	return &GoalProgress{lagTolerance: lagTolerance}
}

// ID implements Rule.
func (r *GoalProgress) ID() string { return "goal_progress" }

// Evaluate implements Rule.
func (r *GoalProgress) Evaluate(snap *model.FinancialSnapshot, _ *model.WalletRiskState) (*model.InsightCandidate, error) {
	var (
		worst    *model.Goal
		worstLag decimal.Decimal
		expected decimal.Decimal
	)

	tolerance := decimal.NewFromFloat(r.lagTolerance)

	for i := range snap.Goals {
		goal := snap.Goals[i]
		if !goal.Target.IsPositive() || goal.Deadline.IsZero() || goal.Created.IsZero() {
			continue
		}
		total := goal.Deadline.Sub(goal.Created)
		if total <= 0 {
			continue
		}

		elapsed := snap.AsOf.Sub(goal.Created)
		if elapsed <= 0 {
			continue
		}
		if elapsed > total {
			elapsed = total
		}

		fraction := decimal.NewFromFloat(elapsed.Seconds() / total.Seconds())
		want := goal.Target.Mul(fraction).Mul(tolerance)
		if goal.Progress.GreaterThanOrEqual(want) {
			continue
		}

		lag := want.Sub(goal.Progress)
		if worst == nil || lag.GreaterThan(worstLag) {
			worst = &snap.Goals[i]
			worstLag = lag
			expected = goal.Target.Mul(fraction)
		}
	}

	if worst == nil {
		return nil, nil
	}

	name := worst.Name
	if name == "" {
		name = worst.ID
	}

	return &model.InsightCandidate{
		RuleID:    r.ID(),
		DedupeKey: dedupeKey(r.ID(), worst.ID, snap.MonthBucket()),
		Severity:  model.SeverityWarning,
		Title:     fmt.Sprintf("Goal %q is falling behind", name),
		Description: fmt.Sprintf(
			"Saved %s of %s; on pace you'd have %s by now.",
			money(worst.Progress), money(worst.Target), money(expected.Round(2)),
		),
		Recommendation: fmt.Sprintf("Putting aside %s extra this month gets the goal back on track.", money(worstLag.Round(2))),
		RawScore:       worstLag.Div(worst.Target).Mul(hundred).Round(2),
		GeneratedAt:    snap.AsOf,
	}, nil
}

var _ Rule = (*GoalProgress)(nil)
