package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"pocketwatch/internal/model"
)

// StreakMomentum produces a positive insight when the current
// days-under-budget streak beats the user's previous best.
type StreakMomentum struct{}

// NewStreakMomentum constructs the rule.
func NewStreakMomentum() *StreakMomentum { return &StreakMomentum{} }

// ID implements Rule.
func (r *StreakMomentum) ID() string { return "streak_momentum" }

// Evaluate implements Rule.
func (r *StreakMomentum) Evaluate(snap *model.FinancialSnapshot, _ *model.WalletRiskState) (*model.InsightCandidate, error) {
	streak := snap.Streak
	if streak.Current == 0 || streak.Current <= streak.Best {
		return nil, nil
	}

	return &model.InsightCandidate{
		RuleID:    r.ID(),
		DedupeKey: dedupeKey(r.ID(), fmt.Sprintf("%d", streak.Current)),
		Severity:  model.SeveritySuccess,
		Title:     "New personal best streak",
		Description: fmt.Sprintf(
			"%s under budget in a row; your previous best was %s.",
			daysLabel(streak.Current), daysLabel(streak.Best),
		),
		Recommendation: "Keep it going; streaks compound.",
		RawScore:       decimal.NewFromInt(int64(streak.Current)).Mul(decimal.NewFromInt(5)),
		GeneratedAt:    snap.AsOf,
	}, nil
}

var _ Rule = (*StreakMomentum)(nil)
