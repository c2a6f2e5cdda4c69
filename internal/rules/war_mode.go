package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"pocketwatch/internal/model"
)

// WarMode bridges the wallet risk state machine into the insight stream:
// while the wallet sits in Caution or War, the state itself is surfaced as
// an insight. The dedupe key includes the transition time so each entry
// into a risk level is shown once, not on every cycle.
type WarMode struct{}

// NewWarMode constructs the rule.
func NewWarMode() *WarMode { return &WarMode{} }

// ID implements Rule.
func (r *WarMode) ID() string { return "war_mode" }

// Evaluate implements Rule.
func (r *WarMode) Evaluate(snap *model.FinancialSnapshot, wallet *model.WalletRiskState) (*model.InsightCandidate, error) {
	if wallet == nil || wallet.Level == model.RiskNormal {
		return nil, nil
	}

	runway := "unknown"
	if wallet.RunwayDays != nil {
		runway = wallet.RunwayDays.StringFixed(1)
	}

	candidate := &model.InsightCandidate{
		RuleID:      r.ID(),
		DedupeKey:   dedupeKey(r.ID(), string(wallet.Level), fmt.Sprintf("%d", wallet.EnteredAt.Unix())),
		GeneratedAt: snap.AsOf,
	}

	switch wallet.Level {
	case model.RiskWar:
		candidate.Severity = model.SeverityError
		candidate.Title = "Wallet is in war mode"
		candidate.Description = fmt.Sprintf("Estimated runway is %s days of cash.", runway)
		candidate.Recommendation = fmt.Sprintf(
			"Discretionary categories now ask for confirmation: %s.",
			strings.Join(sortedCategories(wallet.RestrictedCategories), ", "),
		)
		candidate.RawScore = decimal.NewFromInt(100)
	default:
		candidate.Severity = model.SeverityWarning
		candidate.Title = "Wallet needs caution"
		candidate.Description = fmt.Sprintf("Estimated runway is %s days of cash.", runway)
		candidate.Recommendation = "Trimming discretionary spend now avoids war mode later."
		candidate.RawScore = decimal.NewFromInt(60)
	}

	return candidate, nil
}

func sortedCategories(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

var _ Rule = (*WarMode)(nil)
