// Package rules contains the individual insight evaluators. Each rule is
// self-contained: it reads only the snapshot and wallet state it is handed,
// never another rule's output, and returns nil when its trigger condition is
// not met.
package rules

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pocketwatch/internal/model"
)

// Rule evaluates one behavioral finding against an immutable snapshot.
type Rule interface {
	ID() string
	Evaluate(snap *model.FinancialSnapshot, wallet *model.WalletRiskState) (*model.InsightCandidate, error)
}

// Options carries the tunables shared across rule constructors.
type Options struct {
	AnomalySigma          float64
	AnomalyRatio          float64
	AnomalyMinMonths      int
	VelocityWindowDays    int
	GoalLagTolerance      float64
	SubscriptionMinHits   int
	SubscriptionAmountTol float64
}

// DefaultOptions mirror the configuration defaults.
func DefaultOptions() Options {
	return Options{
		AnomalySigma:          2.0,
		AnomalyRatio:          1.8,
		AnomalyMinMonths:      3,
		VelocityWindowDays:    3,
		GoalLagTolerance:      0.85,
		SubscriptionMinHits:   2,
		SubscriptionAmountTol: 0.05,
	}
}

// Standard constructs the full registry in its standard order. Registration
// order carries no priority; ranking happens downstream.
func Standard(opts Options) []Rule {
	return []Rule{
		NewSafeToSpend(),
		NewCategoryAnomaly(opts.AnomalySigma, opts.AnomalyRatio, opts.AnomalyMinMonths),
		NewSpendingVelocity(opts.VelocityWindowDays),
		NewStreakMomentum(),
		NewWarMode(),
		NewCashflowForecast(),
		NewGoalProgress(opts.GoalLagTolerance),
		NewSubscriptionCluster(opts.SubscriptionMinHits, opts.SubscriptionAmountTol),
	}
}

var hundred = decimal.NewFromInt(100)

// dedupeKey builds the stable cross-cycle identity of a finding.
func dedupeKey(ruleID string, parts ...string) string {
	key := ruleID
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// spentSince sums transactions dated on or after the cutoff.
func spentSince(snap *model.FinancialSnapshot, cutoff time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range snap.RecentTransactions {
		if tx.Date.Before(cutoff) {
			// Most-recent-first ordering; everything past here is older.
			break
		}
		total = total.Add(tx.Amount)
	}
	return total
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func daysLabel(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}
