package rules

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"pocketwatch/internal/model"
)

// CategoryAnomaly flags the category whose current-month spend deviates
// furthest from its historical mean. With enough history the test is a
// standard-deviation band; with short history it falls back to a plain
// ratio threshold.
type CategoryAnomaly struct {
	sigma     float64
	ratio     float64
	minMonths int
}

// NewCategoryAnomaly constructs the rule.
func NewCategoryAnomaly(sigma, ratio float64, minMonths int) *CategoryAnomaly {
	return &CategoryAnomaly{sigma: sigma, ratio: ratio, minMonths: minMonths}
}

// ID implements Rule.
func (r *CategoryAnomaly) ID() string { return "category_anomaly" }

// Evaluate implements Rule.
func (r *CategoryAnomaly) Evaluate(snap *model.FinancialSnapshot, _ *model.WalletRiskState) (*model.InsightCandidate, error) {
	if snap.Empty {
		return nil, nil
	}

	var (
		worstCategory string
		worstScore    float64
		worstCurrent  decimal.Decimal
		worstMean     float64
	)

	for category, current := range snap.CategoryBreakdown {
		history := snap.CategoryHistory[category]
		if len(history) == 0 {
			continue
		}

		mean, stddev := meanStddev(history)
		if mean <= 0 {
			continue
		}

		cur, _ := current.Float64()

		var score float64
		if len(history) >= r.minMonths && stddev > 0 {
			z := (cur - mean) / stddev
			if z < r.sigma {
				continue
			}
			score = z / r.sigma
		} else {
			ratio := cur / mean
			if ratio < r.ratio {
				continue
			}
			score = ratio / r.ratio
		}

		if score > worstScore {
			worstScore = score
			worstCategory = category
			worstCurrent = current
			worstMean = mean
		}
	}

	if worstCategory == "" {
		return nil, nil
	}

	return &model.InsightCandidate{
		RuleID:    r.ID(),
		DedupeKey: dedupeKey(r.ID(), worstCategory, snap.MonthBucket()),
		Severity:  model.SeverityWarning,
		Title:     fmt.Sprintf("Unusual spending in %s", worstCategory),
		Description: fmt.Sprintf(
			"%s is at %s this month against a typical %s.",
			worstCategory, money(worstCurrent), money(decimal.NewFromFloat(worstMean).Round(2)),
		),
		Recommendation: fmt.Sprintf("Review recent %s purchases for anything unexpected.", worstCategory),
		RawScore:       decimal.NewFromFloat(worstScore).Mul(hundred).Round(2),
		GeneratedAt:    snap.AsOf,
	}, nil
}

// meanStddev computes population statistics over historical month totals.
// Floats are fine here: the output drives a threshold, not a balance.
func meanStddev(history []decimal.Decimal) (mean, stddev float64) {
	if len(history) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, h := range history {
		v, _ := h.Float64()
		sum += v
	}
	mean = sum / float64(len(history))

	variance := 0.0
	for _, h := range history {
		v, _ := h.Float64()
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(history))
	return mean, math.Sqrt(variance)
}

var _ Rule = (*CategoryAnomaly)(nil)
