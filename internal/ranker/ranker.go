// Package ranker turns raw rule candidates into the ranked, deduplicated,
// capped insight list a user actually sees. Ranking is deterministic: the
// same candidates and profile always yield the same ordered output.
package ranker

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"pocketwatch/internal/model"
)

// SuppressMuted marks insights from rules the user muted.
const SuppressMuted = "rule_muted"

// Weights tune the personalisation formula.
type Weights struct {
	Severity        map[model.Severity]decimal.Decimal
	DecayFactor     decimal.Decimal
	DismissCooldown time.Duration
	VisibleCap      int
}

// DefaultWeights mirror the configuration defaults.
func DefaultWeights() Weights {
	return Weights{
		Severity: map[model.Severity]decimal.Decimal{
			model.SeverityInfo:    decimal.NewFromInt(1),
			model.SeveritySuccess: decimal.NewFromFloat(1.2),
			model.SeverityWarning: decimal.NewFromFloat(1.5),
			model.SeverityError:   decimal.NewFromInt(2),
		},
		DecayFactor:     decimal.NewFromFloat(0.85),
		DismissCooldown: 7 * 24 * time.Hour,
		VisibleCap:      5,
	}
}

// Ranker scores, deduplicates, decays, and caps insight candidates.
type Ranker struct {
	weights Weights
}

// New constructs a Ranker.
func New(weights Weights) *Ranker {
	if weights.VisibleCap < 1 {
		weights.VisibleCap = 1
	}
	return &Ranker{weights: weights}
}

// Rank applies the full personalisation pipeline. Suppressed insights stay
// in the output for auditability; they are never silently dropped, except
// same-cycle duplicates which collapse into their strongest candidate.
func (r *Ranker) Rank(candidates []model.InsightCandidate, profile *model.UserProfile, now time.Time) []model.RankedInsight {
	deduped := dedupe(candidates)

	ranked := make([]model.RankedInsight, 0, len(deduped))
	for _, c := range deduped {
		insight := model.RankedInsight{
			InsightCandidate: c,
			FinalScore:       r.finalScore(c, profile),
		}

		if profile != nil {
			if profile.MutedRules[c.RuleID] {
				insight.Suppressed = true
				insight.SuppressReason = SuppressMuted
			} else if dismissedAt, ok := profile.Dismissed[c.DedupeKey]; ok {
				if now.Sub(dismissedAt) < r.weights.DismissCooldown {
					insight.Suppressed = true
					insight.SuppressReason = model.SuppressDismissed
				}
			}
		}

		ranked = append(ranked, insight)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return less(ranked[i], ranked[j])
	})

	visible := 0
	for i := range ranked {
		if ranked[i].Suppressed {
			continue
		}
		if visible >= r.weights.VisibleCap {
			ranked[i].Suppressed = true
			ranked[i].SuppressReason = model.SuppressOverCap
			continue
		}
		visible++
	}

	return ranked
}

// MarkShown records a shown event on the profile for every visible insight,
// feeding the fatigue decay of future cycles.
func MarkShown(profile *model.UserProfile, ranked []model.RankedInsight) {
	if profile == nil {
		return
	}
	for _, insight := range ranked {
		if !insight.Suppressed {
			profile.ShownCounts[insight.DedupeKey]++
		}
	}
}

// finalScore = raw * severity weight * fatigue decay. Muting is handled as
// suppression, not a score penalty, so a muted rule stays invisible even
// when the visible list is short.
func (r *Ranker) finalScore(c model.InsightCandidate, profile *model.UserProfile) decimal.Decimal {
	score := c.RawScore

	if w, ok := r.weights.Severity[c.Severity]; ok {
		score = score.Mul(w)
	}

	if profile != nil {
		if shown := profile.ShownCounts[c.DedupeKey]; shown > 0 {
			score = score.Mul(r.weights.DecayFactor.Pow(decimal.NewFromInt(int64(shown))))
		}
	}

	return score
}

// dedupe keeps the highest-raw-score candidate per dedupe key. Ties prefer
// the most recent candidate, then the lexicographically smallest rule id,
// keeping the choice deterministic.
func dedupe(candidates []model.InsightCandidate) []model.InsightCandidate {
	best := make(map[string]model.InsightCandidate, len(candidates))
	order := make([]string, 0, len(candidates))

	for _, c := range candidates {
		existing, ok := best[c.DedupeKey]
		if !ok {
			best[c.DedupeKey] = c
			order = append(order, c.DedupeKey)
			continue
		}
		if stronger(c, existing) {
			best[c.DedupeKey] = c
		}
	}

	out := make([]model.InsightCandidate, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

func stronger(a, b model.InsightCandidate) bool {
	if !a.RawScore.Equal(b.RawScore) {
		return a.RawScore.GreaterThan(b.RawScore)
	}
	if !a.GeneratedAt.Equal(b.GeneratedAt) {
		return a.GeneratedAt.After(b.GeneratedAt)
	}
	return a.RuleID < b.RuleID
}

// less is the total order for ranked output: final score descending, then
// generation time descending, then rule id ascending.
func less(a, b model.RankedInsight) bool {
	if !a.FinalScore.Equal(b.FinalScore) {
		return a.FinalScore.GreaterThan(b.FinalScore)
	}
	if !a.GeneratedAt.Equal(b.GeneratedAt) {
		return a.GeneratedAt.After(b.GeneratedAt)
	}
	return a.RuleID < b.RuleID
}
