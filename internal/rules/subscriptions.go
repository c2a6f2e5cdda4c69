package rules

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"pocketwatch/internal/model"
)

// SubscriptionCluster looks for groups of recurring, similarly named and
// similarly priced transactions that smell like unmanaged subscriptions.
type SubscriptionCluster struct {
	minHits   int
	amountTol decimal.Decimal
}

// NewSubscriptionCluster constructs the rule. amountTol is the relative
// deviation (e.g. 0.05) still considered "the same" charge.
func NewSubscriptionCluster(minHits int, amountTol float64) *SubscriptionCluster {
	if minHits < 2 {
		minHits = 2
	}
	return &SubscriptionCluster{minHits: minHits, amountTol: decimal.NewFromFloat(amountTol)}
}

// ID implements Rule.
func (r *SubscriptionCluster) ID() string { return "subscription_cluster" }

type subCluster struct {
	label   string
	hits    int
	monthly decimal.Decimal
}

// Evaluate implements Rule.
func (r *SubscriptionCluster) Evaluate(snap *model.FinancialSnapshot, _ *model.WalletRiskState) (*model.InsightCandidate, error) {
	if snap.Empty {
		return nil, nil
	}

	groups := make(map[string][]model.Transaction)
	for _, tx := range snap.RecentTransactions {
		label := normalizeMerchant(tx.Note)
		if label == "" {
			continue
		}
		groups[label] = append(groups[label], tx)
	}

	clusters := make([]subCluster, 0)
	for label, txs := range groups {
		if cluster, ok := r.clusterOf(label, txs); ok {
			clusters = append(clusters, cluster)
		}
	}
	if len(clusters) == 0 {
		return nil, nil
	}

	sort.Slice(clusters, func(i, j int) bool {
		if !clusters[i].monthly.Equal(clusters[j].monthly) {
			return clusters[i].monthly.GreaterThan(clusters[j].monthly)
		}
		return clusters[i].label < clusters[j].label
	})

	total := decimal.Zero
	names := make([]string, 0, len(clusters))
	for _, c := range clusters {
		total = total.Add(c.monthly)
		names = append(names, c.label)
	}

	return &model.InsightCandidate{
		RuleID:    r.ID(),
		DedupeKey: dedupeKey(r.ID(), snap.MonthBucket()),
		Severity:  model.SeverityInfo,
		Title:     fmt.Sprintf("%d recurring charges found", len(clusters)),
		Description: fmt.Sprintf(
			"Charges that repeat like subscriptions add up to %s/month: %s.",
			money(total), strings.Join(names, ", "),
		),
		Recommendation: "Cancelling unused subscriptions is the cheapest saving there is.",
		RawScore:       total.Round(2),
		GeneratedAt:    snap.AsOf,
	}, nil
}

// clusterOf decides whether one merchant's transactions recur on a roughly
// monthly cadence at a stable price.
func (r *SubscriptionCluster) clusterOf(label string, txs []model.Transaction) (subCluster, bool) {
	if len(txs) < r.minHits {
		return subCluster{}, false
	}

	// Transactions arrive most-recent-first.
	base := txs[0].Amount
	if !base.IsPositive() {
		return subCluster{}, false
	}
	for _, tx := range txs[1:] {
		rel := tx.Amount.Sub(base).Abs().Div(base)
		if rel.GreaterThan(r.amountTol) {
			return subCluster{}, false
		}
	}

	for i := 0; i < len(txs)-1; i++ {
		gap := txs[i].Date.Sub(txs[i+1].Date).Hours() / 24
		if gap < 20 || gap > 40 {
			return subCluster{}, false
		}
	}

	return subCluster{label: label, hits: len(txs), monthly: base}, true
}

// normalizeMerchant reduces a transaction note to a comparable merchant
// label: lowercase, digits and punctuation stripped, first two words.
func normalizeMerchant(note string) string {
	cleaned := strings.Map(func(ch rune) rune {
		switch {
		case unicode.IsLetter(ch):
			return unicode.ToLower(ch)
		case unicode.IsSpace(ch):
			return ' '
		default:
			return -1
		}
	}, note)

	fields := strings.Fields(cleaned)
	if len(fields) == 0 {
		return ""
	}
	if len(fields) > 2 {
		fields = fields[:2]
	}
	return strings.Join(fields, " ")
}

var _ Rule = (*SubscriptionCluster)(nil)
