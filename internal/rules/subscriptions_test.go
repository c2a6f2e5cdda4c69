package rules

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pocketwatch/internal/model"
)

func subTx(id, note string, amount float64, daysAgo int, asOf time.Time) model.Transaction {
	return model.Transaction{
		ID:     id,
		Amount: decimal.NewFromFloat(amount),
		Note:   note,
		Date:   asOf.AddDate(0, 0, -daysAgo),
	}
}

func TestSubscriptionClusterDetectsMonthlyCharge(t *testing.T) {
	snap := tightMonthSnap()
	snap.RecentTransactions = []model.Transaction{
		subTx("t3", "Netflix com 8512", 15.99, 2, snap.AsOf),
		subTx("t2", "Netflix com", 15.99, 32, snap.AsOf),
		subTx("t1", "netflix COM", 15.99, 62, snap.AsOf),
		subTx("t0", "Corner grocery", 54.10, 3, snap.AsOf),
	}

	candidate, err := NewSubscriptionCluster(2, 0.05).Evaluate(snap, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if candidate == nil {
		t.Fatal("three monthly netflix charges should cluster")
	}
	if candidate.Severity != model.SeverityInfo {
		t.Fatalf("severity = %s, want info", candidate.Severity)
	}
	if !candidate.RawScore.Equal(decimal.NewFromFloat(15.99)) {
		t.Fatalf("raw score = %s, want the monthly total 15.99", candidate.RawScore)
	}
}

func TestSubscriptionClusterRejectsVariableAmounts(t *testing.T) {
	snap := tightMonthSnap()
	snap.RecentTransactions = []model.Transaction{
		subTx("t2", "Corner grocery", 80.00, 2, snap.AsOf),
		subTx("t1", "Corner grocery", 45.00, 32, snap.AsOf),
		subTx("t0", "Corner grocery", 120.00, 62, snap.AsOf),
	}

	if candidate, _ := NewSubscriptionCluster(2, 0.05).Evaluate(snap, nil); candidate != nil {
		t.Fatalf("variable grocery runs are not subscriptions, got %q", candidate.Title)
	}
}

func TestSubscriptionClusterRejectsIrregularCadence(t *testing.T) {
	snap := tightMonthSnap()
	snap.RecentTransactions = []model.Transaction{
		subTx("t2", "Gym membership", 29.99, 1, snap.AsOf),
		subTx("t1", "Gym membership", 29.99, 4, snap.AsOf),
		subTx("t0", "Gym membership", 29.99, 7, snap.AsOf),
	}

	if candidate, _ := NewSubscriptionCluster(2, 0.05).Evaluate(snap, nil); candidate != nil {
		t.Fatalf("weekly gaps are not a monthly cadence, got %q", candidate.Title)
	}
}

func TestNormalizeMerchant(t *testing.T) {
	cases := map[string]string{
		"NETFLIX.COM 8512":        "netflixcom",
		"Spotify AB  Stockholm":   "spotify ab",
		"  ":                      "",
		"12345":                   "",
		"Corner grocery downtown": "corner grocery",
	}
	for in, want := range cases {
		if got := normalizeMerchant(in); got != want {
			t.Fatalf("normalizeMerchant(%q) = %q, want %q", in, got, want)
		}
	}
}
