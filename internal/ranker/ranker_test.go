package ranker

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pocketwatch/internal/model"
)

func cand(ruleID, key string, severity model.Severity, raw int64, at time.Time) model.InsightCandidate {
	return model.InsightCandidate{
		RuleID:      ruleID,
		DedupeKey:   key,
		Severity:    severity,
		RawScore:    decimal.NewFromInt(raw),
		GeneratedAt: at,
	}
}

func TestRankIsDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 27, 12, 0, 0, 0, time.UTC)
	candidates := []model.InsightCandidate{
		cand("b_rule", "b:1", model.SeverityInfo, 50, now),
		cand("a_rule", "a:1", model.SeverityInfo, 50, now),
		cand("c_rule", "c:1", model.SeverityWarning, 40, now),
	}

	r := New(DefaultWeights())
	first := r.Rank(candidates, model.NewUserProfile("v"), now)
	second := r.Rank(candidates, model.NewUserProfile("v"), now)

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].DedupeKey != second[i].DedupeKey {
			t.Fatalf("order differs at %d: %s vs %s", i, first[i].DedupeKey, second[i].DedupeKey)
		}
	}

	// Warning 40*1.5=60 beats the two infos at 50; equal scores order by rule id.
	if first[0].RuleID != "c_rule" {
		t.Fatalf("top insight = %s, want c_rule", first[0].RuleID)
	}
	if first[1].RuleID != "a_rule" || first[2].RuleID != "b_rule" {
		t.Fatalf("ties must order by rule id: %s, %s", first[1].RuleID, first[2].RuleID)
	}
}

func TestRankDedupesToStrongestCandidate(t *testing.T) {
	now := time.Now()
	candidates := []model.InsightCandidate{
		cand("rule", "same:key", model.SeverityInfo, 30, now),
		cand("rule", "same:key", model.SeverityInfo, 80, now),
		cand("rule", "same:key", model.SeverityInfo, 10, now),
	}

	ranked := New(DefaultWeights()).Rank(candidates, nil, now)
	if len(ranked) != 1 {
		t.Fatalf("duplicates should collapse, got %d", len(ranked))
	}
	if !ranked[0].RawScore.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("kept raw score = %s, want the strongest 80", ranked[0].RawScore)
	}
}

func TestRankFatigueDecay(t *testing.T) {
	now := time.Now()
	profile := model.NewUserProfile("v")
	profile.ShownCounts["k:1"] = 2

	ranked := New(DefaultWeights()).Rank([]model.InsightCandidate{
		cand("rule", "k:1", model.SeverityInfo, 100, now),
	}, profile, now)

	// 100 * 0.85^2 = 72.25
	want := decimal.NewFromFloat(72.25)
	if !ranked[0].FinalScore.Equal(want) {
		t.Fatalf("final score = %s, want %s", ranked[0].FinalScore, want)
	}
}

func TestRankSuppressesDismissedWithinCooldown(t *testing.T) {
	now := time.Now()
	profile := model.NewUserProfile("v")
	profile.Dismissed["k:1"] = now.Add(-time.Hour)
	profile.Dismissed["k:2"] = now.Add(-8 * 24 * time.Hour)

	ranked := New(DefaultWeights()).Rank([]model.InsightCandidate{
		cand("rule", "k:1", model.SeverityInfo, 50, now),
		cand("rule", "k:2", model.SeverityInfo, 50, now),
	}, profile, now)

	byKey := make(map[string]model.RankedInsight)
	for _, r := range ranked {
		byKey[r.DedupeKey] = r
	}

	if !byKey["k:1"].Suppressed || byKey["k:1"].SuppressReason != model.SuppressDismissed {
		t.Fatalf("recent dismissal should suppress: %+v", byKey["k:1"])
	}
	if byKey["k:2"].Suppressed {
		t.Fatal("dismissal older than the cooldown should not suppress")
	}
}

func TestRankSuppressesMutedRules(t *testing.T) {
	now := time.Now()
	profile := model.NewUserProfile("v")
	profile.MutedRules["noisy"] = true

	ranked := New(DefaultWeights()).Rank([]model.InsightCandidate{
		cand("noisy", "n:1", model.SeverityError, 100, now),
	}, profile, now)

	if !ranked[0].Suppressed || ranked[0].SuppressReason != SuppressMuted {
		t.Fatalf("muted rule should be suppressed: %+v", ranked[0])
	}
}

func TestRankCapsVisibleInsights(t *testing.T) {
	now := time.Now()
	weights := DefaultWeights()
	weights.VisibleCap = 3

	candidates := make([]model.InsightCandidate, 0, 7)
	for i := 0; i < 7; i++ {
		candidates = append(candidates, cand("rule", fmt.Sprintf("k:%d", i), model.SeverityInfo, int64(100-i), now))
	}

	ranked := New(weights).Rank(candidates, nil, now)

	visible := 0
	for _, r := range ranked {
		if !r.Suppressed {
			visible++
			continue
		}
		if r.SuppressReason != model.SuppressOverCap {
			t.Fatalf("unexpected suppress reason %q", r.SuppressReason)
		}
	}
	if visible != 3 {
		t.Fatalf("visible = %d, want exactly the cap of 3", visible)
	}
	if len(ranked) != 7 {
		t.Fatalf("suppressed insights must stay in the output, got %d of 7", len(ranked))
	}
}

func TestMarkShownCountsOnlyVisible(t *testing.T) {
	profile := model.NewUserProfile("v")
	MarkShown(profile, []model.RankedInsight{
		{InsightCandidate: model.InsightCandidate{DedupeKey: "a"}},
		{InsightCandidate: model.InsightCandidate{DedupeKey: "b"}, Suppressed: true},
	})

	if profile.ShownCounts["a"] != 1 {
		t.Fatalf("visible insight should count, got %d", profile.ShownCounts["a"])
	}
	if profile.ShownCounts["b"] != 0 {
		t.Fatalf("suppressed insight must not count, got %d", profile.ShownCounts["b"])
	}
}
