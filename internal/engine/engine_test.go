package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pocketwatch/internal/model"
	"pocketwatch/internal/rules"
)

type stubRule struct {
	id        string
	candidate *model.InsightCandidate
	err       error
	panics    bool
}

func (s *stubRule) ID() string { return s.id }

func (s *stubRule) Evaluate(_ *model.FinancialSnapshot, _ *model.WalletRiskState) (*model.InsightCandidate, error) {
	if s.panics {
		panic("rule exploded")
	}
	return s.candidate, s.err
}

var _ rules.Rule = (*stubRule)(nil)

func candidateFor(id string) *model.InsightCandidate {
	return &model.InsightCandidate{
		RuleID:      id,
		DedupeKey:   id + ":test",
		Severity:    model.SeverityInfo,
		RawScore:    decimal.NewFromInt(10),
		GeneratedAt: time.Now(),
	}
}

func TestEvaluateCollectsCandidates(t *testing.T) {
	eng := New([]rules.Rule{
		&stubRule{id: "a", candidate: candidateFor("a")},
		&stubRule{id: "b"}, // silent
		&stubRule{id: "c", candidate: candidateFor("c")},
	}, zerolog.Nop())

	got := eng.Evaluate(&model.FinancialSnapshot{}, nil)
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].RuleID != "a" || got[1].RuleID != "c" {
		t.Fatalf("unexpected order: %s, %s", got[0].RuleID, got[1].RuleID)
	}
}

func TestEvaluateContainsPanics(t *testing.T) {
	eng := New([]rules.Rule{
		&stubRule{id: "before", candidate: candidateFor("before")},
		&stubRule{id: "boom", panics: true},
		&stubRule{id: "after", candidate: candidateFor("after")},
	}, zerolog.Nop())

	got := eng.Evaluate(&model.FinancialSnapshot{}, nil)
	if len(got) != 2 {
		t.Fatalf("a panicking rule must not take down the others: got %d candidates", len(got))
	}
}

func TestEvaluateSkipsFailingRules(t *testing.T) {
	eng := New([]rules.Rule{
		&stubRule{id: "bad", err: errors.New("store offline")},
		&stubRule{id: "good", candidate: candidateFor("good")},
	}, zerolog.Nop())

	got := eng.Evaluate(&model.FinancialSnapshot{}, nil)
	if len(got) != 1 || got[0].RuleID != "good" {
		t.Fatalf("failing rule should be skipped, got %d candidates", len(got))
	}
}

func TestRulesReportsRegistrationOrder(t *testing.T) {
	eng := New(nil, zerolog.Nop())
	eng.Register(&stubRule{id: "x"})
	eng.Register(&stubRule{id: "y"})

	ids := eng.Rules()
	if len(ids) != 2 || ids[0] != "x" || ids[1] != "y" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}
