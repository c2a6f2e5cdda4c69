// Package engine runs the registered insight rules over a snapshot.
package engine

import (
	"fmt"

	"github.com/rs/zerolog"

	"pocketwatch/internal/model"
	"pocketwatch/internal/rules"
)

// Engine holds an ordered registry of rules. Registration order carries no
// priority; ranking is the downstream ranker's job.
type Engine struct {
	registry []rules.Rule
	logger   zerolog.Logger
}

// New constructs an engine over the given rules.
func New(registry []rules.Rule, logger zerolog.Logger) *Engine {
	return &Engine{
		registry: registry,
		logger:   logger.With().Str("component", "engine").Logger(),
	}
}

// Register appends a rule to the registry.
func (e *Engine) Register(r rules.Rule) {
	e.registry = append(e.registry, r)
}

// Rules returns the registered rule ids in registration order.
func (e *Engine) Rules() []string {
	ids := make([]string, 0, len(e.registry))
	for _, r := range e.registry {
		ids = append(ids, r.ID())
	}
	return ids
}

// Evaluate invokes every registered rule exactly once and collects the
// non-nil candidates. A rule that errors or panics is logged and skipped;
// it never aborts the remaining rules, and Evaluate itself never panics.
func (e *Engine) Evaluate(snap *model.FinancialSnapshot, wallet *model.WalletRiskState) []model.InsightCandidate {
	candidates := make([]model.InsightCandidate, 0, len(e.registry))

	for _, rule := range e.registry {
		candidate, err := e.evaluateOne(rule, snap, wallet)
		if err != nil {
			e.logger.Warn().Err(err).Str("rule", rule.ID()).Msg("rule evaluation failed; skipping")
			continue
		}
		if candidate != nil {
			candidates = append(candidates, *candidate)
		}
	}

	return candidates
}

func (e *Engine) evaluateOne(rule rules.Rule, snap *model.FinancialSnapshot, wallet *model.WalletRiskState) (candidate *model.InsightCandidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			candidate = nil
			err = fmt.Errorf("rule %s panicked: %v", rule.ID(), r)
		}
	}()
	return rule.Evaluate(snap, wallet)
}
