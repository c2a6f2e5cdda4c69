package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskLevel is the wallet's current risk classification.
type RiskLevel string

const (
	RiskNormal  RiskLevel = "normal"
	RiskCaution RiskLevel = "caution"
	RiskWar     RiskLevel = "war"
)

// rank orders levels from safest to most severe.
func (l RiskLevel) rank() int {
	switch l {
	case RiskCaution:
		return 1
	case RiskWar:
		return 2
	default:
		return 0
	}
}

// WorseThan reports whether l is a more severe level than other.
func (l RiskLevel) WorseThan(other RiskLevel) bool {
	return l.rank() > other.rank()
}

// RunwayResult is the output of the runway calculator.
type RunwayResult struct {
	// RunwayDays is nil when burn rate is zero or the observation window is
	// too thin to extrapolate.
	RunwayDays     *decimal.Decimal
	BurnRatePerDay decimal.Decimal
}

// Known reports whether a runway figure could be computed.
func (r RunwayResult) Known() bool {
	return r.RunwayDays != nil
}

// WalletRiskState is the long-lived per-vault risk state. It is owned and
// mutated only by the wallet state machine.
type WalletRiskState struct {
	VaultID        string
	Level          RiskLevel
	RunwayDays     *decimal.Decimal
	BurnRatePerDay decimal.Decimal

	// RestrictedCategories is non-empty iff Level == RiskWar.
	RestrictedCategories map[string]struct{}

	EnteredAt       time.Time
	SnapshotVersion int64
}

// Restricted reports whether the category is currently gated. True only in
// War and only for configured discretionary categories.
func (w *WalletRiskState) Restricted(category string) bool {
	if w == nil || w.Level != RiskWar {
		return false
	}
	_, ok := w.RestrictedCategories[category]
	return ok
}

// Clone returns a copy safe to hand to readers while the machine keeps
// mutating the original.
func (w *WalletRiskState) Clone() WalletRiskState {
	out := *w
	if w.RunwayDays != nil {
		v := *w.RunwayDays
		out.RunwayDays = &v
	}
	out.RestrictedCategories = make(map[string]struct{}, len(w.RestrictedCategories))
	for c := range w.RestrictedCategories {
		out.RestrictedCategories[c] = struct{}{}
	}
	return out
}

// WalletEvent records a state transition for auditing and export.
type WalletEvent struct {
	ID         int64
	VaultID    string
	FromLevel  RiskLevel
	ToLevel    RiskLevel
	RunwayDays *decimal.Decimal
	OccurredAt time.Time
}
