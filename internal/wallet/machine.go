package wallet

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pocketwatch/internal/model"
)

// Thresholds hold the runway boundaries driving state transitions. Values
// are validated at config load; the machine trusts them.
type Thresholds struct {
	CautionDays        decimal.Decimal
	WarDays            decimal.Decimal
	RecoveryCycles     int
	MinObservationDays int
}

// Transition describes the outcome of applying one runway observation.
type Transition struct {
	Changed bool
	From    model.RiskLevel
	To      model.RiskLevel
}

// Machine owns one vault's WalletRiskState and is its only writer.
//
// Degradation is immediate: a runway that plunges straight past the caution
// band moves Normal to War in a single apply. Recovery requires
// RecoveryCycles consecutive qualifying observations so a runway oscillating
// at a boundary does not flap the state every cycle.
type Machine struct {
	mu sync.Mutex

	state         model.WalletRiskState
	thresholds    Thresholds
	discretionary []string

	recoveryStreak int

	logger zerolog.Logger
}

// NewMachine builds a machine starting in Normal for the given vault.
func NewMachine(vaultID string, thresholds Thresholds, discretionary []string, logger zerolog.Logger) *Machine {
	return &Machine{
		state: model.WalletRiskState{
			VaultID:              vaultID,
			Level:                model.RiskNormal,
			RestrictedCategories: make(map[string]struct{}),
			EnteredAt:            time.Now().UTC(),
		},
		thresholds:    thresholds,
		discretionary: discretionary,
		logger:        logger.With().Str("component", "wallet").Str("vault", vaultID).Logger(),
	}
}

// Apply folds one runway observation into the state. Re-applying the same
// snapshot version is a no-op, so a cycle that gets retried cannot emit a
// duplicate transition.
func (m *Machine) Apply(snapshotVersion int64, runway model.RunwayResult, now time.Time) Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.state.Level
	if snapshotVersion != 0 && snapshotVersion == m.state.SnapshotVersion {
		return Transition{From: current, To: current}
	}

	m.state.SnapshotVersion = snapshotVersion
	m.state.RunwayDays = runway.RunwayDays
	m.state.BurnRatePerDay = runway.BurnRatePerDay

	if !runway.Known() {
		// No basis to move in either direction.
		m.recoveryStreak = 0
		return Transition{From: current, To: current}
	}

	indicated := m.levelFor(*runway.RunwayDays)

	switch {
	case indicated.WorseThan(current):
		m.recoveryStreak = 0
		m.transition(indicated, now)
		return Transition{Changed: true, From: current, To: indicated}

	case current.WorseThan(indicated):
		m.recoveryStreak++
		if m.recoveryStreak < m.thresholds.RecoveryCycles {
			return Transition{From: current, To: current}
		}
		m.recoveryStreak = 0
		m.transition(indicated, now)
		return Transition{Changed: true, From: current, To: indicated}

	default:
		m.recoveryStreak = 0
		return Transition{From: current, To: current}
	}
}

// State returns a copy of the current risk state.
func (m *Machine) State() model.WalletRiskState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// IsCategoryRestricted reports whether the category is gated right now.
// Reads the last committed state without waiting for an in-flight
// evaluation, so it may trail the ledger by one cycle; the entry flow adds
// friction, never a hard block, which makes that staleness acceptable.
func (m *Machine) IsCategoryRestricted(category string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Restricted(category)
}

func (m *Machine) levelFor(runwayDays decimal.Decimal) model.RiskLevel {
	switch {
	case runwayDays.LessThan(m.thresholds.WarDays):
		return model.RiskWar
	case runwayDays.LessThan(m.thresholds.CautionDays):
		return model.RiskCaution
	default:
		return model.RiskNormal
	}
}

func (m *Machine) transition(to model.RiskLevel, now time.Time) {
	from := m.state.Level
	m.state.Level = to
	m.state.EnteredAt = now.UTC()

	if to == model.RiskWar {
		m.state.RestrictedCategories = make(map[string]struct{}, len(m.discretionary))
		for _, c := range m.discretionary {
			m.state.RestrictedCategories[c] = struct{}{}
		}
	} else {
		m.state.RestrictedCategories = make(map[string]struct{})
	}

	evt := m.logger.Info().Str("from", string(from)).Str("to", string(to))
	if m.state.RunwayDays != nil {
		evt = evt.Str("runway_days", m.state.RunwayDays.StringFixed(2))
	}
	evt.Msg("wallet risk level changed")
}
