package wallet

import (
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pocketwatch/internal/model"
)

func testThresholds() Thresholds {
	return Thresholds{
		CautionDays:        decimal.NewFromInt(30),
		WarDays:            decimal.NewFromInt(14),
		RecoveryCycles:     3,
		MinObservationDays: 5,
	}
}

func testMachine() *Machine {
	return NewMachine("vault-1", testThresholds(), []string{"dining", "entertainment"}, zerolog.Nop())
}

func runwayOf(days float64) model.RunwayResult {
	d := decimal.NewFromFloat(days)
	return model.RunwayResult{RunwayDays: &d, BurnRatePerDay: decimal.NewFromInt(100)}
}

func unknownRunway() model.RunwayResult {
	return model.RunwayResult{BurnRatePerDay: decimal.NewFromInt(100)}
}

func TestMachineImmediateDegradationToWar(t *testing.T) {
	m := testMachine()
	now := time.Now()

	tr := m.Apply(1, runwayOf(1.25), now)
	if !tr.Changed || tr.From != model.RiskNormal || tr.To != model.RiskWar {
		t.Fatalf("expected Normal->War in one apply, got %+v", tr)
	}

	state := m.State()
	if len(state.RestrictedCategories) == 0 {
		t.Fatal("war state must restrict discretionary categories")
	}
	if !m.IsCategoryRestricted("dining") {
		t.Fatal("dining should be restricted in war")
	}
	if m.IsCategoryRestricted("groceries") {
		t.Fatal("groceries is not discretionary; should never be restricted")
	}
}

func TestMachineCautionBand(t *testing.T) {
	m := testMachine()
	tr := m.Apply(1, runwayOf(20), time.Now())
	if tr.To != model.RiskCaution {
		t.Fatalf("runway 20 should land in Caution, got %s", tr.To)
	}
	if len(m.State().RestrictedCategories) != 0 {
		t.Fatal("caution must not restrict categories")
	}
}

func TestMachineRecoveryRequiresConsecutiveCycles(t *testing.T) {
	m := testMachine()
	now := time.Now()

	m.Apply(1, runwayOf(5), now)
	if m.State().Level != model.RiskWar {
		t.Fatal("setup: expected War")
	}

	// Two good cycles are not enough.
	for v := int64(2); v <= 3; v++ {
		tr := m.Apply(v, runwayOf(45), now)
		if tr.Changed {
			t.Fatalf("version %d: recovery fired too early", v)
		}
	}

	tr := m.Apply(4, runwayOf(45), now)
	if !tr.Changed || tr.To != model.RiskNormal {
		t.Fatalf("third good cycle should recover to Normal, got %+v", tr)
	}
	if len(m.State().RestrictedCategories) != 0 {
		t.Fatal("recovery must clear restrictions")
	}
}

func TestMachineRecoveryStreakResetsOnBadCycle(t *testing.T) {
	m := testMachine()
	now := time.Now()

	m.Apply(1, runwayOf(5), now)
	m.Apply(2, runwayOf(45), now)
	m.Apply(3, runwayOf(45), now)
	m.Apply(4, runwayOf(5), now) // relapse resets the streak
	m.Apply(5, runwayOf(45), now)
	m.Apply(6, runwayOf(45), now)

	if m.State().Level != model.RiskWar {
		t.Fatalf("interrupted recovery should stay in War, got %s", m.State().Level)
	}
}

func TestMachineSameVersionIsNoOp(t *testing.T) {
	m := testMachine()
	now := time.Now()

	first := m.Apply(7, runwayOf(1), now)
	if !first.Changed {
		t.Fatal("setup: first apply should transition")
	}

	second := m.Apply(7, runwayOf(100), now)
	if second.Changed {
		t.Fatal("re-applying the same snapshot version must be a no-op")
	}
	if m.State().Level != model.RiskWar {
		t.Fatalf("state should be unchanged, got %s", m.State().Level)
	}
}

func TestMachineUnknownRunwayHoldsStateAndResetsRecovery(t *testing.T) {
	m := testMachine()
	now := time.Now()

	m.Apply(1, runwayOf(5), now)
	m.Apply(2, runwayOf(45), now)
	m.Apply(3, runwayOf(45), now)
	if tr := m.Apply(4, unknownRunway(), now); tr.Changed {
		t.Fatal("unknown runway must not transition")
	}
	m.Apply(5, runwayOf(45), now)
	m.Apply(6, runwayOf(45), now)

	if m.State().Level != model.RiskWar {
		t.Fatal("unknown runway should have reset the recovery streak")
	}
}

func TestMachineBoundaryIsExclusive(t *testing.T) {
	m := testMachine()
	// Exactly at the caution threshold stays Normal; strictly below moves.
	if tr := m.Apply(1, runwayOf(30), time.Now()); tr.Changed {
		t.Fatalf("runway == caution threshold should stay Normal, got %+v", tr)
	}
	if tr := m.Apply(2, runwayOf(29.99), time.Now()); tr.To != model.RiskCaution {
		t.Fatalf("runway just below threshold should be Caution, got %s", tr.To)
	}
}

func TestMachineWarAlwaysRestrictsUnderRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	now := time.Now()

	for iter := 0; iter < 50; iter++ {
		m := testMachine()
		for v := int64(1); v <= 40; v++ {
			var rw model.RunwayResult
			if rng.Intn(10) == 0 {
				rw = unknownRunway()
			} else {
				rw = runwayOf(rng.Float64() * 60)
			}
			m.Apply(v, rw, now)

			state := m.State()
			restricted := len(state.RestrictedCategories) > 0
			if (state.Level == model.RiskWar) != restricted {
				t.Fatalf("iter %d version %d: level %s with %d restricted categories", iter, v, state.Level, len(state.RestrictedCategories))
			}
		}
	}
}
