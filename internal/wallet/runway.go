package wallet

import (
	"github.com/shopspring/decimal"

	"pocketwatch/internal/model"
)

// epsilon floors the burn rate so runway division is always defined once we
// decide to extrapolate at all.
var epsilon = decimal.NewFromFloat(0.01)

// ComputeRunway derives the days-of-cash estimate from a snapshot.
//
// The burn rate comes from the snapshot's trailing-window daily average so a
// single large purchase does not dominate. When the window holds fewer than
// minObservationDays days of activity, or the vault has no spend at all, the
// runway is reported unknown rather than extrapolated from thin data.
func ComputeRunway(snap *model.FinancialSnapshot, minObservationDays int) model.RunwayResult {
	burn := snap.DailyAverageSpend
	if burn.LessThan(epsilon) {
		burn = epsilon
	}

	result := model.RunwayResult{BurnRatePerDay: burn}

	if snap.Empty || snap.DailyAverageSpend.IsZero() || snap.ObservedDays < minObservationDays {
		return result
	}

	runway := snap.AvailableCash.Div(burn)
	if runway.IsNegative() {
		runway = decimal.Zero
	}
	result.RunwayDays = &runway
	return result
}
