package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Severity classifies an insight for weighting and display.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// InsightCandidate is a raw finding produced by a single rule before
// personalisation.
type InsightCandidate struct {
	RuleID string

	// DedupeKey identifies "the same underlying finding" across cycles,
	// typically ruleID + category + period bucket.
	DedupeKey string

	Severity       Severity
	Title          string
	Description    string
	Recommendation string

	// RawScore is the rule-local importance; scales differ between rules
	// and are normalised by the ranker's severity weighting.
	RawScore    decimal.Decimal
	GeneratedAt time.Time
}

// Suppression reasons recorded on ranked insights.
const (
	SuppressDismissed = "dismissed_recently"
	SuppressOverCap   = "over_display_cap"
)

// RankedInsight is a candidate after personalisation.
type RankedInsight struct {
	InsightCandidate

	FinalScore decimal.Decimal

	// Suppressed insights are kept for auditing rather than deleted.
	Suppressed     bool
	SuppressReason string
}

// InsightRecord is a persisted ranked insight in the append-only history log.
type InsightRecord struct {
	ID          string
	VaultID     string
	RuleID      string
	DedupeKey   string
	Severity    Severity
	Title       string
	FinalScore  decimal.Decimal
	Suppressed  bool
	GeneratedAt time.Time
	CreatedAt   time.Time
}

// UserProfile is the per-vault personalisation state. Mutated only by
// explicit user actions and by the ranker recording shown insights.
type UserProfile struct {
	VaultID string

	// Dismissed maps dedupe key to the last dismissal time.
	Dismissed map[string]time.Time

	// ShownCounts maps dedupe key to times shown, feeding fatigue decay.
	ShownCounts map[string]int

	// MutedRules holds rule ids the user muted.
	MutedRules map[string]bool
}

// NewUserProfile returns an empty profile for a vault.
func NewUserProfile(vaultID string) *UserProfile {
	return &UserProfile{
		VaultID:     vaultID,
		Dismissed:   make(map[string]time.Time),
		ShownCounts: make(map[string]int),
		MutedRules:  make(map[string]bool),
	}
}

// Normalize ensures all maps are non-nil after decoding from storage.
func (p *UserProfile) Normalize() {
	if p.Dismissed == nil {
		p.Dismissed = make(map[string]time.Time)
	}
	if p.ShownCounts == nil {
		p.ShownCounts = make(map[string]int)
	}
	if p.MutedRules == nil {
		p.MutedRules = make(map[string]bool)
	}
}
