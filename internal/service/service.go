// Package service orchestrates one evaluation cycle per vault: snapshot,
// runway, risk transition, rule evaluation, ranking, and the end-of-cycle
// commit. It owns the per-vault wallet machines and serializes evaluations
// so the monotonic transition invariant cannot be raced away.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pocketwatch/internal/alerting"
	"pocketwatch/internal/engine"
	"pocketwatch/internal/model"
	"pocketwatch/internal/ranker"
	"pocketwatch/internal/rules"
	"pocketwatch/internal/snapshot"
	"pocketwatch/internal/storage"
	"pocketwatch/internal/wallet"
)

// Options wire the service's collaborators and policy knobs.
type Options struct {
	Thresholds    wallet.Thresholds
	Discretionary []string

	// ResetFatigueOnRecovery clears shown-count fatigue when a wallet
	// recovers to Normal. Off by default: fatigue tracks the user's
	// attention, not the wallet's health.
	ResetFatigueOnRecovery bool

	AlertsEnabled bool
	AlertChannels []string
}

// Service is the per-process decision core facade consumed by the HTTP API
// and the CLI.
type Service struct {
	builder *snapshot.Builder
	engine  *engine.Engine
	ranker  *ranker.Ranker

	profiles storage.ProfileStore
	history  storage.InsightHistoryStore
	events   storage.WalletEventStore
	vaults   storage.VaultLister

	notifier alerting.Notifier
	opts     Options

	logger zerolog.Logger

	mu         sync.Mutex
	machines   map[string]*wallet.Machine
	vaultLocks map[string]*sync.Mutex
	lastRanked map[string][]model.RankedInsight
}

// New constructs the service. Store arguments may be nil; persistence then
// degrades to in-memory operation with logged warnings.
func New(
	builder *snapshot.Builder,
	eng *engine.Engine,
	rk *ranker.Ranker,
	profiles storage.ProfileStore,
	history storage.InsightHistoryStore,
	events storage.WalletEventStore,
	vaults storage.VaultLister,
	notifier alerting.Notifier,
	opts Options,
	logger zerolog.Logger,
) *Service {
	return &Service{
		builder:    builder,
		engine:     eng,
		ranker:     rk,
		profiles:   profiles,
		history:    history,
		events:     events,
		vaults:     vaults,
		notifier:   notifier,
		opts:       opts,
		logger:     logger.With().Str("component", "service").Logger(),
		machines:   make(map[string]*wallet.Machine),
		vaultLocks: make(map[string]*sync.Mutex),
		lastRanked: make(map[string][]model.RankedInsight),
	}
}

// Evaluate runs one full cycle for a vault and returns the ranked insights.
// Nothing is committed until the cycle completes, so an abandoned context
// leaves no partial state behind.
func (s *Service) Evaluate(ctx context.Context, vaultID string) ([]model.RankedInsight, error) {
	lock := s.vaultLock(vaultID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()

	snap, err := s.builder.Build(ctx, vaultID, now)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}

	machine := s.machine(vaultID)
	runway := wallet.ComputeRunway(snap, s.opts.Thresholds.MinObservationDays)
	transition := machine.Apply(snap.Version, runway, snap.AsOf)
	state := machine.State()

	candidates := s.engine.Evaluate(snap, &state)

	profile := s.loadProfile(ctx, vaultID)

	if transition.Changed && transition.To == model.RiskNormal && s.opts.ResetFatigueOnRecovery {
		profile.ShownCounts = make(map[string]int)
	}

	ranked := s.ranker.Rank(candidates, profile, snap.AsOf)

	s.commit(ctx, vaultID, profile, ranked, transition, state)

	s.mu.Lock()
	s.lastRanked[vaultID] = ranked
	s.mu.Unlock()

	return ranked, nil
}

// EvaluateAll runs a cycle for every vault known to the ledger. Used by the
// scheduler; per-vault failures are logged and do not stop the sweep.
func (s *Service) EvaluateAll(ctx context.Context) error {
	if s.vaults == nil {
		return fmt.Errorf("vault lister not configured")
	}
	ids, err := s.vaults.ListVaults(ctx)
	if err != nil {
		return fmt.Errorf("list vaults: %w", err)
	}

	for _, vaultID := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.Evaluate(ctx, vaultID); err != nil {
			s.logger.Error().Err(err).Str("vault", vaultID).Msg("vault evaluation failed")
		}
	}
	return nil
}

// RankedInsights returns the last computed list, evaluating first when no
// cycle has run for the vault yet.
func (s *Service) RankedInsights(ctx context.Context, vaultID string) ([]model.RankedInsight, error) {
	s.mu.Lock()
	ranked, ok := s.lastRanked[vaultID]
	s.mu.Unlock()
	if ok {
		return ranked, nil
	}
	return s.Evaluate(ctx, vaultID)
}

// WalletState returns the current risk state for display. The second result
// is false when the vault was never evaluated.
func (s *Service) WalletState(vaultID string) (model.WalletRiskState, bool) {
	s.mu.Lock()
	machine, ok := s.machines[vaultID]
	s.mu.Unlock()
	if !ok {
		return model.WalletRiskState{}, false
	}
	return machine.State(), true
}

// IsCategoryRestricted reports whether the transaction-entry flow should add
// a friction step for the category. The answer comes from the last committed
// state and may be one cycle stale; spending is never hard-blocked, so the
// relaxation is acceptable and intentional.
func (s *Service) IsCategoryRestricted(vaultID, category string) bool {
	s.mu.Lock()
	machine, ok := s.machines[vaultID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return machine.IsCategoryRestricted(category)
}

// DismissInsight records a user dismissal; the dedupe key stays suppressed
// for the ranker's cooldown window.
func (s *Service) DismissInsight(ctx context.Context, vaultID, dedupeKey string) error {
	if s.profiles == nil {
		return storage.ErrNotConfigured
	}
	profile, err := s.profiles.GetProfile(ctx, vaultID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	profile.Normalize()
	profile.Dismissed[dedupeKey] = time.Now().UTC()
	if err := s.profiles.SaveProfile(ctx, profile); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// MuteRule silences a rule for the vault until unmuted.
func (s *Service) MuteRule(ctx context.Context, vaultID, ruleID string) error {
	return s.setRuleMuted(ctx, vaultID, ruleID, true)
}

// UnmuteRule re-enables a muted rule.
func (s *Service) UnmuteRule(ctx context.Context, vaultID, ruleID string) error {
	return s.setRuleMuted(ctx, vaultID, ruleID, false)
}

func (s *Service) setRuleMuted(ctx context.Context, vaultID, ruleID string, muted bool) error {
	if s.profiles == nil {
		return storage.ErrNotConfigured
	}
	profile, err := s.profiles.GetProfile(ctx, vaultID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	profile.Normalize()
	if muted {
		profile.MutedRules[ruleID] = true
	} else {
		delete(profile.MutedRules, ruleID)
	}
	if err := s.profiles.SaveProfile(ctx, profile); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// CheckAffordability answers a "can I afford X?" hypothetical against the
// current snapshot and wallet state without committing anything.
func (s *Service) CheckAffordability(ctx context.Context, vaultID, label string, amount decimal.Decimal) (*model.InsightCandidate, error) {
	snap, err := s.builder.Build(ctx, vaultID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}

	state, ok := s.WalletState(vaultID)
	if !ok {
		runway := wallet.ComputeRunway(snap, s.opts.Thresholds.MinObservationDays)
		state = model.WalletRiskState{
			VaultID:              vaultID,
			Level:                model.RiskNormal,
			RunwayDays:           runway.RunwayDays,
			BurnRatePerDay:       runway.BurnRatePerDay,
			RestrictedCategories: make(map[string]struct{}),
		}
	}

	scenario := rules.NewScenario(label, amount)
	candidate, err := scenario.Evaluate(snap, &state)
	if err != nil {
		return nil, fmt.Errorf("evaluate scenario: %w", err)
	}
	return candidate, nil
}

// commit flushes the cycle's durable effects. Persistence hiccups degrade
// to warnings; the ranked result was already computed and is returned to
// the caller regardless.
func (s *Service) commit(ctx context.Context, vaultID string, profile *model.UserProfile, ranked []model.RankedInsight, transition wallet.Transition, state model.WalletRiskState) {
	ranker.MarkShown(profile, ranked)

	if s.profiles != nil {
		if err := s.profiles.SaveProfile(ctx, profile); err != nil {
			s.logger.Warn().Err(err).Str("vault", vaultID).Msg("failed to persist profile; insights still returned")
		}
	}

	if s.history != nil {
		for _, insight := range ranked {
			rec := model.InsightRecord{
				ID:          uuid.NewString(),
				VaultID:     vaultID,
				RuleID:      insight.RuleID,
				DedupeKey:   insight.DedupeKey,
				Severity:    insight.Severity,
				Title:       insight.Title,
				FinalScore:  insight.FinalScore,
				Suppressed:  insight.Suppressed,
				GeneratedAt: insight.GeneratedAt,
			}
			if err := s.history.InsertInsight(ctx, rec); err != nil {
				s.logger.Warn().Err(err).Str("vault", vaultID).Msg("failed to append insight history")
				break
			}
		}
	}

	if transition.Changed {
		if s.events != nil {
			evt := model.WalletEvent{
				VaultID:    vaultID,
				FromLevel:  transition.From,
				ToLevel:    transition.To,
				RunwayDays: state.RunwayDays,
				OccurredAt: state.EnteredAt,
			}
			if _, err := s.events.InsertWalletEvent(ctx, evt); err != nil {
				s.logger.Warn().Err(err).Str("vault", vaultID).Msg("failed to record wallet event")
			}
		}
		s.notifyTransition(ctx, vaultID, transition, state)
	}
}

func (s *Service) notifyTransition(ctx context.Context, vaultID string, transition wallet.Transition, state model.WalletRiskState) {
	if !s.opts.AlertsEnabled || s.notifier == nil || !transition.To.WorseThan(transition.From) {
		return
	}

	runway := "unknown"
	if state.RunwayDays != nil {
		runway = state.RunwayDays.StringFixed(1)
	}
	restricted := make([]string, 0, len(state.RestrictedCategories))
	for c := range state.RestrictedCategories {
		restricted = append(restricted, c)
	}

	note := alerting.Notification{
		VaultID:    vaultID,
		FromLevel:  transition.From,
		ToLevel:    transition.To,
		RunwayDays: runway,
		Restricted: restricted,
		OccurredAt: state.EnteredAt,
		Channels:   s.opts.AlertChannels,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("vault", vaultID).Msg("failed to dispatch wallet alert")
	}
}

func (s *Service) loadProfile(ctx context.Context, vaultID string) *model.UserProfile {
	if s.profiles == nil {
		return model.NewUserProfile(vaultID)
	}
	profile, err := s.profiles.GetProfile(ctx, vaultID)
	if err != nil {
		s.logger.Warn().Err(err).Str("vault", vaultID).Msg("failed to load profile; ranking without personalisation history")
		return model.NewUserProfile(vaultID)
	}
	profile.Normalize()
	return profile
}

func (s *Service) machine(vaultID string) *wallet.Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.machines[vaultID]
	if !ok {
		m = wallet.NewMachine(vaultID, s.opts.Thresholds, s.opts.Discretionary, s.logger)
		s.machines[vaultID] = m
	}
	return m
}

func (s *Service) vaultLock(vaultID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.vaultLocks[vaultID]
	if !ok {
		lock = &sync.Mutex{}
		s.vaultLocks[vaultID] = lock
	}
	return lock
}
