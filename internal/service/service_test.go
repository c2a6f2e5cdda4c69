package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pocketwatch/internal/alerting"
	"pocketwatch/internal/engine"
	"pocketwatch/internal/model"
	"pocketwatch/internal/ranker"
	"pocketwatch/internal/rules"
	"pocketwatch/internal/snapshot"
	"pocketwatch/internal/wallet"
)

// memStore backs the whole persistence surface of the service in memory.
type memStore struct {
	mu sync.Mutex

	txs      map[string][]model.Transaction
	budgets  map[string]model.Budget
	goals    map[string][]model.Goal
	profiles map[string]*model.UserProfile
	insights []model.InsightRecord
	events   []model.WalletEvent

	profileErr error
}

func newMemStore() *memStore {
	return &memStore{
		txs:      make(map[string][]model.Transaction),
		budgets:  make(map[string]model.Budget),
		goals:    make(map[string][]model.Goal),
		profiles: make(map[string]*model.UserProfile),
	}
}

func (m *memStore) ListTransactionsSince(_ context.Context, vaultID string, since time.Time) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Transaction, 0)
	for _, tx := range m.txs[vaultID] {
		if !tx.Date.Before(since) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *memStore) GetBudget(_ context.Context, vaultID string) (model.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.budgets[vaultID], nil
}

func (m *memStore) ListGoals(_ context.Context, vaultID string) ([]model.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.goals[vaultID], nil
}

func (m *memStore) GetProfile(_ context.Context, vaultID string) (*model.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profileErr != nil {
		return nil, m.profileErr
	}
	if p, ok := m.profiles[vaultID]; ok {
		clone := *p
		return &clone, nil
	}
	return model.NewUserProfile(vaultID), nil
}

func (m *memStore) SaveProfile(_ context.Context, profile *model.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profileErr != nil {
		return m.profileErr
	}
	m.profiles[profile.VaultID] = profile
	return nil
}

func (m *memStore) InsertInsight(_ context.Context, rec model.InsightRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insights = append(m.insights, rec)
	return nil
}

func (m *memStore) RecentlyShown(_ context.Context, vaultID string, since time.Time) ([]model.InsightRecord, error) {
	return nil, nil
}

func (m *memStore) InsertWalletEvent(_ context.Context, evt model.WalletEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return int64(len(m.events)), nil
}

func (m *memStore) ListWalletEvents(_ context.Context, _ string, _, _ time.Time) ([]model.WalletEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.WalletEvent(nil), m.events...), nil
}

func (m *memStore) ListVaults(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.txs))
	for id := range m.txs {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, note alerting.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, note)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notes)
}

// seedBurningVault fills a vault that spends 400/day against a 5000 income,
// leaving well under 14 days of runway on any day of the month.
func seedBurningVault(store *memStore, vaultID string) {
	store.budgets[vaultID] = model.Budget{
		MonthlyIncome:      decimal.NewFromInt(5000),
		SavingsGoalMonthly: decimal.NewFromInt(1000),
	}
	now := time.Now().UTC()
	for day := 0; day < 30; day++ {
		store.txs[vaultID] = append(store.txs[vaultID], model.Transaction{
			ID:       fmt.Sprintf("%s-%02d", vaultID, day),
			VaultID:  vaultID,
			Amount:   decimal.NewFromInt(400),
			Category: "dining",
			Date:     now.AddDate(0, 0, -day),
		})
	}
}

func testService(store *memStore, notifier alerting.Notifier) *Service {
	builder := snapshot.New(store, store, store, snapshot.Options{LookbackDays: 120, BurnWindowDays: 30}, zerolog.Nop())
	eng := engine.New(rules.Standard(rules.DefaultOptions()), zerolog.Nop())
	rk := ranker.New(ranker.DefaultWeights())

	return New(builder, eng, rk, store, store, store, store, notifier, Options{
		Thresholds: wallet.Thresholds{
			CautionDays:        decimal.NewFromInt(30),
			WarDays:            decimal.NewFromInt(14),
			RecoveryCycles:     3,
			MinObservationDays: 5,
		},
		Discretionary: []string{"dining", "entertainment"},
		AlertsEnabled: true,
		AlertChannels: []string{"telegram"},
	}, zerolog.Nop())
}

func TestEvaluateEntersWarAndRestricts(t *testing.T) {
	store := newMemStore()
	seedBurningVault(store, "vault-1")
	notifier := &fakeNotifier{}
	svc := testService(store, notifier)

	ranked, err := svc.Evaluate(context.Background(), "vault-1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(ranked) == 0 {
		t.Fatal("a burning vault should produce insights")
	}

	state, ok := svc.WalletState("vault-1")
	if !ok {
		t.Fatal("wallet state should exist after evaluation")
	}
	if state.Level != model.RiskWar {
		t.Fatalf("level = %s, want war at 400/day burn", state.Level)
	}
	if !svc.IsCategoryRestricted("vault-1", "dining") {
		t.Fatal("dining should be restricted in war")
	}
	if svc.IsCategoryRestricted("vault-1", "groceries") {
		t.Fatal("groceries was never discretionary")
	}

	var sawWarMode bool
	for _, ins := range ranked {
		if ins.RuleID == "war_mode" && !ins.Suppressed {
			sawWarMode = true
		}
	}
	if !sawWarMode {
		t.Fatal("war_mode insight should surface unsuppressed")
	}
}

func TestEvaluateCommitsDurableEffects(t *testing.T) {
	store := newMemStore()
	seedBurningVault(store, "vault-1")
	notifier := &fakeNotifier{}
	svc := testService(store, notifier)

	ranked, err := svc.Evaluate(context.Background(), "vault-1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	if len(store.insights) != len(ranked) {
		t.Fatalf("history rows = %d, want %d", len(store.insights), len(ranked))
	}
	if len(store.events) != 1 {
		t.Fatalf("wallet events = %d, want the single Normal->War transition", len(store.events))
	}
	if store.events[0].ToLevel != model.RiskWar {
		t.Fatalf("event to-level = %s", store.events[0].ToLevel)
	}
	if notifier.count() != 1 {
		t.Fatalf("alerts = %d, want 1 for a worsening transition", notifier.count())
	}

	profile := store.profiles["vault-1"]
	if profile == nil {
		t.Fatal("profile should be persisted after the cycle")
	}
	shown := 0
	for _, n := range profile.ShownCounts {
		shown += n
	}
	if shown == 0 {
		t.Fatal("visible insights should be marked shown")
	}
}

func TestEvaluateIsIdempotentAcrossCycles(t *testing.T) {
	store := newMemStore()
	seedBurningVault(store, "vault-1")
	notifier := &fakeNotifier{}
	svc := testService(store, notifier)

	if _, err := svc.Evaluate(context.Background(), "vault-1"); err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	if _, err := svc.Evaluate(context.Background(), "vault-1"); err != nil {
		t.Fatalf("second evaluate: %v", err)
	}

	if len(store.events) != 1 {
		t.Fatalf("wallet events = %d; staying in war is not a transition", len(store.events))
	}
	if notifier.count() != 1 {
		t.Fatalf("alerts = %d; no re-alert while the level holds", notifier.count())
	}
}

func TestEvaluateSurvivesProfileStoreFailure(t *testing.T) {
	store := newMemStore()
	seedBurningVault(store, "vault-1")
	store.profileErr = errors.New("connection reset")
	svc := testService(store, &fakeNotifier{})

	ranked, err := svc.Evaluate(context.Background(), "vault-1")
	if err != nil {
		t.Fatalf("profile failures must degrade to warnings: %v", err)
	}
	if len(ranked) == 0 {
		t.Fatal("insights should still be returned")
	}
}

func TestDismissSuppressesOnNextCycle(t *testing.T) {
	store := newMemStore()
	seedBurningVault(store, "vault-1")
	svc := testService(store, &fakeNotifier{})

	ranked, err := svc.Evaluate(context.Background(), "vault-1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	var target string
	for _, ins := range ranked {
		if !ins.Suppressed {
			target = ins.DedupeKey
			break
		}
	}
	if target == "" {
		t.Fatal("need a visible insight to dismiss")
	}

	if err := svc.DismissInsight(context.Background(), "vault-1", target); err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	ranked, err = svc.Evaluate(context.Background(), "vault-1")
	if err != nil {
		t.Fatalf("re-evaluate: %v", err)
	}
	for _, ins := range ranked {
		if ins.DedupeKey == target && !ins.Suppressed {
			t.Fatalf("dismissed insight %q should be suppressed", target)
		}
	}
}

func TestMuteRuleSuppressesItsInsights(t *testing.T) {
	store := newMemStore()
	seedBurningVault(store, "vault-1")
	svc := testService(store, &fakeNotifier{})

	if err := svc.MuteRule(context.Background(), "vault-1", "war_mode"); err != nil {
		t.Fatalf("mute: %v", err)
	}

	ranked, err := svc.Evaluate(context.Background(), "vault-1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for _, ins := range ranked {
		if ins.RuleID == "war_mode" && !ins.Suppressed {
			t.Fatal("muted rule's insight should be suppressed")
		}
	}

	if err := svc.UnmuteRule(context.Background(), "vault-1", "war_mode"); err != nil {
		t.Fatalf("unmute: %v", err)
	}
	profile := store.profiles["vault-1"]
	if profile.MutedRules["war_mode"] {
		t.Fatal("unmute should clear the flag")
	}
}

func TestCheckAffordabilityDoesNotCommit(t *testing.T) {
	store := newMemStore()
	seedBurningVault(store, "vault-1")
	svc := testService(store, &fakeNotifier{})

	candidate, err := svc.CheckAffordability(context.Background(), "vault-1", "concert tickets", decimal.NewFromInt(120))
	if err != nil {
		t.Fatalf("affordability: %v", err)
	}
	if candidate == nil {
		t.Fatal("affordability always answers")
	}
	if len(store.insights) != 0 || len(store.events) != 0 {
		t.Fatal("a hypothetical must not write history or events")
	}
}

func TestEvaluateAllSweepsEveryVault(t *testing.T) {
	store := newMemStore()
	seedBurningVault(store, "vault-1")
	seedBurningVault(store, "vault-2")
	svc := testService(store, &fakeNotifier{})

	if err := svc.EvaluateAll(context.Background()); err != nil {
		t.Fatalf("evaluate all: %v", err)
	}

	for _, id := range []string{"vault-1", "vault-2"} {
		if _, ok := svc.WalletState(id); !ok {
			t.Fatalf("vault %s was not evaluated", id)
		}
	}
}

func TestRankedInsightsUsesCache(t *testing.T) {
	store := newMemStore()
	seedBurningVault(store, "vault-1")
	svc := testService(store, &fakeNotifier{})

	first, err := svc.RankedInsights(context.Background(), "vault-1")
	if err != nil {
		t.Fatalf("ranked insights: %v", err)
	}
	inserted := len(store.insights)

	second, err := svc.RankedInsights(context.Background(), "vault-1")
	if err != nil {
		t.Fatalf("ranked insights: %v", err)
	}
	if len(store.insights) != inserted {
		t.Fatal("the cached read must not run another cycle")
	}
	if len(first) != len(second) {
		t.Fatalf("cached result differs: %d vs %d", len(first), len(second))
	}
}
