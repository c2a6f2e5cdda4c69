package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pocketwatch/internal/alerting"
	"pocketwatch/internal/api"
	"pocketwatch/internal/config"
	"pocketwatch/internal/engine"
	"pocketwatch/internal/model"
	"pocketwatch/internal/ranker"
	"pocketwatch/internal/rules"
	"pocketwatch/internal/scheduler"
	"pocketwatch/internal/service"
	"pocketwatch/internal/snapshot"
	"pocketwatch/internal/storage"
	"pocketwatch/internal/wallet"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// newService wires the full evaluation pipeline on top of the given store.
// A nil store is allowed for commands that only need the scenario path, but
// snapshot building then fails on first use.
func (a *App) newService(store *storage.Store) *service.Service {
	builder := snapshot.New(store, store, store, snapshot.Options{
		LookbackDays:   a.Config.Snapshot.LookbackDays,
		BurnWindowDays: a.Config.Snapshot.BurnWindowDays,
	}, a.Logger)

	registry := make([]rules.Rule, 0, 8)
	for _, r := range rules.Standard(a.ruleOptions()) {
		if a.Config.Rules.RuleDisabled(r.ID()) {
			a.Logger.Info().Str("rule", r.ID()).Msg("rule disabled by configuration")
			continue
		}
		registry = append(registry, r)
	}
	eng := engine.New(registry, a.Logger)

	rk := ranker.New(a.rankerWeights())

	var (
		profiles storage.ProfileStore
		history  storage.InsightHistoryStore
		events   storage.WalletEventStore
		vaults   storage.VaultLister
	)
	if store != nil {
		profiles = store
		history = store
		events = store
		vaults = store
	}

	return service.New(builder, eng, rk, profiles, history, events, vaults, a.newNotifier(), service.Options{
		Thresholds: wallet.Thresholds{
			CautionDays:        decimal.NewFromFloat(a.Config.Wallet.CautionDays),
			WarDays:            decimal.NewFromFloat(a.Config.Wallet.WarDays),
			RecoveryCycles:     a.Config.Wallet.RecoveryCycles,
			MinObservationDays: a.Config.Wallet.MinObservationDays,
		},
		Discretionary:          a.Config.Wallet.DiscretionaryCategories,
		ResetFatigueOnRecovery: a.Config.Ranker.ResetFatigueOnRecovery,
		AlertsEnabled:          a.Config.Alerting.Enabled,
		AlertChannels:          a.Config.Alerting.Channels,
	}, a.Logger)
}

func (a *App) ruleOptions() rules.Options {
	cfg := a.Config.Rules
	return rules.Options{
		AnomalySigma:          cfg.AnomalySigma,
		AnomalyRatio:          cfg.AnomalyRatio,
		AnomalyMinMonths:      cfg.AnomalyMinMonths,
		VelocityWindowDays:    cfg.VelocityWindowDays,
		GoalLagTolerance:      cfg.GoalLagTolerance,
		SubscriptionMinHits:   cfg.SubscriptionMinHits,
		SubscriptionAmountTol: cfg.SubscriptionAmountTol,
	}
}

func (a *App) rankerWeights() ranker.Weights {
	weights := ranker.DefaultWeights()
	cfg := a.Config.Ranker
	for name, w := range cfg.SeverityWeights {
		weights.Severity[model.Severity(name)] = decimal.NewFromFloat(w)
	}
	if cfg.DecayFactor > 0 {
		weights.DecayFactor = decimal.NewFromFloat(cfg.DecayFactor)
	}
	if cfg.DismissCooldown > 0 {
		weights.DismissCooldown = cfg.DismissCooldown
	}
	if cfg.VisibleCap > 0 {
		weights.VisibleCap = cfg.VisibleCap
	}
	return weights
}

// Run executes the long-running evaluation daemon: periodic sweeps over all
// known vaults plus the optional HTTP API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; the daemon needs a ledger to evaluate")
	}
	defer closeStore()

	svc := a.newService(store)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	var server *http.Server
	serverErr := make(chan error, 1)
	if a.Config.Server.Enabled {
		server = &http.Server{
			Addr:    a.Config.Server.Addr,
			Handler: api.NewRouter(svc, a.Logger),
		}
		go func() {
			a.Logger.Info().Str("addr", server.Addr).Msg("http api listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	a.Logger.Info().Msg("starting evaluation daemon")
	runErr := make(chan error, 1)
	go func() {
		runErr <- sched.Run(ctx, func(tickCtx context.Context, bucket time.Time) error {
			return a.sweep(tickCtx, store, svc, bucket)
		})
	}()

	select {
	case err = <-runErr:
	case err = <-serverErr:
		cancel()
		<-runErr
	}

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			a.Logger.Warn().Err(shutdownErr).Msg("http shutdown failed")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("daemon terminated with error")
		return err
	}

	a.Logger.Info().Msg("evaluation daemon stopped")
	return nil
}

// sweep runs one full-fleet evaluation under the advisory lock so that
// concurrent daemon replicas do not double-evaluate the same bucket.
func (a *App) sweep(ctx context.Context, store *storage.Store, svc *service.Service, bucket time.Time) error {
	release, acquired, err := store.TryAdvisoryLock(ctx, a.Config.Scheduler.AdvisoryLockKey)
	if err != nil {
		return err
	}
	if !acquired {
		a.Logger.Info().Time("bucket", bucket).Msg("sweep held by another instance; skipping")
		return nil
	}
	defer release()

	return svc.EvaluateAll(ctx)
}

// EvaluateOptions configure the one-shot evaluate command.
type EvaluateOptions struct {
	VaultID           string
	IncludeSuppressed bool
}

// WalletOptions configure the wallet command.
type WalletOptions struct {
	VaultID string
}

// ExportOptions hold parameters for exporting spending history.
type ExportOptions struct {
	VaultID   string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// SimulateOptions configure the affordability simulation.
type SimulateOptions struct {
	VaultID string
	Label   string
	Amount  string
}
