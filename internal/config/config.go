package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"pocketwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Ranker    RankerConfig    `mapstructure:"ranker"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ServerConfig governs the HTTP API surface.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// SchedulerConfig governs the re-evaluation cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// SnapshotConfig bounds what the snapshot builder reads.
type SnapshotConfig struct {
	LookbackDays   int `mapstructure:"lookback_days"`
	BurnWindowDays int `mapstructure:"burn_window_days"`
}

// WalletConfig holds runway thresholds and the discretionary category list.
// Both are configuration, not algorithm: there is no canonical list of
// "want" categories, so deployments supply their own.
type WalletConfig struct {
	CautionDays             float64  `mapstructure:"caution_days"`
	WarDays                 float64  `mapstructure:"war_days"`
	RecoveryCycles          int      `mapstructure:"recovery_cycles"`
	MinObservationDays      int      `mapstructure:"min_observation_days"`
	DiscretionaryCategories []string `mapstructure:"discretionary_categories"`
}

// RulesConfig tunes individual insight rules.
type RulesConfig struct {
	AnomalySigma          float64  `mapstructure:"anomaly_sigma"`
	AnomalyRatio          float64  `mapstructure:"anomaly_ratio"`
	AnomalyMinMonths      int      `mapstructure:"anomaly_min_months"`
	VelocityWindowDays    int      `mapstructure:"velocity_window_days"`
	GoalLagTolerance      float64  `mapstructure:"goal_lag_tolerance"`
	SubscriptionMinHits   int      `mapstructure:"subscription_min_hits"`
	SubscriptionAmountTol float64  `mapstructure:"subscription_amount_tolerance"`
	Disabled              []string `mapstructure:"disabled"`
}

// RankerConfig tunes personalisation.
type RankerConfig struct {
	SeverityWeights        map[string]float64 `mapstructure:"severity_weights"`
	DecayFactor            float64            `mapstructure:"decay_factor"`
	DismissCooldown        time.Duration      `mapstructure:"dismiss_cooldown"`
	VisibleCap             int                `mapstructure:"visible_cap"`
	ResetFatigueOnRecovery bool               `mapstructure:"reset_fatigue_on_recovery"`
}

// AlertingConfig routes wallet transition pushes.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig holds Telegram push settings.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POCKETWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pocketwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8085")

	v.SetDefault("scheduler.interval", "15m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x70777463))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("snapshot.lookback_days", 120)
	v.SetDefault("snapshot.burn_window_days", 30)

	v.SetDefault("wallet.caution_days", 30.0)
	v.SetDefault("wallet.war_days", 14.0)
	v.SetDefault("wallet.recovery_cycles", 3)
	v.SetDefault("wallet.min_observation_days", 5)
	v.SetDefault("wallet.discretionary_categories", []string{"dining", "entertainment", "shopping", "hobbies"})

	v.SetDefault("rules.anomaly_sigma", 2.0)
	v.SetDefault("rules.anomaly_ratio", 1.8)
	v.SetDefault("rules.anomaly_min_months", 3)
	v.SetDefault("rules.velocity_window_days", 3)
	v.SetDefault("rules.goal_lag_tolerance", 0.85)
	v.SetDefault("rules.subscription_min_hits", 2)
	v.SetDefault("rules.subscription_amount_tolerance", 0.05)

	v.SetDefault("ranker.severity_weights", map[string]float64{
		"info":    1.0,
		"success": 1.2,
		"warning": 1.5,
		"error":   2.0,
	})
	v.SetDefault("ranker.decay_factor", 0.85)
	v.SetDefault("ranker.dismiss_cooldown", "168h")
	v.SetDefault("ranker.visible_cap", 5)
	v.SetDefault("ranker.reset_fatigue_on_recovery", false)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs fail-fast sanity checks on the configuration values.
// Threshold mistakes surface at load, never at evaluation time.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Snapshot.LookbackDays <= 0 {
		return fmt.Errorf("snapshot.lookback_days must be greater than zero")
	}
	if c.Snapshot.BurnWindowDays <= 0 {
		return fmt.Errorf("snapshot.burn_window_days must be greater than zero")
	}
	if c.Wallet.WarDays <= 0 {
		return fmt.Errorf("wallet.war_days must be greater than zero")
	}
	if c.Wallet.CautionDays <= c.Wallet.WarDays {
		return fmt.Errorf("wallet.caution_days (%v) must exceed wallet.war_days (%v)", c.Wallet.CautionDays, c.Wallet.WarDays)
	}
	if c.Wallet.RecoveryCycles < 1 {
		return fmt.Errorf("wallet.recovery_cycles must be at least 1")
	}
	if len(c.Wallet.DiscretionaryCategories) == 0 {
		return fmt.Errorf("wallet.discretionary_categories must not be empty")
	}
	if c.Rules.AnomalySigma <= 0 {
		return fmt.Errorf("rules.anomaly_sigma must be greater than zero")
	}
	if c.Rules.AnomalyRatio <= 1 {
		return fmt.Errorf("rules.anomaly_ratio must be greater than one")
	}
	if c.Ranker.DecayFactor <= 0 || c.Ranker.DecayFactor > 1 {
		return fmt.Errorf("ranker.decay_factor must be in (0, 1]")
	}
	if c.Ranker.VisibleCap < 1 {
		return fmt.Errorf("ranker.visible_cap must be at least 1")
	}
	if c.Ranker.DismissCooldown < 0 {
		return fmt.Errorf("ranker.dismiss_cooldown cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// RuleDisabled reports whether a rule id is switched off in configuration.
func (c *RulesConfig) RuleDisabled(id string) bool {
	for _, d := range c.Disabled {
		if d == id {
			return true
		}
	}
	return false
}
