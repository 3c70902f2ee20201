// Package config loads process configuration the way the teacher's
// config.Load does: typed sections populated with defaults, then
// overridden from environment variables, with an optional YAML file layered
// in between (spec §9 "config" ambient concern). The SaaS-era sections
// (multi-exchange credentials, screener/scanner/autopilot tuning, billing)
// are gone; what remains enumerates exactly the "Process config" list in
// spec §6 plus the ambient logging/persistence/server/vault settings every
// deployment of this process needs regardless of domain scope.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wangqiang-666/ETH-sub009/internal/apiserver"
	"github.com/wangqiang-666/ETH-sub009/internal/gating"
	"github.com/wangqiang-666/ETH-sub009/internal/integration"
	"github.com/wangqiang-666/ETH-sub009/internal/persistence"
	"github.com/wangqiang-666/ETH-sub009/internal/pricefeed"
	"github.com/wangqiang-666/ETH-sub009/internal/slippage"
	"github.com/wangqiang-666/ETH-sub009/internal/tracker"
	"github.com/wangqiang-666/ETH-sub009/internal/vault"
)

// Config is the root of the process configuration tree.
type Config struct {
	Server      ServerConfig      `yaml:"server" json:"server"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
	Persistence PersistenceConfig `yaml:"persistence" json:"persistence"`
	Gating      GatingConfig      `yaml:"gating" json:"gating"`
	Tracker     TrackerConfig     `yaml:"tracker" json:"tracker"`
	PriceFeed   PriceFeedConfig   `yaml:"price_feed" json:"price_feed"`
	Integration IntegrationConfig `yaml:"integration" json:"integration"`
	Slippage    SlippageConfig    `yaml:"slippage" json:"slippage"`
	Stats       StatsConfig       `yaml:"stats" json:"stats"`
	Vault       VaultConfig       `yaml:"vault" json:"vault"`
}

// ServerConfig configures the HTTP/WebSocket API surface (apiserver.Config).
type ServerConfig struct {
	Host           string        `yaml:"host" json:"host"`
	Port           int           `yaml:"port" json:"port"`
	ProductionMode bool          `yaml:"production_mode" json:"production_mode"`
	RateLimit      int           `yaml:"rate_limit" json:"rate_limit"`
	RateWindow     time.Duration `yaml:"rate_window" json:"rate_window"`
}

func (c ServerConfig) ToAPIServerConfig() apiserver.Config {
	return apiserver.Config{
		Host:           c.Host,
		Port:           c.Port,
		ProductionMode: c.ProductionMode,
		RateLimit:      c.RateLimit,
		RateWindow:     c.RateWindow,
	}
}

// LoggingConfig configures the zerolog root logger (internal/telemetry).
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json" json:"json"`  // structured JSON output vs. console writer
}

// PersistenceConfig configures the PostgreSQL connection pool
// (persistence.Config). When UseMemStore is true, main wires an in-memory
// Store instead and these fields are ignored — useful for local runs and
// tests without a database.
type PersistenceConfig struct {
	UseMemStore bool   `yaml:"use_memstore" json:"use_memstore"`
	Host        string `yaml:"host" json:"host"`
	Port        int    `yaml:"port" json:"port"`
	User        string `yaml:"user" json:"user"`
	Password    string `yaml:"password" json:"password"`
	Database    string `yaml:"database" json:"database"`
	SSLMode     string `yaml:"ssl_mode" json:"ssl_mode"`

	MaxConns          int32         `yaml:"max_conns" json:"max_conns"`
	MinConns          int32         `yaml:"min_conns" json:"min_conns"`
	MaxConnLifetime   time.Duration `yaml:"max_conn_lifetime" json:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `yaml:"max_conn_idle_time" json:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `yaml:"health_check_period" json:"health_check_period"`
}

func (c PersistenceConfig) ToPersistenceConfig() persistence.Config {
	return persistence.Config{
		Host:              c.Host,
		Port:              c.Port,
		User:              c.User,
		Password:          c.Password,
		Database:          c.Database,
		SSLMode:           c.SSLMode,
		MaxConns:          c.MaxConns,
		MinConns:          c.MinConns,
		MaxConnLifetime:   c.MaxConnLifetime,
		MaxConnIdleTime:   c.MaxConnIdleTime,
		HealthCheckPeriod: c.HealthCheckPeriod,
	}
}

// GatingConfig mirrors gating.Config field-for-field; duplicated here
// (rather than embedded) so JSON tags and env overrides stay independent of
// the gating package's internal naming.
type GatingConfig struct {
	CooldownSameDirection        time.Duration `yaml:"cooldown_same_direction" json:"cooldown_same_direction"`
	CooldownOpposite             time.Duration `yaml:"cooldown_opposite" json:"cooldown_opposite"`
	CooldownGlobal               time.Duration `yaml:"cooldown_global" json:"cooldown_global"`
	HourlyCapTotal               int           `yaml:"hourly_cap_total" json:"hourly_cap_total"`
	HourlyCapPerDirection        int           `yaml:"hourly_cap_per_direction" json:"hourly_cap_per_direction"`
	HourlyUnknownCountsBoth      bool          `yaml:"hourly_unknown_counts_both" json:"hourly_unknown_counts_both"`
	DuplicateWindow              time.Duration `yaml:"duplicate_window" json:"duplicate_window"`
	DuplicateBpsThreshold        float64       `yaml:"duplicate_bps_threshold" json:"duplicate_bps_threshold"`
	RequireMTFAgreement          bool          `yaml:"require_mtf_agreement" json:"require_mtf_agreement"`
	MinMTFAgreement              float64       `yaml:"min_mtf_agreement" json:"min_mtf_agreement"`
	OppositeMinConfidence        float64       `yaml:"opposite_min_confidence" json:"opposite_min_confidence"`
	ExposureCapTotal             int           `yaml:"exposure_cap_total" json:"exposure_cap_total"`
	ExposureCapPerDirection      int           `yaml:"exposure_cap_per_direction" json:"exposure_cap_per_direction"`
}

func (c GatingConfig) ToGatingConfig() gating.Config {
	policy := gating.HourlyUnknownCountsTotalOnly
	if c.HourlyUnknownCountsBoth {
		policy = gating.HourlyUnknownCountsBoth
	}
	return gating.Config{
		CooldownSameDirection:        c.CooldownSameDirection,
		CooldownOpposite:             c.CooldownOpposite,
		CooldownGlobal:               c.CooldownGlobal,
		HourlyCapTotal:               c.HourlyCapTotal,
		HourlyCapPerDirection:        c.HourlyCapPerDirection,
		HourlyUnknownDirectionPolicy: policy,
		DuplicateWindow:              c.DuplicateWindow,
		DuplicateBpsThreshold:        c.DuplicateBpsThreshold,
		RequireMTFAgreement:          c.RequireMTFAgreement,
		MinMTFAgreement:              c.MinMTFAgreement,
		OppositeMinConfidence:        c.OppositeMinConfidence,
		ExposureCapTotal:             c.ExposureCapTotal,
		ExposureCapPerDirection:      c.ExposureCapPerDirection,
	}
}

func gatingDefaults() GatingConfig {
	d := gating.DefaultConfig()
	return GatingConfig{
		CooldownSameDirection:   d.CooldownSameDirection,
		CooldownOpposite:        d.CooldownOpposite,
		CooldownGlobal:          d.CooldownGlobal,
		HourlyCapTotal:          d.HourlyCapTotal,
		HourlyCapPerDirection:   d.HourlyCapPerDirection,
		HourlyUnknownCountsBoth: d.HourlyUnknownDirectionPolicy == gating.HourlyUnknownCountsBoth,
		DuplicateWindow:         d.DuplicateWindow,
		DuplicateBpsThreshold:   d.DuplicateBpsThreshold,
		RequireMTFAgreement:     d.RequireMTFAgreement,
		MinMTFAgreement:         d.MinMTFAgreement,
		OppositeMinConfidence:   d.OppositeMinConfidence,
		ExposureCapTotal:        d.ExposureCapTotal,
		ExposureCapPerDirection: d.ExposureCapPerDirection,
	}
}

// TrackerConfig mirrors tracker.Config.
type TrackerConfig struct {
	TickInterval     time.Duration `yaml:"tick_interval" json:"tick_interval"`
	MaxHoldingTime   time.Duration `yaml:"max_holding_time" json:"max_holding_time"`
	PriceStaleGrace  time.Duration `yaml:"price_stale_grace" json:"price_stale_grace"`
	BreakevenWindow  time.Duration `yaml:"breakeven_window" json:"breakeven_window"`
	BreakevenEnabled bool          `yaml:"breakeven_enabled" json:"breakeven_enabled"`
}

func (c TrackerConfig) ToTrackerConfig() tracker.Config {
	return tracker.Config{
		TickInterval:     c.TickInterval,
		MaxHoldingTime:   c.MaxHoldingTime,
		PriceStaleGrace:  c.PriceStaleGrace,
		BreakevenWindow:  c.BreakevenWindow,
		BreakevenEnabled: c.BreakevenEnabled,
	}
}

// PriceFeedConfig mirrors pricefeed.Config plus the upstream this process
// fetches quotes from (pricefeed.Fetcher is an out-of-scope external
// collaborator per spec §1; main wires a concrete HTTP fetcher against
// UpstreamURL).
type PriceFeedConfig struct {
	TTL         time.Duration `yaml:"ttl" json:"ttl"`
	StaleWindow time.Duration `yaml:"stale_window" json:"stale_window"`
	UpstreamURL string        `yaml:"upstream_url" json:"upstream_url"`
}

func (c PriceFeedConfig) ToPriceFeedConfig() pricefeed.Config {
	return pricefeed.Config{TTL: c.TTL, StaleWindow: c.StaleWindow}
}

// IntegrationConfig mirrors integration.Config plus the symbol this process
// admits recommendations for and the upstream signal source URL.
type IntegrationConfig struct {
	Symbol          string        `yaml:"symbol" json:"symbol"`
	TickInterval    time.Duration `yaml:"tick_interval" json:"tick_interval"`
	SignalSourceURL string        `yaml:"signal_source_url" json:"signal_source_url"`
}

func (c IntegrationConfig) ToIntegrationConfig() integration.Config {
	return integration.Config{TickInterval: c.TickInterval}
}

// SlippageConfig mirrors slippage.Config.
type SlippageConfig struct {
	WindowSize      int           `yaml:"window_size" json:"window_size"`
	KSigma          float64       `yaml:"k_sigma" json:"k_sigma"`
	MinThresholdBps float64       `yaml:"min_threshold_bps" json:"min_threshold_bps"`
	MaxThresholdBps float64       `yaml:"max_threshold_bps" json:"max_threshold_bps"`
	AdjustDebounce  time.Duration `yaml:"adjust_debounce" json:"adjust_debounce"`
}

func (c SlippageConfig) ToSlippageConfig() slippage.Config {
	return slippage.Config{
		WindowSize:      c.WindowSize,
		KSigma:          c.KSigma,
		MinThresholdBps: c.MinThresholdBps,
		MaxThresholdBps: c.MaxThresholdBps,
		AdjustDebounce:  c.AdjustDebounce,
	}
}

func slippageDefaults() SlippageConfig {
	d := slippage.DefaultConfig()
	return SlippageConfig{
		WindowSize:      d.WindowSize,
		KSigma:          d.KSigma,
		MinThresholdBps: d.MinThresholdBps,
		MaxThresholdBps: d.MaxThresholdBps,
		AdjustDebounce:  d.AdjustDebounce,
	}
}

// StatsConfig configures the statistics read-through cache
// (statistics.NewService's ttl parameter).
type StatsConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

// VaultConfig mirrors vault.Config; secrets resolved through it (database
// password, signal-source URL) override the corresponding plain env vars
// when Vault is enabled.
type VaultConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Address    string `yaml:"address" json:"address"`
	Token      string `yaml:"token" json:"token"`
	MountPath  string `yaml:"mount_path" json:"mount_path"`
	SecretPath string `yaml:"secret_path" json:"secret_path"`
	TLSEnabled bool   `yaml:"tls_enabled" json:"tls_enabled"`
	CACert     string `yaml:"ca_cert" json:"ca_cert"`
}

func (c VaultConfig) ToVaultConfig() vault.Config {
	return vault.Config{
		Enabled:    c.Enabled,
		Address:    c.Address,
		Token:      c.Token,
		MountPath:  c.MountPath,
		SecretPath: c.SecretPath,
		TLSEnabled: c.TLSEnabled,
		CACert:     c.CACert,
	}
}

// Load builds the default configuration, layers an optional YAML file on
// top (path from CONFIG_FILE, if set and present), then applies environment
// variable overrides — the teacher's three-layer precedence order.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := loadFromFile(path)
			if err != nil {
				return nil, err
			}
			cfg = *loaded
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:       "0.0.0.0",
			Port:       8080,
			RateLimit:  120,
			RateWindow: time.Minute,
		},
		Logging: LoggingConfig{Level: "info", JSON: true},
		Persistence: PersistenceConfig{
			UseMemStore:       false,
			Host:              "localhost",
			Port:              5432,
			User:              "postgres",
			Database:          "trading_engine",
			SSLMode:           "disable",
			MaxConns:          10,
			MinConns:          2,
			MaxConnLifetime:   time.Hour,
			MaxConnIdleTime:   30 * time.Minute,
			HealthCheckPeriod: time.Minute,
		},
		Gating: gatingDefaults(),
		Tracker: TrackerConfig{
			TickInterval:     5 * time.Second,
			MaxHoldingTime:   24 * time.Hour,
			PriceStaleGrace:  2 * time.Minute,
			BreakevenWindow:  0,
			BreakevenEnabled: false,
		},
		PriceFeed: PriceFeedConfig{
			TTL:         10 * time.Second,
			StaleWindow: 60 * time.Second,
			UpstreamURL: "https://api.binance.com/api/v3/ticker/price",
		},
		Integration: IntegrationConfig{
			Symbol:       "BTCUSDT",
			TickInterval: 15 * time.Second,
		},
		Slippage: slippageDefaults(),
		Stats:    StatsConfig{CacheTTL: 60 * time.Second},
		Vault: VaultConfig{
			Enabled:    false,
			Address:    "http://localhost:8200",
			MountPath:  "secret",
			SecretPath: "trading-engine/config",
		},
	}
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Server
	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvIntOrDefault("SERVER_PORT", cfg.Server.Port)
	cfg.Server.ProductionMode = getEnvBoolOrDefault("SERVER_PRODUCTION_MODE", cfg.Server.ProductionMode)
	cfg.Server.RateLimit = getEnvIntOrDefault("SERVER_RATE_LIMIT", cfg.Server.RateLimit)
	cfg.Server.RateWindow = getEnvDurationOrDefault("SERVER_RATE_WINDOW", cfg.Server.RateWindow)

	// Logging
	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.JSON = getEnvBoolOrDefault("LOG_JSON", cfg.Logging.JSON)

	// Persistence
	cfg.Persistence.UseMemStore = getEnvBoolOrDefault("DB_USE_MEMSTORE", cfg.Persistence.UseMemStore)
	cfg.Persistence.Host = getEnvOrDefault("DB_HOST", cfg.Persistence.Host)
	cfg.Persistence.Port = getEnvIntOrDefault("DB_PORT", cfg.Persistence.Port)
	cfg.Persistence.User = getEnvOrDefault("DB_USER", cfg.Persistence.User)
	cfg.Persistence.Password = getEnvOrDefault("DB_PASSWORD", cfg.Persistence.Password)
	cfg.Persistence.Database = getEnvOrDefault("DB_NAME", cfg.Persistence.Database)
	cfg.Persistence.SSLMode = getEnvOrDefault("DB_SSL_MODE", cfg.Persistence.SSLMode)
	cfg.Persistence.MaxConns = int32(getEnvIntOrDefault("DB_MAX_CONNS", int(cfg.Persistence.MaxConns)))
	cfg.Persistence.MinConns = int32(getEnvIntOrDefault("DB_MIN_CONNS", int(cfg.Persistence.MinConns)))
	cfg.Persistence.MaxConnLifetime = getEnvDurationOrDefault("DB_MAX_CONN_LIFETIME", cfg.Persistence.MaxConnLifetime)
	cfg.Persistence.MaxConnIdleTime = getEnvDurationOrDefault("DB_MAX_CONN_IDLE_TIME", cfg.Persistence.MaxConnIdleTime)
	cfg.Persistence.HealthCheckPeriod = getEnvDurationOrDefault("DB_HEALTH_CHECK_PERIOD", cfg.Persistence.HealthCheckPeriod)

	// Gating
	cfg.Gating.CooldownSameDirection = getEnvDurationOrDefault("GATING_COOLDOWN_SAME_DIRECTION", cfg.Gating.CooldownSameDirection)
	cfg.Gating.CooldownOpposite = getEnvDurationOrDefault("GATING_COOLDOWN_OPPOSITE", cfg.Gating.CooldownOpposite)
	cfg.Gating.CooldownGlobal = getEnvDurationOrDefault("GATING_COOLDOWN_GLOBAL", cfg.Gating.CooldownGlobal)
	cfg.Gating.HourlyCapTotal = getEnvIntOrDefault("GATING_HOURLY_CAP_TOTAL", cfg.Gating.HourlyCapTotal)
	cfg.Gating.HourlyCapPerDirection = getEnvIntOrDefault("GATING_HOURLY_CAP_PER_DIRECTION", cfg.Gating.HourlyCapPerDirection)
	cfg.Gating.HourlyUnknownCountsBoth = getEnvBoolOrDefault("GATING_HOURLY_UNKNOWN_COUNTS_BOTH", cfg.Gating.HourlyUnknownCountsBoth)
	cfg.Gating.DuplicateWindow = time.Duration(getEnvIntOrDefault("GATING_DUPLICATE_WINDOW_MINUTES", int(cfg.Gating.DuplicateWindow/time.Minute))) * time.Minute
	cfg.Gating.DuplicateBpsThreshold = getEnvFloatOrDefault("GATING_DUPLICATE_BPS_THRESHOLD", cfg.Gating.DuplicateBpsThreshold)
	cfg.Gating.RequireMTFAgreement = getEnvBoolOrDefault("GATING_REQUIRE_MTF_AGREEMENT", cfg.Gating.RequireMTFAgreement)
	cfg.Gating.MinMTFAgreement = getEnvFloatOrDefault("GATING_MIN_MTF_AGREEMENT", cfg.Gating.MinMTFAgreement)
	cfg.Gating.OppositeMinConfidence = getEnvFloatOrDefault("GATING_OPPOSITE_MIN_CONFIDENCE", cfg.Gating.OppositeMinConfidence)
	cfg.Gating.ExposureCapTotal = getEnvIntOrDefault("GATING_EXPOSURE_CAP_TOTAL", cfg.Gating.ExposureCapTotal)
	cfg.Gating.ExposureCapPerDirection = getEnvIntOrDefault("GATING_EXPOSURE_CAP_PER_DIRECTION", cfg.Gating.ExposureCapPerDirection)

	// Tracker
	cfg.Tracker.TickInterval = getEnvDurationOrDefault("TRACKER_TICK_INTERVAL", cfg.Tracker.TickInterval)
	cfg.Tracker.MaxHoldingTime = getEnvDurationOrDefault("TRACKER_MAX_HOLDING_TIME", cfg.Tracker.MaxHoldingTime)
	cfg.Tracker.PriceStaleGrace = getEnvDurationOrDefault("TRACKER_PRICE_STALE_GRACE", cfg.Tracker.PriceStaleGrace)
	cfg.Tracker.BreakevenWindow = getEnvDurationOrDefault("TRACKER_BREAKEVEN_WINDOW", cfg.Tracker.BreakevenWindow)
	cfg.Tracker.BreakevenEnabled = getEnvBoolOrDefault("TRACKER_BREAKEVEN_ENABLED", cfg.Tracker.BreakevenEnabled)

	// Price feed
	cfg.PriceFeed.TTL = getEnvDurationOrDefault("PRICEFEED_CACHE_TTL", cfg.PriceFeed.TTL)
	cfg.PriceFeed.StaleWindow = getEnvDurationOrDefault("PRICEFEED_STALE_WINDOW", cfg.PriceFeed.StaleWindow)
	cfg.PriceFeed.UpstreamURL = getEnvOrDefault("PRICEFEED_UPSTREAM_URL", cfg.PriceFeed.UpstreamURL)

	// Integration
	cfg.Integration.Symbol = getEnvOrDefault("INTEGRATION_SYMBOL", cfg.Integration.Symbol)
	cfg.Integration.TickInterval = getEnvDurationOrDefault("INTEGRATION_TICK_INTERVAL", cfg.Integration.TickInterval)
	cfg.Integration.SignalSourceURL = getEnvOrDefault("INTEGRATION_SIGNAL_SOURCE_URL", cfg.Integration.SignalSourceURL)

	// Slippage
	cfg.Slippage.WindowSize = getEnvIntOrDefault("SLIPPAGE_WINDOW_SIZE", cfg.Slippage.WindowSize)
	cfg.Slippage.KSigma = getEnvFloatOrDefault("SLIPPAGE_K_SIGMA", cfg.Slippage.KSigma)
	cfg.Slippage.MinThresholdBps = getEnvFloatOrDefault("SLIPPAGE_MIN_THRESHOLD_BPS", cfg.Slippage.MinThresholdBps)
	cfg.Slippage.MaxThresholdBps = getEnvFloatOrDefault("SLIPPAGE_MAX_THRESHOLD_BPS", cfg.Slippage.MaxThresholdBps)
	cfg.Slippage.AdjustDebounce = getEnvDurationOrDefault("SLIPPAGE_ADJUST_DEBOUNCE", cfg.Slippage.AdjustDebounce)

	// Stats
	cfg.Stats.CacheTTL = getEnvDurationOrDefault("STATS_CACHE_TTL", cfg.Stats.CacheTTL)

	// Vault
	cfg.Vault.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.Vault.Enabled)
	cfg.Vault.Address = getEnvOrDefault("VAULT_ADDR", cfg.Vault.Address)
	cfg.Vault.Token = getEnvOrDefault("VAULT_TOKEN", cfg.Vault.Token)
	cfg.Vault.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.Vault.MountPath)
	cfg.Vault.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.Vault.SecretPath)
	cfg.Vault.TLSEnabled = getEnvBoolOrDefault("VAULT_TLS_ENABLED", cfg.Vault.TLSEnabled)
	cfg.Vault.CACert = getEnvOrDefault("VAULT_CA_CERT", cfg.Vault.CACert)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GenerateSampleConfig writes the default configuration to filename as
// YAML, for operators bootstrapping a CONFIG_FILE.
func GenerateSampleConfig(filename string) error {
	cfg := defaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
