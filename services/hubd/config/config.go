package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen        = ":8088"
	defaultMetricsListen = ":9108"
	defaultDataDir       = "./hubd-data"
	defaultGenesis       = "genesis.toml"

	signalTraces  = "traces"
	signalMetrics = "metrics"
)

// Config captures the runtime settings for the hub service daemon.
type Config struct {
	ListenAddress  string          `yaml:"listen"`
	MetricsAddress string          `yaml:"metrics_listen"`
	DataDir        string          `yaml:"data_dir"`
	GenesisPath    string          `yaml:"genesis"`
	DatabaseDSN    string          `yaml:"database"`
	Auth           AuthConfig      `yaml:"auth"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	Log            LogConfig       `yaml:"log"`
	Webhook        WebhookConfig   `yaml:"webhook"`
	Telemetry      TelemetryConfig `yaml:"telemetry"`
}

// AuthConfig configures bearer token verification for write routes.
type AuthConfig struct {
	HMACSecret    string        `yaml:"hmac_secret"`
	HMACSecretEnv string        `yaml:"hmac_secret_env"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clock_skew"`
}

// RateLimitConfig bounds requests per client.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// LogConfig optionally mirrors logs into a rotated file.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// WebhookConfig forwards committed events to an HTTP endpoint.
type WebhookConfig struct {
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Topics []string `yaml:"topics"`
}

// TelemetryConfig toggles OTLP export. Endpoint overrides
// OTEL_EXPORTER_OTLP_ENDPOINT and Signals picks "traces", "metrics" or both.
type TelemetryConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Endpoint string   `yaml:"endpoint"`
	Signals  []string `yaml:"signals"`
}

// Exports reports whether the named signal is selected.
func (cfg TelemetryConfig) Exports(signal string) bool {
	for _, s := range cfg.Signals {
		if s == signal {
			return true
		}
	}
	return false
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.MetricsAddress = strings.TrimSpace(cfg.MetricsAddress)
	if cfg.MetricsAddress == "" {
		cfg.MetricsAddress = defaultMetricsListen
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	cfg.GenesisPath = strings.TrimSpace(cfg.GenesisPath)
	if cfg.GenesisPath == "" {
		cfg.GenesisPath = filepath.Join(cfg.DataDir, defaultGenesis)
	}
	cfg.DatabaseDSN = strings.TrimSpace(cfg.DatabaseDSN)
	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = filepath.Join(cfg.DataDir, "hubd.db")
	}
	cfg.Auth.normalize()
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 120
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}
	cfg.Log.File = strings.TrimSpace(cfg.Log.File)
	if cfg.Log.File != "" && cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 100
	}
	cfg.Webhook.URL = strings.TrimSpace(cfg.Webhook.URL)
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
	signals := cfg.Telemetry.Signals[:0]
	for _, s := range cfg.Telemetry.Signals {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			signals = append(signals, s)
		}
	}
	cfg.Telemetry.Signals = signals
	if len(cfg.Telemetry.Signals) == 0 {
		cfg.Telemetry.Signals = []string{signalTraces, signalMetrics}
	}
}

func (cfg *AuthConfig) normalize() {
	if cfg == nil {
		return
	}
	cfg.HMACSecretEnv = strings.TrimSpace(cfg.HMACSecretEnv)
	if cfg.HMACSecretEnv != "" {
		if value := strings.TrimSpace(os.Getenv(cfg.HMACSecretEnv)); value != "" {
			cfg.HMACSecret = value
		}
	}
	cfg.HMACSecret = strings.TrimSpace(cfg.HMACSecret)
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("auth: hmac_secret or hmac_secret_env must be configured")
	}
	if len(cfg.Auth.HMACSecret) < 32 {
		return fmt.Errorf("auth: hmac secret must be at least 32 bytes")
	}
	if cfg.ListenAddress == cfg.MetricsAddress {
		return fmt.Errorf("metrics_listen must differ from listen")
	}
	if cfg.Webhook.URL != "" && strings.TrimSpace(cfg.Webhook.Secret) == "" {
		return fmt.Errorf("webhook: secret required when url is set")
	}
	for _, s := range cfg.Telemetry.Signals {
		if s != signalTraces && s != signalMetrics {
			return fmt.Errorf("telemetry: unknown signal %q", s)
		}
	}
	return nil
}
