package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Remote  RemoteConfig  `yaml:"remote" envconfig:"REMOTE"`
	Keys    KeysConfig    `yaml:"keys" envconfig:"KEYS"`
	Store   StoreConfig   `yaml:"store" envconfig:"STORE"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RateRPS         float64       `yaml:"rate_rps" envconfig:"RATE_RPS" default:"20"`
	RateBurst       int           `yaml:"rate_burst" envconfig:"RATE_BURST" default:"10"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"stdout"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
}

// RemoteConfig describes the Apps Script key ledger endpoint.
type RemoteConfig struct {
	EndpointURL string        `yaml:"endpoint_url" envconfig:"ENDPOINT_URL"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"10s"`
	RateRPS     float64       `yaml:"rate_rps" envconfig:"RATE_RPS" default:"2"`
	RateBurst   int           `yaml:"rate_burst" envconfig:"RATE_BURST" default:"2"`
}

// KeysConfig carries the key scheme parameters.
type KeysConfig struct {
	Secret       string        `yaml:"secret" envconfig:"SECRET"`
	LegacySecret string        `yaml:"legacy_secret" envconfig:"LEGACY_SECRET"`
	DailyCap     int           `yaml:"daily_cap" envconfig:"DAILY_CAP" default:"5"`
	ValidityDays int           `yaml:"validity_days" envconfig:"VALIDITY_DAYS" default:"30"`
	LegacyMaxAge time.Duration `yaml:"legacy_max_age" envconfig:"LEGACY_MAX_AGE" default:"24h"`
	FreeBonus    int           `yaml:"free_bonus" envconfig:"FREE_BONUS" default:"20"`
	PaidBonus    int           `yaml:"paid_bonus" envconfig:"PAID_BONUS" default:"-1"`
	LegacyBonus  int           `yaml:"legacy_bonus" envconfig:"LEGACY_BONUS" default:"10"`
}

// StoreConfig locates the local bookkeeping file.
type StoreConfig struct {
	Path string `yaml:"path" envconfig:"PATH" default:"data/keystore.json"`
}

// Load builds the configuration from environment variables and, when
// present, a YAML config file.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("CSK", &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if path := configFilePath(); path != "" {
		fileCfg, err := loadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
		cfg = merge(*fileCfg, cfg)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration, secrets included. Intended
// for tools and tests; Load is the production path.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateRPS:         20,
			RateBurst:       10,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "stdout",
			FilePath: "logs/app.log",
		},
		Remote: RemoteConfig{
			Timeout:   10 * time.Second,
			RateRPS:   2,
			RateBurst: 2,
		},
		Keys: KeysConfig{
			DailyCap:     DefaultDailyCap,
			ValidityDays: DefaultValidityDays,
			LegacyMaxAge: 24 * time.Hour,
			FreeBonus:    DefaultFreeBonus,
			PaidBonus:    DefaultPaidBonus,
			LegacyBonus:  DefaultLegacyBonus,
		},
		Store: StoreConfig{Path: "data/keystore.json"},
	}
	cfg.applyDefaults()
	return cfg
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// merge overlays env config on file config; env wins where set.
func merge(fileCfg, envCfg Config) Config {
	if envCfg.Server.Port == 0 {
		envCfg.Server.Port = fileCfg.Server.Port
	}
	if envCfg.Remote.EndpointURL == "" {
		envCfg.Remote.EndpointURL = fileCfg.Remote.EndpointURL
	}
	if envCfg.Keys.Secret == "" {
		envCfg.Keys.Secret = fileCfg.Keys.Secret
	}
	if envCfg.Keys.LegacySecret == "" {
		envCfg.Keys.LegacySecret = fileCfg.Keys.LegacySecret
	}
	if envCfg.Store.Path == "" {
		envCfg.Store.Path = fileCfg.Store.Path
	}
	if envCfg.Logging.Level == "" {
		envCfg.Logging.Level = fileCfg.Logging.Level
	}
	return envCfg
}

// applyDefaults fills in values envconfig defaults do not reach when the
// struct came from a YAML file.
func (c *Config) applyDefaults() {
	if c.Keys.Secret == "" {
		c.Keys.Secret = DefaultSecret
	}
	if c.Keys.LegacySecret == "" {
		c.Keys.LegacySecret = DefaultLegacySecret
	}
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Remote.EndpointURL == "" {
		return fmt.Errorf("remote endpoint URL is required (CSK_REMOTE_ENDPOINT_URL)")
	}
	if _, err := url.ParseRequestURI(c.Remote.EndpointURL); err != nil {
		return fmt.Errorf("invalid remote endpoint URL: %w", err)
	}
	if c.Keys.DailyCap <= 0 {
		return fmt.Errorf("daily cap must be positive, got %d", c.Keys.DailyCap)
	}
	if c.Keys.ValidityDays <= 0 {
		return fmt.Errorf("validity days must be positive, got %d", c.Keys.ValidityDays)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("local store path is required")
	}
	return nil
}

// configFilePath locates an optional YAML config file.
func configFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}
