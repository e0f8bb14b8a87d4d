// Package config loads the sandtrader YAML configuration and applies
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for sandtrader.
type Config struct {
	Broker  Broker  `yaml:"broker"`
	Trading Trading `yaml:"trading"`
	Storage Storage `yaml:"storage"`
	Server  Server  `yaml:"server"`
	News    News    `yaml:"news"`
	Logging Logging `yaml:"logging"`
}

// Broker holds credentials and endpoints for the sandbox investment API.
type Broker struct {
	Token           string        `yaml:"token"`
	BaseURL         string        `yaml:"base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
}

// Trading defines the decision-loop parameters.
type Trading struct {
	FIGI            string        `yaml:"figi"`
	ChartFIGI       string        `yaml:"chart_figi"`
	Threshold       float64       `yaml:"threshold"`
	BuyQuantity     float64       `yaml:"buy_quantity"`
	CycleInterval   time.Duration `yaml:"cycle_interval"`
	PayIn           int64         `yaml:"pay_in"`
	Currency        string        `yaml:"currency"`
	MaxLotsPerOrder int64         `yaml:"max_lots_per_order"`
	MaxOpenOrders   int           `yaml:"max_open_orders"`
}

// Storage holds paths for data persistence.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
	ArchiveDir string `yaml:"archive_dir"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// News configures headline aggregation.
type News struct {
	Symbols []string `yaml:"symbols"`
	Limit   int      `yaml:"limit"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the configuration used when no file or override says
// otherwise.
func Default() *Config {
	return &Config{
		Broker: Broker{
			BaseURL:         "https://sandbox-invest-public-api.tinkoff.ru/rest",
			Timeout:         10 * time.Second,
			RateLimitPerMin: 120,
		},
		Trading: Trading{
			FIGI:          "BBG0013HGFT4",
			ChartFIGI:     "BBG004S68CV8",
			Threshold:     1000,
			BuyQuantity:   1,
			CycleInterval: 60 * time.Second,
			PayIn:         100000,
			Currency:      "rub",
		},
		Storage: Storage{
			SQLitePath: "sandtrader.db",
			ArchiveDir: "data",
		},
		Server: Server{
			Host: "0.0.0.0",
			Port: 8080,
		},
		News: News{
			Limit: 5,
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// Load reads the YAML configuration file at the given path over the
// defaults, then applies environment variable overrides. A missing file is
// not an error; defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults only.
	default:
		return nil, err
	}

	applyEnvOverrides(cfg)

	if cfg.Broker.Token == "" {
		return nil, fmt.Errorf("broker token missing: set broker.token or TINKOFF_SANDBOX_TOKEN")
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TINKOFF_SANDBOX_TOKEN"); v != "" {
		cfg.Broker.Token = v
	}
	if v := os.Getenv("BROKER_BASE_URL"); v != "" {
		cfg.Broker.BaseURL = v
	}
	if v := os.Getenv("TRADING_FIGI"); v != "" {
		cfg.Trading.FIGI = v
	}
	if v := os.Getenv("TRADING_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Trading.Threshold = f
		}
	}
	if v := os.Getenv("TRADING_CYCLE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Trading.CycleInterval = d
		}
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("ARCHIVE_DIR"); v != "" {
		cfg.Storage.ArchiveDir = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Addr returns the host:port listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
