package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	"gopkg.in/yaml.v3"

	"covidboard/internal/engine"
)

// Default values for the dashboard configuration.
const (
	DefaultHTTPPort     = 8080
	DefaultRateLimit    = 20
	DefaultDatasetURL   = engine.DefaultDatasetURL
	DefaultDatasetTTL   = 24 * time.Hour
	DefaultFetchTimeout = 30 * time.Second
	DefaultStartDate    = "2020-01-22"
	DefaultEndDate      = "2021-12-31"
	DefaultLogLevel     = "info"
)

// Config is the root of config.yaml.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	// HTTPPort is the port the API listens on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// CORSOrigins is passed to the CORS middleware. Empty allows all origins.
	CORSOrigins []string `yaml:"cors_origins"`

	// RateLimit is the per-client request rate in requests per second.
	// Zero disables rate limiting.
	RateLimit float64 `yaml:"rate_limit"`
}

// DatasetConfig says where the CSV comes from and how long it is cached.
// Path takes precedence over URL when set.
type DatasetConfig struct {
	URL     string        `yaml:"url"`
	Path    string        `yaml:"path"`
	TTL     time.Duration `yaml:"ttl"`
	Timeout time.Duration `yaml:"timeout"`
}

// DashboardConfig holds the date range used when a request omits one.
type DashboardConfig struct {
	DefaultStart string `yaml:"default_start"`
	DefaultEnd   string `yaml:"default_end"`
}

type LogConfig struct {
	// Level is one of: debug | info | warn | error | off.
	Level string `yaml:"level"`
}

// Lvl maps Level onto the gommon log level.
func (l LogConfig) Lvl() log.Lvl {
	switch strings.ToLower(l.Level) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}

// Load reads and parses the config file at path. An empty path yields the
// defaults. Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:  DefaultHTTPPort,
			RateLimit: DefaultRateLimit,
		},
		Dataset: DatasetConfig{
			URL:     DefaultDatasetURL,
			TTL:     DefaultDatasetTTL,
			Timeout: DefaultFetchTimeout,
		},
		Dashboard: DashboardConfig{
			DefaultStart: DefaultStartDate,
			DefaultEnd:   DefaultEndDate,
		},
		Log: LogConfig{Level: DefaultLogLevel},
	}
}

func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	if cfg.Dataset.URL == "" && cfg.Dataset.Path == "" {
		return fmt.Errorf("dataset: one of url or path is required")
	}
	if cfg.Dataset.TTL < 0 {
		return fmt.Errorf("dataset.ttl must not be negative")
	}
	if cfg.Dataset.Timeout <= 0 {
		return fmt.Errorf("dataset.timeout must be positive")
	}
	for name, v := range map[string]string{
		"dashboard.default_start": cfg.Dashboard.DefaultStart,
		"dashboard.default_end":   cfg.Dashboard.DefaultEnd,
	} {
		if _, err := time.Parse("2006-01-02", v); err != nil {
			return fmt.Errorf("%s %q is not YYYY-MM-DD", name, v)
		}
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error", "off":
	default:
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error|off", cfg.Log.Level)
	}
	return nil
}
