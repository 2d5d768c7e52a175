package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	API         APIConfig       `toml:"api"`
	Downloads   DownloadsConfig `toml:"downloads"`
	Tables      TablesConfig    `toml:"tables"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// APIConfig describes the upstream data API the tables and downloads talk to
type APIConfig struct {
	Location      string `toml:"location"`       // API root, e.g. https://api.open.fec.gov
	Version       string `toml:"version"`        // Path segment prepended to every table path, e.g. "v1"
	Key           string `toml:"key"`            // Sent as api_key on table requests
	Timeout       string `toml:"timeout"`        // Per-request HTTP timeout
	RateLimit     int    `toml:"rate_limit"`     // Requests per second across all tables and jobs
	RetryAttempts int    `toml:"retry_attempts"` // Retries for table fetches on network errors and 5xx
	RetryBackoff  string `toml:"retry_backoff"`  // Initial retry backoff, doubled per attempt
}

// DownloadsConfig controls the download job registry
type DownloadsConfig struct {
	MaxJobs      int    `toml:"max_jobs"`      // Concurrent download jobs (default: 5)
	PollInterval string `toml:"poll_interval"` // Delay between status polls (default: "5s")
}

// TablesConfig controls table definitions and per-browser table sessions
type TablesConfig struct {
	DefinitionsDir  string `toml:"definitions_dir"`  // User overrides for embedded table definitions (TOML/YAML)
	SessionTTL      string `toml:"session_ttl"`      // Idle lifetime of a table session (seek cursors, panel state)
	Debounce        string `toml:"debounce"`         // Filter change debounce (default: "250ms")
	PanelBreakpoint int    `toml:"panel_breakpoint"` // Viewport width below which tablet columns hide with the panel
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		API: APIConfig{
			Location:      "https://api.open.fec.gov",
			Version:       "v1",
			Key:           "DEMO_KEY",
			Timeout:       "30s",
			RateLimit:     10,
			RetryAttempts: 2,
			RetryBackoff:  "500ms",
		},
		Downloads: DownloadsConfig{
			MaxJobs:      5,
			PollInterval: "5s",
		},
		Tables: TablesConfig{
			DefinitionsDir:  "./tables",
			SessionTTL:      "30m",
			Debounce:        "250ms",
			PanelBreakpoint: 980,
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FECVIEW_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("FECVIEW_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("FECVIEW_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("FECVIEW_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("FECVIEW_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("FECVIEW_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// API configuration
	if location := os.Getenv("FECVIEW_API_LOCATION"); location != "" {
		config.API.Location = location
	}
	if version := os.Getenv("FECVIEW_API_VERSION"); version != "" {
		config.API.Version = version
	}
	if key := os.Getenv("FECVIEW_API_KEY"); key != "" {
		config.API.Key = key
	}
	if timeout := os.Getenv("FECVIEW_API_TIMEOUT"); timeout != "" {
		if _, err := time.ParseDuration(timeout); err == nil {
			config.API.Timeout = timeout
		}
	}
	if rateLimit := os.Getenv("FECVIEW_API_RATE_LIMIT"); rateLimit != "" {
		if rl, err := strconv.Atoi(rateLimit); err == nil && rl > 0 {
			config.API.RateLimit = rl
		}
	}

	// Downloads configuration
	if maxJobs := os.Getenv("FECVIEW_DOWNLOADS_MAX_JOBS"); maxJobs != "" {
		if mj, err := strconv.Atoi(maxJobs); err == nil && mj > 0 {
			config.Downloads.MaxJobs = mj
		}
	}
	if pollInterval := os.Getenv("FECVIEW_DOWNLOADS_POLL_INTERVAL"); pollInterval != "" {
		if _, err := time.ParseDuration(pollInterval); err == nil {
			config.Downloads.PollInterval = pollInterval
		}
	}

	// Tables configuration
	if dir := os.Getenv("FECVIEW_TABLES_DIR"); dir != "" {
		config.Tables.DefinitionsDir = dir
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ParseDuration parses a config duration, falling back to def when the value is empty or invalid
func ParseDuration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// IsProduction reports whether the configured environment is production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
