// Package config loads and validates the Trenton configuration.
//
// Configuration is resolved in three layers, highest priority last:
//  1. Built-in defaults
//  2. YAML config file (default: <data-dir>/config.yaml)
//  3. TRENTON_* environment variables
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that YAML-decodes from strings like "500ms"
// or "2s".
type Duration time.Duration

// Std returns the value as a standard time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string or nanosecond count, got %q", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Config represents the complete Trenton configuration.
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	Provider ProviderConfig `yaml:"provider"`
	Indexing IndexingConfig `yaml:"indexing"`
	Search   SearchConfig   `yaml:"search"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// PathsConfig configures on-disk locations.
type PathsConfig struct {
	// DataDir holds the database, the process lock, and logs.
	DataDir string `yaml:"data_dir"`
	// DatabasePath overrides the default <data_dir>/trenton.db.
	DatabasePath string `yaml:"database_path"`
}

// ProviderConfig configures the embedding provider.
type ProviderConfig struct {
	// Kind selects the provider: "http" or "static".
	Kind string `yaml:"kind"`
	// Endpoint is the HTTP model-server base URL.
	Endpoint string `yaml:"endpoint"`
	// Model is the model identifier requested from the server.
	Model string `yaml:"model"`
	// Dimensions is the expected vector dimension (0 = autodetect).
	Dimensions int `yaml:"dimensions"`
	// Timeout bounds a single embedding request.
	Timeout Duration `yaml:"timeout"`
	// CacheSize is the number of query embeddings kept in the LRU cache.
	CacheSize int `yaml:"cache_size"`
}

// IndexingConfig configures the event pipeline and scan jobs.
type IndexingConfig struct {
	// Workers is the number of concurrent event-indexing workers.
	Workers int `yaml:"workers"`
	// EventCooldown is the per-path debounce window for create/modify events.
	EventCooldown Duration `yaml:"event_cooldown"`
	// QueueSize is the capacity of the shared event queue.
	QueueSize int `yaml:"queue_size"`
	// CooldownEntries bounds the debouncer's per-path cooldown cache.
	CooldownEntries int `yaml:"cooldown_entries"`
}

// SearchConfig configures ranking defaults and bounds.
type SearchConfig struct {
	// DefaultTopK is the result cap applied when a request omits one.
	DefaultTopK int `yaml:"default_top_k"`
	// MaxTopK is the upper bound on any requested result cap.
	MaxTopK int `yaml:"max_top_k"`
	// DefaultThreshold is the minimum similarity score applied by default.
	DefaultThreshold float64 `yaml:"default_threshold"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// File enables JSON file logging under <data_dir>/logs when true.
	File bool `yaml:"file"`
}

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir: defaultDataDir(),
		},
		Provider: ProviderConfig{
			Kind:      "http",
			Endpoint:  "http://localhost:9870",
			Model:     "pe-av-large",
			Timeout:   Duration(60 * time.Second),
			CacheSize: 512,
		},
		Indexing: IndexingConfig{
			Workers:         5,
			EventCooldown:   Duration(2 * time.Second),
			QueueSize:       1024,
			CooldownEntries: 4096,
		},
		Search: SearchConfig{
			DefaultTopK:      10,
			MaxTopK:          100,
			DefaultThreshold: 0.0,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  true,
		},
	}
}

// defaultDataDir returns ~/.trenton, falling back to the temp directory when
// the home directory cannot be resolved.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".trenton")
	}
	return filepath.Join(home, ".trenton")
}

// Load reads configuration from path (empty = defaults only), then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies TRENTON_* environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("TRENTON_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("TRENTON_PROVIDER"); v != "" {
		c.Provider.Kind = v
	}
	if v := os.Getenv("TRENTON_PROVIDER_ENDPOINT"); v != "" {
		c.Provider.Endpoint = v
	}
	if v := os.Getenv("TRENTON_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Indexing.Workers = n
		}
	}
	if v := os.Getenv("TRENTON_EVENT_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Indexing.EventCooldown = Duration(d)
		}
	}
	if v := os.Getenv("TRENTON_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("TRENTON_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	if c.Paths.DataDir == "" {
		return fmt.Errorf("paths.data_dir must not be empty")
	}
	switch c.Provider.Kind {
	case "http", "static":
	default:
		return fmt.Errorf("provider.kind must be http or static, got %q", c.Provider.Kind)
	}
	if c.Indexing.Workers < 1 {
		return fmt.Errorf("indexing.workers must be >= 1, got %d", c.Indexing.Workers)
	}
	if c.Indexing.EventCooldown < 0 {
		return fmt.Errorf("indexing.event_cooldown must not be negative")
	}
	if c.Search.DefaultTopK < 1 || c.Search.DefaultTopK > c.Search.MaxTopK {
		return fmt.Errorf("search.default_top_k must be within [1, %d], got %d", c.Search.MaxTopK, c.Search.DefaultTopK)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid port, got %d", c.Server.Port)
	}
	return nil
}

// DatabasePath returns the effective SQLite database path.
func (c *Config) DatabasePath() string {
	if c.Paths.DatabasePath != "" {
		return c.Paths.DatabasePath
	}
	return filepath.Join(c.Paths.DataDir, "trenton.db")
}

// LogFilePath returns the server log path, or empty when file logging is off.
func (c *Config) LogFilePath() string {
	if !c.Logging.File {
		return ""
	}
	return filepath.Join(c.Paths.DataDir, "logs", "server.log")
}
