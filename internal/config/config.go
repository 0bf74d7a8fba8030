// Package config provides configuration management for memvault.
//
// Settings are layered: built-in defaults, then an optional YAML file, then
// environment variables with the MEMVAULT_ prefix. A .env file, when present,
// is loaded into the environment first and never overrides variables that
// are already set.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/scrypster/memvault/internal/engine"
	"github.com/scrypster/memvault/internal/llm"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "MEMVAULT_"

// Config holds all configuration settings for memvault.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Engine    EngineConfig    `yaml:"engine"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	Security  SecurityConfig  `yaml:"security"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // Server port (default: 6363)
	Host string `yaml:"host"` // Server host (default: 127.0.0.1)

	// RateLimit is requests per second per client; RateBurst the bucket size.
	RateLimit float64 `yaml:"rate_limit"` // default: 20
	RateBurst int     `yaml:"rate_burst"` // default: 40

	// AllowedOrigins lists extra websocket origins beyond the server's own host.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	Engine   string `yaml:"engine"`    // sqlite, postgres or mysql (default: sqlite)
	DataPath string `yaml:"data_path"` // SQLite data directory (default: ./data)
	DSN      string `yaml:"dsn"`       // Connection string; required for postgres and mysql
}

// SQLitePath returns the database file used when Engine is sqlite and no DSN is given.
func (s StorageConfig) SQLitePath() string {
	if s.DSN != "" {
		return s.DSN
	}
	return filepath.Join(s.DataPath, "memvault.db")
}

// EmbeddingConfig selects the embedding provider used for similarity search.
// An empty Provider disables embeddings and search falls back to lexical scoring.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"` // "", hash, ollama, openai
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`    // default: 5s
	CacheSize int64         `yaml:"cache_size"` // query-embedding cache entries (default: 1024)

	// BreakerFailures consecutive provider failures open the circuit for
	// BreakerCooldown.
	BreakerFailures int           `yaml:"breaker_failures"` // default: 3
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"` // default: 30s
}

// LLM converts to the provider factory's configuration. The caller
// supplies the breaker.
func (e EmbeddingConfig) LLM() llm.EmbeddingConfig {
	return llm.EmbeddingConfig{
		Provider: e.Provider,
		Model:    e.Model,
		BaseURL:  e.BaseURL,
		APIKey:   e.APIKey,
		Timeout:  e.Timeout,
	}
}

// EngineConfig tunes search and lifecycle behaviour.
type EngineConfig struct {
	SimilarityThreshold  float64       `yaml:"similarity_threshold"`   // default: 0.7
	SearchTimeout        time.Duration `yaml:"search_timeout"`         // default: 10s
	SearchConcurrency    int           `yaml:"search_concurrency"`     // default: 8
	ImmediateTTL         time.Duration `yaml:"immediate_ttl"`          // default: 24h
	ShortTermTTL         time.Duration `yaml:"short_term_ttl"`         // default: 720h
	ArchiveRetentionDays int           `yaml:"archive_retention_days"` // default: 365
	Timezone             string        `yaml:"timezone"`               // IANA name for stats buckets (default: UTC)
}

// Engine converts to engine.Config, resolving the timezone.
func (e EngineConfig) Engine() (engine.Config, error) {
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return engine.Config{}, fmt.Errorf("invalid timezone %q: %w", e.Timezone, err)
	}
	def := engine.DefaultConfig()
	return engine.Config{
		SimilarityThreshold:  e.SimilarityThreshold,
		SearchTimeout:        e.SearchTimeout,
		SearchConcurrency:    e.SearchConcurrency,
		ImmediateTTL:         e.ImmediateTTL,
		ShortTermTTL:         e.ShortTermTTL,
		ArchiveRetentionDays: e.ArchiveRetentionDays,
		EmbedTimeout:         def.EmbedTimeout,
		Location:             loc,
	}, nil
}

// CleanupConfig controls the background cleanup scheduler.
type CleanupConfig struct {
	Enabled        bool          `yaml:"enabled"`         // default: false
	Interval       time.Duration `yaml:"interval"`        // default: 24h
	DaysOld        int           `yaml:"days_old"`        // default: 30
	IncludeExpired bool          `yaml:"include_expired"` // default: true
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	Mode       string `yaml:"mode"`        // development or production (default: development)
	APIToken   string `yaml:"api_token"`   // bearer token; required in production
	UserHeader string `yaml:"user_header"` // header carrying the caller's user id (default: X-User-ID)
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `yaml:"format"` // json or console (default: json)
	Level  string `yaml:"level"`  // debug, info, warn, error (default: info)
}

// Default returns the built-in configuration.
func Default() *Config {
	ec := engine.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Port:      6363,
			Host:      "127.0.0.1",
			RateLimit: 20,
			RateBurst: 40,
		},
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
		},
		Embedding: EmbeddingConfig{
			Timeout:         5 * time.Second,
			CacheSize:       1024,
			BreakerFailures: 3,
			BreakerCooldown: 30 * time.Second,
		},
		Engine: EngineConfig{
			SimilarityThreshold:  ec.SimilarityThreshold,
			SearchTimeout:        ec.SearchTimeout,
			SearchConcurrency:    ec.SearchConcurrency,
			ImmediateTTL:         ec.ImmediateTTL,
			ShortTermTTL:         ec.ShortTermTTL,
			ArchiveRetentionDays: ec.ArchiveRetentionDays,
			Timezone:             "UTC",
		},
		Cleanup: CleanupConfig{
			Interval:       24 * time.Hour,
			DaysOld:        engine.DefaultCleanupDays,
			IncludeExpired: true,
		},
		Security: SecurityConfig{
			Mode:       "development",
			UserHeader: "X-User-ID",
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (or
// MEMVAULT_CONFIG when path is empty), a .env file and the environment.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to open %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		if err := cfg.decodeYAML(f); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads files (default: .env, or MEMVAULT_ENV_FILE) into the
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		if f := os.Getenv(EnvPrefix + "ENV_FILE"); f != "" {
			files = []string{f}
		} else {
			files = []string{".env"}
		}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("config: failed to load %s: %w", f, err)
		}
	}
	return nil
}

// decodeYAML overlays YAML from r onto c. Unknown keys are rejected.
func (c *Config) decodeYAML(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(c)
}

// applyEnv overrides c with any MEMVAULT_* variables that are set.
func (c *Config) applyEnv() {
	c.Server.Port = getEnvInt("PORT", c.Server.Port)
	c.Server.Host = getEnv("HOST", c.Server.Host)
	c.Server.RateLimit = getEnvFloat("RATE_LIMIT", c.Server.RateLimit)
	c.Server.RateBurst = getEnvInt("RATE_BURST", c.Server.RateBurst)
	c.Server.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", c.Server.AllowedOrigins)

	c.Storage.Engine = getEnv("STORAGE_ENGINE", c.Storage.Engine)
	c.Storage.DataPath = getEnv("DATA_PATH", c.Storage.DataPath)
	c.Storage.DSN = getEnv("DSN", c.Storage.DSN)

	c.Embedding.Provider = getEnv("EMBEDDING_PROVIDER", c.Embedding.Provider)
	c.Embedding.Model = getEnv("EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.BaseURL = getEnv("EMBEDDING_URL", c.Embedding.BaseURL)
	c.Embedding.APIKey = getEnv("OPENAI_API_KEY", c.Embedding.APIKey)
	c.Embedding.Timeout = getEnvDuration("EMBEDDING_TIMEOUT", c.Embedding.Timeout)
	c.Embedding.CacheSize = int64(getEnvInt("EMBEDDING_CACHE_SIZE", int(c.Embedding.CacheSize)))
	c.Embedding.BreakerFailures = getEnvInt("EMBEDDING_BREAKER_FAILURES", c.Embedding.BreakerFailures)
	c.Embedding.BreakerCooldown = getEnvDuration("EMBEDDING_BREAKER_COOLDOWN", c.Embedding.BreakerCooldown)

	c.Engine.SimilarityThreshold = getEnvFloat("SIMILARITY_THRESHOLD", c.Engine.SimilarityThreshold)
	c.Engine.SearchTimeout = getEnvDuration("SEARCH_TIMEOUT", c.Engine.SearchTimeout)
	c.Engine.SearchConcurrency = getEnvInt("SEARCH_CONCURRENCY", c.Engine.SearchConcurrency)
	c.Engine.ImmediateTTL = getEnvDuration("IMMEDIATE_TTL", c.Engine.ImmediateTTL)
	c.Engine.ShortTermTTL = getEnvDuration("SHORT_TERM_TTL", c.Engine.ShortTermTTL)
	c.Engine.ArchiveRetentionDays = getEnvInt("ARCHIVE_RETENTION_DAYS", c.Engine.ArchiveRetentionDays)
	c.Engine.Timezone = getEnv("TIMEZONE", c.Engine.Timezone)

	c.Cleanup.Enabled = getEnvBool("CLEANUP_ENABLED", c.Cleanup.Enabled)
	c.Cleanup.Interval = getEnvDuration("CLEANUP_INTERVAL", c.Cleanup.Interval)
	c.Cleanup.DaysOld = getEnvInt("CLEANUP_DAYS_OLD", c.Cleanup.DaysOld)
	c.Cleanup.IncludeExpired = getEnvBool("CLEANUP_INCLUDE_EXPIRED", c.Cleanup.IncludeExpired)

	c.Security.Mode = getEnv("SECURITY_MODE", c.Security.Mode)
	c.Security.APIToken = getEnv("API_TOKEN", c.Security.APIToken)
	c.Security.UserHeader = getEnv("USER_HEADER", c.Security.UserHeader)

	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be within [1,65535], got %d", c.Server.Port))
	}
	if c.Server.RateLimit <= 0 || c.Server.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("server rate limit must be positive"))
	}

	switch c.Storage.Engine {
	case "sqlite":
	case "postgres", "mysql":
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for %s", c.Storage.Engine))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage engine %q", c.Storage.Engine))
	}

	switch c.Embedding.Provider {
	case "", "hash", "ollama":
	case "openai":
		if c.Embedding.APIKey == "" {
			errs = append(errs, fmt.Errorf("embedding.api_key is required for openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported embedding provider %q", c.Embedding.Provider))
	}
	if c.Embedding.BreakerFailures < 0 || c.Embedding.BreakerCooldown < 0 {
		errs = append(errs, fmt.Errorf("embedding breaker settings must be >= 0"))
	}

	if ec, err := c.Engine.Engine(); err != nil {
		errs = append(errs, err)
	} else if err := ec.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Cleanup.Enabled && c.Cleanup.Interval <= 0 {
		errs = append(errs, fmt.Errorf("cleanup.interval must be > 0 when cleanup is enabled"))
	}

	switch c.Security.Mode {
	case "development":
	case "production":
		if c.Security.APIToken == "" {
			errs = append(errs, fmt.Errorf("security.api_token is required in production mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported security mode %q", c.Security.Mode))
	}
	if strings.TrimSpace(c.Security.UserHeader) == "" {
		errs = append(errs, fmt.Errorf("security.user_header must not be empty"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// getEnv retrieves a prefixed string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves a prefixed integer environment variable or returns a
// default value when it is unset or unparseable.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool recognizes true/1/yes and false/0/no, case-insensitively.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
