// Package config loads the domainkit configuration from config.yaml, the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Supported backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config keys.
const (
	KeyBackend               = "backend"
	KeyDataDir               = "data_dir"
	KeySchema                = "schema"
	KeyDatabaseURL           = "database_url"
	KeyStrictForeignKeys     = "strict_foreign_keys"
	KeyPerformNullValidation = "perform_null_validation"
	KeyLogLevel              = "log_level"
	KeyListen                = "listen"
	KeyUser                  = "user"
	KeySyncStrategy          = "sync_strategy"
	KeyBatchSize             = "batch_size"
	KeyBatchInterval         = "batch_interval"
	KeyStaticCacheTTL        = "static_cache_ttl"
)

// FileName is the configuration file inside the config directory.
const FileName = "config.yaml"

// Config validation errors.
var (
	ErrBackendEmpty   = errors.New("backend must not be empty")
	ErrBackendUnknown = errors.New("unknown backend")
	ErrLogLevel       = errors.New("unknown log level")
	ErrListenEmpty    = errors.New("listen address must not be empty")
)

// Config is the resolved configuration.
type Config struct {
	Backend     string `mapstructure:"backend" yaml:"backend"`
	DataDir     string `mapstructure:"data_dir" yaml:"data_dir,omitempty"`
	Schema      string `mapstructure:"schema" yaml:"schema,omitempty"`
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url,omitempty"`
	// StrictForeignKeys overrides the schema file when set.
	StrictForeignKeys     *bool         `mapstructure:"strict_foreign_keys" yaml:"strict_foreign_keys,omitempty"`
	PerformNullValidation bool          `mapstructure:"perform_null_validation" yaml:"perform_null_validation"`
	LogLevel              string        `mapstructure:"log_level" yaml:"log_level"`
	Listen                string        `mapstructure:"listen" yaml:"listen"`
	User                  string        `mapstructure:"user" yaml:"user,omitempty"`
	SyncStrategy          string        `mapstructure:"sync_strategy" yaml:"sync_strategy,omitempty"`
	BatchSize             int           `mapstructure:"batch_size" yaml:"batch_size,omitempty"`
	BatchInterval         time.Duration `mapstructure:"batch_interval" yaml:"batch_interval,omitempty"`
	StaticCacheTTL        time.Duration `mapstructure:"static_cache_ttl" yaml:"static_cache_ttl,omitempty"`
}

var knownBackends = map[string]bool{
	BackendSQLite:   true,
	BackendPostgres: true,
}

// Validate checks that c is well formed. Backend specific settings are
// checked by the backend itself.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return fmt.Errorf("%w: %q", ErrBackendUnknown, c.Backend)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Listen) == "" {
		return ErrListenEmpty
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return lvl, fmt.Errorf("%w: %q", ErrLogLevel, c.LogLevel)
	}
	return lvl, nil
}

// Defaults.
const (
	DefaultBackend  = BackendSQLite
	DefaultLogLevel = "info"
	DefaultListen   = ":8080"
)

// DefaultYAML is written to config.yaml on first use.
const DefaultYAML = `# domainkit configuration

# Storage backend: sqlite or postgres
backend: sqlite

# Schema file, relative to this directory (default: schema.yaml)
# schema: schema.yaml

# SQLite data directory (optional; overridable by --data-dir)
# data_dir:

# PostgreSQL connection URL (falls back to DATABASE_URL, which may come from .env)
# database_url:

# JSONL sync strategy for the sqlite backend: none, immediate, on_close, batch
# sync_strategy: immediate

perform_null_validation: true
log_level: info
listen: ":8080"
`

// Load reads FileName from configDir, creating the directory and a default
// file when missing. Values from DOMAINKIT_* environment variables win over
// the file. A .env file in the working directory is loaded first.
func Load(configDir string) (*Config, error) {
	LoadEnv()

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	if err := WriteDefault(configDir); err != nil {
		return nil, fmt.Errorf("write default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(KeyBackend, DefaultBackend)
	v.SetDefault(KeyPerformNullValidation, true)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyListen, DefaultListen)
	v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("DOMAINKIT")
	v.AutomaticEnv()
	// AutomaticEnv only applies to keys viper knows about.
	for _, key := range []string{KeyDataDir, KeySchema, KeyDatabaseURL, KeyStrictForeignKeys, KeyUser, KeySyncStrategy, KeyBatchSize, KeyBatchInterval, KeyStaticCacheTTL} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if !v.IsSet(KeyStrictForeignKeys) {
		cfg.StrictForeignKeys = nil
	}
	return &cfg, nil
}

// WriteDefault writes DefaultYAML to configDir unless a config file exists.
func WriteDefault(configDir string) error {
	path := filepath.Join(configDir, FileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(DefaultYAML), 0o644)
}

// LoadEnv loads .env from the working directory into the environment.
// Variables already set are kept, and a missing file is ignored.
func LoadEnv() {
	_ = godotenv.Load()
}
