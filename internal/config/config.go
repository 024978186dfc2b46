// Package config loads and validates discovery configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vindloodgieter/discovery/internal/geo"
)

// Credential errors are fatal before any work item is processed.
var (
	ErrMissingAPIKey = errors.New("places api key is not set (GOOGLE_PLACES_API_KEY)")
	ErrMissingDSN    = errors.New("database dsn is not set (DATABASE_URL)")
)

// Snapshot backends.
const (
	SnapshotNone  = "none"
	SnapshotLocal = "local"
	SnapshotGCS   = "gcs"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Places    PlacesConfig    `mapstructure:"places"`
	DB        DBConfig        `mapstructure:"db"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Geography GeographyConfig `mapstructure:"geography"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
}

// PlacesConfig configures the Places API client and its transport.
type PlacesConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	Language        string        `mapstructure:"language"`
	Region          string        `mapstructure:"region"`
	MaxPages        int           `mapstructure:"max_pages"`
	PageTokenDelay  time.Duration `mapstructure:"page_token_delay"`
	RequestInterval time.Duration `mapstructure:"request_interval"`
	Timeout         time.Duration `mapstructure:"timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// ProgressConfig locates the progress file used by --no-db runs.
type ProgressConfig struct {
	File string `mapstructure:"file"`
}

// SnapshotConfig selects where the per-run backup artifact is written.
type SnapshotConfig struct {
	Backend    string `mapstructure:"backend"`
	Dir        string `mapstructure:"dir"`
	GCSBucket  string `mapstructure:"gcs_bucket"`
	Prefix     string `mapstructure:"prefix"`
	FlushEvery int    `mapstructure:"flush_every"`
}

// PubSubConfig holds the discovery event topic. Publishing is disabled when
// either field is empty.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether events should be published.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.Topic != ""
}

// ServerConfig controls the read API.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// GeographyConfig optionally replaces the built-in province table.
type GeographyConfig struct {
	File string `mapstructure:"file"`
}

// DiscoveryConfig holds run-level settings.
type DiscoveryConfig struct {
	SearchTerms []string `mapstructure:"search_terms"`
	// TestLimit caps --test runs when no explicit --limit is given.
	TestLimit int `mapstructure:"test_limit"`
}

// Requirements names the credentials a command needs.
type Requirements struct {
	APIKey   bool
	Database bool
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DISCOVERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindCredentials(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("places.api_key", "")
	v.SetDefault("places.base_url", "https://maps.googleapis.com/maps/api/place")
	v.SetDefault("places.language", "nl")
	v.SetDefault("places.region", "nl")
	v.SetDefault("places.max_pages", 3)
	v.SetDefault("places.page_token_delay", "2s")
	v.SetDefault("places.request_interval", "200ms")
	v.SetDefault("places.timeout", "15s")
	v.SetDefault("places.user_agent", "vindloodgieter-discovery/1.0")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.migrate_on_start", true)
	v.SetDefault("progress.file", "data/discovery-progress.json")
	v.SetDefault("snapshot.backend", SnapshotLocal)
	v.SetDefault("snapshot.dir", "data")
	v.SetDefault("snapshot.gcs_bucket", "")
	v.SetDefault("snapshot.prefix", "snapshots")
	v.SetDefault("snapshot.flush_every", 25)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("geography.file", "")
	v.SetDefault("discovery.search_terms", geo.DefaultSearchTerms)
	v.SetDefault("discovery.test_limit", 3)
}

// bindCredentials accepts the conventional unprefixed variable names next to
// the DISCOVERY_ ones.
func bindCredentials(v *viper.Viper) error {
	if err := v.BindEnv("places.api_key", "DISCOVERY_PLACES_API_KEY", "GOOGLE_PLACES_API_KEY"); err != nil {
		return fmt.Errorf("bind places api key: %w", err)
	}
	if err := v.BindEnv("db.dsn", "DISCOVERY_DB_DSN", "DATABASE_URL"); err != nil {
		return fmt.Errorf("bind database dsn: %w", err)
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Places.MaxPages < 1 || c.Places.MaxPages > 3 {
		return fmt.Errorf("places.max_pages must be between 1 and 3")
	}
	if c.Places.PageTokenDelay < 0 || c.Places.RequestInterval < 0 {
		return fmt.Errorf("places delays must not be negative")
	}
	if c.Places.Timeout <= 0 {
		return fmt.Errorf("places.timeout must be > 0")
	}
	if c.DB.MaxConns <= 0 {
		return fmt.Errorf("db.max_conns must be > 0")
	}
	if c.DB.MinConns < 0 || c.DB.MinConns > c.DB.MaxConns {
		return fmt.Errorf("db.min_conns must be between 0 and db.max_conns")
	}
	switch c.Snapshot.Backend {
	case SnapshotNone, SnapshotLocal:
	case SnapshotGCS:
		if c.Snapshot.GCSBucket == "" {
			return fmt.Errorf("snapshot.gcs_bucket must be set when snapshot.backend is gcs")
		}
	default:
		return fmt.Errorf("snapshot.backend must be one of none, local, gcs")
	}
	if c.Snapshot.FlushEvery <= 0 {
		return fmt.Errorf("snapshot.flush_every must be > 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if len(c.Discovery.SearchTerms) == 0 {
		return fmt.Errorf("discovery.search_terms must not be empty")
	}
	if c.Discovery.TestLimit <= 0 {
		return fmt.Errorf("discovery.test_limit must be > 0")
	}
	return nil
}

// RequireCredentials fails fast when a credential the command needs is absent.
func (c Config) RequireCredentials(req Requirements) error {
	if req.APIKey && strings.TrimSpace(c.Places.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if req.Database && strings.TrimSpace(c.DB.DSN) == "" {
		return ErrMissingDSN
	}
	return nil
}
