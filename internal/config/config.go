// Package config loads the tracehub daemon's configuration.
//
// Configuration is loaded from multiple sources in this order:
// 1. A YAML config file (if present)
// 2. Environment variables (TRACEHUB_ prefixed)
// 3. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the complete daemon configuration.
type Config struct {
	Environment string          `mapstructure:"environment"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Engine      EngineConfig    `mapstructure:"engine"`
	Storage     StorageConfig   `mapstructure:"storage"`
	WireIngest  WireIngestConfig `mapstructure:"wire_ingest"`
	OTLP        OTLPConfig      `mapstructure:"otlp"`
	API         APIConfig       `mapstructure:"api"`
}

// LoggingConfig controls the slog handler used across the daemon.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug|info|warn|error
	Format string `mapstructure:"format"` // text|json
}

// EngineConfig sizes the sync engine's async facade.
type EngineConfig struct {
	// QueryChannelDepth and InsertChannelDepth size the async facade's
	// query and insert channels (spec.md §5: "~10000" each). The sync
	// channel is always depth 1.
	QueryChannelDepth  int `mapstructure:"query_channel_depth"`
	InsertChannelDepth int `mapstructure:"insert_channel_depth"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Backend        string `mapstructure:"backend"` // memory|file
	FileDir        string `mapstructure:"file_dir"`
	IndexSnapshot  string `mapstructure:"index_snapshot_path"`
	SyncInterval   time.Duration `mapstructure:"sync_interval"`
}

// WireIngestConfig configures the binary line-protocol TCP listener.
type WireIngestConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// OTLPConfig configures the OpenTelemetry HTTP+gRPC ingress.
type OTLPConfig struct {
	GRPCAddr string `mapstructure:"grpc_addr"`
	HTTPAddr string `mapstructure:"http_addr"`
}

// APIConfig configures the query/subscribe/websocket HTTP surface.
type APIConfig struct {
	Addr string `mapstructure:"addr"`

	// RedisAddr, if set, mirrors live subscription envelopes onto a
	// redis pub/sub backplane (see internal/realtime) so a second
	// apiserver process not holding the engine can still observe a
	// subscription. Empty disables mirroring entirely.
	RedisAddr         string `mapstructure:"redis_addr"`
	RedisChannelPrefix string `mapstructure:"redis_channel_prefix"`
}

// Defaults returns the built-in configuration used when no file or
// environment override is present.
func Defaults() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Engine: EngineConfig{
			QueryChannelDepth:  10_000,
			InsertChannelDepth: 10_000,
		},
		Storage: StorageConfig{
			Backend:       "memory",
			FileDir:       "./data",
			IndexSnapshot: "./data/indexes.snap",
			SyncInterval:  5 * time.Second,
		},
		WireIngest: WireIngestConfig{
			Enabled: true,
			Addr:    ":8765",
		},
		OTLP: OTLPConfig{
			GRPCAddr: ":4317",
			HTTPAddr: ":4318",
		},
		API: APIConfig{
			Addr:               ":8080",
			RedisAddr:          "",
			RedisChannelPrefix: "tracehub:sub:",
		},
	}
}

// Load reads configPath (if non-empty and present), overlays environment
// variables prefixed TRACEHUB_, and falls back to Defaults for anything
// unset. A missing .env file is not an error -- it is a convenience for
// local development, not a requirement.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, Defaults())

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
			}
		}
	}

	v.SetEnvPrefix("TRACEHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("environment", d.Environment)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("engine.query_channel_depth", d.Engine.QueryChannelDepth)
	v.SetDefault("engine.insert_channel_depth", d.Engine.InsertChannelDepth)
	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.file_dir", d.Storage.FileDir)
	v.SetDefault("storage.index_snapshot_path", d.Storage.IndexSnapshot)
	v.SetDefault("storage.sync_interval", d.Storage.SyncInterval)
	v.SetDefault("wire_ingest.enabled", d.WireIngest.Enabled)
	v.SetDefault("wire_ingest.addr", d.WireIngest.Addr)
	v.SetDefault("otlp.grpc_addr", d.OTLP.GRPCAddr)
	v.SetDefault("otlp.http_addr", d.OTLP.HTTPAddr)
	v.SetDefault("api.addr", d.API.Addr)
	v.SetDefault("api.redis_addr", d.API.RedisAddr)
	v.SetDefault("api.redis_channel_prefix", d.API.RedisChannelPrefix)
}

// Validate rejects configuration combinations the daemon cannot start
// with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "file":
	default:
		return fmt.Errorf("config: storage.backend must be 'memory' or 'file', got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "file" && c.Storage.FileDir == "" {
		return fmt.Errorf("config: storage.file_dir is required for the file backend")
	}
	if c.Engine.QueryChannelDepth <= 0 || c.Engine.InsertChannelDepth <= 0 {
		return fmt.Errorf("config: engine channel depths must be positive")
	}
	return nil
}
