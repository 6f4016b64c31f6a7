// Package config defines the top-level configuration for troveledger and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TROVELEDGER_* environment variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Subgraph SubgraphConfig `toml:"subgraph"`
	Oracle   OracleConfig   `toml:"oracle"`
	Engine   EngineConfig   `toml:"engine"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PoolSize    int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	TLSEnabled  bool     `toml:"tls_enabled"`
	TimelineTTL duration `toml:"timeline_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// SubgraphConfig holds the protocol indexer endpoint.
type SubgraphConfig struct {
	URL        string `toml:"url"`
	APIKey     string `toml:"api_key"`
	PageSize   int    `toml:"page_size"`
	Collateral string `toml:"collateral"`
}

// OracleConfig holds the on-chain collateral price feed.
type OracleConfig struct {
	RPCURL     string `toml:"rpc_url"`
	Aggregator string `toml:"aggregator"`
}

// EngineConfig holds protocol constants. Amounts are decimal strings so
// they never pass through a float.
type EngineConfig struct {
	MinDebt                string   `toml:"min_debt"`
	PoolLiquidationPenalty string   `toml:"pool_liquidation_penalty"`
	ResidualTolerance      string   `toml:"residual_tolerance"`
	RebuildConcurrency     int      `toml:"rebuild_concurrency"`
	RebuildLockTTL         duration `toml:"rebuild_lock_ttl"`
}

// PipelineConfig holds ingestion and export loop parameters.
type PipelineConfig struct {
	Enabled        bool     `toml:"enabled"`
	ScrapeInterval duration `toml:"scrape_interval"`
	PriceInterval  duration `toml:"price_interval"`
	ExportCron     string   `toml:"export_cron"`
	RebuildBatch   int      `toml:"rebuild_batch"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	APIKey          string   `toml:"api_key"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	Cooldown          duration `toml:"cooldown"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "troveledger",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PoolSize:    20,
			MaxRetries:  3,
			TimelineTTL: duration{10 * time.Minute},
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "troveledger",
			ForcePathStyle: true,
		},
		Subgraph: SubgraphConfig{
			PageSize:   500,
			Collateral: "ETH",
		},
		Engine: EngineConfig{
			MinDebt:                "2000",
			PoolLiquidationPenalty: "0.05",
			ResidualTolerance:      "0.000001",
			RebuildConcurrency:     8,
			RebuildLockTTL:         duration{time.Minute},
		},
		Pipeline: PipelineConfig{
			Enabled:        true,
			ScrapeInterval: duration{time.Minute},
			PriceInterval:  duration{30 * time.Second},
			ExportCron:     "15 0 * * *",
			RebuildBatch:   100,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"integrity_error", "liquidation", "zombie"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"ingest":  true,
	"server":  true,
	"rebuild": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: ingest, server, rebuild, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Ingestion needs the indexer; the oracle is optional.
	ingesting := c.Mode == "ingest" || (c.Mode == "full" && c.Pipeline.Enabled)
	if ingesting && c.Subgraph.URL == "" {
		errs = append(errs, "subgraph: url is required for mode "+c.Mode)
	}
	if c.Subgraph.PageSize < 1 || c.Subgraph.PageSize > 1000 {
		errs = append(errs, fmt.Sprintf("subgraph: page_size must be 1-1000, got %d", c.Subgraph.PageSize))
	}
	if c.Oracle.RPCURL != "" && !common.IsHexAddress(c.Oracle.Aggregator) {
		errs = append(errs, fmt.Sprintf("oracle: aggregator %q is not a hex address", c.Oracle.Aggregator))
	}

	// Engine
	checkDecimal := func(name, v string) {
		d, err := decimal.NewFromString(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("engine: %s %q is not a decimal", name, v))
			return
		}
		if d.IsNegative() {
			errs = append(errs, fmt.Sprintf("engine: %s must not be negative", name))
		}
	}
	checkDecimal("min_debt", c.Engine.MinDebt)
	checkDecimal("pool_liquidation_penalty", c.Engine.PoolLiquidationPenalty)
	checkDecimal("residual_tolerance", c.Engine.ResidualTolerance)
	if c.Engine.RebuildConcurrency < 1 {
		errs = append(errs, "engine: rebuild_concurrency must be >= 1")
	}

	// Pipeline
	if c.Pipeline.Enabled {
		if c.Pipeline.ScrapeInterval.Duration <= 0 {
			errs = append(errs, "pipeline: scrape_interval must be > 0")
		}
		if c.Pipeline.PriceInterval.Duration <= 0 {
			errs = append(errs, "pipeline: price_interval must be > 0")
		}
		if c.S3.Enabled {
			if _, err := cron.ParseStandard(c.Pipeline.ExportCron); err != nil {
				errs = append(errs, fmt.Sprintf("pipeline: export_cron %q: %v", c.Pipeline.ExportCron, err))
			}
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must not be negative")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// EngineParams parses the engine amounts. Call after Validate.
func (c *Config) EngineParams() (minDebt, penalty, tolerance decimal.Decimal, err error) {
	if minDebt, err = decimal.NewFromString(c.Engine.MinDebt); err != nil {
		return
	}
	if penalty, err = decimal.NewFromString(c.Engine.PoolLiquidationPenalty); err != nil {
		return
	}
	tolerance, err = decimal.NewFromString(c.Engine.ResidualTolerance)
	return
}
