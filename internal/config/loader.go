package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TROVELEDGER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TROVELEDGER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TROVELEDGER_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "TROVELEDGER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TROVELEDGER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TROVELEDGER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TROVELEDGER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TROVELEDGER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TROVELEDGER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TROVELEDGER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TROVELEDGER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TROVELEDGER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TROVELEDGER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TROVELEDGER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TROVELEDGER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TROVELEDGER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TROVELEDGER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TROVELEDGER_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.TimelineTTL, "TROVELEDGER_REDIS_TIMELINE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TROVELEDGER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TROVELEDGER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TROVELEDGER_S3_REGION")
	setStr(&cfg.S3.Bucket, "TROVELEDGER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TROVELEDGER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TROVELEDGER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TROVELEDGER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TROVELEDGER_S3_FORCE_PATH_STYLE")

	// ── Subgraph / oracle ──
	setStr(&cfg.Subgraph.URL, "TROVELEDGER_SUBGRAPH_URL")
	setStr(&cfg.Subgraph.APIKey, "TROVELEDGER_SUBGRAPH_API_KEY")
	setInt(&cfg.Subgraph.PageSize, "TROVELEDGER_SUBGRAPH_PAGE_SIZE")
	setStr(&cfg.Subgraph.Collateral, "TROVELEDGER_SUBGRAPH_COLLATERAL")
	setStr(&cfg.Oracle.RPCURL, "TROVELEDGER_ORACLE_RPC_URL")
	setStr(&cfg.Oracle.Aggregator, "TROVELEDGER_ORACLE_AGGREGATOR")

	// ── Engine ──
	setStr(&cfg.Engine.MinDebt, "TROVELEDGER_ENGINE_MIN_DEBT")
	setStr(&cfg.Engine.PoolLiquidationPenalty, "TROVELEDGER_ENGINE_POOL_LIQUIDATION_PENALTY")
	setStr(&cfg.Engine.ResidualTolerance, "TROVELEDGER_ENGINE_RESIDUAL_TOLERANCE")
	setInt(&cfg.Engine.RebuildConcurrency, "TROVELEDGER_ENGINE_REBUILD_CONCURRENCY")
	setDuration(&cfg.Engine.RebuildLockTTL, "TROVELEDGER_ENGINE_REBUILD_LOCK_TTL")

	// ── Pipeline ──
	setBool(&cfg.Pipeline.Enabled, "TROVELEDGER_PIPELINE_ENABLED")
	setDuration(&cfg.Pipeline.ScrapeInterval, "TROVELEDGER_PIPELINE_SCRAPE_INTERVAL")
	setDuration(&cfg.Pipeline.PriceInterval, "TROVELEDGER_PIPELINE_PRICE_INTERVAL")
	setStr(&cfg.Pipeline.ExportCron, "TROVELEDGER_PIPELINE_EXPORT_CRON")
	setInt(&cfg.Pipeline.RebuildBatch, "TROVELEDGER_PIPELINE_REBUILD_BATCH")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TROVELEDGER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TROVELEDGER_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "TROVELEDGER_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "TROVELEDGER_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "TROVELEDGER_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TROVELEDGER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TROVELEDGER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TROVELEDGER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TROVELEDGER_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.Cooldown, "TROVELEDGER_NOTIFY_COOLDOWN")

	// ── Top-level ──
	setStr(&cfg.Mode, "TROVELEDGER_MODE")
	setStr(&cfg.LogLevel, "TROVELEDGER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
