package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/troveledger/internal/blob/s3"
	"github.com/alanyoungcy/troveledger/internal/cache/redis"
	"github.com/alanyoungcy/troveledger/internal/config"
	"github.com/alanyoungcy/troveledger/internal/domain"
	"github.com/alanyoungcy/troveledger/internal/notify"
	"github.com/alanyoungcy/troveledger/internal/platform/chainlink"
	"github.com/alanyoungcy/troveledger/internal/platform/subgraph"
	"github.com/alanyoungcy/troveledger/internal/server/handler"
	"github.com/alanyoungcy/troveledger/internal/store/postgres"
)

// Dependencies bundles every adapter the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	EventStore    domain.EventStore
	PriceStore    domain.PriceStore
	TimelineStore domain.TimelineStore
	DelegateStore domain.DelegateStore
	AuditStore    domain.AuditStore

	// Caches
	PriceCache    domain.PriceCache
	TimelineCache domain.TimelineCache
	RateLimiter   domain.RateLimiter
	LockManager   domain.LockManager
	SignalBus     domain.SignalBus

	// Cold storage; nil when S3 is disabled.
	Exporter *s3blob.Exporter

	// Upstream sources; nil when not configured.
	Subgraph  *subgraph.Client
	PriceFeed *chainlink.Feed

	Notifier *notify.Notifier

	// HealthChecks are run by GET /api/health.
	HealthChecks map[string]handler.Check
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{HealthChecks: map[string]handler.Check{}}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return fail("postgres", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		applied, err := pgClient.RunMigrations(ctx)
		if err != nil {
			return fail("postgres migrations", err)
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", slog.Any("files", applied))
		}
	}

	pool := pgClient.Pool()
	deps.EventStore = postgres.NewEventStore(pool)
	deps.PriceStore = postgres.NewPriceStore(pool)
	deps.TimelineStore = postgres.NewTimelineStore(pool)
	deps.DelegateStore = postgres.NewDelegateStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)
	deps.HealthChecks["postgres"] = pgClient.Ping

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return fail("redis", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.TimelineCache = redis.NewTimelineCache(redisClient, cfg.Redis.TimelineTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.HealthChecks["redis"] = redisClient.Ping

	// --- S3 cold storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Exporter = s3blob.NewExporter(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), deps.AuditStore)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- Upstream sources ---
	if cfg.Subgraph.URL != "" {
		deps.Subgraph = subgraph.NewClient(cfg.Subgraph.URL, cfg.Subgraph.APIKey)
	}
	if cfg.Oracle.RPCURL != "" {
		feed, closeFeed, err := chainlink.Dial(ctx, cfg.Oracle.RPCURL, cfg.Oracle.Aggregator, cfg.Subgraph.Collateral)
		if err != nil {
			return fail("oracle", err)
		}
		closers = append(closers, closeFeed)
		deps.PriceFeed = feed
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger).WithCooldown(cfg.Notify.Cooldown.Duration)

	return deps, cleanup, nil
}
