package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-po/internal/changefeed"
	"github.com/odyssey-erp/odyssey-po/internal/documents"
	"github.com/odyssey-erp/odyssey-po/internal/inventory"
	"github.com/odyssey-erp/odyssey-po/internal/notify"
	"github.com/odyssey-erp/odyssey-po/internal/observability"
	"github.com/odyssey-erp/odyssey-po/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-po/internal/platform/db"
	"github.com/odyssey-erp/odyssey-po/internal/procurement"
	"github.com/odyssey-erp/odyssey-po/internal/shared"
	"github.com/odyssey-erp/odyssey-po/internal/storage"
	"github.com/odyssey-erp/odyssey-po/jobs"
	"github.com/odyssey-erp/odyssey-po/report"
)

// Components holds the wired services shared by the server, the worker and
// the CLI.
type Components struct {
	Config  *Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics

	Audit         *shared.AuditLogger
	Idempotency   *shared.IdempotencyStore
	Notifications *notify.Emitter
	Jobs          *jobs.Client
	Feed          changefeed.Feed

	InventoryRepo   *inventory.Repository
	Inventory       *inventory.Service
	Snapshots       *inventory.SnapshotService
	ProcurementRepo *procurement.Repository
	Procurement     *procurement.Service

	PDF       *report.Client
	Documents *documents.Generator
}

// NewComponents connects to the stores and wires every service. Documents is
// nil when object storage is not configured.
func NewComponents(ctx context.Context, cfg *Config, logger *slog.Logger) (*Components, error) {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return nil, err
	}
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		pool.Close()
		return nil, err
	}
	c := &Components{Config: cfg, Logger: logger, Pool: pool, Redis: redisClient, Metrics: observability.NewMetrics()}

	c.Audit = shared.NewAuditLogger(pool)
	c.Idempotency = shared.NewIdempotencyStore(pool)
	c.Notifications = notify.NewEmitter(notify.NewPgStore(pool), logger, c.Metrics)
	c.Jobs = jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, logger)

	c.InventoryRepo = inventory.NewRepository(pool, cfg.TxMaxAttempts)
	c.Inventory = inventory.NewService(c.InventoryRepo, inventory.Options{
		Audit:    c.Audit,
		Notifier: c.Notifications,
		Listener: c.Jobs,
		Logger:   logger.With(slog.String("module", "inventory")),
	})
	c.Snapshots = inventory.NewSnapshotService(c.InventoryRepo, cache.NewJSONCache(redisClient, "inventory:snapshot", cfg.SnapshotTTL))

	c.ProcurementRepo = procurement.NewRepository(pool, cfg.TxMaxAttempts)
	c.Feed = newFeed(cfg, redisClient, c.ProcurementRepo, logger)

	roles, err := cfg.Roles()
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Procurement = procurement.NewService(procurement.Deps{
		Repo:        c.ProcurementRepo,
		Inventory:   c.Inventory,
		Resolver:    c.Inventory.Resolver(),
		Idempotency: c.Idempotency,
		Jobs:        c.Jobs,
		Feed:        c.Feed,
		Notifier:    c.Notifications,
		Audit:       c.Audit,
		Metrics:     c.Metrics,
		Logger:      logger.With(slog.String("module", "procurement")),
	}, procurement.Config{ApprovalRoles: roles})

	c.PDF = report.NewClient(cfg.GotenbergURL)
	if cfg.StorageConfigured() {
		if err := c.wireDocuments(ctx); err != nil {
			c.Close()
			return nil, err
		}
	} else {
		logger.Warn("object storage not configured, purchase order documents disabled")
	}
	return c, nil
}

func (c *Components) wireDocuments(ctx context.Context) error {
	store, err := storage.NewS3Store(ctx, storage.Config{
		Endpoint:      c.Config.S3Endpoint,
		Region:        c.Config.S3Region,
		Bucket:        c.Config.S3Bucket,
		AccessKey:     c.Config.S3AccessKey,
		SecretKey:     c.Config.S3SecretKey,
		UsePathStyle:  c.Config.S3PathStyle,
		PublicBaseURL: c.Config.S3PublicURL,
	}, c.Logger)
	if err != nil {
		return fmt.Errorf("init object storage: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		c.Logger.Warn("ensure bucket", slog.Any("error", err))
	}
	tag, err := language.Parse(c.Config.DocumentLocale)
	if err != nil {
		tag = language.Indonesian
	}
	renderer, err := documents.NewRenderer(c.PDF, tag)
	if err != nil {
		return fmt.Errorf("init document renderer: %w", err)
	}
	c.Documents = documents.NewGenerator(c.ProcurementRepo, renderer, store, documents.NewRepository(c.Pool), c.Logger.With(slog.String("module", "documents")))
	return nil
}

func newFeed(cfg *Config, client *redis.Client, repo *procurement.Repository, logger *slog.Logger) changefeed.Feed {
	if cfg.ChangefeedMode == ChangefeedPoll {
		return changefeed.NewPoller(changefeed.TopicPurchaseOrders, func(ctx context.Context) ([]changefeed.Ref, error) {
			rows, err := repo.ListPORefs(ctx, 200)
			if err != nil {
				return nil, err
			}
			refs := make([]changefeed.Ref, len(rows))
			for i, r := range rows {
				refs[i] = changefeed.Ref{ID: r.ID, UpdatedAt: r.UpdatedAt}
			}
			return refs, nil
		}, cfg.ChangefeedPollInterval, logger)
	}
	return changefeed.NewRedisFeed(client, "odyssey-po", logger)
}

// Close releases connections.
func (c *Components) Close() {
	if c.Jobs != nil {
		if err := c.Jobs.Close(); err != nil {
			c.Logger.Warn("jobs client close", slog.Any("error", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}
