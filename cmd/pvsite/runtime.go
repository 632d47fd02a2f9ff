package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/smukkama/pvsite-server/internal/access"
	"github.com/smukkama/pvsite-server/internal/audit"
	"github.com/smukkama/pvsite-server/internal/cache"
	"github.com/smukkama/pvsite-server/internal/database"
	"github.com/smukkama/pvsite-server/internal/forecast"
	"github.com/smukkama/pvsite-server/internal/generation"
	"github.com/smukkama/pvsite-server/internal/queue"
	"github.com/smukkama/pvsite-server/internal/service"
	"github.com/smukkama/pvsite-server/internal/sites"
	"github.com/smukkama/pvsite-server/pkg/config"
	"github.com/smukkama/pvsite-server/pkg/logging"
)

// runtime holds the connections opened for one command
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *database.DB
	redis    *redis.Client
	producer *queue.Producer
	svc      *service.Service
}

func setup(c *cli.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	// stdout carries command output
	logger := logging.New(os.Stderr, level)

	db, err := database.Connect(cfg.Database.ConnectionString(), cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		return nil, err
	}
	logger.Debug("database connected", "host", cfg.Database.Host, "db", cfg.Database.DBName)

	rt := &runtime{cfg: cfg, logger: logger, db: db}

	var siteCache sites.Cache
	if cfg.Redis.Enabled {
		rt.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		siteCache = cache.NewSiteCache(rt.redis, cfg.Redis.SiteCacheTTL)
	}

	var auditor access.Auditor
	if cfg.Kafka.Enabled {
		rt.producer = queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAudit)
		auditor = audit.NewPublisher(rt.producer, logger)
	}

	rt.svc = service.New(
		forecast.NewEngine(db, logger),
		generation.NewRetriever(db, logger),
		sites.NewLookup(db, siteCache, logger),
		access.NewAuthorizer(db, auditor, logger),
		logger,
	)

	return rt, nil
}

// context bounds a command by the configured query timeout
func (rt *runtime) context(c *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, rt.cfg.Database.QueryTimeout)
}

// authorizeSites resolves the caller from token and requires siteIDs to be
// exactly their sites
func (rt *runtime) authorizeSites(ctx context.Context, token string, siteIDs []string) error {
	id, err := rt.identify(token)
	if err != nil {
		return err
	}
	return rt.svc.CheckSites(ctx, id, siteIDs)
}

// authorizeSite resolves the caller from token and requires siteID to be one of their sites
func (rt *runtime) authorizeSite(ctx context.Context, token, siteID string) error {
	id, err := rt.identify(token)
	if err != nil {
		return err
	}
	return rt.svc.CheckSite(ctx, id, siteID)
}

func (rt *runtime) identify(token string) (access.Identity, error) {
	return access.ParseToken(token, rt.cfg.Auth.JWTSecret, rt.cfg.Auth.EmailClaim)
}

func (rt *runtime) Close() {
	if rt.producer != nil {
		if err := rt.producer.Close(); err != nil {
			rt.logger.Warn("failed to close kafka producer", "error", err)
		}
	}
	if rt.redis != nil {
		rt.redis.Close()
	}
	rt.db.Close()
}
