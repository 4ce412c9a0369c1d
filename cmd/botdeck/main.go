// Command botdeck runs the BotDeck dashboard API server.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/botdeck/botdeck/pkg/access"
	"github.com/botdeck/botdeck/pkg/api"
	"github.com/botdeck/botdeck/pkg/assignments"
	"github.com/botdeck/botdeck/pkg/audit"
	"github.com/botdeck/botdeck/pkg/config"
	"github.com/botdeck/botdeck/pkg/identity"
	"github.com/botdeck/botdeck/pkg/invites"
	"github.com/botdeck/botdeck/pkg/middleware"
	"github.com/botdeck/botdeck/pkg/observability"
	"github.com/botdeck/botdeck/pkg/storage/postgres"
)

func main() {
	skipMigrations := flag.Bool("skip-migrations", false, "Skip running database migrations on startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		observability.NewLogger(observability.InfoLevel, os.Stderr).
			WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Observability.LogLevel), os.Stdout)
	ctx := context.Background()

	pools, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		StandardURL: cfg.Database.StandardURL,
		ElevatedURL: cfg.Database.ElevatedURL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		PingTimeout: cfg.Database.PingTimeout,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer pools.Close()

	if !*skipMigrations {
		// Policy and function DDL needs the owning role, so migrations run
		// on the elevated pool when one is configured.
		migrationDB := pools.Standard()
		if pools.Elevated().Configured() {
			migrationDB = pools.Elevated().DB()
		}
		if err := postgres.RunMigrations(ctx, migrationDB); err != nil {
			logger.WithError(err).Error("Failed to run migrations")
			os.Exit(1)
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = postgres.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to redis")
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	resolver, err := identity.NewOIDCResolver(ctx, cfg.Identity.IssuerURL, cfg.Identity.ClientID)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize identity resolver")
		os.Exit(1)
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
		metrics.StartDBStatsCollector(ctx, pools.Standard(), 15*time.Second)
	}

	db := pools.Standard()
	classifier := access.NewClassifier(db, logger, metrics)
	resources := access.NewResourceResolver(db, pools.Elevated(), metrics)
	accessSvc := access.NewService(classifier, resources)

	auditLogger := audit.NewDBLogger(db, logger)
	profiles := identity.NewProfileStore(db)

	assignmentStore := assignments.NewStore(db)
	assignmentSvc := assignments.NewService(assignmentStore, accessSvc, auditLogger, metrics)

	inviteStore := invites.NewStore(db, profiles)
	var directory identity.Directory = identity.NewAdminClient(cfg.Identity.AdminBaseURL, cfg.Identity.AdminToken)
	reconciler := invites.NewReconciler(db, inviteStore, profiles, assignmentStore,
		directory, accessSvc, auditLogger, logger, metrics)

	opts := api.Options{
		Auth:    middleware.NewAuthMiddleware(resolver, logger),
		Health:  observability.NewHealthChecker(db, pools.Elevated().DB(), redisClient),
		Metrics: metrics,
	}
	if redisClient != nil {
		opts.RateLimit = middleware.NewRateLimitMiddleware(redisClient, logger)
	}

	server := api.NewServer(accessSvc, assignmentSvc, reconciler, profiles, logger, opts)

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return pools.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("Starting BotDeck API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server failed")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown failed")
		os.Exit(1)
	}
}
