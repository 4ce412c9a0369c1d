// Command botdeck-janitor purges expired invitations on a schedule.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/botdeck/botdeck/pkg/config"
	"github.com/botdeck/botdeck/pkg/identity"
	"github.com/botdeck/botdeck/pkg/invites"
	"github.com/botdeck/botdeck/pkg/observability"
	"github.com/botdeck/botdeck/pkg/storage/postgres"
)

var (
	cleanupSchedule = flag.String("cleanup-schedule", "30 * * * *", "Cron schedule for expired invitation cleanup")
	runOnce         = flag.Bool("run-once", false, "Run cleanup once and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		observability.NewLogger(observability.InfoLevel, os.Stderr).
			WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Observability.LogLevel), os.Stdout)

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

	store := invites.NewStore(pools.Standard(), identity.NewProfileStore(pools.Standard()))

	cleanup := func() {
		purged, err := store.DeleteExpired(context.Background())
		if err != nil {
			logger.WithError(err).Error("Expired invitation cleanup failed")
			return
		}
		if purged > 0 {
			logger.WithField("purged", purged).Info("Purged expired invitations")
		}
	}

	if *runOnce {
		cleanup()
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(*cleanupSchedule, cleanup); err != nil {
		logger.WithError(err).Error("Failed to schedule cleanup")
		os.Exit(1)
	}
	c.Start()
	logger.WithField("schedule", *cleanupSchedule).Info("Janitor started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down janitor")
	<-c.Stop().Done()
}
