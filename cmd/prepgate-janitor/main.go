package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/vuraweg/prepgate/pkg/entitlement"
	"github.com/vuraweg/prepgate/pkg/ratelimit"
)

var (
	dbURL          = flag.String("db-url", getEnv("PREPGATE_POSTGRES_URL", "postgres://localhost/prepgate?sslmode=disable"), "PostgreSQL connection URL")
	redisURL       = flag.String("redis-url", getEnv("PREPGATE_REDIS_URL", ""), "Redis URL for rate-ledger sweeps (empty disables)")
	grantSchedule  = flag.String("grant-schedule", "30 2 * * *", "Cron schedule for expired-grant removal (default: 02:30 UTC)")
	ledgerSchedule = flag.String("ledger-schedule", "0 */4 * * *", "Cron schedule for stale rate-ledger sweeps (default: every 4 hours)")
	retention      = flag.Duration("retention", 90*24*time.Hour, "How long expired grants stay queryable before removal")
	ledgerIdle     = flag.Duration("ledger-idle", 24*time.Hour, "Remove ledgers with no attempts for this long")
	runOnce        = flag.Bool("run-once", false, "Run both sweeps once and exit")
	logLevel       = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()
	logger := setupLogger(*logLevel)

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	grants := entitlement.NewPostgresStore(db)

	var ledgers *ratelimit.RedisStore
	if *redisURL != "" {
		opts, err := redis.ParseURL(*redisURL)
		if err != nil {
			logger.Fatalf("Invalid redis URL: %v", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Fatalf("Failed to ping redis: %v", err)
		}
		ledgers = ratelimit.NewRedisStore(client)
	}

	if *runOnce {
		sweepGrants(logger, grants)
		sweepLedgers(logger, ledgers)
		logger.Info("Run-once sweeps completed")
		return
	}

	c := cron.New()

	if _, err := c.AddFunc(*grantSchedule, func() { sweepGrants(logger, grants) }); err != nil {
		logger.Fatalf("Failed to schedule grant sweep: %v", err)
	}
	if ledgers != nil {
		if _, err := c.AddFunc(*ledgerSchedule, func() { sweepLedgers(logger, ledgers) }); err != nil {
			logger.Fatalf("Failed to schedule ledger sweep: %v", err)
		}
	}

	c.Start()
	logger.Info("Prepgate janitor started")
	logger.Infof("Grant sweep schedule: %s (retention %s)", *grantSchedule, *retention)
	if ledgers != nil {
		logger.Infof("Ledger sweep schedule: %s (idle cutoff %s)", *ledgerSchedule, *ledgerIdle)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down gracefully...")

	ctx := c.Stop()
	<-ctx.Done()
	logger.Info("Janitor stopped")
}

// sweepGrants removes grants that expired before the retention cutoff.
// Active and recently expired grants are never touched; users keep their
// purchase history queryable for the full retention window.
func sweepGrants(logger *logrus.Logger, grants *entitlement.PostgresStore) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-*retention)
	removed, err := grants.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		logger.Errorf("Grant sweep failed: %v", err)
		return
	}
	logger.Infof("Grant sweep removed %d grants expired before %s", removed, cutoff.Format(time.RFC3339))
}

// sweepLedgers removes idle rate ledgers with no active lock. Entries
// carry TTLs so this mostly catches stragglers.
func sweepLedgers(logger *logrus.Logger, ledgers *ratelimit.RedisStore) {
	if ledgers == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-*ledgerIdle)
	removed, err := ledgers.Prune(ctx, cutoff)
	if err != nil {
		logger.Errorf("Ledger sweep failed: %v", err)
		return
	}
	logger.Infof("Ledger sweep removed %d stale ledgers", removed)
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
