package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vuraweg/prepgate/pkg/account"
	"github.com/vuraweg/prepgate/pkg/api"
	"github.com/vuraweg/prepgate/pkg/avatars"
	"github.com/vuraweg/prepgate/pkg/config"
	"github.com/vuraweg/prepgate/pkg/credential"
	"github.com/vuraweg/prepgate/pkg/entitlement"
	"github.com/vuraweg/prepgate/pkg/identity"
	"github.com/vuraweg/prepgate/pkg/observability"
	"github.com/vuraweg/prepgate/pkg/payment"
	"github.com/vuraweg/prepgate/pkg/postgresutil"
	"github.com/vuraweg/prepgate/pkg/profile"
	"github.com/vuraweg/prepgate/pkg/ratelimit"
	"github.com/vuraweg/prepgate/pkg/redisutil"
	"github.com/vuraweg/prepgate/pkg/session"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		// The logger is not up yet.
		os.Stderr.WriteString("prepgate: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting prepgate gateway")

	ctx := context.Background()

	// Postgres backs profiles and grants.
	db, err := postgresutil.Connect(cfg.Postgres)
	if err != nil {
		logger.WithError(err).Error("Postgres connection failed")
		os.Exit(1)
	}
	defer db.Close()

	migrations := append(append([]postgresutil.Migration{}, entitlement.Migrations...), profile.Migrations...)
	if err := postgresutil.RunMigrations(ctx, db, logger, migrations); err != nil {
		logger.WithError(err).Error("Migrations failed")
		os.Exit(1)
	}

	// Redis is optional: without it credentials are ephemeral-only and
	// rate ledgers are per-replica.
	var (
		redisClient    *redisutil.Client
		persistentTier *credential.PersistentTier
		ledgerStore    ratelimit.Store
	)
	if cfg.Redis.Enabled {
		redisClient, err = redisutil.NewClient(cfg.Redis.Config)
		if err != nil {
			logger.WithError(err).Error("Redis connection failed")
			os.Exit(1)
		}
		defer redisClient.Close()
		persistentTier = credential.NewPersistentTier(redisClient, cfg.Session.PersistentTTL)
		ledgerStore = ratelimit.NewRedisStore(redisClient.GetClient())
		logger.Info("Redis connected; persistent credentials and shared rate ledgers enabled")
	} else {
		ledgerStore = ratelimit.NewMemoryStore(0, cfg.RateLimit.MaxLockout+cfg.RateLimit.ProgressiveWindow)
		logger.Warn("Redis not configured; running ephemeral-only with per-replica rate ledgers")
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	var otelProviders *observability.OTelProviders
	if cfg.Observability.OTelEnabled {
		otelProviders, err = observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			Insecure:       cfg.Observability.OTelInsecure,
		}, logger)
		if err != nil {
			logger.WithError(err).Error("OpenTelemetry initialization failed")
			os.Exit(1)
		}
	}

	provider, err := identity.NewHTTPProvider(cfg.Provider.HTTPConfig, logger, metrics)
	if err != nil {
		logger.WithError(err).Error("Identity provider setup failed")
		os.Exit(1)
	}

	var oauth *identity.OIDCAuthenticator
	if cfg.OAuth.Enabled {
		oauth, err = identity.NewOIDCAuthenticator(ctx, cfg.OAuth.OAuthConfig)
		if err != nil {
			logger.WithError(err).Error("OIDC discovery failed")
			os.Exit(1)
		}
		logger.WithField("issuer", cfg.OAuth.IssuerURL).Info("OAuth channel enabled")
	}

	admins := loadAdmins(cfg, logger)

	var avatarStore *avatars.Store
	if cfg.Avatars.Enabled {
		avatarStore, err = avatars.NewStore(ctx, cfg.Avatars.Config)
		if err != nil {
			logger.WithError(err).Error("Avatar object store setup failed")
			os.Exit(1)
		}
		logger.WithField("bucket", cfg.Avatars.Bucket).Info("Avatar storage enabled")
	}

	profiles := profile.NewPostgresStore(db)
	limiter := ratelimit.NewLimiter(ledgerStore, cfg.RateLimit, logger, metrics)

	deps := session.Deps{
		Provider: provider,
		OAuth:    oauth,
		Limiter:  limiter,
		Profiles: profiles,
		Admins:   admins,
		Logger:   logger,
		Metrics:  metrics,
	}
	if avatarStore != nil {
		deps.Avatars = avatarStore.URL
	}
	sessions := session.NewRegistry(
		deps,
		cfg.Session.Config,
		cfg.Session.MaxContexts,
		cfg.Session.ContextTTL,
		credential.NewEphemeralTier(cfg.Session.MaxContexts, cfg.Session.EphemeralTTL),
		persistentTier,
	)

	entitlements := entitlement.NewService(
		entitlement.NewPostgresStore(db),
		payment.NewTokenVerifier([]byte(cfg.Payment.SigningSecret)),
		cfg.Entitlement.DefaultDuration,
		logger,
		metrics,
	)

	server := api.NewServer(sessions, entitlements, profiles, avatarStore, logger, metrics, api.Options{
		ProofSecret:      []byte(cfg.Provider.ProofSecret),
		CORSOrigins:      cfg.Server.CORSOrigins,
		MaxBodyBytes:     cfg.Server.MaxBodyBytes,
		ContextCookieTTL: cfg.Session.ContextTTL,
		SecureCookies:    len(cfg.Server.CORSOrigins) > 0,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	opsServer := buildOpsServer(cfg, db, redisClient, avatarStore, registry)

	go func() {
		logger.WithField("addr", opsServer.Addr).Info("Ops server listening")
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Ops server failed")
		}
	}()

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("ops-server", opsServer.Shutdown)
	shutdown.Register("sessions", func(context.Context) error {
		sessions.Close()
		return nil
	})
	if otelProviders != nil {
		shutdown.Register("otel", func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("Gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Gateway server failed")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
	logger.Info("Gateway stopped")
}

// loadAdmins picks the hot-reloading file allow-list when a path is
// configured and an empty static list otherwise.
func loadAdmins(cfg *config.Config, logger *observability.Logger) account.AdminChecker {
	if cfg.Admin.AllowlistPath == "" {
		logger.Info("No admin allow-list configured")
		return account.NewStaticAdminList(nil, logger)
	}
	admins, err := account.NewAdminList(cfg.Admin.AllowlistPath, logger)
	if err != nil {
		logger.WithError(err).Error("Admin allow-list load failed")
		os.Exit(1)
	}
	return admins
}

// buildOpsServer wires /metrics and the k8s probe routes on a separate
// port so they never share the portal-facing listener.
func buildOpsServer(cfg *config.Config, db *sql.DB, redisClient *redisutil.Client, avatarStore *avatars.Store, registry *prometheus.Registry) *http.Server {
	opsMux := http.NewServeMux()

	var rawRedis *redis.Client
	if redisClient != nil {
		rawRedis = redisClient.GetClient()
	}

	var providerProbe observability.ProbeFunc
	if avatarStore != nil {
		providerProbe = avatarStore.Probe
	}

	checker := observability.NewHealthChecker(db, rawRedis, providerProbe)
	observability.RegisterHealthRoutes(opsMux, checker)

	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(opsMux, registry)
	}

	return &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.OpsPort,
		Handler:      opsMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
