package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vuraweg/prepgate/pkg/avatars"
	"github.com/vuraweg/prepgate/pkg/entitlement"
	"github.com/vuraweg/prepgate/pkg/identity"
	"github.com/vuraweg/prepgate/pkg/observability"
	"github.com/vuraweg/prepgate/pkg/postgresutil"
	"github.com/vuraweg/prepgate/pkg/ratelimit"
	"github.com/vuraweg/prepgate/pkg/redisutil"
	"github.com/vuraweg/prepgate/pkg/session"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Postgres      postgresutil.Config
	Redis         RedisConfig
	Provider      ProviderConfig
	OAuth         OAuthConfig
	RateLimit     ratelimit.Policy
	Session       SessionConfig
	Entitlement   EntitlementConfig
	Avatars       AvatarsConfig
	Admin         AdminConfig
	Payment       PaymentConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Ops server (separate port for k8s probes and /metrics)
	OpsPort string

	// CORSOrigins are the portal origins allowed to call the API.
	CORSOrigins []string

	// MaxBodyBytes caps request bodies on mutating routes.
	MaxBodyBytes int64
}

// RedisConfig holds the persistent credential tier and rate-ledger
// connection. Disabled runs ephemeral-only with in-memory ledgers,
// suitable for a single replica.
type RedisConfig struct {
	Enabled bool
	redisutil.Config
}

// ProviderConfig holds the hosted identity provider connection.
type ProviderConfig struct {
	identity.HTTPConfig

	// ProofSecret verifies access-proof signatures locally in the bearer
	// middleware. Must match the provider's JWT secret.
	ProofSecret string
}

// OAuthConfig holds the optional OAuth redirect channel.
type OAuthConfig struct {
	Enabled bool
	identity.OAuthConfig
}

// SessionConfig holds session manager and registry tuning.
type SessionConfig struct {
	session.Config

	// MaxContexts bounds the number of live browsing contexts; the least
	// recently seen is evicted beyond this.
	MaxContexts int

	// ContextTTL evicts browsing contexts idle this long.
	ContextTTL time.Duration

	// EphemeralTTL ages out in-memory credential records.
	EphemeralTTL time.Duration

	// PersistentTTL is the Redis credential record TTL; it should track
	// the refresh-proof lifetime.
	PersistentTTL time.Duration
}

// EntitlementConfig holds grant settings.
type EntitlementConfig struct {
	// DefaultDuration is the paid-access window when a request names none.
	DefaultDuration time.Duration

	// Retention is how long expired grants stay queryable before the
	// janitor removes them.
	Retention time.Duration
}

// AvatarsConfig holds the avatar object store settings.
type AvatarsConfig struct {
	Enabled bool
	avatars.Config
}

// AdminConfig holds the admin allow-list source.
type AdminConfig struct {
	// AllowlistPath is a YAML file watched for changes. Empty means no
	// admins.
	AllowlistPath string
}

// PaymentConfig holds payment confirmation verification.
type PaymentConfig struct {
	// SigningSecret verifies payment confirmation references.
	SigningSecret string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Postgres:      loadPostgresConfig(),
		Redis:         loadRedisConfig(),
		Provider:      loadProviderConfig(),
		OAuth:         loadOAuthConfig(),
		RateLimit:     loadRateLimitConfig(),
		Session:       loadSessionConfig(),
		Entitlement:   loadEntitlementConfig(),
		Avatars:       loadAvatarsConfig(),
		Admin:         AdminConfig{AllowlistPath: getEnv("PREPGATE_ADMIN_ALLOWLIST", "")},
		Payment:       PaymentConfig{SigningSecret: getEnv("PREPGATE_PAYMENT_SECRET", "")},
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	cfg := ServerConfig{
		Host:            getEnv("PREPGATE_HOST", "0.0.0.0"),
		Port:            getEnv("PREPGATE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("PREPGATE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("PREPGATE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("PREPGATE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("PREPGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
		OpsPort:         getEnv("PREPGATE_OPS_PORT", "9090"),
		MaxBodyBytes:    int64(getEnvInt("PREPGATE_MAX_BODY_BYTES", 1<<20)),
	}
	if origins := getEnv("PREPGATE_CORS_ORIGINS", ""); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}
	return cfg
}

func loadPostgresConfig() postgresutil.Config {
	cfg := postgresutil.DefaultConfig()
	cfg.URL = getEnv("PREPGATE_POSTGRES_URL", "")
	if maxConns := getEnvInt("PREPGATE_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("PREPGATE_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("PREPGATE_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}
	return cfg
}

func loadRedisConfig() RedisConfig {
	cfg := RedisConfig{Config: redisutil.DefaultConfig()}
	if url := getEnv("PREPGATE_REDIS_URL", ""); url != "" {
		cfg.Enabled = true
		cfg.URL = url
	}
	cfg.Password = getEnv("PREPGATE_REDIS_PASSWORD", cfg.Password)
	if db := getEnvInt("PREPGATE_REDIS_DB", -1); db >= 0 {
		cfg.DB = db
	}
	if retries := getEnvInt("PREPGATE_REDIS_MAX_RETRIES", 0); retries > 0 {
		cfg.MaxRetries = retries
	}
	if poolSize := getEnvInt("PREPGATE_REDIS_POOL_SIZE", 0); poolSize > 0 {
		cfg.PoolSize = poolSize
	}
	return cfg
}

func loadProviderConfig() ProviderConfig {
	return ProviderConfig{
		HTTPConfig: identity.HTTPConfig{
			BaseURL: getEnv("PREPGATE_PROVIDER_URL", ""),
			APIKey:  getEnv("PREPGATE_PROVIDER_API_KEY", ""),
			Timeout: getEnvDuration("PREPGATE_PROVIDER_TIMEOUT", 10*time.Second),
		},
		ProofSecret: getEnv("PREPGATE_PROOF_SECRET", ""),
	}
}

func loadOAuthConfig() OAuthConfig {
	cfg := OAuthConfig{
		OAuthConfig: identity.OAuthConfig{
			IssuerURL:    getEnv("PREPGATE_OAUTH_ISSUER", ""),
			ClientID:     getEnv("PREPGATE_OAUTH_CLIENT_ID", ""),
			ClientSecret: getEnv("PREPGATE_OAUTH_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("PREPGATE_OAUTH_REDIRECT_URL", ""),
		},
	}
	if scopes := getEnv("PREPGATE_OAUTH_SCOPES", ""); scopes != "" {
		cfg.Scopes = strings.Split(scopes, ",")
	}
	cfg.Enabled = cfg.IssuerURL != "" && cfg.ClientID != ""
	return cfg
}

func loadRateLimitConfig() ratelimit.Policy {
	p := ratelimit.DefaultPolicy()
	if n := getEnvInt("PREPGATE_RATE_MAX_ATTEMPTS", 0); n > 0 {
		p.MaxAttempts = n
	}
	if d := getEnvDuration("PREPGATE_RATE_ATTEMPT_WINDOW", 0); d > 0 {
		p.AttemptWindow = d
	}
	if d := getEnvDuration("PREPGATE_RATE_LOCKOUT", 0); d > 0 {
		p.LockoutDuration = d
	}
	if n := getEnvInt("PREPGATE_RATE_GLOBAL_MULTIPLIER", 0); n > 0 {
		p.GlobalMultiplier = n
	}
	p.ProgressiveEnabled = getEnvBool("PREPGATE_RATE_PROGRESSIVE", p.ProgressiveEnabled)
	if d := getEnvDuration("PREPGATE_RATE_MAX_LOCKOUT", 0); d > 0 {
		p.MaxLockout = d
	}
	return p
}

func loadSessionConfig() SessionConfig {
	return SessionConfig{
		Config: session.Config{
			InitTimeout:     getEnvDuration("PREPGATE_SESSION_INIT_TIMEOUT", 2*time.Second),
			RefreshInterval: getEnvDuration("PREPGATE_SESSION_REFRESH_INTERVAL", 60*time.Second),
			RefreshSkew:     getEnvDuration("PREPGATE_SESSION_REFRESH_SKEW", 0),
			RefreshTimeout:  getEnvDuration("PREPGATE_SESSION_REFRESH_TIMEOUT", 10*time.Second),
		},
		MaxContexts:   getEnvInt("PREPGATE_SESSION_MAX_CONTEXTS", 100000),
		ContextTTL:    getEnvDuration("PREPGATE_SESSION_CONTEXT_TTL", 12*time.Hour),
		EphemeralTTL:  getEnvDuration("PREPGATE_SESSION_EPHEMERAL_TTL", 12*time.Hour),
		PersistentTTL: getEnvDuration("PREPGATE_SESSION_PERSISTENT_TTL", 30*24*time.Hour),
	}
}

func loadEntitlementConfig() EntitlementConfig {
	return EntitlementConfig{
		DefaultDuration: getEnvDuration("PREPGATE_GRANT_DURATION", entitlement.DefaultDuration),
		Retention:       getEnvDuration("PREPGATE_GRANT_RETENTION", 90*24*time.Hour),
	}
}

func loadAvatarsConfig() AvatarsConfig {
	cfg := AvatarsConfig{
		Config: avatars.Config{
			Bucket:        getEnv("PREPGATE_S3_BUCKET", ""),
			Region:        getEnv("PREPGATE_S3_REGION", "us-east-1"),
			Endpoint:      getEnv("PREPGATE_S3_ENDPOINT", ""),
			AccessKey:     getEnv("PREPGATE_S3_ACCESS_KEY", ""),
			SecretKey:     getEnv("PREPGATE_S3_SECRET_KEY", ""),
			UsePathStyle:  getEnvBool("PREPGATE_S3_USE_PATH_STYLE", false),
			PublicBaseURL: getEnv("PREPGATE_AVATAR_CDN_URL", ""),
		},
	}
	cfg.Enabled = cfg.Bucket != ""
	return cfg
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("PREPGATE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("PREPGATE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("PREPGATE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("PREPGATE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("PREPGATE_OTEL_SERVICE_NAME", "prepgate"),
		OTelServiceVersion: getEnv("PREPGATE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("PREPGATE_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.OpsPort == "" {
		return fmt.Errorf("ops port is required")
	}
	if c.Server.Port == c.Server.OpsPort {
		return fmt.Errorf("server port and ops port must be different")
	}

	if c.Postgres.URL == "" {
		return fmt.Errorf("PREPGATE_POSTGRES_URL is required (grants and profiles live in Postgres)")
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("PREPGATE_PROVIDER_URL is required")
	}
	if c.Provider.ProofSecret == "" {
		return fmt.Errorf("PREPGATE_PROOF_SECRET is required to verify access proofs")
	}
	if c.Payment.SigningSecret == "" {
		return fmt.Errorf("PREPGATE_PAYMENT_SECRET is required to verify payment confirmations")
	}

	if c.OAuth.Enabled {
		if c.OAuth.ClientSecret == "" {
			return fmt.Errorf("PREPGATE_OAUTH_CLIENT_SECRET is required when OAuth is configured")
		}
		if c.OAuth.RedirectURL == "" {
			return fmt.Errorf("PREPGATE_OAUTH_REDIRECT_URL is required when OAuth is configured")
		}
	}

	if c.Avatars.Enabled && c.Avatars.Region == "" {
		return fmt.Errorf("PREPGATE_S3_REGION is required when the avatar bucket is configured")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
