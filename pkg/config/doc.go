// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings. Policy knobs (attempt windows, lockouts,
// grant duration, refresh timing) default to the production values.
//
// # Configuration Structure
//
// Server settings:
//
//	PREPGATE_HOST="0.0.0.0"
//	PREPGATE_PORT="8080"
//	PREPGATE_OPS_PORT="9090"
//	PREPGATE_READ_TIMEOUT="15s"
//	PREPGATE_WRITE_TIMEOUT="15s"
//	PREPGATE_CORS_ORIGINS="https://portal.example.com"
//
// Store settings:
//
//	PREPGATE_POSTGRES_URL="postgres://localhost/prepgate"
//	PREPGATE_POSTGRES_MAX_CONNS="25"
//	PREPGATE_REDIS_URL="redis://localhost:6379/0"  # empty = ephemeral-only
//	PREPGATE_S3_BUCKET="prepgate-avatars"          # empty = avatars disabled
//
// Identity provider settings:
//
//	PREPGATE_PROVIDER_URL="https://project.example.co/auth/v1"
//	PREPGATE_PROVIDER_API_KEY="..."
//	PREPGATE_PROOF_SECRET="..."
//	PREPGATE_OAUTH_ISSUER="https://accounts.google.com"  # empty = OAuth disabled
//
// Policy settings:
//
//	PREPGATE_RATE_MAX_ATTEMPTS="5"
//	PREPGATE_RATE_ATTEMPT_WINDOW="5m"
//	PREPGATE_RATE_LOCKOUT="15m"
//	PREPGATE_SESSION_INIT_TIMEOUT="2s"
//	PREPGATE_GRANT_DURATION="1h"
//	PREPGATE_GRANT_RETENTION="2160h"
//
// Observability settings:
//
//	PREPGATE_LOG_LEVEL="info"  # debug, info, warn, error
//	PREPGATE_METRICS_ENABLED="true"
//	PREPGATE_OTEL_ENABLED="false"
//	PREPGATE_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// Secrets are never logged; Validate reports which variable is missing,
// not its value.
package config
