// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Overview
//
// This package centralizes observability infrastructure for the gateway:
// JSON logging, the metric registry, health checks, graceful shutdown, and
// optional OTLP export.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithComponent("session").Info("scheduler started")
//
// Context-aware logging:
//
//	observability.FromContext(ctx).WithError(err).Error("refresh failed")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.AuthAttemptsTotal.WithLabelValues("password", "success").Inc()
//	metrics.SessionsActive.Set(float64(registrySize))
//
// # Health Checks
//
// Configure health checker:
//
//	checker := observability.NewHealthChecker(db, redisClient, provider.Healthy)
//	status := checker.Check(ctx)
//
// # OpenTelemetry
//
// Initialize tracing:
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		ServiceName: "prepgate",
//		Endpoint:    "otel-collector:4317",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/middleware: HTTP metrics middleware
package observability
