// Package middleware provides HTTP middleware for request identity and instrumentation.
//
// # Overview
//
// This package implements request processing middleware: browsing-context
// resolution, local bearer-proof verification, and HTTP metrics recording.
//
// # Middleware Components
//
// BrowsingContext: cookie-based context identity
//
//	bc := &middleware.BrowsingContext{TTL: 12 * time.Hour, Secure: true}
//	router.Use(bc.Handler)
//	// Issues or reads the context cookie, adds the ID to the request context
//
// BearerAuth: local access-proof verification
//
//	bearer := middleware.NewBearerAuth(secret, false)
//	protected.Use(bearer.Handler)
//	// Verifies the HMAC signature and expiry, adds the user ID to context
//
// Metrics: request instrumentation
//
//	router.Use(middleware.Metrics(metrics))
//
// # Related Packages
//
//   - pkg/identity: Proof claim parsing
//   - pkg/contextkeys: Request-scoped value keys
//   - pkg/observability: Metrics registry
package middleware
