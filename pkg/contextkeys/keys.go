// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/vuraweg/prepgate/pkg/contextkeys"
//   ctx = contextkeys.WithBrowsingContext(ctx, bcID)
//   bcID := contextkeys.GetBrowsingContext(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, error envelopes
	// Type: string
	RequestIDKey Key = "request_id"

	// BrowsingContextKey contains the browsing-context ID string
	// Set by: middleware.BrowsingContext (cookie issue/read)
	// Required by: session registry lookups, auth handlers
	// Type: string
	BrowsingContextKey Key = "browsing_context"

	// UserIDKey contains the authenticated user ID string
	// Set by: middleware.Bearer after proof validation
	// Used by: entitlement and profile handlers, logger
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: request logging middleware
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithBrowsingContext adds the browsing-context ID to the context
func WithBrowsingContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, BrowsingContextKey, id)
}

// GetBrowsingContext retrieves the browsing-context ID from context
func GetBrowsingContext(ctx context.Context) string {
	if id, ok := ctx.Value(BrowsingContextKey).(string); ok {
		return id
	}
	return ""
}

// WithUserID adds the authenticated user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID retrieves the authenticated user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}
