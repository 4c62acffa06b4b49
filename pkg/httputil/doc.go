// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers helper functions for JSON encoding/decoding, error responses,
// parameter parsing, validation, and common HTTP middleware patterns.
//
// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteSuccess(w, snapshot)
//	httputil.WriteCreated(w, grant)
//
// Error responses:
//
//	httputil.WriteError(w, http.StatusBadRequest, err)
//	httputil.WriteCodedError(w, http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect")
//	httputil.WriteRateLimited(w, retryAfterMS, "too many attempts")
//	httputil.WriteUnauthorized(w, "missing bearer token")
//
// WriteRateLimited sets the Retry-After header (rounded up to whole seconds)
// alongside the JSON body so both header-driven and body-driven clients back off.
//
// # Request Parsing
//
// JSON parsing:
//
//	var req loginRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// Path parameters:
//
//	resourceID, ok := httputil.ParsePathStringOrError(w, r, "resourceID")
//
// Query parameters:
//
//	channel := httputil.ParseQueryString(r, "channel", "password")
//	force, err := httputil.ParseQueryBool(r, "force", false)
//
// # Validation
//
//	httputil.ValidateAll(w,
//		func() (bool, string) { return req.Email != "", "email is required" },
//		func() (bool, string) { return req.Password != "", "password is required" },
//	)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.LoggingMiddleware,
//		httputil.RecoveryMiddleware,
//		httputil.RequestIDMiddleware,
//		httputil.TimeoutMiddleware(30*time.Second),
//		httputil.MaxBytesMiddleware(1*1024*1024), // 1MB
//	)
//
// TimeoutMiddleware does not implement http.Flusher; streaming routes must be
// registered outside it.
//
// # Related Packages
//
//   - pkg/middleware: Authentication and browsing-context middleware
package httputil
