// Package api provides the HTTP REST API server for the PrepGate session gateway.
//
// # Overview
//
// This package implements the portal-facing HTTP layer: sign-in channels,
// session lifecycle operations, time-boxed entitlements, and profile
// management. It is a thin delivery surface — all policy (rate limiting,
// refresh coalescing, reconciliation, fail-open/fail-closed) lives in the
// domain packages; handlers translate HTTP to domain calls and the error
// taxonomy back to statuses.
//
// # Architecture
//
// The API is built on gorilla/mux and organized into domain-specific handler groups:
//
//   - AuthHandlers: password, one-time code, and OAuth sign-in channels
//   - SessionHandlers: session resolution, visibility resume, SSE state stream
//   - EntitlementHandlers: grant creation and entitlement checks
//   - ProfileHandlers: reconciled profile reads, portal edits, avatars
//
// Two identity mechanisms coexist:
//
//   - The browsing-context cookie keys session operations. Every request
//     carries one; new visitors get a fresh UUID.
//   - A bearer access proof keys entitlement and profile operations. It is
//     verified locally (HMAC + expiry), no provider round-trip.
//
// # API Endpoints
//
// Authentication:
//
//	POST   /v1/auth/login           - Password sign-in
//	POST   /v1/auth/signup          - Register and sign in
//	POST   /v1/auth/otp/send        - Issue a one-time code
//	POST   /v1/auth/otp/verify      - Exchange a one-time code
//	GET    /v1/auth/oauth/start     - Redirect to the OAuth provider
//	GET    /v1/auth/oauth/callback  - Complete the OAuth exchange
//	POST   /v1/auth/refresh         - Renew the credential record
//	POST   /v1/auth/logout          - Sign out (always clears locally)
//
// Session:
//
//	GET    /v1/session              - Resolve the session (bounded init)
//	POST   /v1/session/resume       - Re-validate on foreground visibility
//	GET    /v1/session/watch        - SSE stream of session snapshots
//
// Entitlements (bearer proof required):
//
//	POST   /v1/entitlements                       - Create a grant
//	GET    /v1/entitlements/{resourceID}          - Check entitlement
//	GET    /v1/entitlements/{resourceID}/remaining - Time left on the grant
//
// Profile (bearer proof required):
//
//	GET    /v1/profile          - Reconciled profile
//	PUT    /v1/profile          - Update the portal profile
//	POST   /v1/profile/avatar   - Upload an avatar image
//	GET    /v1/profile/avatar   - Stream the caller's avatar
//
// # Error Envelope
//
// Every error response uses the shared envelope:
//
//	{"error": "...", "code": "rate_limited", "retry_after_ms": 840000}
//
// Provider error codes map to statuses in one place: invalid credentials,
// expired sessions and failed refreshes are 401; unknown identifiers 404;
// rate limits 429 with a Retry-After header; network trouble 504; provider
// misconfiguration 502.
//
// # Usage Example
//
// Basic server setup:
//
//	server := api.NewServer(registry, entitlements, profiles, avatarStore, logger, metrics, api.Options{
//		ProofSecret: []byte(cfg.Provider.ProofSecret),
//		CORSOrigins: cfg.Server.CORSOrigins,
//	})
//	log.Fatal(http.ListenAndServe(":8080", server))
//
// # Related Packages
//
//   - pkg/session: Session managers and the browsing-context registry
//   - pkg/entitlement: Grant store and validity checks
//   - pkg/identity: Provider boundary and error taxonomy
//   - pkg/middleware: Browsing-context, bearer, and metrics middleware
//   - pkg/httputil: Response envelope and request helpers
package api
