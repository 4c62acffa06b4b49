package middleware

import (
	"net/http"
	"strings"

	"github.com/vuraweg/prepgate/pkg/contextkeys"
	"github.com/vuraweg/prepgate/pkg/httputil"
	"github.com/vuraweg/prepgate/pkg/identity"
)

// BearerAuth verifies access proofs locally: signature and expiry check
// against the provider's HMAC secret, no provider round-trip. The user
// ID lands in the request context for handlers downstream.
type BearerAuth struct {
	secret   []byte
	optional bool // If true, allow requests without a proof
}

// NewBearerAuth creates the bearer-proof middleware.
func NewBearerAuth(secret []byte, optional bool) *BearerAuth {
	return &BearerAuth{
		secret:   secret,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with bearer-proof verification
func (m *BearerAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <proof>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		// ParseProofClaims rejects expired proofs, so a pass here means
		// both signature and expiry are good.
		claims, err := identity.ParseProofClaims(parts[1], m.secret)
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired access proof")
			return
		}

		ctx := contextkeys.WithUserID(r.Context(), claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
