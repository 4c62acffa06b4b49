package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ProofClaims are the claims the gateway reads out of an access proof:
// the subject identifies the user, the expiry drives refresh scheduling
// and bearer validation.
type ProofClaims struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

type accessProofClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// ParseProofClaims validates an access proof against the shared HMAC
// secret and extracts its claims. This is how the bearer middleware
// authenticates entitlement and profile requests without a provider
// round-trip.
func ParseProofClaims(proof string, secret []byte) (ProofClaims, error) {
	claims := &accessProofClaims{}
	token, err := jwt.ParseWithClaims(proof, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		return ProofClaims{}, fmt.Errorf("failed to parse access proof: %w", err)
	}
	if !token.Valid {
		return ProofClaims{}, fmt.Errorf("access proof is not valid")
	}
	return proofClaimsFrom(claims), nil
}

// ProofExpiry extracts subject and expiry without verifying the
// signature. Used only to derive ExpiresAt when the provider response
// omits expires_in; never for authentication.
func ProofExpiry(proof string) (ProofClaims, error) {
	claims := &accessProofClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(proof, claims); err != nil {
		return ProofClaims{}, fmt.Errorf("failed to decode access proof: %w", err)
	}
	return proofClaimsFrom(claims), nil
}

func proofClaimsFrom(claims *accessProofClaims) ProofClaims {
	out := ProofClaims{
		UserID: claims.Subject,
		Email:  claims.Email,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out
}
