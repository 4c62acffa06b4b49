// Package payment defines the confirmation shape the checkout
// collaborator hands back after a successful charge. Verifying the
// charge itself is the collaborator's job; this package only checks that
// a confirmation is well-formed before any entitlement is written.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// RefPrefix identifies portal payment references.
	// Format: pay_<base64url(payload)>.<hex(hmac-sha256(payload))>
	RefPrefix = "pay_"

	// CurrencyLen is the ISO 4217 code length.
	CurrencyLen = 3
)

// Confirmation is the opaque result of a completed checkout. AmountCents
// of zero is a valid, first-class confirmation (coupon or promotion).
type Confirmation struct {
	Ref         string `json:"ref"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// Verifier checks confirmation well-formedness.
type Verifier interface {
	Verify(conf Confirmation) error
}

// TokenVerifier validates the portal checkout's signed reference format.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier with the checkout signing secret.
func NewTokenVerifier(secret []byte) *TokenVerifier {
	return &TokenVerifier{secret: secret}
}

// Verify rejects malformed references before any grant is written.
func (v *TokenVerifier) Verify(conf Confirmation) error {
	if conf.AmountCents < 0 {
		return fmt.Errorf("amount must not be negative")
	}
	if len(conf.Currency) != CurrencyLen {
		return fmt.Errorf("currency must be a %d-letter code", CurrencyLen)
	}

	if !strings.HasPrefix(conf.Ref, RefPrefix) {
		return fmt.Errorf("payment reference must start with %q", RefPrefix)
	}
	body := strings.TrimPrefix(conf.Ref, RefPrefix)
	parts := strings.SplitN(body, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("payment reference is missing its signature")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return fmt.Errorf("payment reference payload is not base64url: %w", err)
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(parts[1])) {
		return fmt.Errorf("payment reference signature mismatch")
	}
	return nil
}

// SignRef builds a well-formed reference for the given payload. The
// checkout collaborator owns this in production; it lives here so tests
// and development tooling can mint references with the same secret.
func SignRef(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return RefPrefix + base64.RawURLEncoding.EncodeToString(payload) + "." + hex.EncodeToString(mac.Sum(nil))
}
