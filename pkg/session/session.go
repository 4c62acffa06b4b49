// Package session owns the canonical authenticated-user state for one
// browsing context: credential persistence, expiry tracking, proactive
// refresh, and the state stream the portal frontend subscribes to.
package session

import (
	"time"

	"github.com/vuraweg/prepgate/pkg/account"
)

// State is the session lifecycle position. Every refresh re-enters
// StateInitializing and settles back in Authenticated, Anonymous or
// Error.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateAuthenticated
	StateAnonymous
	StateSignedOut

	// StateError is reserved for incoherent local state (the credential
	// tiers cannot be cleared during teardown). A plain refresh failure
	// is StateAnonymous, never StateError.
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	case StateSignedOut:
		return "signed_out"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is one immutable observation of session state, published to
// subscribers on every transition.
type Snapshot struct {
	State     State            `json:"state"`
	Profile   *account.Profile `json:"profile,omitempty"`
	ExpiresAt time.Time        `json:"expires_at,omitempty"`
}

// Config holds the manager's timing knobs.
type Config struct {
	// InitTimeout bounds Initialize; a slow identity provider resolves
	// to Anonymous rather than blocking first paint.
	InitTimeout time.Duration

	// RefreshInterval is the expiry-check poll period.
	RefreshInterval time.Duration

	// RefreshSkew refreshes this much before the recorded expiry. Zero
	// means refresh exactly at expiry.
	RefreshSkew time.Duration

	// RefreshTimeout bounds one refresh round-trip. The refresh runs on
	// a detached context so an abandoning caller cannot poison the
	// result shared with coalesced callers.
	RefreshTimeout time.Duration
}

// DefaultConfig returns the production timing.
func DefaultConfig() Config {
	return Config{
		InitTimeout:     2 * time.Second,
		RefreshInterval: 60 * time.Second,
		RefreshSkew:     0,
		RefreshTimeout:  10 * time.Second,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.InitTimeout <= 0 {
		c.InitTimeout = d.InitTimeout
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = d.RefreshInterval
	}
	if c.RefreshSkew < 0 {
		c.RefreshSkew = 0
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = d.RefreshTimeout
	}
	return c
}
