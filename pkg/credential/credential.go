package credential

import (
	"context"
	"time"
)

// Record is the opaque proof bundle persisted between requests. Nothing
// in this package parses the proofs; expiry is the only field inspected
// by callers scheduling refreshes.
type Record struct {
	AccessProof  string    `json:"access_proof"`
	RefreshProof string    `json:"refresh_proof"`
	UserID       string    `json:"user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Lifetime selects which tier a record is written to.
type Lifetime int

const (
	// LifetimeEphemeral stores the record in process memory only; it is
	// lost on restart, mirroring a tab-scoped session.
	LifetimeEphemeral Lifetime = iota

	// LifetimePersistent stores the record in Redis so "remember me"
	// sessions survive restarts and are shared across replicas.
	LifetimePersistent
)

func (l Lifetime) String() string {
	switch l {
	case LifetimeEphemeral:
		return "ephemeral"
	case LifetimePersistent:
		return "persistent"
	default:
		return "unknown"
	}
}

// Store is one browsing context's view over the two credential tiers.
type Store interface {
	// Put writes the record to the tier selected by lifetime.
	Put(ctx context.Context, rec Record, lifetime Lifetime) error

	// Get reads with persistent-tier precedence: a persistent record wins
	// over an ephemeral one even when the persistent one is staler. The
	// returned lifetime names the winning tier so a refresh can replace
	// the record where it lives. Absence is (zero, _, false, nil), not an
	// error.
	Get(ctx context.Context) (Record, Lifetime, bool, error)

	// Clear removes the record from both tiers. Idempotent.
	Clear(ctx context.Context) error
}
