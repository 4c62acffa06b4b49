// Package entitlement grants and validates time-boxed access to priced
// resources. A grant is immutable once written; validity is recomputed
// from wall-clock time on every check, never stored as a mutable
// "unlocked" flag, so access cannot drift out of sync with a displayed
// countdown.
package entitlement

import (
	"context"
	"time"
)

// Grant unlocks one resource for one user until ExpiresAt. Expired
// grants become inert, not deleted; they remain queryable history until
// the janitor's retention sweep.
type Grant struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ResourceID  string    `json:"resource_id"`
	StartsAt    time.Time `json:"starts_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	PaymentRef  string    `json:"payment_ref"`
	AmountCents int64     `json:"amount_cents"`
}

// Valid reports whether the grant unlocks access at the given instant.
// The boundary is exclusive: at now == ExpiresAt the grant is expired.
func (g Grant) Valid(now time.Time) bool {
	return now.Before(g.ExpiresAt)
}

// Remaining is the time left on the grant at the given instant, floor 0.
func (g Grant) Remaining(now time.Time) time.Duration {
	if !g.Valid(now) {
		return 0
	}
	return g.ExpiresAt.Sub(now)
}

// Verdict is the outcome of an entitlement check.
type Verdict struct {
	Valid bool `json:"valid"`

	// Grant is the newest matching grant, valid or not; nil when the
	// pair has no grants at all.
	Grant *Grant `json:"grant,omitempty"`

	// Remaining is the time left on the grant when Valid.
	Remaining time.Duration `json:"remaining_ms"`
}

// Store persists grants. At most one valid grant per (user, resource)
// pair is needed for access; duplicates are harmless but wasteful, so no
// uniqueness is enforced.
type Store interface {
	Insert(ctx context.Context, g Grant) error

	// Newest returns the matching grant with the latest expiry, or
	// (nil, nil) when the pair has none.
	Newest(ctx context.Context, userID, resourceID string) (*Grant, error)

	ListByUser(ctx context.Context, userID string) ([]Grant, error)

	// DeleteExpiredBefore removes grants whose expiry predates the
	// cutoff. Retention only; expiry itself never deletes.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
