// Package profile is the portal-side profile store: the display name and
// avatar a user set on the portal, as opposed to whatever the identity
// provider knows about them. It is the highest-precedence reconciliation
// source.
package profile

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports that no stored profile exists for the user. Absence
// is an expected reconciliation input, not a failure.
var ErrNotFound = errors.New("profile not found")

// StoredProfile is what the user configured on the portal.
type StoredProfile struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	AvatarKey   string    `json:"avatar_key,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store persists portal profiles.
type Store interface {
	// Get returns ErrNotFound when the user never saved a profile.
	Get(ctx context.Context, userID string) (StoredProfile, error)

	// Upsert inserts or replaces the user's profile.
	Upsert(ctx context.Context, p StoredProfile) error
}
