// Package account builds the canonical user profile by merging identity
// data from multiple proof channels with the portal's own profile store.
package account

import (
	"time"
)

// Channel is the proof-of-identity channel a session was established on.
type Channel string

const (
	ChannelPassword Channel = "password"
	ChannelOAuth    Channel = "oauth"
	ChannelOTP      Channel = "otp"
)

// DefaultDisplayName is the literal fallback when neither the portal
// profile nor the provider offers a name.
const DefaultDisplayName = "User"

// Profile is the canonical authenticated-user record. Derived, never
// authoritative: rebuilt on every authentication and refresh, discarded
// on sign-out. ID is immutable once assigned by the identity provider.
type Profile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	AvatarKey   string    `json:"avatar_key,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	IsAdmin     bool      `json:"is_admin"`
	Channel     Channel   `json:"channel"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// AdminChecker answers the closed admin membership test. Membership is
// deployment configuration (an allow-list file), never provider metadata
// or a per-user role bit.
type AdminChecker interface {
	IsAdmin(email string) bool
}
