// Package identity is the boundary to the hosted identity provider. It
// owns the provider client, the OAuth redirect channel, and the error
// taxonomy; nothing above this package ever sees a raw provider error.
package identity

import (
	"context"

	"github.com/vuraweg/prepgate/pkg/credential"
)

// Record is the provider's view of a user, normalized from whatever
// claim or metadata shape the provider returns. It is one input to
// profile reconciliation, never the canonical profile itself.
type Record struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	DisplayName   string `json:"display_name,omitempty"`
	AvatarKey     string `json:"avatar_key,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

// Session is a successful authentication: the proofs to persist plus the
// identity record they were issued for.
type Session struct {
	Credential credential.Record
	Identity   Record
}

// Provider is the pluggable identity collaborator. One implementation
// serves every authentication channel so the session manager stays
// provider-agnostic.
type Provider interface {
	// SignIn authenticates with the password channel.
	SignIn(ctx context.Context, email, password string) (Session, error)

	// SignUp registers a new account and signs it in.
	SignUp(ctx context.Context, email, password, displayName string) (Session, error)

	// Refresh exchanges a refresh proof for a fresh credential record.
	// Failures are always classified CodeRefreshFailed.
	Refresh(ctx context.Context, refreshProof string) (credential.Record, error)

	// User fetches the identity record behind a live access proof. Also
	// serves as the cheap proof-validity check on visibility resync.
	User(ctx context.Context, accessProof string) (Record, error)

	// SignOut revokes the proof provider-side. Callers treat failures as
	// best-effort; local teardown never depends on this succeeding.
	SignOut(ctx context.Context, accessProof string) error

	// SendCode issues a one-time sign-in code to the email.
	SendCode(ctx context.Context, email string) error

	// VerifyCode exchanges a one-time code for a session.
	VerifyCode(ctx context.Context, email, code string) (Session, error)
}
