package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/vuraweg/prepgate/pkg/credential"
)

// OAuthConfig configures the browser-redirect channel.
type OAuthConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// OIDCAuthenticator implements the OAuth redirect channel: discovery,
// authorization URL, code exchange and ID-token verification. It is a
// second proof-of-identity channel over the same provider, so exchanged
// sessions flow through the same reconciliation as password sign-ins.
type OIDCAuthenticator struct {
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCAuthenticator discovers the issuer and prepares the verifier.
func NewOIDCAuthenticator(ctx context.Context, cfg OAuthConfig) (*OIDCAuthenticator, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, WrapError(CodeProviderConfig, ErrProviderConfig.Message,
			fmt.Errorf("failed to discover OIDC issuer: %w", err))
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return &OIDCAuthenticator{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
	}, nil
}

// AuthCodeURL returns the provider redirect target for the given
// anti-forgery state.
func (a *OIDCAuthenticator) AuthCodeURL(state string) string {
	return a.oauth2Config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades the callback code for a session: verify the ID token,
// lift its claims into an identity record, and carry the OAuth tokens as
// the credential proofs.
func (a *OIDCAuthenticator) Exchange(ctx context.Context, code string) (Session, error) {
	token, err := a.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return Session{}, WrapError(CodeInvalidCredentials, ErrInvalidCredentials.Message,
			fmt.Errorf("failed to exchange authorization code: %w", err))
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return Session{}, WrapError(CodeProviderConfig, ErrProviderConfig.Message,
			fmt.Errorf("token response is missing id_token"))
	}

	idToken, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Session{}, WrapError(CodeInvalidCredentials, ErrInvalidCredentials.Message,
			fmt.Errorf("failed to verify ID token: %w", err))
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Session{}, WrapError(CodeProviderConfig, ErrProviderConfig.Message,
			fmt.Errorf("failed to parse ID token claims: %w", err))
	}

	return Session{
		Credential: credential.Record{
			AccessProof:  token.AccessToken,
			RefreshProof: token.RefreshToken,
			UserID:       idToken.Subject,
			ExpiresAt:    token.Expiry,
		},
		Identity: Record{
			ID:            idToken.Subject,
			Email:         claims.Email,
			DisplayName:   claims.Name,
			AvatarKey:     claims.Picture,
			EmailVerified: claims.EmailVerified,
		},
	}, nil
}
