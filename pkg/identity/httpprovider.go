package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vuraweg/prepgate/pkg/credential"
	"github.com/vuraweg/prepgate/pkg/observability"
)

// HTTPConfig configures the hosted identity-provider client.
type HTTPConfig struct {
	// BaseURL is the provider's auth endpoint root, e.g.
	// https://project.example.co/auth/v1
	BaseURL string

	// APIKey is sent on every request; the provider uses it to identify
	// the portal, not the user.
	APIKey string

	// Timeout bounds each provider round-trip.
	Timeout time.Duration
}

// HTTPProvider implements Provider against a hosted GoTrue-style
// identity service (password grant, refresh grant, signup, user, logout,
// otp and verify endpoints).
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewHTTPProvider creates the provider client. Metrics may be nil.
func NewHTTPProvider(cfg HTTPConfig, logger *observability.Logger, metrics *observability.Metrics) (*HTTPProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("identity provider base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:  logger.WithComponent("identity"),
		metrics: metrics,
		now:     time.Now,
	}, nil
}

// sessionResponse is the provider's token grant payload.
type sessionResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	User         userResponse `json:"user"`
}

type userResponse struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt string         `json:"email_confirmed_at"`
	UserMetadata     map[string]any `json:"user_metadata"`
}

// errorResponse covers both provider error shapes.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	ErrorCode        string `json:"error_code"`
}

func (e errorResponse) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Error, e.ErrorCode} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (p *HTTPProvider) SignIn(ctx context.Context, email, password string) (Session, error) {
	body := map[string]string{"email": email, "password": password}
	var resp sessionResponse
	if err := p.do(ctx, "sign_in", http.MethodPost, "/token?grant_type=password", "", body, &resp); err != nil {
		return Session{}, err
	}
	return p.session(resp), nil
}

func (p *HTTPProvider) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"full_name": displayName},
	}
	var resp sessionResponse
	if err := p.do(ctx, "sign_up", http.MethodPost, "/signup", "", body, &resp); err != nil {
		return Session{}, err
	}
	return p.session(resp), nil
}

func (p *HTTPProvider) Refresh(ctx context.Context, refreshProof string) (credential.Record, error) {
	body := map[string]string{"refresh_token": refreshProof}
	var resp sessionResponse
	if err := p.do(ctx, "refresh", http.MethodPost, "/token?grant_type=refresh_token", "", body, &resp); err != nil {
		// Refresh failures are fatal to the session no matter the cause;
		// reclassify so callers tear down instead of retrying.
		return credential.Record{}, WrapError(CodeRefreshFailed, ErrRefreshFailed.Message, err)
	}
	return p.credentialOf(resp), nil
}

func (p *HTTPProvider) User(ctx context.Context, accessProof string) (Record, error) {
	var resp userResponse
	if err := p.do(ctx, "user", http.MethodGet, "/user", accessProof, nil, &resp); err != nil {
		return Record{}, err
	}
	return recordOf(resp), nil
}

func (p *HTTPProvider) SignOut(ctx context.Context, accessProof string) error {
	return p.do(ctx, "sign_out", http.MethodPost, "/logout", accessProof, nil, nil)
}

func (p *HTTPProvider) SendCode(ctx context.Context, email string) error {
	body := map[string]any{"email": email, "create_user": false}
	return p.do(ctx, "send_code", http.MethodPost, "/otp", "", body, nil)
}

func (p *HTTPProvider) VerifyCode(ctx context.Context, email, code string) (Session, error) {
	body := map[string]string{"type": "email", "email": email, "token": code}
	var resp sessionResponse
	if err := p.do(ctx, "verify_code", http.MethodPost, "/verify", "", body, &resp); err != nil {
		return Session{}, err
	}
	return p.session(resp), nil
}

// do runs one provider round-trip: marshal, send, classify.
func (p *HTTPProvider) do(ctx context.Context, op, method, path, bearer string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("apikey", p.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := p.now()
	resp, err := p.client.Do(req)
	if p.metrics != nil {
		p.metrics.ProviderRequestDuration.WithLabelValues(op).Observe(p.now().Sub(start).Seconds())
	}
	if err != nil {
		p.observe(op, "network")
		return WrapError(CodeNetwork, ErrNetwork.Message, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		classified := p.classify(op, resp)
		p.observe(op, string(CodeOf(classified)))
		return classified
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			p.observe(op, "bad_response")
			return WrapError(CodeNetwork, ErrNetwork.Message, fmt.Errorf("failed to decode %s response: %w", op, err))
		}
	}
	p.observe(op, "ok")
	return nil
}

// classify maps a provider error response onto the taxonomy. This is
// the single place provider status codes and error strings are read.
func (p *HTTPProvider) classify(op string, resp *http.Response) error {
	var body errorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &body)
	detail := body.text()
	cause := fmt.Errorf("provider returned %d: %s", resp.StatusCode, detail)

	lower := strings.ToLower(detail)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e := RateLimitedError(retryAfterOf(resp))
		e.cause = cause
		return e
	case resp.StatusCode == http.StatusUnauthorized:
		return WrapError(CodeSessionExpired, ErrSessionExpired.Message, cause)
	case resp.StatusCode >= 500:
		return WrapError(CodeNetwork, ErrNetwork.Message, cause)
	case strings.Contains(lower, "invalid login credentials"),
		strings.Contains(lower, "invalid_grant"):
		return WrapError(CodeInvalidCredentials, ErrInvalidCredentials.Message, cause)
	case strings.Contains(lower, "user not found"),
		strings.Contains(lower, "otp_expired") && op == "verify_code":
		return WrapError(CodeIdentifierNotFound, ErrIdentifierNotFound.Message, cause)
	case resp.StatusCode == http.StatusForbidden,
		strings.Contains(lower, "signups not allowed"),
		strings.Contains(lower, "signup_disabled"):
		return WrapError(CodeProviderConfig, ErrProviderConfig.Message, cause)
	default:
		return WrapError(CodeUnknown, "authentication failed", cause)
	}
}

func retryAfterOf(resp *http.Response) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Minute
}

func (p *HTTPProvider) observe(op, outcome string) {
	if p.metrics != nil {
		p.metrics.ProviderRequestsTotal.WithLabelValues(op, outcome).Inc()
	}
}

func (p *HTTPProvider) session(resp sessionResponse) Session {
	return Session{
		Credential: p.credentialOf(resp),
		Identity:   recordOf(resp.User),
	}
}

// credentialOf derives the credential record, preferring the explicit
// expires_in and falling back to the proof's own exp claim.
func (p *HTTPProvider) credentialOf(resp sessionResponse) credential.Record {
	rec := credential.Record{
		AccessProof:  resp.AccessToken,
		RefreshProof: resp.RefreshToken,
		UserID:       resp.User.ID,
	}
	if resp.ExpiresIn > 0 {
		rec.ExpiresAt = p.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	} else if claims, err := ProofExpiry(resp.AccessToken); err == nil {
		rec.ExpiresAt = claims.ExpiresAt
		if rec.UserID == "" {
			rec.UserID = claims.UserID
		}
	}
	return rec
}

func recordOf(u userResponse) Record {
	rec := Record{
		ID:            u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailConfirmedAt != "",
	}
	if u.UserMetadata != nil {
		if name, ok := u.UserMetadata["full_name"].(string); ok {
			rec.DisplayName = name
		}
		if avatar, ok := u.UserMetadata["avatar_key"].(string); ok {
			rec.AvatarKey = avatar
		}
	}
	return rec
}
