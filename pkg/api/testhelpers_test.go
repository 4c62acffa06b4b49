package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vuraweg/prepgate/pkg/account"
	"github.com/vuraweg/prepgate/pkg/credential"
	"github.com/vuraweg/prepgate/pkg/entitlement"
	"github.com/vuraweg/prepgate/pkg/identity"
	"github.com/vuraweg/prepgate/pkg/observability"
	"github.com/vuraweg/prepgate/pkg/payment"
	"github.com/vuraweg/prepgate/pkg/profile"
	"github.com/vuraweg/prepgate/pkg/ratelimit"
	"github.com/vuraweg/prepgate/pkg/session"
)

var (
	testProofSecret   = []byte("api-test-proof-secret")
	testPaymentSecret = []byte("api-test-payment-secret")
)

// stubProvider is a scriptable identity provider for handler tests.
type stubProvider struct {
	mu        sync.Mutex
	signInErr error

	record credential.Record
	ident  identity.Record
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		record: credential.Record{
			AccessProof:  "access-proof",
			RefreshProof: "refresh-proof",
			UserID:       "user-1",
			ExpiresAt:    time.Now().Add(time.Hour),
		},
		ident: identity.Record{ID: "user-1", Email: "dev@example.com", DisplayName: "Dev One"},
	}
}

func (p *stubProvider) session() identity.Session {
	return identity.Session{Credential: p.record, Identity: p.ident}
}

func (p *stubProvider) SignIn(ctx context.Context, email, password string) (identity.Session, error) {
	p.mu.Lock()
	err := p.signInErr
	p.mu.Unlock()
	if err != nil {
		return identity.Session{}, err
	}
	return p.session(), nil
}

func (p *stubProvider) SignUp(ctx context.Context, email, password, displayName string) (identity.Session, error) {
	return p.SignIn(ctx, email, password)
}

func (p *stubProvider) Refresh(ctx context.Context, refreshProof string) (credential.Record, error) {
	return p.record, nil
}

func (p *stubProvider) User(ctx context.Context, accessProof string) (identity.Record, error) {
	return p.ident, nil
}

func (p *stubProvider) SignOut(ctx context.Context, accessProof string) error { return nil }

func (p *stubProvider) SendCode(ctx context.Context, email string) error { return nil }

func (p *stubProvider) VerifyCode(ctx context.Context, email, code string) (identity.Session, error) {
	return p.SignIn(ctx, email, code)
}

type testEnv struct {
	server   *Server
	provider *stubProvider
	profiles profile.Store
	registry *session.Registry
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	provider := newStubProvider()
	profiles := profile.NewMemoryStore()

	deps := session.Deps{
		Provider: provider,
		Limiter:  ratelimit.NewLimiter(ratelimit.NewMemoryStore(100, time.Hour), ratelimit.DefaultPolicy(), logger, nil),
		Profiles: profiles,
		Admins:   account.NewStaticAdminList(nil, logger),
		Logger:   logger,
	}
	registry := session.NewRegistry(deps, session.DefaultConfig(), 100, time.Hour, credential.NewEphemeralTier(100, time.Hour), nil)
	t.Cleanup(registry.Close)

	entitlements := entitlement.NewService(
		entitlement.NewMemoryStore(),
		payment.NewTokenVerifier(testPaymentSecret),
		entitlement.DefaultDuration,
		logger,
		nil,
	)

	server := NewServer(registry, entitlements, profiles, nil, logger, nil, Options{
		ProofSecret: testProofSecret,
	})

	return &testEnv{
		server:   server,
		provider: provider,
		profiles: profiles,
		registry: registry,
	}
}

// do runs a request through the server, attaching the context cookie and
// bearer proof when given.
func (e *testEnv) do(t *testing.T, method, path string, body interface{}, cookie *http.Cookie, proof string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	if proof != "" {
		req.Header.Set("Authorization", "Bearer "+proof)
	}

	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

// contextCookie extracts the browsing-context cookie from a response.
func contextCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "prepgate_ctx" {
			return c
		}
	}
	t.Fatal("no browsing-context cookie in response")
	return nil
}

func signTestProof(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID,
		"email": "dev@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(testProofSecret)
	if err != nil {
		t.Fatalf("sign proof: %v", err)
	}
	return signed
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}
