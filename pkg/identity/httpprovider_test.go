package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestProvider(t *testing.T, handler http.Handler) (*HTTPProvider, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewHTTPProvider(HTTPConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
	}, newTestLogger(), nil)
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	return provider, server
}

func writeSession(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(map[string]any{
		"access_token":  "access-abc",
		"refresh_token": "refresh-def",
		"expires_in":    3600,
		"user": map[string]any{
			"id":                 "user-1",
			"email":              "user@x.com",
			"email_confirmed_at": "2025-01-01T00:00:00Z",
			"user_metadata":      map[string]any{"full_name": "Alice"},
		},
	})
}

func TestSignIn_Success(t *testing.T) {
	provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL)
		}
		if r.Header.Get("apikey") != "test-key" {
			t.Error("Expected apikey header on every request")
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "user@x.com" || body["password"] != "hunter2" {
			t.Errorf("Unexpected credentials in body: %v", body)
		}
		writeSession(w)
	}))

	before := time.Now()
	sess, err := provider.SignIn(context.Background(), "user@x.com", "hunter2")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	if sess.Credential.AccessProof != "access-abc" || sess.Credential.RefreshProof != "refresh-def" {
		t.Errorf("Unexpected proofs: %+v", sess.Credential)
	}
	if sess.Credential.UserID != "user-1" {
		t.Errorf("Expected user ID from provider, got %q", sess.Credential.UserID)
	}
	if got := sess.Credential.ExpiresAt.Sub(before); got < 59*time.Minute || got > 61*time.Minute {
		t.Errorf("ExpiresAt should be ~1h out, got %v", got)
	}
	if sess.Identity.DisplayName != "Alice" || !sess.Identity.EmailVerified {
		t.Errorf("Unexpected identity record: %+v", sess.Identity)
	}
}

func TestSignIn_InvalidCredentials(t *testing.T) {
	provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "Invalid login credentials",
		})
	}))

	_, err := provider.SignIn(context.Background(), "user@x.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSignIn_RateLimitedCarriesRetryAfter(t *testing.T) {
	provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "42")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"msg": "over quota"})
	}))

	_, err := provider.SignIn(context.Background(), "user@x.com", "hunter2")

	var e *Error
	if !errors.As(err, &e) || e.Code != CodeRateLimited {
		t.Fatalf("Expected rate-limited classification, got %v", err)
	}
	if e.RetryAfter != 42*time.Second {
		t.Errorf("Expected RetryAfter from header, got %v", e.RetryAfter)
	}
}

func TestSignUp_Disabled(t *testing.T) {
	provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"msg": "Signups not allowed for this instance"})
	}))

	_, err := provider.SignUp(context.Background(), "new@x.com", "hunter2", "New User")
	if !errors.Is(err, ErrProviderConfig) {
		t.Errorf("Expected ErrProviderConfig for disabled signups, got %v", err)
	}
}

func TestRefresh_AnyFailureClassifiesAsRefreshFailed(t *testing.T) {
	// Even a transient 503 must come back as RefreshFailed so the session
	// manager tears down instead of leaving a stale authenticated state.
	provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := provider.Refresh(context.Background(), "refresh-def")
	if !errors.Is(err, ErrRefreshFailed) {
		t.Errorf("Expected ErrRefreshFailed, got %v", err)
	}
	// The underlying network classification stays reachable for logs.
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("Expected the network cause to remain wrapped, got %v", err)
	}
}

func TestRefresh_Success(t *testing.T) {
	provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["refresh_token"] != "refresh-def" {
			t.Errorf("Expected refresh proof in body, got %v", body)
		}
		writeSession(w)
	}))

	rec, err := provider.Refresh(context.Background(), "refresh-def")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if rec.AccessProof != "access-abc" {
		t.Errorf("Unexpected refreshed record: %+v", rec)
	}
}

func TestUser_SendsBearer(t *testing.T) {
	provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-abc" {
			t.Errorf("Expected bearer header, got %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "user-1", "email": "user@x.com"})
	}))

	rec, err := provider.User(context.Background(), "access-abc")
	if err != nil {
		t.Fatalf("User failed: %v", err)
	}
	if rec.ID != "user-1" {
		t.Errorf("Unexpected record: %+v", rec)
	}
}

func TestUser_ExpiredProof(t *testing.T) {
	provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := provider.User(context.Background(), "stale")
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Expected ErrSessionExpired for 401, got %v", err)
	}
}

func TestDo_NetworkErrorClassification(t *testing.T) {
	provider, server := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := provider.SignIn(context.Background(), "user@x.com", "hunter2")
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("Expected ErrNetwork for a dead server, got %v", err)
	}
}

func TestSendAndVerifyCode(t *testing.T) {
	var otpCalled bool
	provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/otp":
			otpCalled = true
			w.WriteHeader(http.StatusOK)
		case "/verify":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["token"] != "123456" || body["email"] != "user@x.com" {
				t.Errorf("Unexpected verify body: %v", body)
			}
			writeSession(w)
		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
	}))

	if err := provider.SendCode(context.Background(), "user@x.com"); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}
	if !otpCalled {
		t.Fatal("Expected the otp endpoint to be called")
	}

	sess, err := provider.VerifyCode(context.Background(), "user@x.com", "123456")
	if err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}
	if sess.Identity.Email != "user@x.com" {
		t.Errorf("Unexpected session identity: %+v", sess.Identity)
	}
}
