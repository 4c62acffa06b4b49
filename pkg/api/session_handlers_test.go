package api

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGetSession_NewVisitorIsAnonymous(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodGet, "/v1/session", nil, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var snap SessionSnapshot
	decodeJSON(t, rec, &snap)
	if snap.State != "anonymous" {
		t.Fatalf("state = %q, want anonymous", snap.State)
	}
	contextCookie(t, rec)
}

func TestGetSession_AfterLoginIsAuthenticated(t *testing.T) {
	env := newTestServer(t)

	login := env.do(t, http.MethodPost, "/v1/auth/login", map[string]interface{}{
		"email": "dev@example.com", "password": "hunter2",
	}, nil, "")
	cookie := contextCookie(t, login)

	rec := env.do(t, http.MethodGet, "/v1/session", nil, cookie, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var snap SessionSnapshot
	decodeJSON(t, rec, &snap)
	if snap.State != "authenticated" {
		t.Fatalf("state = %q, want authenticated", snap.State)
	}
	if snap.ExpiresAt == nil {
		t.Fatal("expected expires_at on an authenticated snapshot")
	}
}

func TestGetSession_DistinctContextsAreIsolated(t *testing.T) {
	env := newTestServer(t)

	login := env.do(t, http.MethodPost, "/v1/auth/login", map[string]interface{}{
		"email": "dev@example.com", "password": "hunter2",
	}, nil, "")
	contextCookie(t, login)

	// A request without the cookie is a different browsing context.
	rec := env.do(t, http.MethodGet, "/v1/session", nil, nil, "")
	var snap SessionSnapshot
	decodeJSON(t, rec, &snap)
	if snap.State != "anonymous" {
		t.Fatalf("state = %q, want anonymous for a fresh context", snap.State)
	}
}

func TestResume_NoSessionIsNoop(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodPost, "/v1/session/resume", nil, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestWatch_StreamsSnapshots(t *testing.T) {
	env := newTestServer(t)

	login := env.do(t, http.MethodPost, "/v1/auth/login", map[string]interface{}{
		"email": "dev@example.com", "password": "hunter2",
	}, nil, "")
	cookie := contextCookie(t, login)

	// The SSE handler needs a real connection it can flush to.
	srv := httptest.NewServer(env.server)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/session/watch", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.AddCookie(cookie)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("watch request: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	type line struct {
		text string
		err  error
	}
	lines := make(chan line, 8)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- line{text: scanner.Text()}
		}
		lines <- line{err: scanner.Err()}
	}()

	// The stream opens with the current (authenticated) snapshot.
	deadline := time.After(3 * time.Second)
	for {
		select {
		case l := <-lines:
			if l.err != nil {
				t.Fatalf("stream read: %v", l.err)
			}
			if strings.HasPrefix(l.text, "data: ") && strings.Contains(l.text, `"authenticated"`) {
				return
			}
		case <-deadline:
			t.Fatal("no authenticated snapshot on the stream")
		}
	}
}
