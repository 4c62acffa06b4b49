package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vuraweg/prepgate/pkg/contextkeys"
)

// ContextCookieName identifies the browsing context across requests.
const ContextCookieName = "prepgate_ctx"

// BrowsingContext reads or issues the browsing-context cookie. Every
// request ends up with a context ID: new visitors get a fresh UUID,
// returning visitors keep theirs, so session state stays tied to one
// browser surface.
type BrowsingContext struct {
	// TTL is the cookie lifetime applied by SetPersistence when the
	// user asked to be remembered. First issue is always a session
	// cookie that dies with the browser.
	TTL time.Duration

	// Secure marks the cookie HTTPS-only; disabled for local development.
	Secure bool
}

// Handler wraps an HTTP handler with browsing-context resolution
func (m *BrowsingContext) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(ContextCookieName); err == nil && c.Value != "" {
			if _, err := uuid.Parse(c.Value); err == nil {
				id = c.Value
			}
		}

		if id == "" {
			id = uuid.New().String()
			http.SetCookie(w, m.cookie(id, false))
		}

		ctx := contextkeys.WithBrowsingContext(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetPersistence reissues the context cookie after authentication.
// Remembered sign-ins get a cookie that survives browser restarts;
// otherwise the context stays a session cookie.
func (m *BrowsingContext) SetPersistence(w http.ResponseWriter, contextID string, remember bool) {
	http.SetCookie(w, m.cookie(contextID, remember))
}

func (m *BrowsingContext) cookie(id string, remember bool) *http.Cookie {
	c := &http.Cookie{
		Name:     ContextCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if remember && m.TTL > 0 {
		c.MaxAge = int(m.TTL.Seconds())
	}
	return c
}
