package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vuraweg/prepgate/pkg/account"
	"github.com/vuraweg/prepgate/pkg/contextkeys"
	"github.com/vuraweg/prepgate/pkg/httputil"
	"github.com/vuraweg/prepgate/pkg/observability"
	"github.com/vuraweg/prepgate/pkg/session"
)

// SessionSnapshot is the wire form of a session state snapshot.
type SessionSnapshot struct {
	State     string           `json:"state"`
	Profile   *account.Profile `json:"profile,omitempty"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
}

func sessionResponse(snap session.Snapshot) SessionSnapshot {
	out := SessionSnapshot{
		State:   snap.State.String(),
		Profile: snap.Profile,
	}
	if !snap.ExpiresAt.IsZero() {
		t := snap.ExpiresAt
		out.ExpiresAt = &t
	}
	return out
}

// SessionHandlers exposes the session lifecycle: resolve on load, resume
// on visibility, and a server-sent event stream of state changes.
type SessionHandlers struct {
	sessions *session.Registry
	logger   *observability.Logger
}

// NewSessionHandlers creates a new session handlers instance
func NewSessionHandlers(sessions *session.Registry, logger *observability.Logger) *SessionHandlers {
	return &SessionHandlers{
		sessions: sessions,
		logger:   logger.WithComponent("session_handlers"),
	}
}

// RegisterRoutes registers session routes
func (h *SessionHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/session", h.getSession).Methods("GET")
	router.HandleFunc("/session/resume", h.resume).Methods("POST")
	router.HandleFunc("/session/watch", h.watch).Methods("GET")
}

func (h *SessionHandlers) manager(r *http.Request) *session.Manager {
	return h.sessions.GetOrCreate(contextkeys.GetBrowsingContext(r.Context()))
}

// getSession handles GET /v1/session. The first call for a browsing
// context runs initialization (bounded by its deadline); later calls
// return the current snapshot.
func (h *SessionHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	snap := h.manager(r).Initialize(r.Context())
	httputil.WriteSuccess(w, sessionResponse(snap))
}

// resume handles POST /v1/session/resume, the foreground-visibility
// re-validation hook.
func (h *SessionHandlers) resume(w http.ResponseWriter, r *http.Request) {
	snap, err := h.manager(r).Resume(r.Context())
	if err != nil {
		writeIdentityError(w, err)
		return
	}
	httputil.WriteSuccess(w, sessionResponse(snap))
}

// watch handles GET /v1/session/watch: a server-sent event stream of
// session snapshots, opening with the current state. The connection
// lives until the client disconnects or the manager closes.
func (h *SessionHandlers) watch(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	mgr := h.manager(r)
	updates, cancel := mgr.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, sessionResponse(mgr.Current())); err != nil {
		return
	}
	flusher.Flush()

	// Heartbeats keep intermediaries from reaping idle streams.
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, sessionResponse(snap)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, snap SessionSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: session\ndata: %s\n\n", payload)
	return err
}
