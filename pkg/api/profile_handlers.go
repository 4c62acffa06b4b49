package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/vuraweg/prepgate/pkg/avatars"
	"github.com/vuraweg/prepgate/pkg/contextkeys"
	"github.com/vuraweg/prepgate/pkg/httputil"
	"github.com/vuraweg/prepgate/pkg/observability"
	"github.com/vuraweg/prepgate/pkg/profile"
	"github.com/vuraweg/prepgate/pkg/session"
)

// ProfileHandlers serves the reconciled profile, portal profile edits,
// and the avatar object routes. Sits behind the bearer middleware.
type ProfileHandlers struct {
	sessions *session.Registry
	profiles profile.Store
	avatars  *avatars.Store
	logger   *observability.Logger
}

// NewProfileHandlers creates a new profile handlers instance. avatarStore
// may be nil; the avatar routes then answer 404.
func NewProfileHandlers(sessions *session.Registry, profiles profile.Store, avatarStore *avatars.Store, logger *observability.Logger) *ProfileHandlers {
	return &ProfileHandlers{
		sessions: sessions,
		profiles: profiles,
		avatars:  avatarStore,
		logger:   logger.WithComponent("profile_handlers"),
	}
}

// RegisterRoutes registers profile routes on the bearer subrouter
func (h *ProfileHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("", h.getProfile).Methods("GET")
	router.HandleFunc("", h.updateProfile).Methods("PUT")
	router.HandleFunc("/avatar", h.uploadAvatar).Methods("POST")
	router.HandleFunc("/avatar", h.serveAvatar).Methods("GET")
}

// getProfile handles GET /v1/profile: the reconciled profile held by the
// browsing context's session.
func (h *ProfileHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	mgr := h.sessions.GetOrCreate(contextkeys.GetBrowsingContext(r.Context()))
	snap := mgr.Current()
	if snap.Profile == nil {
		httputil.WriteNotFoundError(w, "no authenticated session for this browsing context")
		return
	}
	httputil.WriteSuccess(w, snap.Profile)
}

// updateProfile handles PUT /v1/profile: the portal-side profile the
// user configures, which wins reconciliation precedence next sign-in.
func (h *ProfileHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"display_name"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		httputil.WriteValidationError(w, "display_name is required")
		return
	}

	userID := contextkeys.GetUserID(r.Context())

	// Preserve the avatar key across display-name edits.
	stored, err := h.profiles.Get(r.Context(), userID)
	if err != nil && !errors.Is(err, profile.ErrNotFound) {
		httputil.WriteInternalError(w, err)
		return
	}
	stored.UserID = userID
	stored.DisplayName = strings.TrimSpace(req.DisplayName)

	if err := h.profiles.Upsert(r.Context(), stored); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, stored)
}

// uploadAvatar handles POST /v1/profile/avatar: the raw image body goes
// to the object store, the resulting key onto the stored profile.
func (h *ProfileHandlers) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	if h.avatars == nil {
		httputil.WriteNotFoundError(w, "avatar storage is not configured")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		httputil.WriteValidationError(w, "avatar must be an image")
		return
	}

	userID := contextkeys.GetUserID(r.Context())
	key, err := h.avatars.Put(r.Context(), userID, contentType, r.Body)
	if err != nil {
		h.logger.WithError(err).Error("Avatar upload failed")
		httputil.WriteInternalError(w, err)
		return
	}

	stored, err := h.profiles.Get(r.Context(), userID)
	if err != nil && !errors.Is(err, profile.ErrNotFound) {
		httputil.WriteInternalError(w, err)
		return
	}
	stored.UserID = userID
	stored.AvatarKey = key
	if err := h.profiles.Upsert(r.Context(), stored); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, map[string]string{
		"avatar_key": key,
		"avatar_url": h.avatars.URL(key),
	})
}

// serveAvatar handles GET /v1/profile/avatar: streams the caller's own
// avatar object.
func (h *ProfileHandlers) serveAvatar(w http.ResponseWriter, r *http.Request) {
	if h.avatars == nil {
		httputil.WriteNotFoundError(w, "avatar storage is not configured")
		return
	}

	userID := contextkeys.GetUserID(r.Context())
	stored, err := h.profiles.Get(r.Context(), userID)
	if err != nil || stored.AvatarKey == "" {
		httputil.WriteNotFoundError(w, "no avatar set")
		return
	}

	body, contentType, err := h.avatars.Get(r.Context(), stored.AvatarKey)
	if err != nil {
		httputil.WriteNotFoundError(w, "avatar object not found")
		return
	}
	defer body.Close()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WithError(err).Debug("Avatar stream interrupted")
	}
}
