package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vuraweg/prepgate/pkg/contextkeys"
	"github.com/vuraweg/prepgate/pkg/httputil"
	"github.com/vuraweg/prepgate/pkg/middleware"
	"github.com/vuraweg/prepgate/pkg/observability"
	"github.com/vuraweg/prepgate/pkg/session"
)

// AuthHandlers handles the sign-in channels: password, one-time code,
// and the OAuth redirect pair.
type AuthHandlers struct {
	sessions *session.Registry
	browsing *middleware.BrowsingContext
	logger   *observability.Logger
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(sessions *session.Registry, browsing *middleware.BrowsingContext, logger *observability.Logger) *AuthHandlers {
	return &AuthHandlers{
		sessions: sessions,
		browsing: browsing,
		logger:   logger.WithComponent("auth_handlers"),
	}
}

// remember reissues the context cookie so the browsing context's
// persistence matches the user's remember choice.
func (h *AuthHandlers) remember(w http.ResponseWriter, r *http.Request, remember bool) {
	h.browsing.SetPersistence(w, contextkeys.GetBrowsingContext(r.Context()), remember)
}

// RegisterRoutes registers authentication routes on the /auth subrouter
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/login", h.login).Methods("POST")
	router.HandleFunc("/signup", h.signup).Methods("POST")
	router.HandleFunc("/otp/send", h.sendCode).Methods("POST")
	router.HandleFunc("/otp/verify", h.verifyCode).Methods("POST")
	router.HandleFunc("/oauth/start", h.oauthStart).Methods("GET")
	router.HandleFunc("/oauth/callback", h.oauthCallback).Methods("GET")
	router.HandleFunc("/refresh", h.refresh).Methods("POST")
	router.HandleFunc("/logout", h.logout).Methods("POST")
}

func (h *AuthHandlers) manager(r *http.Request) *session.Manager {
	return h.sessions.GetOrCreate(contextkeys.GetBrowsingContext(r.Context()))
}

// login handles POST /v1/auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Remember bool   `json:"remember"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteValidationError(w, "email and password are required")
		return
	}

	snap, err := h.manager(r).Login(r.Context(), req.Email, req.Password, req.Remember)
	if err != nil {
		writeIdentityError(w, err)
		return
	}
	h.remember(w, r, req.Remember)
	httputil.WriteSuccess(w, sessionResponse(snap))
}

// signup handles POST /v1/auth/signup
func (h *AuthHandlers) signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
		Remember    bool   `json:"remember"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteValidationError(w, "email and password are required")
		return
	}

	snap, err := h.manager(r).SignUp(r.Context(), req.Email, req.Password, req.DisplayName, req.Remember)
	if err != nil {
		writeIdentityError(w, err)
		return
	}
	h.remember(w, r, req.Remember)
	httputil.WriteJSON(w, http.StatusCreated, sessionResponse(snap))
}

// sendCode handles POST /v1/auth/otp/send
func (h *AuthHandlers) sendCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.WriteValidationError(w, "email is required")
		return
	}

	if err := h.manager(r).SendCode(r.Context(), req.Email); err != nil {
		writeIdentityError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// verifyCode handles POST /v1/auth/otp/verify
func (h *AuthHandlers) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Code     string `json:"code"`
		Remember bool   `json:"remember"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" || req.Code == "" {
		httputil.WriteValidationError(w, "email and code are required")
		return
	}

	snap, err := h.manager(r).LoginWithCode(r.Context(), req.Email, req.Code, req.Remember)
	if err != nil {
		writeIdentityError(w, err)
		return
	}
	h.remember(w, r, req.Remember)
	httputil.WriteSuccess(w, sessionResponse(snap))
}

// oauthStart handles GET /v1/auth/oauth/start
func (h *AuthHandlers) oauthStart(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		httputil.WriteValidationError(w, "state is required")
		return
	}

	url, err := h.manager(r).OAuthURL(state)
	if err != nil {
		writeIdentityError(w, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// oauthCallback handles GET /v1/auth/oauth/callback
func (h *AuthHandlers) oauthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		httputil.WriteValidationError(w, "code is required")
		return
	}
	remember := r.URL.Query().Get("remember") == "true"

	snap, err := h.manager(r).CompleteOAuth(r.Context(), code, remember)
	if err != nil {
		writeIdentityError(w, err)
		return
	}
	h.remember(w, r, remember)
	httputil.WriteSuccess(w, sessionResponse(snap))
}

// refresh handles POST /v1/auth/refresh
func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := h.manager(r).Refresh(r.Context())
	if err != nil {
		writeIdentityError(w, err)
		return
	}
	httputil.WriteSuccess(w, sessionResponse(snap))
}

// logout handles POST /v1/auth/logout. Always succeeds: provider
// failures are logged inside the manager and local state is cleared.
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	snap := h.manager(r).SignOut(r.Context())
	httputil.WriteSuccess(w, sessionResponse(snap))
}
