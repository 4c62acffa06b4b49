package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vuraweg/prepgate/pkg/avatars"
	"github.com/vuraweg/prepgate/pkg/entitlement"
	"github.com/vuraweg/prepgate/pkg/httputil"
	"github.com/vuraweg/prepgate/pkg/middleware"
	"github.com/vuraweg/prepgate/pkg/observability"
	"github.com/vuraweg/prepgate/pkg/profile"
	"github.com/vuraweg/prepgate/pkg/session"
)

// Options configures the API server.
type Options struct {
	// ProofSecret verifies bearer proofs on entitlement/profile routes.
	ProofSecret []byte

	// CORSOrigins are the portal origins allowed to call the API.
	CORSOrigins []string

	// MaxBodyBytes caps request bodies. Zero selects 1 MiB.
	MaxBodyBytes int64

	// RequestTimeout bounds each non-streaming request. Zero selects 30s.
	RequestTimeout time.Duration

	// ContextCookieTTL is the browsing-context cookie lifetime.
	ContextCookieTTL time.Duration

	// SecureCookies marks the context cookie HTTPS-only.
	SecureCookies bool
}

// Server is the portal-facing API: auth and session operations keyed by
// the browsing-context cookie, entitlement and profile operations keyed
// by a bearer proof.
type Server struct {
	router       *mux.Router
	sessions     *session.Registry
	entitlements *entitlement.Service
	profiles     profile.Store
	avatars      *avatars.Store
	logger       *observability.Logger
	metrics      *observability.Metrics
	opts         Options
}

// NewServer creates the API server. avatarStore may be nil when no
// bucket is configured; the avatar routes then answer 404.
func NewServer(sessions *session.Registry, entitlements *entitlement.Service, profiles profile.Store, avatarStore *avatars.Store, logger *observability.Logger, metrics *observability.Metrics, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	s := &Server{
		router:       mux.NewRouter(),
		sessions:     sessions,
		entitlements: entitlements,
		profiles:     profiles,
		avatars:      avatarStore,
		logger:       logger.WithComponent("api"),
		metrics:      metrics,
		opts:         opts,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures the middleware chain and all the API routes
func (s *Server) setupRoutes() {
	browsing := &middleware.BrowsingContext{
		TTL:    s.opts.ContextCookieTTL,
		Secure: s.opts.SecureCookies,
	}

	s.router.Use(
		httputil.RecoveryMiddleware,
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware,
		httputil.CORSMiddleware(s.opts.CORSOrigins),
		browsing.Handler,
	)
	if s.metrics != nil {
		s.router.Use(middleware.Metrics(s.metrics))
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(httputil.MaxBytesMiddleware(s.opts.MaxBodyBytes))

	authed := v1.PathPrefix("/auth").Subrouter()
	authed.Use(httputil.TimeoutMiddleware(s.opts.RequestTimeout))
	NewAuthHandlers(s.sessions, browsing, s.logger).RegisterRoutes(authed)

	// The SSE watch route holds its connection open, so the session
	// subtree is the one place the request timeout does not apply.
	sessionHandlers := NewSessionHandlers(s.sessions, s.logger)
	sessionHandlers.RegisterRoutes(v1)

	bearer := middleware.NewBearerAuth(s.opts.ProofSecret, false)

	entitled := v1.PathPrefix("/entitlements").Subrouter()
	entitled.Use(bearer.Handler, httputil.TimeoutMiddleware(s.opts.RequestTimeout))
	NewEntitlementHandlers(s.entitlements).RegisterRoutes(entitled)

	profiled := v1.PathPrefix("/profile").Subrouter()
	profiled.Use(bearer.Handler, httputil.TimeoutMiddleware(s.opts.RequestTimeout))
	NewProfileHandlers(s.sessions, s.profiles, s.avatars, s.logger).RegisterRoutes(profiled)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router for extra route registration.
func (s *Server) Router() *mux.Router {
	return s.router
}
