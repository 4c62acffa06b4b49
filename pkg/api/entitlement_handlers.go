package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vuraweg/prepgate/pkg/contextkeys"
	"github.com/vuraweg/prepgate/pkg/entitlement"
	"github.com/vuraweg/prepgate/pkg/httputil"
	"github.com/vuraweg/prepgate/pkg/payment"
)

// EntitlementHandlers serves grant creation and entitlement checks. All
// routes sit behind the bearer middleware, so the user ID is always in
// the request context.
type EntitlementHandlers struct {
	service *entitlement.Service
}

// NewEntitlementHandlers creates a new entitlement handlers instance
func NewEntitlementHandlers(service *entitlement.Service) *EntitlementHandlers {
	return &EntitlementHandlers{service: service}
}

// RegisterRoutes registers entitlement routes on the bearer subrouter
func (h *EntitlementHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("", h.createGrant).Methods("POST")
	router.HandleFunc("/{resourceID}", h.check).Methods("GET")
	router.HandleFunc("/{resourceID}/remaining", h.remaining).Methods("GET")
}

// createGrant handles POST /v1/entitlements
func (h *EntitlementHandlers) createGrant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ResourceID string               `json:"resource_id"`
		DurationMS int64                `json:"duration_ms"`
		Payment    payment.Confirmation `json:"payment"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.ResourceID == "" {
		httputil.WriteValidationError(w, "resource_id is required")
		return
	}

	userID := contextkeys.GetUserID(r.Context())
	grant, err := h.service.Create(r.Context(), userID, req.ResourceID, time.Duration(req.DurationMS)*time.Millisecond, req.Payment)
	if err != nil {
		// Creation failures are the caller's payment payload or the
		// store; the payload case dominates.
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	httputil.WriteCreated(w, grant)
}

// check handles GET /v1/entitlements/{resourceID}
func (h *EntitlementHandlers) check(w http.ResponseWriter, r *http.Request) {
	resourceID, ok := httputil.ParsePathStringOrError(w, r, "resourceID")
	if !ok {
		return
	}

	userID := contextkeys.GetUserID(r.Context())
	verdict, err := h.service.Check(r.Context(), userID, resourceID)
	if err != nil {
		// Fail closed: an unreadable grant store reads as denied, and
		// the caller learns it was an outage rather than an expiry.
		httputil.WriteCodedError(w, http.StatusServiceUnavailable, "store_unavailable", "entitlement check unavailable")
		return
	}
	httputil.WriteSuccess(w, verdictResponse(verdict))
}

// remaining handles GET /v1/entitlements/{resourceID}/remaining
func (h *EntitlementHandlers) remaining(w http.ResponseWriter, r *http.Request) {
	resourceID, ok := httputil.ParsePathStringOrError(w, r, "resourceID")
	if !ok {
		return
	}

	userID := contextkeys.GetUserID(r.Context())
	left, valid := h.service.Remaining(r.Context(), userID, resourceID)
	httputil.WriteSuccess(w, map[string]interface{}{
		"valid":        valid,
		"remaining_ms": left.Milliseconds(),
	})
}

type verdictPayload struct {
	Valid       bool               `json:"valid"`
	Grant       *entitlement.Grant `json:"grant,omitempty"`
	RemainingMS int64              `json:"remaining_ms"`
}

func verdictResponse(v entitlement.Verdict) verdictPayload {
	return verdictPayload{
		Valid:       v.Valid,
		Grant:       v.Grant,
		RemainingMS: v.Remaining.Milliseconds(),
	}
}
