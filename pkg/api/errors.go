package api

import (
	"errors"
	"net/http"

	"github.com/vuraweg/prepgate/pkg/httputil"
	"github.com/vuraweg/prepgate/pkg/identity"
)

// writeIdentityError maps the provider error taxonomy to HTTP statuses.
// The classification already happened at the provider boundary; this is
// the single place codes become statuses.
func writeIdentityError(w http.ResponseWriter, err error) {
	var idErr *identity.Error
	if !errors.As(err, &idErr) {
		httputil.WriteInternalError(w, err)
		return
	}

	switch idErr.Code {
	case identity.CodeRateLimited:
		httputil.WriteRateLimited(w, idErr.RetryAfter.Milliseconds(), idErr.Message)
	case identity.CodeInvalidCredentials, identity.CodeSessionExpired, identity.CodeRefreshFailed:
		httputil.WriteCodedError(w, http.StatusUnauthorized, string(idErr.Code), idErr.Message)
	case identity.CodeIdentifierNotFound:
		httputil.WriteCodedError(w, http.StatusNotFound, string(idErr.Code), idErr.Message)
	case identity.CodeNetwork:
		httputil.WriteCodedError(w, http.StatusGatewayTimeout, string(idErr.Code), idErr.Message)
	case identity.CodeProviderConfig:
		httputil.WriteCodedError(w, http.StatusBadGateway, string(idErr.Code), idErr.Message)
	default:
		httputil.WriteCodedError(w, http.StatusInternalServerError, string(idErr.Code), idErr.Message)
	}
}
