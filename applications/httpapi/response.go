// Package httpapi implements the HTTP surface described in spec §6.1:
// SSE push, cursored event history, and the incident/ticket write
// endpoints.
package httpapi

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/skyport-ops/soc-backend/infrastructure/errors"
)

// writeJSON writes v as the response body with status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the {error:{code,message,details?}} envelope
// (spec §6.1). A plain (non-ServiceError) error is treated as internal.
func writeError(w http.ResponseWriter, err error) {
	serviceErr := apierrors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = apierrors.Internal("internal server error", err)
	}

	body := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    serviceErr.WireCode(),
			"message": serviceErr.Message,
		},
	}
	if len(serviceErr.Details) > 0 {
		body["error"].(map[string]interface{})["details"] = serviceErr.Details
	}
	writeJSON(w, serviceErr.HTTPStatus, body)
}

// writeBadRequest writes a plain HTTP-level 400, for malformed request
// bodies and path params — distinct from the 422 ValidationError kind,
// which is for well-formed-but-invalid domain input (spec §6.1).
func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    apierrors.WireHTTP,
			"message": message,
		},
	})
}
