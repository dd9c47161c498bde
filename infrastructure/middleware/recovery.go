// Package middleware provides HTTP middleware for the service.
package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	apierrors "github.com/skyport-ops/soc-backend/infrastructure/errors"
	"github.com/skyport-ops/soc-backend/pkg/logger"
)

// RecoveryMiddleware recovers from panics, logs them with a stack
// trace, and responds with the spec §6.1 error envelope instead of
// letting net/http close the connection bare.
type RecoveryMiddleware struct {
	logger *logger.Logger
}

func NewRecoveryMiddleware(log *logger.Logger) *RecoveryMiddleware {
	return &RecoveryMiddleware{logger: log}
}

func (m *RecoveryMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				stack := debug.Stack()
				m.logger.WithFields(map[string]interface{}{
					"panic":       fmt.Sprintf("%v", rec),
					"stack":       string(stack),
					"path":        r.URL.Path,
					"method":      r.Method,
					"remote_addr": r.RemoteAddr,
				}).Error("panic recovered")

				serviceErr := apierrors.Internal("internal server error", fmt.Errorf("%v", rec))
				writeErrorResponse(w, serviceErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// writeErrorResponse writes the {error:{code,message,details?}} envelope
// (spec §6.1). It produces the same body shape as httpapi's own
// writeError, so a panic and a handler-raised ServiceError look
// identical on the wire.
func writeErrorResponse(w http.ResponseWriter, serviceErr *apierrors.ServiceError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(serviceErr.HTTPStatus)

	body := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    serviceErr.WireCode(),
			"message": serviceErr.Message,
		},
	}
	if len(serviceErr.Details) > 0 {
		body["error"].(map[string]interface{})["details"] = serviceErr.Details
	}
	_ = json.NewEncoder(w).Encode(body)
}
