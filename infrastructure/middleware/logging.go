// Package middleware provides HTTP middleware for the service.
package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/skyport-ops/soc-backend/pkg/logger"
)

// RequestIDHeader is the header carrying the per-request identifier
// (spec §6.1: "every response carries X-Request-Id; inbound value
// echoed if present, else generated").
const RequestIDHeader = "X-Request-Id"

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware assigns/echoes X-Request-Id and logs each request
// with its method, path, status, and duration. Grounded on the trace-id
// propagation shape used elsewhere in this codebase's HTTP layer,
// renamed to the request-id terminology the SOC console's API uses.
func LoggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			w.Header().Set(RequestIDHeader, requestID)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			log.WithFields(map[string]interface{}{
				"request_id": requestID,
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     wrapped.statusCode,
				"duration":   time.Since(start).String(),
			}).Info("http request")
		})
	}
}
