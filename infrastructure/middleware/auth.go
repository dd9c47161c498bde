package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	apierrors "github.com/skyport-ops/soc-backend/infrastructure/errors"
)

// SharedSecretMiddleware gates the write endpoints behind a single
// shared bearer token (spec §6.5 A1's AUTH_SECRET), a far simpler
// scheme than service-to-service JWT auth since this console has no
// multi-tenant caller population to distinguish.
type SharedSecretMiddleware struct {
	secret    string
	skipPaths map[string]bool
}

func NewSharedSecretMiddleware(secret string, skipPaths ...string) *SharedSecretMiddleware {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return &SharedSecretMiddleware{secret: secret, skipPaths: skip}
}

func (m *SharedSecretMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.secret == "" || m.skipPaths[r.URL.Path] || r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(m.secret)) != 1 {
			serviceErr := apierrors.New(apierrors.ErrCodeValidation, "missing or invalid bearer token", http.StatusUnauthorized)
			writeErrorResponse(w, serviceErr)
			return
		}

		next.ServeHTTP(w, r)
	})
}
