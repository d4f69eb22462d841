package middleware

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyMiddleware guards the administrative progress reset route with the X-API-Key header.
//
// Keys are compared in constant time. With no key configured every request is refused, so the admin routes stay closed.
func APIKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	expected := []byte(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := []byte(r.Header.Get("X-API-Key"))
			if len(expected) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
