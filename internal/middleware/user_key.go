package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/finquiz/backend/internal/auth"
)

const userKeyHolderKey contextKey = "userKeyHolder"

// userKeyHolder lets outer middleware (request logging) see the key resolved further down the chain
type userKeyHolder struct {
	userKey string
}

func withUserKeyHolder(ctx context.Context, holder *userKeyHolder) context.Context {
	return context.WithValue(ctx, userKeyHolderKey, holder)
}

// WithUserKey returns a copy of ctx carrying a trusted user key
func WithUserKey(ctx context.Context, userKey string) context.Context {
	if holder, ok := ctx.Value(userKeyHolderKey).(*userKeyHolder); ok {
		holder.userKey = userKey
	}
	return context.WithValue(ctx, userKeyKey, userKey)
}

// GetUserKey retrieves the trusted user key from context
func GetUserKey(ctx context.Context) (string, bool) {
	userKey, ok := ctx.Value(userKeyKey).(string)
	return userKey, ok && userKey != ""
}

// resolvedUserKey returns the user key known for the request, including one resolved further down the chain
func resolvedUserKey(ctx context.Context) string {
	if userKey, ok := GetUserKey(ctx); ok {
		return userKey
	}
	if holder, ok := ctx.Value(userKeyHolderKey).(*userKeyHolder); ok {
		return holder.userKey
	}
	return ""
}

// JWTUserKeyMiddleware validates the access token and stores the user key it carries in the context
//
// The token is read from the "Authorization: Bearer" header first, then from the "access_token" cookie.
func JWTUserKeyMiddleware(validator *auth.TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string

			authHeader := r.Header.Get("Authorization")
			if authHeader != "" {
				// Expected format: "Bearer <token>"
				parts := strings.Split(authHeader, " ")
				if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
					token = parts[1]
				}
			}

			if token == "" {
				if cookie, err := r.Cookie("access_token"); err == nil {
					token = cookie.Value
				}
			}

			if token == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			userKey, err := validator.UserKey(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserKey(r.Context(), userKey)))
		})
	}
}

// HeaderUserKeyMiddleware trusts the X-Username header set by an upstream session layer
func HeaderUserKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userKey := strings.TrimSpace(r.Header.Get("X-Username"))
		if userKey == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserKey(r.Context(), userKey)))
	})
}
