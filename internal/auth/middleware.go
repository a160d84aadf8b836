package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/tubita/tubita/internal/httputil"
)

type contextKey string

const tokenIDKey contextKey = "adminTokenID"

// RequireAdmin rejects requests without a valid admin bearer token.
func RequireAdmin(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.WriteError(w, http.StatusUnauthorized, "authorization header required")
				return
			}

			tokenStr, found := strings.CutPrefix(authHeader, "Bearer ")
			if !found {
				httputil.WriteError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			claims, err := ValidateToken(secret, tokenStr)
			if err != nil {
				httputil.WriteError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if claims.TokenType != TokenTypeAdmin {
				httputil.WriteError(w, http.StatusUnauthorized, "invalid token type")
				return
			}

			ctx := context.WithValue(r.Context(), tokenIDKey, claims.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenIDFromContext returns the id of the admin token that authorized the
// request, for audit logging.
func TokenIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(tokenIDKey).(string)
	return id
}
