package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/shopacc-api/internal/domain"
	jwtinfra "github.com/shopacc-api/internal/infrastructure/jwt"
	"github.com/shopacc-api/internal/pkg/logging"
	"go.uber.org/zap"
)

type contextKey string

const claimsKey contextKey = "claims"

// TokenVerifier parses and validates a bearer token.
type TokenVerifier interface {
	Verify(tokenStr string) (*jwtinfra.Claims, error)
}

// UserLookup loads the account a token was issued for.
type UserLookup interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

// Auth returns middleware that validates the Bearer JWT and injects claims
// into context. When users is set the role is reloaded from the account so a
// demoted owner loses access before the token expires.
func Auth(provider TokenVerifier, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid authorization header")
				return
			}
			claims, err := provider.Verify(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
				return
			}
			if users != nil {
				u, err := users.Get(r.Context(), claims.UserID)
				switch {
				case errors.Is(err, domain.ErrNotFound):
					writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "account no longer exists")
					return
				case err != nil:
					logging.FromContext(r.Context(), nil).Error("load token user", zap.String("user_id", claims.UserID), zap.Error(err))
					writeJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
					return
				}
				claims.Role = u.Role
			}
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext extracts JWT claims from the request context.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*jwtinfra.Claims)
	return c, ok
}
