package middleware

import (
	"context"
	"net/http"

	"github.com/sealchat/backend/internal/auth"
	"github.com/sealchat/backend/internal/logging"
)

// PrincipalValidator resolves an access token to a principal.
type PrincipalValidator interface {
	ValidatePrincipal(ctx context.Context, accessToken string) (auth.Principal, error)
}

// RequireSession guards a handler behind access-token cookie
// authentication. The resolved principal is attached to the request
// context exactly once and never mutated downstream.
func RequireSession(validator PrincipalValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.AccessTokenFromRequest(r)
			if token == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			principal, err := validator.ValidatePrincipal(r.Context(), token)
			if err != nil {
				logging.FromContext(r.Context()).Warn("session validation failed", "error", err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := auth.WithPrincipal(r.Context(), principal)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With("userId", principal.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
