package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/roadline-tms/roadline-tms/internal/platform/httpx"
	"github.com/roadline-tms/roadline-tms/internal/shared"
)

// PrincipalResolver turns a verified user id into the principal presented to
// the authorization gate.
type PrincipalResolver interface {
	Resolve(ctx context.Context, userID int64) (shared.Principal, error)
}

// Middleware verifies the request's bearer token and resolves the principal
// once per request. Downstream handlers and the authorization gate read the
// principal from the request context and never touch storage for it again.
func Middleware(logger *slog.Logger, service *Service, resolver PrincipalResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			userID, err := service.Verify(r.Context(), token)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			principal, err := resolver.Resolve(r.Context(), userID)
			if err != nil {
				if logger != nil {
					logger.Error("resolve principal", slog.Int64("user_id", userID), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			ctx := shared.ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
