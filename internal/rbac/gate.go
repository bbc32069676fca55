package rbac

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/roadline-tms/roadline-tms/internal/platform/httpx"
	"github.com/roadline-tms/roadline-tms/internal/shared"
)

// Authorize is the authorization gate: it allows the request iff the required
// key is a member of the principal's resolved permission set. It is a pure
// check with no storage access, so per-request permission resolution stays an
// explicit, swappable policy upstream.
func Authorize(principal shared.Principal, required string) error {
	if !principal.Has(required) {
		return fmt.Errorf("%w: missing permission %s", httpx.ErrForbidden, required)
	}
	return nil
}

// Gate attaches the authorization check ahead of HTTP handlers. It consumes
// the principal already resolved into the request context and never touches
// storage itself.
type Gate struct {
	Logger *slog.Logger
}

// Require denies the request unless the resolved principal holds permission.
func (g Gate) Require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if err := Authorize(principal, permission); err != nil {
				if g.Logger != nil {
					g.Logger.Warn("authorization denied",
						slog.Int64("user_id", principal.UserID),
						slog.String("permission", permission),
						slog.String("path", r.URL.Path))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
