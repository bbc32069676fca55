package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/roadline-tms/roadline-tms/internal/audit"
	"github.com/roadline-tms/roadline-tms/internal/auth"
	"github.com/roadline-tms/roadline-tms/internal/rbac"
	"github.com/roadline-tms/roadline-tms/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	AuthHandler    *auth.Handler
	RBACHandler    *rbac.Handler
	UsersHandler   *users.Handler
	AuditHandler   *audit.Handler
	AuthMiddleware func(http.Handler) http.Handler
}

// NewRouter constructs the chi.Router with Roadline defaults. Everything
// except login and the health probe sits behind the identity middleware, and
// each admin surface adds its own permission gate.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(params.AuthMiddleware)
		r.Route("/permissions", params.RBACHandler.MountPermissionRoutes)
		r.Route("/roles", params.RBACHandler.MountRoleRoutes)
		r.Route("/admin/users", params.UsersHandler.MountRoutes)
		r.Route("/audit-logs", params.AuditHandler.MountRoutes)
	})

	return r
}
