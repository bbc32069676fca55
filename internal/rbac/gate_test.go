package rbac

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadline-tms/roadline-tms/internal/platform/httpx"
	"github.com/roadline-tms/roadline-tms/internal/shared"
)

func TestAuthorizeMembership(t *testing.T) {
	principal := shared.Principal{
		UserID: 1,
		Status: shared.StatusActive,
		Permissions: map[string]struct{}{
			"users.manage": {},
			"trips.view":   {},
		},
	}

	assert.NoError(t, Authorize(principal, "users.manage"))
	assert.NoError(t, Authorize(principal, "trips.view"))

	err := Authorize(principal, "audit.view")
	require.Error(t, err)
	assert.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestAuthorizeEmptySetDeniesEverything(t *testing.T) {
	principal := shared.Principal{UserID: 2, Status: shared.StatusInactive}
	assert.ErrorIs(t, Authorize(principal, "users.manage"), httpx.ErrForbidden)
	assert.ErrorIs(t, Authorize(principal, "trips.view"), httpx.ErrForbidden)
}

func TestGateRequire(t *testing.T) {
	gate := Gate{Logger: slog.Default()}
	handler := gate.Require(shared.PermUsersManage)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("no principal", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing permission", func(t *testing.T) {
		principal := shared.Principal{UserID: 5, Status: shared.StatusActive, Permissions: map[string]struct{}{"trips.view": {}}}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), principal))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("granted", func(t *testing.T) {
		principal := shared.Principal{UserID: 5, Status: shared.StatusActive, Permissions: map[string]struct{}{shared.PermUsersManage: {}}}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), principal))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("inactive principal has empty set", func(t *testing.T) {
		principal := shared.Principal{UserID: 6, Status: shared.StatusInactive}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), principal))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
