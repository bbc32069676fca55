package audit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/roadline-tms/roadline-tms/internal/platform/httpx"
	"github.com/roadline-tms/roadline-tms/internal/shared"
)

// Handler exposes the audit trail query endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
	gate    func(permission string) func(http.Handler) http.Handler
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gate func(permission string) func(http.Handler) http.Handler) *Handler {
	return &Handler{logger: logger, service: service, gate: gate}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate(shared.PermUsersManage))
		r.Get("/", h.query)
	})
}

type queryResponse struct {
	Items      []Entry           `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	filters := QueryFilters{Action: r.URL.Query().Get("action")}
	if raw := r.URL.Query().Get("userId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, httpx.NewValidationError(httpx.FieldError{Field: "userId", Message: "must be an integer"}))
			return
		}
		filters.UserID = &id
	}
	filters.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	filters.PageSize, _ = strconv.Atoi(r.URL.Query().Get("pageSize"))

	entries, pagination, err := h.service.Query(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit query", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	httpx.JSON(w, http.StatusOK, queryResponse{Items: entries, Pagination: pagination})
}
