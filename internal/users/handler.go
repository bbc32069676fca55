package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/roadline-tms/roadline-tms/internal/platform/httpx"
	"github.com/roadline-tms/roadline-tms/internal/rbac"
	"github.com/roadline-tms/roadline-tms/internal/shared"
)

// Handler manages user directory endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	gate      rbac.Gate
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gate rbac.Gate) *Handler {
	return &Handler{logger: logger, service: service, gate: gate, validator: validator.New()}
}

// MountRoutes registers user directory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require(shared.PermUsersManage))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Patch("/{id}/status", h.setStatus)
	})
}

type createUserRequest struct {
	Name     string `json:"name" validate:"required,min=2"`
	Email    string `json:"email" validate:"required,email"`
	RoleID   *int64 `json:"roleId"`
	Status   string `json:"status" validate:"omitempty,oneof=active inactive"`
	Password string `json:"password" validate:"omitempty,min=8"`
}

type updateUserRequest struct {
	Name   string `json:"name" validate:"required,min=2"`
	Email  string `json:"email" validate:"required,email"`
	RoleID *int64 `json:"roleId"`
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

type createUserResponse struct {
	User         User   `json:"user"`
	TempPassword string `json:"tempPassword,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters := ListFilters{
		Search: r.URL.Query().Get("search"),
		Status: r.URL.Query().Get("status"),
	}
	if raw := r.URL.Query().Get("roleId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, httpx.NewValidationError(httpx.FieldError{Field: "roleId", Message: "must be an integer"}))
			return
		}
		filters.RoleID = &id
	}
	list, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []User{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, toFieldErrors(err))
		return
	}
	user, tempPassword, err := h.service.Create(r.Context(), h.actor(r), CreateInput{
		Name:     req.Name,
		Email:    req.Email,
		RoleID:   req.RoleID,
		Status:   req.Status,
		Password: req.Password,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, createUserResponse{User: user, TempPassword: tempPassword})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, toFieldErrors(err))
		return
	}
	user, err := h.service.Update(r.Context(), h.actor(r), id, UpdateInput{
		Name:   req.Name,
		Email:  req.Email,
		RoleID: req.RoleID,
		Status: req.Status,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req setStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, toFieldErrors(err))
		return
	}
	user, err := h.service.SetStatus(r.Context(), h.actor(r), id, req.Status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) actor(r *http.Request) int64 {
	principal, _ := shared.PrincipalFromContext(r.Context())
	return principal.UserID
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, httpx.NewValidationError(httpx.FieldError{Field: "id", Message: "must be an integer"})
	}
	return id, nil
}

func toFieldErrors(err error) error {
	vErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return httpx.ErrValidation
	}
	fields := make([]httpx.FieldError, 0, len(vErrs))
	for _, fieldErr := range vErrs {
		fields = append(fields, httpx.FieldError{Field: fieldErr.Field(), Message: fieldErr.Tag()})
	}
	return httpx.NewValidationError(fields...)
}
