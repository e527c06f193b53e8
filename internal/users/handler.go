package users

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vantage-market/vantage-market/internal/authz"
	"github.com/vantage-market/vantage-market/internal/platform/httpx"
	"github.com/vantage-market/vantage-market/internal/shared"
)

// Handler manages principal endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers principal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.deactivate)
	r.Put("/{id}/roles", h.assignRoles)
}

type principalResponse struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"displayName"`
	ActorType      string    `json:"actorType"`
	BusinessRoleID int64     `json:"businessRoleId"`
	AssignedRoleID *int64    `json:"assignedRoleId,omitempty"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toPrincipalResponse(p Principal) principalResponse {
	return principalResponse{
		ID:             p.ID,
		Email:          p.Email,
		DisplayName:    p.DisplayName,
		ActorType:      p.ActorType,
		BusinessRoleID: p.BusinessRoleID,
		AssignedRoleID: p.AssignedRoleID,
		IsActive:       p.IsActive,
		CreatedAt:      p.CreatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := shared.PaginationFromQuery(r.URL.Query())
	principals, err := h.service.List(r.Context(), page)
	if err != nil {
		h.logger.Error("list principals", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]principalResponse, 0, len(principals))
	for _, p := range principals {
		resp = append(resp, toPrincipalResponse(p))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPrincipalResponse(p))
}

type createPrincipalRequest struct {
	Email          string `json:"email" validate:"required,email"`
	DisplayName    string `json:"displayName" validate:"required,min=2,max=128"`
	ActorType      string `json:"actorType" validate:"required,oneof=user api_client system"`
	BusinessRoleID int64  `json:"businessRoleId" validate:"required,gt=0"`
	AssignedRoleID *int64 `json:"assignedRoleId" validate:"omitempty,gt=0"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPrincipalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), h.actor(r), Principal{
		Email:          req.Email,
		DisplayName:    req.DisplayName,
		ActorType:      req.ActorType,
		BusinessRoleID: req.BusinessRoleID,
		AssignedRoleID: req.AssignedRoleID,
	})
	if err != nil {
		h.logger.Error("create principal", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPrincipalResponse(created))
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Deactivate(r.Context(), h.actor(r), id); err != nil {
		h.logger.Error("deactivate principal", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRolesRequest struct {
	BusinessRoleID int64  `json:"businessRoleId" validate:"required,gt=0"`
	AssignedRoleID *int64 `json:"assignedRoleId" validate:"omitempty,gt=0"`
}

func (h *Handler) assignRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req assignRolesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AssignRoles(r.Context(), h.actor(r), id, req.BusinessRoleID, req.AssignedRoleID); err != nil {
		h.logger.Error("assign principal roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) actor(r *http.Request) authz.Actor {
	return authz.ActorFromPrincipal(authz.PrincipalFromContext(r.Context()))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}
