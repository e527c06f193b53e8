package authz

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vantage-market/vantage-market/internal/platform/httpx"
)

// Handler wires the admin-facing role-management API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers management routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/roles", h.listRoles)
	r.Post("/roles", h.createRole)
	r.Get("/roles/{id}", h.getRole)
	r.Delete("/roles/{id}", h.deleteRole)
	r.Post("/roles/{id}/clone", h.cloneRole)
	r.Post("/roles/{id}/permissions/{permissionID}", h.assignPermission)
	r.Delete("/roles/{id}/permissions/{permissionID}", h.revokePermission)

	r.Get("/permissions", h.listPermissions)
	r.Post("/permissions", h.ensurePermission)

	r.Get("/routes", h.listRouteMappings)
	r.Put("/routes", h.setRouteMapping)
	r.Delete("/routes/{id}", h.removeRouteMapping)

	r.Post("/principals/{id}/roles", h.assignRoles)
}

type roleResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Kind        string    `json:"kind"`
	Priority    int       `json:"priority"`
	Permissions []string  `json:"permissions,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toRoleResponse(role Role, perms []Permission) roleResponse {
	resp := roleResponse{
		ID:        role.ID,
		Name:      role.Name,
		Kind:      string(role.Kind),
		Priority:  role.Priority,
		CreatedAt: role.CreatedAt,
	}
	for _, p := range perms {
		resp.Permissions = append(resp.Permissions, p.Name)
	}
	return resp
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		resp = append(resp, toRoleResponse(role, nil))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type createRoleRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=64"`
	Kind     string `json:"kind" validate:"required,oneof=business admin"`
	Priority int    `json:"priority" validate:"gte=0,lte=1000"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), h.actor(r), req.Name, RoleKind(req.Kind), req.Priority)
	if err != nil {
		h.logger.Error("create role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role, nil))
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	role, perms, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role, perms))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), h.actor(r), id); err != nil {
		h.logger.Error("delete role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cloneRoleRequest struct {
	Name string `json:"name" validate:"required,min=2,max=64"`
}

func (h *Handler) cloneRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req cloneRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.CloneRole(r.Context(), h.actor(r), id, req.Name)
	if err != nil {
		h.logger.Error("clone role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role, nil))
}

func (h *Handler) assignPermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	permissionID, ok := h.pathID(w, r, "permissionID")
	if !ok {
		return
	}
	if err := h.service.AssignPermission(r.Context(), h.actor(r), roleID, permissionID); err != nil {
		h.logger.Error("assign permission", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	permissionID, ok := h.pathID(w, r, "permissionID")
	if !ok {
		return
	}
	if err := h.service.RevokePermission(r.Context(), h.actor(r), roleID, permissionID); err != nil {
		h.logger.Error("revoke permission", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type permissionResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		resp = append(resp, permissionResponse{ID: p.ID, Name: p.Name, Resource: p.Resource, Action: p.Action})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type ensurePermissionRequest struct {
	Name     string `json:"name" validate:"required,min=3,max=128"`
	Resource string `json:"resource" validate:"required,max=64"`
	Action   string `json:"action" validate:"required,max=64"`
}

func (h *Handler) ensurePermission(w http.ResponseWriter, r *http.Request) {
	var req ensurePermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p, err := h.service.EnsurePermission(r.Context(), req.Name, req.Resource, req.Action)
	if err != nil {
		h.logger.Error("ensure permission", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, permissionResponse{ID: p.ID, Name: p.Name, Resource: p.Resource, Action: p.Action})
}

type routeMappingResponse struct {
	ID          int64    `json:"id"`
	Method      string   `json:"method"`
	Path        string   `json:"path"`
	Permissions []string `json:"permissions"`
	IsPublic    bool     `json:"isPublic"`
}

func (h *Handler) listRouteMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.service.ListRouteMappings(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := make([]routeMappingResponse, 0, len(mappings))
	for _, m := range mappings {
		resp = append(resp, routeMappingResponse{ID: m.ID, Method: m.Method, Path: m.Path, Permissions: m.Permissions, IsPublic: m.IsPublic})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type setRouteMappingRequest struct {
	Method      string   `json:"method" validate:"required,oneof=GET POST PUT PATCH DELETE"`
	Path        string   `json:"path" validate:"required,startswith=/"`
	Permissions []string `json:"permissions" validate:"dive,min=3"`
	IsPublic    bool     `json:"isPublic"`
}

func (h *Handler) setRouteMapping(w http.ResponseWriter, r *http.Request) {
	var req setRouteMappingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	saved, err := h.service.SetRouteMapping(r.Context(), h.actor(r), RouteMapping{
		Method:      req.Method,
		Path:        req.Path,
		Permissions: req.Permissions,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		h.logger.Error("set route mapping", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, routeMappingResponse{ID: saved.ID, Method: saved.Method, Path: saved.Path, Permissions: saved.Permissions, IsPublic: saved.IsPublic})
}

func (h *Handler) removeRouteMapping(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.RemoveRouteMapping(r.Context(), h.actor(r), id); err != nil {
		h.logger.Error("remove route mapping", slog.Any("error", err))
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
	principalID, ok := h.pathID(w, r, "id")
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
	if err := h.service.AssignRoles(r.Context(), h.actor(r), principalID, req.BusinessRoleID, req.AssignedRoleID); err != nil {
		h.logger.Error("assign roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) actor(r *http.Request) Actor {
	return ActorFromPrincipal(PrincipalFromContext(r.Context()))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+name)
		return 0, false
	}
	return id, true
}
