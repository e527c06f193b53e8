package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/vantage-market/vantage-market/internal/platform/httpx"
)

// Handler exposes token management endpoints for administrators.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers token routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/tokens", h.issueToken)
	r.Delete("/tokens/{id}", h.revokeToken)
}

type issueTokenRequest struct {
	PrincipalID int64  `json:"principalId" validate:"required,gt=0"`
	Name        string `json:"name" validate:"required,min=2,max=64"`
	TTLHours    int    `json:"ttlHours" validate:"gte=0,lte=8760"`
}

type issueTokenResponse struct {
	ID        string     `json:"id"`
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	issued, err := h.service.Issue(r.Context(), req.PrincipalID, req.Name, time.Duration(req.TTLHours)*time.Hour)
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, issueTokenResponse{
		ID:        issued.Token.ID,
		Token:     issued.Raw,
		ExpiresAt: issued.Token.ExpiresAt,
	})
}

func (h *Handler) revokeToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid token id")
		return
	}
	if err := h.service.Revoke(r.Context(), id); err != nil {
		h.logger.Error("revoke token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
