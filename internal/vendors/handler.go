package vendors

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

// Handler manages vendor endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers vendor routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/suspend", h.suspend)
}

type vendorResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	LegalName   string    `json:"legalName"`
	Country     string    `json:"country"`
	Status      string    `json:"status"`
	IsB2B       bool      `json:"isB2b"`
	CreditLimit float64   `json:"creditLimit"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toVendorResponse(v Vendor) vendorResponse {
	return vendorResponse{
		ID:          v.ID,
		Name:        v.Name,
		LegalName:   v.LegalName,
		Country:     v.Country,
		Status:      string(v.Status),
		IsB2B:       v.IsB2B,
		CreditLimit: v.CreditLimit,
		Currency:    v.Currency,
		CreatedAt:   v.CreatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	status := VendorStatus(r.URL.Query().Get("status"))
	page := shared.PaginationFromQuery(r.URL.Query())
	vendors, err := h.service.List(r.Context(), status, page)
	if err != nil {
		h.logger.Error("list vendors", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]vendorResponse, 0, len(vendors))
	for _, v := range vendors {
		resp = append(resp, toVendorResponse(v))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	v, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toVendorResponse(v))
}

type createVendorRequest struct {
	Name        string  `json:"name" validate:"required,min=2,max=128"`
	LegalName   string  `json:"legalName" validate:"required,min=2,max=256"`
	Country     string  `json:"country" validate:"required,len=2,alpha"`
	IsB2B       bool    `json:"isB2b"`
	CreditLimit float64 `json:"creditLimit" validate:"gte=0"`
	Currency    string  `json:"currency" validate:"required,len=3,alpha"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createVendorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), h.actor(r), Vendor{
		Name:        req.Name,
		LegalName:   req.LegalName,
		Country:     req.Country,
		IsB2B:       req.IsB2B,
		CreditLimit: req.CreditLimit,
		Currency:    req.Currency,
	})
	if err != nil {
		h.logger.Error("create vendor", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toVendorResponse(created))
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Approve(r.Context(), h.actor(r), id); err != nil {
		h.logger.Error("approve vendor", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type suspendVendorRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=512"`
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req suspendVendorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Suspend(r.Context(), h.actor(r), id, req.Reason); err != nil {
		h.logger.Error("suspend vendor", slog.Any("error", err))
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
