package audithttp

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vantage-market/vantage-market/internal/audit"
	"github.com/vantage-market/vantage-market/internal/platform/httpx"
)

// Handler exposes the read-only audit query and export API consumed by
// compliance tooling.
type Handler struct {
	logger  *slog.Logger
	service *audit.Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *audit.Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/export", h.export)
}

type entryResponse struct {
	ID            string         `json:"id"`
	Action        string         `json:"action"`
	Module        string         `json:"module"`
	ActorID       string         `json:"actorId"`
	ActorType     string         `json:"actorType"`
	EntityType    string         `json:"entityType"`
	EntityID      string         `json:"entityId"`
	Severity      string         `json:"severity"`
	Operation     string         `json:"operation,omitempty"`
	Compliance    bool           `json:"isComplianceEvent"`
	Security      bool           `json:"isSecurityEvent"`
	Financial     bool           `json:"isFinancialEvent"`
	Category      string         `json:"category,omitempty"`
	Amount        float64        `json:"monetaryAmount,omitempty"`
	Currency      string         `json:"currency,omitempty"`
	Country       string         `json:"country,omitempty"`
	Anomaly       bool           `json:"isAnomaly"`
	Meta          map[string]any `json:"meta,omitempty"`
	Checksum      *string        `json:"checksum"`
	RiskScore     int            `json:"riskScore"`
	Critical      bool           `json:"isCritical"`
	RetentionDate time.Time      `json:"retentionDate"`
	CreatedAt     time.Time      `json:"createdAt"`
}

type listResponse struct {
	Entries []entryResponse  `json:"entries"`
	Paging  audit.PagingInfo `json:"paging"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.Query(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit query", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	entries := make([]entryResponse, 0, len(result.Rows))
	for _, e := range result.Rows {
		entries = append(entries, toResponse(e))
	}
	httpx.JSON(w, http.StatusOK, listResponse{Entries: entries, Paging: result.Paging})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	entries, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=audit-%s.csv", uuid.NewString()))
	if err := audit.WriteCSV(w, entries); err != nil {
		h.logger.Error("audit export write", slog.Any("error", err))
	}
}

func parseFilters(r *http.Request) (audit.Filters, error) {
	q := r.URL.Query()
	filters := audit.Filters{
		Module:   q.Get("module"),
		ActorID:  q.Get("actor"),
		Severity: audit.Severity(q.Get("severity")),
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filters{}, fmt.Errorf("invalid from: %s", raw)
		}
		filters.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filters{}, fmt.Errorf("invalid to: %s", raw)
		}
		filters.To = t
	}
	if raw := q.Get("page"); raw != "" {
		filters.Page, _ = strconv.Atoi(raw)
	}
	if raw := q.Get("page_size"); raw != "" {
		filters.PageSize, _ = strconv.Atoi(raw)
	}
	return filters, nil
}

func toResponse(e audit.Entry) entryResponse {
	resp := entryResponse{
		ID:            e.ID.String(),
		Action:        e.Action,
		Module:        e.Module,
		ActorID:       e.ActorID,
		ActorType:     string(e.ActorType),
		EntityType:    e.EntityType,
		EntityID:      e.EntityID,
		Severity:      string(e.Severity),
		Operation:     e.Operation,
		Compliance:    e.IsComplianceEvent,
		Security:      e.IsSecurityEvent,
		Financial:     e.IsFinancialEvent,
		Category:      string(e.Category),
		Amount:        e.MonetaryAmount,
		Currency:      e.Currency,
		Country:       e.Country,
		Anomaly:       e.IsAnomaly,
		Meta:          e.Meta,
		RiskScore:     e.RiskScore,
		Critical:      e.IsCritical(),
		RetentionDate: e.RetentionDate,
		CreatedAt:     e.CreatedAt,
	}
	if e.Checksum != "" {
		checksum := e.Checksum
		resp.Checksum = &checksum
	}
	return resp
}
