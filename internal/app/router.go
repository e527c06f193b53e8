package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/vantage-market/vantage-market/internal/audit/http"
	"github.com/vantage-market/vantage-market/internal/auth"
	"github.com/vantage-market/vantage-market/internal/authz"
	"github.com/vantage-market/vantage-market/internal/catalog"
	"github.com/vantage-market/vantage-market/internal/observability"
	"github.com/vantage-market/vantage-market/internal/users"
	"github.com/vantage-market/vantage-market/internal/vendors"
	"github.com/vantage-market/vantage-market/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	AuthMiddleware func(http.Handler) http.Handler
	Guard          *authz.Pipeline

	AuthHandler    *auth.Handler
	AuthzHandler   *authz.Handler
	UsersHandler   *users.Handler
	CatalogHandler *catalog.Handler
	VendorsHandler *vendors.Handler
	AuditHandler   *audithttp.Handler
	JobHandler     *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with vantage defaults. Every
// business route sits behind the guard; which permissions it needs is
// decided by the route registry at request time, not here.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if params.AuthMiddleware != nil {
			r.Use(params.AuthMiddleware)
		}

		guard := func(legacyRoles ...string) func(http.Handler) http.Handler {
			if params.Guard == nil {
				return func(next http.Handler) http.Handler { return next }
			}
			return params.Guard.Guard(legacyRoles...)
		}

		if params.CatalogHandler != nil {
			r.Route("/products", func(r chi.Router) {
				r.Use(guard())
				params.CatalogHandler.MountRoutes(r)
			})
		}
		if params.VendorsHandler != nil {
			r.Route("/vendors", func(r chi.Router) {
				r.Use(guard())
				params.VendorsHandler.MountRoutes(r)
			})
		}
		if params.UsersHandler != nil {
			r.Route("/principals", func(r chi.Router) {
				// Pre-registry deployments gated this surface on the
				// admin role name; keep that as the fallback vote.
				r.Use(guard("admin"))
				params.UsersHandler.MountRoutes(r)
			})
		}
		if params.AuthzHandler != nil {
			r.Route("/authz", func(r chi.Router) {
				r.Use(guard("admin"))
				params.AuthzHandler.MountRoutes(r)
			})
		}
		if params.AuthHandler != nil {
			r.Route("/auth", func(r chi.Router) {
				r.Use(guard("admin"))
				params.AuthHandler.MountRoutes(r)
			})
		}
		if params.AuditHandler != nil {
			r.Route("/audit", func(r chi.Router) {
				r.Use(guard("admin", "auditor"))
				params.AuditHandler.MountRoutes(r)
			})
		}
		if params.JobHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(guard("admin"))
				params.JobHandler.MountRoutes(r)
			})
		}
	})

	return r
}
