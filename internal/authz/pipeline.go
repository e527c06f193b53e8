package authz

import (
	"log/slog"
	"net/http"

	"github.com/vantage-market/vantage-market/internal/platform/httpx"
	"github.com/vantage-market/vantage-market/internal/shared"
)

// Pipeline composes the fixed guard ordering for protected routes:
// authentication (upstream, resolves the principal into context), the
// dynamic decision engine, the legacy role guard, and rate limiting last so
// it counts the true cost of authorization work. Any stage may terminate the
// chain; none swallows another's rejection.
type Pipeline struct {
	engine    *Engine
	legacy    *LegacyRoleGuard
	rateLimit func(http.Handler) http.Handler
	logger    *slog.Logger
}

// NewPipeline constructs the composer. rateLimit may be nil.
func NewPipeline(engine *Engine, legacy *LegacyRoleGuard, rateLimit func(http.Handler) http.Handler, logger *slog.Logger) *Pipeline {
	return &Pipeline{engine: engine, legacy: legacy, rateLimit: rateLimit, logger: logger}
}

// Guard returns the middleware chain for a route group. legacyRoles, when
// given, feed the decorator-era fallback: it votes only when the engine
// allowed the request or found no mapping. Any other engine denial
// short-circuits with a generic 403 that never names the missing permission.
func (p *Pipeline) Guard(legacyRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if p.rateLimit != nil {
			next = p.rateLimit(next)
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())

			decision, err := p.engine.Decide(r.Context(), principal, r.Method, r.URL.Path)
			if err != nil {
				p.logger.Error("authorization evaluation", slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}

			switch {
			case decision.Allowed:
				// The legacy guard may still veto an allow.
				if ok := p.legacyVote(w, r, principal, legacyRoles); !ok {
					return
				}
			case decision.Reason == ReasonNoMapping && len(legacyRoles) > 0:
				// Unmapped route with a declared legacy requirement: the
				// fallback decides. Without one the route stays fail-closed.
				if ok := p.legacyVote(w, r, principal, legacyRoles); !ok {
					return
				}
			default:
				// NO_MAPPING, missing permissions and absent principals all
				// surface as the same 403 to avoid leaking registry shape.
				httpx.RespondError(w, shared.ErrAuthorizationDenied)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (p *Pipeline) legacyVote(w http.ResponseWriter, r *http.Request, principal *Principal, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	ok, err := p.legacy.Satisfies(r.Context(), principal, roles)
	if err != nil {
		p.logger.Error("legacy role guard", slog.Any("error", err))
		httpx.RespondError(w, err)
		return false
	}
	if !ok {
		httpx.RespondError(w, shared.ErrAuthorizationDenied)
		return false
	}
	return true
}
