package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vantage-market/vantage-market/internal/authz"
	"github.com/vantage-market/vantage-market/internal/platform/httpx"
	"github.com/vantage-market/vantage-market/internal/shared"
)

// Middleware resolves bearer tokens into request principals. A request
// without an Authorization header proceeds anonymously; whether anonymous
// access is allowed is the authorization layer's call, not ours.
func Middleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, present := bearerToken(r)
			if !present {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := service.Authenticate(r.Context(), raw)
			if err != nil {
				if !errors.Is(err, shared.ErrAuthenticationMissing) {
					logger.Error("authenticate request", slog.Any("error", err))
				}
				httpx.RespondError(w, shared.ErrAuthenticationMissing)
				return
			}

			ctx := authz.ContextWithPrincipal(r.Context(), &principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return "", true
	}
	return strings.TrimSpace(token), true
}
