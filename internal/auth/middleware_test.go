package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vantage-market/vantage-market/internal/authz"
)

func middlewareHandler(svc *Service) (http.Handler, *[]int64) {
	var seen []int64
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := Middleware(svc, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := authz.PrincipalFromContext(r.Context()); p != nil {
			seen = append(seen, p.ID)
		} else {
			seen = append(seen, 0)
		}
		w.WriteHeader(http.StatusOK)
	}))
	return handler, &seen
}

func TestMiddlewareAnonymousPassThrough(t *testing.T) {
	svc, _ := newAuthFixture(t)
	handler, seen := middlewareHandler(svc)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
	if len(*seen) != 1 || (*seen)[0] != 0 {
		t.Fatalf("expected anonymous request, saw %v", *seen)
	}
}

func TestMiddlewareResolvesPrincipal(t *testing.T) {
	svc, _ := newAuthFixture(t)
	handler, seen := middlewareHandler(svc)

	issued, err := svc.Issue(context.Background(), 7, "ci-bot", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Raw)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(*seen) != 1 || (*seen)[0] != 7 {
		t.Fatalf("expected principal 7 in context, saw %v", *seen)
	}
}

func TestMiddlewareRejectsBadCredentials(t *testing.T) {
	svc, _ := newAuthFixture(t)
	handler, seen := middlewareHandler(svc)

	for _, header := range []string{
		"Bearer vmk_garbage",
		"Basic dXNlcjpwYXNz",
		"Bearer ",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
	if len(*seen) != 0 {
		t.Fatalf("handler must not run on rejected credentials, saw %v", *seen)
	}
}
