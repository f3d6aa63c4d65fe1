package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	})
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Origin", "https://aislide-frontend.vercel.app")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter(t *testing.T) {
	r := newRouter(routes{
		catalog:        okHandler("catalog"),
		admin:          okHandler("admin"),
		webhook:        okHandler("update"),
		webhookSecret:  "hook-secret",
		allowedOrigins: []string{"https://aislide-frontend.vercel.app"},
	})

	t.Run("health", func(t *testing.T) {
		rr := serve(r, http.MethodGet, "/health")
		if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ok"`) {
			t.Fatalf("unexpected health response %d %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("metrics", func(t *testing.T) {
		rr := serve(r, http.MethodGet, "/metrics")
		if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "go_goroutines") {
			t.Fatalf("unexpected metrics response %d", rr.Code)
		}
	})

	t.Run("catalog with cors", func(t *testing.T) {
		rr := serve(r, http.MethodGet, "/api/v1/catalog")
		if rr.Code != http.StatusOK || rr.Body.String() != "catalog" {
			t.Fatalf("unexpected catalog response %d %s", rr.Code, rr.Body.String())
		}
		if rr.Header().Get("Access-Control-Allow-Origin") != "https://aislide-frontend.vercel.app" {
			t.Fatalf("expected CORS header, got %v", rr.Header())
		}
	})

	t.Run("admin mount", func(t *testing.T) {
		if rr := serve(r, http.MethodGet, "/api/admin/deposits"); rr.Body.String() != "admin" {
			t.Fatalf("expected admin handler, got %d %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("webhook secret", func(t *testing.T) {
		if rr := serve(r, http.MethodPost, "/telegram/webhook/hook-secret"); rr.Body.String() != "update" {
			t.Fatalf("expected update accepted, got %d", rr.Code)
		}
		if rr := serve(r, http.MethodPost, "/telegram/webhook/guess"); rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for a wrong secret, got %d", rr.Code)
		}
	})
}

func TestRouterWithoutWebhook(t *testing.T) {
	r := newRouter(routes{catalog: okHandler("catalog"), admin: okHandler("admin")})
	if rr := serve(r, http.MethodPost, "/telegram/webhook/anything"); rr.Code == http.StatusOK {
		t.Fatal("polling mode must not expose the webhook")
	}
}
