package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/aislide/aislide-bot/internal/pkg/jwt"
)

func TestAuthMiddlewareAllowsValidAccessToken(t *testing.T) {
	jwtSvc := jwt.NewService("secret", time.Minute)
	token, err := jwtSvc.GenerateAccessToken(77, "admin")
	if err != nil {
		t.Fatalf("token gen failed: %v", err)
	}

	var gotID int64
	protected := Auth(jwtSvc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = GetAdminID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotID != 77 {
		t.Fatalf("expected admin id 77 in context, got %d", gotID)
	}
}

func TestAuthMiddlewareAcceptsQueryToken(t *testing.T) {
	jwtSvc := jwt.NewService("secret", time.Minute)
	token, _ := jwtSvc.GenerateAccessToken(0, "admin")

	protected := Auth(jwtSvc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUsername(r.Context()) != "admin" {
			t.Errorf("expected username in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAuthMiddlewareRejects(t *testing.T) {
	jwtSvc := jwt.NewService("secret", time.Minute)
	other := jwt.NewService("other-secret", time.Minute)
	foreign, _ := other.GenerateAccessToken(1, "admin")
	expired, _ := jwt.NewService("secret", -time.Minute).GenerateAccessToken(1, "admin")

	cases := map[string]string{
		"missing":        "",
		"bad format":     "Token abc",
		"wrong secret":   "Bearer " + foreign,
		"expired":        "Bearer " + expired,
		"not a jwt":      "Bearer abc.def",
		"too many parts": "Bearer a b",
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			called := false
			protected := Auth(jwtSvc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w := httptest.NewRecorder()
			protected.ServeHTTP(w, req)

			if called {
				t.Fatal("handler must not be reached")
			}
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d (%s)", w.Code, strconv.Quote(w.Body.String()))
			}
		})
	}
}
