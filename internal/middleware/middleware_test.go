package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aislide/aislide-bot/internal/pkg/logger"
)

func TestRequestID(t *testing.T) {
	var seen string
	var buf bytes.Buffer
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		l := logger.FromContext(r.Context()).Output(&buf)
		l.Info().Msg("inside")
	}))

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"reuses a sane upstream id", "edge-1234abcd", true},
		{"replaces a short id", "x", false},
		{"replaces an id with spaces", "not a valid id", false},
		{"generates when missing", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(requestIDHeader, tt.incoming)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			got := rr.Header().Get(requestIDHeader)
			if got != seen || got == "" {
				t.Fatalf("header %q and context %q must match", got, seen)
			}
			if tt.keep != (got == tt.incoming) {
				t.Fatalf("incoming %q, got %q", tt.incoming, got)
			}
			if !strings.Contains(buf.String(), `"request_id":"`+got+`"`) {
				t.Fatalf("expected request logger to carry the id, got %s", buf.String())
			}
		})
	}
}

func TestRecover(t *testing.T) {
	h := Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)

	serve := func(path string, status int) string {
		buf.Reset()
		h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req = req.WithContext(logger.WithContext(req.Context(), &l))
		h.ServeHTTP(httptest.NewRecorder(), req)
		return buf.String()
	}

	if out := serve("/api/admin/deposits", http.StatusOK); !strings.Contains(out, `"level":"info"`) {
		t.Fatalf("expected info line, got %s", out)
	}
	if out := serve("/api/admin/deposits", http.StatusConflict); !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("expected warn line, got %s", out)
	}
	if out := serve("/api/admin/deposits", http.StatusBadGateway); !strings.Contains(out, `"level":"error"`) {
		t.Fatalf("expected error line, got %s", out)
	}
	if out := serve("/health", http.StatusOK); out != "" {
		t.Fatalf("healthy probes must stay quiet, got %s", out)
	}
	if out := serve("/health", http.StatusServiceUnavailable); out == "" {
		t.Fatal("failing probes must be logged")
	}
}
