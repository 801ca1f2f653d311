package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"expensedash/internal/log"
)

func TestMiddleware_AssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Handler: slog.NewTextHandler(&buf, nil)})
	m := NewMiddleware(func(*http.Request) string { return "10.0.0.1" }, logger)

	var seen string
	var ctxLogger *log.Logger
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		ctxLogger = log.FromContext(r.Context())
		w.WriteHeader(http.StatusNotFound)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ui/summary", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("request id %q is not a uuid: %v", seen, err)
	}
	if rec.Header().Get(HeaderRequestID) != seen {
		t.Fatalf("response header %q != context id %q", rec.Header().Get(HeaderRequestID), seen)
	}
	if ctxLogger == nil || ctxLogger.Component() != log.ComponentHTTP {
		t.Fatalf("expected http logger in context")
	}

	out := buf.String()
	if !strings.Contains(out, "HTTP request completed") || !strings.Contains(out, "status_code=404") {
		t.Fatalf("missing completion log: %s", out)
	}
	if !strings.Contains(out, "level=WARN") {
		t.Fatalf("4xx should log at warn: %s", out)
	}
	if got := m.GetMetrics().TotalRequests; got != 1 {
		t.Fatalf("TotalRequests = %d", got)
	}
}

func TestMiddleware_KeepsIncomingRequestID(t *testing.T) {
	m := NewMiddleware(nil, log.Discard())
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); got != "abc-123" {
		t.Fatalf("got %q", got)
	}

	req.Header.Set(HeaderRequestID, strings.Repeat("x", 100))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); len(got) > maxIncomingIDLen {
		t.Fatalf("oversized id should be replaced, got %q", got)
	}
}
