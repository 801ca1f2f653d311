package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"expensedash/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}
	writeJSON(w, http.StatusOK, health)
}

// handleReady reports ready only when the expense service answers its
// health probe.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{
		"templates": "ok",
		"dashboard": s.store.Dashboard().Snapshot().State.String(),
	}

	if s.health == nil {
		checks["expense_api"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else if s.health.HealthCheck(ctx) {
		checks["expense_api"] = "ok"
	} else {
		checks["expense_api"] = "unreachable"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
		log.FromContext(ctx).WarnContext(ctx, "Expense service health check failed",
			log.FieldErrorType, log.ErrorTypeUpstream)
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.detector.GetMetrics()
	rateLimitMetrics := s.limiter.GetMetrics()
	traceMetrics := s.tracer.GetMetrics()
	view := s.store.Snapshot()

	w.WriteHeader(http.StatusOK)

	metric := func(name, help, kind string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(w, "%s %v\n\n", name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("http_response_time_avg_microseconds", "Average response time", "gauge", traceMetrics.AverageResponseTime)
	metric("expenses_count", "Expenses currently held by the dashboard", "gauge", view.Count)
	metric("expenses_total_amount", "Sum of all expense amounts", "gauge", view.Total.StringFixed(2))
	metric("remaining_amount", "Monthly income minus total expenses", "gauge", view.Remaining.StringFixed(2))
	metric("rate_limit_hits_total", "Total rate limit hits", "counter", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "Currently tracked rate limit clients", "gauge", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "Total suspicious requests detected", "counter", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "Application uptime in seconds", "gauge", fmt.Sprintf("%.0f", time.Since(s.started).Seconds()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
