package http

import (
	"bytes"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"expensedash/internal/chart"
	"expensedash/internal/export"
	"expensedash/internal/log"
	"expensedash/internal/resource"
)

// handleDashboard renders the main dashboard page. Partials load themselves
// once the page is in the browser.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "index.html", s.dashboard())
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "summary.html", s.dashboard())
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "expenses.html", s.dashboard())
}

type chartData struct {
	dashboardData
	Kind   chart.Kind
	Title  string
	Labels []string
	Values []float64
}

// handleChart serves every chart kind from one template; the browser draws
// the series.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	kind, ok := chart.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		NotFoundError("Unknown chart").Write(w)
		return
	}

	d := s.dashboard()
	series := d.View.Charts.Get(kind)
	s.render(w, r, "chart.html", chartData{
		dashboardData: d,
		Kind:          kind,
		Title:         kind.Title(),
		Labels:        series.Labels(),
		Values:        series.Values(),
	})
}

// handleReload refetches everything from the expense service.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.store.LoadAll(r.Context()); err != nil {
		BadGatewayError(resource.Message(err)).
			TriggerDashboardReloaded().
			Write(w)
		return
	}
	NewHTMXResponse().
		TriggerDashboardReloaded().
		TriggerSuccessNotification("Dashboard reloaded").
		Write(w)
}

// handleExport downloads the current state as a workbook.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context()).WithComponent(log.ComponentExport)
	view := s.store.Snapshot()

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, view); err != nil {
		logger.ErrorContext(r.Context(), "Export failed",
			log.FieldOperation, log.OpExport,
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeInternal)
		InternalServerError("Export failed").Write(w)
		return
	}

	logger.InfoContext(r.Context(), "Export generated",
		log.FieldOperation, log.OpExport,
		log.FieldCount, view.Count)

	filename := "expenses-" + time.Now().Format("2006-01-02") + ".xlsx"
	NewHTMXResponse().
		Header("Content-Type", export.ContentType).
		Header("Content-Disposition", `attachment; filename="`+filename+`"`).
		Body(buf.Bytes()).
		Write(w)
}
