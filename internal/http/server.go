package http

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"expensedash/internal/log"
	"expensedash/internal/middleware/ratelimit"
	"expensedash/internal/middleware/security"
	"expensedash/internal/middleware/trace"
	"expensedash/internal/resource"
	"expensedash/internal/store"
	appweb "expensedash/web"
)

// HealthChecker reports whether the expense service answers.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

// Config holds the server settings that do not come from its collaborators.
type Config struct {
	Addr           string
	TrustedProxies []string
	RateLimit      ratelimit.Config
	Logger         *log.Logger
}

type Server struct {
	http.Server
	templates *template.Template
	store     *store.Store
	health    HealthChecker
	logger    *log.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	started      time.Time
	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and wires routes and middleware
// around st. It fails only when the templates or a trusted proxy are invalid.
func NewServer(cfg Config, st *store.Store, health HealthChecker) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}

	t, err := template.New("").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	detector := security.NewDetector()
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, fmt.Errorf("trusted proxy: %w", err)
		}
	}

	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		templates: t,
		store:     st,
		health:    health,
		logger:    logger.WithComponent(log.ComponentHTTP),
		limiter:   ratelimit.NewLimiter(cfg.RateLimit),
		detector:  detector,
		started:   time.Now(),
	}
	s.tracer = trace.NewMiddleware(detector.ExtractClientIP, logger)
	s.Handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.tracer.Middleware)
	r.Use(s.detector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.Handle("/static/*", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	r.Group(func(r chi.Router) {
		r.Use(security.NoStore)

		r.Get("/", s.handleDashboard)
		r.Get("/ui/summary", s.handleSummary)
		r.Get("/ui/expenses", s.handleExpenses)
		r.Get("/ui/charts/{kind}", s.handleChart)
		r.Get("/export.xlsx", s.handleExport)

		// Mutations reach the expense service and are rate limited per client.
		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit))

			r.Post("/expenses", s.handleCreateExpense)
			r.Post("/expenses/{id}", s.handleUpdateExpense)
			r.Delete("/expenses/{id}", s.handleDeleteExpense)
			r.Post("/income", s.handleSetIncome)
			r.Post("/reload", s.handleReload)
		})
	})

	return r
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(),
		"Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	TooManyRequestsError().Write(w)
}

// Shutdown stops the rate limiter and gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// dashboardData is what every dashboard template renders from.
type dashboardData struct {
	State   string
	Message string
	// Show is true when View holds data worth rendering, including the
	// previous value while a reload is in flight.
	Show bool
	View store.View
}

func (s *Server) dashboard() dashboardData {
	snap := s.store.Dashboard().Snapshot()
	return dashboardData{
		State:   snap.State.String(),
		Message: snap.Message,
		Show:    snap.State == resource.Ready || (snap.State == resource.Loading && snap.Data.Loaded),
		View:    snap.Data,
	}
}

func (s *Server) renderString(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// render writes template name as a full response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	html, err := s.renderString(name, data)
	if err != nil {
		s.logTemplateError(r, err)
		InternalServerError("Error rendering page").Write(w)
		return
	}
	NewHTMXResponse().BodyHTML(html).Write(w)
}

func (s *Server) logTemplateError(r *http.Request, err error) {
	log.FromContext(r.Context()).WithComponent(log.ComponentTemplate).ErrorContext(r.Context(),
		"Template execution failed",
		log.FieldPath, r.URL.Path,
		log.FieldOperation, log.OpRender,
		log.FieldError, err,
		log.FieldErrorType, log.ErrorTypeInternal)
}
