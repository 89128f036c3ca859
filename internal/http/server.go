// Package http serves the certdash pages, htmx partials, chart endpoints and
// operational probes.
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

	"certdash/internal/backend"
	"certdash/internal/core"
	"certdash/internal/log"
	"certdash/internal/middleware/ratelimit"
	"certdash/internal/middleware/security"
	"certdash/internal/middleware/trace"
	"certdash/internal/render"
	"certdash/internal/services"
	"certdash/internal/session"
	appweb "certdash/web"
)

// Deps are the services the handlers call.
type Deps struct {
	Dashboard    *services.DashboardService
	Certificates *services.CertificateService
	Accounts     *services.AccountService
	Sessions     *session.Manager
	Renderer     *render.Renderer
	Checks       map[string]backend.CheckFunc
}

// Options tune the server without touching its dependencies.
type Options struct {
	Addr               string
	CookieSecure       bool
	RateLimitPerMinute int
	ChartWindow        int
	BlockSuspicious    bool
}

type Server struct {
	http.Server
	templates *template.Template
	deps      Deps
	opts      Options
	logger    *log.Logger

	detector *security.Detector
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware

	started      time.Time
	now          func() time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server.
func NewServer(opts Options, deps Deps, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if opts.ChartWindow <= 0 {
		opts.ChartWindow = 6
	}
	if deps.Renderer == nil {
		deps.Renderer = render.NewRenderer()
	}

	s := &Server{
		deps:    deps,
		opts:    opts,
		logger:  logger.WithComponent(log.ComponentHTTP),
		started: time.Now(),
		now:     time.Now,
	}
	s.detector = security.NewDetector(logger)
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)
	s.limiter = ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: opts.RateLimitPerMinute,
		Methods:           []string{http.MethodPost},
	}, logger)

	t, err := template.New("certdash").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", log.FieldError, err)
	}
	s.templates = t

	mux := http.NewServeMux()
	s.routes(mux)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/signup", s.handleSignup)
	mux.HandleFunc("POST /logout", s.handleLogout)

	page := func(h http.HandlerFunc) http.Handler {
		return security.NoStore(session.RequireAuth(h))
	}
	mux.Handle("GET /{$}", page(s.handleDashboard))
	mux.Handle("GET /certificates", page(s.handleCertificates))
	mux.Handle("GET /certificates/request", page(s.handleRequest))
	mux.Handle("POST /certificates/quote", page(s.handleQuote))
	mux.Handle("POST /certificates/buy", page(s.handleBuy))
	mux.Handle("/certificates/create", page(s.handleCreate))

	mux.Handle("GET /api/charts/consumption", requireAPIAuth(s.handleConsumptionJSON))
	mux.Handle("GET /api/charts/categories", requireAPIAuth(s.handleCategoriesJSON))
	mux.Handle("GET /api/charts/transactions/monthly", requireAPIAuth(s.handleMonthlyTransactionsJSON))
	mux.Handle("GET /api/charts/transactions/daily", requireAPIAuth(s.handleDailyTransactionsJSON))
	mux.Handle("GET /charts/{file}", page(s.handleChartPNG))
}

// middleware wraps h, outermost first: tracing, security headers,
// suspicious request detection, rate limiting, request logger, session.
func (s *Server) middleware(h http.Handler) http.Handler {
	chain := []func(http.Handler) http.Handler{
		s.tracer.Middleware,
		security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware,
		s.detector.Middleware(s.opts.BlockSuspicious),
		s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit),
		log.Middleware(s.logger),
		log.RequestIDMiddleware(trace.RequestID),
		s.deps.Sessions.Middleware(s.opts.CookieSecure),
	}
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(http.StatusTooManyRequests, "Too many requests, please wait a minute").Write(w)
}

// Shutdown stops background work and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// page is the data every full page template needs.
type page struct {
	Title   string
	Nav     string
	Session *session.Session
	Error   string
	Notice  string
}

func (s *Server) newPage(r *http.Request, title, nav string) page {
	return page{Title: title, Nav: nav, Session: session.FromContext(r.Context())}
}

// render executes a template into a buffer first so a failing template never
// leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	logger := log.FromContext(r.Context())
	if s.templates == nil {
		logger.ErrorContext(r.Context(), "Templates not loaded", log.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		logger.ErrorContext(r.Context(), "Template execution failed", log.FieldError, err, "template", name)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderFragment executes a partial template into a string for the htmx
// response builder.
func (s *Server) renderFragment(name string, data any) (string, error) {
	if s.templates == nil {
		return "", errTemplatesMissing
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fail reports err to the user. Expired tokens end the session and send the
// browser to the login page.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	status, msg := userError(err)
	logger := log.FromContext(ctx)
	if status >= http.StatusInternalServerError {
		log.NewStructuredLogger(logger).LogError(ctx, "Request failed", err, op, nil)
	} else {
		logger.WarnContext(ctx, "Request rejected", log.FieldOperation, op, log.FieldError, err, log.FieldStatusCode, status)
	}

	if status == http.StatusUnauthorized {
		if sess := session.FromContext(ctx); sess.IsAuthenticated() {
			if err := s.deps.Sessions.Logout(ctx, sess); err != nil {
				logger.WarnContext(ctx, "Failed to drop expired session", log.FieldError, err)
			}
		}
		session.ClearCookie(w, s.opts.CookieSecure)
		if isHTMX(r) {
			NewHTMXResponse().Status(http.StatusUnauthorized).Redirect("/login").Write(w)
			return
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if isHTMX(r) {
		ErrorResponse(status, msg).Write(w)
		return
	}
	p := s.newPage(r, "Error", "")
	p.Error = msg
	s.render(w, r, status, "error_page", struct {
		page
		Status int
	}{page: p, Status: status})
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"amount":      formatAmount,
		"monthName":   monthName,
		"energyColor": func(e core.EnergyType) template.CSS { return template.CSS(e.Color()) },
		"energyLabel": func(id int) string { return core.ResolveCategory(id).Label() },
		"pad2":        func(n int) string { return fmt.Sprintf("%02d", n) },
	}
}
