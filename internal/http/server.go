package http

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"gastos/internal/cache"
	"gastos/internal/calendar"
	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/middleware/ratelimit"
	"gastos/internal/middleware/security"
	"gastos/internal/middleware/trace"
	"gastos/internal/view"
	appweb "gastos/web"
)

// Options configures the HTTP server.
type Options struct {
	Addr               string
	CookieSecure       bool
	RateLimitPerMinute int
	TrustedProxies     []string
	// Ready reports whether downstream dependencies can serve traffic.
	Ready  func(ctx context.Context) error
	Logger *log.Logger
	// Clock drives token expiry checks and rate limit windows; defaults to time.Now.
	Clock func() time.Time
}

// Server serves the calendar UI on top of a view.Controller.
type Server struct {
	http.Server
	templates  *template.Template
	controller *view.Controller
	sessions   *view.Sessions
	ready      func(ctx context.Context) error
	now        func() time.Time

	cookieSecure bool

	logger     *log.Logger
	structured *log.StructuredLogger

	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware

	appMetrics *appMetrics
}

type appMetrics struct {
	uptime           time.Time
	renders          atomic.Int64
	superseded       atomic.Int64
	mutations        atomic.Int64
	mutationFailures atomic.Int64
}

// NewServer configures routes, middleware and templates, returning a ready-to-run server.
func NewServer(opts Options, controller *view.Controller, sessions *view.Sessions) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Ready == nil {
		opts.Ready = func(context.Context) error { return nil }
	}
	logger := opts.Logger.WithComponent(log.ComponentHTTP)

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring invalid trusted proxy", "cidr", cidr, log.Err(err))
		}
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		controller:       controller,
		sessions:         sessions,
		ready:            opts.Ready,
		now:              opts.Clock,
		cookieSecure:     opts.CookieSecure,
		logger:           logger,
		structured:       log.NewStructuredLogger(logger),
		securityDetector: detector,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
			Clock:             opts.Clock,
		}),
		traceMiddleware: trace.NewMiddleware(opts.Logger, detector.ExtractClientIP),
		appMetrics:      &appMetrics{uptime: time.Now()},
	}

	// Parse embedded templates at startup.
	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.WithComponent(log.ComponentTemplate).Error("Failed parsing templates", log.Err(err))
	} else {
		s.templates = t
	}

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(time.Hour)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", log.Err(err))
	}

	page := func(h http.HandlerFunc) http.Handler { return security.NoStore(h) }

	// Ops
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	// Pages
	mux.Handle("/", page(s.authenticated(s.handleIndex)))
	mux.Handle("/login", page(s.handleLogin))
	mux.Handle("/register", page(s.handleRegister))
	mux.Handle("/logout", page(s.handleLogout))
	mux.Handle("/first/registry", page(s.authenticated(s.handleFirstRegistry)))

	// Calendar partials and navigation
	mux.Handle("/ui/calendar", page(s.authenticated(s.handleCalendar)))
	mux.Handle("/ui/summary", page(s.authenticated(s.handleSummary)))
	mux.Handle("/ui/year/prev", page(s.authenticated(s.handlePrevYear)))
	mux.Handle("/ui/year/next", page(s.authenticated(s.handleNextYear)))
	mux.Handle("/ui/month", page(s.authenticated(s.handleSelectMonth)))

	// Mutations
	mux.Handle("/salary", page(s.authenticated(s.handleUpdateSalary)))
	mux.Handle("/salary/date", page(s.authenticated(s.handleUpdateSalaryDate)))
	mux.Handle("/expenses", page(s.authenticated(s.handleRegisterExpense)))
	mux.Handle("/balance", page(s.authenticated(s.handleAddBalance)))

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(detector.ExtractClientIP, isPost, s.handleRateLimited)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = detector.Middleware(opts.Logger)(handler)
	handler = s.traceMiddleware.Middleware(handler)
	s.Handler = handler

	return s
}

func isPost(r *http.Request) bool {
	return r.Method == http.MethodPost
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Muitas requisições. Tente novamente em instantes.").
		Header("Retry-After", "60").
		TriggerErrorNotification("Muitas requisições. Tente novamente em instantes.").
		Write(w)
}

// Cleaners are the server's in-process tables that expire entries.
func (s *Server) Cleaners() []cache.Cleaner {
	return []cache.Cleaner{s.rateLimiter}
}

// execute renders the named template into memory so a failure never leaves a
// half-written response.
func (s *Server) execute(name string, data any) ([]byte, error) {
	if s.templates == nil {
		return nil, fmt.Errorf("templates not loaded")
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("execute %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// respond renders name with data into b and writes it.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, name string, data any) {
	body, err := s.execute(name, data)
	if err != nil {
		s.structured.LogError(r.Context(), "Template execution failed", err, log.ComponentTemplate, log.OpRender,
			"template", name)
		InternalServerError("Erro ao montar a página.").Write(w)
		return
	}
	b.BodyHTML(string(body)).Write(w)
}

var fieldLabels = map[string]string{
	"email":           "E-mail",
	"password":        "Senha",
	"confirmPassword": "Confirmação de senha",
	"firstName":       "Nome",
	"lastName":        "Sobrenome",
	"salaryAmount":    "Salário",
	"salaryDate":      "Dia do pagamento",
	"amount":          "Valor",
	"description":     "Descrição",
	"expenseName":     "Nome do gasto",
	"expenseAmount":   "Valor",
	"expenseDate":     "Data",
	"expenseCategory": "Categoria",
	"currentBalance":  "Saldo atual",
	"monthlySalary":   "Salário mensal",
}

// fieldLabel names a form field for the error list. Onboarding expense rows
// ("expenses[0].expenseName") are numbered from one.
func fieldLabel(key string) string {
	prefix := ""
	if rest, ok := strings.CutPrefix(key, "expenses["); ok {
		if idx, field, ok := strings.Cut(rest, "]."); ok {
			if n, err := strconv.Atoi(idx); err == nil {
				prefix = fmt.Sprintf("Gasto %d: ", n+1)
				key = field
			}
		}
	}
	if l, ok := fieldLabels[key]; ok {
		return prefix + l
	}
	return prefix + key
}

var templateFuncs = template.FuncMap{
	"fieldLabel":    fieldLabel,
	"categoryLabel": func(c core.Category) string { return c.Label() },
	"monthNumber":   func(m time.Month) int { return int(m) },
	"monthName":     calendar.MonthName,
	"months": func() []time.Month {
		out := make([]time.Month, 0, 12)
		for m := time.January; m <= time.December; m++ {
			out = append(out, m)
		}
		return out
	},
}
