// Package trace tags each request with an ID and logs how it ended.
package trace

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gastos/internal/log"
)

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

type requestIDKey struct{}

// Metrics are request counters since startup.
type Metrics struct {
	TotalRequests int64
	ServerErrors  int64
	// AverageResponseTime is the mean handling time.
	AverageResponseTime time.Duration
}

type Middleware struct {
	clientIP func(*http.Request) string
	logger   *log.Logger

	requests atomic.Int64
	failures atomic.Int64
	elapsed  atomic.Int64 // nanoseconds, summed
}

// NewMiddleware logs under the trace component. clientIP may be nil.
func NewMiddleware(logger *log.Logger, clientIP func(*http.Request) string) *Middleware {
	logger = logger.WithComponent(log.ComponentTrace)
	if clientIP == nil {
		clientIP = func(r *http.Request) string { return r.RemoteAddr }
	}
	return &Middleware{
		clientIP: clientIP,
		logger:   logger,
	}
}

// Middleware reuses an incoming X-Request-ID when it is a UUID and mints one
// otherwise. The request context carries the ID and a logger tagged with it.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		ip := m.clientIP(r)

		id := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)

		logger := m.logger.With(log.FieldRequestID, id, log.FieldClientIP, ip)
		ctx := log.WithLogger(context.WithValue(r.Context(), requestIDKey{}, id), logger)
		r = r.WithContext(ctx)

		logger.DebugContext(ctx, "HTTP request started",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			"htmx", r.Header.Get("HX-Request") == "true")

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		took := time.Since(began)
		m.requests.Add(1)
		m.elapsed.Add(int64(took))
		if rec.status >= http.StatusInternalServerError {
			m.failures.Add(1)
		}
		log.NewStructuredLogger(logger).LogHTTPEnd(ctx, r, rec.status, took)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rec *statusRecorder) WriteHeader(code int) {
	if !rec.wroteHeader {
		rec.status = code
		rec.wroteHeader = true
	}
	rec.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// GetRequestID returns the ID the middleware stored in ctx, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (m *Middleware) GetMetrics() Metrics {
	out := Metrics{
		TotalRequests: m.requests.Load(),
		ServerErrors:  m.failures.Load(),
	}
	if out.TotalRequests > 0 {
		out.AverageResponseTime = time.Duration(m.elapsed.Load() / out.TotalRequests)
	}
	return out
}
