package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gastos/internal/auth"
	"gastos/internal/core"
	"gastos/internal/ledger"
	"gastos/internal/log"
	"gastos/internal/view"
)

const (
	// tokenCookie carries the backend JWT, as the backend itself names it.
	tokenCookie   = "JWT"
	sessionCookie = "gastos_session"
)

// page is the data every full page template receives.
type page struct {
	Title      string
	Email      string
	Notice     string
	Panel      panel
	Categories []core.Category
	Today      string
}

// panel feeds the calendar and summary partials. OOB marks an out-of-band swap.
type panel struct {
	*view.Snapshot
	OOB bool
}

type claimsKey struct{}

func claimsFrom(ctx context.Context) auth.Claims {
	c, _ := ctx.Value(claimsKey{}).(auth.Claims)
	return c
}

// guardedHandler is a handler that runs with a valid token and a view session.
type guardedHandler func(w http.ResponseWriter, r *http.Request, st *view.State)

// authenticated redirects to the login page unless the JWT cookie holds an
// unexpired token. The signature is left for the backend to verify.
func (s *Server) authenticated(next guardedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if c, err := r.Cookie(tokenCookie); err == nil {
			token = c.Value
		}
		claims, err := auth.Inspect(token, s.now())
		if err != nil {
			if !errors.Is(err, auth.ErrMissingToken) {
				log.FromContext(r.Context()).InfoContext(r.Context(), "Rejected session token",
					log.FieldPath, r.URL.Path,
					log.FieldError, err)
				s.clearCookie(w, tokenCookie)
			}
			redirect(w, r, "/login")
			return
		}

		st := s.session(w, r)
		ctx := ledger.WithToken(r.Context(), token)
		ctx = context.WithValue(ctx, claimsKey{}, claims)
		ctx = log.WithLogger(ctx, log.FromContext(ctx).With(log.FieldSessionID, st.ID()))
		next(w, r.WithContext(ctx), st)
	}
}

// session resolves the browser's view state, issuing a new cookie when needed.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *view.State {
	id := ""
	if c, err := r.Cookie(sessionCookie); err == nil {
		id = c.Value
	}
	st, opened := s.sessions.Resolve(id)
	if opened {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    st.ID(),
			Path:     "/",
			HttpOnly: true,
			Secure:   s.cookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return st
}

func (s *Server) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// expire drops a token the backend refused and sends the user to log in again.
func (s *Server) expire(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).InfoContext(r.Context(), "Backend refused session token", log.FieldPath, r.URL.Path)
	s.clearCookie(w, tokenCookie)
	redirect(w, r, "/login?expired=1")
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(health)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if err := s.ready(ctx); err != nil {
		checks["cache"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["cache"] = "ok"
	}

	checks["sessions"] = map[string]interface{}{
		"active": s.sessions.Len(),
		"status": "ok",
	}
	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}

	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(response)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	w.WriteHeader(http.StatusOK)

	// Write metrics in Prometheus-like format
	metric := func(name, help, kind string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(w, "%s %v\n\n", name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "Requests answered with a 5xx status", "counter", traceMetrics.ServerErrors)
	metric("http_response_seconds_avg", "Mean request handling time", "gauge", fmt.Sprintf("%.4f", traceMetrics.AverageResponseTime.Seconds()))
	metric("calendar_renders_total", "Calendar render passes committed", "counter", s.appMetrics.renders.Load())
	metric("calendar_renders_superseded_total", "Render passes discarded for a newer one", "counter", s.appMetrics.superseded.Load())
	metric("mutations_total", "Successful ledger mutations", "counter", s.appMetrics.mutations.Load())
	metric("mutation_failures_total", "Rejected or failed ledger mutations", "counter", s.appMetrics.mutationFailures.Load())
	metric("view_sessions", "Live view sessions", "gauge", s.sessions.Len())
	metric("rate_limit_hits_total", "Total rate limit hits", "counter", rateLimitMetrics.TotalHits)
	metric("suspicious_requests_total", "Total suspicious requests detected", "counter", securityMetrics.SuspiciousRequests)
	metric("active_rate_limit_clients", "Currently tracked rate limit clients", "gauge", rateLimitMetrics.ClientCount)
	metric("uptime_seconds", "Application uptime in seconds", "gauge", fmt.Sprintf("%.0f", time.Since(s.appMetrics.uptime).Seconds()))
}

// handleIndex renders the dashboard for the session's selected period.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, st *view.State) {
	if r.URL.Path != "/" {
		NotFoundError("Página não encontrada.").Write(w)
		return
	}
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}

	snap, err := s.controller.Render(r.Context(), st, st.Period())
	if errors.Is(err, view.ErrSuperseded) {
		// A newer pass from another tab already committed; show that one.
		snap, err = st.Current(), nil
	}
	if err != nil || snap == nil {
		s.renderFailed(w, r, err)
		return
	}
	s.appMetrics.renders.Add(1)

	if snap.Unauthorized {
		s.expire(w, r)
		return
	}
	if snap.Figures.NeedsOnboarding {
		redirect(w, r, "/first/registry")
		return
	}

	s.respond(w, r, NewHTMXResponse(), "index_page", page{
		Title:      "Calendário",
		Email:      claimsFrom(r.Context()).Email,
		Panel:      panel{Snapshot: snap},
		Categories: core.Categories,
		Today:      s.now().Format(dateInputValue),
	})
}

// renderFailed answers a render that produced no snapshot. A cancelled request
// gets nothing since nobody is waiting for it.
func (s *Server) renderFailed(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		return
	}
	s.structured.LogError(r.Context(), "Calendar render failed", err, log.ComponentView, log.OpRender)
	InternalServerError("Erro ao carregar o calendário.").Write(w)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		if c, err := r.Cookie(tokenCookie); err == nil {
			if _, err := auth.Inspect(c.Value, s.now()); err == nil {
				redirect(w, r, "/")
				return
			}
		}
		notice := ""
		switch {
		case r.URL.Query().Get("registered") != "":
			notice = view.NoticeRegistered
		case r.URL.Query().Get("expired") != "":
			notice = "Sua sessão expirou. Faça login novamente."
		}
		s.respond(w, r, NewHTMXResponse(), "login_page", page{Title: "Entrar", Notice: notice})

	case http.MethodPost:
		p, resp := ReadFormOrFail(r)
		if resp != nil {
			resp.Write(w)
			return
		}
		sess, err := s.controller.Login(r.Context(), decodeLogin(p))
		if err != nil {
			s.writeFormError(w, r, err)
			return
		}
		s.setToken(w, sess.Token)
		redirect(w, r, "/")

	default:
		MethodNotAllowedError("GET, POST").Write(w)
	}
}

// setToken stores the backend JWT, expiring the cookie with the token.
func (s *Server) setToken(w http.ResponseWriter, token string) {
	c := &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if claims, err := auth.Inspect(token, s.now()); err == nil && !claims.ExpiresAt.IsZero() {
		c.Expires = claims.ExpiresAt
	}
	http.SetCookie(w, c)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.respond(w, r, NewHTMXResponse(), "register_page", page{Title: "Criar conta"})

	case http.MethodPost:
		p, resp := ReadFormOrFail(r)
		if resp != nil {
			resp.Write(w)
			return
		}
		if err := s.controller.Register(r.Context(), decodeRegistration(p)); err != nil {
			s.writeFormError(w, r, err)
			return
		}
		redirect(w, r, "/login?registered=1")

	default:
		MethodNotAllowedError("GET, POST").Write(w)
	}
}

// handleLogout forgets the token and the view session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		s.sessions.Close(c.Value)
	}
	s.clearCookie(w, tokenCookie)
	s.clearCookie(w, sessionCookie)
	redirect(w, r, "/login")
}

func (s *Server) handleFirstRegistry(w http.ResponseWriter, r *http.Request, st *view.State) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.respond(w, r, NewHTMXResponse(), "first_registry_page", page{
			Title:      "Cadastro inicial",
			Email:      claimsFrom(r.Context()).Email,
			Categories: core.Categories,
			Today:      s.now().Format(dateInputValue),
		})

	case http.MethodPost:
		p, resp := ReadFormOrFail(r)
		if resp != nil {
			resp.Write(w)
			return
		}
		form, ferrs := decodeFirstRegistry(p)
		if ferrs != nil {
			s.writeMutationError(w, r, invalidForm(ferrs))
			return
		}
		if _, err := s.controller.FirstRegistry(r.Context(), st, form); err != nil {
			s.writeMutationError(w, r, err)
			return
		}
		s.appMetrics.mutations.Add(1)
		redirect(w, r, "/")

	default:
		MethodNotAllowedError("GET, POST").Write(w)
	}
}
