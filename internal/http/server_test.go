package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"gastos/internal/core"
	"gastos/internal/ledger/memory"
	"gastos/internal/log"
	"gastos/internal/view"
)

var testNow = time.Date(2024, time.January, 20, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	srv   *Server
	store *memory.Store
	token string
}

func newTestEnv(t *testing.T, serverNow time.Time) *testEnv {
	t.Helper()
	clock := func() time.Time { return testNow }
	store := memory.New(memory.WithClock(clock), memory.WithSecret([]byte("test-secret")))
	if err := memory.Seed(context.Background(), store); err != nil {
		t.Fatalf("seed: %v", err)
	}
	sess, err := store.Login(context.Background(), core.Credentials{Email: memory.DemoEmail, Password: memory.DemoPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	controller := view.NewController(store, view.WithClock(clock), view.WithLogger(log.Discard()))
	sessions := view.NewSessions(10, time.Hour, clock)
	srv := NewServer(Options{
		Addr:               ":0",
		RateLimitPerMinute: 1000,
		Logger:             log.Discard(),
		Clock:              func() time.Time { return serverNow },
	}, controller, sessions)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &testEnv{srv: srv, store: store, token: sess.Token}
}

// do sends a request carrying the demo token and any extra cookies.
func (e *testEnv) do(method, target string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if e.token != "" {
		req.AddCookie(&http.Cookie{Name: tokenCookie, Value: e.token})
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func responseCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHealthReadyMetrics(t *testing.T) {
	env := newTestEnv(t, testNow)
	env.token = ""

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := env.do(http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
	}
	if rr := env.do(http.MethodGet, "/metrics", nil); !strings.Contains(rr.Body.String(), "calendar_renders_total") {
		t.Errorf("metrics missing render counter: %s", rr.Body.String())
	}
}

func TestReadyReportsCacheFailure(t *testing.T) {
	env := newTestEnv(t, testNow)
	env.srv.ready = func(context.Context) error { return errors.New("redis down") }

	rr := env.do(http.MethodGet, "/readyz", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "redis down") {
		t.Errorf("body should name the failing check: %s", rr.Body.String())
	}
}

func TestAuthGuard(t *testing.T) {
	env := newTestEnv(t, testNow)
	env.token = ""

	rr := env.do(http.MethodGet, "/", nil)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
		t.Fatalf("status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}

	req := httptest.NewRequest(http.MethodGet, "/ui/calendar", nil)
	req.Header.Set("HX-Request", "true")
	rr = httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)
	if rr.Header().Get("HX-Redirect") != "/login" {
		t.Errorf("htmx requests should be redirected through HX-Redirect, headers=%v", rr.Header())
	}
}

func TestExpiredTokenIsCleared(t *testing.T) {
	env := newTestEnv(t, testNow.Add(30*24*time.Hour))

	rr := env.do(http.MethodGet, "/", nil)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
		t.Fatalf("status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
	if c := responseCookie(rr, tokenCookie); c == nil || c.MaxAge >= 0 {
		t.Errorf("expired token cookie should be cleared, got %+v", c)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, testNow)
	env.token = ""

	rr := env.do(http.MethodPost, "/login", url.Values{"email": {memory.DemoEmail}, "password": {"wrong-password-123"}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad password status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "E-mail ou senha inválidos.") {
		t.Errorf("body = %s", rr.Body.String())
	}

	rr = env.do(http.MethodPost, "/login", url.Values{"email": {"not-an-email"}, "password": {"short"}})
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), `data-field="password"`) {
		t.Errorf("invalid form status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(http.MethodPost, "/login", url.Values{"email": {memory.DemoEmail}, "password": {memory.DemoPassword}})
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
		t.Fatalf("status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
	c := responseCookie(rr, tokenCookie)
	if c == nil || c.Value == "" || !c.HttpOnly {
		t.Fatalf("JWT cookie = %+v", c)
	}
	if !c.Expires.Equal(testNow.Add(14 * 24 * time.Hour).Truncate(time.Second)) {
		t.Errorf("cookie should expire with the token, got %v", c.Expires)
	}

	env.token = c.Value
	if rr := env.do(http.MethodGet, "/login", nil); rr.Code != http.StatusSeeOther {
		t.Errorf("logged-in user should skip the login page, status=%d", rr.Code)
	}
}

func TestIndexRendersDashboard(t *testing.T) {
	env := newTestEnv(t, testNow)

	rr := env.do(http.MethodGet, "/", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{"R$ 2.500,00", "R$ 5.000,00", "36%", "Janeiro", "Dezembro", "2 gastos, 1 recebimentos", "split-bg", "Aluguel"} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
	if responseCookie(rr, sessionCookie) == nil {
		t.Error("first visit should issue a session cookie")
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}

	if rr := env.do(http.MethodGet, "/nope", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown path status=%d", rr.Code)
	}
}

func TestCalendarNavigation(t *testing.T) {
	env := newTestEnv(t, testNow)
	first := env.do(http.MethodGet, "/", nil)
	session := responseCookie(first, sessionCookie)

	rr := env.do(http.MethodGet, "/ui/calendar?year=2024&month=1", nil, session)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Janeiro de 2024") {
		t.Fatalf("month view status=%d", rr.Code)
	}
	if n := strings.Count(rr.Body.String(), `class="month-card"`); n != 1 {
		t.Errorf("single month view rendered %d month cards", n)
	}
	if !strings.Contains(rr.Body.String(), `id="summary" class="summary" hx-swap-oob="true"`) {
		t.Error("calendar swaps should refresh the summary out of band")
	}

	rr = env.do(http.MethodPost, "/ui/year/prev", url.Values{}, session)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Janeiro de 2023") {
		t.Errorf("prev year keeps the selected month, status=%d", rr.Code)
	}

	rr = env.do(http.MethodPost, "/ui/month", url.Values{"month": {"0"}}, session)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "<h2>2023</h2>") {
		t.Errorf("clearing the month shows the whole year, status=%d", rr.Code)
	}

	for _, bad := range []string{"/ui/calendar?month=13", "/ui/calendar?year=abc"} {
		if rr := env.do(http.MethodGet, bad, nil, session); rr.Code != http.StatusBadRequest {
			t.Errorf("%s status=%d", bad, rr.Code)
		}
	}
	if rr := env.do(http.MethodPost, "/ui/month", url.Values{"month": {"13"}}, session); rr.Code != http.StatusBadRequest {
		t.Errorf("month=13 status=%d", rr.Code)
	}
	if rr := env.do(http.MethodGet, "/ui/calendar?year=1", nil, session); rr.Code != http.StatusOK {
		t.Fatalf("year 1 status=%d", rr.Code)
	}
	if rr := env.do(http.MethodPost, "/ui/year/prev", url.Values{}, session); rr.Code != http.StatusBadRequest {
		t.Errorf("prev from year 1 status=%d, want 400", rr.Code)
	}
	if rr := env.do(http.MethodGet, "/ui/year/next", nil, session); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET navigation status=%d", rr.Code)
	}
}

func TestSummaryPartial(t *testing.T) {
	env := newTestEnv(t, testNow)

	rr := env.do(http.MethodGet, "/ui/summary", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if body := rr.Body.String(); !strings.Contains(body, "R$ 2.500,00") || !strings.Contains(body, "moderate") {
		t.Errorf("summary = %s", body)
	}
}

func TestMutations(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		form       url.Values
		wantStatus int
		wantBody   string
	}{
		{
			name:       "salary day out of range",
			path:       "/salary/date",
			form:       url.Values{"salaryDate": {"32"}},
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   "Por favor, informe um dia válido (1-31).",
		},
		{
			name:       "unparseable amount",
			path:       "/expenses",
			form:       url.Values{"expenseName": {"Café"}, "expenseAmount": {"abc"}, "expenseDate": {"2024-01-20"}, "expenseCategory": {"FOOD"}},
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   msgBadAmount,
		},
		{
			name:       "unknown category",
			path:       "/expenses",
			form:       url.Values{"expenseName": {"Café"}, "expenseAmount": {"12,50"}, "expenseDate": {"2024-01-20"}, "expenseCategory": {"GAMBLING"}},
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   "Selecione uma categoria.",
		},
		{
			name:       "expense",
			path:       "/expenses",
			form:       url.Values{"expenseName": {"Café"}, "expenseAmount": {"12,50"}, "expenseDate": {"2024-01-20"}, "expenseCategory": {"FOOD"}},
			wantStatus: http.StatusOK,
			wantBody:   view.NoticeExpense,
		},
		{
			name:       "balance",
			path:       "/balance",
			form:       url.Values{"amount": {"100"}, "description": {"Reembolso"}},
			wantStatus: http.StatusOK,
			wantBody:   "R$ 2.600,00",
		},
		{
			name:       "salary",
			path:       "/salary",
			form:       url.Values{"salaryAmount": {"6.000,00"}},
			wantStatus: http.StatusOK,
			wantBody:   "R$ 6.000,00",
		},
		{
			name:       "salary date",
			path:       "/salary/date",
			form:       url.Values{"salaryDate": {"10"}},
			wantStatus: http.StatusOK,
			wantBody:   view.NoticeSalaryDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, testNow)
			rr := env.do(http.MethodPost, tt.path, tt.form)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), tt.wantBody) {
				t.Errorf("body missing %q: %s", tt.wantBody, rr.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				trigger := rr.Header().Get("HX-Trigger")
				if !strings.Contains(trigger, EventNotification) || !strings.Contains(trigger, EventFormReset) {
					t.Errorf("HX-Trigger = %s", trigger)
				}
				if !strings.Contains(rr.Body.String(), `hx-swap-oob="true"`) {
					t.Error("successful mutation should swap the calendar out of band")
				}
			}
		})
	}
}

func TestOnboardingFlow(t *testing.T) {
	env := newTestEnv(t, testNow)
	env.token = ""

	reg := url.Values{
		"firstName":       {"Ana"},
		"lastName":        {"Souza"},
		"email":           {"ana@example.com"},
		"password":        {"senha-bem-segura"},
		"confirmPassword": {"senha-bem-segura"},
	}
	rr := env.do(http.MethodPost, "/register", reg)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login?registered=1" {
		t.Fatalf("register status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
	if rr := env.do(http.MethodGet, "/login?registered=1", nil); !strings.Contains(rr.Body.String(), view.NoticeRegistered) {
		t.Error("login page should confirm the registration")
	}

	rr = env.do(http.MethodPost, "/login", url.Values{"email": {"ana@example.com"}, "password": {"senha-bem-segura"}})
	env.token = responseCookie(rr, tokenCookie).Value

	rr = env.do(http.MethodGet, "/", nil)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/first/registry" {
		t.Fatalf("new account should be sent to onboarding, status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
	if rr := env.do(http.MethodGet, "/first/registry", nil); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Cadastro inicial") {
		t.Fatalf("onboarding page status=%d", rr.Code)
	}

	bad := url.Values{
		"currentBalance":  {"100"},
		"monthlySalary":   {"3000"},
		"salaryDate":      {"5"},
		"expenseName":     {"Aluguel", ""},
		"expenseAmount":   {"-5", ""},
		"expenseDate":     {"2024-01-05", "2024-01-20"},
		"expenseCategory": {"HOUSING", ""},
		"isRecurrent":     {"true", "false"},
	}
	rr = env.do(http.MethodPost, "/first/registry", bad)
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "Gasto 1: Valor") {
		t.Fatalf("invalid row status=%d body=%s", rr.Code, rr.Body.String())
	}

	good := url.Values{}
	for k, v := range bad {
		good[k] = v
	}
	good["expenseAmount"] = []string{"1200", ""}
	rr = env.do(http.MethodPost, "/first/registry", good)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
		t.Fatalf("onboarding status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(http.MethodGet, "/", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "R$ 3.000,00") {
		t.Errorf("dashboard after onboarding status=%d", rr.Code)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, testNow)
	first := env.do(http.MethodGet, "/", nil)
	session := responseCookie(first, sessionCookie)
	if env.srv.sessions.Len() != 1 {
		t.Fatalf("sessions = %d", env.srv.sessions.Len())
	}

	rr := env.do(http.MethodPost, "/logout", url.Values{}, session)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
		t.Fatalf("status=%d", rr.Code)
	}
	if c := responseCookie(rr, tokenCookie); c == nil || c.MaxAge >= 0 {
		t.Errorf("token cookie should be cleared: %+v", c)
	}
	if env.srv.sessions.Len() != 0 {
		t.Error("logout should close the view session")
	}
}

func TestSecurityHeadersAndStatic(t *testing.T) {
	env := newTestEnv(t, testNow)
	env.token = ""

	rr := env.do(http.MethodGet, "/static/app.css", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("static status=%d", rr.Code)
	}
	if rr.Header().Get("Cache-Control") != "public, max-age=3600" {
		t.Errorf("Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" || rr.Header().Get("Content-Security-Policy") == "" {
		t.Errorf("security headers missing: %v", rr.Header())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("trace middleware should echo a request id")
	}
}

func TestFieldLabel(t *testing.T) {
	tests := map[string]string{
		"salaryDate":                "Dia do pagamento",
		"expenses[0].expenseAmount": "Gasto 1: Valor",
		"expenses[2].expenseName":   "Gasto 3: Nome do gasto",
		"somethingElse":             "somethingElse",
		"expenses[x].expenseAmount": "expenses[x].expenseAmount",
	}
	for in, want := range tests {
		if got := fieldLabel(in); got != want {
			t.Errorf("fieldLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
