// Package api is the HTTP adapter for the budgeting backend's REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
	"gastos/internal/ledger"
	"gastos/internal/log"
)

// CookieName is the cookie the backend reads the JWT from.
const CookieName = "JWT"

// Endpoint paths.
const (
	pathExpenses        = "/api/expense/get/all/v2"
	pathRegisterExpense = "/api/expense/register"
	pathFirstRegistry   = "/api/expense/first/registry"
	pathBalance         = "/api/user/get/balance"
	pathSalary          = "/api/user/get/salary"
	pathSalarySpent     = "/api/user/get/salary/spent"
	pathUpdateSalary    = "/api/additions/salary/update"
	pathUpdateSalaryDay = "/api/additions/salary/date/update"
	pathYearlyAdditions = "/api/additions/get/yearly"
	pathAddBalance      = "/api/additions/add/balance"
	pathLogin           = "/api/user/login"
	pathRegister        = "/api/user/register"
)

const maxErrorBody = 4 << 10

// localDateTime is the backend's LocalDateTime wire format.
const localDateTime = "2006-01-02T15:04:05"

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Is classifies the status into the ledger sentinel errors.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ledger.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ledger.ErrRejected:
		return e.Status >= 400 && e.Status < 500 && e.Status != http.StatusUnauthorized && e.Status != http.StatusForbidden
	case ledger.ErrUnavailable:
		return e.Status >= 500
	}
	return false
}

// Client implements ledger.Backend over HTTP.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client's logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent(log.ComponentAPI) }
}

// New builds a client for the backend rooted at baseURL.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: unsupported scheme", baseURL)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: timeout},
		logger: log.New(log.DefaultConfig()).WithComponent(log.ComponentAPI),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ ledger.Backend = (*Client)(nil)

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()
	return u.String()
}

// do sends one request and decodes a 2xx JSON answer into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), rdr)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := ledger.TokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "Backend request failed",
			log.FieldMethod, method, log.FieldEndpoint, path, log.FieldError, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s %s: %w: %v", method, path, ledger.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "Backend request completed",
		log.FieldMethod, method,
		log.FieldEndpoint, path,
		log.FieldStatusCode, resp.StatusCode,
		log.Millis(time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, statusError(method, path, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp, fmt.Errorf("decode %s response: %w", path, err)
	}
	return resp, nil
}

func statusError(method, path string, resp *http.Response) error {
	se := &StatusError{Method: method, Path: path, Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		se.Message = payload.Message
		if se.Message == "" {
			se.Message = payload.Error
		}
	}
	return se
}

func (c *Client) getDecimal(ctx context.Context, path string) (decimal.Decimal, error) {
	var d decimal.Decimal
	if _, err := c.do(ctx, http.MethodGet, path, nil, nil, &d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ListExpenses implements ledger.ExpenseReader.
func (c *Client) ListExpenses(ctx context.Context) (core.ExpensePayload, error) {
	var p core.ExpensePayload
	if _, err := c.do(ctx, http.MethodGet, pathExpenses, nil, nil, &p); err != nil {
		return core.ExpensePayload{}, err
	}
	return p, nil
}

// YearlyAdditions implements ledger.AdditionReader.
func (c *Client) YearlyAdditions(ctx context.Context, year int) ([]core.AdditionRecord, error) {
	var out []core.AdditionRecord
	q := url.Values{"year": {strconv.Itoa(year)}}
	if _, err := c.do(ctx, http.MethodGet, pathYearlyAdditions, q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	return c.getDecimal(ctx, pathBalance)
}

func (c *Client) Salary(ctx context.Context) (decimal.Decimal, error) {
	return c.getDecimal(ctx, pathSalary)
}

func (c *Client) SalarySpent(ctx context.Context) (decimal.Decimal, error) {
	return c.getDecimal(ctx, pathSalarySpent)
}

type expenseDTO struct {
	Date        string      `json:"expenseDate"`
	Recurrent   bool        `json:"isRecurrent"`
	Amount      json.Number `json:"expenseAmount"`
	Name        string      `json:"expenseName"`
	Category    string      `json:"expenseCategory"`
	Description string      `json:"description,omitempty"`
}

func toExpenseDTO(e core.ExpenseInput) expenseDTO {
	return expenseDTO{
		Date:        e.Date.Format(localDateTime),
		Recurrent:   e.Recurrent,
		Amount:      number(e.Amount),
		Name:        e.Name,
		Category:    string(e.Category),
		Description: e.Description,
	}
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

// RegisterExpense implements ledger.ExpenseWriter.
func (c *Client) RegisterExpense(ctx context.Context, e core.ExpenseInput) (decimal.Decimal, error) {
	var balance decimal.Decimal
	if _, err := c.do(ctx, http.MethodPost, pathRegisterExpense, nil, toExpenseDTO(e), &balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// FirstRegistry implements ledger.ExpenseWriter.
func (c *Client) FirstRegistry(ctx context.Context, in core.FirstRegistryInput) error {
	body := struct {
		CurrentBalance json.Number  `json:"currentBalance"`
		MonthlySalary  json.Number  `json:"monthlySalary"`
		SalaryDate     int          `json:"salaryDate"`
		Expenses       []expenseDTO `json:"expenses"`
	}{
		CurrentBalance: number(in.CurrentBalance),
		MonthlySalary:  number(in.MonthlySalary),
		SalaryDate:     in.SalaryDate,
		Expenses:       make([]expenseDTO, 0, len(in.Expenses)),
	}
	for _, e := range in.Expenses {
		body.Expenses = append(body.Expenses, toExpenseDTO(e))
	}
	_, err := c.do(ctx, http.MethodPost, pathFirstRegistry, nil, body, nil)
	return err
}

// UpdateSalary implements ledger.AccountWriter.
func (c *Client) UpdateSalary(ctx context.Context, amount decimal.Decimal) error {
	q := url.Values{"salaryAmount": {amount.StringFixed(2)}}
	_, err := c.do(ctx, http.MethodPut, pathUpdateSalary, q, nil, nil)
	return err
}

// UpdateSalaryDate implements ledger.AccountWriter.
func (c *Client) UpdateSalaryDate(ctx context.Context, day int) error {
	q := url.Values{"salaryDate": {strconv.Itoa(day)}}
	_, err := c.do(ctx, http.MethodPut, pathUpdateSalaryDay, q, nil, nil)
	return err
}

// AddBalance implements ledger.AccountWriter.
func (c *Client) AddBalance(ctx context.Context, a core.AdditionInput) (decimal.Decimal, error) {
	body := struct {
		Amount      json.Number `json:"amount"`
		Description string      `json:"description,omitempty"`
	}{number(a.Amount), a.Description}

	var balance decimal.Decimal
	if _, err := c.do(ctx, http.MethodPost, pathAddBalance, nil, body, &balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// Login implements ledger.Authenticator. The token comes from the response
// body, falling back to the JWT cookie the backend also sets.
func (c *Client) Login(ctx context.Context, cred core.Credentials) (core.Session, error) {
	body := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{cred.Email, cred.Password}

	var user struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		JWTToken  string `json:"jwtToken"`
	}
	resp, err := c.do(ctx, http.MethodPost, pathLogin, nil, body, &user)
	if err != nil {
		return core.Session{}, err
	}

	s := core.Session{FirstName: user.FirstName, LastName: user.LastName, Email: user.Email, Token: user.JWTToken}
	if s.Token == "" {
		for _, ck := range resp.Cookies() {
			if ck.Name == CookieName {
				s.Token = ck.Value
			}
		}
	}
	if s.Token == "" {
		return core.Session{}, errors.New("login response carried no token")
	}
	if s.Email == "" {
		s.Email = cred.Email
	}
	return s, nil
}

// Register implements ledger.Authenticator. Only 201 Created counts as success.
func (c *Client) Register(ctx context.Context, r core.Registration) error {
	body := struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		Password  string `json:"password"`
	}{r.FirstName, r.LastName, r.Email, r.Password}

	resp, err := c.do(ctx, http.MethodPost, pathRegister, nil, body, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusCreated {
		return &StatusError{Method: http.MethodPost, Path: pathRegister, Status: resp.StatusCode, Message: "expected 201 Created"}
	}
	return nil
}
