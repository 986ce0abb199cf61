// Package memory is an in-process ledger.Backend for local runs and tests.
// Accounts are keyed by e-mail and authenticated with HS256 tokens it mints itself.
package memory

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"gastos/internal/core"
	"gastos/internal/ledger"
)

const (
	issuer   = "gastos-memory"
	tokenTTL = 14 * 24 * time.Hour
)

type addition struct {
	amount      decimal.Decimal
	description string
	createdAt   time.Time
}

type account struct {
	firstName, lastName, email string
	passwordHash               []byte

	balance    decimal.Decimal
	salary     decimal.Decimal
	salaryDate int
	expenses   []core.ExpenseInput
	additions  []addition
}

type Store struct {
	mu       sync.Mutex
	secret   []byte
	now      func() time.Time
	accounts map[string]*account
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the store's clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSecret fixes the token signing key.
func WithSecret(secret []byte) Option {
	return func(s *Store) { s.secret = secret }
}

func New(opts ...Option) *Store {
	s := &Store{now: time.Now, accounts: make(map[string]*account)}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.secret) == 0 {
		s.secret = make([]byte, 32)
		_, _ = rand.Read(s.secret)
	}
	return s
}

var _ ledger.Backend = (*Store)(nil)

type claims struct {
	Email string `json:"EMAIL"`
	jwt.RegisteredClaims
}

func (s *Store) mint(email string) (string, error) {
	now := s.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	})
	return tok.SignedString(s.secret)
}

// account resolves the caller from the token in ctx. Callers hold s.mu.
func (s *Store) account(ctx context.Context) (*account, error) {
	raw := ledger.TokenFrom(ctx)
	if raw == "" {
		return nil, ledger.ErrUnauthorized
	}
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrUnauthorized, err)
	}
	a, ok := s.accounts[strings.ToLower(c.Email)]
	if !ok {
		return nil, ledger.ErrUnauthorized
	}
	return a, nil
}

// Register implements ledger.Authenticator.
func (s *Store) Register(_ context.Context, r core.Registration) error {
	key := strings.ToLower(strings.TrimSpace(r.Email))
	if key == "" || r.Password == "" {
		return fmt.Errorf("%w: email and password are required", ledger.ErrRejected)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrRejected, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[key]; exists {
		return fmt.Errorf("%w: email already registered", ledger.ErrRejected)
	}
	s.accounts[key] = &account{
		firstName:    r.FirstName,
		lastName:     r.LastName,
		email:        key,
		passwordHash: hash,
	}
	return nil
}

// Login implements ledger.Authenticator.
func (s *Store) Login(_ context.Context, c core.Credentials) (core.Session, error) {
	s.mu.Lock()
	a, ok := s.accounts[strings.ToLower(strings.TrimSpace(c.Email))]
	if !ok {
		s.mu.Unlock()
		return core.Session{}, ledger.ErrUnauthorized
	}
	hash := a.passwordHash
	sess := core.Session{FirstName: a.firstName, LastName: a.lastName, Email: a.email}
	s.mu.Unlock()

	if err := bcrypt.CompareHashAndPassword(hash, []byte(c.Password)); err != nil {
		return core.Session{}, ledger.ErrUnauthorized
	}

	token, err := s.mint(sess.Email)
	if err != nil {
		return core.Session{}, fmt.Errorf("sign token: %w", err)
	}
	sess.Token = token
	return sess, nil
}

// ListExpenses groups the caller's expenses under upper-case English month names.
func (s *Store) ListExpenses(ctx context.Context) (core.ExpensePayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.account(ctx)
	if err != nil {
		return core.ExpensePayload{}, err
	}
	p := core.ExpensePayload{MonthlyExpenses: make(map[string][]core.ExpenseRecord)}
	for _, e := range a.expenses {
		key := strings.ToUpper(e.Date.Month().String())
		p.MonthlyExpenses[key] = append(p.MonthlyExpenses[key], core.ExpenseRecord{
			Name:        e.Name,
			Amount:      e.Amount,
			Date:        core.DateOf(e.Date),
			Category:    e.Category,
			Description: e.Description,
			Recurrent:   e.Recurrent,
		})
	}
	return p, nil
}

func (s *Store) YearlyAdditions(ctx context.Context, year int) ([]core.AdditionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.account(ctx)
	if err != nil {
		return nil, err
	}
	var out []core.AdditionRecord
	for _, ad := range a.additions {
		if ad.createdAt.Year() != year {
			continue
		}
		out = append(out, core.AdditionRecord{Amount: ad.amount, Description: ad.description, CreatedAt: core.DateOf(ad.createdAt)})
	}
	return out, nil
}

func (s *Store) Balance(ctx context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.account(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return a.balance, nil
}

func (s *Store) Salary(ctx context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.account(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return a.salary, nil
}

// SalarySpent is this month's expenses over the salary, capped to 0..1.
func (s *Store) SalarySpent(ctx context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.account(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if !a.salary.IsPositive() {
		return decimal.Zero, nil
	}
	now := s.now()
	spent := decimal.Zero
	for _, e := range a.expenses {
		if e.Date.Year() == now.Year() && e.Date.Month() == now.Month() {
			spent = spent.Add(e.Amount)
		}
	}
	ratio := spent.DivRound(a.salary, 4)
	if ratio.GreaterThan(decimal.NewFromInt(1)) {
		ratio = decimal.NewFromInt(1)
	}
	return ratio, nil
}

// RegisterExpense stores e and debits the balance.
func (s *Store) RegisterExpense(ctx context.Context, e core.ExpenseInput) (decimal.Decimal, error) {
	if err := e.Validate(); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ledger.ErrRejected, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.account(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	a.expenses = append(a.expenses, e)
	a.balance = a.balance.Sub(e.Amount)
	return a.balance, nil
}

// FirstRegistry sets the opening figures and records the initial expenses.
func (s *Store) FirstRegistry(ctx context.Context, in core.FirstRegistryInput) error {
	if in.SalaryDate < 1 || in.SalaryDate > 31 || in.CurrentBalance.IsNegative() || !in.MonthlySalary.IsPositive() {
		return fmt.Errorf("%w: invalid first registry", ledger.ErrRejected)
	}
	for _, e := range in.Expenses {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ledger.ErrRejected, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.account(ctx)
	if err != nil {
		return err
	}
	a.balance = in.CurrentBalance
	a.salary = in.MonthlySalary
	a.salaryDate = in.SalaryDate
	a.expenses = append(a.expenses, in.Expenses...)
	return nil
}

func (s *Store) UpdateSalary(ctx context.Context, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: salary must be positive", ledger.ErrRejected)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.account(ctx)
	if err != nil {
		return err
	}
	a.salary = amount
	return nil
}

func (s *Store) UpdateSalaryDate(ctx context.Context, day int) error {
	if day < 1 || day > 31 {
		return fmt.Errorf("%w: %v", ledger.ErrRejected, core.ErrInvalidDay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.account(ctx)
	if err != nil {
		return err
	}
	a.salaryDate = day
	return nil
}

// AddBalance credits the balance and records the addition at the current time.
func (s *Store) AddBalance(ctx context.Context, in core.AdditionInput) (decimal.Decimal, error) {
	if !in.Amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %v", ledger.ErrRejected, core.ErrInvalidAmount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.account(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	a.balance = a.balance.Add(in.Amount)
	a.additions = append(a.additions, addition{amount: in.Amount, description: in.Description, createdAt: s.now()})
	return a.balance, nil
}
