package view

import (
	"context"
	"errors"
	"strings"

	"gastos/internal/core"
	"gastos/internal/events"
	"gastos/internal/ledger"
	"gastos/internal/log"
	"gastos/internal/validation"
)

// Notices shown after a successful mutation.
const (
	NoticeSalary        = "Salário atualizado com sucesso!"
	NoticeSalaryDate    = "Data de recebimento atualizada com sucesso!"
	NoticeExpense       = "Gasto registrado com sucesso!"
	NoticeBalance       = "Saldo adicionado com sucesso!"
	NoticeFirstRegistry = "Cadastro inicial concluído!"
	NoticeRegistered    = "Cadastro realizado! Faça login para continuar."
)

// Outcome is the result of a successful mutation. Snapshot is nil when the
// follow-up render was superseded by a newer one.
type Outcome struct {
	Notice   string
	Snapshot *Snapshot
}

// MutationError is a failed submission. Fields holds per-field messages when
// the form itself was invalid; otherwise Message describes the backend failure.
type MutationError struct {
	Fields  validation.FieldErrors
	Message string
	Err     error
}

func (e *MutationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	if len(e.Fields) > 0 {
		return e.Fields.Error()
	}
	return e.Message
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// InvalidFormMessage heads the list of field errors.
const InvalidFormMessage = "Verifique os campos destacados."

func failureMessage(err error) string {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		return "Sua sessão expirou. Faça login novamente."
	case errors.Is(err, ledger.ErrRejected):
		return "Não foi possível salvar. Verifique os dados informados."
	default:
		return "Erro ao salvar. Tente novamente em instantes."
	}
}

// checkForm validates form before anything reaches the backend.
func checkForm(form any) error {
	err := validation.Validate(form)
	if err == nil {
		return nil
	}
	var fe validation.FieldErrors
	if errors.As(err, &fe) {
		return &MutationError{Fields: fe, Message: InvalidFormMessage}
	}
	return err
}

// mutate validates form, applies the change, announces it and re-renders the
// current period. A failure at any step leaves st untouched.
func (c *Controller) mutate(ctx context.Context, st *State, name string, form any, notice string, apply func(context.Context) error) (*Outcome, error) {
	if err := checkForm(form); err != nil {
		c.logger.DebugContext(ctx, "Form rejected", log.FieldOperation, log.OpValidate, "mutation", name)
		return nil, err
	}

	err := apply(ctx)
	c.structured.LogMutation(ctx, name, err)
	if err != nil {
		return nil, &MutationError{Message: failureMessage(err), Err: err}
	}

	if principal := ledger.Principal(ctx); principal != "" {
		if perr := c.publisher.Publish(ctx, events.NewLedgerChanged(principal, "")); perr != nil {
			c.logger.WarnContext(ctx, "Failed to publish ledger change",
				log.FieldOperation, log.OpPublish,
				log.FieldError, perr)
		}
	}

	snap, err := c.Refresh(ctx, st)
	switch {
	case errors.Is(err, ErrSuperseded):
		return &Outcome{Notice: notice}, nil
	case err != nil:
		return nil, err
	}
	return &Outcome{Notice: notice, Snapshot: snap}, nil
}

// UpdateSalary replaces the monthly salary.
func (c *Controller) UpdateSalary(ctx context.Context, st *State, form validation.Salary) (*Outcome, error) {
	return c.mutate(ctx, st, "update_salary", form, NoticeSalary, func(ctx context.Context) error {
		return c.backend.UpdateSalary(ctx, form.Amount)
	})
}

// UpdateSalaryDate sets the day of the month the salary is received.
func (c *Controller) UpdateSalaryDate(ctx context.Context, st *State, form validation.SalaryDate) (*Outcome, error) {
	return c.mutate(ctx, st, "update_salary_date", form, NoticeSalaryDate, func(ctx context.Context) error {
		return c.backend.UpdateSalaryDate(ctx, form.Day)
	})
}

func (c *Controller) RegisterExpense(ctx context.Context, st *State, form validation.Expense) (*Outcome, error) {
	return c.mutate(ctx, st, "register_expense", form, NoticeExpense, func(ctx context.Context) error {
		_, err := c.backend.RegisterExpense(ctx, form.Input())
		return err
	})
}

// AddBalance records an income on today's date.
func (c *Controller) AddBalance(ctx context.Context, st *State, form validation.Balance) (*Outcome, error) {
	return c.mutate(ctx, st, "add_balance", form, NoticeBalance, func(ctx context.Context) error {
		_, err := c.backend.AddBalance(ctx, core.AdditionInput{
			Amount:      form.Amount,
			Description: strings.TrimSpace(form.Description),
		})
		return err
	})
}

// FirstRegistry submits the onboarding form.
func (c *Controller) FirstRegistry(ctx context.Context, st *State, form validation.FirstRegistry) (*Outcome, error) {
	return c.mutate(ctx, st, "first_registry", form, NoticeFirstRegistry, func(ctx context.Context) error {
		return c.backend.FirstRegistry(ctx, form.Input())
	})
}

// Login exchanges credentials for a backend session.
func (c *Controller) Login(ctx context.Context, form validation.Login) (core.Session, error) {
	if err := checkForm(form); err != nil {
		return core.Session{}, err
	}
	sess, err := c.backend.Login(ctx, core.Credentials{Email: strings.TrimSpace(form.Email), Password: form.Password})
	c.structured.LogMutation(ctx, log.OpLogin, err)
	if err != nil {
		msg := "Não foi possível entrar. Tente novamente em instantes."
		if errors.Is(err, ledger.ErrUnauthorized) || errors.Is(err, ledger.ErrRejected) {
			msg = "E-mail ou senha inválidos."
		}
		return core.Session{}, &MutationError{Message: msg, Err: err}
	}
	return sess, nil
}

// Register creates an account. The user logs in afterwards.
func (c *Controller) Register(ctx context.Context, form validation.Registration) error {
	if err := checkForm(form); err != nil {
		return err
	}
	err := c.backend.Register(ctx, core.Registration{
		FirstName: strings.TrimSpace(form.FirstName),
		LastName:  strings.TrimSpace(form.LastName),
		Email:     strings.TrimSpace(form.Email),
		Password:  form.Password,
	})
	c.structured.LogMutation(ctx, log.OpRegister, err)
	if err != nil {
		msg := "Não foi possível concluir o cadastro. Tente novamente em instantes."
		if errors.Is(err, ledger.ErrRejected) {
			msg = "Não foi possível concluir o cadastro. Verifique os dados ou use outro e-mail."
		}
		return &MutationError{Message: msg, Err: err}
	}
	return nil
}
