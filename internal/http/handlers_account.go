package http

import (
	"context"
	"errors"
	"html/template"
	"net/http"

	"gastos/internal/ledger"
	"gastos/internal/log"
	"gastos/internal/validation"
	"gastos/internal/view"
)

// formErrors feeds the form_errors partial.
type formErrors struct {
	Message string
	Fields  validation.FieldErrors
}

// mutationResult feeds the mutation_result partial: the notice plus
// out-of-band calendar and summary swaps.
type mutationResult struct {
	Notice   string
	Calendar panel
	Summary  panel
}

func invalidForm(fe validation.FieldErrors) error {
	return &view.MutationError{Fields: fe, Message: view.InvalidFormMessage}
}

// mutation runs one account change submitted as a form.
func (s *Server) mutation(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, p *Form) (*view.Outcome, error)) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	p, resp := ReadFormOrFail(r)
	if resp != nil {
		resp.Write(w)
		return
	}

	out, err := run(r.Context(), p)
	if err != nil {
		s.writeMutationError(w, r, err)
		return
	}
	s.appMetrics.mutations.Add(1)

	b := NewHTMXResponse().
		TriggerSuccessNotification(out.Notice).
		TriggerFormReset()
	if out.Snapshot == nil {
		// The follow-up render lost to a newer one; let the panels reload themselves.
		b.TriggerLedgerChanged().
			BodyHTML(`<div class="success">` + template.HTMLEscapeString(out.Notice) + `</div>`).
			Write(w)
		return
	}
	if out.Snapshot.Unauthorized {
		s.expire(w, r)
		return
	}
	s.respond(w, r, b, "mutation_result", mutationResult{
		Notice:   out.Notice,
		Calendar: panel{Snapshot: out.Snapshot, OOB: true},
		Summary:  panel{Snapshot: out.Snapshot, OOB: true},
	})
}

// writeMutationError maps a failed submission to a response. Invalid input
// gets 422 with per-field messages; backend failures get 502 and a notification.
func (s *Server) writeMutationError(w http.ResponseWriter, r *http.Request, err error) {
	s.appMetrics.mutationFailures.Add(1)

	var me *view.MutationError
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		s.expire(w, r)
	case errors.As(err, &me) && len(me.Fields) > 0:
		s.respond(w, r, NewHTMXResponse().Status(http.StatusUnprocessableEntity),
			"form_errors", formErrors{Message: me.Message, Fields: me.Fields})
	case errors.As(err, &me):
		s.respond(w, r, NewHTMXResponse().
			Status(http.StatusBadGateway).
			TriggerErrorNotification(me.Message),
			"form_errors", formErrors{Message: me.Message})
	case r.Context().Err() != nil:
	default:
		s.structured.LogError(r.Context(), "Mutation failed", err, log.ComponentView, log.OpMutate)
		InternalServerError("Erro inesperado. Tente novamente.").Write(w)
	}
}

// writeFormError answers the login and registration forms, where a refusal is
// a message for the form rather than an expired session.
func (s *Server) writeFormError(w http.ResponseWriter, r *http.Request, err error) {
	var me *view.MutationError
	if !errors.As(err, &me) {
		s.structured.LogError(r.Context(), "Account request failed", err, log.ComponentAuth, log.OpMutate)
		InternalServerError("Erro inesperado. Tente novamente.").Write(w)
		return
	}
	s.respond(w, r, NewHTMXResponse().Status(http.StatusUnprocessableEntity),
		"form_errors", formErrors{Message: me.Message, Fields: me.Fields})
}

func (s *Server) handleUpdateSalary(w http.ResponseWriter, r *http.Request, st *view.State) {
	s.mutation(w, r, func(ctx context.Context, p *Form) (*view.Outcome, error) {
		form, ferrs := decodeSalary(p)
		if ferrs != nil {
			return nil, invalidForm(ferrs)
		}
		return s.controller.UpdateSalary(ctx, st, form)
	})
}

func (s *Server) handleUpdateSalaryDate(w http.ResponseWriter, r *http.Request, st *view.State) {
	s.mutation(w, r, func(ctx context.Context, p *Form) (*view.Outcome, error) {
		return s.controller.UpdateSalaryDate(ctx, st, decodeSalaryDate(p))
	})
}

func (s *Server) handleRegisterExpense(w http.ResponseWriter, r *http.Request, st *view.State) {
	s.mutation(w, r, func(ctx context.Context, p *Form) (*view.Outcome, error) {
		form, ferrs := decodeExpense(p)
		if ferrs != nil {
			return nil, invalidForm(ferrs)
		}
		return s.controller.RegisterExpense(ctx, st, form)
	})
}

func (s *Server) handleAddBalance(w http.ResponseWriter, r *http.Request, st *view.State) {
	s.mutation(w, r, func(ctx context.Context, p *Form) (*view.Outcome, error) {
		form, ferrs := decodeBalance(p)
		if ferrs != nil {
			return nil, invalidForm(ferrs)
		}
		return s.controller.AddBalance(ctx, st, form)
	})
}
