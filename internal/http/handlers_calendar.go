package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"gastos/internal/view"
)

// writeCalendar answers a navigation or calendar request. A superseded pass
// gets 204 so htmx leaves the newer content in place; navigating past the
// supported years gets 400.
func (s *Server) writeCalendar(w http.ResponseWriter, r *http.Request, snap *view.Snapshot, err error) {
	switch {
	case errors.Is(err, view.ErrSuperseded):
		s.appMetrics.superseded.Add(1)
		NewHTMXResponse().Status(http.StatusNoContent).Write(w)
		return
	case errors.Is(err, view.ErrInvalidPeriod):
		BadRequestError("Período inválido.").Write(w)
		return
	case err != nil:
		s.renderFailed(w, r, err)
		return
	case snap.Unauthorized:
		s.expire(w, r)
		return
	}
	s.appMetrics.renders.Add(1)

	b := NewHTMXResponse()
	if snap.Degraded {
		b.TriggerWarningNotification("Não foi possível carregar os lançamentos.")
	}
	s.respond(w, r, b, "calendar_update", calendarUpdate{
		Calendar: panel{Snapshot: snap},
		Summary:  panel{Snapshot: snap, OOB: true},
	})
}

// calendarUpdate is a calendar swap that also refreshes the figures out of band.
type calendarUpdate struct {
	Calendar panel
	Summary  panel
}

// handleCalendar renders the calendar for ?year=&month=, defaulting to the
// session's current selection.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request, st *view.State) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	p, err := ParsePeriod(r.URL.Query(), st.Period())
	if err != nil {
		BadRequestError("Período inválido.").Write(w)
		return
	}
	snap, err := s.controller.Render(r.Context(), st, p)
	s.writeCalendar(w, r, snap, err)
}

func (s *Server) handlePrevYear(w http.ResponseWriter, r *http.Request, st *view.State) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	snap, err := s.controller.PrevYear(r.Context(), st)
	s.writeCalendar(w, r, snap, err)
}

func (s *Server) handleNextYear(w http.ResponseWriter, r *http.Request, st *view.State) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	snap, err := s.controller.NextYear(r.Context(), st)
	s.writeCalendar(w, r, snap, err)
}

// handleSelectMonth zooms into month=1..12; month=0 or empty returns to the year.
func (s *Server) handleSelectMonth(w http.ResponseWriter, r *http.Request, st *view.State) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	p, resp := ReadFormOrFail(r)
	if resp != nil {
		resp.Write(w)
		return
	}

	month := 0
	if v := p.Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 0 || m > 12 {
			BadRequestError("Mês inválido.").Write(w)
			return
		}
		month = m
	}

	var (
		snap *view.Snapshot
		err  error
	)
	if month == 0 {
		snap, err = s.controller.ShowYear(r.Context(), st)
	} else {
		snap, err = s.controller.SelectMonth(r.Context(), st, time.Month(month))
	}
	s.writeCalendar(w, r, snap, err)
}

// handleSummary renders the account figures from the last committed pass,
// rendering first if the session has none yet.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, st *view.State) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	snap := st.Current()
	if snap == nil {
		var err error
		snap, err = s.controller.Refresh(r.Context(), st)
		if errors.Is(err, view.ErrSuperseded) {
			snap, err = st.Current(), nil
		}
		if err != nil || snap == nil {
			s.renderFailed(w, r, err)
			return
		}
	}
	if snap.Unauthorized {
		s.expire(w, r)
		return
	}
	s.respond(w, r, NewHTMXResponse(), "summary", panel{Snapshot: snap})
}
