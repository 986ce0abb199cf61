package view

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"gastos/internal/calendar"
	"gastos/internal/core"
	"gastos/internal/ledger"
	"gastos/internal/ledger/memory"
	"gastos/internal/log"
	"gastos/internal/validation"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "calendar-view",
		ScenarioInitializer: initializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

// world is the per-scenario state shared by the step definitions.
type world struct {
	now     time.Time
	store   *memory.Store
	backend *recordingBackend
	ctl     *Controller
	st      *State
	ctx     context.Context

	snap     *Snapshot
	err      error
	baseline int32
	before   *Snapshot
}

func initializeScenario(sc *godog.ScenarioContext) {
	w := &world{}

	sc.Step(`^today is (\d{4}-\d{2}-\d{2})$`, w.todayIs)
	sc.Step(`^a registered user earning "([^"]*)" on day (\d+)$`, w.registeredUser)
	sc.Step(`^the user registers an expense "([^"]*)" of "([^"]*)" on (\d{4}-\d{2}-\d{2})$`, w.registerExpense)
	sc.Step(`^the user registers (\d+) expenses of "([^"]*)" on (\d{4}-\d{2}-\d{2})$`, w.registerExpenses)
	sc.Step(`^the user adds "([^"]*)" to the balance as "([^"]*)"$`, w.addBalance)
	sc.Step(`^the user views the year (\d{4})$`, w.viewYear)
	sc.Step(`^the user views the month (\d{4})-(\d{2})$`, w.viewMonth)
	sc.Step(`^the user goes to the previous year$`, w.prevYear)
	sc.Step(`^the user goes to the next year$`, w.nextYear)
	sc.Step(`^the user sets the salary date to (\d+)$`, w.setSalaryDate)
	sc.Step(`^the backend fails to list expenses$`, w.failListing)

	sc.Step(`^the cell for (\d{4}-\d{2}-\d{2}) is "([^"]*)"$`, w.cellIs)
	sc.Step(`^the popup for (\d{4}-\d{2}-\d{2}) is titled "([^"]*)"$`, w.popupTitled)
	sc.Step(`^the popup for (\d{4}-\d{2}-\d{2}) reads "([^"]*)"$`, w.popupReads)
	sc.Step(`^the info for "([^"]*)" is "([^"]*)"$`, w.infoIs)
	sc.Step(`^the form error for "([^"]*)" is "([^"]*)"$`, w.formErrorIs)
	sc.Step(`^the backend was not called$`, w.backendNotCalled)
	sc.Step(`^the calendar is unchanged$`, w.calendarUnchanged)
	sc.Step(`^every cell is empty$`, w.everyCellEmpty)
	sc.Step(`^the balance still shows "([^"]*)"$`, w.balanceShows)
	sc.Step(`^the view shows "([^"]*)"$`, w.viewShows)
}

func parseDay(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func (w *world) clock() time.Time { return w.now }

func (w *world) todayIs(day string) error {
	t, err := parseDay(day)
	if err != nil {
		return err
	}
	w.now = t.Add(12 * time.Hour)
	w.store = memory.New(memory.WithClock(w.clock))
	w.backend = &recordingBackend{next: w.store}
	w.ctl = NewController(w.backend, WithClock(w.clock), WithLogger(log.Discard()))
	w.st = NewState("scenario", w.now)
	return nil
}

func (w *world) registeredUser(salary string, day int) error {
	ctx := context.Background()
	creds := core.Credentials{Email: "ana@example.com", Password: "senha-muito-segura"}
	if err := w.store.Register(ctx, core.Registration{FirstName: "Ana", Email: creds.Email, Password: creds.Password}); err != nil {
		return err
	}
	sess, err := w.store.Login(ctx, creds)
	if err != nil {
		return err
	}
	w.ctx = ledger.WithToken(ctx, sess.Token)
	amount, err := core.ParseAmount(salary)
	if err != nil {
		return err
	}
	return w.store.FirstRegistry(w.ctx, core.FirstRegistryInput{MonthlySalary: amount, SalaryDate: day})
}

func (w *world) registerExpense(name, amount, day string) error {
	value, err := core.ParseAmount(amount)
	if err != nil {
		return err
	}
	date, err := parseDay(day)
	if err != nil {
		return err
	}
	_, err = w.ctl.RegisterExpense(w.ctx, w.st, validation.Expense{
		Name: name, Amount: value, Date: date, Category: string(core.Other),
	})
	return err
}

func (w *world) registerExpenses(n int, amount, day string) error {
	for i := 1; i <= n; i++ {
		if err := w.registerExpense(fmt.Sprintf("Gasto %d", i), amount, day); err != nil {
			return err
		}
	}
	return nil
}

func (w *world) addBalance(amount, description string) error {
	value, err := core.ParseAmount(amount)
	if err != nil {
		return err
	}
	_, err = w.ctl.AddBalance(w.ctx, w.st, validation.Balance{Amount: value, Description: description})
	return err
}

func (w *world) render(fn func() (*Snapshot, error)) error {
	snap, err := fn()
	if err != nil {
		return err
	}
	w.snap = snap
	return nil
}

func (w *world) viewYear(year int) error {
	return w.render(func() (*Snapshot, error) { return w.ctl.Render(w.ctx, w.st, Period{Year: year}) })
}

func (w *world) viewMonth(year, month int) error {
	return w.render(func() (*Snapshot, error) {
		return w.ctl.Render(w.ctx, w.st, Period{Year: year, Month: time.Month(month)})
	})
}

func (w *world) prevYear() error {
	return w.render(func() (*Snapshot, error) { return w.ctl.PrevYear(w.ctx, w.st) })
}

func (w *world) nextYear() error {
	return w.render(func() (*Snapshot, error) { return w.ctl.NextYear(w.ctx, w.st) })
}

func (w *world) setSalaryDate(day int) error {
	w.before = w.st.Current()
	w.baseline = w.backend.calls.Load()
	_, w.err = w.ctl.UpdateSalaryDate(w.ctx, w.st, validation.SalaryDate{Day: day})
	return nil
}

func (w *world) failListing() error {
	w.backend.beforeList = func(context.Context) error { return ledger.ErrUnavailable }
	return nil
}

func (w *world) cell(day string) (calendar.Cell, error) {
	if w.snap == nil {
		return calendar.Cell{}, fmt.Errorf("nothing rendered")
	}
	t, err := parseDay(day)
	if err != nil {
		return calendar.Cell{}, err
	}
	if w.snap.Period.Year != t.Year() {
		return calendar.Cell{}, fmt.Errorf("rendered %d, asked for %d", w.snap.Period.Year, t.Year())
	}
	for _, m := range w.snap.Months {
		if m.Month == t.Month() {
			return m.Cells[t.Day()-1], nil
		}
	}
	return calendar.Cell{}, fmt.Errorf("month %s not rendered", t.Month())
}

func (w *world) cellIs(day, variant string) error {
	c, err := w.cell(day)
	if err != nil {
		return err
	}
	if string(c.Variant) != variant {
		return fmt.Errorf("cell %s is %q, want %q", day, c.Variant, variant)
	}
	return nil
}

func (w *world) popupTitled(day, title string) error {
	c, err := w.cell(day)
	if err != nil {
		return err
	}
	if c.Popup == nil || c.Popup.Title != title {
		return fmt.Errorf("popup = %+v", c.Popup)
	}
	return nil
}

// popupText flattens a popup into one line; dividers read as "|".
func popupText(p *calendar.Popup) string {
	var parts []string
	for _, s := range p.Sections {
		parts = append(parts, s.Heading)
		for _, l := range s.Lines {
			if l.IsDivider() {
				parts = append(parts, "|")
				continue
			}
			parts = append(parts, l.Label, l.Value)
		}
	}
	return strings.Join(parts, " ")
}

func (w *world) popupReads(day, want string) error {
	c, err := w.cell(day)
	if err != nil {
		return err
	}
	if c.Popup == nil {
		return fmt.Errorf("cell %s has no popup", day)
	}
	if got := popupText(c.Popup); got != want {
		return fmt.Errorf("popup reads %q, want %q", got, want)
	}
	return nil
}

func (w *world) infoIs(name, want string) error {
	for _, m := range w.snap.Months {
		if m.Name == name {
			if m.Info != want {
				return fmt.Errorf("%s info = %q, want %q", name, m.Info, want)
			}
			return nil
		}
	}
	return fmt.Errorf("month %q not rendered", name)
}

func (w *world) formErrorIs(field, want string) error {
	me, ok := w.err.(*MutationError)
	if !ok {
		return fmt.Errorf("err = %v, want a form error", w.err)
	}
	if got := me.Fields[field]; got != want {
		return fmt.Errorf("%s message = %q, want %q", field, got, want)
	}
	return nil
}

func (w *world) backendNotCalled() error {
	if n := w.backend.calls.Load() - w.baseline; n != 0 {
		return fmt.Errorf("backend called %d times", n)
	}
	return nil
}

func (w *world) calendarUnchanged() error {
	if w.st.Current() != w.before {
		return fmt.Errorf("committed snapshot changed")
	}
	return nil
}

func (w *world) everyCellEmpty() error {
	if !w.snap.Degraded {
		return fmt.Errorf("snapshot not marked degraded")
	}
	for _, m := range w.snap.Months {
		for _, c := range m.Cells {
			if c.Variant != calendar.VariantNone || c.Popup != nil {
				return fmt.Errorf("%s %d is painted", m.Name, c.Day)
			}
		}
		if m.Info != calendar.NoDataInfo {
			return fmt.Errorf("%s info = %q", m.Name, m.Info)
		}
	}
	return nil
}

func (w *world) balanceShows(want string) error {
	if got := w.snap.Figures.Balance.Text; got != want {
		return fmt.Errorf("balance = %q, want %q", got, want)
	}
	return nil
}

func (w *world) viewShows(label string) error {
	if got := w.snap.Period.Label(); got != label {
		return fmt.Errorf("view shows %q, want %q", got, label)
	}
	return nil
}
