// Package calendar holds one user's view of one doctor's week: the fetched
// records, the expanded instances, the drag selection, and the mutations
// that refetch the week once they complete.
package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"klinikcal/internal/appointment"
	"klinikcal/internal/backend"
	"klinikcal/internal/grid"
	appLog "klinikcal/internal/log"
	"klinikcal/internal/metrics"
	"klinikcal/internal/model"
	"klinikcal/internal/series"
	"klinikcal/internal/slot"
)

var calendarTracer = otel.Tracer("klinikcal.internal.calendar")

// Backend is the persistence collaborator.
type Backend interface {
	ListWeek(ctx context.Context, doctorID string, weekStart time.Time) ([]model.AppointmentRecord, backend.FetchResult, error)
	Create(ctx context.Context, req appointment.Request) (model.AppointmentRecord, error)
	Update(ctx context.Context, id string, req appointment.Request) error
	Delete(ctx context.Context, doctorID, id string, mode appointment.DeleteMode) error
}

// Catalog is the service catalog collaborator.
type Catalog interface {
	Services(ctx context.Context) ([]model.Service, error)
}

// Options configures a Calendar.
type Options struct {
	Grid      slot.Grid
	Backend   Backend
	Catalog   Catalog
	Validator *appointment.Validator
	Metrics   *metrics.CalendarMetrics
	User      model.User
	// Now defaults to time.Now.
	Now func() time.Time
}

// View is a consistent copy of the calendar state.
type View struct {
	Doctor    model.Doctor                `json:"doctor"`
	WeekStart time.Time                   `json:"weekStart"`
	Instances []model.AppointmentInstance `json:"instances"`
	Skipped   []series.Skipped            `json:"skipped,omitempty"`
	Stale     bool                        `json:"stale"`
	FetchedAt time.Time                   `json:"fetchedAt"`
	Access    appointment.Access          `json:"permissions"`
	Selection []int                       `json:"selection,omitempty"`
}

// Calendar is safe for concurrent use. State is guarded by mu; network
// calls run without it. Mutations are serialized by mutMu, which is held
// until the refetch they trigger has finished.
type Calendar struct {
	grid      slot.Grid
	backend   Backend
	catalog   Catalog
	validator *appointment.Validator
	metrics   *metrics.CalendarMetrics
	access    appointment.Access
	now       func() time.Time

	mutMu sync.Mutex

	mu        sync.Mutex
	doctor    model.Doctor
	weekStart time.Time
	records   []model.AppointmentRecord
	instances []model.AppointmentInstance
	skipped   []series.Skipped
	stale     bool
	fetchedAt time.Time
	selection grid.Selection
	fetchGen  uint64
	lastUsed  time.Time
}

func New(opts Options) *Calendar {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	v := opts.Validator
	if v == nil {
		v = appointment.NewValidator()
	}
	g := opts.Grid
	if g.Location == nil {
		g.Location = time.UTC
	}
	c := &Calendar{
		grid:      g,
		backend:   opts.Backend,
		catalog:   opts.Catalog,
		validator: v,
		metrics:   opts.Metrics,
		access:    appointment.Permissions(opts.User),
		now:       now,
	}
	c.weekStart = c.grid.WeekStart(now())
	c.lastUsed = now()
	if c.access.LockedDoctorID != "" {
		c.doctor = model.Doctor{ID: c.access.LockedDoctorID, Name: opts.User.Name}
	}
	return c
}

// Access returns the user's permissions on this calendar.
func (c *Calendar) Access() appointment.Access { return c.access }

// View returns a copy of the current state.
func (c *Calendar) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsed = c.now()

	instances := make([]model.AppointmentInstance, len(c.instances))
	copy(instances, c.instances)
	skipped := make([]series.Skipped, len(c.skipped))
	copy(skipped, c.skipped)

	return View{
		Doctor:    c.doctor,
		WeekStart: c.weekStart,
		Instances: instances,
		Skipped:   skipped,
		Stale:     c.stale,
		FetchedAt: c.fetchedAt,
		Access:    c.access,
		Selection: c.selection.Highlighted(),
	}
}

// LastUsed is the time of the last call that read or changed the state.
func (c *Calendar) LastUsed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

// SelectDoctor switches the displayed doctor. Users locked to a doctor may
// only select themselves. The previous doctor's data is dropped and any
// fetch still in flight for it is discarded.
func (c *Calendar) SelectDoctor(d model.Doctor) error {
	if d.ID == "" {
		return ErrNoDoctor
	}
	if c.access.LockedDoctorID != "" && d.ID != c.access.LockedDoctorID {
		return ErrForbidden
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsed = c.now()
	if c.doctor.ID == d.ID {
		if d.Name != "" {
			c.doctor.Name = d.Name
		}
		return nil
	}
	c.doctor = d
	c.records = nil
	c.instances = nil
	c.skipped = nil
	c.stale = false
	c.fetchedAt = time.Time{}
	c.selection = grid.Selection{}
	c.fetchGen++
	return nil
}

// NextWeek moves the window one week forward.
func (c *Calendar) NextWeek() time.Time { return c.shiftWeek(7) }

// PrevWeek moves the window one week back.
func (c *Calendar) PrevWeek() time.Time { return c.shiftWeek(-7) }

// Today moves the window to the week containing now.
func (c *Calendar) Today() time.Time { return c.GoTo(c.now()) }

// GoTo moves the window to the week containing t.
func (c *Calendar) GoTo(t time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setWeekLocked(c.grid.WeekStart(t))
	return c.weekStart
}

func (c *Calendar) shiftWeek(days int) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ws := c.weekStart.In(c.grid.Location)
	c.setWeekLocked(c.grid.WeekStart(time.Date(ws.Year(), ws.Month(), ws.Day()+days, 12, 0, 0, 0, c.grid.Location)))
	return c.weekStart
}

// setWeekLocked re-derives the instances of the held records for the new
// window until a refetch replaces them.
func (c *Calendar) setWeekLocked(ws time.Time) {
	c.lastUsed = c.now()
	if ws.Equal(c.weekStart) {
		return
	}
	c.weekStart = ws
	c.selection = grid.Selection{}
	c.fetchGen++
	c.expandLocked()
}

func (c *Calendar) expandLocked() {
	res := series.Expand(c.records, series.Config{Grid: c.grid, Window: model.WeekWindow{Start: c.weekStart}})
	c.instances = res.Instances
	c.skipped = res.Skipped
}

// Refresh fetches the current doctor's week and replaces the records and
// instances wholesale. When another refresh or a navigation started after
// this one, the result is discarded. On error the state is left as it was.
func (c *Calendar) Refresh(ctx context.Context) error {
	c.mu.Lock()
	doctor := c.doctor
	week := c.weekStart
	c.fetchGen++
	gen := c.fetchGen
	c.mu.Unlock()

	if doctor.ID == "" {
		return ErrNoDoctor
	}

	ctx, span := calendarTracer.Start(ctx, "calendar.refresh")
	defer span.End()
	span.SetAttributes(
		attribute.String("klinikcal.doctor_id", doctor.ID),
		attribute.String("klinikcal.week_start", week.Format(time.DateOnly)),
	)

	records, res, err := c.backend.ListWeek(ctx, doctor.ID, week)
	if err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("refresh week %s: %w", week.Format(time.DateOnly), err)
	}
	if err := ctx.Err(); err != nil {
		recordSpanError(span, err)
		return err
	}

	expanded := series.Expand(records, series.Config{Grid: c.grid, Window: model.WeekWindow{Start: week}})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchGen != gen {
		appLog.Debug("discarding superseded week fetch", "doctor_id", doctor.ID, "week", week.Format(time.DateOnly))
		return nil
	}
	c.records = records
	c.instances = expanded.Instances
	c.skipped = expanded.Skipped
	c.stale = res.Stale
	c.fetchedAt = c.now()

	virtual := expanded.VirtualCount()
	c.metrics.ObserveExpansion(len(expanded.Instances)-virtual, virtual)
	for _, s := range expanded.Skipped {
		c.metrics.ObserveSkipped(s.Reason)
	}
	span.SetAttributes(
		attribute.Int("klinikcal.instances", len(expanded.Instances)),
		attribute.Int("klinikcal.skipped", len(expanded.Skipped)),
	)
	appLog.Debug("week refreshed",
		"doctor_id", doctor.ID,
		"week", week.Format(time.DateOnly),
		"records", len(records),
		"instances", len(expanded.Instances),
		"virtual", virtual,
		"stale", res.Stale,
	)
	return nil
}

func (c *Calendar) resolverLocked() grid.Resolver {
	doctorID := c.doctor.ID
	return grid.Resolver{
		Location: c.grid.Location,
		OnOverlap: func(winner, other model.AppointmentInstance) {
			c.metrics.ObserveOverlap()
			appLog.Warn("overlapping appointments in one cell",
				"doctor_id", doctorID,
				"winner", winner.ID,
				"other", other.ID,
			)
		},
	}
}

// Occupant resolves the (day, slot) cell of the displayed week.
func (c *Calendar) Occupant(day, i int) (grid.Occupancy, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsed = c.now()
	return c.occupantLocked(day, i)
}

func (c *Calendar) occupantLocked(day, i int) (grid.Occupancy, bool) {
	if !c.grid.ValidDay(day) || !c.grid.ValidSlot(i) {
		return grid.Occupancy{}, false
	}
	return c.resolverLocked().FindOccupant(c.instances, day, i, c.weekStart.AddDate(0, 0, day))
}

// Instance looks up an instance of the displayed week by id.
func (c *Calendar) Instance(id string) (model.AppointmentInstance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, in := range c.instances {
		if in.ID == id {
			return in, true
		}
	}
	return model.AppointmentInstance{}, false
}

// PointerDown starts a drag selection on an empty cell. It is refused on an
// occupied cell, for read-only users, or when no doctor is selected.
func (c *Calendar) PointerDown(cell grid.Cell) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsed = c.now()

	if !c.grid.ValidDay(cell.Day) || !c.grid.ValidSlot(cell.Slot) {
		return false
	}
	_, occupied := c.occupantLocked(cell.Day, cell.Slot)
	next, ok := c.selection.Begin(cell, occupied, c.doctor.ID != "" && c.access.CanWrite)
	c.selection = next
	return ok
}

// PointerEnter extends the selection; cells on other days are ignored.
func (c *Calendar) PointerEnter(cell grid.Cell) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.grid.ValidSlot(cell.Slot) {
		return c.selection.Highlighted()
	}
	c.selection = c.selection.Enter(cell)
	return c.selection.Highlighted()
}

// PointerUp ends the drag and returns the normalized range to book.
func (c *Calendar) PointerUp() (grid.Range, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, r, ok := c.selection.Commit()
	c.selection = next
	return r, ok
}

// CancelSelection drops an in-progress drag.
func (c *Calendar) CancelSelection() {
	c.mu.Lock()
	c.selection = grid.Selection{}
	c.mu.Unlock()
}

// Services returns the catalog entries bookable with the current doctor for
// type t. Without a catalog the list is empty and no service is required.
func (c *Calendar) Services(ctx context.Context, t model.AppointmentType) ([]model.Service, error) {
	if c.catalog == nil {
		return nil, nil
	}
	c.mu.Lock()
	doctor := c.doctor
	c.mu.Unlock()

	all, err := c.catalog.Services(ctx)
	if err != nil {
		return nil, fmt.Errorf("load service catalog: %w", err)
	}
	return appointment.FilterServices(all, doctor.Name, t), nil
}

// Create validates f and books it in the displayed week. rebookFrom, when
// set, links the new appointment to a previous one.
func (c *Calendar) Create(ctx context.Context, f appointment.FormState, rebookFrom *model.AppointmentInstance) (model.AppointmentRecord, error) {
	var rec model.AppointmentRecord
	if !c.access.CanWrite {
		return rec, appointment.ErrReadOnly
	}

	ctx, span := calendarTracer.Start(ctx, "calendar.create")
	defer span.End()

	placement, err := c.checkForm(ctx, f, "", true)
	if err != nil {
		recordSpanError(span, err)
		return rec, err
	}
	req := appointment.ResolveCreatePayload(f, placement, rebookFrom)
	span.SetAttributes(
		attribute.String("klinikcal.doctor_id", req.DoctorID),
		attribute.Int("klinikcal.slot_count", req.SlotCount),
		attribute.Bool("klinikcal.recurring", req.IsRecurring),
	)

	c.mutMu.Lock()
	defer c.mutMu.Unlock()

	rec, err = c.backend.Create(ctx, req)
	if err != nil {
		recordSpanError(span, err)
		return model.AppointmentRecord{}, err
	}
	appLog.Info("appointment created",
		"doctor_id", req.DoctorID,
		"id", rec.ID,
		"date", req.AppointmentDate.Format(time.RFC3339),
		"slots", req.SlotCount,
		"rebook_of", req.BookingID,
	)
	c.refreshAfterMutation(ctx, "create")
	return rec, nil
}

// Update validates f and applies it to selected. For an occurrence of a
// series f.UpdateAllInstances chooses between this date and the whole series.
func (c *Calendar) Update(ctx context.Context, selected model.AppointmentInstance, f appointment.FormState, rebookSeriesID string) error {
	if !c.access.CanWrite {
		return appointment.ErrReadOnly
	}

	ctx, span := calendarTracer.Start(ctx, "calendar.update")
	defer span.End()
	span.SetAttributes(attribute.String("klinikcal.appointment_id", selected.ID))

	placement, err := c.checkForm(ctx, f, selected.ID, false)
	if err != nil {
		recordSpanError(span, err)
		return err
	}
	up := appointment.ResolveUpdatePayload(f, selected, placement, rebookSeriesID)

	c.mutMu.Lock()
	defer c.mutMu.Unlock()

	if err := c.backend.Update(ctx, up.ID, up.Body); err != nil {
		recordSpanError(span, err)
		return err
	}
	appLog.Info("appointment updated",
		"doctor_id", up.Body.DoctorID,
		"id", up.ID,
		"all_instances", up.Body.UpdateAllInstances,
	)
	c.refreshAfterMutation(ctx, "update")
	return nil
}

// DeleteScope reports how deleting the instance id must be confirmed.
func (c *Calendar) DeleteScope(id string) (appointment.DeleteScope, model.AppointmentInstance, error) {
	in, ok := c.Instance(id)
	if !ok {
		return appointment.DeleteScope{}, in, ErrNotFound
	}
	return appointment.ResolveDeleteScope(in), in, nil
}

// Delete removes the instance id as decided by the user.
func (c *Calendar) Delete(ctx context.Context, id string, d appointment.DeleteDecision) error {
	if !c.access.CanWrite {
		return appointment.ErrReadOnly
	}

	ctx, span := calendarTracer.Start(ctx, "calendar.delete")
	defer span.End()
	span.SetAttributes(attribute.String("klinikcal.appointment_id", id))

	in, ok := c.Instance(id)
	if !ok {
		recordSpanError(span, ErrNotFound)
		return ErrNotFound
	}
	mode, err := appointment.ResolveDelete(in, d)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("klinikcal.delete_mode", string(mode)))

	doctorID := in.DoctorID
	if doctorID == "" {
		c.mu.Lock()
		doctorID = c.doctor.ID
		c.mu.Unlock()
	}

	c.mutMu.Lock()
	defer c.mutMu.Unlock()

	if err := c.backend.Delete(ctx, doctorID, id, mode); err != nil {
		recordSpanError(span, err)
		return err
	}
	appLog.Info("appointment deleted", "doctor_id", doctorID, "id", id, "mode", mode)
	c.refreshAfterMutation(ctx, "delete")
	return nil
}

// checkForm validates f against the displayed week and rejects a span that
// collides with another instance. ignoreID excludes the instance being edited.
func (c *Calendar) checkForm(ctx context.Context, f appointment.FormState, ignoreID string, create bool) (appointment.Placement, error) {
	c.mu.Lock()
	doctor := c.doctor
	week := c.weekStart
	c.mu.Unlock()

	if doctor.ID == "" {
		return appointment.Placement{}, ErrNoDoctor
	}

	services, err := c.Services(ctx, f.AppointmentType)
	if err != nil {
		return appointment.Placement{}, err
	}
	check := appointment.Check{Grid: c.grid, WeekStart: week, Services: services}
	if create {
		check.Now = c.now()
	}
	if err := c.validator.Validate(f, check); err != nil {
		return appointment.Placement{}, err
	}

	end, _ := f.Span()
	if c.collides(f.DayIndex, f.TimeIndex, end, ignoreID) {
		return appointment.Placement{}, ErrSlotOccupied
	}
	return appointment.Placement{Grid: c.grid, WeekStart: week, DoctorID: doctor.ID}, nil
}

func (c *Calendar) collides(day, from, to int, ignoreID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	others := c.instances
	if ignoreID != "" {
		others = make([]model.AppointmentInstance, 0, len(c.instances))
		for _, in := range c.instances {
			if in.ID != ignoreID {
				others = append(others, in)
			}
		}
	}
	r := grid.Resolver{Location: c.grid.Location}
	_, hit := r.FirstInRange(others, day, from, to, c.weekStart.AddDate(0, 0, day))
	return hit
}

// refreshAfterMutation runs with mutMu held so the refetch starts only after
// the mutation completed. A failed refetch marks the week stale; the
// mutation itself already succeeded.
func (c *Calendar) refreshAfterMutation(ctx context.Context, op string) {
	if err := c.Refresh(ctx); err != nil {
		appLog.Error("refetch after mutation failed", err, "op", op)
		c.mu.Lock()
		c.stale = true
		c.mu.Unlock()
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
