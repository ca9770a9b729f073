package series

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "klinikcal/internal/log"
	"klinikcal/internal/model"
	"klinikcal/internal/slot"
)

// Skip reasons reported in Result.Skipped.
const (
	ReasonMissingPosition = "missing_grid_position"
	ReasonMissingDate     = "missing_appointment_date"
	ReasonBadPosition     = "grid_position_out_of_range"
	ReasonBadRule         = "invalid_recurrence"
)

// Config controls how a week is expanded.
type Config struct {
	// Grid supplies the clinic location and slot geometry.
	Grid slot.Grid
	// Window is the displayed week; Window.Start must be Monday 00:00 in Grid.Location.
	Window model.WeekWindow
}

// Skipped records a stored appointment that could not be placed on the grid.
type Skipped struct {
	RecordID string `json:"recordId"`
	Reason   string `json:"reason"`
}

// Result wraps the expanded instances and the records that were dropped.
type Result struct {
	Instances []model.AppointmentInstance
	Skipped   []Skipped
}

// VirtualCount returns how many of the instances are synthesized occurrences.
func (r Result) VirtualCount() int {
	n := 0
	for _, in := range r.Instances {
		if in.IsVirtualInstance {
			n++
		}
	}
	return n
}

// Expand produces the occurrences of records that fall inside cfg.Window.
//
//   - A non-recurring record yields itself when its anchor date is in the window.
//   - A recurring record repeats every 7 days from its anchor, up to and
//     including EndDate when set, minus ExceptionDates. The occurrence on the
//     anchor date is the record itself; any other is a virtual instance with
//     id "{recordId}_instance_{YYYY-MM-DD}".
//
// Malformed records are logged and skipped; one bad record never prevents the
// rest of the week from expanding.
func Expand(records []model.AppointmentRecord, cfg Config) Result {
	var result Result
	grid := cfg.Grid
	if grid.Location == nil {
		grid.Location = time.UTC
	}
	windowStart := grid.WeekStart(cfg.Window.Start)
	window := model.WeekWindow{Start: windowStart}

	out := make([]model.AppointmentInstance, 0, len(records))
	for _, rec := range records {
		placed, reason := expandRecord(rec, grid, window)
		if reason != "" {
			result.Skipped = append(result.Skipped, Skipped{RecordID: rec.ID, Reason: reason})
			appLog.Warn("expand: skipping malformed appointment record",
				"record_id", rec.ID,
				"reason", reason,
			)
			continue
		}
		out = append(out, placed...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].AppointmentDate.Equal(out[j].AppointmentDate) {
			return out[i].AppointmentDate.Before(out[j].AppointmentDate)
		}
		return out[i].ID < out[j].ID
	})

	result.Instances = out
	return result
}

func expandRecord(rec model.AppointmentRecord, grid slot.Grid, window model.WeekWindow) ([]model.AppointmentInstance, string) {
	if rec.DayIndex == nil || rec.TimeIndex == nil {
		return nil, ReasonMissingPosition
	}
	if rec.AppointmentDate.IsZero() {
		return nil, ReasonMissingDate
	}
	if !grid.ValidDay(*rec.DayIndex) || !grid.ValidSlot(*rec.TimeIndex) {
		return nil, ReasonBadPosition
	}

	anchor := grid.DayStart(rec.AppointmentDate)
	if grid.DayIndex(anchor) != *rec.DayIndex {
		appLog.Debug("expand: dayIndex disagrees with appointmentDate",
			"record_id", rec.ID,
			"day_index", *rec.DayIndex,
			"appointment_date", rec.AppointmentDate.Format(time.RFC3339),
		)
	}

	if !rec.IsRecurring {
		if !window.Contains(anchor) {
			return nil, ""
		}
		return []model.AppointmentInstance{makeInstance(rec, grid, rec.AppointmentDate, false)}, ""
	}

	occurrences, err := weeklyOccurrences(rec, grid, window)
	if err != nil {
		appLog.Error("expand: failed to build weekly rule", err, "record_id", rec.ID)
		return nil, ReasonBadRule
	}

	out := make([]model.AppointmentInstance, 0, len(occurrences))
	for _, occ := range occurrences {
		virtual := !grid.DayStart(occ).Equal(anchor)
		out = append(out, makeInstance(rec, grid, occ.UTC(), virtual))
	}
	return out, ""
}

// weeklyOccurrences returns the occurrence instants of a recurring record that
// start inside the window. DTSTART is the anchor in the clinic location, so
// every occurrence keeps the anchor's wall-clock time even across DST changes.
func weeklyOccurrences(rec model.AppointmentRecord, grid slot.Grid, window model.WeekWindow) ([]time.Time, error) {
	start := rec.AppointmentDate.In(grid.Location).Truncate(time.Second)

	opt := rrule.ROption{
		Freq:    rrule.WEEKLY,
		Dtstart: start,
	}
	if rec.EndDate != nil && !rec.EndDate.IsZero() {
		// EndDate is inclusive by calendar date.
		end := grid.DayStart(*rec.EndDate)
		opt.Until = end.AddDate(0, 0, 1).Add(-time.Second)
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, err
	}

	var set rrule.Set
	set.RRule(r)

	// Exceptions are calendar dates; align each to the occurrence instant on
	// that date so EXDATE matches exactly.
	for _, ex := range rec.ExceptionDates {
		d := grid.DayStart(ex)
		set.ExDate(time.Date(d.Year(), d.Month(), d.Day(), start.Hour(), start.Minute(), start.Second(), 0, grid.Location))
	}

	return set.Between(window.Start, window.End().Add(-time.Nanosecond), true), nil
}

func makeInstance(rec model.AppointmentRecord, grid slot.Grid, at time.Time, virtual bool) model.AppointmentInstance {
	start, end, count, _ := rec.Span()
	if end > grid.LastSlot() {
		end = grid.LastSlot()
		count = end - start + 1
	}

	participants := make([]model.Participant, len(rec.Participants))
	copy(participants, rec.Participants)

	in := model.AppointmentInstance{
		ID:                rec.ID,
		SeriesID:          rec.ID,
		DayIndex:          grid.DayIndex(at),
		TimeIndex:         start,
		EndTimeIndex:      end,
		SlotCount:         count,
		AppointmentDate:   at,
		SeriesStart:       rec.AppointmentDate,
		IsRecurring:       rec.IsRecurring,
		EndDate:           rec.EndDate,
		AppointmentType:   rec.AppointmentType,
		ServiceID:         rec.ServiceID,
		Participants:      participants,
		Description:       rec.Description,
		DoctorID:          rec.DoctorID,
		BookingID:         rec.BookingID,
		IsVirtualInstance: virtual,
	}
	if virtual {
		in.ID = model.VirtualID(rec.ID, grid.DayStart(at))
	}
	return in
}
