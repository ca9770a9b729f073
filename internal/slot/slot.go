// Package slot converts between week-grid coordinates (day index, slot index)
// and absolute instants. Day 0 is Monday; slot 0 is the first working slot of
// the day. Nothing here reads the wall clock: "now" is always an argument.
package slot

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultFirstHour   = 9
	DefaultSlotMinutes = 15
	DefaultSlotsPerDay = 48
	DaysPerWeek        = 7
)

var (
	ErrInvalidSlot = errors.New("slot index out of range")
	ErrInvalidDay  = errors.New("day index out of range")
	ErrInvalidSpan = errors.New("slot span extends past the working day")
)

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Grid describes the geometry of the working day and the clinic timezone.
type Grid struct {
	FirstHour   int
	SlotMinutes int
	SlotsPerDay int
	// Location is the clinic's timezone. Grid positions are wall-clock
	// positions in this location; instants are stored in UTC.
	Location *time.Location
}

// NewGrid returns the default 09:00–21:00 grid of 15-minute slots in loc.
func NewGrid(loc *time.Location) Grid {
	if loc == nil {
		loc = time.UTC
	}
	return Grid{
		FirstHour:   DefaultFirstHour,
		SlotMinutes: DefaultSlotMinutes,
		SlotsPerDay: DefaultSlotsPerDay,
		Location:    loc,
	}
}

// Validate checks that the working day fits inside a calendar day.
func (g Grid) Validate() error {
	if g.SlotMinutes <= 0 || 60%g.SlotMinutes != 0 {
		return fmt.Errorf("slot: slot minutes must divide an hour, got %d", g.SlotMinutes)
	}
	if g.SlotsPerDay <= 0 {
		return fmt.Errorf("slot: slots per day must be positive, got %d", g.SlotsPerDay)
	}
	if g.FirstHour < 0 || g.FirstHour*60+g.SlotsPerDay*g.SlotMinutes > 24*60 {
		return fmt.Errorf("slot: working day %02d:00 + %d×%dmin passes midnight", g.FirstHour, g.SlotsPerDay, g.SlotMinutes)
	}
	return nil
}

func (g Grid) loc() *time.Location {
	if g.Location == nil {
		return time.UTC
	}
	return g.Location
}

// LastSlot is the index of the last slot of the working day (47 by default, 20:45).
func (g Grid) LastSlot() int {
	return g.SlotsPerDay - 1
}

// ValidSlot reports whether i is a slot of the working day.
func (g Grid) ValidSlot(i int) bool {
	return i >= 0 && i < g.SlotsPerDay
}

// ValidDay reports whether d is a day index of the week.
func (g Grid) ValidDay(d int) bool {
	return d >= 0 && d < DaysPerWeek
}

// CheckSpan validates a span of count slots starting at start.
func (g Grid) CheckSpan(start, count int) error {
	if !g.ValidSlot(start) {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, start)
	}
	if count < 1 {
		return fmt.Errorf("%w: slot count %d", ErrInvalidSpan, count)
	}
	if start+count-1 > g.LastSlot() {
		return fmt.Errorf("%w: %d+%d", ErrInvalidSpan, start, count)
	}
	return nil
}

// WeekStart returns Monday 00:00 (clinic time) of the week containing t.
// A Sunday goes back six days, never forward.
func (g Grid) WeekStart(t time.Time) time.Time {
	local := t.In(g.loc())
	back := (int(local.Weekday()) + 6) % 7
	return time.Date(local.Year(), local.Month(), local.Day()-back, 0, 0, 0, 0, g.loc())
}

// DayStart truncates t to midnight in the clinic location.
func (g Grid) DayStart(t time.Time) time.Time {
	local := t.In(g.loc())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, g.loc())
}

// DayIndex returns the Monday-based weekday index of t in the clinic location.
func (g Grid) DayIndex(t time.Time) int {
	return (int(t.In(g.loc()).Weekday()) + 6) % 7
}

// SlotToClock returns the wall-clock start of slot i.
func (g Grid) SlotToClock(i int) Clock {
	mins := g.FirstHour*60 + i*g.SlotMinutes
	return Clock{Hour: mins / 60, Minute: mins % 60}
}

// ClockToSlot is the inverse of SlotToClock. ok is false for clocks that are
// not slot boundaries or fall outside the working day.
func (g Grid) ClockToSlot(c Clock) (int, bool) {
	mins := c.Hour*60 + c.Minute - g.FirstHour*60
	if mins < 0 || mins%g.SlotMinutes != 0 {
		return 0, false
	}
	i := mins / g.SlotMinutes
	if !g.ValidSlot(i) {
		return 0, false
	}
	return i, true
}

// Label formats slot i as "HH:MM".
func (g Grid) Label(i int) string {
	return g.SlotToClock(i).String()
}

// InstanceDate combines weekStart+day with the slot's wall clock in the
// clinic location and returns the UTC instant.
func (g Grid) InstanceDate(weekStart time.Time, day, i int) time.Time {
	ws := weekStart.In(g.loc())
	c := g.SlotToClock(i)
	return time.Date(ws.Year(), ws.Month(), ws.Day()+day, c.Hour, c.Minute, 0, 0, g.loc()).UTC()
}

// Position maps an instant back to (day, slot) grid coordinates. ok is false
// when t is not on a slot boundary of the working day.
func (g Grid) Position(t time.Time) (day, i int, ok bool) {
	local := t.In(g.loc())
	if local.Second() != 0 || local.Nanosecond() != 0 {
		return 0, 0, false
	}
	i, ok = g.ClockToSlot(Clock{Hour: local.Hour(), Minute: local.Minute()})
	if !ok {
		return 0, 0, false
	}
	return g.DayIndex(local), i, true
}

// DurationMinutes is the length of the closed slot range [start, end].
func (g Grid) DurationMinutes(start, end int) int {
	return (end - start + 1) * g.SlotMinutes
}

// SlotEnd returns the instant at which the given span ends.
func (g Grid) SlotEnd(begin time.Time, count int) time.Time {
	return begin.Add(time.Duration(count*g.SlotMinutes) * time.Minute)
}

// IsPast reports whether the cell (day, i) of the week starting at weekStart
// has already started at now.
func (g Grid) IsPast(weekStart time.Time, day, i int, now time.Time) bool {
	return !g.InstanceDate(weekStart, day, i).After(now)
}
