package grid

import (
	"time"

	"klinikcal/internal/model"
)

// Occupancy is the answer for one grid cell. Head is true only for the
// instance's first slot; later slots of a multi-slot instance are
// continuation cells.
type Occupancy struct {
	Instance model.AppointmentInstance `json:"instance"`
	Head     bool                      `json:"head"`
}

// Resolver finds which instance occupies a (day, slot) cell of one week.
type Resolver struct {
	// Location decides what "same calendar day" means.
	Location *time.Location
	// OnOverlap, if set, is called when a cell has more than one candidate.
	// The first candidate still wins.
	OnOverlap func(winner, other model.AppointmentInstance)
}

// FindOccupant returns the instance covering (day, i) on cellDate, if any.
// An instance covers the cell when its dayIndex matches, i lies within
// [timeIndex, endTimeIndex] and its appointmentDate is on cellDate's
// calendar day.
func (r Resolver) FindOccupant(instances []model.AppointmentInstance, day, i int, cellDate time.Time) (Occupancy, bool) {
	return r.firstInRange(instances, day, i, i, cellDate)
}

// FirstInRange returns the first instance covering any slot of [from, to] on
// the given day.
func (r Resolver) FirstInRange(instances []model.AppointmentInstance, day, from, to int, cellDate time.Time) (Occupancy, bool) {
	if to < from {
		from, to = to, from
	}
	return r.firstInRange(instances, day, from, to, cellDate)
}

func (r Resolver) firstInRange(instances []model.AppointmentInstance, day, from, to int, cellDate time.Time) (Occupancy, bool) {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	cy, cm, cd := cellDate.In(loc).Date()

	var (
		found Occupancy
		ok    bool
	)
	for _, in := range instances {
		if in.DayIndex != day {
			continue
		}
		end := in.EndTimeIndex
		if end < in.TimeIndex {
			end = in.TimeIndex
		}
		if to < in.TimeIndex || from > end {
			continue
		}
		y, m, d := in.AppointmentDate.In(loc).Date()
		if y != cy || m != cm || d != cd {
			continue
		}
		if !ok {
			found = Occupancy{Instance: in, Head: from == to && from == in.TimeIndex}
			ok = true
			if r.OnOverlap == nil {
				break
			}
			continue
		}
		r.OnOverlap(found.Instance, in)
	}
	return found, ok
}

// FindOccupant is the package-level shorthand for a Resolver without an
// overlap callback.
func FindOccupant(instances []model.AppointmentInstance, day, i int, cellDate time.Time, loc *time.Location) (Occupancy, bool) {
	return Resolver{Location: loc}.FindOccupant(instances, day, i, cellDate)
}
