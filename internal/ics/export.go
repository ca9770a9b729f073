// Package ics renders a displayed week as an iCalendar feed.
package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"klinikcal/internal/model"
	"klinikcal/internal/slot"
)

const productID = "-//klinikcal//week export//TR"

// PropertySeriesID carries the generating record of a series occurrence.
const PropertySeriesID ical.ComponentProperty = "X-KLINIKCAL-SERIES-ID"

// Options describes the calendar being exported.
type Options struct {
	Grid       slot.Grid
	DoctorName string
	// Stamp is written as DTSTAMP of every event.
	Stamp time.Time
}

// ExportWeek serializes instances as VEVENTs. Virtual occurrences are
// exported like stored ones; their UID is the synthetic instance id.
func ExportWeek(instances []model.AppointmentInstance, opts Options) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if opts.DoctorName != "" {
		cal.SetXWRCalName(opts.DoctorName)
	}
	if opts.Grid.Location != nil {
		cal.SetXWRTimezone(opts.Grid.Location.String())
	}

	stamp := opts.Stamp.UTC()
	for _, in := range instances {
		count := in.SlotCount
		if count < 1 {
			count = 1
		}

		ev := cal.AddEvent(in.ID + "@klinikcal")
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(in.AppointmentDate.UTC())
		ev.SetEndAt(opts.Grid.SlotEnd(in.AppointmentDate, count).UTC())
		ev.SetSummary(summary(in))
		if d := description(in); d != "" {
			ev.SetDescription(d)
		}
		ev.SetStatus(ical.ObjectStatusConfirmed)
		if in.AppointmentType != "" {
			ev.AddProperty(ical.ComponentPropertyCategories, string(in.AppointmentType))
		}
		if in.IsRecurring && in.SeriesID != "" {
			ev.SetProperty(PropertySeriesID, in.SeriesID)
		}
	}
	return cal.Serialize()
}

func summary(in model.AppointmentInstance) string {
	names := make([]string, 0, len(in.Participants))
	for _, p := range in.Participants {
		if n := strings.TrimSpace(p.Name); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return string(in.AppointmentType)
	}
	if in.AppointmentType == "" {
		return strings.Join(names, ", ")
	}
	return string(in.AppointmentType) + ": " + strings.Join(names, ", ")
}

func description(in model.AppointmentInstance) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(in.Description))
	for _, p := range in.Participants {
		if p.Phone == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.TrimSpace(p.Name))
		b.WriteString(" ")
		b.WriteString(p.Phone)
	}
	return b.String()
}
