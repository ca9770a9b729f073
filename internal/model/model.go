package model

import (
	"encoding/json"
	"strings"
	"time"
)

// AppointmentType is the clinic's classification of a visit. The values are
// the exact strings stored by the backend.
type AppointmentType string

const (
	TypePreliminary AppointmentType = "Ön Görüşme"
	TypeRoutine     AppointmentType = "Rutin Görüşme"
	TypeExamination AppointmentType = "Muayene"
)

// Valid reports whether t is one of the known appointment types.
func (t AppointmentType) Valid() bool {
	switch t {
	case TypePreliminary, TypeRoutine, TypeExamination:
		return true
	}
	return false
}

// Participant is a patient attending an appointment.
type Participant struct {
	Name  string `json:"name" validate:"notblank"`
	Phone string `json:"phone" validate:"trmobile"`
}

// AppointmentRecord is a stored appointment as returned by the backend. For a
// recurring series it is the generating record; AppointmentDate anchors the
// first occurrence.
//
// Grid coordinates are pointers so that partially loaded records (missing
// dayIndex/timeIndex) can be told apart from slot zero.
type AppointmentRecord struct {
	ID string `json:"_id"`

	DayIndex     *int `json:"dayIndex"`
	TimeIndex    *int `json:"timeIndex"`
	EndTimeIndex *int `json:"endTimeIndex,omitempty"`
	SlotCount    *int `json:"slotCount,omitempty"`

	// AppointmentDate is the UTC instant of the first slot of the first occurrence.
	AppointmentDate time.Time `json:"appointmentDate"`

	IsRecurring bool `json:"isRecurring"`
	// EndDate bounds a recurring series (inclusive, by calendar date). Nil means unbounded.
	EndDate *time.Time `json:"endDate"`
	// ExceptionDates lists occurrence dates cancelled individually.
	ExceptionDates []time.Time `json:"exceptionDates,omitempty"`

	AppointmentType AppointmentType `json:"appointmentType"`
	ServiceID       string          `json:"serviceId,omitempty"`
	Participants    []Participant   `json:"participants"`
	Description     string          `json:"description"`
	DoctorID        string          `json:"doctorId"`

	// BookingID links a rebooked appointment to the one it was copied from.
	BookingID string `json:"bookingId,omitempty"`
}

// UnmarshalJSON accepts both "_id" and "id" for the record identity.
func (r *AppointmentRecord) UnmarshalJSON(data []byte) error {
	type alias AppointmentRecord
	aux := struct {
		*alias
		AltID string `json:"id"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = aux.AltID
	}
	return nil
}

// Span returns the normalized (start, end, count) slot span of the record.
// A missing endTimeIndex/slotCount is treated as a single slot. ok is false
// when the record has no timeIndex.
func (r AppointmentRecord) Span() (start, end, count int, ok bool) {
	if r.TimeIndex == nil {
		return 0, 0, 0, false
	}
	start = *r.TimeIndex
	switch {
	case r.SlotCount != nil && *r.SlotCount >= 1:
		count = *r.SlotCount
		end = start + count - 1
	case r.EndTimeIndex != nil && *r.EndTimeIndex >= start:
		end = *r.EndTimeIndex
		count = end - start + 1
	default:
		end, count = start, 1
	}
	return start, end, count, true
}

// AppointmentInstance is one concrete occurrence of a record inside a week.
// Virtual instances are synthesized from a recurring record for dates other
// than its anchor and are never persisted on their own.
type AppointmentInstance struct {
	ID       string `json:"_id"`
	SeriesID string `json:"seriesId"`

	DayIndex     int `json:"dayIndex"`
	TimeIndex    int `json:"timeIndex"`
	EndTimeIndex int `json:"endTimeIndex"`
	SlotCount    int `json:"slotCount"`

	AppointmentDate time.Time  `json:"appointmentDate"`
	IsRecurring     bool       `json:"isRecurring"`
	EndDate         *time.Time `json:"endDate"`

	// SeriesStart is the generating record's appointmentDate.
	SeriesStart time.Time `json:"seriesStart,omitzero"`

	AppointmentType AppointmentType `json:"appointmentType"`
	ServiceID       string          `json:"serviceId,omitempty"`
	Participants    []Participant   `json:"participants"`
	Description     string          `json:"description"`
	DoctorID        string          `json:"doctorId"`
	BookingID       string          `json:"bookingId,omitempty"`

	IsVirtualInstance bool `json:"isVirtualInstance"`
}

// VirtualMarker separates the series id from the occurrence date in the id of
// a virtual instance: "{seriesId}_instance_{YYYY-MM-DD}".
const VirtualMarker = "_instance_"

// VirtualID builds the synthetic id of a series occurrence on the given local date.
func VirtualID(seriesID string, date time.Time) string {
	return seriesID + VirtualMarker + date.Format(time.DateOnly)
}

// ParseVirtualID splits a virtual instance id. ok is false for ids that do not
// carry the marker or a parseable date.
func ParseVirtualID(id string) (seriesID string, date time.Time, ok bool) {
	i := strings.LastIndex(id, VirtualMarker)
	if i <= 0 {
		return "", time.Time{}, false
	}
	d, err := time.Parse(time.DateOnly, id[i+len(VirtualMarker):])
	if err != nil {
		return "", time.Time{}, false
	}
	return id[:i], d, true
}

// IsVirtualID reports whether id follows the virtual instance pattern.
func IsVirtualID(id string) bool {
	return strings.Contains(id, VirtualMarker)
}

// WeekWindow is the displayed week; Start is always Monday 00:00 in the
// clinic location.
type WeekWindow struct {
	Start time.Time `json:"start"`
}

// End returns the exclusive end of the window (next Monday 00:00).
func (w WeekWindow) End() time.Time {
	return w.Start.AddDate(0, 0, 7)
}

// Day returns midnight of the i-th day of the window.
func (w WeekWindow) Day(i int) time.Time {
	return w.Start.AddDate(0, 0, i)
}

// Contains reports whether t falls inside [Start, End).
func (w WeekWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End())
}

// Service is a catalog entry offered by a provider.
type Service struct {
	ID          string          `json:"_id"`
	Provider    string          `json:"provider"`
	ServiceType AppointmentType `json:"serviceType"`
	ServiceFee  float64         `json:"serviceFee"`
	Status      string          `json:"status"`
}

// ServiceStatusActive is the catalog status of a bookable service.
const ServiceStatusActive = "Aktif"

// Role is the identity collaborator's role name.
type Role string

const RoleDoctor Role = "doctor"

// User is the logged-in user as supplied by the identity collaborator.
type User struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Doctor identifies the calendar owner being displayed.
type Doctor struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}
