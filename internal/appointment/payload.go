package appointment

import (
	"time"

	"klinikcal/internal/model"
	"klinikcal/internal/slot"
)

// FormState is what the booking form holds when the user submits it.
// Grid coordinates come from the cell selection (create) or the selected
// appointment (update) and may be edited in the form.
type FormState struct {
	AppointmentType model.AppointmentType `json:"appointmentType" validate:"required,apptype"`
	ServiceID       string                `json:"serviceId"`
	Participants    []model.Participant   `json:"participants" validate:"min=1,dive"`
	Description     string                `json:"description"`

	DayIndex     int  `json:"dayIndex" validate:"min=0,max=6"`
	TimeIndex    int  `json:"timeIndex" validate:"min=0"`
	EndTimeIndex *int `json:"endTimeIndex,omitempty"`
	SlotCount    *int `json:"slotCount,omitempty"`

	IsRecurring bool       `json:"isRecurring"`
	EndDate     *time.Time `json:"endDate,omitempty"`

	// UpdateAllInstances applies an edit of a series occurrence to the
	// generating record instead of only this date.
	UpdateAllInstances bool `json:"updateAllInstances,omitempty"`
}

// Span returns the normalized slot span of the form; a missing end or count
// means a single slot.
func (f FormState) Span() (end, count int) {
	switch {
	case f.SlotCount != nil && *f.SlotCount >= 1:
		return f.TimeIndex + *f.SlotCount - 1, *f.SlotCount
	case f.EndTimeIndex != nil && *f.EndTimeIndex >= f.TimeIndex:
		return *f.EndTimeIndex, *f.EndTimeIndex - f.TimeIndex + 1
	default:
		return f.TimeIndex, 1
	}
}

// Request is the JSON body of POST and PUT /calendar-appointments.
type Request struct {
	DayIndex        int                   `json:"dayIndex"`
	TimeIndex       int                   `json:"timeIndex"`
	EndTimeIndex    int                   `json:"endTimeIndex"`
	SlotCount       int                   `json:"slotCount"`
	AppointmentDate time.Time             `json:"appointmentDate"`
	IsRecurring     bool                  `json:"isRecurring"`
	EndDate         *time.Time            `json:"endDate"`
	AppointmentType model.AppointmentType `json:"appointmentType"`
	ServiceID       string                `json:"serviceId,omitempty"`
	Participants    []model.Participant   `json:"participants"`
	Description     string                `json:"description"`
	DoctorID        string                `json:"doctorId"`
	BookingID       string                `json:"bookingId,omitempty"`

	UpdateAllInstances bool `json:"updateAllInstances,omitempty"`
	IsVirtualInstance  bool `json:"isVirtualInstance,omitempty"`
}

// UpdateRequest addresses a PUT to a stored record or a series occurrence.
type UpdateRequest struct {
	ID   string
	Body Request
}

// Placement pins form coordinates to a concrete week.
type Placement struct {
	Grid      slot.Grid
	WeekStart time.Time
	DoctorID  string
}

func (p Placement) base(f FormState) Request {
	end, count := f.Span()

	participants := make([]model.Participant, len(f.Participants))
	copy(participants, f.Participants)

	req := Request{
		DayIndex:        f.DayIndex,
		TimeIndex:       f.TimeIndex,
		EndTimeIndex:    end,
		SlotCount:       count,
		AppointmentDate: p.Grid.InstanceDate(p.WeekStart, f.DayIndex, f.TimeIndex),
		IsRecurring:     f.IsRecurring,
		AppointmentType: f.AppointmentType,
		ServiceID:       f.ServiceID,
		Participants:    participants,
		Description:     f.Description,
		DoctorID:        p.DoctorID,
	}
	if f.IsRecurring && f.EndDate != nil {
		d := *f.EndDate
		req.EndDate = &d
	}
	return req
}

// ResolveCreatePayload builds the POST body for a new appointment. When
// rebookFrom is set the request links back to that appointment's series via
// bookingId; it is otherwise an ordinary create.
func ResolveCreatePayload(f FormState, p Placement, rebookFrom *model.AppointmentInstance) Request {
	req := p.base(f)
	if rebookFrom != nil {
		req.BookingID = rebookFrom.SeriesID
		if req.BookingID == "" {
			req.BookingID = rebookFrom.ID
		}
	}
	return req
}

// ResolveUpdatePayload builds the PUT for an edit of selected.
//
// The PUT targets the selected instance's id, which for an occurrence of a
// series is the synthetic "{seriesId}_instance_{date}" id. With
// UpdateAllInstances the backend mutates the generating record, so the body
// keeps the series' anchor week and only the form's day and slot move; the
// series never loses its earlier occurrences. Otherwise the backend
// materializes an exception for the occurrence's date. rebookSeriesID, when
// non-empty, is carried as bookingId.
func ResolveUpdatePayload(f FormState, selected model.AppointmentInstance, p Placement, rebookSeriesID string) UpdateRequest {
	if p.DoctorID == "" {
		p.DoctorID = selected.DoctorID
	}
	req := p.base(f)
	req.IsVirtualInstance = selected.IsVirtualInstance || model.IsVirtualID(selected.ID)
	if req.IsVirtualInstance && f.UpdateAllInstances {
		req.UpdateAllInstances = true
		if !selected.SeriesStart.IsZero() {
			anchorWeek := p.Grid.WeekStart(selected.SeriesStart)
			req.AppointmentDate = p.Grid.InstanceDate(anchorWeek, f.DayIndex, f.TimeIndex)
		}
	}

	switch {
	case rebookSeriesID != "":
		req.BookingID = rebookSeriesID
	case selected.BookingID != "":
		req.BookingID = selected.BookingID
	}
	return UpdateRequest{ID: selected.ID, Body: req}
}

// FormFromInstance prefills the form for editing an existing instance.
// Participants are copied so edits never alias the instance.
func FormFromInstance(in model.AppointmentInstance) FormState {
	end, count := in.EndTimeIndex, in.SlotCount
	if count < 1 {
		end, count = in.TimeIndex, 1
	}
	participants := make([]model.Participant, len(in.Participants))
	copy(participants, in.Participants)

	return FormState{
		AppointmentType: in.AppointmentType,
		ServiceID:       in.ServiceID,
		Participants:    participants,
		Description:     in.Description,
		DayIndex:        in.DayIndex,
		TimeIndex:       in.TimeIndex,
		EndTimeIndex:    &end,
		SlotCount:       &count,
		IsRecurring:     in.IsRecurring,
		EndDate:         in.EndDate,
	}
}

// WithParticipant returns a copy of f with p appended.
func (f FormState) WithParticipant(p model.Participant) FormState {
	next := make([]model.Participant, len(f.Participants), len(f.Participants)+1)
	copy(next, f.Participants)
	f.Participants = append(next, p)
	return f
}

// WithoutParticipant returns a copy of f with the i-th participant removed.
// The last remaining participant is never removed.
func (f FormState) WithoutParticipant(i int) FormState {
	if i < 0 || i >= len(f.Participants) || len(f.Participants) == 1 {
		return f
	}
	next := make([]model.Participant, 0, len(f.Participants)-1)
	next = append(next, f.Participants[:i]...)
	next = append(next, f.Participants[i+1:]...)
	f.Participants = next
	return f
}

// WithParticipantAt returns a copy of f with the i-th participant replaced.
func (f FormState) WithParticipantAt(i int, p model.Participant) FormState {
	if i < 0 || i >= len(f.Participants) {
		return f
	}
	next := make([]model.Participant, len(f.Participants))
	copy(next, f.Participants)
	next[i] = p
	f.Participants = next
	return f
}
