package appointment

import "klinikcal/internal/model"

// Access describes what a user may do with the calendar.
type Access struct {
	// LockedDoctorID pins the calendar to one doctor when non-empty.
	LockedDoctorID  string `json:"lockedDoctorId,omitempty"`
	CanSelectDoctor bool   `json:"canSelectDoctor"`
	CanWrite        bool   `json:"canWrite"`
}

// Permissions derives the user's access. Doctors see only their own calendar
// and cannot book or edit; every other role is staff with full access.
func Permissions(u model.User) Access {
	if u.Role == model.RoleDoctor {
		return Access{LockedDoctorID: u.ID}
	}
	return Access{CanSelectDoctor: true, CanWrite: true}
}

// DoctorFor resolves which doctor's calendar the user gets when requesting
// requested. A locked user always gets their own.
func (a Access) DoctorFor(requested string) string {
	if a.LockedDoctorID != "" {
		return a.LockedDoctorID
	}
	return requested
}
