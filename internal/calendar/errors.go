package calendar

import "errors"

var (
	ErrNoDoctor     = errors.New("no doctor selected")
	ErrForbidden    = errors.New("user may not view this doctor's calendar")
	ErrNotFound     = errors.New("appointment not in the displayed week")
	ErrSlotOccupied = errors.New("selected slots overlap an existing appointment")
)
