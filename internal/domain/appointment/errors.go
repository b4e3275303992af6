package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrInvalidTimeFormat   = errors.New("time must be in HH:MM format")
	ErrInvalidDateFormat   = errors.New("date must be in YYYY-MM-DD format")
	ErrEndBeforeStart      = errors.New("end time must be later than start time")
	ErrDateInPast          = errors.New("appointment date cannot be before today")
	ErrInvalidStatus       = errors.New("invalid appointment status")
)

// ConflictError carries the full set of overlapping records so callers can
// present them.
type ConflictError struct {
	Conflicts []*Appointment
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("schedule conflict with %d existing appointment(s)", len(e.Conflicts))
}
