package appointment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, q *ListAppointmentsQuery) ([]*Appointment, error)

	// FindByDoctorAndDate returns the conflict-check candidates: every record
	// for the doctor on the given day, minus excludeID when supplied. Status is
	// deliberately not filtered; a cancelled appointment still occupies its slot.
	FindByDoctorAndDate(ctx context.Context, doctorName string, date Date, excludeID *uuid.UUID) ([]*Appointment, error)
}
