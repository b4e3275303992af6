package appointment

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Appointment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`

	PatientName string `gorm:"column:patient_name;type:varchar(255);not null" json:"patientName"`
	DoctorName  string `gorm:"column:doctor_name;type:varchar(255);not null;index" json:"doctorName"`

	Date      Date      `gorm:"column:date;type:date;not null;index" json:"date"`
	StartTime TimeOfDay `gorm:"column:start_time;type:smallint;not null" json:"startTime"`
	EndTime   TimeOfDay `gorm:"column:end_time;type:smallint;not null" json:"endTime"`

	Reason string `gorm:"column:reason;type:text" json:"reason,omitempty"`
	Status Status `gorm:"column:status;type:varchar(20);not null;default:'scheduled'" json:"status"`
}

func (Appointment) TableName() string {
	return "appointments"
}

func (a *Appointment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// OverlapsWith reports whether the appointment's time range overlaps the given
// half-open [start, end) range. Touching ranges do not overlap.
func (a *Appointment) OverlapsWith(start, end TimeOfDay) bool {
	return Overlaps(a.StartTime, a.EndTime, start, end)
}

// Commands carry raw wire values; parsing and validation happen in the service
// so malformed input reports per-field errors instead of a bare bind failure.
type CreateAppointmentCommand struct {
	PatientName string
	DoctorName  string
	Date        string
	StartTime   string
	EndTime     string
	Reason      string
	Status      string
}

// UpdateAppointmentCommand overwrites all mutable fields of the target record.
type UpdateAppointmentCommand struct {
	PatientName string
	DoctorName  string
	Date        string
	StartTime   string
	EndTime     string
	Reason      string
	Status      string
}

type ListAppointmentsQuery struct {
	Date       *Date
	DoctorName *string
	Status     *Status
}

type ConflictQuery struct {
	DoctorName string
	Date       string
	StartTime  string
	EndTime    string
	ExcludeID  string
}
