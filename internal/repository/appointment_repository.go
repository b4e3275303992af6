package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Gerald18902/gestion-citas/internal/domain/appointment"
)

// AppointmentRepository is the gorm-backed implementation of
// appointment.Repository.
type AppointmentRepository struct {
	db *gorm.DB
}

func NewAppointmentRepository(db *gorm.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

func (r *AppointmentRepository) Create(ctx context.Context, a *appointment.Appointment) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("inserting appointment: %w", err)
	}
	return nil
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	var a appointment.Appointment
	err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appointment.ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("fetching appointment: %w", err)
	}
	return &a, nil
}

func (r *AppointmentRepository) Update(ctx context.Context, a *appointment.Appointment) error {
	res := r.db.WithContext(ctx).Model(&appointment.Appointment{}).
		Where("id = ?", a.ID).
		Updates(map[string]any{
			"patient_name": a.PatientName,
			"doctor_name":  a.DoctorName,
			"date":         a.Date,
			"start_time":   a.StartTime,
			"end_time":     a.EndTime,
			"reason":       a.Reason,
			"status":       a.Status,
		})
	if res.Error != nil {
		return fmt.Errorf("updating appointment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return appointment.ErrAppointmentNotFound
	}
	return nil
}

func (r *AppointmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&appointment.Appointment{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("deleting appointment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return appointment.ErrAppointmentNotFound
	}
	return nil
}

func (r *AppointmentRepository) List(ctx context.Context, q *appointment.ListAppointmentsQuery) ([]*appointment.Appointment, error) {
	query := r.db.WithContext(ctx).Model(&appointment.Appointment{})

	if q.Date != nil {
		query = query.Where("date = ?", *q.Date)
	}
	if q.DoctorName != nil {
		query = query.Where("doctor_name = ?", *q.DoctorName)
	}
	if q.Status != nil {
		query = query.Where("status = ?", *q.Status)
	}

	var out []*appointment.Appointment
	if err := query.Order("date ASC, start_time ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing appointments: %w", err)
	}
	return out, nil
}

func (r *AppointmentRepository) FindByDoctorAndDate(ctx context.Context, doctorName string, date appointment.Date, excludeID *uuid.UUID) ([]*appointment.Appointment, error) {
	query := r.db.WithContext(ctx).
		Where("doctor_name = ? AND date = ?", doctorName, date)

	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}

	var out []*appointment.Appointment
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("finding appointments for doctor: %w", err)
	}
	return out, nil
}
