package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gerald18902/gestion-citas/internal/domain/appointment"
	"github.com/Gerald18902/gestion-citas/pkg/metrics"
)

type AppointmentService struct {
	repo     appointment.Repository
	auditSvc *AuditService
	log      *zap.Logger
	metrics  *metrics.Collector
	slots    slotLocks
}

func NewAppointmentService(
	repo appointment.Repository,
	auditSvc *AuditService,
	log *zap.Logger,
	m *metrics.Collector,
) *AppointmentService {
	return &AppointmentService{
		repo:     repo,
		auditSvc: auditSvc,
		log:      log,
		metrics:  m,
		slots:    slotLocks{m: make(map[slotKey]*sync.Mutex)},
	}
}

// slotLocks serializes conflict-check-plus-write per (doctor, day) so two
// concurrent bookings for the same slot cannot both observe "no conflict".
// Read paths never take a slot lock.
type slotKey struct {
	doctor string
	day    string
}

type slotLocks struct {
	mu sync.Mutex
	m  map[slotKey]*sync.Mutex
}

func (l *slotLocks) acquire(doctor string, date appointment.Date) func() {
	k := slotKey{doctor: doctor, day: date.String()}
	l.mu.Lock()
	sm, ok := l.m[k]
	if !ok {
		sm = &sync.Mutex{}
		l.m[k] = sm
	}
	l.mu.Unlock()
	sm.Lock()
	return sm.Unlock
}

func (s *AppointmentService) Schedule(ctx context.Context, cmd *appointment.CreateAppointmentCommand, ip, requestID string) (*appointment.Appointment, error) {
	a, err := buildAppointment(cmd.PatientName, cmd.DoctorName, cmd.Date, cmd.StartTime, cmd.EndTime, cmd.Reason, cmd.Status)
	if err != nil {
		return nil, err
	}
	if a.Date.Before(appointment.Today()) {
		return nil, appointment.ErrDateInPast
	}

	unlock := s.slots.acquire(a.DoctorName, a.Date)
	defer unlock()

	conflicts, err := s.findConflicts(ctx, a.DoctorName, a.Date, a.StartTime, a.EndTime, nil)
	if err != nil {
		return nil, fmt.Errorf("checking conflicts: %w", err)
	}
	if len(conflicts) > 0 {
		s.metrics.ConflictsDetected.Inc()
		return nil, &appointment.ConflictError{Conflicts: conflicts}
	}

	if err := s.repo.Create(ctx, a); err != nil {
		s.log.Error("failed to create appointment", zap.Error(err))
		return nil, fmt.Errorf("creating appointment: %w", err)
	}

	s.metrics.AppointmentsTotal.WithLabelValues(string(a.Status)).Inc()
	s.auditSvc.LogAsync(ctx, AuditEntry{
		Action:       "create",
		ResourceType: "appointment",
		ResourceID:   a.ID.String(),
		IPAddress:    ip,
		RequestID:    requestID,
	})

	return a, nil
}

func (s *AppointmentService) GetAppointment(ctx context.Context, id uuid.UUID, ip, requestID string) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Action:       "read",
		ResourceType: "appointment",
		ResourceID:   id.String(),
		IPAddress:    ip,
		RequestID:    requestID,
	})

	return a, nil
}

// UpdateAppointment overwrites every mutable field of the target record after
// a fresh conflict check that excludes the record itself. On the conflict path
// nothing is written. Backdated dates are allowed here; only new bookings are
// held to the no-backdating rule.
func (s *AppointmentService) UpdateAppointment(ctx context.Context, id uuid.UUID, cmd *appointment.UpdateAppointmentCommand, ip, requestID string) (*appointment.Appointment, error) {
	next, err := buildAppointment(cmd.PatientName, cmd.DoctorName, cmd.Date, cmd.StartTime, cmd.EndTime, cmd.Reason, cmd.Status)
	if err != nil {
		return nil, err
	}

	unlock := s.slots.acquire(next.DoctorName, next.Date)
	defer unlock()

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	conflicts, err := s.findConflicts(ctx, next.DoctorName, next.Date, next.StartTime, next.EndTime, &id)
	if err != nil {
		return nil, fmt.Errorf("checking conflicts: %w", err)
	}
	if len(conflicts) > 0 {
		s.metrics.ConflictsDetected.Inc()
		return nil, &appointment.ConflictError{Conflicts: conflicts}
	}

	a.PatientName = next.PatientName
	a.DoctorName = next.DoctorName
	a.Date = next.Date
	a.StartTime = next.StartTime
	a.EndTime = next.EndTime
	a.Reason = next.Reason
	a.Status = next.Status

	if err := s.repo.Update(ctx, a); err != nil {
		s.log.Error("failed to update appointment", zap.Error(err))
		return nil, fmt.Errorf("updating appointment: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Action:       "update",
		ResourceType: "appointment",
		ResourceID:   id.String(),
		IPAddress:    ip,
		RequestID:    requestID,
	})

	return a, nil
}

func (s *AppointmentService) DeleteAppointment(ctx context.Context, id uuid.UUID, ip, requestID string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Action:       "delete",
		ResourceType: "appointment",
		ResourceID:   id.String(),
		IPAddress:    ip,
		RequestID:    requestID,
	})

	return nil
}

// ListAppointments applies the optional exact-match filters as a conjunction.
// Results come back ordered by (date, startTime) ascending.
func (s *AppointmentService) ListAppointments(ctx context.Context, date, doctorName, status string) ([]*appointment.Appointment, error) {
	q := &appointment.ListAppointmentsQuery{}

	if date != "" {
		d, err := appointment.ParseDate(date)
		if err != nil {
			return nil, err
		}
		q.Date = &d
	}
	if doctorName != "" {
		q.DoctorName = &doctorName
	}
	if status != "" {
		st := appointment.Status(status)
		if !st.IsValid() {
			return nil, appointment.ErrInvalidStatus
		}
		q.Status = &st
	}

	return s.repo.List(ctx, q)
}

// CheckConflicts runs the conflict finder as a standalone read-only query. It
// never writes and never takes a slot lock.
func (s *AppointmentService) CheckConflicts(ctx context.Context, q *appointment.ConflictQuery) ([]*appointment.Appointment, error) {
	var fields []string
	if strings.TrimSpace(q.DoctorName) == "" {
		fields = append(fields, "doctorName is required")
	}
	if q.Date == "" {
		fields = append(fields, "date is required")
	}
	if q.StartTime == "" {
		fields = append(fields, "startTime is required")
	}
	if q.EndTime == "" {
		fields = append(fields, "endTime is required")
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	date, err := appointment.ParseDate(q.Date)
	if err != nil {
		return nil, err
	}
	start, err := appointment.ParseTimeOfDay(q.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := appointment.ParseTimeOfDay(q.EndTime)
	if err != nil {
		return nil, err
	}

	var excludeID *uuid.UUID
	if q.ExcludeID != "" {
		id, err := uuid.Parse(q.ExcludeID)
		if err != nil {
			return nil, &ValidationError{Fields: []string{"excludeId must be a valid UUID"}}
		}
		excludeID = &id
	}

	return s.findConflicts(ctx, strings.TrimSpace(q.DoctorName), date, start, end, excludeID)
}

// findConflicts fetches the doctor's appointments for the day and keeps those
// whose [startTime, endTime) range overlaps the candidate range, in store
// iteration order. Candidates are not filtered by status: a cancelled
// appointment still blocks its slot.
func (s *AppointmentService) findConflicts(ctx context.Context, doctorName string, date appointment.Date, start, end appointment.TimeOfDay, excludeID *uuid.UUID) ([]*appointment.Appointment, error) {
	candidates, err := s.repo.FindByDoctorAndDate(ctx, doctorName, date, excludeID)
	if err != nil {
		return nil, err
	}

	conflicts := make([]*appointment.Appointment, 0, len(candidates))
	for _, c := range candidates {
		if c.OverlapsWith(start, end) {
			conflicts = append(conflicts, c)
		}
	}
	return conflicts, nil
}

func buildAppointment(patientName, doctorName, date, startTime, endTime, reason, status string) (*appointment.Appointment, error) {
	var fields []string

	patientName = strings.TrimSpace(patientName)
	doctorName = strings.TrimSpace(doctorName)

	if patientName == "" {
		fields = append(fields, "patientName is required")
	}
	if doctorName == "" {
		fields = append(fields, "doctorName is required")
	}
	if date == "" {
		fields = append(fields, "date is required")
	}
	if startTime == "" {
		fields = append(fields, "startTime is required")
	}
	if endTime == "" {
		fields = append(fields, "endTime is required")
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	d, err := appointment.ParseDate(date)
	if err != nil {
		return nil, err
	}
	start, err := appointment.ParseTimeOfDay(startTime)
	if err != nil {
		return nil, err
	}
	end, err := appointment.ParseTimeOfDay(endTime)
	if err != nil {
		return nil, err
	}
	if end <= start {
		return nil, appointment.ErrEndBeforeStart
	}

	st := appointment.StatusScheduled
	if status != "" {
		st = appointment.Status(status)
		if !st.IsValid() {
			return nil, appointment.ErrInvalidStatus
		}
	}

	return &appointment.Appointment{
		PatientName: patientName,
		DoctorName:  doctorName,
		Date:        d,
		StartTime:   start,
		EndTime:     end,
		Reason:      strings.TrimSpace(reason),
		Status:      st,
	}, nil
}
