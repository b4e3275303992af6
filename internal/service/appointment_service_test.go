package service_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gerald18902/gestion-citas/internal/domain"
	"github.com/Gerald18902/gestion-citas/internal/domain/appointment"
	"github.com/Gerald18902/gestion-citas/internal/service"
	"github.com/Gerald18902/gestion-citas/pkg/metrics"
)

// promauto registers collectors in the process-global registry, so the test
// binary builds exactly one collector.
var testMetrics = metrics.NewCollector("servicetest")

type fakeRepo struct {
	mu    sync.Mutex
	items []*appointment.Appointment
}

func (r *fakeRepo) Create(ctx context.Context, a *appointment.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	r.items = append(r.items, &cp)
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.ID == id {
			cp := *it
			return &cp, nil
		}
	}
	return nil, appointment.ErrAppointmentNotFound
}

func (r *fakeRepo) Update(ctx context.Context, a *appointment.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, it := range r.items {
		if it.ID == a.ID {
			cp := *a
			cp.UpdatedAt = time.Now()
			r.items[i] = &cp
			return nil
		}
	}
	return appointment.ErrAppointmentNotFound
}

func (r *fakeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, it := range r.items {
		if it.ID == id {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return appointment.ErrAppointmentNotFound
}

func (r *fakeRepo) List(ctx context.Context, q *appointment.ListAppointmentsQuery) ([]*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*appointment.Appointment
	for _, it := range r.items {
		if q.Date != nil && !it.Date.Equal(*q.Date) {
			continue
		}
		if q.DoctorName != nil && it.DoctorName != *q.DoctorName {
			continue
		}
		if q.Status != nil && it.Status != *q.Status {
			continue
		}
		cp := *it
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (r *fakeRepo) FindByDoctorAndDate(ctx context.Context, doctorName string, date appointment.Date, excludeID *uuid.UUID) ([]*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*appointment.Appointment
	for _, it := range r.items {
		if it.DoctorName != doctorName || !it.Date.Equal(date) {
			continue
		}
		if excludeID != nil && it.ID == *excludeID {
			continue
		}
		cp := *it
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

type nopAuditRepo struct{}

func (nopAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error { return nil }

func newTestService(t *testing.T) (*service.AppointmentService, *fakeRepo) {
	t.Helper()
	repo := &fakeRepo{}
	auditSvc := service.NewAuditService(nopAuditRepo{}, zap.NewNop(), testMetrics)
	t.Cleanup(auditSvc.Shutdown)
	return service.NewAppointmentService(repo, auditSvc, zap.NewNop(), testMetrics), repo
}

func futureDate(days int) string {
	return time.Now().AddDate(0, 0, days).Format("2006-01-02")
}

func createCmd(doctor, date, start, end string) *appointment.CreateAppointmentCommand {
	return &appointment.CreateAppointmentCommand{
		PatientName: "Ana Torres",
		DoctorName:  doctor,
		Date:        date,
		StartTime:   start,
		EndTime:     end,
	}
}

func TestScheduleDefaultsStatus(t *testing.T) {
	svc, _ := newTestService(t)

	a, err := svc.Schedule(context.Background(), createCmd("Dr. X", futureDate(7), "09:00", "10:00"), "127.0.0.1", "req-1")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if a.Status != appointment.StatusScheduled {
		t.Fatalf("expected default status scheduled, got %s", a.Status)
	}
	if a.ID == uuid.Nil {
		t.Fatal("expected assigned id")
	}
}

func TestScheduleMissingFields(t *testing.T) {
	svc, repo := newTestService(t)

	_, err := svc.Schedule(context.Background(), &appointment.CreateAppointmentCommand{}, "", "")
	var verr *service.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Fields) != 5 {
		t.Fatalf("expected 5 missing fields, got %v", verr.Fields)
	}
	for _, f := range []string{"patientName", "doctorName", "date", "startTime", "endTime"} {
		if !strings.Contains(verr.Error(), f) {
			t.Fatalf("expected %q in %q", f, verr.Error())
		}
	}
	if repo.count() != 0 {
		t.Fatal("nothing should be written on validation failure")
	}
}

func TestScheduleEndNotAfterStart(t *testing.T) {
	svc, _ := newTestService(t)

	for _, times := range [][2]string{{"10:00", "09:00"}, {"10:00", "10:00"}} {
		_, err := svc.Schedule(context.Background(), createCmd("Dr. X", futureDate(7), times[0], times[1]), "", "")
		if !errors.Is(err, appointment.ErrEndBeforeStart) {
			t.Fatalf("start=%s end=%s: expected ErrEndBeforeStart, got %v", times[0], times[1], err)
		}
	}
}

func TestScheduleMalformedTime(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Schedule(context.Background(), createCmd("Dr. X", futureDate(7), "9am", "10:00"), "", "")
	if !errors.Is(err, appointment.ErrInvalidTimeFormat) {
		t.Fatalf("expected ErrInvalidTimeFormat, got %v", err)
	}
}

func TestScheduleBackdated(t *testing.T) {
	svc, repo := newTestService(t)

	_, err := svc.Schedule(context.Background(), createCmd("Dr. X", futureDate(-1), "09:00", "10:00"), "", "")
	if !errors.Is(err, appointment.ErrDateInPast) {
		t.Fatalf("expected ErrDateInPast, got %v", err)
	}
	if repo.count() != 0 {
		t.Fatal("backdated appointment must not be written")
	}
}

func TestScheduleToday(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.Schedule(context.Background(), createCmd("Dr. X", futureDate(0), "09:00", "10:00"), "", ""); err != nil {
		t.Fatalf("same-day booking should be allowed: %v", err)
	}
}

func TestScheduleConflict(t *testing.T) {
	svc, repo := newTestService(t)
	date := futureDate(7)

	first, err := svc.Schedule(context.Background(), createCmd("Dr. X", date, "09:00", "10:00"), "", "")
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}

	_, err = svc.Schedule(context.Background(), createCmd("Dr. X", date, "09:30", "10:30"), "", "")
	var cerr *appointment.ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(cerr.Conflicts) != 1 || cerr.Conflicts[0].ID != first.ID {
		t.Fatalf("expected exactly the first booking in conflicts, got %+v", cerr.Conflicts)
	}
	if repo.count() != 1 {
		t.Fatalf("conflicting booking must not be written, have %d records", repo.count())
	}
}

func TestScheduleAdjacentSlots(t *testing.T) {
	svc, _ := newTestService(t)
	date := futureDate(7)

	if _, err := svc.Schedule(context.Background(), createCmd("Dr. X", date, "09:00", "10:00"), "", ""); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if _, err := svc.Schedule(context.Background(), createCmd("Dr. X", date, "10:00", "11:00"), "", ""); err != nil {
		t.Fatalf("adjacent booking should not conflict: %v", err)
	}
}

func TestScheduleDifferentDoctors(t *testing.T) {
	svc, _ := newTestService(t)
	date := futureDate(7)

	if _, err := svc.Schedule(context.Background(), createCmd("Dr. X", date, "09:00", "10:00"), "", ""); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if _, err := svc.Schedule(context.Background(), createCmd("Dr. Y", date, "09:00", "10:00"), "", ""); err != nil {
		t.Fatalf("same slot for another doctor should not conflict: %v", err)
	}
}

func TestCancelledAppointmentStillBlocksSlot(t *testing.T) {
	svc, _ := newTestService(t)
	date := futureDate(7)

	cmd := createCmd("Dr. X", date, "09:00", "10:00")
	cmd.Status = "cancelled"
	if _, err := svc.Schedule(context.Background(), cmd, "", ""); err != nil {
		t.Fatalf("cancelled booking: %v", err)
	}

	_, err := svc.Schedule(context.Background(), createCmd("Dr. X", date, "09:30", "10:30"), "", "")
	var cerr *appointment.ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("cancelled appointment should still block the slot, got %v", err)
	}
}

func TestUpdateExcludesSelf(t *testing.T) {
	svc, _ := newTestService(t)
	date := futureDate(7)

	a, err := svc.Schedule(context.Background(), createCmd("Dr. X", date, "09:00", "10:00"), "", "")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	updated, err := svc.UpdateAppointment(context.Background(), a.ID, &appointment.UpdateAppointmentCommand{
		PatientName: a.PatientName,
		DoctorName:  a.DoctorName,
		Date:        date,
		StartTime:   "09:00",
		EndTime:     "10:00",
		Reason:      "follow-up",
		Status:      "completed",
	}, "", "")
	if err != nil {
		t.Fatalf("update to own slot must not conflict with itself: %v", err)
	}
	if updated.Status != appointment.StatusCompleted || updated.Reason != "follow-up" {
		t.Fatalf("fields not overwritten: %+v", updated)
	}
}

func TestUpdateConflictLeavesRecordUnchanged(t *testing.T) {
	svc, _ := newTestService(t)
	date := futureDate(7)

	a, err := svc.Schedule(context.Background(), createCmd("Dr. X", date, "09:00", "10:00"), "", "")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := svc.Schedule(context.Background(), createCmd("Dr. X", date, "11:00", "12:00"), "", "")
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	_, err = svc.UpdateAppointment(context.Background(), b.ID, &appointment.UpdateAppointmentCommand{
		PatientName: b.PatientName,
		DoctorName:  b.DoctorName,
		Date:        date,
		StartTime:   "09:30",
		EndTime:     "10:30",
	}, "", "")
	var cerr *appointment.ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(cerr.Conflicts) != 1 || cerr.Conflicts[0].ID != a.ID {
		t.Fatalf("expected conflict with first booking, got %+v", cerr.Conflicts)
	}

	got, err := svc.GetAppointment(context.Background(), b.ID, "", "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.StartTime.String() != "11:00" || got.EndTime.String() != "12:00" {
		t.Fatalf("record must be unchanged after rejected update: %+v", got)
	}
}

func TestUpdateNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.UpdateAppointment(context.Background(), uuid.New(), &appointment.UpdateAppointmentCommand{
		PatientName: "Ana Torres",
		DoctorName:  "Dr. X",
		Date:        futureDate(7),
		StartTime:   "09:00",
		EndTime:     "10:00",
	}, "", "")
	if !errors.Is(err, appointment.ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestDeleteNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	if err := svc.DeleteAppointment(context.Background(), uuid.New(), "", ""); !errors.Is(err, appointment.ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestListFilters(t *testing.T) {
	svc, _ := newTestService(t)
	d1, d2 := futureDate(7), futureDate(8)

	mustSchedule := func(doctor, date, start, end string) {
		t.Helper()
		if _, err := svc.Schedule(context.Background(), createCmd(doctor, date, start, end), "", ""); err != nil {
			t.Fatalf("schedule %s %s: %v", doctor, start, err)
		}
	}
	mustSchedule("Dr. X", d2, "09:00", "10:00")
	mustSchedule("Dr. X", d1, "11:00", "12:00")
	mustSchedule("Dr. X", d1, "08:00", "09:00")
	mustSchedule("Dr. Y", d1, "08:00", "09:00")

	out, err := svc.ListAppointments(context.Background(), "", "Dr. X", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 records for Dr. X, got %d", len(out))
	}
	// Ordered by (date, startTime) ascending.
	if out[0].StartTime.String() != "08:00" || out[1].StartTime.String() != "11:00" {
		t.Fatalf("unexpected order: %s %s %s", out[0].StartTime, out[1].StartTime, out[2].StartTime)
	}
	if out[2].Date.String() != d2 {
		t.Fatalf("expected last record on %s, got %s", d2, out[2].Date)
	}

	out, err = svc.ListAppointments(context.Background(), d1, "Dr. X", "scheduled")
	if err != nil {
		t.Fatalf("list with filters: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 records with conjunction of filters, got %d", len(out))
	}

	if _, err := svc.ListAppointments(context.Background(), "", "", "unknown"); !errors.Is(err, appointment.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestCheckConflictsIsReadOnly(t *testing.T) {
	svc, repo := newTestService(t)
	date := futureDate(7)

	a, err := svc.Schedule(context.Background(), createCmd("Dr. X", date, "09:00", "10:00"), "", "")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	conflicts, err := svc.CheckConflicts(context.Background(), &appointment.ConflictQuery{
		DoctorName: "Dr. X", Date: date, StartTime: "09:30", EndTime: "10:30",
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0].ID != a.ID {
		t.Fatalf("expected the booked appointment, got %+v", conflicts)
	}
	if repo.count() != 1 {
		t.Fatal("conflict probe must not write")
	}

	conflicts, err = svc.CheckConflicts(context.Background(), &appointment.ConflictQuery{
		DoctorName: "Dr. X", Date: date, StartTime: "09:30", EndTime: "10:30", ExcludeID: a.ID.String(),
	})
	if err != nil {
		t.Fatalf("check with exclusion: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("expected no conflicts when excluding the only booking, got %+v", conflicts)
	}
}

func TestCheckConflictsValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CheckConflicts(context.Background(), &appointment.ConflictQuery{})
	var verr *service.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Fields) != 4 {
		t.Fatalf("expected 4 missing fields, got %v", verr.Fields)
	}

	_, err = svc.CheckConflicts(context.Background(), &appointment.ConflictQuery{
		DoctorName: "Dr. X", Date: futureDate(7), StartTime: "09:00", EndTime: "10:00", ExcludeID: "not-a-uuid",
	})
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for bad excludeId, got %v", err)
	}
}

func TestConcurrentScheduleSameSlot(t *testing.T) {
	svc, repo := newTestService(t)
	date := futureDate(7)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Schedule(context.Background(), createCmd("Dr. X", date, "09:00", "10:00"), "", "")
		}(i)
	}
	wg.Wait()

	success, conflicted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			success++
		default:
			var cerr *appointment.ConflictError
			if !errors.As(err, &cerr) {
				t.Fatalf("unexpected error: %v", err)
			}
			conflicted++
		}
	}
	if success != 1 || conflicted != n-1 {
		t.Fatalf("expected exactly one booking to win, got %d successes and %d conflicts", success, conflicted)
	}
	if repo.count() != 1 {
		t.Fatalf("expected a single stored record, got %d", repo.count())
	}
}
