package v1

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gerald18902/gestion-citas/internal/domain/appointment"
	"github.com/Gerald18902/gestion-citas/internal/middleware"
	"github.com/Gerald18902/gestion-citas/internal/service"
)

type AppointmentHandler struct {
	svc *service.AppointmentService
	log *zap.Logger
}

func NewAppointmentHandler(svc *service.AppointmentService, log *zap.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, log: log}
}

// appointmentRequest carries the wire fields as raw text; the service parses
// and validates them.
type appointmentRequest struct {
	PatientName string `json:"patientName"`
	DoctorName  string `json:"doctorName"`
	Date        string `json:"date"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	Reason      string `json:"reason"`
	Status      string `json:"status"`
}

// Create handles POST /api/appointments.
func (h *AppointmentHandler) Create(c *gin.Context) {
	var req appointmentRequest
	if !bindJSON(c, &req) {
		return
	}

	a, err := h.svc.Schedule(c.Request.Context(), &appointment.CreateAppointmentCommand{
		PatientName: req.PatientName,
		DoctorName:  req.DoctorName,
		Date:        req.Date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Reason:      req.Reason,
		Status:      req.Status,
	}, c.ClientIP(), middleware.GetRequestID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondCreated(c, a)
}

// List handles GET /api/appointments with optional exact-match filters
// date, doctorName, and status.
func (h *AppointmentHandler) List(c *gin.Context) {
	out, err := h.svc.ListAppointments(
		c.Request.Context(),
		c.Query("date"),
		c.Query("doctorName"),
		c.Query("status"),
	)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, out)
}

// Get handles GET /api/appointments/:id.
func (h *AppointmentHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	a, err := h.svc.GetAppointment(c.Request.Context(), id, c.ClientIP(), middleware.GetRequestID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, a)
}

// Update handles PUT /api/appointments/:id. All mutable fields are overwritten.
func (h *AppointmentHandler) Update(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req appointmentRequest
	if !bindJSON(c, &req) {
		return
	}

	a, err := h.svc.UpdateAppointment(c.Request.Context(), id, &appointment.UpdateAppointmentCommand{
		PatientName: req.PatientName,
		DoctorName:  req.DoctorName,
		Date:        req.Date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Reason:      req.Reason,
		Status:      req.Status,
	}, c.ClientIP(), middleware.GetRequestID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, a)
}

// Delete handles DELETE /api/appointments/:id. Deletion is physical.
func (h *AppointmentHandler) Delete(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteAppointment(c.Request.Context(), id, c.ClientIP(), middleware.GetRequestID(c)); err != nil {
		respondServiceError(c, err)
		return
	}

	respondMessage(c, "appointment deleted")
}

// CheckConflicts handles GET /api/appointments/conflicts/check, the read-only
// pre-flight conflict probe.
func (h *AppointmentHandler) CheckConflicts(c *gin.Context) {
	conflicts, err := h.svc.CheckConflicts(c.Request.Context(), &appointment.ConflictQuery{
		DoctorName: c.Query("doctorName"),
		Date:       c.Query("date"),
		StartTime:  c.Query("startTime"),
		EndTime:    c.Query("endTime"),
		ExcludeID:  c.Query("excludeId"),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, conflicts)
}
