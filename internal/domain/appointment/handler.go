package appointment

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicflow/clinicflow/internal/platform/auth"
	"github.com/clinicflow/clinicflow/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – any authenticated clinic role
	readGroup := api.Group("", auth.RequireRole("doctor", "staff", "patient"))
	readGroup.GET("/appointments", h.ListAppointments)
	readGroup.GET("/appointments/:id", h.GetAppointment)
	readGroup.GET("/doctors/:id/queue", h.GetDoctorQueue)

	// Slot publishing – doctors and staff
	slotGroup := api.Group("", auth.RequireRole("doctor", "staff"))
	slotGroup.POST("/slots", h.OpenSlot)

	// Booking – patients and staff acting for them
	bookGroup := api.Group("", auth.RequireRole("patient", "staff"))
	bookGroup.POST("/appointments", h.BookAppointment)
	bookGroup.POST("/appointments/requests", h.RequestAppointment)
	bookGroup.POST("/appointments/:id/cancel", h.CancelAppointment)
	bookGroup.POST("/appointments/:id/reschedule", h.RescheduleAppointment)

	// Consultation flow – doctors, plus staff for desk actions
	deskGroup := api.Group("", auth.RequireRole("staff"))
	deskGroup.POST("/appointments/:id/approve", h.ApproveAppointment)

	doctorGroup := api.Group("", auth.RequireRole("doctor", "staff"))
	doctorGroup.POST("/appointments/:id/start", h.StartConsultation)
	doctorGroup.POST("/appointments/:id/complete", h.CompleteConsultation)
	doctorGroup.POST("/appointments/:id/no-show", h.MarkNoShow)
}

// appointmentView is the wire representation; statuses go out by name.
type appointmentView struct {
	ID          uuid.UUID  `json:"id"`
	DoctorID    uuid.UUID  `json:"doctor_id"`
	PatientID   *uuid.UUID `json:"patient_id,omitempty"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Status      string     `json:"status"`
	FeeCents    int64      `json:"fee_cents"`
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func newView(a *Appointment) appointmentView {
	return appointmentView{
		ID:          a.ID,
		DoctorID:    a.DoctorID,
		PatientID:   a.PatientID,
		ScheduledAt: a.ScheduledAt,
		Status:      a.Status.String(),
		FeeCents:    a.FeeCents,
		Reason:      a.Reason,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func newViews(items []*Appointment) []appointmentView {
	views := make([]appointmentView, len(items))
	for i, a := range items {
		views[i] = newView(a)
	}
	return views
}

// httpError translates domain errors into HTTP status codes.
func httpError(err error) error {
	var (
		validationErr *ValidationError
		conflictErr   *SlotConflictError
		transitionErr *InvalidTransitionError
		unavailErr    *UnavailableError
	)
	switch {
	case errors.As(err, &validationErr):
		return echo.NewHTTPError(http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &conflictErr):
		return echo.NewHTTPError(http.StatusConflict, conflictErr.Error())
	case errors.As(err, &transitionErr):
		return echo.NewHTTPError(http.StatusConflict, transitionErr.Error())
	case errors.Is(err, ErrStale):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	case errors.As(err, &unavailErr):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service unavailable")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Slot publishing --

type openSlotRequest struct {
	DoctorID    uuid.UUID `json:"doctor_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	FeeCents    int64     `json:"fee_cents"`
}

func (h *Handler) OpenSlot(c echo.Context) error {
	var req openSlotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	slot, err := h.svc.OpenSlot(c.Request().Context(), req.DoctorID, req.ScheduledAt, req.FeeCents)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, newView(slot))
}

// -- Booking --

type bookRequest struct {
	DoctorID    uuid.UUID `json:"doctor_id"`
	PatientID   uuid.UUID `json:"patient_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Reason      string    `json:"reason"`
}

func (h *Handler) BookAppointment(c echo.Context) error {
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	appt, err := h.svc.BookAppointment(c.Request().Context(), req.DoctorID, req.PatientID, req.ScheduledAt, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, newView(appt))
}

func (h *Handler) RequestAppointment(c echo.Context) error {
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	appt, err := h.svc.RequestAppointment(c.Request().Context(), req.DoctorID, req.PatientID, req.ScheduledAt, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, newView(appt))
}

func (h *Handler) ApproveAppointment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.ApproveAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, newView(appt))
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	appt, err := h.svc.CancelAppointment(c.Request().Context(), id, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, newView(appt))
}

type rescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

func (h *Handler) RescheduleAppointment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	// Non-uuid actor ids (staff desk accounts, dev users) skip the
	// ownership check; role gating already applied.
	actorID, _ := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	appt, err := h.svc.RescheduleAppointment(c.Request().Context(), id, req.ScheduledAt, actorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, newView(appt))
}

// -- Consultation flow --

func (h *Handler) StartConsultation(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	// Actor ids that are not uuids (service accounts, dev users) skip the
	// ownership check; role gating already applied.
	actorID, _ := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	appt, err := h.svc.StartConsultation(c.Request().Context(), id, actorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, newView(appt))
}

func (h *Handler) CompleteConsultation(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.CompleteConsultation(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, newView(appt))
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.MarkNoShow(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, newView(appt))
}

// -- Queries --

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, newView(appt))
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()

	if pid := c.QueryParam("patient_id"); pid != "" {
		patientID, err := uuid.Parse(pid)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		items, total, err := h.svc.ListByPatient(ctx, patientID, pg.Limit, pg.Offset)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(newViews(items), total, pg.Limit, pg.Offset))
	}

	doctorID, err := uuid.Parse(c.QueryParam("doctor_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id or patient_id is required")
	}

	filter := ListFilter{Limit: pg.Limit, Offset: pg.Offset}
	if from := c.QueryParam("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from")
		}
		filter.From = t
	}
	if to := c.QueryParam("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to")
		}
		filter.To = t
	}
	if status := c.QueryParam("status"); status != "" {
		s, ok := statusByName(status)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		filter.Statuses = []Status{s}
	}

	items, total, err := h.svc.ListByDoctor(ctx, doctorID, filter)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(newViews(items), total, pg.Limit, pg.Offset))
}

func (h *Handler) GetDoctorQueue(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var day time.Time
	if d := c.QueryParam("date"); d != "" {
		day, err = time.Parse("2006-01-02", d)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date")
		}
	}
	items, err := h.svc.DoctorQueue(c.Request().Context(), doctorID, day)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"doctor_id": doctorID,
		"queue":     newViews(items),
	})
}
