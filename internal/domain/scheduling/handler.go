package scheduling

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinio/clinio/internal/httperr"
	"github.com/clinio/clinio/internal/platform/auth"
	"github.com/clinio/clinio/pkg/pagination"
)

// OperationRecorder counts domain operations for the metrics endpoint.
type OperationRecorder interface {
	OperationCounter(entity, operation string)
}

// Handler exposes the scheduling engine over HTTP.
type Handler struct {
	svc     *Service
	metrics OperationRecorder
}

// NewHandler builds the scheduling HTTP handler. metrics may be nil.
func NewHandler(svc *Service, metrics OperationRecorder) *Handler {
	return &Handler{svc: svc, metrics: metrics}
}

// RegisterRoutes mounts the scheduling API. Resolving reschedule
// requests is admin-only; everything else is open to any service role.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	appts := api.Group("/appointments")
	appts.POST("", h.Book)
	appts.GET("", h.List)
	appts.GET("/availability", h.Availability)
	appts.GET("/:id", h.Get)
	appts.POST("/:id/confirm", h.Confirm)
	appts.POST("/:id/cancel", h.Cancel)
	appts.POST("/:id/complete", h.Complete)
	appts.POST("/:id/missed", h.Missed)
	appts.POST("/:id/reschedule-requests", h.RequestReschedule)
	appts.GET("/:id/reschedule-requests", h.ListRescheduleRequests)

	resolution := api.Group("/reschedule-requests", auth.RequireRole(auth.RoleAdmin))
	resolution.POST("/:id/approve", h.ApproveReschedule)
	resolution.POST("/:id/reject", h.RejectReschedule)

	cycles := api.Group("/treatment-cycles")
	cycles.POST("", h.CreateTreatmentCycle)
	cycles.GET("/:id", h.GetTreatmentCycle)
	cycles.GET("/:id/appointments", h.ListCycleAppointments)
}

func (h *Handler) Book(c echo.Context) error {
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	booked, err := h.svc.Book(c.Request().Context(), &a)
	if err != nil {
		return h.fail(err)
	}
	h.count("appointment", "booked")
	return c.JSON(http.StatusCreated, booked)
}

func (h *Handler) List(c echo.Context) error {
	var f AppointmentFilter
	if v := c.QueryParam("therapist_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid therapist_id")
		}
		f.TherapistID = &id
	}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	f.Status = c.QueryParam("status")
	if v := c.QueryParam("date"); v != "" {
		day, err := h.svc.ParseDay(v)
		if err != nil {
			return h.fail(err)
		}
		from, to := day, day.AddDate(0, 0, 1)
		f.From, f.To = &from, &to
	}

	pg := pagination.FromContext(c)
	appts, total, err := h.svc.ListAppointments(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return h.fail(err)
	}
	if appts == nil {
		appts = []*Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(appts, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(http.StatusOK, a)
}

type availabilityResponse struct {
	TherapistID uuid.UUID `json:"therapist_id"`
	Date        string    `json:"date"`
	Slots       []string  `json:"slots"`
}

func (h *Handler) Availability(c echo.Context) error {
	therapistID, err := uuid.Parse(c.QueryParam("therapist_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid therapist_id")
	}
	duration := 0
	if v := c.QueryParam("duration_minutes"); v != "" {
		duration, err = strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid duration_minutes")
		}
	}
	slots, err := h.svc.AvailableSlots(c.Request().Context(), therapistID, c.QueryParam("date"), duration)
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(http.StatusOK, availabilityResponse{
		TherapistID: therapistID,
		Date:        c.QueryParam("date"),
		Slots:       slots,
	})
}

func (h *Handler) Confirm(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Confirm(c.Request().Context(), id)
	if err != nil {
		return h.fail(err)
	}
	h.count("appointment", "confirmed")
	return c.JSON(http.StatusOK, a)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body cancelRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Cancel(c.Request().Context(), id, body.Reason)
	if err != nil {
		return h.fail(err)
	}
	h.count("appointment", "cancelled")
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Complete(c.Request().Context(), id)
	if err != nil {
		return h.fail(err)
	}
	h.count("appointment", "completed")
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Missed(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.MarkMissed(c.Request().Context(), id)
	if err != nil {
		return h.fail(err)
	}
	h.count("appointment", "missed")
	return c.JSON(http.StatusOK, a)
}

type rescheduleRequestBody struct {
	RequestedByRole string     `json:"requested_by_role"`
	RequestedByID   uuid.UUID  `json:"requested_by_id"`
	ProposedStart   *time.Time `json:"proposed_start"`
	Reason          string     `json:"reason"`
}

func (h *Handler) RequestReschedule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body rescheduleRequestBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req := &RescheduleRequest{
		RequestedByRole: body.RequestedByRole,
		RequestedByID:   body.RequestedByID,
		ProposedStart:   body.ProposedStart,
		Reason:          body.Reason,
	}
	created, err := h.svc.RequestReschedule(c.Request().Context(), id, req)
	if err != nil {
		return h.fail(err)
	}
	h.count("reschedule_request", "requested")
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListRescheduleRequests(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	reqs, err := h.svc.ListRescheduleRequests(c.Request().Context(), id)
	if err != nil {
		return h.fail(err)
	}
	if reqs == nil {
		reqs = []*RescheduleRequest{}
	}
	return c.JSON(http.StatusOK, reqs)
}

type resolveRequestBody struct {
	ProposedStart *time.Time `json:"proposed_start"`
	ResolverNotes string     `json:"resolver_notes"`
}

func (h *Handler) ApproveReschedule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body resolveRequestBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.ApproveReschedule(c.Request().Context(), id, body.ProposedStart, body.ResolverNotes)
	if err != nil {
		return h.fail(err)
	}
	h.count("appointment", "rescheduled")
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) RejectReschedule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body resolveRequestBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.RejectReschedule(c.Request().Context(), id, body.ResolverNotes)
	if err != nil {
		return h.fail(err)
	}
	h.count("reschedule_request", "rejected")
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CreateTreatmentCycle(c echo.Context) error {
	var in CycleInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	result, err := h.svc.CreateTreatmentCycle(c.Request().Context(), in)
	if err != nil {
		return h.fail(err)
	}
	h.count("treatment_cycle", "created")
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) GetTreatmentCycle(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cycle, err := h.svc.GetTreatmentCycle(c.Request().Context(), id)
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(http.StatusOK, cycle)
}

func (h *Handler) ListCycleAppointments(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	appts, err := h.svc.ChildAppointments(c.Request().Context(), id)
	if err != nil {
		return h.fail(err)
	}
	if appts == nil {
		appts = []*Appointment{}
	}
	return c.JSON(http.StatusOK, appts)
}

// fail maps a domain error onto its HTTP status, counting conflicts for
// the scheduling metrics.
func (h *Handler) fail(err error) error {
	if httperr.IsConflict(err) {
		h.count("appointment", "conflict")
	}
	return echo.NewHTTPError(httperr.StatusCode(err), err.Error())
}

func (h *Handler) count(entity, operation string) {
	if h.metrics != nil {
		h.metrics.OperationCounter(entity, operation)
	}
}
