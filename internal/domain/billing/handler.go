package billing

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinio/clinio/internal/httperr"
	"github.com/clinio/clinio/internal/platform/auth"
)

// OperationRecorder counts domain operations for the metrics endpoint.
type OperationRecorder interface {
	OperationCounter(entity, operation string)
}

// Handler exposes fee allocation and earnings reads over HTTP.
type Handler struct {
	svc     *Service
	metrics OperationRecorder
}

// NewHandler builds the billing HTTP handler. metrics may be nil.
func NewHandler(svc *Service, metrics OperationRecorder) *Handler {
	return &Handler{svc: svc, metrics: metrics}
}

// RegisterRoutes mounts the billing API. Writing fees is admin-only;
// earnings are visible to admins and therapists.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	fees := api.Group("/appointments", auth.RequireRole(auth.RoleAdmin))
	fees.POST("/:id/fee", h.SetFee)

	billing := api.Group("/billing")
	billing.POST("/fee-splits", h.ComputeSplit)
	billing.GET("/earnings", h.Earnings, auth.RequireRole(auth.RoleAdmin, auth.RoleTherapist))
}

type feeRequest struct {
	TotalFee *float64 `json:"total_fee"`
}

func (h *Handler) SetFee(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body feeRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.TotalFee == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "total_fee is required")
	}
	a, err := h.svc.SetAppointmentFee(c.Request().Context(), id, *body.TotalFee)
	if err != nil {
		return h.fail(err)
	}
	h.count("appointment", "fee_set")
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ComputeSplit(c echo.Context) error {
	var body feeRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.TotalFee == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "total_fee is required")
	}
	split, err := h.svc.ComputeFeeSplit(*body.TotalFee)
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(http.StatusOK, split)
}

func (h *Handler) Earnings(c echo.Context) error {
	var therapistID *uuid.UUID
	if v := c.QueryParam("therapist_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid therapist_id")
		}
		therapistID = &id
	}
	report, err := h.svc.Earnings(c.Request().Context(),
		c.QueryParam("party"), therapistID, c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) fail(err error) error {
	return echo.NewHTTPError(httperr.StatusCode(err), err.Error())
}

func (h *Handler) count(entity, operation string) {
	if h.metrics != nil {
		h.metrics.OperationCounter(entity, operation)
	}
}
