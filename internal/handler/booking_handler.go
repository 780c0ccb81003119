package handler

import (
	"errors"
	"net/http"

	"github.com/Eursukkul/tutor-booking/internal/dto"
	"github.com/Eursukkul/tutor-booking/internal/middleware"
	"github.com/Eursukkul/tutor-booking/internal/service"
	"github.com/labstack/echo/v4"
)

type BookingHandler struct {
	bookings  service.BookingService
	lifecycle service.LifecycleService
}

func NewBookingHandler(bookings service.BookingService, lifecycle service.LifecycleService) *BookingHandler {
	return &BookingHandler{bookings: bookings, lifecycle: lifecycle}
}

func (h *BookingHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/bookings/batch", h.CreateBatch)
	g.GET("/bookings", h.ListBookings)
	g.POST("/bookings/:id/cancel", h.CancelBooking)
}

// CreateBatch books a run of sessions and opens the order that pays for them.
// When the gateway is down the order still exists, so the 502 carries its id.
func (h *BookingHandler) CreateBatch(c echo.Context) error {
	var req dto.CreateBatchRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.bookings.CreateBatch(c.Request().Context(), middleware.CallerFrom(c), service.CreateBatchInput{
		ChildID:         req.ChildID,
		TutorID:         req.TutorID,
		Dates:           req.Dates,
		TimeOfDay:       req.TimeOfDay,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
		PayerIP:         c.RealIP(),
	})
	if err != nil {
		if errors.Is(err, service.ErrUpstreamUnavailable) && res != nil && res.Order != nil {
			return echo.NewHTTPError(http.StatusBadGateway, map[string]any{
				"message":  err.Error(),
				"order_id": res.Order.OrderID,
			})
		}
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, dto.ToBatchResponse(res))
}

func (h *BookingHandler) ListBookings(c echo.Context) error {
	status, err := statusFilter(c)
	if err != nil {
		return err
	}

	bookings, err := h.bookings.ListForParent(c.Request().Context(), middleware.CallerFrom(c), status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, dto.ToBookingResponses(bookings))
}

func (h *BookingHandler) CancelBooking(c echo.Context) error {
	booking, err := h.lifecycle.ParentCancel(c.Request().Context(), middleware.CallerFrom(c), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, dto.ToBookingResponse(booking))
}
