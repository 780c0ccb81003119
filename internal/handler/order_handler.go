package handler

import (
	"net/http"

	"github.com/Eursukkul/tutor-booking/internal/dto"
	"github.com/Eursukkul/tutor-booking/internal/middleware"
	"github.com/Eursukkul/tutor-booking/internal/service"
	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	bookings  service.BookingService
	reconcile service.ReconcileService
}

func NewOrderHandler(bookings service.BookingService, reconcile service.ReconcileService) *OrderHandler {
	return &OrderHandler{bookings: bookings, reconcile: reconcile}
}

func (h *OrderHandler) RegisterRoutes(g *echo.Group) {
	orders := g.Group("/orders")
	orders.GET("/:id", h.GetOrder)
	orders.POST("/:id/checkout", h.Checkout)
	orders.GET("/:id/status", h.Status)
	orders.POST("/:id/cancel", h.Cancel)
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	view, err := h.bookings.GetOrder(c.Request().Context(), middleware.CallerFrom(c), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, dto.ToOrderResponse(view.Order, view.Bookings))
}

// Checkout asks the gateway for a fresh checkout on a still-pending order.
func (h *OrderHandler) Checkout(c echo.Context) error {
	co, err := h.bookings.RetryCheckout(c.Request().Context(), middleware.CallerFrom(c), c.Param("id"), c.RealIP())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, dto.ToCheckoutResponse(co))
}

// Status polls the gateway and applies whatever it reports.
func (h *OrderHandler) Status(c echo.Context) error {
	res, err := h.reconcile.PollAndReconcile(c.Request().Context(), middleware.CallerFrom(c), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, dto.ToReconcileResponse(res))
}

func (h *OrderHandler) Cancel(c echo.Context) error {
	res, err := h.reconcile.CancelOrder(c.Request().Context(), middleware.CallerFrom(c), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, dto.ToReconcileResponse(res))
}
