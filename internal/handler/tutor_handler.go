package handler

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/Eursukkul/tutor-booking/internal/dto"
	"github.com/Eursukkul/tutor-booking/internal/middleware"
	"github.com/Eursukkul/tutor-booking/internal/report"
	"github.com/Eursukkul/tutor-booking/internal/service"
	"github.com/labstack/echo/v4"
)

const mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type TutorHandler struct {
	lifecycle service.LifecycleService
}

func NewTutorHandler(lifecycle service.LifecycleService) *TutorHandler {
	return &TutorHandler{lifecycle: lifecycle}
}

func (h *TutorHandler) RegisterRoutes(g *echo.Group) {
	tutor := g.Group("/tutor")
	tutor.GET("/bookings", h.ListBookings)
	tutor.POST("/bookings/:id/respond", h.Respond)
	tutor.POST("/bookings/:id/complete", h.Complete)
	tutor.GET("/stats", h.Stats)
	tutor.GET("/statement.xlsx", h.Statement)
}

func (h *TutorHandler) Respond(c echo.Context) error {
	var req dto.RespondRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	booking, err := h.lifecycle.TutorRespond(c.Request().Context(), middleware.CallerFrom(c), c.Param("id"), service.TutorAction(req.Action))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, dto.ToBookingResponse(booking))
}

func (h *TutorHandler) Complete(c echo.Context) error {
	booking, err := h.lifecycle.TutorComplete(c.Request().Context(), middleware.CallerFrom(c), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, dto.ToBookingResponse(booking))
}

func (h *TutorHandler) ListBookings(c echo.Context) error {
	status, err := statusFilter(c)
	if err != nil {
		return err
	}

	bookings, err := h.lifecycle.ListForTutor(c.Request().Context(), middleware.CallerFrom(c), status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, dto.ToBookingResponses(bookings))
}

func (h *TutorHandler) Stats(c echo.Context) error {
	stats, err := h.lifecycle.Stats(c.Request().Context(), middleware.CallerFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

// Statement streams the month's completed sessions as a spreadsheet.
func (h *TutorHandler) Statement(c echo.Context) error {
	st, err := h.lifecycle.MonthlyStatement(c.Request().Context(), middleware.CallerFrom(c), c.QueryParam("month"))
	if err != nil {
		return httpError(err)
	}

	var buf bytes.Buffer
	if err := report.WriteStatement(&buf, st); err != nil {
		return httpError(fmt.Errorf("render statement: %w", err))
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", report.FileName(st)))
	return c.Blob(http.StatusOK, mimeXLSX, buf.Bytes())
}
