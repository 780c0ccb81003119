package handler

import (
	"net/http"

	"github.com/Eursukkul/tutor-booking/internal/middleware"
	"github.com/Eursukkul/tutor-booking/internal/service"
	"github.com/labstack/echo/v4"
)

type QuotaHandler struct {
	quota service.QuotaService
}

func NewQuotaHandler(quota service.QuotaService) *QuotaHandler {
	return &QuotaHandler{quota: quota}
}

func (h *QuotaHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/children/:id/quota", h.Check)
	g.POST("/children/:id/quota/consume", h.Consume)
}

func (h *QuotaHandler) Check(c echo.Context) error {
	st, err := h.quota.Check(c.Request().Context(), middleware.CallerFrom(c), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

// Consume records one question against today's quota, or answers 429 with
// upgrade_required once the limit is reached.
func (h *QuotaHandler) Consume(c echo.Context) error {
	st, err := h.quota.Consume(c.Request().Context(), middleware.CallerFrom(c), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}
