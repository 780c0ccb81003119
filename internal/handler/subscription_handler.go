package handler

import (
	"net/http"

	"github.com/Eursukkul/tutor-booking/internal/dto"
	"github.com/Eursukkul/tutor-booking/internal/middleware"
	"github.com/Eursukkul/tutor-booking/internal/models"
	"github.com/Eursukkul/tutor-booking/internal/service"
	"github.com/labstack/echo/v4"
)

type SubscriptionHandler struct {
	subs service.SubscriptionService
}

func NewSubscriptionHandler(subs service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs}
}

func (h *SubscriptionHandler) RegisterRoutes(g *echo.Group) {
	sub := g.Group("/subscription")
	sub.GET("", h.Get)
	sub.POST("/upgrade", h.Upgrade)
	sub.POST("/cancel", h.Cancel)
	sub.POST("/downgrade", h.Downgrade)
}

func (h *SubscriptionHandler) Get(c echo.Context) error {
	caller := middleware.CallerFrom(c)
	if caller.ID == "" {
		return httpError(service.ErrUnauthenticated)
	}
	sub, err := h.subs.Get(c.Request().Context(), caller.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, dto.ToSubscriptionResponse(sub))
}

// Upgrade opens a checkout for the higher tier. The tier switches when the
// order completes.
func (h *SubscriptionHandler) Upgrade(c echo.Context) error {
	var req dto.UpgradeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	co, err := h.subs.StartUpgradeCheckout(c.Request().Context(), middleware.CallerFrom(c), models.Tier(req.Tier), c.RealIP())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, dto.ToCheckoutResponse(co))
}

func (h *SubscriptionHandler) Cancel(c echo.Context) error {
	caller := middleware.CallerFrom(c)
	if caller.ID == "" {
		return httpError(service.ErrUnauthenticated)
	}
	sub, err := h.subs.Cancel(c.Request().Context(), caller.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, dto.ToSubscriptionResponse(sub))
}

func (h *SubscriptionHandler) Downgrade(c echo.Context) error {
	var req dto.DowngradeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.subs.Downgrade(c.Request().Context(), middleware.CallerFrom(c).ID, models.Tier(req.Tier)); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
