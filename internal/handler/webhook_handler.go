package handler

import (
	"io"
	"net/http"

	"github.com/Eursukkul/tutor-booking/internal/dto"
	"github.com/Eursukkul/tutor-booking/internal/service"
	"github.com/labstack/echo/v4"
)

const maxWebhookBody = 1 << 20

// signatureHeaders are tried in order; providers disagree on the name.
var signatureHeaders = []string{"X-Signature", "Omise-Signature", "X-Webhook-Signature"}

type WebhookHandler struct {
	reconcile service.ReconcileService
}

func NewWebhookHandler(reconcile service.ReconcileService) *WebhookHandler {
	return &WebhookHandler{reconcile: reconcile}
}

// RegisterRoutes mounts the webhook outside the authenticated group. The
// signature is the only credential.
func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/v1/webhooks/:provider", h.Receive)
}

func (h *WebhookHandler) Receive(c echo.Context) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	var signature string
	for _, name := range signatureHeaders {
		if signature = c.Request().Header.Get(name); signature != "" {
			break
		}
	}

	res, err := h.reconcile.HandleWebhook(c.Request().Context(), c.Param("provider"), raw, signature)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, dto.ToReconcileResponse(res))
}
