package handler

import (
	"errors"
	"net/http"

	"github.com/Eursukkul/tutor-booking/internal/models"
	"github.com/Eursukkul/tutor-booking/internal/service"
	"github.com/labstack/echo/v4"
)

// httpError maps service errors onto HTTP status codes. Anything it does not
// recognise is a 500.
func httpError(err error) error {
	var code int
	switch {
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, service.ErrSignatureInvalid):
		code = http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrDowngradeNotSupported):
		code = http.StatusConflict
	case errors.Is(err, service.ErrQuotaExceeded):
		return echo.NewHTTPError(http.StatusTooManyRequests, map[string]any{
			"message":          err.Error(),
			"upgrade_required": true,
		})
	case errors.Is(err, service.ErrUpstreamUnavailable):
		code = http.StatusBadGateway
	case errors.Is(err, service.ErrInvalidInput):
		code = http.StatusBadRequest
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
	return echo.NewHTTPError(code, err.Error())
}

// bindAndValidate decodes the JSON body into req and runs its validate tags.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(req)
}

func statusFilter(c echo.Context) (*models.BookingStatus, error) {
	raw := c.QueryParam("status")
	if raw == "" {
		return nil, nil
	}
	s := models.BookingStatus(raw)
	if !s.Valid() {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "unknown booking status "+raw)
	}
	return &s, nil
}
