package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Eursukkul/tutor-booking/internal/models"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func runAuth(t *testing.T, header string) (*httptest.ResponseRecorder, models.Caller, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen models.Caller
	err := Auth(testSecret)(func(c echo.Context) error {
		seen = CallerFrom(c)
		return c.NoContent(http.StatusNoContent)
	})(c)
	return rec, seen, err
}

func TestAuth_ValidToken(t *testing.T) {
	token, err := IssueToken(testSecret, "parent-1", models.RoleParent, time.Hour)
	require.NoError(t, err)

	rec, caller, err := runAuth(t, "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, models.Caller{ID: "parent-1", Role: models.RoleParent}, caller)
}

func TestAuth_Rejects(t *testing.T) {
	expired, err := IssueToken(testSecret, "parent-1", models.RoleParent, -time.Minute)
	require.NoError(t, err)
	foreign, err := IssueToken("someone-else", "parent-1", models.RoleParent, time.Hour)
	require.NoError(t, err)
	noSubject, err := IssueToken(testSecret, "", models.RoleParent, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Basic abc"},
		{"garbage", "Bearer not.a.jwt"},
		{"expired", "Bearer " + expired},
		{"wrong key", "Bearer " + foreign},
		{"no subject", "Bearer " + noSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, caller, err := runAuth(t, tt.header)
			var he *echo.HTTPError
			require.True(t, errors.As(err, &he))
			assert.Equal(t, http.StatusUnauthorized, he.Code)
			assert.Equal(t, models.Caller{}, caller)
		})
	}
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		body string
	}{
		{"http error", echo.NewHTTPError(http.StatusNotFound, "order not found"), http.StatusNotFound, `{"message":"order not found"}`},
		{"map body", echo.NewHTTPError(http.StatusTooManyRequests, map[string]any{"message": "quota", "upgrade_required": true}), http.StatusTooManyRequests, `{"message":"quota","upgrade_required":true}`},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, `{"message":"boom"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			ErrorHandler(tt.err, c)

			assert.Equal(t, tt.code, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}

type batchBody struct {
	Dates []string `validate:"required,min=1,dive,datetime=2006-01-02"`
}

func TestValidator(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.Validate(&batchBody{Dates: []string{"2026-03-05"}}))

	err := v.Validate(&batchBody{Dates: []string{"05/03/2026"}})
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusBadRequest, he.Code)

	assert.Error(t, v.Validate(&batchBody{}))
}
