package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/threadline/backend/internal/apperrors"
	"github.com/anonto42/threadline/backend/internal/middleware"
	"github.com/anonto42/threadline/backend/pkg/logging"
)

// getUserIDFromContext returns the authenticated user id, or 0 when the
// caller has no local profile.
func getUserIDFromContext(c echo.Context) uint {
	id, _ := c.Get(middleware.UserIDKey).(uint)
	return id
}

func requireUser(c echo.Context) (uint, error) {
	id := getUserIDFromContext(c)
	if id == 0 {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	return id, nil
}

// httpError maps service errors onto HTTP statuses
func httpError(c echo.Context, err error) error {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he
	case errors.Is(err, apperrors.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, apperrors.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, apperrors.ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		logging.Ctx(c.Request().Context()).Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	return c.Validate(req)
}

func success(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, echo.Map{"success": true, "data": data})
}
