package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Context keys set by the auth middlewares
const (
	UserIDKey      = "userID"
	FirebaseUIDKey = "firebaseUID"
)

// bearerToken extracts the token from "Authorization: Bearer <token>". A
// token query parameter is accepted as well since browsers cannot set
// headers on websocket upgrades.
func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		if token := c.QueryParam("token"); token != "" {
			return token, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Missing Authorization header")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Invalid Authorization header format")
	}
	return parts[1], nil
}
