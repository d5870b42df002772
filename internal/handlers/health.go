package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// BreakerState reports the embedding provider's circuit state
type BreakerState interface {
	State() string
}

// HealthCheck reports liveness. embedder may be nil when no provider is
// configured.
func HealthCheck(embedder BreakerState) echo.HandlerFunc {
	return func(c echo.Context) error {
		body := map[string]string{
			"status":  "healthy",
			"service": "threadline-api",
		}
		if embedder != nil {
			body["embedder"] = embedder.State()
		}
		return c.JSON(http.StatusOK, body)
	}
}
