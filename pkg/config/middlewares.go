package config

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/anonto42/threadline/backend/internal/metrics"
	"github.com/anonto42/threadline/backend/pkg/logging"
)

func SetupMiddleware(e *echo.Echo) {
	e.Use(middleware.RequestID())
	e.Use(requestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
}

// requestLogger writes one zerolog event per request, records its latency
// and hands the request id to the services through the request context.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogRoutePath: true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		BeforeNextFunc: func(c echo.Context) {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id == "" {
				return
			}
			req := c.Request()
			c.SetRequest(req.WithContext(logging.ContextWithRequestID(req.Context(), id)))
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			route := v.RoutePath
			if route == "" {
				route = "unmatched"
			}
			metrics.HTTPRequestDuration.
				WithLabelValues(v.Method, route, strconv.Itoa(v.Status)).
				Observe(v.Latency.Seconds())

			event := logging.Info()
			if v.Error != nil || v.Status >= 500 {
				event = logging.Error().Err(v.Error)
			}
			event.
				Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
