package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/anonto42/threadline/backend/internal/realtime"
	"github.com/anonto42/threadline/backend/pkg/logging"
)

// RealtimeHandler upgrades live notification sessions
type RealtimeHandler struct {
	gateway  *realtime.Gateway
	upgrader websocket.Upgrader
}

// NewRealtimeHandler creates a new RealtimeHandler
func NewRealtimeHandler(gateway *realtime.Gateway) *RealtimeHandler {
	return &RealtimeHandler{
		gateway: gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// RegisterRealtimeRoutes registers the websocket route
func (h *RealtimeHandler) RegisterRealtimeRoutes(g *echo.Group) {
	g.GET("/ws", h.Connect)
}

// Connect upgrades the request and registers the session for the caller
func (h *RealtimeHandler) Connect(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logging.Ctx(c.Request().Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return nil
	}
	realtime.NewClient(h.gateway, conn, userID).Start()
	return nil
}
