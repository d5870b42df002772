package realtime

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/anonto42/threadline/backend/internal/models"
	"github.com/anonto42/threadline/backend/pkg/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 64
)

const (
	MessageTypePing = "ping"
	MessageTypePong = "pong"
)

var pongMessage, _ = json.Marshal(models.LiveEvent{Type: MessageTypePong})

// Client is one websocket session registered with the gateway
type Client struct {
	id      string
	userID  uint
	gateway *Gateway
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
}

// NewClient wraps conn as a session of userID
func NewClient(gateway *Gateway, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		id:      uuid.NewString(),
		userID:  userID,
		gateway: gateway,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
	}
}

// ID returns the session id
func (c *Client) ID() string {
	return c.id
}

// Send queues msg for the write pump. A closed session or a full buffer
// drops the message.
func (c *Client) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Start registers the session and begins reading and writing
func (c *Client) Start() {
	c.gateway.RegisterSession(c.userID, c.id, c)
	logging.Debug().Uint("user_id", c.userID).Str("session_id", c.id).Msg("live session opened")
	go c.writePump()
	go c.readPump()
}

func (c *Client) close() {
	c.once.Do(func() {
		c.gateway.UnregisterSession(c.id)
		close(c.done)
		logging.Debug().Uint("user_id", c.userID).Str("session_id", c.id).Msg("live session closed")
	})
}

// readPump only answers pings; clients never push domain data over the socket
func (c *Client) readPump() {
	defer func() {
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("session_id", c.id).Msg("unexpected websocket close")
			}
			return
		}
		var msg models.LiveEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type == MessageTypePing {
			c.Send(pongMessage)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
