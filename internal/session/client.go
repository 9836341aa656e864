package session

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/opensyncparty/watchparty/internal/logging"
	"github.com/opensyncparty/watchparty/internal/metrics"
	"go.uber.org/zap"
)

// wsConnection abstracts the subset of *websocket.Conn used by Client,
// grounded on the teacher's session.wsConnection (internal/v1/session/client.go),
// kept so tests can drive Client with a fake connection.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 32
)

// Client is one connected WebSocket participant. It satisfies
// registry.Channel so the registry can deliver broadcasts to it directly.
// The teacher's readPump/writePump/buffered-send-channel shape is kept;
// the proto envelope it carried is replaced with the JSON frames this
// protocol uses.
type Client struct {
	conn wsConnection
	send chan []byte

	mu       sync.RWMutex
	clientID string
	roomID   string
}

// NewClient wraps conn in a Client with an empty outbound buffer.
func NewClient(conn wsConnection) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// Send queues data for delivery, reporting false (and not blocking) if the
// client's outbound buffer is full — matching the teacher's sendProto
// select/default pattern, generalized to accept pre-serialized bytes so the
// registry can relay a stamped envelope without re-marshaling it.
func (c *Client) Send(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) bind(roomID, clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
	c.clientID = clientID
}

func (c *Client) identity() (roomID, clientID string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID, c.clientID
}

// readPump reads text frames until the connection errors or closes, handing
// each to the dispatcher. It always runs HandleDisconnect on exit so the
// registry and siblings observe the departure, regardless of how the
// connection ended.
func (c *Client) readPump(d *Dispatcher) {
	defer func() {
		d.HandleDisconnect(c)
		c.conn.Close()
		metrics.DecConnection()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		d.Dispatch(c, data)
	}
}

// writePump drains the send channel to the connection until it's closed.
func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// ServeWS upgrades the HTTP request to a WebSocket connection and starts the
// client's read/write pumps. Origin checking follows the teacher's
// scheme+host allowlist comparison (internal/v1/session/hub.go ServeWs); the
// upgrader itself is built fresh per call, matching the teacher's local-
// variable pattern, since a shared *websocket.Upgrader with CheckOrigin
// reassigned on every request would race concurrent upgrades against the
// field read inside Upgrade.
func (d *Dispatcher) ServeWS(c *gin.Context) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			originURL, err := url.Parse(origin)
			if err != nil {
				return false
			}
			for _, allowed := range d.allowedOrigins {
				allowedURL, err := url.Parse(allowed)
				if err != nil {
					continue
				}
				if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(conn)
	metrics.IncConnection()

	go client.writePump()
	client.readPump(d)
}
