package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"coview/internal/config"
	"coview/internal/rooms"
	"coview/internal/session"
)

// ErrConnClosed is returned by Send once the connection is shutting down
// or its outbound buffer is full; the broadcaster logs and skips it.
var ErrConnClosed = errors.New("connection closed or send buffer full")

type Handler struct {
	manager  *rooms.Manager
	caster   *rooms.Broadcaster
	cfg      *config.Config
	upgrader websocket.Upgrader
}

func NewHandler(manager *rooms.Manager, caster *rooms.Broadcaster, cfg *config.Config) *Handler {
	return &Handler{
		manager: manager,
		caster:  caster,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	c := &conn{
		ws:   ws,
		send: make(chan []byte, h.cfg.SendBuffer),
		cfg:  h.cfg,
	}
	sess := session.New(h.manager, h.caster, c)
	log.Printf("ws: connection opened, user %s", sess.UserID())

	go c.writePump()
	c.readPump(r.Context(), sess)

	sess.Close()
	c.shutdown()
	log.Printf("ws: connection closed, user %s", sess.UserID())
}

// conn wraps one gorilla connection behind a buffered outbound channel so
// a slow reader never blocks the sender's task.
type conn struct {
	ws   *websocket.Conn
	send chan []byte
	cfg  *config.Config

	mu     sync.Mutex
	closed bool
}

// Send implements rooms.Sink. It never blocks: when the buffer is full or
// the connection is closing the write is refused.
func (c *conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrConnClosed
	}
}

func (c *conn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *conn) readPump(ctx context.Context, sess *session.Session) {
	c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		return nil
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("ws: read error for user %s: %v", sess.UserID(), err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		sess.HandleFrame(ctx, data)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
