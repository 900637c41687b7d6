// Package hertzws serves the socket endpoint on the hertz engine with
// hertz-contrib/websocket; semantics mirror internal/ws.
package hertzws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/websocket"

	"coview/internal/config"
	"coview/internal/rooms"
	"coview/internal/session"
	"coview/internal/ws"
)

type Handler struct {
	manager  *rooms.Manager
	caster   *rooms.Broadcaster
	cfg      *config.Config
	upgrader websocket.HertzUpgrader
}

func NewHandler(manager *rooms.Manager, caster *rooms.Broadcaster, cfg *config.Config) *Handler {
	return &Handler{
		manager: manager,
		caster:  caster,
		cfg:     cfg,
		upgrader: websocket.HertzUpgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(ctx *app.RequestContext) bool {
				return true
			},
		},
	}
}

// HandleWebSocket upgrades the request and runs the connection until the
// peer goes away. Registry cleanup runs on every exit path.
func (h *Handler) HandleWebSocket(c context.Context, ctx *app.RequestContext) {
	err := h.upgrader.Upgrade(ctx, func(wsConn *websocket.Conn) {
		conn := &conn{
			ws:   wsConn,
			send: make(chan []byte, h.cfg.SendBuffer),
			cfg:  h.cfg,
		}
		sess := session.New(h.manager, h.caster, conn)
		log.Printf("hertzws: connection opened, user %s", sess.UserID())

		go conn.writePump()
		conn.readPump(c, sess)

		sess.Close()
		conn.shutdown()
		log.Printf("hertzws: connection closed, user %s", sess.UserID())
	})
	if err != nil {
		log.Printf("hertzws: upgrade failed: %v", err)
	}
}

type conn struct {
	ws   *websocket.Conn
	send chan []byte
	cfg  *config.Config

	mu     sync.Mutex
	closed bool
}

// Send implements rooms.Sink; non-blocking, refused once closing.
func (c *conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ws.ErrConnClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ws.ErrConnClosed
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
				log.Printf("hertzws: read error for user %s: %v", sess.UserID(), err)
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
