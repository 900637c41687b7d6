package httpapi

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"coview/internal/config"
	"coview/internal/protocol"
	"coview/internal/rooms"
	"coview/internal/ws"
)

// Server is the echo rendition of the HTTP surface, selected with
// SERVER_ENGINE=echo. It serves the same routes as the hertz router, with
// the gorilla transport behind /ws.
type Server struct {
	rooms  *rooms.Manager
	ws     *ws.Handler
	router *echo.Echo
}

func NewServer(manager *rooms.Manager, caster *rooms.Broadcaster, cfg *config.Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{
		rooms:  manager,
		ws:     ws.NewHandler(manager, caster, cfg),
		router: e,
	}

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	e.GET("/version", func(c echo.Context) error {
		return c.String(http.StatusOK, config.Version)
	})
	e.GET("/ws", s.handleWebSocket)

	if cfg.AdminEnabled() {
		admin := e.Group("/admin", middleware.BasicAuth(func(user, pass string, c echo.Context) (bool, error) {
			userOK := subtle.ConstantTimeCompare([]byte(user), []byte(cfg.AdminUsername)) == 1
			passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(cfg.AdminPassword)) == 1
			return userOK && passOK, nil
		}))
		admin.GET("/rooms", s.handleListRooms)
		admin.GET("/rooms/count", s.handleRoomCount)
	}

	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleListRooms(c echo.Context) error {
	live := s.rooms.Rooms()
	dtos := make([]protocol.RoomDTO, 0, len(live))
	for _, room := range live {
		dtos = append(dtos, room.DTO())
	}
	return c.JSON(http.StatusOK, dtos)
}

func (s *Server) handleRoomCount(c echo.Context) error {
	return c.JSON(http.StatusOK, protocol.RoomCountResponse{Count: s.rooms.RoomCount()})
}

func (s *Server) handleWebSocket(c echo.Context) error {
	// The WebSocket handler takes full control of the connection; return
	// nil so echo writes nothing further.
	s.ws.ServeHTTP(c.Response(), c.Request())
	return nil
}
