package hertzapi

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"coview/internal/config"
	"coview/internal/hertzws"
	"coview/internal/protocol"
	"coview/internal/rooms"
)

// NewRouter registers the socket endpoint, the status endpoints and, when
// credentials are configured, the read-only admin surface.
func NewRouter(h *server.Hertz, manager *rooms.Manager, caster *rooms.Broadcaster, cfg *config.Config) *server.Hertz {
	wsHandler := hertzws.NewHandler(manager, caster, cfg)

	h.Use(recoveryMiddleware())

	h.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.String(consts.StatusOK, "OK")
	})
	h.GET("/version", func(c context.Context, ctx *app.RequestContext) {
		ctx.String(consts.StatusOK, config.Version)
	})

	h.GET("/ws", wsHandler.HandleWebSocket)

	if cfg.AdminEnabled() {
		admin := h.Group("/admin", basicAuthMiddleware(cfg.AdminUsername, cfg.AdminPassword))
		admin.GET("/rooms", handleListRooms(manager))
		admin.GET("/rooms/count", handleRoomCount(manager))
	}

	return h
}

func recoveryMiddleware() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		defer func() {
			if err := recover(); err != nil {
				ctx.String(consts.StatusInternalServerError, "Internal Server Error")
			}
		}()
		ctx.Next(c)
	}
}

// basicAuthMiddleware guards the admin group. Hertz ships no stock basic
// auth handler the way echo does, so the header is checked here.
func basicAuthMiddleware(username, password string) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		user, pass, ok := parseBasicAuth(string(ctx.GetHeader("Authorization")))
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(password)) != 1 {
			ctx.Response.Header.Set("WWW-Authenticate", `Basic realm="Admin"`)
			ctx.AbortWithStatus(consts.StatusUnauthorized)
			return
		}
		ctx.Next(c)
	}
}

func parseBasicAuth(header string) (user, pass string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", false
	}
	user, pass, ok = strings.Cut(string(decoded), ":")
	return user, pass, ok
}

func handleListRooms(manager *rooms.Manager) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		live := manager.Rooms()
		dtos := make([]protocol.RoomDTO, 0, len(live))
		for _, room := range live {
			dtos = append(dtos, room.DTO())
		}
		ctx.JSON(consts.StatusOK, dtos)
	}
}

func handleRoomCount(manager *rooms.Manager) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, protocol.RoomCountResponse{Count: manager.RoomCount()})
	}
}
