package ws_room

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	http_common "github.com/picswap/core/internal/delivery/http/common"
	http_auth_middleware "github.com/picswap/core/internal/delivery/http/middleware/auth"
	"github.com/picswap/core/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Identity interface {
	Resolve(ctx context.Context, token string) (string, error)
}

type Controller struct {
	hub      *Hub
	identity Identity
	logger   *slog.Logger
}

func NewController(
	hub *Hub,
	identity Identity,
) *Controller {
	return &Controller{
		hub:      hub,
		identity: identity,
		logger:   slog.Default(),
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ws/rooms/:room_code", c.serve)
}

func (c *Controller) serve(ctx *gin.Context) {
	// Browsers cannot set headers on websocket upgrades, so the token is
	// accepted from the query string as well.
	token := ctx.Query("token")
	if token == "" {
		token = ctx.GetHeader(http_auth_middleware.HeaderToken)
	}
	if token == "" {
		ctx.JSON(http.StatusUnauthorized, http_common.ErrorResponse{
			Message: "missing token",
		})
		return
	}

	userID, err := c.identity.Resolve(ctx, token)
	if err != nil {
		c.logger.Error("identity resolution failed", slog.String("error", err.Error()))
		ctx.JSON(http.StatusServiceUnavailable, http_common.ErrorResponse{
			Message: "auth unavailable",
		})
		return
	}
	if userID == "" {
		ctx.JSON(http.StatusUnauthorized, http_common.ErrorResponse{
			Message: "invalid token",
		})
		return
	}

	roomCode := model.NormalizeCode(ctx.Param("room_code"))

	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := &Client{
		conn:     conn,
		send:     make(chan Event, 16),
		userID:   userID,
		roomCode: roomCode,
	}

	if err := c.hub.Register(client); err != nil {
		c.logger.Error("subscription failed",
			slog.String("room", roomCode),
			slog.String("error", err.Error()))
		conn.Close()
		return
	}

	go c.hub.StartClientWriting(client)
	c.hub.StartClientReading(client)
}
