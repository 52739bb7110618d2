package http_room

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	http_common "github.com/picswap/core/internal/delivery/http/common"
	http_auth_middleware "github.com/picswap/core/internal/delivery/http/middleware/auth"
	"github.com/picswap/core/internal/model"
	usecase_session "github.com/picswap/core/internal/usecase/session"
)

type Controller struct {
	sessions   *usecase_session.Usecase
	middleware *http_auth_middleware.Middleware
	logger     *slog.Logger
}

func New(
	sessions *usecase_session.Usecase,
	middleware *http_auth_middleware.Middleware,
) *Controller {
	return &Controller{
		sessions:   sessions,
		middleware: middleware,
		logger:     slog.Default(),
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	rooms := router.Group("/rooms")
	rooms.Use(c.middleware.AuthRequired())
	{
		rooms.POST("", c.create)
		rooms.GET("/:room_code", c.state)
		rooms.POST("/:room_code/join", c.join)
		rooms.POST("/:room_code/images", c.sendImage)
		rooms.DELETE("/:room_code/participants/me", c.leave)
	}
}

type CreateResponseDTO struct {
	RoomCode string `json:"room_code"`
}

func (c *Controller) create(ctx *gin.Context) {
	userID := ctx.GetString(http_auth_middleware.ContextUserID)

	code, err := c.sessions.Create(ctx, userID)
	if err != nil {
		c.logger.Error("failed to create room", slog.String("error", err.Error()))
		ctx.JSON(http.StatusServiceUnavailable, http_common.ErrorResponse{
			Message: "could not create room",
		})
		return
	}

	ctx.JSON(http.StatusCreated, CreateResponseDTO{
		RoomCode: code,
	})
}

type LastImageDTO struct {
	SenderID string    `json:"sender_id"`
	ImageRef string    `json:"image_ref"`
	SentAt   time.Time `json:"sent_at"`
}

type ParticipantDTO struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type RoomStateDTO struct {
	Code          string          `json:"code"`
	Status        string          `json:"status"`
	HostID        string          `json:"host_id"`
	GuestID       string          `json:"guest_id,omitempty"`
	CurrentTurnID string          `json:"current_turn_id,omitempty"`
	LastImage     *LastImageDTO   `json:"last_image,omitempty"`
	ImageCount    int             `json:"image_count"`
	You           *ParticipantDTO `json:"you,omitempty"`
	YourTurn      bool            `json:"your_turn"`
}

func RoomStateOf(room *model.Room) RoomStateDTO {
	dto := RoomStateDTO{
		Code:          room.Code,
		Status:        room.Status,
		HostID:        room.HostID,
		GuestID:       room.GuestID,
		CurrentTurnID: room.CurrentTurnID,
		ImageCount:    room.ImageCount,
	}
	if room.LastImage != nil {
		dto.LastImage = &LastImageDTO{
			SenderID: room.LastImage.SenderID,
			ImageRef: room.LastImage.ImageRef,
			SentAt:   room.LastImage.SentAt,
		}
	}
	return dto
}

func (c *Controller) state(ctx *gin.Context) {
	code := ctx.Param("room_code")
	userID := ctx.GetString(http_auth_middleware.ContextUserID)

	room, err := c.sessions.Room(ctx, code)
	if err != nil {
		c.fail(ctx, "failed to get room state", err)
		return
	}

	dto := RoomStateOf(room)
	if participant, ok := room.ParticipantFor(userID); ok {
		dto.You = &ParticipantDTO{ID: participant.ID, Role: participant.Role}
		dto.YourTurn = room.CanSend(userID)
	}

	ctx.JSON(http.StatusOK, dto)
}

func (c *Controller) join(ctx *gin.Context) {
	code := ctx.Param("room_code")
	userID := ctx.GetString(http_auth_middleware.ContextUserID)

	if err := c.sessions.Join(ctx, userID, code); err != nil {
		c.fail(ctx, "failed to join room", err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

type SendImageRequestDTO struct {
	ImageRef string `json:"image_ref" binding:"required"`
}

func (c *Controller) sendImage(ctx *gin.Context) {
	code := ctx.Param("room_code")
	userID := ctx.GetString(http_auth_middleware.ContextUserID)

	var req SendImageRequestDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "invalid request format",
		})
		return
	}

	if err := c.sessions.SendImage(ctx, code, userID, req.ImageRef); err != nil {
		c.fail(ctx, "failed to send image", err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (c *Controller) leave(ctx *gin.Context) {
	code := ctx.Param("room_code")
	userID := ctx.GetString(http_auth_middleware.ContextUserID)

	if err := c.sessions.Leave(ctx, userID, code); err != nil {
		c.fail(ctx, "failed to leave room", err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (c *Controller) fail(ctx *gin.Context, msg string, err error) {
	c.logger.Error(msg, slog.String("error", err.Error()))

	switch {
	case errors.Is(err, usecase_session.ErrRoomNotFound):
		ctx.JSON(http.StatusNotFound, http_common.ErrorResponse{Message: "room not found"})
	case errors.Is(err, usecase_session.ErrRoomFull):
		ctx.JSON(http.StatusConflict, http_common.ErrorResponse{Message: "room full"})
	case errors.Is(err, usecase_session.ErrRoomEnded):
		ctx.JSON(http.StatusGone, http_common.ErrorResponse{Message: "room ended"})
	case errors.Is(err, usecase_session.ErrRoomNotPlaying):
		ctx.JSON(http.StatusConflict, http_common.ErrorResponse{Message: "room not playing"})
	case errors.Is(err, usecase_session.ErrNotYourTurn):
		ctx.JSON(http.StatusConflict, http_common.ErrorResponse{Message: "not your turn"})
	case errors.Is(err, usecase_session.ErrStoreUnavailable):
		ctx.JSON(http.StatusServiceUnavailable, http_common.ErrorResponse{Message: "unavailable"})
	default:
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{Message: "internal error"})
	}
}
