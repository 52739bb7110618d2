package http_auth

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	http_common "github.com/picswap/core/internal/delivery/http/common"
	http_auth_middleware "github.com/picswap/core/internal/delivery/http/middleware/auth"
	service_anon_auth "github.com/picswap/core/internal/service/auth/anon"
)

type Controller struct {
	service *service_anon_auth.Service
	logger  *slog.Logger
}

func New(
	service *service_anon_auth.Service,
) *Controller {
	return &Controller{
		service: service,
		logger:  slog.Default(),
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	auth := router.Group("/auth")
	auth.POST("/anonymous", c.signIn)
}

type SignInResponseDTO struct {
	UserID string `json:"user_id"`
}

// signIn provisions an anonymous identity. The session token comes back
// in the X-user-token header; every room operation requires it.
func (c *Controller) signIn(ctx *gin.Context) {
	userID, token, err := c.service.SignInAnonymously(ctx)
	if err != nil {
		c.logger.Error("anonymous sign-in failed", slog.String("error", err.Error()))
		ctx.JSON(http.StatusServiceUnavailable, http_common.ErrorResponse{
			Message: "auth unavailable",
		})
		return
	}

	ctx.Header(http_auth_middleware.HeaderToken, token)
	ctx.JSON(http.StatusCreated, SignInResponseDTO{
		UserID: userID,
	})
}
