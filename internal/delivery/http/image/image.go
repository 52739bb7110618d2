package http_image

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	http_common "github.com/picswap/core/internal/delivery/http/common"
	http_auth_middleware "github.com/picswap/core/internal/delivery/http/middleware/auth"
	usecase_image "github.com/picswap/core/internal/usecase/image"
)

type Controller struct {
	images     *usecase_image.Usecase
	middleware *http_auth_middleware.Middleware
	logger     *slog.Logger
}

func New(
	images *usecase_image.Usecase,
	middleware *http_auth_middleware.Middleware,
) *Controller {
	return &Controller{
		images:     images,
		middleware: middleware,
		logger:     slog.Default(),
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	images := router.Group("/images")
	images.Use(c.middleware.AuthRequired())
	{
		images.POST("", c.upload)
		images.GET("/*image_ref", c.resolve)
	}
}

type UploadResponseDTO struct {
	ImageRef string `json:"image_ref"`
}

// upload accepts the raw image payload in the request body and returns
// the opaque ref to pass through the room protocol.
func (c *Controller) upload(ctx *gin.Context) {
	data, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "could not read payload",
		})
		return
	}

	ref, err := c.images.Save(ctx, data, ctx.ContentType())
	if err != nil {
		c.logger.Error("failed to save image", slog.String("error", err.Error()))
		switch {
		case errors.Is(err, usecase_image.ErrNoImage):
			ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: "empty payload"})
		case errors.Is(err, usecase_image.ErrImageTooLarge):
			ctx.JSON(http.StatusRequestEntityTooLarge, http_common.ErrorResponse{Message: "payload too large"})
		default:
			ctx.JSON(http.StatusServiceUnavailable, http_common.ErrorResponse{Message: "unavailable"})
		}
		return
	}

	ctx.JSON(http.StatusCreated, UploadResponseDTO{
		ImageRef: ref,
	})
}

type ResolveResponseDTO struct {
	URL string `json:"url"`
}

func (c *Controller) resolve(ctx *gin.Context) {
	ref := ctx.Param("image_ref")
	if len(ref) > 0 && ref[0] == '/' {
		ref = ref[1:]
	}

	url, err := c.images.ResolveURL(ctx, ref)
	if err != nil {
		c.logger.Error("failed to resolve image", slog.String("error", err.Error()))
		if errors.Is(err, usecase_image.ErrImageNotFound) {
			ctx.JSON(http.StatusNotFound, http_common.ErrorResponse{Message: "not found"})
			return
		}
		ctx.JSON(http.StatusServiceUnavailable, http_common.ErrorResponse{Message: "unavailable"})
		return
	}

	ctx.JSON(http.StatusOK, ResolveResponseDTO{
		URL: url,
	})
}
