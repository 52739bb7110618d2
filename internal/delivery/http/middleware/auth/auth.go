package http_auth_middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	http_common "github.com/picswap/core/internal/delivery/http/common"
)

const (
	HeaderToken   = "X-user-token"
	ContextUserID = "user_id"
)

type Identity interface {
	Resolve(ctx context.Context, token string) (string, error)
}

type Middleware struct {
	identity Identity
	logger   *slog.Logger
}

func New(
	identity Identity,
) *Middleware {
	return &Middleware{
		identity: identity,
		logger:   slog.Default(),
	}
}

// AuthRequired resolves the session token into a user id and stores it in
// the request context for the handlers downstream.
func (m *Middleware) AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		t := ctx.GetHeader(HeaderToken)
		if t == "" {
			ctx.JSON(http.StatusUnauthorized, http_common.ErrorResponse{
				Message: "no " + HeaderToken + " header",
			})
			ctx.Abort()
			return
		}

		userID, err := m.identity.Resolve(ctx, t)
		if err != nil {
			m.logger.Error("identity resolution failed", slog.String("error", err.Error()))
			ctx.JSON(http.StatusServiceUnavailable, http_common.ErrorResponse{
				Message: "auth unavailable",
			})
			ctx.Abort()
			return
		}
		if userID == "" {
			m.logger.Warn("unknown token", slog.String("token", t))
			ctx.JSON(http.StatusUnauthorized, http_common.ErrorResponse{
				Message: "invalid token",
			})
			ctx.Abort()
			return
		}

		ctx.Set(ContextUserID, userID)
		ctx.Next()
	}
}
