package app

import (
	"os"

	"github.com/picswap/core/internal/config"
	http_auth "github.com/picswap/core/internal/delivery/http/auth"
	http_image "github.com/picswap/core/internal/delivery/http/image"
	http_init "github.com/picswap/core/internal/delivery/http/init"
	http_auth_middleware "github.com/picswap/core/internal/delivery/http/middleware/auth"
	http_room "github.com/picswap/core/internal/delivery/http/room"
	ws_room "github.com/picswap/core/internal/delivery/ws/room"
	infra_postgres_archive "github.com/picswap/core/internal/infra/postgres/archive"
	infra_pg_init "github.com/picswap/core/internal/infra/postgres/init"
	infra_redis_init "github.com/picswap/core/internal/infra/redis/init"
	infra_redis_presence "github.com/picswap/core/internal/infra/redis/presence"
	infra_session_cache "github.com/picswap/core/internal/infra/redis/session"
	infra_s3 "github.com/picswap/core/internal/infra/s3"
	"github.com/picswap/core/internal/infra/s3mock"
	roomstore_redis "github.com/picswap/core/internal/roomstore/redis"
	service_anon_auth "github.com/picswap/core/internal/service/auth/anon"
	usecase_image "github.com/picswap/core/internal/usecase/image"
	usecase_session "github.com/picswap/core/internal/usecase/session"
)

func Go(cfg *config.Config) {
	redisConn := infra_redis_init.MustEstablishConn(cfg.Redis)
	pgConn := infra_pg_init.MustEstablishConn(cfg.Postgres)

	roomStore := roomstore_redis.New(redisConn)
	presence := infra_redis_presence.New(redisConn, "presence")
	archive := infra_postgres_archive.New(pgConn)

	sessionUC := usecase_session.New(roomStore, presence, archive)

	var imageRepository usecase_image.ImageRepository
	if os.Getenv("AWS_ACCESS_KEY_ID") == "" {
		imageRepository = s3mock.New()
	} else {
		s3conn := infra_s3.MustEstablishConn()
		var err error
		imageRepository, err = infra_s3.New(cfg.S3.Bucket, s3conn, cfg.S3.Prefix)
		if err != nil {
			panic(err)
		}
	}
	imageUC := usecase_image.New(imageRepository, 0)

	sessionCache := infra_session_cache.New(redisConn, "session_cache")
	authService := service_anon_auth.New(sessionCache, nil)
	authMiddleware := http_auth_middleware.New(authService)

	hub := ws_room.NewHub(sessionUC)

	controllerPool := http_init.NewControllerPool()
	controllerPool.Add(http_auth.New(authService))
	controllerPool.Add(http_room.New(sessionUC, authMiddleware))
	controllerPool.Add(http_image.New(imageUC, authMiddleware))
	controllerPool.Add(ws_room.NewController(hub, authService))

	controllerPool.Register()
	controllerPool.RunAll(cfg.HTTP.Port)
}
