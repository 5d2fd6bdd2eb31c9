// Package router provides docqa service routing.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/handler"
	"github.com/kart-io/docqa/pkg/infra/middleware"
	"github.com/kart-io/docqa/pkg/infra/server"
	httpopts "github.com/kart-io/docqa/pkg/options/http"
	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/response"
)

// Handlers 路由依赖的全部处理器。
type Handlers struct {
	Chat    *handler.ChatHandler
	Files   *handler.FileHandler
	Events  *handler.EventsHandler
	Stats   *handler.StatsHandler
	Health  *handler.HealthHandler
	Metrics http.Handler
}

// Register registers the docqa routes on the HTTP server.
func Register(srv *server.HTTPServer, opts *httpopts.Options, h *Handlers) {
	logger.Info("Registering docqa routes...")

	r := srv.Engine()
	r.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Tracing("/healthz", "/readyz", "/metrics"),
		middleware.Logger("/healthz", "/readyz", "/metrics"),
		middleware.CORS(opts.CORSOrigins),
	)
	r.NoRoute(func(c *gin.Context) { response.Fail(c, errors.ErrRouteNotFound) })

	// 探针与指标不需要身份
	r.GET("/healthz", h.Health.Live)
	r.GET("/readyz", h.Health.Ready)
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics))
	}

	v1 := r.Group("/v1", middleware.Identity(opts.UserHeader))
	{
		v1.POST("/chat", middleware.BodyLimit(1<<20), h.Chat.Chat)

		files := v1.Group("/files")
		{
			files.POST("", h.Files.RequestUpload)
			files.GET("", h.Files.List)
			files.GET("/:id", h.Files.Get)
			files.DELETE("/:id", h.Files.Delete)
			files.POST("/:id/confirm", h.Files.ConfirmUpload)
		}

		v1.GET("/events", h.Events.Subscribe)
		v1.GET("/stats", h.Stats.Stats)
	}

	logger.Info("HTTP routes registered")
}
