package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/avilov/codemesh/internal/adapters/ws"
	"github.com/avilov/codemesh/internal/config"
	"github.com/avilov/codemesh/internal/hub"
)

func SetupRouter(ctx context.Context, cfg *config.Config, h *hub.Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("codemesh", store))
	r.Use(IdentityMiddleware(cfg.TokenSecret))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": h.Registry.Count()})
	})

	api := r.Group("/api")
	api.GET("/topics", func(c *gin.Context) {
		c.JSON(http.StatusOK, h.Topics.List())
	})

	ctl := ws.NewController(h, cfg.ReadLimit, cfg.PingPeriod)
	api.GET("/ws", func(c *gin.Context) {
		ctl.HandleWS(ctx, c)
	})

	log.Info().Str("module", "httpapi").Msg("router setup")
	return r
}
