// Package server assembles the HTTP surface of the gateway.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"swarmgate/internal/admin"
	"swarmgate/internal/config"
	"swarmgate/internal/dataapi"
	"swarmgate/internal/forms"
	"swarmgate/internal/medchat"
	"swarmgate/internal/metrics"
	"swarmgate/internal/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Deps are the handlers the router mounts. Admin is optional.
type Deps struct {
	Config  *config.Config
	Logger  *slog.Logger
	Data    *dataapi.Handler
	Forms   *forms.Handler
	MedChat *medchat.Handler
	Admin   admin.Keys
}

// NewRouter builds the router shared by the HTTP server and the Lambda entry.
func NewRouter(deps Deps) *gin.Engine {
	cfg, log := deps.Config, deps.Logger

	router := gin.New()
	router.Use(CustomRecovery(log))
	router.Use(RequestID())
	router.Use(RequestLogger(log))
	router.Use(metrics.Middleware())

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key", "Stripe-Signature"},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "status": "healthy"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	deps.Data.Register(api.Group("/data"))
	deps.Forms.Register(api)
	api.POST("/ask-med", ratelimit.New(cfg.RateLimit).Middleware(), deps.MedChat.Ask)

	if deps.Admin != nil && cfg.Admin.Enabled() {
		admin.SetupRoutes(router, deps.Admin, cfg.Admin)
	}
	return router
}
