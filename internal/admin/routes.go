package admin

import (
	"swarmgate/internal/auth"
	"swarmgate/internal/config"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router gin.IRouter, keys Keys, cfg config.AdminConfig) {
	handler := NewHandler(keys)

	adminGroup := router.Group("/admin")
	adminGroup.Use(auth.AdminAuthMiddleware(cfg))
	{
		keysGroup := adminGroup.Group("/keys")
		{
			keysGroup.GET("", handler.ListKeysHandler)
			keysGroup.POST("", handler.CreateKeyHandler)
			keysGroup.GET("/:key", handler.GetKeyHandler)
			keysGroup.POST("/:key/reset", handler.ResetKeyHandler)
			keysGroup.DELETE("/:key", handler.RevokeKeyHandler)
		}
	}
}
