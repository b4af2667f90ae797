package main

import (
	"net/http"
	"slices"
	"time"

	"github.com/PaulBabatuyi/collab-chat/internal/middleware"
	"github.com/PaulBabatuyi/collab-chat/internal/registry"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// newRouter builds the HTTP surface: the WebSocket endpoint and a health
// probe.
func newRouter(reg *registry.Registry, gw *wsGateway, origins []string, limiter *middleware.LimiterStore) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders: []string{"Content-Length", "Content-Type"},
		MaxAge:        12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
		corsCfg.AllowCredentials = true
	}
	router.Use(cors.New(corsCfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": reg.Count(),
			"time":     time.Now().Unix(),
		})
	})
	router.GET("/ws", middleware.RateLimitGin(limiter), gw.serve)

	return router
}
