package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/north-cloud/huv-matcher/infrastructure/jwt"
)

// SetupRoutes configures all API routes. An empty jwtSecret leaves /api/v1
// unauthenticated; a nil metrics handler skips /metrics.
func SetupRoutes(router *gin.Engine, handler *Handler, jwtSecret string, metrics http.Handler) {
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := router.Group("/api/v1")
	if jwtSecret != "" {
		v1.Use(jwt.Middleware(jwtSecret))
	}
	{
		v1.POST("/match", handler.Match)
		v1.POST("/match/ai/:source_id", handler.MatchAI)
		v1.POST("/batches", handler.RunBatch)
		v1.POST("/stats", handler.Stats)
	}
}
