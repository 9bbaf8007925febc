package rest

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/dagline/dagline/internal/logger"
)

// NewRouter assembles dagline's REST adapter: recovery and request
// logging ahead of gzip and the versioned route group, the same
// middleware ordering the teacher's cmd/server/main.go builds (panic
// containment first, then observability, then payload compression).
func NewRouter(handlers *ExecutionHandlers, hub *EventHub, log *logger.Logger) *gin.Engine {
	router := gin.New()

	recovery := NewRecoveryMiddleware(log)
	logging := NewLoggingMiddleware(log)
	router.Use(recovery.Recovery())
	router.Use(logging.RequestLogger())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy"})
	})

	v1 := router.Group("/api/v1")
	{
		executions := v1.Group("/executions")
		{
			executions.POST("", handlers.HandleLaunchExecution)
			executions.POST("/validate", handlers.HandleValidateWorkflow)
			executions.GET("/stream", hub.HandleStream)
			executions.GET("/:id", handlers.HandleGetExecution)
			executions.POST("/:id/resume", handlers.HandleResumeWait)
			executions.POST("/:id/recover", handlers.HandleRecoverExecution)
		}
	}

	return router
}
