// Package api is the dashboard-facing HTTP surface: task CRUD, manual
// assignment and status changes, sweep triggers and the chat webhook.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Health reports process liveness plus downstream checks.
type Health func() error

// NewRouter wires the gin engine. Gin's own logger stays off; requests go
// through the zap middleware instead.
func NewRouter(tasks *TaskHandler, escalations *EscalationHandler, health Health, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	router.GET("/health", func(c *gin.Context) {
		if err := health(); err != nil {
			Error(c, http.StatusServiceUnavailable, "unhealthy", err.Error())
			return
		}
		Success(c, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/tasks", tasks.Create)
		v1.GET("/tasks/:id", tasks.Get)
		v1.POST("/tasks/:id/assign", tasks.Assign)
		v1.POST("/tasks/:id/status", tasks.UpdateStatus)
		v1.POST("/escalations/check", escalations.CheckOverdue)
		v1.POST("/webhook/messages", escalations.Webhook)
	}

	return router
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
