package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions configures SetupRouter
type RouterOptions struct {
	// RateLimit is the per-client budget of tool calls per minute, 0 disables it
	RateLimit int
	// Gatherer serves /metrics, omitted when nil
	Gatherer prometheus.Gatherer
}

// SetupRouter sets up the Gin router
func SetupRouter(server *ToolServer, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID())

	handlers := NewToolHandlers(server)

	tools := router.Group("/tools")
	{
		tools.GET("", handlers.List)
		tools.POST("/:name", RateLimit(opts.RateLimit), handlers.Call)
	}
	router.DELETE("/cache/:wallet", handlers.InvalidateCache)

	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	return router
}
