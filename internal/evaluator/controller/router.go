package controller

import (
	"net/http"

	"neurojudge/internal/common/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions carries middleware for the router. Middleware runs on every
// route after tracing; Admin guards only the routes that change status.
type RouterOptions struct {
	Middleware []gin.HandlerFunc
	Admin      []gin.HandlerFunc
}

// NewRouter wires the status API, health check and metrics endpoint.
func NewRouter(status *StatusController, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.TraceContextMiddleware())
	r.Use(opts.Middleware...)

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1/submissions")
	v1.GET("", status.List)
	v1.GET("/:id/status", status.Get)
	v1.GET("/:id/status/:flag", status.GetFlag)

	clearChain := append(append([]gin.HandlerFunc{}, opts.Admin...), status.Clear)
	v1.POST("/:id/status/:flag/clear", clearChain...)
	return r
}
