package app

import (
	"net/http"
	"time"

	"github.com/docledger/docledger/handlers"
	"github.com/docledger/docledger/internal/document/handler"
	"github.com/docledger/docledger/internal/revocation"
	"github.com/docledger/docledger/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// cors sets permissive headers and answers preflight requests.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// Router builds the HTTP surface: probes, metrics and API docs are public,
// the document API sits behind ver and the configured rate limiter.
func (a *App) Router(ver middleware.Verifier) *gin.Engine {
	started := time.Now()
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), cors())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", func(c *gin.Context) {
		deps := gin.H{}
		ready := true
		for name, err := range a.Ready(c.Request.Context()) {
			if err != nil {
				deps[name] = err.Error()
				ready = false
				continue
			}
			deps[name] = "ok"
		}
		body := gin.H{"status": "ready", "deps": deps, "backends": a.Backends, "uptime": time.Since(started).String()}
		if !ready {
			body["status"] = "not_ready"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		c.JSON(http.StatusOK, body)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r)

	api := r.Group("/")
	api.Use(middleware.AuthMiddleware(ver, revocation.NewList(a.Redis, revocation.DefaultPrefix)))
	if rl := a.Config.RateLimit; rl.Enabled {
		if rl.UseRedis && a.Redis != nil {
			api.Use(middleware.RedisRateLimitMiddleware(a.Redis, rl.RPS, rl.Burst, rl.Window))
		} else {
			api.Use(middleware.RateLimitMiddleware(rl.RPS, rl.Burst))
		}
	}
	handler.RegisterDocumentRoutes(api, a.Service)
	return r
}
