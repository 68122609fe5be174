package router

import (
	"context"
	"net/http"
	"time"

	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const healthTimeout = 2 * time.Second

func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestID())
	engine.Use(httpkit.RequestLogger(app.Logger))

	engine.GET("/api/health", func(c *gin.Context) {
		if app.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
			defer cancel()
			if err := app.Health.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": app.Service})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": app.Service})
	})

	v1 := engine.Group("/api/v1")
	if app.OperatorRPS > 0 {
		limiter := httpkit.NewIPRateLimiter(rate.Limit(app.OperatorRPS), int(app.OperatorRPS)+1, app.Logger)
		v1.Use(limiter.RateLimit())
	}

	routerCtx := &apphttp.RouterContext{
		Engine:   engine,
		V1:       v1,
		Internal: engine.Group("/internal"),
	}
	for _, m := range app.Modules {
		m.RegisterRoutes(routerCtx)
		app.Logger.Debug("module routes registered", "module", m.Name())
	}

	return engine
}
