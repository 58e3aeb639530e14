package router

import (
	"net/http"

	"modelgate/internal/handler"
	"modelgate/internal/middleware"
	"modelgate/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options 路由依赖
type Options struct {
	Gateway        *service.GatewayService
	Admin          *service.AdminService
	AdminToken     string
	AllowedOrigins string
	RateLimitRPS   float64
}

func Setup(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), middleware.Metrics())
	r.Use(middleware.CORS(opts.AllowedOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := middleware.NewRateLimiter(opts.RateLimitRPS, int(opts.RateLimitRPS)*2+1)
	gatewayHandler := handler.NewGatewayHandler(opts.Gateway)
	adminHandler := handler.NewAdminHandler(opts.Admin)

	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		v1.Use(middleware.IdentityMiddleware())
		v1.Use(limiter.RateLimitByUser())
		{
			v1.POST("/chat", gatewayHandler.Chat)
			v1.POST("/feedback", gatewayHandler.Feedback)
			v1.GET("/recommendations", gatewayHandler.Recommendations)
			v1.GET("/preferences", gatewayHandler.Preferences)
			v1.GET("/admission", gatewayHandler.Admission)
			v1.GET("/alerts", gatewayHandler.Alerts)
		}

		admin := api.Group("/admin")
		admin.Use(limiter.RateLimitByIP())
		admin.Use(middleware.AdminMiddleware(opts.AdminToken))
		{
			admin.GET("/cache/stats", adminHandler.CacheStats)
			admin.DELETE("/cache/:namespace", adminHandler.InvalidateCache)
			admin.GET("/providers", adminHandler.Providers)
			admin.PUT("/users/:id/plan", adminHandler.AssignPlan)
		}
	}

	return r
}
