package app

import (
	"skilllab_backend/docs"
	"skilllab_backend/internal/config"
	"skilllab_backend/internal/middleware"

	"skilllab_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 2. 服务间调用
	internal := router.Group("/api")
	internal.Use(middleware.InternalKeyMiddleware(cfg))
	{
		internal.POST("/submit-lab", c.submission.SubmitLab)
	}

	// 3. 需要登录
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		authGroup.POST("/upload-chunk", c.submission.UploadChunk)
		authGroup.GET("/upload-progress", c.submission.UploadProgress)

		labs := authGroup.Group("/labs")
		{
			labs.GET("", c.submission.ListLabs)
			labs.POST("/:subject/:labNumber/submissions", c.submission.SubmitRecording)
			labs.GET("/:subject/:labNumber/attempts", c.submission.History)
			labs.GET("/:subject/:labNumber/status", c.submission.Status)
		}
	}
}
