package controller

import (
	"net/http"
	"skilllab_backend/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthController struct {
	DB *gorm.DB
	// 测试中替换
	FFmpegVersion func() (string, error)
}

func NewHealthController(db *gorm.DB) *HealthController {
	return &HealthController{DB: db, FFmpegVersion: util.GetFFmpegVersion}
}

// @Summary 健康检查
// @Description 检查数据库连接与 ffmpeg 是否可用
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Router /health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	sqlDB, err := c.DB.DB()
	if err != nil {
		util.InternalServerError(ctx)
		return
	}

	if err := sqlDB.PingContext(ctx.Request.Context()); err != nil {
		util.Error(ctx, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	// ffmpeg 缺失时仍可处理纯音频提交
	ffmpeg := "up"
	version, err := c.FFmpegVersion()
	if err != nil {
		ffmpeg = "unavailable"
	}

	util.Success(ctx, gin.H{
		"status": "ok",
		"components": gin.H{
			"database": "up",
			"ffmpeg":   ffmpeg,
		},
		"ffmpegVersion": version,
	})
}
