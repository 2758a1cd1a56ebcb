package controller

import (
	"context"
	"errors"
	"net/http"
	"skilllab_backend/internal/model"
	"skilllab_backend/internal/service"
	"skilllab_backend/internal/util"
	"skilllab_backend/pkg/logger"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SubmissionController struct {
	Pipeline *service.PipelineService
	Chunks   *service.ChunkService
	Ledger   *service.LedgerService
}

func NewSubmissionController(pipeline *service.PipelineService, chunks *service.ChunkService, ledger *service.LedgerService) *SubmissionController {
	return &SubmissionController{Pipeline: pipeline, Chunks: chunks, Ledger: ledger}
}

// SubmitRecordingRequest 所有分块上传完成后提交
type SubmitRecordingRequest struct {
	FileName    string `json:"fileName" binding:"required"`
	TotalChunks int    `json:"totalChunks" binding:"required,min=1"`
	UploadID    string `json:"uploadId"`
}

// SubmitRecordingResponse 评分结果
type SubmitRecordingResponse struct {
	Feedback        string          `json:"feedback"`
	Transcription   string          `json:"transcription"`
	PassFailStatus  string          `json:"passFailStatus"`
	Score           float64         `json:"score"`
	Pros            string          `json:"pros"`
	Recommendations string          `json:"recommendations"`
	FileURL         string          `json:"fileUrl"`
	FileType        model.MediaKind `json:"fileType"`
	Attempt         int             `json:"attempt"`
}

// SubmitLabRequest 服务间直接写入成绩
type SubmitLabRequest struct {
	StudentID       string   `json:"studentId" binding:"required"`
	LabNumber       int      `json:"labNumber" binding:"required,min=1"`
	Subject         string   `json:"subject" binding:"required"`
	FileURL         string   `json:"fileUrl"`
	FileType        string   `json:"fileType" binding:"omitempty,oneof=video audio"`
	StudentAnswer   string   `json:"studentAnswer"`
	StudentScore    *float64 `json:"studentScore" binding:"required,min=0,max=100"`
	IsPass          *bool    `json:"isPass"`
	Pros            string   `json:"pros"`
	Recommendations string   `json:"recommendations"`
}

// LabSummary 实验列表项，不包含评分标准
type LabSummary struct {
	LabNumber     int     `json:"labNumber"`
	Subject       string  `json:"subject"`
	DisplayName   string  `json:"displayName"`
	PassThreshold float64 `json:"passThreshold"`
	RubricVersion int     `json:"rubricVersion"`
}

func passFailStatus(isPass bool) string {
	if isPass {
		return "Pass"
	}
	return "Fail"
}

func buildFeedback(pros, recommendations string) string {
	var parts []string
	if strings.TrimSpace(pros) != "" {
		parts = append(parts, "Strengths: "+strings.TrimSpace(pros))
	}
	if strings.TrimSpace(recommendations) != "" {
		parts = append(parts, "Recommendations: "+strings.TrimSpace(recommendations))
	}
	return strings.Join(parts, "\n\n")
}

func labParams(ctx *gin.Context) (int, string, bool) {
	labNumber, err := strconv.Atoi(ctx.Param("labNumber"))
	if err != nil || labNumber <= 0 {
		util.BadRequest(ctx, "invalid labNumber")
		return 0, "", false
	}
	subject := strings.TrimSpace(ctx.Param("subject"))
	if subject == "" {
		util.BadRequest(ctx, "invalid subject")
		return 0, "", false
	}
	return labNumber, subject, true
}

// respondError 业务错误映射为 HTTP 状态码
func respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrLabNotFound):
		util.NotFound(ctx, err.Error())
	case errors.Is(err, util.ErrUploadProgressNotFound):
		util.NotFound(ctx, err.Error())
	case util.IsInputError(err):
		util.BadRequest(ctx, err.Error())
	default:
		stage := ""
		var se *service.StageError
		if errors.As(err, &se) {
			stage = string(se.Stage)
		}
		logger.Log.Error("request failed",
			zap.String("path", ctx.FullPath()),
			zap.String("stage", stage),
			zap.Error(err))
		util.ErrorWithData(ctx, http.StatusInternalServerError, "Internal server error", gin.H{
			"msg":   "Error processing submission",
			"error": err.Error(),
			"stage": stage,
		})
	}
}

// @Summary 上传录像分块
// @Description 分块上传音视频，全部上传后调用提交接口
// @Tags 实验提交
// @Accept multipart/form-data
// @Produce json
// @Security ApiKeyAuth
// @Param chunk formData file true "分块内容"
// @Param chunkIndex formData int true "分块序号，从0开始"
// @Param totalChunks formData int true "分块总数"
// @Param uploadId formData string false "上传会话ID"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Router /upload-chunk [post]
func (c *SubmissionController) UploadChunk(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	index, err := strconv.Atoi(ctx.PostForm("chunkIndex"))
	if err != nil {
		util.BadRequest(ctx, util.ErrInvalidChunkIndex.Error())
		return
	}
	total, err := strconv.Atoi(ctx.PostForm("totalChunks"))
	if err != nil || total <= 0 {
		util.BadRequest(ctx, "invalid totalChunks")
		return
	}

	fileHeader, err := ctx.FormFile("chunk")
	if err != nil {
		util.BadRequest(ctx, util.ErrNoChunkProvided.Error())
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer file.Close()

	sessionKey := service.SessionKey(user.UserID, ctx.PostForm("uploadId"))
	progress, err := c.Chunks.ReceiveChunk(ctx.Request.Context(), sessionKey, index, total, file)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"chunkIndex":     index,
		"receivedChunks": progress.UploadedChunks,
		"totalChunks":    total,
	})
}

// @Summary 查询分块上传进度
// @Tags 实验提交
// @Produce json
// @Security ApiKeyAuth
// @Param uploadId query string false "上传会话ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /upload-progress [get]
func (c *SubmissionController) UploadProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	progress, err := c.Chunks.Progress(ctx.Request.Context(), service.SessionKey(user.UserID, ctx.Query("uploadId")))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// @Summary 提交实验录像并评分
// @Description 合并分块、提取音频、上传、转写、按评分标准打分并记录成绩
// @Tags 实验提交
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param subject path string true "科目"
// @Param labNumber path int true "实验编号"
// @Param body body SubmitRecordingRequest true "提交信息"
// @Success 200 {object} util.Response{data=SubmitRecordingResponse}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 500 {object} util.Response
// @Router /labs/{subject}/{labNumber}/submissions [post]
func (c *SubmissionController) SubmitRecording(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	labNumber, subject, ok := labParams(ctx)
	if !ok {
		return
	}

	var req SubmitRecordingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	// 客户端断开不影响评分，分块已经上传完毕
	runCtx := context.WithoutCancel(ctx.Request.Context())
	attempt, err := c.Pipeline.Run(runCtx, service.SubmissionRequest{
		LearnerID:   user.UserID,
		UploadID:    req.UploadID,
		FileName:    req.FileName,
		TotalChunks: req.TotalChunks,
		LabNumber:   labNumber,
		Subject:     subject,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, SubmitRecordingResponse{
		Feedback:        buildFeedback(attempt.Pros, attempt.Recommendations),
		Transcription:   attempt.Transcript,
		PassFailStatus:  passFailStatus(attempt.IsPass),
		Score:           attempt.Score,
		Pros:            attempt.Pros,
		Recommendations: attempt.Recommendations,
		FileURL:         attempt.FileURL,
		FileType:        attempt.FileType,
		Attempt:         attempt.Attempt,
	})
}

// @Summary 直接写入实验成绩
// @Description 服务间调用，跳过媒体处理，需要 X-Internal-Key
// @Tags 实验提交
// @Accept json
// @Produce json
// @Param X-Internal-Key header string true "内部调用密钥"
// @Param body body SubmitLabRequest true "成绩信息"
// @Success 201 {object} util.Response{data=model.SubmissionAttempt}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /submit-lab [post]
func (c *SubmissionController) SubmitLab(ctx *gin.Context) {
	var req SubmitLabRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attempt, err := c.Ledger.Record(ctx.Request.Context(), service.RecordInput{
		LearnerID:       strings.TrimSpace(req.StudentID),
		LabNumber:       req.LabNumber,
		Subject:         req.Subject,
		FileURL:         req.FileURL,
		FileType:        model.MediaKind(req.FileType),
		Transcript:      req.StudentAnswer,
		Score:           *req.StudentScore,
		Pros:            req.Pros,
		Recommendations: req.Recommendations,
		ClaimedPass:     req.IsPass,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Created(ctx, attempt)
}

// @Summary 实验列表
// @Tags 实验
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]LabSummary}
// @Router /labs [get]
func (c *SubmissionController) ListLabs(ctx *gin.Context) {
	labs, err := c.Ledger.ListLabs(ctx.Request.Context())
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	items := make([]LabSummary, 0, len(labs))
	for _, lab := range labs {
		items = append(items, LabSummary{
			LabNumber:     lab.LabNumber,
			Subject:       lab.Subject,
			DisplayName:   lab.DisplayName,
			PassThreshold: lab.PassThreshold,
			RubricVersion: lab.RubricVersion,
		})
	}
	util.Success(ctx, items)
}

// resolveLearner 默认查询本人；教师和管理员可通过 studentId 查询任意学生
func resolveLearner(ctx *gin.Context) (string, bool) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return "", false
	}
	studentID := strings.TrimSpace(ctx.Query("studentId"))
	if studentID == "" || studentID == user.UserID {
		return user.UserID, true
	}
	if user.Role != model.Professor && user.Role != model.Admin {
		util.Forbidden(ctx)
		return "", false
	}
	return studentID, true
}

// @Summary 实验提交历史
// @Description 按提交次数升序
// @Tags 实验
// @Produce json
// @Security ApiKeyAuth
// @Param subject path string true "科目"
// @Param labNumber path int true "实验编号"
// @Param studentId query string false "学生ID（教师/管理员）"
// @Success 200 {object} util.Response{data=[]model.SubmissionAttempt}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /labs/{subject}/{labNumber}/attempts [get]
func (c *SubmissionController) History(ctx *gin.Context) {
	labNumber, subject, ok := labParams(ctx)
	if !ok {
		return
	}
	learnerID, ok := resolveLearner(ctx)
	if !ok {
		return
	}

	attempts, err := c.Ledger.History(ctx.Request.Context(), learnerID, labNumber, subject)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, attempts)
}

// @Summary 实验通过状态
// @Description 是否曾经通过以及最近一次成绩
// @Tags 实验
// @Produce json
// @Security ApiKeyAuth
// @Param subject path string true "科目"
// @Param labNumber path int true "实验编号"
// @Param studentId query string false "学生ID（教师/管理员）"
// @Success 200 {object} util.Response{data=model.LabStatus}
// @Router /labs/{subject}/{labNumber}/status [get]
func (c *SubmissionController) Status(ctx *gin.Context) {
	labNumber, subject, ok := labParams(ctx)
	if !ok {
		return
	}
	learnerID, ok := resolveLearner(ctx)
	if !ok {
		return
	}

	status, err := c.Ledger.Status(ctx.Request.Context(), learnerID, labNumber, subject)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, status)
}
