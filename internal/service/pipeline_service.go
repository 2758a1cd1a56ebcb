package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"skilllab_backend/internal/config"
	"skilllab_backend/internal/model"
	"skilllab_backend/internal/util"
	"skilllab_backend/pkg/logger"
	"skilllab_backend/pkg/monitoring"
	"skilllab_backend/pkg/tracing"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Stage 流水线阶段
type Stage string

const (
	StageResolving    Stage = "resolving"
	StageAssembling   Stage = "assembling"
	StageClassifying  Stage = "classifying"
	StageExtracting   Stage = "extracting_audio"
	StageUploading    Stage = "uploading"
	StageTranscribing Stage = "transcribing"
	StageGrading      Stage = "grading"
	StageRecording    Stage = "recording"
	StageCleaningUp   Stage = "cleaning_up"
)

// StageError 区分失败阶段与底层原因
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type ChunkAssembler interface {
	Assemble(ctx context.Context, sessionKey string, total int, targetFilename string) (string, error)
	Discard(ctx context.Context, sessionKey string, total int)
}

type MediaTranscoder interface {
	Classify(filename string) (model.MediaKind, error)
	ExtractAudio(ctx context.Context, videoPath string) (string, error)
	Duration(path string) (float64, error)
}

type ObjectUploader interface {
	UploadFile(ctx context.Context, key string, localPath string, contentType string) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

type RubricGrader interface {
	Grade(ctx context.Context, req GradeRequest) (*GradeResult, error)
}

type SubmissionLedger interface {
	LookupLab(ctx context.Context, labNumber int, subject string) (*model.LabDefinition, error)
	Record(ctx context.Context, in RecordInput) (*model.SubmissionAttempt, error)
}

// SubmissionRequest 一次提交：学生已上传完全部分块
type SubmissionRequest struct {
	LearnerID   string
	UploadID    string
	FileName    string
	TotalChunks int
	LabNumber   int
	Subject     string
}

// PipelineService 合并 → 分类 → (提取音轨) → (上传 ∥ 转写) → 评分 → 记录 → 清理
type PipelineService struct {
	Chunks      ChunkAssembler
	Media       MediaTranscoder
	Uploader    ObjectUploader
	Transcriber Transcriber
	Grader      RubricGrader
	Ledger      SubmissionLedger

	mu       sync.RWMutex
	settings config.PipelineConfig
}

func NewPipelineService(
	chunks ChunkAssembler,
	media MediaTranscoder,
	uploader ObjectUploader,
	transcriber Transcriber,
	grader RubricGrader,
	ledger SubmissionLedger,
	cfg config.PipelineConfig,
) *PipelineService {
	s := &PipelineService{
		Chunks:      chunks,
		Media:       media,
		Uploader:    uploader,
		Transcriber: transcriber,
		Grader:      grader,
		Ledger:      ledger,
	}
	s.UpdateSettings(cfg)
	return s
}

// UpdateSettings 配置热更新时调用，只影响之后开始的提交
func (s *PipelineService) UpdateSettings(cfg config.PipelineConfig) {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	s.mu.Lock()
	s.settings = cfg
	s.mu.Unlock()
}

func (s *PipelineService) currentSettings() config.PipelineConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// pipelineRun 单次提交过程中产生的临时状态
type pipelineRun struct {
	req          SubmissionRequest
	sessionKey   string
	assembled    bool
	scratchFiles []string
	fileURL      string
}

func (r *pipelineRun) track(path string) {
	for _, p := range r.scratchFiles {
		if p == path {
			return
		}
	}
	r.scratchFiles = append(r.scratchFiles, path)
}

// Run 执行完整的提交流程。无论成功失败都会清理临时文件，
// 失败时返回 *StageError。
func (s *PipelineService) Run(ctx context.Context, req SubmissionRequest) (attempt *model.SubmissionAttempt, err error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.run",
		attribute.String("learner.id", req.LearnerID),
		attribute.Int("lab.number", req.LabNumber),
		attribute.String("lab.subject", req.Subject),
	)
	settings := s.currentSettings()
	run := &pipelineRun{req: req, sessionKey: SessionKey(req.LearnerID, req.UploadID)}
	log := logger.Log.With(
		zap.String("learnerId", req.LearnerID),
		zap.Int("labNumber", req.LabNumber),
		zap.String("subject", req.Subject),
		zap.String("session", run.sessionKey),
	)
	started := time.Now()

	defer func() {
		s.cleanup(context.WithoutCancel(ctx), run, log)
		s.finish(run, err, log, time.Since(started))
		tracing.EndSpan(span, err)
	}()

	if req.TotalChunks <= 0 {
		return nil, &StageError{Stage: StageAssembling, Err: fmt.Errorf("%w: totalChunks must be positive", util.ErrInvalidChunkIndex)}
	}

	var lab *model.LabDefinition
	if err := s.stage(ctx, StageResolving, log, func(ctx context.Context) error {
		var err error
		lab, err = s.Ledger.LookupLab(ctx, req.LabNumber, req.Subject)
		return err
	}); err != nil {
		return nil, err
	}

	var mediaPath string
	if err := s.stage(ctx, StageAssembling, log, func(ctx context.Context) error {
		path, err := s.Chunks.Assemble(ctx, run.sessionKey, req.TotalChunks, req.FileName)
		if err != nil {
			return err
		}
		run.assembled = true
		run.track(path)
		mediaPath = path
		return nil
	}); err != nil {
		return nil, err
	}

	var kind model.MediaKind
	if err := s.stage(ctx, StageClassifying, log, func(ctx context.Context) error {
		var err error
		kind, err = s.Media.Classify(req.FileName)
		return err
	}); err != nil {
		return nil, err
	}

	audioPath := mediaPath
	if kind == model.MediaVideo {
		if err := s.stage(ctx, StageExtracting, log, func(ctx context.Context) error {
			path, err := s.Media.ExtractAudio(ctx, mediaPath)
			if err != nil {
				return err
			}
			run.track(path)
			audioPath = path
			return nil
		}); err != nil {
			return nil, err
		}
	}

	duration, probeErr := s.Media.Duration(mediaPath)
	if probeErr != nil {
		log.Debug("获取媒体时长失败", zap.Error(probeErr))
	}

	// 上传与转写互不依赖，并发执行；任一失败取消另一个
	remoteKey := fmt.Sprintf("%s/%s/%s_%s",
		req.LearnerID, lab.StorageNamespace, time.Now().Format(util.KeyTimeFormat), util.SanitizeFilename(req.FileName))
	var transcript string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.stage(gctx, StageUploading, log, func(ctx context.Context) error {
			return withRetry(ctx, settings, log, StageUploading, func(ctx context.Context) error {
				if settings.UploadTimeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, settings.UploadTimeout)
					defer cancel()
				}
				url, err := s.Uploader.UploadFile(ctx, remoteKey, mediaPath, ContentType(req.FileName))
				if err != nil {
					return err
				}
				run.fileURL = url
				return nil
			})
		})
	})
	g.Go(func() error {
		return s.stage(gctx, StageTranscribing, log, func(ctx context.Context) error {
			return withRetry(ctx, settings, log, StageTranscribing, func(ctx context.Context) error {
				text, err := s.Transcriber.Transcribe(ctx, audioPath)
				if err != nil {
					return err
				}
				transcript = text
				return nil
			})
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var grade *GradeResult
	if err := s.stage(ctx, StageGrading, log, func(ctx context.Context) error {
		return withRetry(ctx, settings, log, StageGrading, func(ctx context.Context) error {
			result, err := s.Grader.Grade(ctx, GradeRequest{
				Transcript:   transcript,
				RubricText:   lab.RubricText,
				Instructions: lab.RubricInstructions,
			})
			if err != nil {
				return err
			}
			grade = result
			return nil
		})
	}); err != nil {
		return nil, err
	}

	if err := s.stage(ctx, StageRecording, log, func(ctx context.Context) error {
		var err error
		attempt, err = s.Ledger.Record(ctx, RecordInput{
			LearnerID:       req.LearnerID,
			LabNumber:       lab.LabNumber,
			Subject:         lab.Subject,
			FileURL:         run.fileURL,
			FileType:        kind,
			Transcript:      transcript,
			Score:           grade.TotalScore,
			Pros:            grade.Pros,
			Recommendations: grade.Recommendations,
			DurationSeconds: duration,
			RubricVersion:   lab.RubricVersion,
		})
		return err
	}); err != nil {
		return nil, err
	}

	return attempt, nil
}

// stage 执行一个阶段：计时、span、日志，并把错误包装成 *StageError
func (s *PipelineService) stage(ctx context.Context, stage Stage, log *zap.Logger, fn func(ctx context.Context) error) (err error) {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: stage, Err: err}
	}

	ctx, span := tracing.StartSpan(ctx, "pipeline."+string(stage))
	start := time.Now()
	log.Debug("stage started", zap.String("stage", string(stage)))

	err = fn(ctx)

	elapsed := time.Since(start)
	monitoring.PipelineStageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
	tracing.EndSpan(span, err)

	if err != nil {
		var se *StageError
		if errors.As(err, &se) {
			return err
		}
		return &StageError{Stage: stage, Err: err}
	}
	log.Debug("stage finished", zap.String("stage", string(stage)), zap.Duration("elapsed", elapsed))
	return nil
}

// withRetry 对外部调用做有限次重试，线性退避；输入类错误不重试
func withRetry(ctx context.Context, settings config.PipelineConfig, log *zap.Logger, stage Stage, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= settings.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || util.IsInputError(err) || ctx.Err() != nil || attempt == settings.MaxAttempts {
			return err
		}
		wait := settings.RetryBackoff * time.Duration(attempt)
		log.Warn("stage failed, retrying",
			zap.String("stage", string(stage)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

// cleanup 删除本次产生的临时文件，错误只记录日志
func (s *PipelineService) cleanup(ctx context.Context, run *pipelineRun, log *zap.Logger) {
	start := time.Now()
	if !run.assembled {
		s.Chunks.Discard(ctx, run.sessionKey, run.req.TotalChunks)
	}
	for _, path := range run.scratchFiles {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("删除临时文件失败", zap.String("stage", string(StageCleaningUp)), zap.String("path", path), zap.Error(err))
		}
	}
	monitoring.PipelineStageDuration.WithLabelValues(string(StageCleaningUp)).Observe(time.Since(start).Seconds())
}

func (s *PipelineService) finish(run *pipelineRun, err error, log *zap.Logger, elapsed time.Duration) {
	if err == nil {
		monitoring.PipelineRuns.WithLabelValues("done", "").Inc()
		log.Info("submission pipeline done", zap.Duration("elapsed", elapsed))
		return
	}

	stage := "unknown"
	var se *StageError
	if errors.As(err, &se) {
		stage = string(se.Stage)
	}
	monitoring.PipelineRuns.WithLabelValues("failed", stage).Inc()
	log.Error("submission pipeline failed",
		zap.String("stage", stage),
		zap.Duration("elapsed", elapsed),
		zap.Error(err))

	// 已上传的媒体不回滚，只记录下来供人工对账
	if run.fileURL != "" {
		monitoring.OrphanedObjects.Inc()
		log.Warn("media stored without a recorded attempt", zap.String("fileUrl", run.fileURL))
	}
}
