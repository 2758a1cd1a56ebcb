package service

import (
	"context"
	"fmt"
	"skilllab_backend/internal/model"
	"skilllab_backend/internal/repository"
	"skilllab_backend/internal/util"
	"skilllab_backend/pkg/logger"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// RecordInput 写入一次成绩所需的数据
type RecordInput struct {
	LearnerID       string
	LabNumber       int
	Subject         string
	FileURL         string
	FileType        model.MediaKind
	Transcript      string
	Score           float64
	Pros            string
	Recommendations string
	DurationSeconds float64
	// 调用方声明的通过状态，仅用于比对，最终以实验阈值为准
	ClaimedPass *bool
	// 评分时使用的 rubric 版本，0 表示当前版本
	RubricVersion int
}

// LedgerService 成绩记录：次数编号、及格判定、只追加
type LedgerService struct {
	LabRepo        *repository.LabRepository
	SubmissionRepo *repository.SubmissionRepository
	validate       *validator.Validate
}

func NewLedgerService(labRepo *repository.LabRepository, submissionRepo *repository.SubmissionRepository) *LedgerService {
	return &LedgerService{
		LabRepo:        labRepo,
		SubmissionRepo: submissionRepo,
		validate:       validator.New(),
	}
}

func normalizeSubject(subject string) string {
	return strings.ToLower(strings.TrimSpace(subject))
}

func (s *LedgerService) validateLearner(learnerID string) error {
	if err := s.validate.Var(learnerID, "required,uuid"); err != nil {
		return fmt.Errorf("%w: %q", util.ErrInvalidLearnerReference, learnerID)
	}
	return nil
}

// LookupLab 找不到时返回 ErrLabNotFound
func (s *LedgerService) LookupLab(ctx context.Context, labNumber int, subject string) (*model.LabDefinition, error) {
	lab, err := s.LabRepo.FindByNumberAndSubject(ctx, labNumber, normalizeSubject(subject))
	if err != nil {
		return nil, err
	}
	if lab == nil {
		return nil, fmt.Errorf("%w: lab %d (%s)", util.ErrLabNotFound, labNumber, subject)
	}
	return lab, nil
}

func (s *LedgerService) ListLabs(ctx context.Context) ([]model.LabDefinition, error) {
	return s.LabRepo.List(ctx)
}

func (s *LedgerService) NextAttemptNumber(ctx context.Context, learnerID string, labID uint) (int, error) {
	count, err := s.SubmissionRepo.CountByLearnerAndLab(ctx, learnerID, labID)
	if err != nil {
		return 0, err
	}
	return int(count) + 1, nil
}

// Record 写入一条不可变的成绩记录，编号与插入在同一事务中完成
func (s *LedgerService) Record(ctx context.Context, in RecordInput) (*model.SubmissionAttempt, error) {
	if err := s.validateLearner(in.LearnerID); err != nil {
		return nil, err
	}
	lab, err := s.LookupLab(ctx, in.LabNumber, in.Subject)
	if err != nil {
		return nil, err
	}

	isPass := lab.IsPass(in.Score)
	if in.ClaimedPass != nil && *in.ClaimedPass != isPass {
		logger.Log.Warn("提交的通过状态与实验阈值不一致，以阈值为准",
			zap.String("learnerId", in.LearnerID),
			zap.Int("labNumber", lab.LabNumber),
			zap.String("subject", lab.Subject),
			zap.Float64("score", in.Score),
			zap.Float64("threshold", lab.PassThreshold),
			zap.Bool("claimed", *in.ClaimedPass))
	}

	rubricVersion, err := s.resolveRubricVersion(ctx, lab, in.RubricVersion)
	if err != nil {
		return nil, err
	}

	attempt := &model.SubmissionAttempt{
		LearnerID:       in.LearnerID,
		LabID:           lab.ID,
		LabNumber:       lab.LabNumber,
		Subject:         lab.Subject,
		FileURL:         in.FileURL,
		FileType:        in.FileType,
		Transcript:      in.Transcript,
		Score:           in.Score,
		IsPass:          isPass,
		Pros:            in.Pros,
		Recommendations: in.Recommendations,
		RubricVersion:   rubricVersion,
		DurationSeconds: in.DurationSeconds,
	}
	if err := s.SubmissionRepo.CreateWithNextAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	logger.Log.Info("submission recorded",
		zap.String("learnerId", attempt.LearnerID),
		zap.Uint("labId", attempt.LabID),
		zap.Int("attempt", attempt.Attempt),
		zap.Float64("score", attempt.Score),
		zap.Bool("isPass", attempt.IsPass))
	return attempt, nil
}

// resolveRubricVersion 历史版本必须有快照，否则退回当前版本
func (s *LedgerService) resolveRubricVersion(ctx context.Context, lab *model.LabDefinition, version int) (int, error) {
	if version == 0 || version == lab.RubricVersion {
		return lab.RubricVersion, nil
	}
	snapshot, err := s.LabRepo.FindRubricVersion(ctx, lab.ID, version)
	if err != nil {
		return 0, err
	}
	if snapshot == nil {
		logger.Log.Warn("rubric 版本快照不存在，使用当前版本",
			zap.Uint("labId", lab.ID),
			zap.Int("requested", version),
			zap.Int("current", lab.RubricVersion))
		return lab.RubricVersion, nil
	}
	return snapshot.Version, nil
}

// History 按 attempt 升序
func (s *LedgerService) History(ctx context.Context, learnerID string, labNumber int, subject string) ([]model.SubmissionAttempt, error) {
	if err := s.validateLearner(learnerID); err != nil {
		return nil, err
	}
	lab, err := s.LookupLab(ctx, labNumber, subject)
	if err != nil {
		return nil, err
	}
	return s.SubmissionRepo.ListByLearnerAndLab(ctx, learnerID, lab.ID)
}

// Status 由历史推导：是否曾经通过 + 最近一次
func (s *LedgerService) Status(ctx context.Context, learnerID string, labNumber int, subject string) (*model.LabStatus, error) {
	attempts, err := s.History(ctx, learnerID, labNumber, subject)
	if err != nil {
		return nil, err
	}
	return DeriveStatus(attempts), nil
}

func DeriveStatus(attempts []model.SubmissionAttempt) *model.LabStatus {
	status := &model.LabStatus{Attempts: len(attempts)}
	for i := range attempts {
		if attempts[i].IsPass {
			status.EverPassed = true
		}
		if status.Latest == nil || attempts[i].Attempt > status.Latest.Attempt {
			status.Latest = &attempts[i]
		}
	}
	return status
}
