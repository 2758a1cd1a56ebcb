package repository

import (
	"context"
	"errors"
	"fmt"
	"skilllab_backend/internal/model"

	"gorm.io/gorm"
)

// 并发提交导致唯一索引冲突时的最大重试次数
const maxAttemptNumberRetries = 5

type SubmissionRepository struct {
	DB *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{DB: db}
}

func (r *SubmissionRepository) CountByLearnerAndLab(ctx context.Context, learnerID string, labID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.SubmissionAttempt{}).
		Where("learner_id = ? AND lab_id = ?", learnerID, labID).
		Count(&count).Error
	return count, err
}

// CreateWithNextAttempt 在同一事务里统计已有次数并插入 count+1。
// (learner_id, lab_id, attempt) 有唯一索引，冲突时重新计数重试。
func (r *SubmissionRepository) CreateWithNextAttempt(ctx context.Context, attempt *model.SubmissionAttempt) error {
	var lastErr error
	for i := 0; i < maxAttemptNumberRetries; i++ {
		err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var count int64
			if err := tx.Model(&model.SubmissionAttempt{}).
				Where("learner_id = ? AND lab_id = ?", attempt.LearnerID, attempt.LabID).
				Count(&count).Error; err != nil {
				return err
			}
			attempt.ID = 0
			attempt.Attempt = int(count) + 1
			return tx.Create(attempt).Error
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("assign attempt number after %d tries: %w", maxAttemptNumberRetries, lastErr)
}

// ListByLearnerAndLab 按 attempt 升序
func (r *SubmissionRepository) ListByLearnerAndLab(ctx context.Context, learnerID string, labID uint) ([]model.SubmissionAttempt, error) {
	var attempts []model.SubmissionAttempt
	err := r.DB.WithContext(ctx).
		Where("learner_id = ? AND lab_id = ?", learnerID, labID).
		Order("attempt ASC").
		Find(&attempts).Error
	return attempts, err
}
