package repository

import (
	"context"
	"errors"
	"skilllab_backend/internal/model"

	"gorm.io/gorm"
)

type LabRepository struct {
	DB *gorm.DB
}

func NewLabRepository(db *gorm.DB) *LabRepository {
	return &LabRepository{DB: db}
}

// FindByNumberAndSubject 未找到时返回 (nil, nil)
func (r *LabRepository) FindByNumberAndSubject(ctx context.Context, labNumber int, subject string) (*model.LabDefinition, error) {
	var lab model.LabDefinition
	err := r.DB.WithContext(ctx).
		Where("lab_number = ? AND subject = ?", labNumber, subject).
		First(&lab).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lab, nil
}

func (r *LabRepository) List(ctx context.Context) ([]model.LabDefinition, error) {
	var labs []model.LabDefinition
	err := r.DB.WithContext(ctx).Order("subject ASC, lab_number ASC").Find(&labs).Error
	return labs, err
}

func (r *LabRepository) FindRubricVersion(ctx context.Context, labID uint, version int) (*model.RubricVersion, error) {
	var rv model.RubricVersion
	err := r.DB.WithContext(ctx).Where("lab_id = ? AND version = ?", labID, version).First(&rv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rv, nil
}
