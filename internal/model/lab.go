package model

// LabDefinition 一个可评分的实验，(LabNumber, Subject) 唯一
// swagger:model LabDefinition
type LabDefinition struct {
	BaseModel

	LabNumber          int     `gorm:"uniqueIndex:idx_lab_subject;not null" json:"labNumber"`
	Subject            string  `gorm:"size:64;uniqueIndex:idx_lab_subject;not null" json:"subject"`
	DisplayName        string  `gorm:"size:255" json:"displayName"`
	RubricText         string  `gorm:"type:text" json:"-"`
	RubricInstructions string  `gorm:"type:text" json:"-"`
	RubricVersion      int     `gorm:"default:1" json:"rubricVersion"`
	PassThreshold      float64 `gorm:"default:60" json:"passThreshold"`
	StorageNamespace   string  `gorm:"size:128" json:"storageNamespace"`
}

func (LabDefinition) TableName() string {
	return "lab_definitions"
}

// IsPass 分数达到阈值即通过（含等于）
func (l *LabDefinition) IsPass(score float64) bool {
	return score >= l.PassThreshold
}

// RubricVersion 评分标准快照，用于历史成绩复核
// swagger:model RubricVersion
type RubricVersion struct {
	BaseModel

	LabID        uint   `gorm:"uniqueIndex:idx_lab_version;type:bigint unsigned" json:"labId"`
	Version      int    `gorm:"uniqueIndex:idx_lab_version" json:"version"`
	RubricText   string `gorm:"type:text" json:"rubricText"`
	Instructions string `gorm:"type:text" json:"instructions"`
}

func (RubricVersion) TableName() string {
	return "rubric_versions"
}
