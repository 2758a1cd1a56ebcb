package model

type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// SubmissionAttempt 一次评分记录，只追加不修改
// swagger:model SubmissionAttempt
type SubmissionAttempt struct {
	BaseModel

	LearnerID       string    `gorm:"size:36;not null;uniqueIndex:idx_learner_lab_attempt" json:"studentId"`
	LabID           uint      `gorm:"not null;uniqueIndex:idx_learner_lab_attempt;type:bigint unsigned" json:"labId"`
	Attempt         int       `gorm:"not null;uniqueIndex:idx_learner_lab_attempt" json:"attempt"`
	LabNumber       int       `json:"labNumber"`
	Subject         string    `gorm:"size:64" json:"subject"`
	FileURL         string    `gorm:"size:1024" json:"fileUrl"`
	FileType        MediaKind `gorm:"size:16" json:"fileType"`
	Transcript      string    `gorm:"type:text" json:"studentAnswer"`
	Score           float64   `json:"studentScore"`
	IsPass          bool      `gorm:"default:false" json:"isPass"`
	Pros            string    `gorm:"type:text" json:"pros"`
	Recommendations string    `gorm:"type:text" json:"recommendations"`
	RubricVersion   int       `json:"rubricVersion"`
	DurationSeconds float64   `json:"durationSeconds"`
}

func (SubmissionAttempt) TableName() string {
	return "submission_attempts"
}

// LabStatus 由历史记录推导，不单独存储
type LabStatus struct {
	EverPassed bool               `json:"everPassed"`
	Attempts   int                `json:"attempts"`
	Latest     *SubmissionAttempt `json:"latest,omitempty"`
}
