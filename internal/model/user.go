package model

type UserRole string

const (
	Student   UserRole = "student"
	Professor UserRole = "professor"
	Admin     UserRole = "admin"
)

// User 由账户子系统维护，评分流程只使用其 ID
// swagger:model User
type User struct {
	UUIDBase
	Name         string   `gorm:"size:100;not null" json:"name"`
	Email        string   `gorm:"size:100;unique;not null" json:"email"`
	UniversityID string   `gorm:"size:36;index" json:"universityId"`
	Role         UserRole `gorm:"size:20;default:'student'" json:"role"`
}

func (User) TableName() string {
	return "users"
}
