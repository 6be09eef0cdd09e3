package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Assignment 代表課程內的一個作業
// ActiveLmsID 在所有作業間唯一，作業的日期與發佈狀態可以由 LMS 端更新，
// 但 reconcile 時只允許不會破壞本地評分設定的更新
type Assignment struct {
	gorm.Model

	ID          uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	Name        string    `gorm:"type:varchar(255);not null"`
	Description string    `gorm:"type:text;not null;default:''"`

	ActiveLmsID *string `gorm:"type:text;uniqueIndex:idx_assignment_active_lms_id,where:deleted_at IS NULL"`

	PointsPossible float64 `gorm:"not null;default:0"`
	IsPublished    bool    `gorm:"not null;default:false"`

	UnlockDate *time.Time
	DueDate    *time.Time
	LockDate   *time.Time

	// GradesService 保存 AGS 端點的原始 JSON，切回 LTI 1.0 時會被清空
	GradesService *string `gorm:"type:text"`

	CourseID uuid.UUID `gorm:"type:uuid;not null;<-:create"`
	Course   *Course   `gorm:"foreignKey:CourseID"`

	PresetNodes []PresetNode
}

// PresetNode 代表作業內已設定的期限節點(例如進度截止點)
// 作業的 due/lock date 不可以縮到比任何節點更早
type PresetNode struct {
	gorm.Model

	ID           uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	AssignmentID uuid.UUID `gorm:"type:uuid;not null;<-:create"`

	UnlockDate *time.Time
	DueDate    *time.Time
	LockDate   *time.Time
}
