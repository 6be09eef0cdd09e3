package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Journal 代表使用者在某個作業上的日誌
// 每個 (UserID, AssignmentID) 最多一本，成績回傳以 Journal 為單位
type Journal struct {
	gorm.Model

	ID           uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	UserID       uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_journal_user_id_assignment_id,where:deleted_at IS NULL;not null;<-:create"`
	AssignmentID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_journal_user_id_assignment_id,where:deleted_at IS NULL;not null;<-:create"`

	Grade *float64

	User       *User       `gorm:"foreignKey:UserID"`
	Assignment *Assignment `gorm:"foreignKey:AssignmentID"`
	Entries    []Entry
}

// Entry 代表日誌內已提交的一筆記錄
// 只保留 reconcile 與成績回傳需要的最小欄位
type Entry struct {
	gorm.Model

	ID        uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	JournalID uuid.UUID `gorm:"type:uuid;not null;<-:create"`

	Grade    *float64
	IsGraded bool `gorm:"not null;default:false"`
}
