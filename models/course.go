package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Course 代表一個課程
// ActiveLmsID 是課程在 LMS 上的識別碼，最多只會被設定一次，
// 之後就不可變更；嘗試綁定到不同的 LMS 課程視為設定錯誤
type Course struct {
	gorm.Model

	ID           uuid.UUID  `gorm:"type:uuid;primaryKey;<-:create"`
	Name         string     `gorm:"type:varchar(255);not null"`
	Abbreviation string     `gorm:"type:varchar(32);not null;default:''"`
	StartDate    *time.Time
	EndDate      *time.Time

	ActiveLmsID *string `gorm:"type:text;uniqueIndex:idx_course_active_lms_id,where:deleted_at IS NULL"`

	// LmsCourseID 是 LMS 原生的課程編號(custom claim 提供)
	// 課程尚未綁定時用它找到 CRUD 端先建好的課程，名冊同步也用它打分組 API
	LmsCourseID *string `gorm:"type:text"`

	// NamesRoleService 保存 NRPS 端點的原始 JSON，供名冊同步使用
	NamesRoleService *string `gorm:"type:text"`

	AuthorID *uuid.UUID `gorm:"type:uuid"`
	Author   *User      `gorm:"foreignKey:AuthorID"`
}
