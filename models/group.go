package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Group 代表課程內由 LMS 名冊同步出來的分組
// (LmsID, CourseID) 在未刪除的資料列中唯一
type Group struct {
	gorm.Model

	ID       uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	Name     string    `gorm:"type:varchar(255);not null"`
	LmsID    string    `gorm:"type:text;uniqueIndex:idx_group_lms_id_course_id,where:deleted_at IS NULL;not null;<-:create"`
	CourseID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_group_lms_id_course_id,where:deleted_at IS NULL;not null;<-:create"`

	Course       *Course         `gorm:"foreignKey:CourseID"`
	Participants []Participation `gorm:"many2many:group_participations;"`
}
