package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 本地角色詞彙，LMS 提供的角色字串會被映射到這三個值之一
const (
	RoleTeacher = "Teacher"
	RoleTA      = "TA"
	RoleStudent = "Student"
)

// Participation 連結使用者與課程
// 角色可以隨著每次 launch 更新(與黏性的 User.IsTeacher 不同)，
// GradeURL/Sourcedid 是 LTI 1.0 成績回傳的座標，由 launch 時寫入
type Participation struct {
	gorm.Model

	ID       uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	UserID   uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_participation_user_id_course_id,where:deleted_at IS NULL;not null;<-:create"`
	CourseID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_participation_user_id_course_id,where:deleted_at IS NULL;not null;<-:create"`
	Role     string    `gorm:"type:varchar(32);not null;default:'Student'"`

	GradeURL  *string `gorm:"type:text"`
	Sourcedid *string `gorm:"type:text"`

	User   *User   `gorm:"foreignKey:UserID"`
	Course *Course `gorm:"foreignKey:CourseID"`
	Groups []Group `gorm:"many2many:group_participations;"`
}
