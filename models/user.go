package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User 代表系統中的使用者
// Lti10ID 和 Lti13ID 分別保存 LTI 1.0 與 LTI 1.3 平台上的外部身份，
// 一旦綁定就不會再被修改，兩者各自在全系統內唯一
type User struct {
	gorm.Model

	ID       uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	Username string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_user_username,where:deleted_at IS NULL"`
	FullName string    `gorm:"type:varchar(255);not null"`
	Email    *string   `gorm:"type:varchar(255)"`

	// 外部身份，依協定版本分開保存
	Lti10ID *string `gorm:"type:text;uniqueIndex:idx_user_lti10_id,where:deleted_at IS NULL;column:lti10_id"`
	Lti13ID *string `gorm:"type:text;uniqueIndex:idx_user_lti13_id,where:deleted_at IS NULL;column:lti13_id"`

	ProfilePicture string `gorm:"type:text;not null;default:''"`

	// IsTeacher 是黏性欄位，一旦為 true 就不會因為後續 launch 的角色較低而被清掉
	IsTeacher bool `gorm:"not null;default:false"`

	// IsTestStudent 標記 LMS 的測試學生，每個課程最多保留一個
	IsTestStudent bool `gorm:"not null;default:false;<-:create"`

	// PasswordHash 為空字串代表不可用密碼(測試學生與尚未設定密碼的使用者)
	PasswordHash string `gorm:"type:text;not null;default:''"`

	LastLogin *time.Time
}

// HasUsablePassword 回報使用者是否設定過可登入的密碼
func (u *User) HasUsablePassword() bool {
	return u.PasswordHash != ""
}
