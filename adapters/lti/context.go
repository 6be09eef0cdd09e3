package lti

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Version 標記 launch 來自哪一代協定
type Version string

const (
	Version10 Version = "1.0"
	Version13 Version = "1.3"
)

// LaunchContext 是單次 launch 的正規化視圖
// 只活在單一請求內，頂多透過 launch store 撐過一次 OIDC redirect，
// 兩個協定的 adapter 都輸出這個型別，reconcile 只依賴它
type LaunchContext struct {
	Version  Version `msgpack:"version"`
	LaunchID string  `msgpack:"launch_id"`

	User       UserClaims       `msgpack:"user"`
	Course     CourseClaims     `msgpack:"course"`
	Assignment AssignmentClaims `msgpack:"assignment"`

	// GroupIDs 是 LMS 端分組(section)的識別碼
	GroupIDs []string `msgpack:"group_ids"`

	GradePassback GradePassbackClaims `msgpack:"grade_passback"`

	// NamesRoleService 是 NRPS 端點的原始 JSON(只有 1.3 會有)
	NamesRoleService string `msgpack:"names_role_service"`

	// TargetJournalID 是 gradebook deep link 指定的日誌，
	// 設定時會覆蓋「目前使用者自己的日誌」的預設查找
	TargetJournalID string `msgpack:"target_journal_id"`
}

// UserClaims 是 launch 中的使用者身份
type UserClaims struct {
	SubjectID      string   `msgpack:"subject_id"`
	Username       string   `msgpack:"username"`
	FullName       string   `msgpack:"full_name"`
	Email          string   `msgpack:"email"`
	ProfilePicture string   `msgpack:"profile_picture"`
	Roles          []string `msgpack:"roles"`
	IsTestStudent  bool     `msgpack:"is_test_student"`
}

// CourseClaims 是 launch 中的課程資訊
// LmsID 是有效的外部識別碼；SisID 是 custom claim 提供的第二識別碼，
// 用來在課程尚未綁定時找到 CRUD 端先建好的課程
type CourseClaims struct {
	LmsID        string     `msgpack:"lms_id"`
	SisID        string     `msgpack:"sis_id"`
	Title        string     `msgpack:"title"`
	Abbreviation string     `msgpack:"abbreviation"`
	Start        *time.Time `msgpack:"start"`
	End          *time.Time `msgpack:"end"`
}

// AssignmentClaims 是 launch 中的作業資訊
type AssignmentClaims struct {
	LmsID          string     `msgpack:"lms_id"`
	Title          string     `msgpack:"title"`
	Description    string     `msgpack:"description"`
	Unlock         *time.Time `msgpack:"unlock"`
	Due            *time.Time `msgpack:"due"`
	Lock           *time.Time `msgpack:"lock"`
	PointsPossible *float64   `msgpack:"points_possible"`
	Published      *bool      `msgpack:"published"`
}

// GradePassbackClaims 是成績回傳的座標
// OutcomeURL/Sourcedid 屬於 LTI 1.0 Basic Outcomes，
// GradesService 是 LTI 1.3 AGS 端點的原始 JSON
type GradePassbackClaims struct {
	OutcomeURL    string `msgpack:"outcome_url"`
	Sourcedid     string `msgpack:"sourcedid"`
	GradesService string `msgpack:"grades_service"`
}

// DeepLinkRequest 是 deep-linking 子流程的解析結果
// 這種 launch 不做 reconcile，直接回覆設定資源表單
type DeepLinkRequest struct {
	ReturnURL    string
	Data         string
	DeploymentID string
	Issuer       string
	ClientID     string
	Nonce        string
}

// ParseResult 是 adapter 的輸出：一般 launch 或 deep-linking 兩者擇一
type ParseResult struct {
	Launch   *LaunchContext
	DeepLink *DeepLinkRequest
}

// DetectTestStudent 依協定無關的啟發式判斷測試學生：launch 沒有 email claim。
// 名稱不在已知的測試學生詞彙內時只記警告，不影響請求
func DetectTestStudent(logger *slog.Logger, fullName, email string) bool {
	if email != "" {
		return false
	}
	known := lo.SomeBy(TestStudentFullNames, func(name string) bool {
		return strings.EqualFold(name, fullName)
	})
	if !known {
		logger.Warn("Unusual test student name encountered",
			slog.String("fullName", fullName),
		)
	}
	return true
}

// NormalizeProfilePicture 把平台預設頭像化約成「沒有頭像」
// 回傳空字串時呼叫端應保留本地既有的頭像
func NormalizeProfilePicture(picture string) string {
	if picture == "" || strings.Contains(picture, DefaultAvatarPathFragment) {
		return ""
	}
	return picture
}

// launch payload 裡常見的幾種日期格式
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate 盡力解析 LMS 提供的日期字串，解析不了回傳 nil
func ParseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// SplitList 切開 LMS 常用的逗號分隔清單欄位
func SplitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

// ParsePoints 解析滿分欄位
func ParsePoints(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	points, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &points
}

// ParseBool 解析 LMS 的布林欄位("true"/"false")
func ParseBool(raw string) *bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1":
		return lo.ToPtr(true)
	case "false", "0":
		return lo.ToPtr(false)
	}
	return nil
}
