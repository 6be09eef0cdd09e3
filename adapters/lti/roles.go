package lti

import "strings"

// LIS v2 角色 URI，LTI 1.3 的 roles claim 直接使用這些值
const (
	RoleURITeacher   = "http://purl.imsglobal.org/vocab/lis/v2/membership#Instructor"
	RoleURIStudent   = "http://purl.imsglobal.org/vocab/lis/v2/membership#Learner"
	RoleURITA        = "http://purl.imsglobal.org/vocab/lis/v2/membership/Instructor#TeachingAssistant"
	RoleURIAdmin     = "http://purl.imsglobal.org/vocab/lis/v2/membership#Administrator"
	RoleURIAdminInst = "http://purl.imsglobal.org/vocab/lis/v2/institution/person#Administrator"
)

// Role 是本地的角色詞彙
type Role string

const (
	RoleTeacher Role = "Teacher"
	RoleTA      Role = "TA"
	RoleStudent Role = "Student"
)

// 正規化後的角色名稱分組
// LTI 1.0 的角色是逗號分隔的 URN(只看最後一段)，LTI 1.3 是完整 URI，
// normalizeRole 把兩種寫法都化約成小寫的簡單名稱後再比對
var (
	teacherRoleNames = map[string]struct{}{
		"instructor":    {},
		"teacher":       {},
		"administrator": {},
	}
	taRoleNames = map[string]struct{}{
		"teachingassistant": {},
		"ta":                {},
	}
	studentRoleNames = map[string]struct{}{
		"learner": {},
		"student": {},
		"member":  {},
		"user":    {},
	}
)

// normalizeRole 取 URN/URI 的最後一段(先切 '/'，再切 '#')並轉小寫
func normalizeRole(role string) string {
	role = strings.TrimSpace(role)
	if i := strings.LastIndex(role, "/"); i >= 0 {
		role = role[i+1:]
	}
	if i := strings.LastIndex(role, "#"); i >= 0 {
		role = role[i+1:]
	}
	return strings.ToLower(role)
}

// MapRoles 把 LMS 提供的角色字串集合映射到本地角色
// 優先序為 Teacher > TA > Student；機構管理員視為 Teacher。
// 回傳的第二個值代表是否有任何角色被辨識出來，呼叫端應在
// 集合非空但完全無法辨識時發出警告(仍然回傳 Student，不視為錯誤)
func MapRoles(roles []string) (Role, bool) {
	recognized := false
	result := RoleStudent

	for _, raw := range roles {
		name := normalizeRole(raw)
		if _, ok := teacherRoleNames[name]; ok {
			return RoleTeacher, true
		}
		if _, ok := taRoleNames[name]; ok {
			recognized = true
			result = RoleTA
			continue
		}
		if _, ok := studentRoleNames[name]; ok {
			recognized = true
		}
	}

	return result, recognized
}

// IsTeacherLaunch 回報這次 launch 的角色是否映射為 Teacher
func IsTeacherLaunch(roles []string) bool {
	role, _ := MapRoles(roles)
	return role == RoleTeacher
}

// SplitLegacyRoles 解析 LTI 1.0 逗號分隔的 roles 欄位
// 值保持原樣(完整 URN)，正規化交給 MapRoles
func SplitLegacyRoles(raw string) []string {
	return SplitList(raw)
}
