// 參考 https://www.imsglobal.org/spec/lti/v1p3 的 claim 命名空間
package lti

// LTI 1.3 的 claim 都掛在固定的 URI 底下，必須用常數查找，不能依位置讀取
//
// NOTE: 上游來源對同一個 URI 給了兩個名字：context 與 course 共用一個 claim、
// resource_link 與 assignment 也共用一個 claim。目前不確定這是平台的刻意行為
// 還是潛在的 bug，這裡保留同樣的對應並同時輸出兩組常數
const (
	ClaimMessageType  = "https://purl.imsglobal.org/spec/lti/claim/message_type"
	ClaimVersion      = "https://purl.imsglobal.org/spec/lti/claim/version"
	ClaimDeploymentID = "https://purl.imsglobal.org/spec/lti/claim/deployment_id"

	ClaimContext = "https://purl.imsglobal.org/spec/lti/claim/context"
	ClaimCourse  = ClaimContext

	ClaimResourceLink = "https://purl.imsglobal.org/spec/lti/claim/resource_link"
	ClaimAssignment   = ClaimResourceLink

	ClaimRoles  = "https://purl.imsglobal.org/spec/lti/claim/roles"
	ClaimCustom = "https://purl.imsglobal.org/spec/lti/claim/custom"
	ClaimLis    = "https://purl.imsglobal.org/spec/lti/claim/lis"

	ClaimNamesRoles        = "https://purl.imsglobal.org/spec/lti-nrps/claim/namesroleservice"
	ClaimGrades            = "https://purl.imsglobal.org/spec/lti-ags/claim/endpoint"
	ClaimAssignmentsGrades = ClaimGrades

	ClaimDeepLinkSettings = "https://purl.imsglobal.org/spec/lti-dl/claim/deep_linking_settings"
	ClaimDeepLinkContent  = "https://purl.imsglobal.org/spec/lti-dl/claim/content_items"
	ClaimDeepLinkData     = "https://purl.imsglobal.org/spec/lti-dl/claim/data"
)

// message_type 的值
const (
	MessageTypeResourceLink = "LtiResourceLinkRequest"
	MessageTypeDeepLinking  = "LtiDeepLinkingRequest"
	MessageTypeDeepLinkResp = "LtiDeepLinkingResponse"
)

// LTI 1.3 custom claim 內使用的欄位名稱(由工具在平台上設定的變數替換)
const (
	CustomUsername         = "username"
	CustomCourseID         = "course_id"
	CustomCourseStart      = "course_start"
	CustomCourseEnd        = "course_end"
	CustomAssignmentLtiID  = "assignment_lti_id"
	CustomAssignmentPoints = "assignment_points"
	CustomAssignmentPub    = "assignment_publish"
	CustomAssignmentUnlock = "assignment_unlock"
	CustomAssignmentDue    = "assignment_due"
	CustomAssignmentLock   = "assignment_lock"
	CustomSectionIDs       = "section_ids"
)

// Canvas 預設頭像的路徑片段，帶有這個片段的 picture claim 視為沒有頭像
const DefaultAvatarPathFragment = "/avatar-50.png"

// 已知的測試學生名稱，偵測到沒有 email 但名稱不在這裡時要發出完整性警告
var TestStudentFullNames = []string{"Test Student"}
