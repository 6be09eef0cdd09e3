package lti

import (
	"log/slog"
	"net/url"

	"github.com/google/uuid"
)

// Adapter10 解析 LTI 1.0 launch(OAuth1 簽章的 form POST)
type Adapter10 struct {
	consumer *OAuth1Consumer
	logger   *slog.Logger
}

// NewAdapter10 建立 LTI 1.0 adapter
func NewAdapter10(consumerKey, consumerSecret string, logger *slog.Logger) *Adapter10 {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter10{
		consumer: &OAuth1Consumer{Key: consumerKey, Secret: consumerSecret},
		logger:   logger.With(slog.String("caller", "lti.Adapter10")),
	}
}

// Parse 驗證簽章並把 form 參數正規化成 LaunchContext
// 簽章不符或缺少必要欄位時回傳協定錯誤，不會留下任何狀態
func (a *Adapter10) Parse(method, rawURL string, form url.Values) (*ParseResult, error) {
	if err := a.consumer.Verify(method, rawURL, form); err != nil {
		return nil, err
	}

	// 必要欄位
	for _, field := range []string{"user_id", "custom_username"} {
		if form.Get(field) == "" {
			return nil, NewMissingClaimError(field)
		}
	}

	email := form.Get("custom_user_email")
	fullName := form.Get("custom_user_full_name")

	// 課程/作業識別碼優先用 custom 欄位，回退到標準欄位
	courseID := form.Get("custom_course_id")
	if courseID == "" {
		courseID = form.Get("context_id")
	}
	assignmentID := form.Get("custom_assignment_id")
	if assignmentID == "" {
		assignmentID = form.Get("resource_link_id")
	}
	if courseID == "" {
		return nil, NewMissingClaimError("custom_course_id")
	}
	if assignmentID == "" {
		return nil, NewMissingClaimError("custom_assignment_id")
	}

	// 分組是逗號分隔的 custom 欄位
	groupIDs := SplitList(form.Get("custom_section_id"))

	lc := &LaunchContext{
		Version:  Version10,
		LaunchID: uuid.NewString(),
		User: UserClaims{
			SubjectID:      form.Get("user_id"),
			Username:       form.Get("custom_username"),
			FullName:       fullName,
			Email:          email,
			ProfilePicture: NormalizeProfilePicture(form.Get("custom_user_image")),
			Roles:          SplitLegacyRoles(form.Get("roles")),
			IsTestStudent:  DetectTestStudent(a.logger, fullName, email),
		},
		Course: CourseClaims{
			LmsID:        courseID,
			Title:        form.Get("custom_course_name"),
			Abbreviation: form.Get("context_label"),
			Start:        ParseDate(form.Get("custom_course_start")),
			End:          ParseDate(form.Get("custom_course_end")),
		},
		Assignment: AssignmentClaims{
			LmsID:          assignmentID,
			Title:          form.Get("custom_assignment_title"),
			Unlock:         ParseDate(form.Get("custom_assignment_unlock")),
			Due:            ParseDate(form.Get("custom_assignment_due")),
			Lock:           ParseDate(form.Get("custom_assignment_lock")),
			PointsPossible: ParsePoints(form.Get("custom_assignment_points")),
			Published:      ParseBool(form.Get("custom_assignment_publish")),
		},
		GroupIDs: groupIDs,
		GradePassback: GradePassbackClaims{
			OutcomeURL: form.Get("lis_outcome_service_url"),
			Sourcedid:  form.Get("lis_result_sourcedid"),
		},
		TargetJournalID: form.Get("custom_submission_id"),
	}

	return &ParseResult{Launch: lc}, nil
}
