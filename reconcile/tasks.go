package reconcile

import (
	"github.com/google/uuid"

	"ejournal/adapters/lms"
	"ejournal/models"
)

// 背景任務用的 redis stream 名稱
const (
	RosterSyncStream    = "tasks:roster-sync"
	GradePassbackStream = "tasks:grade-passback"
)

// RosterSyncTask 要求對一個課程重跑名冊同步
type RosterSyncTask struct {
	CourseID uuid.UUID `msgpack:"course_id"`
}

// GradePassbackTask 要求把一本日誌的成績回傳到 LMS
// 任務本身不帶成績，worker 取當下的最新狀態，重送是安全的
type GradePassbackTask struct {
	JournalID uuid.UUID `msgpack:"journal_id"`
}

// ScoreForJournal 依日誌目前的狀態組出要發佈到 AGS 的成績
// 進度欄位由本地狀態推導：沒有任何記錄也沒有成績代表還沒開始，
// 有未評分的記錄代表等待人工評分，否則視為評分完成
func ScoreForJournal(journal *models.Journal, assignment *models.Assignment, user *models.User, submissionURL string) lms.Score {
	hasEntries := len(journal.Entries) > 0
	hasUngraded := false
	timestamp := journal.CreatedAt
	for _, entry := range journal.Entries {
		if !entry.IsGraded {
			hasUngraded = true
		}
		if entry.UpdatedAt.After(timestamp) {
			timestamp = entry.UpdatedAt
		}
	}

	score := lms.Score{
		ScoreGiven:     journal.Grade,
		ScoreMaximum:   &assignment.PointsPossible,
		Timestamp:      timestamp,
		SubmissionData: submissionURL,
	}
	if user.Lti13ID != nil {
		score.UserID = *user.Lti13ID
	}

	switch {
	case journal.Grade == nil && !hasEntries:
		score.ActivityProgress = lms.ActivityNoSubmission
		score.GradingProgress = lms.GradingNoSubmission
	case hasUngraded:
		score.ActivityProgress = lms.ActivityFinished
		score.GradingProgress = lms.GradingNeedsGrading
	default:
		score.ActivityProgress = lms.ActivityFinished
		score.GradingProgress = lms.GradingFinished
	}
	return score
}

// NormalizedGrade 把日誌成績換算成 Basic Outcomes 要求的 0..1 區間
func NormalizedGrade(journal *models.Journal, assignment *models.Assignment) *float64 {
	if journal.Grade == nil || assignment.PointsPossible <= 0 {
		return nil
	}
	normalized := *journal.Grade / assignment.PointsPossible
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}
	return &normalized
}
