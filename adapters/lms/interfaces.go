//go:generate mockgen -package=lms -destination=mock.go -source=interfaces.go

package lms

import "context"

// IClient 定義了對 LMS 外呼的操作介面
// 名冊同步與成績回傳都走這裡，HTTP 細節不外漏到 reconcile
type IClient interface {
	// FetchMembers 透過 NRPS 取得課程成員清單
	FetchMembers(ctx context.Context, serviceRaw, accessToken string) ([]Member, error)
	// FetchSections 透過 LMS 原生 API 取得課程分組與組內學生
	FetchSections(ctx context.Context, courseLmsID, accessToken string) ([]Section, error)
	// PublishScore 透過 AGS 發佈一筆成績
	PublishScore(ctx context.Context, serviceRaw, accessToken string, score Score) error
	// ReplaceResult 透過 Basic Outcomes 回傳一筆成績(LTI 1.0 課程用)
	ReplaceResult(ctx context.Context, outcomeURL, sourcedid string, score *float64) error
}
