//go:generate mockgen -package=launchstore -destination=mock.go -source=interfaces.go

package launchstore

import (
	"context"

	"ejournal/adapters/lti"
)

// IStore 定義了 launch session 的操作介面
// 一筆 session 在收到 id-token 時寫入一次，在後續請求中讀取一次即銷毀，
// 讀不到(過期或不存在)視為協定錯誤，使用者必須從 LMS 重新發起 launch
type IStore interface {
	Put(ctx context.Context, launchID string, lc *lti.LaunchContext) error
	Take(ctx context.Context, launchID string) (*lti.LaunchContext, error)
}
