package lti

import (
	"errors"
	"fmt"
)

// ErrProtocol 是所有協定層錯誤的基底
// 驗證失敗的請求不會留下任何已持久化的狀態
var (
	ErrProtocol = errors.New("lti protocol error")

	ErrInvalidSignature     = fmt.Errorf("%w: invalid oauth1 signature", ErrProtocol)
	ErrInvalidToken         = fmt.Errorf("%w: invalid id token", ErrProtocol)
	ErrNonceMismatch        = fmt.Errorf("%w: nonce mismatch", ErrProtocol)
	ErrStateMismatch        = fmt.Errorf("%w: state mismatch", ErrProtocol)
	ErrLaunchSessionExpired = fmt.Errorf("%w: launch session missing or expired", ErrProtocol)
	ErrUnknownMessageType   = fmt.Errorf("%w: unknown message type", ErrProtocol)
)

// MissingClaimError 代表必要的 claim/欄位不存在
type MissingClaimError struct {
	Claim string
}

func (e *MissingClaimError) Error() string {
	return fmt.Sprintf("lti protocol error: required claim %q is missing", e.Claim)
}

func (e *MissingClaimError) Unwrap() error {
	return ErrProtocol
}

// NewMissingClaimError 建立缺少必要 claim 的錯誤
func NewMissingClaimError(claim string) error {
	return &MissingClaimError{Claim: claim}
}

// ConflictError 代表本地實體已綁定到不同的 LMS 識別碼
// 這是操作者的設定錯誤，不屬於正常 launch 狀態之一
type ConflictError struct {
	Entity    string
	Bound     string
	Requested string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already linked to LMS id %q, refusing to relink to %q", e.Entity, e.Bound, e.Requested)
}

// ExternalServiceError 代表對 LMS 的外呼(名冊、成績回傳)收到非 2xx 回應
// 對 launch 本身不致命，已套用的本地更新不會回滾
type ExternalServiceError struct {
	Endpoint   string
	StatusCode int
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("lms request to %s failed with status %d", e.Endpoint, e.StatusCode)
}
