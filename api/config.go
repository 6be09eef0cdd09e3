package api

import (
	"crypto/ed25519"
	"crypto/rsa"
	"time"
)

type ServerConfig struct {
	// ID 是這個行程在 consumer group 裡的名字
	ID string

	// BaseLink 是前端的根網址，launch 結束後跳轉到 {BaseLink}/LtiLogin
	BaseLink string
	// ToolBaseURL 是本服務對外的根網址，OIDC redirect_uri 與 deep link 都以它組出
	ToolBaseURL string

	Lti10    Lti10Config
	Platform PlatformConfig
	Auth     AuthConfig
	Lms      LmsConfig
	DB       DBConfig
	Redis    RedisConfig
}

// Lti10Config 是 LTI 1.0 的共享密鑰
type Lti10Config struct {
	ConsumerKey    string
	ConsumerSecret string
}

// PlatformConfig 是 LTI 1.3 平台的註冊資訊
// 對應 LMS 管理端上的單一 tool registration
type PlatformConfig struct {
	Issuer       string
	ClientID     string
	DeploymentID string
	AuthLoginURL string
	TokenURL     string
	JwksURL      string

	ToolPrivateKey *rsa.PrivateKey
	ToolKeyID      string
}

// AuthConfig 是簽發給前端的權杖設定
type AuthConfig struct {
	PrivateKey ed25519.PrivateKey
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// LmsConfig 是 LMS 原生 API 的位置(分組同步用)
type LmsConfig struct {
	APIBaseURL string
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string

	ConsumerGroup string
}
