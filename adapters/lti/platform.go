package lti

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// PlatformConfig 是單一 LMS 平台(registration)的設定
// 啟動時載入後以值傳遞，不使用 module 層級的單例
type PlatformConfig struct {
	Issuer       string
	ClientID     string
	DeploymentID string

	// 平台端的 OIDC 端點
	AuthLoginURL string
	TokenURL     string
	JwksURL      string

	// 工具端的 RS256 私鑰，用於 deep-link 回覆與服務端存取權杖
	ToolPrivateKey *rsa.PrivateKey
	ToolKeyID      string
}

// Platform 包裝一個已註冊的 LMS 平台
// 驗證 inbound id-token、產生 OIDC 登入導向，以及取得
// NRPS/AGS 服務呼叫用的存取權杖
type Platform struct {
	cfg      PlatformConfig
	verifier *oidc.IDTokenVerifier
	client   *http.Client
}

// NewPlatform 建立平台包裝，金鑰集透過 JWKS URL 遠端載入並自動輪替
func NewPlatform(ctx context.Context, cfg PlatformConfig) (*Platform, error) {
	const op = "NewPlatform"
	if cfg.Issuer == "" || cfg.ClientID == "" || cfg.JwksURL == "" {
		return nil, fmt.Errorf("[%s] issuer, client id and jwks url are required", op)
	}
	keySet := oidc.NewRemoteKeySet(ctx, cfg.JwksURL)
	verifier := oidc.NewVerifier(cfg.Issuer, keySet, &oidc.Config{ClientID: cfg.ClientID})
	return &Platform{
		cfg:      cfg,
		verifier: verifier,
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Issuer 回傳平台的 issuer
func (p *Platform) Issuer() string { return p.cfg.Issuer }

// ClientID 回傳工具在平台上註冊的 client id
func (p *Platform) ClientID() string { return p.cfg.ClientID }

// DeploymentID 回傳註冊的 deployment id，空字串表示不檢查
func (p *Platform) DeploymentID() string { return p.cfg.DeploymentID }

// AuthRequestURL 產生 OIDC 登入導向(第三方起始登入的回應)
// LTI 1.3 規定 response_type=id_token、form_post、prompt=none
func (p *Platform) AuthRequestURL(state, nonce, loginHint, messageHint, redirectURI string) string {
	config := oauth2.Config{
		ClientID:    p.cfg.ClientID,
		Endpoint:    oauth2.Endpoint{AuthURL: p.cfg.AuthLoginURL},
		RedirectURL: redirectURI,
	}
	opts := []oauth2.AuthCodeOption{
		oidc.Nonce(nonce),
		oauth2.SetAuthURLParam("response_type", "id_token"),
		oauth2.SetAuthURLParam("response_mode", "form_post"),
		oauth2.SetAuthURLParam("scope", "openid"),
		oauth2.SetAuthURLParam("prompt", "none"),
		oauth2.SetAuthURLParam("login_hint", loginHint),
	}
	if messageHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("lti_message_hint", messageHint))
	}
	return config.AuthCodeURL(state, opts...)
}

// VerifyLaunch 驗證 inbound id-token 並比對 nonce
// 簽章、issuer、audience、效期交給 go-oidc 的 verifier 檢查
func (p *Platform) VerifyLaunch(ctx context.Context, rawIDToken, expectedNonce string) (*oidc.IDToken, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if expectedNonce != "" && idToken.Nonce != expectedNonce {
		return nil, ErrNonceMismatch
	}
	return idToken, nil
}

// NRPS/AGS 服務呼叫需要的 scope
var serviceScopes = []string{
	"https://purl.imsglobal.org/spec/lti-nrps/scope/contextmembership.readonly",
	"https://purl.imsglobal.org/spec/lti-ags/scope/score",
	"https://purl.imsglobal.org/spec/lti-ags/scope/lineitem.readonly",
}

// ServiceAccessToken 以 client_credentials + JWT assertion 換取服務存取權杖
// NRPS 名冊與 AGS 成績回傳的外呼都用它做 Bearer 認證
func (p *Platform) ServiceAccessToken(ctx context.Context) (string, error) {
	const op = "Platform.ServiceAccessToken"

	now := time.Now()
	assertion := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Issuer:    p.cfg.ClientID,
		Subject:   p.cfg.ClientID,
		Audience:  []string{p.cfg.TokenURL},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		ID:        uuid.NewString(),
	})
	assertion.Header["kid"] = p.cfg.ToolKeyID
	signed, err := assertion.SignedString(p.cfg.ToolPrivateKey)
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to sign client assertion, err=%w", op, err)
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_assertion_type", "urn:ietf:params:oauth:client-assertion-type:jwt-bearer")
	form.Set("client_assertion", signed)
	form.Set("scope", strings.Join(serviceScopes, " "))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to create token request, err=%w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to send token request, err=%w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &ExternalServiceError{Endpoint: p.cfg.TokenURL, StatusCode: resp.StatusCode}
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("[%s] Fail to decode token response, err=%w", op, err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("[%s] Token response missing access_token", op)
	}
	return body.AccessToken, nil
}
