package lti

import (
	"bytes"
	"crypto/rsa"
	"fmt"
	"html/template"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// deep-link 回覆是一個自動送出的 HTML 表單，把簽好的 JWT POST 回平台
var deepLinkFormTemplate = template.Must(template.New("deeplink").Parse(`<!DOCTYPE html>
<html>
<body>
<form id="deep_link_response" action="{{.ReturnURL}}" method="POST">
<input type="hidden" name="JWT" value="{{.JWT}}"/>
</form>
<script>document.getElementById("deep_link_response").submit();</script>
</body>
</html>
`))

// DeepLinkResource 是回覆給平台的單一設定資源
// LMS 操作者把工具掛上作業時,平台會用這個 launch URL 發起後續 launch
type DeepLinkResource struct {
	URL   string
	Title string
}

// BuildDeepLinkResponse 產生 deep-linking 回覆表單
// content-items JWT 由工具私鑰以 RS256 簽署，iss/aud 和一般 launch 相反
func BuildDeepLinkResponse(req *DeepLinkRequest, resource DeepLinkResource, key *rsa.PrivateKey, keyID string) ([]byte, error) {
	const op = "BuildDeepLinkResponse"

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   req.ClientID,
		"aud":   []string{req.Issuer},
		"iat":   now.Unix(),
		"exp":   now.Add(5 * time.Minute).Unix(),
		"nonce": uuid.NewString(),

		ClaimMessageType:  MessageTypeDeepLinkResp,
		ClaimVersion:      "1.3.0",
		ClaimDeploymentID: req.DeploymentID,
		ClaimDeepLinkContent: []map[string]any{
			{
				"type":  "ltiResourceLink",
				"url":   resource.URL,
				"title": resource.Title,
			},
		},
	}
	// data 是平台在 request 裡給的不透明值，必須原樣帶回
	if req.Data != "" {
		claims[ClaimDeepLinkData] = req.Data
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keyID
	signed, err := token.SignedString(key)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to sign deep link response, err=%w", op, err)
	}

	var buf bytes.Buffer
	if err := deepLinkFormTemplate.Execute(&buf, map[string]string{
		"ReturnURL": req.ReturnURL,
		"JWT":       signed,
	}); err != nil {
		return nil, fmt.Errorf("[%s] Fail to render response form, err=%w", op, err)
	}
	return buf.Bytes(), nil
}
