package lti

import (
	"crypto/rand"
	"crypto/rsa"
	"regexp"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDeepLinkResponse(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	req := &DeepLinkRequest{
		ReturnURL:    "https://lms.example.com/deep_link_return",
		Data:         "opaque-data",
		DeploymentID: "deployment-1",
		Issuer:       "https://lms.example.com",
		ClientID:     "client-1",
	}
	resource := DeepLinkResource{
		URL:   "https://tool.example.com/lti/launch13",
		Title: "eJournal",
	}

	html, err := BuildDeepLinkResponse(req, resource, key, "kid-1")
	require.NoError(t, err)

	// 回覆是自動送出的表單，action 指向平台的 return url
	assert.Contains(t, string(html), `action="https://lms.example.com/deep_link_return"`)
	assert.Contains(t, string(html), `document.getElementById("deep_link_response").submit()`)

	// 取出表單裡的 JWT 驗簽並檢查 content-items
	match := regexp.MustCompile(`name="JWT" value="([^"]+)"`).FindStringSubmatch(string(html))
	require.Len(t, match, 2)

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(match[1], claims, func(t *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	require.NoError(t, err)
	assert.Equal(t, "kid-1", token.Header["kid"])

	// iss/aud 和一般 launch 相反：工具是發行者，平台是受眾
	assert.Equal(t, "client-1", claims["iss"])
	audience, err := claims.GetAudience()
	require.NoError(t, err)
	assert.Contains(t, audience, "https://lms.example.com")

	assert.Equal(t, MessageTypeDeepLinkResp, claims[ClaimMessageType])
	assert.Equal(t, "deployment-1", claims[ClaimDeploymentID])
	assert.Equal(t, "opaque-data", claims[ClaimDeepLinkData])

	items, ok := claims[ClaimDeepLinkContent].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	item, ok := items[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ltiResourceLink", item["type"])
	assert.Equal(t, resource.URL, item["url"])
	assert.Equal(t, resource.Title, item["title"])
}

func TestBuildDeepLinkResponse_NoData(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	html, err := BuildDeepLinkResponse(&DeepLinkRequest{
		ReturnURL: "https://lms.example.com/return",
		Issuer:    "https://lms.example.com",
		ClientID:  "client-1",
	}, DeepLinkResource{URL: "https://tool.example.com/lti/launch13"}, key, "kid-1")
	require.NoError(t, err)

	match := regexp.MustCompile(`name="JWT" value="([^"]+)"`).FindStringSubmatch(string(html))
	require.Len(t, match, 2)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(match[1], claims, func(t *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	require.NoError(t, err)

	// request 沒給 data 時回覆也不該帶
	_, present := claims[ClaimDeepLinkData]
	assert.False(t, present)
}
