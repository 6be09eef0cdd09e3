package lti

import (
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signedForm 以 consumer 的密鑰算好簽章，模擬平台送出的 launch form
func signedForm(consumer *OAuth1Consumer, method, rawURL string, extra url.Values) url.Values {
	form := url.Values{}
	form.Set("oauth_consumer_key", consumer.Key)
	form.Set("oauth_signature_method", "HMAC-SHA1")
	form.Set("oauth_timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	form.Set("oauth_nonce", "nonce-1")
	form.Set("oauth_version", "1.0")
	for key, values := range extra {
		for _, value := range values {
			form.Add(key, value)
		}
	}
	form.Set("oauth_signature", consumer.signature(method, rawURL, form))
	return form
}

func TestOAuth1Consumer_Verify(t *testing.T) {
	consumer := &OAuth1Consumer{Key: "key", Secret: "secret"}
	launchURL := "https://tool.example.com/lti/launch"

	tests := []struct {
		name    string
		mutate  func(form url.Values)
		wantErr bool
	}{
		{
			name:   "valid signature",
			mutate: func(form url.Values) {},
		},
		{
			name: "tampered parameter",
			mutate: func(form url.Values) {
				form.Set("user_id", "someone-else")
			},
			wantErr: true,
		},
		{
			name: "unknown consumer key",
			mutate: func(form url.Values) {
				form.Set("oauth_consumer_key", "other")
			},
			wantErr: true,
		},
		{
			name: "unsupported signature method",
			mutate: func(form url.Values) {
				form.Set("oauth_signature_method", "PLAINTEXT")
			},
			wantErr: true,
		},
		{
			name: "missing nonce",
			mutate: func(form url.Values) {
				form.Del("oauth_nonce")
			},
			wantErr: true,
		},
		{
			name: "stale timestamp",
			mutate: func(form url.Values) {
				form.Set("oauth_timestamp", strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10))
			},
			wantErr: true,
		},
		{
			name: "malformed timestamp",
			mutate: func(form url.Values) {
				form.Set("oauth_timestamp", "not-a-number")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := signedForm(consumer, http.MethodPost, launchURL, url.Values{
				"user_id": []string{"user-1"},
			})
			tt.mutate(form)

			err := consumer.Verify(http.MethodPost, launchURL, form)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSignature)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOAuth1Consumer_Verify_WrongSecret(t *testing.T) {
	launchURL := "https://tool.example.com/lti/launch"
	form := signedForm(&OAuth1Consumer{Key: "key", Secret: "other-secret"}, http.MethodPost, launchURL, nil)

	consumer := &OAuth1Consumer{Key: "key", Secret: "secret"}
	assert.ErrorIs(t, consumer.Verify(http.MethodPost, launchURL, form), ErrInvalidSignature)
}

func TestOAuth1Consumer_Verify_DefaultPortEquivalence(t *testing.T) {
	// base string URI 要拿掉預設 port，帶不帶 :443 算出的簽章必須一致
	consumer := &OAuth1Consumer{Key: "key", Secret: "secret"}
	form := signedForm(consumer, http.MethodPost, "https://tool.example.com:443/lti/launch", nil)
	assert.NoError(t, consumer.Verify(http.MethodPost, "https://tool.example.com/lti/launch", form))
}

func TestOAuth1Consumer_Sign(t *testing.T) {
	consumer := &OAuth1Consumer{Key: "key", Secret: "secret"}
	body := []byte("<xml>payload</xml>")

	req, err := http.NewRequest(http.MethodPost, "https://lms.example.com/outcomes", strings.NewReader(string(body)))
	require.NoError(t, err)
	consumer.Sign(req, body, "nonce-1", time.Now())

	header := req.Header.Get("Authorization")
	require.True(t, strings.HasPrefix(header, "OAuth "))
	assert.Contains(t, header, `oauth_consumer_key="key"`)
	assert.Contains(t, header, "oauth_signature=")

	hash := sha1.Sum(body)
	assert.Contains(t, header, percentEncode(base64.StdEncoding.EncodeToString(hash[:])))
}

func TestPercentEncode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abcABC123", "abcABC123"},
		{"-._~", "-._~"},
		{"a b", "a%20b"},
		{"100%", "100%25"},
		{"key=value&x", "key%3Dvalue%26x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, percentEncode(tt.in))
	}
}
