package lti

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// OAuth1Consumer 驗證與簽署 OAuth 1.0a HMAC-SHA1 請求
// LTI 1.0 launch 是帶簽章的 form POST，Basic Outcomes 成績回傳
// 則需要我們對外簽署，兩個方向共用同一組 consumer key/secret
type OAuth1Consumer struct {
	Key    string
	Secret string

	// MaxClockSkew 是 oauth_timestamp 允許的偏移，0 表示使用預設(15分鐘)
	MaxClockSkew time.Duration
}

const defaultMaxClockSkew = 15 * time.Minute

// percentEncode 依 RFC 3986 2.1(以及 RFC 5849 3.6)做百分號編碼
func percentEncode(s string) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// baseString 組出 RFC 5849 3.4.1 的 signature base string
func (c *OAuth1Consumer) baseString(method, rawURL string, params url.Values) string {
	// base string URI：scheme://host/path，預設的 port 要拿掉
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)
	if (u.Scheme == "http" && strings.HasSuffix(host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(host, ":443")) {
		host = host[:strings.LastIndex(host, ":")]
	}
	baseURL := strings.ToLower(u.Scheme) + "://" + host + u.Path

	// 參數正規化：除了 oauth_signature 以外的所有參數編碼後排序
	pairs := make([]string, 0, len(params))
	for key, values := range params {
		if key == "oauth_signature" {
			continue
		}
		for _, value := range values {
			pairs = append(pairs, percentEncode(key)+"="+percentEncode(value))
		}
	}
	sort.Strings(pairs)

	return strings.ToUpper(method) + "&" + percentEncode(baseURL) + "&" + percentEncode(strings.Join(pairs, "&"))
}

// signature 計算 HMAC-SHA1 簽章(沒有 token secret，key 以 & 結尾)
func (c *OAuth1Consumer) signature(method, rawURL string, params url.Values) string {
	mac := hmac.New(sha1.New, []byte(percentEncode(c.Secret)+"&"))
	mac.Write([]byte(c.baseString(method, rawURL, params)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify 驗證一個 form POST 的 OAuth1 簽章
// params 必須包含全部的 form 與 query 參數。簽章不符、consumer key 不符、
// timestamp 超出允許範圍都回傳 ErrInvalidSignature
func (c *OAuth1Consumer) Verify(method, rawURL string, params url.Values) error {
	if params.Get("oauth_consumer_key") != c.Key {
		return fmt.Errorf("%w: unknown consumer key", ErrInvalidSignature)
	}
	if params.Get("oauth_signature_method") != "HMAC-SHA1" {
		return fmt.Errorf("%w: unsupported signature method", ErrInvalidSignature)
	}
	if params.Get("oauth_nonce") == "" {
		return fmt.Errorf("%w: missing nonce", ErrInvalidSignature)
	}

	skew := c.MaxClockSkew
	if skew <= 0 {
		skew = defaultMaxClockSkew
	}
	ts, err := strconv.ParseInt(params.Get("oauth_timestamp"), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed timestamp", ErrInvalidSignature)
	}
	if diff := time.Since(time.Unix(ts, 0)); diff > skew || diff < -skew {
		return fmt.Errorf("%w: timestamp outside allowed window", ErrInvalidSignature)
	}

	provided := params.Get("oauth_signature")
	expected := c.signature(method, rawURL, params)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// Sign 對外呼請求加上 OAuth1 Authorization 標頭
// body hash 依 OAuth Body Hash 擴充計算，Basic Outcomes 的 XML POST 需要它
func (c *OAuth1Consumer) Sign(req *http.Request, body []byte, nonce string, now time.Time) {
	bodyHash := sha1.Sum(body)

	params := url.Values{}
	params.Set("oauth_consumer_key", c.Key)
	params.Set("oauth_signature_method", "HMAC-SHA1")
	params.Set("oauth_timestamp", strconv.FormatInt(now.Unix(), 10))
	params.Set("oauth_nonce", nonce)
	params.Set("oauth_version", "1.0")
	params.Set("oauth_body_hash", base64.StdEncoding.EncodeToString(bodyHash[:]))

	signature := c.signature(req.Method, req.URL.String(), params)
	params.Set("oauth_signature", signature)

	header := make([]string, 0, len(params))
	for key := range params {
		header = append(header, fmt.Sprintf("%s=%q", key, percentEncode(params.Get(key))))
	}
	sort.Strings(header)
	req.Header.Set("Authorization", "OAuth "+strings.Join(header, ", "))
}
