// Package lms 實作對 LMS 的外呼：NRPS 名冊、原生分組 API、AGS 與
// Basic Outcomes 成績回傳
package lms

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ejournal/adapters/lti"
)

type clientOptions struct {
	logger     *slog.Logger
	httpClient *http.Client
}

type ClientOption func(*clientOptions)

// WithClientLogger 設置日誌記錄器
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithClientHTTPClient 設置自定義的 HTTP client
func WithClientHTTPClient(httpClient *http.Client) ClientOption {
	return func(o *clientOptions) {
		o.httpClient = httpClient
	}
}

// Client 實現了 IClient
// apiBaseURL 是 LMS 原生 API 的根(例如 https://canvas.example.com)，
// consumer 用於 Basic Outcomes 的 OAuth1 簽章
type Client struct {
	apiBaseURL string
	consumer   *lti.OAuth1Consumer
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient 建立 LMS client
func NewClient(apiBaseURL string, consumer *lti.OAuth1Consumer, opts ...ClientOption) *Client {
	options := clientOptions{
		logger:     slog.Default(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Client{
		apiBaseURL: strings.TrimRight(apiBaseURL, "/"),
		consumer:   consumer,
		httpClient: options.httpClient,
		logger:     options.logger.With(slog.String("caller", "lms.Client")),
	}
}

// do 送出請求並檢查狀態碼，2xx 以外一律視為外部服務錯誤
func (c *Client) do(req *http.Request) ([]byte, error) {
	const op = "Client.do"

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to send request, err=%w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to read response body, err=%w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("LMS request failed",
			slog.String("url", req.URL.String()),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)),
		)
		return nil, &lti.ExternalServiceError{Endpoint: req.URL.String(), StatusCode: resp.StatusCode}
	}
	return body, nil
}
