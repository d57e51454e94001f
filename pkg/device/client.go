// Package device 是访问ESP设备HTTP API的唯一出口。
package device

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultUserAgent 标识本服务的客户端头
const DefaultUserAgent = "pc-power-app/1.0"

// 设备响应很短，超出部分截断并记录告警
const maxBodyBytes = 64 << 10

// Client 设备代理
type Client struct {
	baseURL       string
	authorization string
	userAgent     string
	timeout       time.Duration
	httpClient    *http.Client
}

// Option 客户端可选项
type Option func(*Client)

// WithHTTPClient 替换底层http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent 覆盖User-Agent
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient 创建设备代理；token可以是裸token，也可以是带scheme的完整Authorization值
func NewClient(baseURL, token string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		authorization: formatAuthorization(token),
		userAgent:     DefaultUserAgent,
		timeout:       timeout,
		httpClient:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func formatAuthorization(token string) string {
	token = strings.TrimSpace(token)
	if token == "" || strings.Contains(token, " ") {
		return token
	}
	return "Bearer " + token
}

// Call 请求设备。任何传输错误或非2xx状态都转换为 Unavailable()，只在本地记录日志。
// 请求不随调用方取消，只受自身超时约束。
func (c *Client) Call(ctx context.Context, path, method string) Outcome {
	logger := logrus.WithContext(ctx).WithFields(logrus.Fields{
		"path":   path,
		"method": method,
	})

	text, err := c.do(ctx, path, method)
	if err != nil {
		logger.WithError(err).Warn("[设备代理] 请求设备失败")
		return Unavailable()
	}

	logger.Debugf("[设备代理] 设备响应: %q", text)
	return Available(text)
}

func (c *Client) do(ctx context.Context, path, method string) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if c.authorization != "" {
		req.Header.Set("Authorization", c.authorization)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return "", fmt.Errorf("读取响应失败: %w", err)
	}
	if len(body) > maxBodyBytes {
		body = body[:maxBodyBytes]
		logrus.WithContext(ctx).WithFields(logrus.Fields{
			"path":  path,
			"limit": maxBodyBytes,
		}).Warn("[设备代理] 设备响应超出长度上限，已截断")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("请求失败，状态码: %d, 响应: %s", resp.StatusCode, string(body))
	}

	return string(body), nil
}
