package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 阿里云默认设置
const (
	DefaultAliyunEndpoint = "https://ocr-api.cn-hangzhou.aliyuncs.com"
	DefaultAliyunAction   = "RecognizeGeneralStructure"
	DefaultTimeout        = 10 * time.Second
	DefaultMaxRetries     = 2

	ProviderAliyun = "aliyun"
)

// AliyunClient 阿里云OCR客户端，直接构造签名的RPC请求
type AliyunClient struct {
	accessKeyID     string
	accessKeySecret string
	endpoint        string
	action          string
	timeout         time.Duration
	maxRetries      int
	httpClient      *http.Client
	sleep           Sleeper
	now             func() time.Time
	nonce           func() string
	logger          *zap.Logger
}

// ClientOption 客户端选项，阿里云和腾讯云客户端共用
type ClientOption func(*clientOptions)

type clientOptions struct {
	endpoint   string
	action     string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client
	sleep      Sleeper
	now        func() time.Time
	nonce      func() string
}

// WithEndpoint 设置服务地址
func WithEndpoint(endpoint string) ClientOption {
	return func(o *clientOptions) {
		if endpoint != "" {
			o.endpoint = strings.TrimRight(endpoint, "/")
		}
	}
}

// WithAction 设置调用的接口名
func WithAction(action string) ClientOption {
	return func(o *clientOptions) {
		if action != "" {
			o.action = action
		}
	}
}

// WithTimeout 设置单次请求超时
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMaxRetries 设置最多尝试次数
func WithMaxRetries(n int) ClientOption {
	return func(o *clientOptions) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithHTTPClient 使用自定义HTTP客户端
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithSleep 替换重试等待函数
func WithSleep(s Sleeper) ClientOption {
	return func(o *clientOptions) {
		if s != nil {
			o.sleep = s
		}
	}
}

// WithClock 替换签名时间戳的时钟
func WithClock(now func() time.Time) ClientOption {
	return func(o *clientOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithNonce 替换签名随机串生成器
func WithNonce(nonce func() string) ClientOption {
	return func(o *clientOptions) {
		if nonce != nil {
			o.nonce = nonce
		}
	}
}

func newNonce() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func buildOptions(defaultEndpoint string, opts []ClientOption) clientOptions {
	o := clientOptions{
		endpoint:   defaultEndpoint,
		action:     DefaultAliyunAction,
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		httpClient: &http.Client{},
		sleep:      contextSleep,
		now:        time.Now,
		nonce:      newNonce,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewAliyunClient 创建阿里云OCR客户端，缺少凭证时返回 *ConfigurationError
func NewAliyunClient(accessKeyID, accessKeySecret string, logger *zap.Logger, opts ...ClientOption) (*AliyunClient, error) {
	var missing []string
	if accessKeyID == "" {
		missing = append(missing, "access_key_id")
	}
	if accessKeySecret == "" {
		missing = append(missing, "access_key_secret")
	}
	if len(missing) > 0 {
		return nil, &ConfigurationError{Provider: ProviderAliyun, Missing: missing}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := buildOptions(DefaultAliyunEndpoint, opts)
	return &AliyunClient{
		accessKeyID:     accessKeyID,
		accessKeySecret: accessKeySecret,
		endpoint:        o.endpoint,
		action:          o.action,
		timeout:         o.timeout,
		maxRetries:      o.maxRetries,
		httpClient:      o.httpClient,
		sleep:           o.sleep,
		now:             o.now,
		nonce:           o.nonce,
		logger:          logger.With(zap.String("provider", ProviderAliyun)),
	}, nil
}

// Recognize 识别文档图像中的文字。
// 服务端或网络失败时返回 Success=false 的结果，只有上下文取消才返回错误。
func (c *AliyunClient) Recognize(ctx context.Context, buf []byte, mime string) (*RecognitionResult, error) {
	c.logger.Info("开始OCR识别", zap.String("mime", mime), zap.Int("size", len(buf)))

	r := &retrier{maxRetries: c.maxRetries, sleep: c.sleep, logger: c.logger}
	var resp *aliyunResponse
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.call(ctx, buf)
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return failure(ProviderAliyun, fmt.Sprintf("OCR请求失败: %v", err)), nil
	}

	result := &RecognitionResult{
		Provider:    ProviderAliyun,
		RequestID:   resp.RequestID,
		RawResponse: resp.Data,
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		result.Error = "OCR响应中没有数据"
		return result, nil
	}

	var data aliyunData
	if err := decodeMaybeString(resp.Data, &data); err != nil {
		result.Error = fmt.Sprintf("解析OCR数据失败: %v", err)
		return result, nil
	}

	result.Text = data.text()
	if result.Text == "" {
		result.Error = "OCR响应中没有文字内容"
		c.logger.Warn("OCR未返回文字", zap.String("requestId", resp.RequestID))
		return result, nil
	}

	result.Success = true
	c.logger.Info("OCR识别成功", zap.String("requestId", resp.RequestID), zap.Int("length", len(result.Text)))
	return result, nil
}

// call 发起一次签名请求
func (c *AliyunClient) call(ctx context.Context, buf []byte) (*aliyunResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := CommonParams(c.action, c.accessKeyID, c.nonce(), c.now())
	url := c.endpoint + "/?" + signedQuery(http.MethodPost, params, c.accessKeySecret)

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("创建请求错误: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err, c.timeout)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(err, c.timeout)
	}
	return parseAliyunResponse(resp.StatusCode, body)
}

// parseAliyunResponse 即使HTTP状态为200，错误也可能出现在响应体的 Code 中
func parseAliyunResponse(status int, body []byte) (*aliyunResponse, error) {
	var parsed aliyunResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &APIError{
			Code:       CodeParseError,
			Message:    fmt.Sprintf("响应解析失败: %s", truncate(string(body), 200)),
			HTTPStatus: status,
		}
	}

	if parsed.Code != "" && parsed.Code != "200" {
		msg := parsed.Message
		if msg == "" {
			msg = "未知错误"
		}
		return nil, newAPIError(string(parsed.Code), msg, parsed.RequestID, status)
	}

	if status < 200 || status >= 300 {
		return nil, newAPIError(fmt.Sprintf("HTTP_%d", status), fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)), parsed.RequestID, status)
	}
	return &parsed, nil
}

// transportError 把网络层错误映射为错误码
func transportError(err error, timeout time.Duration) *APIError {
	var (
		dnsErr *net.DNSError
		apiErr *APIError
	)
	switch {
	case errors.As(err, &dnsErr) && dnsErr.IsNotFound:
		apiErr = newAPIError(CodeNotFound, err.Error(), "", 0)
	case errors.Is(err, syscall.ECONNRESET):
		apiErr = newAPIError(CodeConnReset, err.Error(), "", 0)
	case errors.Is(err, syscall.ETIMEDOUT):
		apiErr = newAPIError(CodeTimedOut, err.Error(), "", 0)
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		apiErr = newAPIError(CodeRequestTimeout, fmt.Sprintf("请求超时(%v)", timeout), "", 0)
	default:
		apiErr = newAPIError(CodeNetworkError, fmt.Sprintf("请求失败: %v", err), "", 0)
	}
	apiErr.Cause = err
	return apiErr
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
