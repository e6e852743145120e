package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// 传输层错误码
const (
	CodeConnReset      = "ECONNRESET"
	CodeTimedOut       = "ETIMEDOUT"
	CodeNotFound       = "ENOTFOUND"
	CodeRequestTimeout = "RequestTimeout"
	CodeNetworkError   = "NetworkError"
	CodeParseError     = "ParseError"
)

var retryableCodes = map[string]struct{}{
	CodeConnReset:      {},
	CodeTimedOut:       {},
	CodeNotFound:       {},
	CodeRequestTimeout: {},
	CodeNetworkError:   {},
}

// 服务端限流类错误码包含这些片段
var throttlingMarkers = []string{"Throttling", "QpsLimit", "LimitExceeded"}

// APIError OCR服务调用失败
type APIError struct {
	Code       string
	Message    string
	RequestID  string
	HTTPStatus int
	Retryable  bool
	Cause      error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("OCR服务错误 [%s]: %s", e.Code, e.Message)
	if e.RequestID != "" {
		msg += fmt.Sprintf(" (RequestId: %s)", e.RequestID)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// ConfigurationError 凭证等配置缺失，不会重试
type ConfigurationError struct {
	Provider string
	Missing  []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s OCR 配置缺失: %s", e.Provider, strings.Join(e.Missing, ", "))
}

// IsRetryable 返回 APIError 上的 Retryable 标记，其他错误一律不重试
func IsRetryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Retryable
}

// retryableCode 网络类错误、5xx 以及限流可以重试，响应体无法解析时不重试
func retryableCode(code string, status int) bool {
	if code == CodeParseError {
		return false
	}
	if _, ok := retryableCodes[code]; ok {
		return true
	}
	if status >= 500 && status < 600 {
		return true
	}
	for _, m := range throttlingMarkers {
		if strings.Contains(code, m) {
			return true
		}
	}
	return false
}

// newAPIError 构造服务端错误并按错误码判定是否可重试
func newAPIError(code, message, requestID string, status int) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		RequestID:  requestID,
		HTTPStatus: status,
		Retryable:  retryableCode(code, status),
	}
}

// Unconfigured 凭证缺失时占位的识别器，每次调用都返回配置错误
type Unconfigured struct {
	Err *ConfigurationError
}

// Recognize 总是返回配置错误
func (u Unconfigured) Recognize(context.Context, []byte, string) (*RecognitionResult, error) {
	return nil, u.Err
}
