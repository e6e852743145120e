package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	tcerrors "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/errors"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	tcocr "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/ocr/v20181119"
	"go.uber.org/zap"
)

// 腾讯云默认设置
const (
	DefaultTencentEndpoint = "ocr.tencentcloudapi.com"
	DefaultTencentRegion   = "ap-guangzhou"

	ProviderTencent = "tencent"
)

// tencentInvoiceAPI SDK客户端中用到的方法，便于测试替换
type tencentInvoiceAPI interface {
	RecognizeGeneralInvoiceWithContext(ctx context.Context, request *tcocr.RecognizeGeneralInvoiceRequest) (*tcocr.RecognizeGeneralInvoiceResponse, error)
}

// TencentClient 腾讯云通用票据识别（高级版）客户端，返回结构化字段
type TencentClient struct {
	api        tencentInvoiceAPI
	maxRetries int
	sleep      Sleeper
	logger     *zap.Logger
}

// NewTencentClient 创建腾讯云OCR客户端，缺少凭证时返回 *ConfigurationError
func NewTencentClient(secretID, secretKey, region string, logger *zap.Logger, opts ...ClientOption) (*TencentClient, error) {
	var missing []string
	if secretID == "" {
		missing = append(missing, "secret_id")
	}
	if secretKey == "" {
		missing = append(missing, "secret_key")
	}
	if len(missing) > 0 {
		return nil, &ConfigurationError{Provider: ProviderTencent, Missing: missing}
	}
	if region == "" {
		region = DefaultTencentRegion
	}

	o := buildOptions(DefaultTencentEndpoint, opts)

	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = strings.TrimPrefix(strings.TrimPrefix(o.endpoint, "https://"), "http://")
	cpf.HttpProfile.ReqTimeout = int(o.timeout.Seconds())

	api, err := tcocr.NewClient(common.NewCredential(secretID, secretKey), region, cpf)
	if err != nil {
		return nil, fmt.Errorf("创建腾讯云OCR客户端失败: %w", err)
	}
	return newTencentClient(api, logger, o), nil
}

func newTencentClient(api tencentInvoiceAPI, logger *zap.Logger, o clientOptions) *TencentClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TencentClient{
		api:        api,
		maxRetries: o.maxRetries,
		sleep:      o.sleep,
		logger:     logger.With(zap.String("provider", ProviderTencent)),
	}
}

// Recognize 识别票据并提取结构化字段，Text 为各字段的 "名称: 值" 行
func (c *TencentClient) Recognize(ctx context.Context, buf []byte, mime string) (*RecognitionResult, error) {
	c.logger.Info("开始票据识别", zap.String("mime", mime), zap.Int("size", len(buf)))

	req := tcocr.NewRecognizeGeneralInvoiceRequest()
	req.ImageBase64 = common.StringPtr(base64.StdEncoding.EncodeToString(buf))
	req.EnablePdf = common.BoolPtr(true)
	req.EnableOther = common.BoolPtr(true)

	r := &retrier{maxRetries: c.maxRetries, sleep: c.sleep, logger: c.logger}
	var resp *tcocr.RecognizeGeneralInvoiceResponse
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.api.RecognizeGeneralInvoiceWithContext(ctx, req)
		return tencentError(err)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return failure(ProviderTencent, fmt.Sprintf("票据识别失败: %v", err)), nil
	}

	raw := resp.ToJsonString()
	var envelope struct {
		Response struct {
			RequestID         string           `json:"RequestId"`
			MixedInvoiceItems []map[string]any `json:"MixedInvoiceItems"`
		} `json:"Response"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return failure(ProviderTencent, fmt.Sprintf("解析识别结果失败: %v", err)), nil
	}

	result := &RecognitionResult{
		Provider:    ProviderTencent,
		RequestID:   envelope.Response.RequestID,
		RawResponse: json.RawMessage(raw),
	}
	items := envelope.Response.MixedInvoiceItems
	if len(items) == 0 {
		result.Error = "No invoice detected in image"
		c.logger.Warn("未检测到票据", zap.String("requestId", result.RequestID))
		return result, nil
	}

	c.logger.Debug("检测到票据", zap.Int("count", len(items)))
	result.Invoice = MapInvoiceItem(items[0])
	result.Text = detectionText(items[0])
	result.Success = true
	c.logger.Info("票据识别成功",
		zap.String("requestId", result.RequestID),
		zap.String("kind", result.Invoice.Kind),
		zap.String("invoiceType", result.Invoice.InvoiceType))
	return result, nil
}

// detectionText 把命中的票据子对象中的字符串字段展开为 "名称: 值" 行
func detectionText(item map[string]any) string {
	infos := fields(item).object("SingleInvoiceInfos")
	if infos == nil {
		return ""
	}
	for _, kind := range invoiceKinds {
		info := infos.object(kind)
		if info == nil {
			continue
		}
		keys := make([]string, 0, len(info))
		for k, v := range info {
			if s, ok := v.(string); ok && s != "" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, k+": "+info.str(k))
		}
		return strings.Join(lines, "\n")
	}
	return ""
}

// tencentError 把SDK错误转为 APIError，网络类错误可重试
func tencentError(err error) error {
	if err == nil {
		return nil
	}
	var sdkErr *tcerrors.TencentCloudSDKError
	if !errors.As(err, &sdkErr) {
		return transportError(err, 0)
	}

	code := sdkErr.Code
	if strings.Contains(code, "NetworkError") {
		code = CodeNetworkError
	}
	apiErr := newAPIError(code, sdkErr.Message, sdkErr.RequestId, 0)
	apiErr.Cause = err
	return apiErr
}
