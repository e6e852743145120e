package ocr

import (
	"bytes"
	"encoding/json"
	"strings"
)

// RecognitionResult 一次OCR识别的结果
type RecognitionResult struct {
	Success   bool               `json:"success"`
	Text      string             `json:"text"`
	Provider  string             `json:"provider"`
	RequestID string             `json:"request_id,omitempty"`
	Invoice   *StructuredInvoice `json:"invoice,omitempty"`
	Error     string             `json:"error,omitempty"`

	// 原始响应数据，用于排查
	RawResponse json.RawMessage `json:"-"`
}

// failure 构造失败结果
func failure(provider, msg string) *RecognitionResult {
	return &RecognitionResult{Provider: provider, Error: msg}
}

// flexString 兼容字符串和数字两种JSON取值
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// aliyunResponse 阿里云RPC接口的响应信封
type aliyunResponse struct {
	RequestID string          `json:"RequestId"`
	Code      flexString      `json:"Code"`
	Message   string          `json:"Message"`
	Data      json.RawMessage `json:"Data"`
}

// aliyunData RecognizeGeneralStructure 等接口的 Data 字段
type aliyunData struct {
	Content        string          `json:"content"`
	PrismWordsInfo json.RawMessage `json:"prism_wordsInfo"`
}

type aliyunWord struct {
	Word string `json:"word"`
}

// decodeMaybeString Data 和 prism_wordsInfo 有时是对象本身，有时是JSON编码后的字符串
func decodeMaybeString(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		return json.Unmarshal([]byte(s), v)
	}
	return json.Unmarshal(raw, v)
}

// text 优先取 content，否则拼接 prism_wordsInfo 中的 word
func (d *aliyunData) text() string {
	if strings.TrimSpace(d.Content) != "" {
		return d.Content
	}
	if len(d.PrismWordsInfo) == 0 {
		return ""
	}
	var words []aliyunWord
	if err := decodeMaybeString(d.PrismWordsInfo, &words); err != nil {
		return ""
	}
	parts := make([]string, 0, len(words))
	for _, w := range words {
		parts = append(parts, w.Word)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
