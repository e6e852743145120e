package ocr

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"sort"
	"strings"
	"time"
)

// 阿里云 RPC 签名公共参数
const (
	aliyunAPIVersion     = "2021-07-07"
	aliyunTimestampFmt   = "2006-01-02T15:04:05Z"
	aliyunSignMethod     = "HMAC-SHA1"
	aliyunSignVersion    = "1.0"
	aliyunResponseFormat = "JSON"
)

const upperHex = "0123456789ABCDEF"

// PercentEncode 按 RFC 3986 编码，只保留 A-Z a-z 0-9 - _ . ~
func PercentEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == '~':
		return true
	}
	return false
}

// CanonicalQuery 按参数名字节序排序后拼接
func CanonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, PercentEncode(k)+"="+PercentEncode(params[k]))
	}
	return strings.Join(pairs, "&")
}

// StringToSign 待签名字符串：METHOD&%2F&enc(canonical)
func StringToSign(method string, params map[string]string) string {
	return method + "&" + PercentEncode("/") + "&" + PercentEncode(CanonicalQuery(params))
}

// Sign 计算 HMAC-SHA1 签名，密钥为 secret + "&"
func Sign(method string, params map[string]string, secret string) string {
	mac := hmac.New(sha1.New, []byte(secret+"&"))
	mac.Write([]byte(StringToSign(method, params)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// CommonParams 生成一次请求的公共参数，不含 Signature
func CommonParams(action, accessKeyID, nonce string, ts time.Time) map[string]string {
	return map[string]string{
		"Action":           action,
		"Format":           aliyunResponseFormat,
		"Version":          aliyunAPIVersion,
		"AccessKeyId":      accessKeyID,
		"SignatureMethod":  aliyunSignMethod,
		"SignatureVersion": aliyunSignVersion,
		"SignatureNonce":   nonce,
		"Timestamp":        ts.UTC().Format(aliyunTimestampFmt),
	}
}

// signedQuery 计算签名并生成最终查询串，Signature 位于末尾
func signedQuery(method string, params map[string]string, secret string) string {
	sig := Sign(method, params, secret)
	return CanonicalQuery(params) + "&Signature=" + PercentEncode(sig)
}
