package invoice

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// 通用日期格式：2025年11月28日 / 2025-11-28 / 2025/11/28
var genericDatePattern = regexp.MustCompile(`(\d{4})[年\-/](\d{1,2})[月\-/](\d{1,2})[日号]?`)

// categoryRule 关键词到类别的映射，按顺序匹配，先命中者生效
type categoryRule struct {
	category Category
	keywords []string
}

// categorize 按规则顺序扫描文本，未命中返回"其他"
func categorize(text string, rules []categoryRule) Category {
	for _, rule := range rules {
		if containsAny(text, rule.keywords) != "" {
			return rule.category
		}
	}
	return CategoryOther
}

// containsAny 返回第一个出现在文本中的关键词，未命中返回空串
func containsAny(text string, keywords []string) string {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return kw
		}
	}
	return ""
}

// parseAmount 解析金额字符串
func parseAmount(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(s), "."))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// findAmount 用给定模式提取第一个分组中的金额
func findAmount(re *regexp.Regexp, text string) (decimal.Decimal, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return decimal.Zero, false
	}
	return parseAmount(m[1])
}

// findDate 依次尝试各日期模式，返回UTC零点；均未命中时返回当天零点和 false
func findDate(text string, patterns ...*regexp.Regexp) (time.Time, bool) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if t, ok := dateFromParts(m[1], m[2], m[3]); ok {
			return t, true
		}
	}
	return today(), false
}

// dateFromParts 由年月日字符串构造UTC零点，月日越界视为无效
func dateFromParts(year, month, day string) (time.Time, bool) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, false
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// truncateRunes 超过 n 个字符时截断并追加省略号
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// lastN 返回字符串末尾 n 个字节
func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
