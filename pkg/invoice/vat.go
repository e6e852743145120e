package invoice

import (
	"regexp"

	"github.com/shopspring/decimal"
)

var vatKeywords = []string{"增值税", "发票", "价税合计", "金额"}

var (
	vatTotalPattern    = regexp.MustCompile(`价税合计[：:￥¥\s]*(\d+\.?\d*)`)
	currencyYuanAmount = regexp.MustCompile(`[¥￥]\s*(\d+\.?\d*)\s*元`)
)

var vatCategoryRules = []categoryRule{
	{CategoryMeals, []string{"餐饮", "食品"}},
	{CategoryLodging, []string{"住宿", "酒店"}},
	{CategoryOffice, []string{"办公", "文具"}},
	{CategoryTransport, []string{"交通", "汽油"}},
}

// ParseVATInvoice 识别增值税发票，优先使用"价税合计"金额
func ParseVATInvoice(text string) *InvoiceData {
	if containsAny(text, vatKeywords) == "" {
		return nil
	}

	var amount decimal.Decimal
	if m := vatTotalPattern.FindStringSubmatch(text); m != nil {
		amount, _ = parseAmount(m[1])
	} else if m := currencyYuanAmount.FindStringSubmatch(text); m != nil {
		amount, _ = parseAmount(m[1])
	} else {
		return nil
	}
	if !amount.IsPositive() {
		return nil
	}

	date, found := findDate(text, genericDatePattern)

	return &InvoiceData{
		Amount:       amount,
		Date:         date,
		DateFromText: found,
		Description:  "增值税发票",
		Category:     categorize(text, vatCategoryRules),
		RawText:      text,
	}
}

// CategorizeByKeywords 按增值税发票的关键词表推断类别
func CategorizeByKeywords(text string) Category {
	return categorize(text, vatCategoryRules)
}
