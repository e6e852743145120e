package invoice

import "regexp"

var taxiKeywords = []string{"出租车", "的士", "计程车", "TAXI", "taxi"}

var taxiAmountPattern = regexp.MustCompile(`[¥￥]?\s*(\d+\.?\d*)\s*元`)

// ParseTaxiReceipt 识别出租车票
func ParseTaxiReceipt(text string) *InvoiceData {
	if containsAny(text, taxiKeywords) == "" {
		return nil
	}

	amount, ok := findAmount(taxiAmountPattern, text)
	if !ok || !amount.IsPositive() {
		return nil
	}

	date, found := findDate(text, genericDatePattern)

	return &InvoiceData{
		Amount:       amount,
		Date:         date,
		DateFromText: found,
		Description:  "出租车费",
		Category:     CategoryTransport,
		RawText:      text,
	}
}
