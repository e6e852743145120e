package invoice

// ParseGenericInvoice 兜底识别器，只要求存在"¥xx元"形式的金额
func ParseGenericInvoice(text string) *InvoiceData {
	amount, ok := findAmount(currencyYuanAmount, text)
	if !ok || !amount.IsPositive() {
		return nil
	}

	date, found := findDate(text, genericDatePattern)

	return &InvoiceData{
		Amount:       amount,
		Date:         date,
		DateFromText: found,
		Description:  "发票",
		Category:     CategoryOther,
		RawText:      text,
	}
}
