package invoice

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Category 费用类别
type Category string

const (
	CategoryTransport Category = "交通"
	CategoryMeals     Category = "餐饮"
	CategoryLodging   Category = "住宿"
	CategoryOffice    Category = "办公"
	CategoryOther     Category = "其他"

	// 仅结构化OCR映射使用
	CategoryTrain  Category = "火车票"
	CategoryFlight Category = "机票"
)

// InvoiceData 表示从单据中识别出的发票记录
type InvoiceData struct {
	Amount          decimal.Decimal  `json:"amount"`
	Date            time.Time        `json:"-"`
	DateFromText    bool             `json:"date_from_text"` // false 表示日期为当天兜底值
	Description     string           `json:"description"`
	Category        Category         `json:"category"`
	ExpenseCategory string           `json:"expense_category,omitempty"`
	InvoiceNumber   string           `json:"invoice_number,omitempty"`
	InvoiceCode     string           `json:"invoice_code,omitempty"`
	InvoiceType     string           `json:"invoice_type,omitempty"`
	SellerName      string           `json:"seller_name,omitempty"`
	BuyerName       string           `json:"buyer_name,omitempty"`
	TaxAmount       *decimal.Decimal `json:"tax_amount,omitempty"`
	TaxRate         *decimal.Decimal `json:"tax_rate,omitempty"`
	RawText         string           `json:"raw_text"`
	Source          string           `json:"source"`
}

// Valid 金额必须为正数
func (d *InvoiceData) Valid() bool {
	return d != nil && d.Amount.IsPositive()
}

// DateString 返回 YYYY-MM-DD 格式的日期
func (d *InvoiceData) DateString() string {
	return d.Date.UTC().Format(time.DateOnly)
}

// MarshalJSON 日期按 YYYY-MM-DD 输出
func (d InvoiceData) MarshalJSON() ([]byte, error) {
	type alias InvoiceData
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{
		alias: alias(d),
		Date:  d.DateString(),
	})
}

// Now 当前时间，测试中可替换
var Now = time.Now

// today 返回当天的UTC零点
func today() time.Time {
	n := Now().UTC()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}
