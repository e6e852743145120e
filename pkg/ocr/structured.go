package ocr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nerdneilsfield/go-invoice-parser/pkg/invoice"
	"github.com/shopspring/decimal"
)

// invoiceKinds SingleInvoiceInfos 中票据子对象的查找顺序，先命中者生效
var invoiceKinds = []string{
	"VatSpecialInvoice",
	"VatCommonInvoice",
	"VatElectronicCommonInvoice",
	"VatElectronicSpecialInvoice",
	"VatElectronicInvoiceFull",
	"VatElectronicSpecialInvoiceFull",
	"VatElectronicInvoiceToll",
	"ElectronicTrainTicketFull",
	"ElectronicFlightTicketFull",
	"TaxiTicket",
	"TrainTicket",
	"QuotaInvoice",
	"TollInvoice",
	"BusInvoice",
	"ShippingInvoice",
	"OnlineTaxiItinerary",
	"MotorVehicleSaleInvoice",
	"UsedCarPurchaseInvoice",
	"MachinePrintedInvoice",
	"OtherInvoice",
}

// 各字段在不同票据类型中的候选字段名，按优先级排列
var (
	numberFields = []string{"Number", "InvoiceNumber", "ElectronicTicketNum"}
	codeFields   = []string{"Code", "InvoiceCode"}
	dateFields   = []string{"Date", "DateGetOn"}
	totalFields  = []string{"Total", "TotalAmount", "Fare", "Price"}
	taxFields    = []string{"Tax", "TaxAmount"}
	sellerFields = []string{"SellerName", "Seller"}
	buyerFields  = []string{"BuyerName", "Purchaser", "Buyer", "UserName"}
)

// 明细列表：通行费发票用 VatInvoiceItemInfos，全电发票用 VatElectronicItems
const (
	tollItemsField       = "VatInvoiceItemInfos"
	electronicItemsField = "VatElectronicItems"
)

// invoiceTypeAliases 子类型描述归并到统一的发票类型名称
var invoiceTypeAliases = map[string]string{
	"电子发票(普通发票)":     "增值税电子普通发票",
	"电子发票(铁路电子客票)":   "增值税电子普通发票",
	"增值税电子普通发票(通行费)": "增值税电子普通发票",
	"电子发票(专用发票)":     "增值税电子专用发票",
}

var kindCategories = map[string]invoice.Category{
	"ElectronicTrainTicketFull":  invoice.CategoryTrain,
	"TrainTicket":                invoice.CategoryTrain,
	"ElectronicFlightTicketFull": invoice.CategoryFlight,
}

var (
	chineseDatePattern = regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`)
	leadingNumber      = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
)

// StructuredInvoice 结构化票据识别得到的字段
type StructuredInvoice struct {
	Kind            string           `json:"kind,omitempty"`
	InvoiceNumber   string           `json:"invoice_number,omitempty"`
	InvoiceCode     string           `json:"invoice_code,omitempty"`
	InvoiceType     string           `json:"invoice_type,omitempty"`
	InvoiceDate     string           `json:"invoice_date,omitempty"`
	TotalAmount     decimal.Decimal  `json:"total_amount"`
	TaxAmount       *decimal.Decimal `json:"tax_amount,omitempty"`
	TaxRate         *decimal.Decimal `json:"tax_rate,omitempty"`
	SellerName      string           `json:"seller_name,omitempty"`
	BuyerName       string           `json:"buyer_name,omitempty"`
	Remark          string           `json:"remark,omitempty"`
	ExpenseCategory string           `json:"expense_category,omitempty"`
}

// fields 票据子对象的通用视图，值来自JSON解码
type fields map[string]any

func (f fields) str(key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case float64:
		if v == 0 {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// first 返回第一个非空字段值
func (f fields) first(keys ...string) string {
	for _, k := range keys {
		if v := f.str(k); v != "" {
			return v
		}
	}
	return ""
}

func (f fields) items(key string) []fields {
	list, ok := f[key].([]any)
	if !ok {
		return nil
	}
	out := make([]fields, 0, len(list))
	for _, it := range list {
		if m, ok := it.(map[string]any); ok {
			out = append(out, fields(m))
		}
	}
	return out
}

func (f fields) object(key string) fields {
	m, ok := f[key].(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	return fields(m)
}

// MapInvoiceItem 把 MixedInvoiceItems 中的一项映射为结构化字段
func MapInvoiceItem(item map[string]any) *StructuredInvoice {
	it := fields(item)
	s := &StructuredInvoice{InvoiceType: normalizeInvoiceType(it)}

	infos := it.object("SingleInvoiceInfos")
	if infos == nil {
		return s
	}
	var info fields
	for _, kind := range invoiceKinds {
		if info = infos.object(kind); info != nil {
			s.Kind = kind
			break
		}
	}
	if info == nil {
		return s
	}

	s.InvoiceNumber = info.first(numberFields...)
	s.InvoiceCode = info.first(codeFields...)
	s.InvoiceDate = normalizeDate(info.first(dateFields...))
	if total, ok := parseNumber(info.first(totalFields...)); ok {
		s.TotalAmount = total
	}
	if tax := info.first(taxFields...); tax != "" {
		s.TaxAmount = zeroOrNumber(tax, "0", "0.00")
	}
	s.TaxRate = structuredTaxRate(info)
	s.SellerName = info.first(sellerFields...)
	s.BuyerName = info.first(buyerFields...)
	s.ExpenseCategory = expenseCategory(info)
	s.Remark = buildRemark(info)
	return s
}

// normalizeInvoiceType 仅在识别出票据大类时给出类型
func normalizeInvoiceType(it fields) string {
	if it.str("Type") == "" {
		return ""
	}
	sub := it.str("SubTypeDescription")
	if alias, ok := invoiceTypeAliases[sub]; ok {
		return alias
	}
	return it.first("SubTypeDescription", "TypeDescription", "Type")
}

// normalizeDate 2025年1月8日 -> 2025-01-08，其他格式原样返回
func normalizeDate(s string) string {
	m := chineseDatePattern.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	return fmt.Sprintf("%s-%s-%s", m[1], pad2(m[2]), pad2(m[3]))
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// parseNumber 取字符串中的第一个数字，忽略千分位和货币符号
func parseNumber(s string) (decimal.Decimal, bool) {
	m := leadingNumber.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// zeroOrNumber 空串和给定的零值写法按0处理
func zeroOrNumber(raw string, zeros ...string) *decimal.Decimal {
	v := strings.TrimSpace(raw)
	if v == "" {
		return decimalPtr(decimal.Zero)
	}
	for _, z := range zeros {
		if v == z {
			return decimalPtr(decimal.Zero)
		}
	}
	d, ok := parseNumber(v)
	if !ok {
		return nil
	}
	return &d
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

var hundred = decimal.NewFromInt(100)

// parseTaxRate "6%" -> 6, "0.06" -> 6
func parseTaxRate(raw string) *decimal.Decimal {
	rate := zeroOrNumber(strings.Replace(raw, "%", "", 1), "0")
	if rate == nil {
		return nil
	}
	if rate.IsPositive() && rate.LessThan(decimal.NewFromInt(1)) {
		return decimalPtr(rate.Mul(hundred))
	}
	return rate
}

// structuredTaxRate 顶层 TaxRate 优先，否则取第一条明细的税率
func structuredTaxRate(info fields) *decimal.Decimal {
	if v := info.str("TaxRate"); v != "" {
		return parseTaxRate(v)
	}
	for _, key := range []string{tollItemsField, electronicItemsField} {
		if items := info.items(key); len(items) > 0 {
			if v := items[0].str("TaxRate"); v != "" {
				return parseTaxRate(v)
			}
			return nil
		}
	}
	return nil
}

// expenseCategory 费用项目：Name 字段优先，其次第一条明细的名称
func expenseCategory(info fields) string {
	if name := info.str("Name"); strings.TrimSpace(name) != "" {
		return name
	}
	for _, key := range []string{tollItemsField, electronicItemsField} {
		if items := info.items(key); len(items) > 0 {
			if name := items[0].str("Name"); strings.TrimSpace(name) != "" {
				return name
			}
			return ""
		}
	}
	return ""
}

// remarkRules 备注生成规则，按顺序取第一个非空结果
var remarkRules = []func(fields) string{
	nameRemark,
	trainRemark,
	flightRemark,
	tollRemark,
	taxiRemark,
	func(info fields) string { return info.str("Remark") },
	electronicItemsRemark,
}

func buildRemark(info fields) string {
	for _, rule := range remarkRules {
		if r := rule(info); r != "" {
			return r
		}
	}
	return ""
}

func nameRemark(info fields) string {
	if name := info.str("Name"); strings.TrimSpace(name) != "" {
		return name
	}
	return ""
}

// joinPresent 用空格连接非空片段
func joinPresent(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func route(info fields) string {
	return info.str("StationGetOn") + "->" + info.str("StationGetOff")
}

func trainRemark(info fields) string {
	if info.str("DateGetOn") == "" || info.str("StationGetOn") == "" || info.str("StationGetOff") == "" {
		return ""
	}
	return joinPresent("火车票：", info.str("DateGetOn"), info.str("TimeGetOn"),
		info.str("TrainNumber"), route(info), info.str("Seat"))
}

func flightRemark(info fields) string {
	if info.str("FlightNumber") == "" || info.str("StationGetOn") == "" || info.str("StationGetOff") == "" {
		return ""
	}
	return joinPresent(info.str("DateGetOn"), info.str("FlightNumber"), route(info))
}

func tollRemark(info fields) string {
	items := info.items(tollItemsField)
	if len(items) == 0 {
		return ""
	}
	first := items[0]
	var dates string
	start, end := first.str("DateStart"), first.str("DateEnd")
	if start != "" && end != "" {
		dates = start
		if start != end {
			dates = start + "-" + end
		}
	}
	return joinPresent("通行费：", dates, first.str("LicensePlate"), first.str("VehicleType"), first.str("Name"))
}

func taxiRemark(info fields) string {
	date, from, to := info.str("Date"), info.str("Start"), info.str("End")
	if date == "" || from == "" || to == "" {
		return ""
	}
	return fmt.Sprintf("%s %s->%s", date, from, to)
}

func electronicItemsRemark(info fields) string {
	var names []string
	for _, it := range info.items(electronicItemsField) {
		if name := it.str("Name"); strings.TrimSpace(name) != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, "; ")
}

// ToInvoiceData 转为发票记录，价税合计不为正时返回 nil
func (s *StructuredInvoice) ToInvoiceData(rawText string) *invoice.InvoiceData {
	if s == nil || !s.TotalAmount.IsPositive() {
		return nil
	}

	date, err := time.ParseInLocation(time.DateOnly, s.InvoiceDate, time.UTC)
	fromText := err == nil
	if !fromText {
		n := invoice.Now().UTC()
		date = time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	}

	description := s.Remark
	if description == "" {
		description = s.InvoiceType
	}
	if description == "" {
		description = "发票"
	}

	category := invoice.CategorizeByKeywords(strings.Join([]string{s.InvoiceType, s.Remark, s.ExpenseCategory}, " "))
	if c, ok := kindCategories[s.Kind]; ok && category == invoice.CategoryOther {
		category = c
	}

	return &invoice.InvoiceData{
		Amount:          s.TotalAmount,
		Date:            date,
		DateFromText:    fromText,
		Description:     description,
		Category:        category,
		ExpenseCategory: s.ExpenseCategory,
		InvoiceNumber:   s.InvoiceNumber,
		InvoiceCode:     s.InvoiceCode,
		InvoiceType:     s.InvoiceType,
		SellerName:      s.SellerName,
		BuyerName:       s.BuyerName,
		TaxAmount:       s.TaxAmount,
		TaxRate:         s.TaxRate,
		RawText:         rawText,
	}
}
