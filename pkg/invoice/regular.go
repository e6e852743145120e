package invoice

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var regularKeywords = []string{"普通发票", "通用机打发票", "通用定额发票", "电子发票（普通发票）"}

var (
	regularNumberPattern = regexp.MustCompile(`\b(\d{10,20})\b`)

	// 大写金额后紧跟小写金额，如 "肆仟捌佰贰拾贰圆整 ¥ 4822.00"
	regularAmountChineseThenDigits = regexp.MustCompile(`[壹贰叁肆伍陆柒捌玖拾佰仟万亿圆整]+[\s\d¥￥]*?(\d{3,}\.\d{2})`)
	regularAmountLabeled           = regexp.MustCompile(`价税合计[：:（(]*小写[）)]*[：:\s]*[¥￥]?\s*(\d+\.\d{2})`)
	regularAmountChineseOnly       = regexp.MustCompile(`([壹贰叁肆伍陆柒捌玖拾佰仟万亿]+)圆整`)
	regularAmountCandidates        = regexp.MustCompile(`\b(\d{3,}\.\d{2})\b`)

	regularLabeledDate = regexp.MustCompile(`开票日期[：:\s]*(\d{4})[年\-/](\d{1,2})[月\-/](\d{1,2})日?`)

	regularBuyerPattern  = regexp.MustCompile(`购买方[^销]*?([^\s\d]{2,20}(?:公司|企业|店|中心|部门|单位))`)
	regularSellerPattern = regexp.MustCompile(`销售方[^备]*?([^\s\d]{2,20}(?:公司|企业|店|中心|部门|单位|民宿))`)
)

var regularCategoryRules = []categoryRule{
	{CategoryMeals, []string{"餐饮", "食品", "饮料"}},
	{CategoryLodging, []string{"住宿", "酒店", "宾馆", "民宿"}},
	{CategoryOffice, []string{"办公", "文具", "用品"}},
	{CategoryTransport, []string{"交通", "停车", "过路", "汽油"}},
}

// minCandidateAmount 兜底策略只考虑不小于该值的金额，避免选中税额
var minCandidateAmount = decimal.NewFromInt(100)

// ParseRegularInvoice 识别普通发票（含通用机打、定额及电子普通发票）
func ParseRegularInvoice(text string) *InvoiceData {
	if containsAny(text, regularKeywords) == "" {
		return nil
	}

	amount := regularAmount(text)
	if !amount.IsPositive() {
		return nil
	}

	date, found := findDate(text, regularLabeledDate, genericDatePattern)

	var invoiceNo, buyer, seller string
	if m := regularNumberPattern.FindStringSubmatch(text); m != nil {
		invoiceNo = m[1]
	}
	if m := regularBuyerPattern.FindStringSubmatch(text); m != nil {
		buyer = strings.TrimSpace(m[1])
	}
	if m := regularSellerPattern.FindStringSubmatch(text); m != nil {
		seller = strings.TrimSpace(m[1])
	}

	description := "普通发票"
	if invoiceNo != "" {
		description += " " + lastN(invoiceNo, 4)
	}
	if seller != "" {
		description += " (" + truncateRunes(seller, 10) + ")"
	}

	return &InvoiceData{
		Amount:        amount,
		Date:          date,
		DateFromText:  found,
		Description:   description,
		Category:      categorize(text, regularCategoryRules),
		InvoiceNumber: invoiceNo,
		SellerName:    seller,
		BuyerName:     buyer,
		RawText:       text,
	}
}

// regularAmount 按可靠程度依次尝试四种金额模式
func regularAmount(text string) decimal.Decimal {
	if amount, ok := findAmount(regularAmountChineseThenDigits, text); ok {
		return amount
	}
	if amount, ok := findAmount(regularAmountLabeled, text); ok {
		return amount
	}
	if m := regularAmountChineseOnly.FindStringSubmatch(text); m != nil {
		return decimal.NewFromInt(DecodeChineseNumeral(m[1]))
	}
	return largestCandidate(text)
}

// largestCandidate 取文中所有两位小数金额里不小于100的最大值
func largestCandidate(text string) decimal.Decimal {
	largest := decimal.Zero
	for _, m := range regularAmountCandidates.FindAllStringSubmatch(text, -1) {
		v, ok := parseAmount(m[1])
		if !ok || v.LessThan(minCandidateAmount) {
			continue
		}
		if v.GreaterThan(largest) {
			largest = v
		}
	}
	return largest
}
