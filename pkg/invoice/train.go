package invoice

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// 铁路电子客票: ": 674.00 3301841997****2813"
	trainAmountStrict   = regexp.MustCompile(`:\s*(\d+\.\d{2})\s+\d{10}\*{4}\d{4}`)
	trainAmountFlexible = regexp.MustCompile(`[¥￥]?\s*(\d+\.?\d*)\s*元?`)
	trainDatePattern    = regexp.MustCompile(`(\d{4})[年\-/\s]+(\d{1,2})[月\-/\s]+(\d{1,2})[日号]?`)
	trainNumberPattern  = regexp.MustCompile(`[GCDZTSPKLY]\d{1,4}`)
	stationPattern      = regexp.MustCompile(`[A-Z][a-z]+(?:[A-Z][a-z]+)*`)
)

// ParseTrainTicket 识别火车票，车次前最后一个拼音站名为出发站，全文最后一个为到达站
func ParseTrainTicket(text string) *InvoiceData {
	amount, ok := trainAmount(text)
	if !ok {
		return nil
	}

	date, found := findDate(text, trainDatePattern)

	trainLoc := trainNumberPattern.FindStringIndex(text)
	trainNumber := ""
	if trainLoc != nil {
		trainNumber = text[trainLoc[0]:trainLoc[1]]
	}

	var departure, arrival string
	stations := stationPattern.FindAllString(text, -1)
	if len(stations) >= 2 && trainLoc != nil && trainLoc[0] > 0 {
		if before := stationPattern.FindAllString(text[:trainLoc[0]], -1); len(before) > 0 {
			departure = before[len(before)-1]
		}
		arrival = stations[len(stations)-1]
	}

	var b strings.Builder
	b.WriteString("火车票")
	if trainNumber != "" {
		b.WriteString(" " + trainNumber)
	}
	if departure != "" && arrival != "" {
		b.WriteString(" (" + departure + " -> " + arrival + ")")
	}

	return &InvoiceData{
		Amount:       amount,
		Date:         date,
		DateFromText: found,
		Description:  b.String(),
		Category:     CategoryTransport,
		RawText:      text,
	}
}

// trainAmount 先用严格模式匹配票价，失败时退回宽松模式
func trainAmount(text string) (decimal.Decimal, bool) {
	if amount, ok := findAmount(trainAmountStrict, text); ok && amount.IsPositive() {
		return amount, true
	}
	if amount, ok := findAmount(trainAmountFlexible, text); ok && amount.IsPositive() {
		return amount, true
	}
	return decimal.Zero, false
}
