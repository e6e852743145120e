package invoice

import (
	"go.uber.org/zap"
)

// Recognizer 单个字段模式识别器；Parse 返回 nil 表示"不是该类型"，不是错误
type Recognizer struct {
	Name  string
	Parse func(text string) *InvoiceData
}

// DefaultRecognizers 按优先级排列的识别器：普通发票 -> 增值税发票 -> 火车票 -> 出租车票 -> 通用
func DefaultRecognizers() []Recognizer {
	return []Recognizer{
		{Name: "regular", Parse: ParseRegularInvoice},
		{Name: "vat", Parse: ParseVATInvoice},
		{Name: "train", Parse: ParseTrainTicket},
		{Name: "taxi", Parse: ParseTaxiReceipt},
		{Name: "generic", Parse: ParseGenericInvoice},
	}
}

// Chain 有序识别链，返回第一个命中的结果
type Chain struct {
	recognizers []Recognizer
	logger      *zap.Logger
}

// NewChain 创建识别链，recognizers 为空时使用默认顺序
func NewChain(logger *zap.Logger, recognizers ...Recognizer) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(recognizers) == 0 {
		recognizers = DefaultRecognizers()
	}
	return &Chain{
		recognizers: recognizers,
		logger:      logger,
	}
}

// Names 返回识别器名称，顺序即优先级
func (c *Chain) Names() []string {
	names := make([]string, 0, len(c.recognizers))
	for _, r := range c.recognizers {
		names = append(names, r.Name)
	}
	return names
}

// Recognize 依次尝试各识别器，全部未命中时返回 nil
func (c *Chain) Recognize(text string) *InvoiceData {
	c.logger.Debug("开始识别发票字段", zap.Int("textLength", len(text)))

	for _, r := range c.recognizers {
		data := r.Parse(text)
		if data == nil {
			c.logger.Debug("识别器未命中", zap.String("recognizer", r.Name))
			continue
		}
		if !data.Valid() {
			c.logger.Debug("识别器返回的金额无效", zap.String("recognizer", r.Name), zap.String("amount", data.Amount.String()))
			continue
		}
		if data.Source == "" {
			data.Source = r.Name
		}
		c.logger.Info("识别成功",
			zap.String("recognizer", r.Name),
			zap.String("amount", data.Amount.StringFixed(2)),
			zap.String("date", data.DateString()),
			zap.String("category", string(data.Category)),
			zap.String("description", data.Description))
		return data
	}

	c.logger.Warn("所有识别器均未能识别发票")
	return nil
}
