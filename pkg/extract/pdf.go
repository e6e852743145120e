package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// PDFExtractor 从PDF中提取文本
type PDFExtractor struct {
	logger   *zap.Logger
	maxPages int
}

// PDFOption PDF提取器选项
type PDFOption func(*PDFExtractor)

// WithMaxPages 限制最多提取的页数，0 表示全部
func WithMaxPages(n int) PDFOption {
	return func(e *PDFExtractor) {
		if n >= 0 {
			e.maxPages = n
		}
	}
}

// NewPDFExtractor 创建PDF文本提取器
func NewPDFExtractor(logger *zap.Logger, opts ...PDFOption) *PDFExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &PDFExtractor{logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ExtractText 按页顺序提取全部文本：页内片段以空格连接，页与页之间以换行分隔
func (e *PDFExtractor) ExtractText(ctx context.Context, buf []byte) (text string, err error) {
	if len(buf) == 0 {
		return "", &ExtractionError{Format: "pdf", Err: errors.New("文件为空")}
	}

	// 损坏的内容流可能导致解析库 panic
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("PDF解析异常", zap.Any("panic", r))
			text = ""
			err = &ExtractionError{Format: "pdf", Err: fmt.Errorf("%v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		e.logger.Error("打开PDF失败", zap.Error(err))
		return "", &ExtractionError{Format: "pdf", Err: err}
	}

	numPages := reader.NumPage()
	if e.maxPages > 0 && numPages > e.maxPages {
		e.logger.Debug("页数超过上限，只提取前几页", zap.Int("pages", numPages), zap.Int("maxPages", e.maxPages))
		numPages = e.maxPages
	}

	pages := make([][]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			e.logger.Debug("跳过空页", zap.Int("page", i))
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			e.logger.Warn("页面内容流解析失败，跳过", zap.Int("page", i), zap.Error(err))
			continue
		}
		pages = append(pages, rowFragments(rows))
	}

	text = joinPages(pages)
	e.logger.Debug("PDF文本提取完成", zap.Int("pages", len(pages)), zap.Int("length", len(text)))
	return text, nil
}

// rowFragments 按行自上而下、行内自左向右展开文本片段，忽略空片段
func rowFragments(rows pdf.Rows) []string {
	var fragments []string
	for _, row := range rows {
		for _, t := range row.Content {
			if t.S != "" {
				fragments = append(fragments, t.S)
			}
		}
	}
	return fragments
}

// joinPages 页内片段以空格连接，每页以换行结尾
func joinPages(pages [][]string) string {
	var b strings.Builder
	for _, fragments := range pages {
		b.WriteString(strings.Join(fragments, " "))
		b.WriteString("\n")
	}
	return b.String()
}
