package parser

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/nerdneilsfield/go-invoice-parser/pkg/extract"
	"github.com/nerdneilsfield/go-invoice-parser/pkg/invoice"
	"github.com/nerdneilsfield/go-invoice-parser/pkg/ocr"
	"go.uber.org/zap"
)

// 支持的MIME类型
const (
	MIMEPDF  = "application/pdf"
	MIMEOFD  = "application/ofd"
	MIMEXOFD = "application/x-ofd"
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
)

// Recognizer OCR识别能力
type Recognizer interface {
	Recognize(ctx context.Context, buf []byte, mime string) (*ocr.RecognitionResult, error)
}

// Parser 根据文档类型选择提取路径，再交给识别器链
type Parser struct {
	pdf    *extract.PDFExtractor
	ofd    *extract.OFDExtractor
	ocr    Recognizer
	chain  *invoice.Chain
	logger *zap.Logger
}

// New 创建解析器，recognizer 为 nil 时不使用OCR
func New(pdf *extract.PDFExtractor, ofd *extract.OFDExtractor, recognizer Recognizer, chain *invoice.Chain, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pdf == nil {
		pdf = extract.NewPDFExtractor(logger)
	}
	if ofd == nil {
		ofd = extract.NewOFDExtractor(logger)
	}
	if chain == nil {
		chain = invoice.NewChain(logger)
	}
	return &Parser{pdf: pdf, ofd: ofd, ocr: recognizer, chain: chain, logger: logger}
}

// Parse 解析单个文档。
// 未识别出发票时返回 nil, nil；文档损坏返回 *extract.ExtractionError；OCR凭证缺失返回 *ocr.ConfigurationError。
func (p *Parser) Parse(ctx context.Context, buf []byte, mime string) (*invoice.InvoiceData, error) {
	mime = normalizeMIME(mime)
	p.logger.Debug("开始解析文档", zap.String("mime", mime), zap.Int("size", len(buf)))

	switch {
	case strings.Contains(mime, "pdf"):
		return p.parsePDF(ctx, buf)
	case strings.Contains(mime, "ofd"):
		return p.parseOFD(ctx, buf, mime)
	case strings.HasPrefix(mime, "image/"):
		return p.parseWithOCR(ctx, buf, mime)
	}

	p.logger.Warn("不支持的文档类型", zap.String("mime", mime))
	return nil, nil
}

func (p *Parser) parsePDF(ctx context.Context, buf []byte) (*invoice.InvoiceData, error) {
	text, err := p.pdf.ExtractText(ctx, buf)
	if err != nil {
		return nil, err
	}
	return p.recognize(text), nil
}

func (p *Parser) parseOFD(ctx context.Context, buf []byte, mime string) (*invoice.InvoiceData, error) {
	doc, err := p.ofd.Extract(ctx, buf)
	if err != nil {
		return nil, err
	}
	if doc.Layout.IsVectorGraphics() {
		p.logger.Info("OFD为矢量排版，转交OCR识别",
			zap.Int("pathObjects", doc.Layout.PathCount),
			zap.Int("textObjects", doc.Layout.TextCount))
		return p.parseWithOCR(ctx, buf, mime)
	}
	return p.recognize(doc.Text), nil
}

// parseWithOCR 结构化结果优先，否则把识别出的文字交给识别器链
func (p *Parser) parseWithOCR(ctx context.Context, buf []byte, mime string) (*invoice.InvoiceData, error) {
	if p.ocr == nil {
		p.logger.Warn("未配置OCR，无法识别该文档", zap.String("mime", mime))
		return nil, nil
	}

	result, err := p.ocr.Recognize(ctx, buf, mime)
	if err != nil {
		var cfgErr *ocr.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		p.logger.Error("OCR识别出错", zap.Error(err))
		return nil, nil
	}
	if result == nil || !result.Success {
		msg := ""
		if result != nil {
			msg = result.Error
		}
		p.logger.Warn("OCR识别失败", zap.String("error", msg))
		return nil, nil
	}

	if result.Invoice != nil {
		if data := result.Invoice.ToInvoiceData(result.Text); data != nil {
			data.Source = "ocr:" + result.Provider
			p.logger.Info("使用结构化OCR结果", zap.String("provider", result.Provider), zap.String("amount", data.Amount.String()))
			return data, nil
		}
	}
	return p.recognize(result.Text), nil
}

func (p *Parser) recognize(text string) *invoice.InvoiceData {
	if strings.TrimSpace(text) == "" {
		p.logger.Debug("文档中没有可识别的文字")
		return nil
	}
	return p.chain.Recognize(text)
}

// normalizeMIME 转小写并去掉参数部分
func normalizeMIME(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

var extMIME = map[string]string{
	".pdf":  MIMEPDF,
	".ofd":  MIMEOFD,
	".png":  MIMEPNG,
	".jpg":  MIMEJPEG,
	".jpeg": MIMEJPEG,
}

// DetectMIME 根据扩展名判断文档类型，未知扩展名返回空串
func DetectMIME(path string) string {
	return extMIME[strings.ToLower(filepath.Ext(path))]
}
