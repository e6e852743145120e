package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"
)

// 这些元素只包含坐标、字体、颜色等排版信息，连同子树一起跳过
var skippedElements = map[string]struct{}{
	"ID":          {},
	"Boundary":    {},
	"CTM":         {},
	"DrawParam":   {},
	"Font":        {},
	"Size":        {},
	"FillColor":   {},
	"StrokeColor": {},
}

var numericOnly = regexp.MustCompile(`^\d+(\.\d+)?$`)

// OFDDocument OFD解包结果
type OFDDocument struct {
	Text    string     `json:"text"`
	Layout  LayoutInfo `json:"layout"`
	Entries []string   `json:"entries"`
}

// OFDExtractor 解开OFD压缩包并提取XML中的文本
type OFDExtractor struct {
	logger *zap.Logger
}

// NewOFDExtractor 创建OFD提取器
func NewOFDExtractor(logger *zap.Logger) *OFDExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OFDExtractor{logger: logger}
}

// Extract 解包OFD，判定首个 Content.xml 的排版类型。
// 矢量排版时不提取文本，由调用方转交OCR。
func (e *OFDExtractor) Extract(ctx context.Context, buf []byte) (*OFDDocument, error) {
	zr, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		e.logger.Error("打开OFD压缩包失败", zap.Error(err))
		return nil, &ExtractionError{Format: "ofd", Err: err}
	}

	var (
		xmlFiles []*zip.File
		content  *zip.File
	)
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "__MACOSX") {
			continue
		}
		if content == nil && strings.Contains(f.Name, "Content.xml") {
			content = f
		}
		if strings.HasSuffix(f.Name, ".xml") {
			xmlFiles = append(xmlFiles, f)
		}
	}
	if len(xmlFiles) == 0 {
		return nil, &ExtractionError{Format: "ofd", Err: errors.New("压缩包中没有XML文件")}
	}

	doc := &OFDDocument{Entries: make([]string, 0, len(xmlFiles))}
	for _, f := range xmlFiles {
		doc.Entries = append(doc.Entries, f.Name)
	}

	if content != nil {
		doc.Layout = e.classify(content)
	} else {
		doc.Layout = LayoutInfo{Kind: LayoutText, Reason: "未找到 Content.xml"}
	}
	e.logger.Debug("OFD排版判定",
		zap.String("kind", doc.Layout.Kind.String()),
		zap.Int("pathObjects", doc.Layout.PathCount),
		zap.Int("textObjects", doc.Layout.TextCount))

	if doc.Layout.IsVectorGraphics() {
		e.logger.Info("OFD为矢量图形排版，跳过文本提取")
		return doc, nil
	}

	parts := make([]string, 0, len(xmlFiles))
	parsed := 0
	var lastErr error
	for _, f := range xmlFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := e.harvestEntry(f)
		if err != nil {
			e.logger.Warn("跳过无法解析的XML", zap.String("entry", f.Name), zap.Error(err))
			lastErr = err
			continue
		}
		parsed++
		if text != "" {
			parts = append(parts, text)
		}
	}
	if parsed == 0 {
		e.logger.Error("OFD中没有可解析的XML", zap.Int("entries", len(xmlFiles)))
		return nil, &ExtractionError{Format: "ofd", Err: fmt.Errorf("没有可解析的XML: %w", lastErr)}
	}
	doc.Text = strings.TrimSpace(strings.Join(parts, " "))
	e.logger.Debug("OFD文本提取完成", zap.Int("entries", len(xmlFiles)), zap.Int("length", len(doc.Text)))
	return doc, nil
}

func (e *OFDExtractor) classify(f *zip.File) LayoutInfo {
	root, err := readXML(f)
	if err != nil {
		e.logger.Warn("排版判定失败，按文字排版处理", zap.String("entry", f.Name), zap.Error(err))
		return LayoutInfo{Kind: LayoutText, Reason: err.Error()}
	}
	info := ClassifyLayout(root)
	if info.Reason != "" {
		e.logger.Debug("排版判定不完整", zap.String("entry", f.Name), zap.String("reason", info.Reason))
	}
	return info
}

func (e *OFDExtractor) harvestEntry(f *zip.File) (string, error) {
	root, err := readXML(f)
	if err != nil {
		return "", err
	}
	var fragments []string
	collectText(root, &fragments)
	return strings.Join(fragments, " "), nil
}

// readXML 读取压缩包条目并解析为XML根元素
func readXML(f *zip.File) (*etree.Element, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("打开条目失败: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("读取条目失败: %w", err)
	}

	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("解析XML失败: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, errors.New("XML没有根元素")
	}
	return root, nil
}

// collectText 递归收集元素的直接文本，属性不参与
func collectText(el *etree.Element, out *[]string) {
	if _, skip := skippedElements[el.Tag]; skip {
		return
	}
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			s := strings.TrimSpace(t.Data)
			if s != "" && !numericOnly.MatchString(s) {
				*out = append(*out, s)
			}
		case *etree.Element:
			collectText(t, out)
		}
	}
}
