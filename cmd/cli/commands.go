package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/go-invoice-parser/internal/config"
	"github.com/nerdneilsfield/go-invoice-parser/pkg/export"
	"github.com/nerdneilsfield/go-invoice-parser/pkg/extract"
	"github.com/nerdneilsfield/go-invoice-parser/pkg/invoice"
	"github.com/nerdneilsfield/go-invoice-parser/pkg/ocr"
	"github.com/nerdneilsfield/go-invoice-parser/pkg/parser"
	"github.com/nerdneilsfield/go-invoice-parser/pkg/utils"
)

// newRecognizer 按配置创建OCR识别器，provider 为 none 时返回 nil。
// 凭证缺失不在这里报错，而是在第一次需要OCR时返回配置错误。
func newRecognizer() (parser.Recognizer, error) {
	opts := []ocr.ClientOption{
		ocr.WithTimeout(cfg.OCRTimeout()),
		ocr.WithMaxRetries(cfg.MaxRetries),
	}

	switch strings.ToLower(cfg.OCRProvider) {
	case config.ProviderNone:
		return nil, nil

	case config.ProviderTencent:
		opts = append(opts, ocr.WithEndpoint(cfg.Tencent.Endpoint))
		client, err := ocr.NewTencentClient(cfg.Tencent.SecretID, cfg.Tencent.SecretKey, cfg.Tencent.Region, log, opts...)
		if err != nil {
			return unconfigured(err)
		}
		return client, nil

	case config.ProviderAliyun, "":
		opts = append(opts, ocr.WithEndpoint(cfg.Aliyun.Endpoint), ocr.WithAction(cfg.Aliyun.Action))
		client, err := ocr.NewAliyunClient(cfg.Aliyun.AccessKeyID, cfg.Aliyun.AccessKeySecret, log, opts...)
		if err != nil {
			return unconfigured(err)
		}
		return client, nil
	}

	return nil, fmt.Errorf("不支持的OCR服务: %s", cfg.OCRProvider)
}

func unconfigured(err error) (parser.Recognizer, error) {
	var cfgErr *ocr.ConfigurationError
	if errors.As(err, &cfgErr) {
		log.Warn("OCR凭证未配置，需要OCR的文件将报错", zap.String("provider", cfgErr.Provider), zap.Strings("missing", cfgErr.Missing))
		return ocr.Unconfigured{Err: cfgErr}, nil
	}
	return nil, err
}

func newParser() (*parser.Parser, error) {
	recognizer, err := newRecognizer()
	if err != nil {
		return nil, err
	}
	return parser.New(
		extract.NewPDFExtractor(log, extract.WithMaxPages(cfg.PDFMaxPages)),
		extract.NewOFDExtractor(log),
		recognizer,
		invoice.NewChain(log),
		log,
	), nil
}

// runParse 批量解析文件
func runParse(cmd *cobra.Command, args []string) error {
	p, err := newParser()
	if err != nil {
		return err
	}

	opts := parser.ProcessOptions{
		OutputDir:       cfg.OutputDir,
		IncludeImages:   cfg.IncludeImages,
		ContinueOnError: cfg.ContinueOnError,
		SkipXLSX:        !cfg.ExportXLSX,
	}

	var tracker *utils.ProgressTracker
	proc := parser.NewProcessor(p, log,
		parser.WithWorkers(cfg.Workers),
		parser.WithFileTimeout(cfg.FileTimeout()),
		parser.WithProgress(func(r *parser.FileResult) {
			if tracker != nil {
				tracker.Step(filepath.Base(r.Path), r.Err != nil)
			}
		}))

	files, err := proc.CollectFiles(args, opts)
	if err != nil {
		return err
	}

	if dryRun {
		log.Info("空运行模式，不执行实际操作", zap.Int("files", len(files)))
		for _, f := range files {
			fmt.Println(f)
		}
		return nil
	}

	if !jsonOutput && utils.IsTerminal() {
		tracker = utils.NewProgressTracker("解析发票", len(files))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	start := time.Now()
	results, parseErr := proc.ParseFiles(ctx, files, opts)
	if parseErr != nil && len(results) == 0 {
		return parseErr
	}
	if tracker != nil {
		tracker.Complete()
	}

	summary := summarize(results)
	summary.Elapsed = time.Since(start)

	if jsonOutput {
		if err := export.WriteJSON(os.Stdout, parser.ToRows(results)); err != nil {
			return err
		}
	}

	written, err := proc.SaveResults(results, opts)
	if err != nil {
		log.Error("保存结果失败", zap.Error(err))
		return err
	}
	summary.OutputDir = cfg.OutputDir
	summary.Files = written

	if !jsonOutput {
		utils.PrintSummary(os.Stdout, summary)
	}
	return parseErr
}

func summarize(results []*parser.FileResult) utils.Summary {
	s := utils.Summary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Err != nil:
			s.Failed++
		case r.Invoice != nil:
			s.Recognized++
		}
	}
	return s
}

// runOCR 直接调用OCR服务，输出原始识别结果
func runOCR(cmd *cobra.Command, args []string) error {
	path := args[0]
	mime := parser.DetectMIME(path)
	if mime == "" {
		return fmt.Errorf("不支持的文件类型: %s", filepath.Ext(path))
	}

	recognizer, err := newRecognizer()
	if err != nil {
		return err
	}
	if recognizer == nil {
		return errors.New("未配置OCR服务，请设置 ocr_provider")
	}

	if dryRun {
		log.Info("空运行模式，不执行实际操作", zap.String("file", path), zap.String("provider", cfg.OCRProvider))
		return nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取文件失败: %w", err)
	}

	result, err := recognizer.Recognize(cmd.Context(), buf, mime)
	if err != nil {
		return err
	}

	out := struct {
		*ocr.RecognitionResult
		Parsed *invoice.InvoiceData `json:"parsed,omitempty"`
	}{RecognitionResult: result}
	if result.Success {
		if result.Invoice != nil {
			out.Parsed = result.Invoice.ToInvoiceData(result.Text)
		}
		if out.Parsed == nil {
			out.Parsed = invoice.NewChain(log).Recognize(result.Text)
		}
	}
	return printJSON(out)
}

// runInspect 输出文件结构信息
func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取文件失败: %w", err)
	}

	switch parser.DetectMIME(path) {
	case parser.MIMEPDF:
		info, err := extract.InspectPDF(buf)
		if err != nil {
			return err
		}
		text, err := extract.NewPDFExtractor(log, extract.WithMaxPages(cfg.PDFMaxPages)).ExtractText(cmd.Context(), buf)
		if err != nil {
			return err
		}
		return printJSON(struct {
			*extract.PDFInfo
			Text string `json:"text"`
		}{info, text})

	case parser.MIMEOFD:
		doc, err := extract.NewOFDExtractor(log).Extract(cmd.Context(), buf)
		if err != nil {
			return err
		}
		fmt.Printf("排版类型: %s (路径对象 %d, 文字对象 %d)\n", doc.Layout.Kind, doc.Layout.PathCount, doc.Layout.TextCount)
		if doc.Layout.Reason != "" {
			fmt.Printf("说明: %s\n", doc.Layout.Reason)
		}
		fmt.Println("条目:")
		for _, e := range doc.Entries {
			fmt.Printf("  %s\n", e)
		}
		if doc.Layout.IsVectorGraphics() {
			fmt.Println("矢量排版，文本需要通过OCR识别")
			return nil
		}
		fmt.Printf("文本:\n%s\n", doc.Text)
		return nil
	}

	return fmt.Errorf("inspect 只支持 PDF 和 OFD 文件: %s", path)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
