package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nerdneilsfield/go-invoice-parser/pkg/export"
	"github.com/nerdneilsfield/go-invoice-parser/pkg/invoice"
	"go.uber.org/zap"
)

// 输出文件名
const (
	ResultsJSONName = "results.json"
	ResultsXLSXName = "invoices.xlsx"
)

// ProcessOptions 批量处理选项
type ProcessOptions struct {
	OutputDir       string
	IncludeImages   bool // 目录扫描时是否包含图片，图片只能走OCR
	ContinueOnError bool // 某个文件失败时是否继续处理其余文件
	SkipXLSX        bool // 只写出 results.json
}

// FileResult 单个文件的处理结果
type FileResult struct {
	Path    string
	MIME    string
	Invoice *invoice.InvoiceData
	Err     error
	Elapsed time.Duration
}

// Processor 并发解析多个文件
type Processor struct {
	parser   *Parser
	logger   *zap.Logger
	workers  int
	timeout  time.Duration
	progress func(*FileResult)
	readFile func(string) ([]byte, error)
}

// ProcessorOption 处理器选项
type ProcessorOption func(*Processor)

// WithWorkers 设置并发数
func WithWorkers(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithFileTimeout 设置单个文件的处理超时
func WithFileTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithProgress 每个文件处理完成后回调，可能在多个goroutine中调用
func WithProgress(fn func(*FileResult)) ProcessorOption {
	return func(p *Processor) {
		p.progress = fn
	}
}

// NewProcessor 创建批量处理器
func NewProcessor(parser *Parser, logger *zap.Logger, opts ...ProcessorOption) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		parser:   parser,
		logger:   logger,
		workers:  4,
		timeout:  3 * time.Minute,
		readFile: os.ReadFile,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// CollectFiles 展开目录并过滤出支持的文件
func (p *Processor) CollectFiles(paths []string, opts ProcessOptions) ([]string, error) {
	var files []string
	var errs []error

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			p.logger.Error("获取文件信息失败", zap.String("path", path), zap.Error(err))
			if !opts.ContinueOnError {
				return nil, fmt.Errorf("获取文件信息失败: %w", err)
			}
			errs = append(errs, err)
			continue
		}

		if !info.IsDir() {
			if p.supported(path, opts) {
				files = append(files, path)
			} else {
				p.logger.Warn("跳过不支持的文件", zap.String("file", path))
			}
			continue
		}

		p.logger.Info("扫描目录", zap.String("dir", path))
		err = filepath.Walk(path, func(filePath string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !fi.IsDir() && p.supported(filePath, opts) {
				files = append(files, filePath)
			}
			return nil
		})
		if err != nil {
			p.logger.Error("扫描目录失败", zap.String("dir", path), zap.Error(err))
			if !opts.ContinueOnError {
				return nil, fmt.Errorf("扫描目录失败: %w", err)
			}
			errs = append(errs, err)
		}
	}

	if len(files) == 0 {
		if len(errs) > 0 {
			return nil, fmt.Errorf("没有找到可处理的文件，发生了 %d 个错误", len(errs))
		}
		return nil, errors.New("没有找到可处理的文件")
	}
	return files, nil
}

func (p *Processor) supported(path string, opts ProcessOptions) bool {
	mime := DetectMIME(path)
	if mime == "" {
		return false
	}
	return opts.IncludeImages || !strings.HasPrefix(mime, "image/")
}

// ParseFiles 用固定数量的worker解析文件，结果与输入顺序一致。
// ContinueOnError 为 false 时，第一个错误会取消尚未开始的文件。
func (p *Processor) ParseFiles(ctx context.Context, paths []string, opts ProcessOptions) ([]*FileResult, error) {
	files, err := p.CollectFiles(paths, opts)
	if err != nil {
		return nil, err
	}
	p.logger.Info("开始处理文件", zap.Int("total", len(files)), zap.Int("workers", p.workers))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]*FileResult, len(files))
	jobs := make(chan int)

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)

	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range jobs {
				res := p.parseFile(ctx, files[i])
				results[i] = res

				if res.Err != nil {
					p.logger.Error("处理文件失败", zap.Int("worker", workerID), zap.String("file", res.Path), zap.Error(res.Err))
					if !opts.ContinueOnError {
						once.Do(func() {
							firstErr = fmt.Errorf("处理文件失败 %s: %w", res.Path, res.Err)
							cancel()
						})
					}
				} else {
					p.logger.Debug("文件处理完成", zap.Int("worker", workerID), zap.String("file", res.Path), zap.Duration("elapsed", res.Elapsed))
				}
				if p.progress != nil {
					p.progress(res)
				}
			}
		}(w + 1)
	}

feed:
	for i := range files {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	// 被取消而未处理的文件不出现在结果中
	out := make([]*FileResult, 0, len(results))
	var recognized, failed int
	for _, r := range results {
		if r == nil {
			continue
		}
		out = append(out, r)
		switch {
		case r.Err != nil:
			failed++
		case r.Invoice != nil:
			recognized++
		}
	}

	p.logger.Info("所有文件处理完成",
		zap.Int("recognized", recognized),
		zap.Int("failed", failed),
		zap.Int("processed", len(out)),
		zap.Int("total", len(files)))

	if firstErr != nil {
		return out, firstErr
	}
	if err := ctx.Err(); err != nil && len(out) < len(files) {
		return out, err
	}
	return out, nil
}

func (p *Processor) parseFile(ctx context.Context, path string) *FileResult {
	start := time.Now()
	res := &FileResult{Path: path, MIME: DetectMIME(path)}

	buf, err := p.readFile(path)
	if err != nil {
		res.Err = fmt.Errorf("读取文件失败: %w", err)
		res.Elapsed = time.Since(start)
		return res
	}

	fileCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res.Invoice, res.Err = p.parser.Parse(fileCtx, buf, res.MIME)
	res.Elapsed = time.Since(start)
	return res
}

// SaveResults 把结果写入输出目录下的 results.json 和 invoices.xlsx，返回写出的文件路径
func (p *Processor) SaveResults(results []*FileResult, opts ProcessOptions) ([]string, error) {
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录错误: %w", err)
	}

	rows := ToRows(results)
	jsonPath := filepath.Join(opts.OutputDir, ResultsJSONName)
	if err := writeFile(jsonPath, func(f *os.File) error { return export.WriteJSON(f, rows) }); err != nil {
		return nil, err
	}
	p.logger.Debug("保存了JSON文件", zap.String("path", jsonPath))
	if opts.SkipXLSX {
		return []string{jsonPath}, nil
	}

	xlsxPath := filepath.Join(opts.OutputDir, ResultsXLSXName)
	if err := writeFile(xlsxPath, func(f *os.File) error { return export.WriteXLSX(f, rows) }); err != nil {
		return nil, err
	}
	p.logger.Debug("保存了xlsx文件", zap.String("path", xlsxPath))

	return []string{jsonPath, xlsxPath}, nil
}

// ToRows 转为导出行
func ToRows(results []*FileResult) []export.Row {
	rows := make([]export.Row, 0, len(results))
	for _, r := range results {
		row := export.Row{File: r.Path, Invoice: r.Invoice}
		if r.Err != nil {
			row.Error = r.Err.Error()
		}
		rows = append(rows, row)
	}
	return rows
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建文件失败: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("关闭文件失败: %w", err)
	}
	return nil
}
