package utils

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// ProgressTracker 批量解析的进度跟踪器，可在多个goroutine中调用 Step
type ProgressTracker struct {
	mu        sync.Mutex
	bar       *progressbar.ProgressBar
	startTime time.Time
	title     string
	steps     int
	current   int
	failed    int
}

// NewProgressTracker 创建一个输出到标准错误的进度跟踪器
func NewProgressTracker(title string, steps int) *ProgressTracker {
	return NewProgressTrackerTo(os.Stderr, title, steps)
}

// NewProgressTrackerTo 创建输出到指定 writer 的进度跟踪器
func NewProgressTrackerTo(w io.Writer, title string, steps int) *ProgressTracker {
	bar := progressbar.NewOptions(steps,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", title)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)

	return &ProgressTracker{
		bar:       bar,
		startTime: time.Now(),
		title:     title,
		steps:     steps,
	}
}

// Step 完成一个文件，failed 为 true 时计入失败数
func (pt *ProgressTracker) Step(name string, failed bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.current++
	if failed {
		pt.failed++
	}
	elapsed := time.Since(pt.startTime)
	pt.bar.Describe(fmt.Sprintf("[cyan]%s[reset] - %s (%s)", pt.title, name, formatDuration(elapsed)))
	_ = pt.bar.Add(1)
}

// Complete 补齐进度条并返回总耗时
func (pt *ProgressTracker) Complete() time.Duration {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	elapsed := time.Since(pt.startTime)
	if remaining := pt.steps - pt.current; remaining > 0 {
		_ = pt.bar.Add(remaining)
		pt.current = pt.steps
	}
	return elapsed
}

// Failed 返回失败的文件数
func (pt *ProgressTracker) Failed() int {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.failed
}

// formatDuration 按时分秒显示耗时，例如 1m5s
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h, m, sec := int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%dm%ds", h, m, sec)
	case m > 0:
		return fmt.Sprintf("%dm%ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}

// Summary 批量解析结果统计
type Summary struct {
	OutputDir  string
	Files      []string // 写出的结果文件
	Total      int
	Recognized int
	Failed     int
	Elapsed    time.Duration
}

// PrintSummary 打印处理结果
func PrintSummary(w io.Writer, s Summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "✅ 处理完成!")
	if s.OutputDir != "" {
		fmt.Fprintf(w, "📂 输出目录: %s\n", s.OutputDir)
	}
	for _, f := range s.Files {
		fmt.Fprintf(w, "   - %s\n", f)
	}
	fmt.Fprintf(w, "📄 文件总数: %d\n", s.Total)
	fmt.Fprintf(w, "🧾 识别成功: %d\n", s.Recognized)
	if missed := s.Total - s.Recognized - s.Failed; missed > 0 {
		fmt.Fprintf(w, "❔ 未识别: %d\n", missed)
	}
	if s.Failed > 0 {
		fmt.Fprintf(w, "❌ 解析失败: %d\n", s.Failed)
	}
	fmt.Fprintf(w, "⏱️ 处理时间: %s\n", formatDuration(s.Elapsed))
	fmt.Fprintln(w)
}

// IsTerminal 检查是否在终端中运行
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
