package extract

import "fmt"

// ExtractionError 文档容器（PDF/ZIP）损坏或无法读取
type ExtractionError struct {
	Format string // "pdf" 或 "ofd"
	Entry  string // 出错的压缩包条目，可为空
	Err    error
}

func (e *ExtractionError) Error() string {
	msg := "文档解析失败"
	switch e.Format {
	case "pdf":
		msg = "PDF解析失败"
	case "ofd":
		msg = "OFD解析失败"
	}
	if e.Entry != "" {
		msg += fmt.Sprintf(" (%s)", e.Entry)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
