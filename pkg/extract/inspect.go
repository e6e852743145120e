package extract

import (
	"bytes"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFInfo PDF文件的基本信息
type PDFInfo struct {
	PageCount int    `json:"page_count"`
	Version   string `json:"version"`
	Encrypted bool   `json:"encrypted"`
	Size      int    `json:"size"`
}

// InspectPDF 校验PDF结构并返回页数、版本等信息
func InspectPDF(buf []byte) (*PDFInfo, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(buf), conf)
	if err != nil {
		return nil, &ExtractionError{Format: "pdf", Err: err}
	}

	return &PDFInfo{
		PageCount: ctx.PageCount,
		Version:   ctx.Version().String(),
		Encrypted: ctx.Encrypt != nil,
		Size:      len(buf),
	}, nil
}
