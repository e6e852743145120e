package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/nerdneilsfield/go-invoice-parser/pkg/invoice"
	"github.com/xuri/excelize/v2"
)

// SheetName 导出的工作表名称
const SheetName = "发票"

var headers = []string{"文件", "开票日期", "类别", "费用项目", "金额", "说明", "发票号码", "销售方"}

// Row 一个文件的解析结果
type Row struct {
	File    string               `json:"file"`
	Invoice *invoice.InvoiceData `json:"invoice,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// WriteXLSX 把解析结果写成一个工作簿，未识别的文件只填文件名和说明
func WriteXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	// 新建文件自带 Sheet1，重命名为发票
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("创建工作表失败: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return fmt.Errorf("写入表头失败: %w", err)
		}
	}

	for i, r := range rows {
		line := i + 2
		write := func(col int, v any) error {
			cell, _ := excelize.CoordinatesToCellName(col, line)
			return f.SetCellValue(SheetName, cell, v)
		}

		values := rowValues(r)
		for col, v := range values {
			if err := write(col+1, v); err != nil {
				return fmt.Errorf("写入第%d行失败: %w", line, err)
			}
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 40) // 文件
	_ = f.SetColWidth(SheetName, "B", "D", 14)
	_ = f.SetColWidth(SheetName, "E", "E", 12) // 金额
	_ = f.SetColWidth(SheetName, "F", "F", 48) // 说明
	_ = f.SetColWidth(SheetName, "G", "H", 28)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("写入xlsx失败: %w", err)
	}
	return nil
}

func rowValues(r Row) []any {
	d := r.Invoice
	if d == nil {
		note := "未识别"
		if r.Error != "" {
			note = "解析失败: " + r.Error
		}
		return []any{r.File, "", "", "", "", note, "", ""}
	}
	return []any{
		r.File,
		d.DateString(),
		string(d.Category),
		d.ExpenseCategory,
		d.Amount.InexactFloat64(),
		d.Description,
		d.InvoiceNumber,
		d.SellerName,
	}
}

// WriteJSON 以缩进格式写出解析结果
func WriteJSON(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("写入JSON失败: %w", err)
	}
	return nil
}
