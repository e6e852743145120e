package export

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/nerdneilsfield/go-invoice-parser/pkg/invoice"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleRows() []Row {
	return []Row{
		{
			File: "a.pdf",
			Invoice: &invoice.InvoiceData{
				Amount:          decimal.RequireFromString("4822.00"),
				Date:            time.Date(2025, time.November, 28, 0, 0, 0, 0, time.UTC),
				Description:     "普通发票 6789",
				Category:        invoice.CategoryMeals,
				ExpenseCategory: "餐饮服务",
				InvoiceNumber:   "25312000000123456789",
				SellerName:      "杭州西湖餐饮管理有限公司",
			},
		},
		{File: "b.ofd"},
		{File: "c.pdf", Error: "PDF解析失败"},
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleRows()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, headers, rows[0])
	assert.Equal(t, []string{"a.pdf", "2025-11-28", "餐饮", "餐饮服务", "4822", "普通发票 6789", "25312000000123456789", "杭州西湖餐饮管理有限公司"}, rows[1])
	assert.Equal(t, "b.ofd", rows[2][0])
	assert.Equal(t, "未识别", rows[2][5])
	assert.Equal(t, "解析失败: PDF解析失败", rows[3][5])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleRows()))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 3)

	inv := decoded[0]["invoice"].(map[string]any)
	assert.Equal(t, "2025-11-28", inv["date"])
	assert.Equal(t, "4822", inv["amount"])
	assert.Nil(t, decoded[1]["invoice"])
	assert.Equal(t, "PDF解析失败", decoded[2]["error"])
}
