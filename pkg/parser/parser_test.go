package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/nerdneilsfield/go-invoice-parser/pkg/extract"
	"github.com/nerdneilsfield/go-invoice-parser/pkg/invoice"
	"github.com/nerdneilsfield/go-invoice-parser/pkg/ocr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeOCR 返回固定结果并记录调用
type fakeOCR struct {
	result *ocr.RecognitionResult
	err    error
	calls  int
	mime   string
}

func (f *fakeOCR) Recognize(_ context.Context, _ []byte, mime string) (*ocr.RecognitionResult, error) {
	f.calls++
	f.mime = mime
	return f.result, f.err
}

const receiptText = "收据 ¥ 88元"

func ofdPackage(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("Doc_0/Pages/Page_0/Content.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func textOFD(t *testing.T, text string) []byte {
	return ofdPackage(t, `<?xml version="1.0" encoding="UTF-8"?>
<ofd:Page xmlns:ofd="http://www.ofdspec.org/2016"><ofd:Content><ofd:Layer ID="1">
<ofd:TextObject ID="2" Boundary="0 0 10 10"><ofd:TextCode X="0" Y="0">`+text+`</ofd:TextCode></ofd:TextObject>
</ofd:Layer></ofd:Content></ofd:Page>`)
}

func vectorOFD(t *testing.T) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<ofd:Page xmlns:ofd="http://www.ofdspec.org/2016"><ofd:Content><ofd:Layer ID="1">`)
	b.WriteString(`<ofd:TextObject ID="2"><ofd:TextCode>电子发票</ofd:TextCode></ofd:TextObject><ofd:PageBlock ID="3">`)
	for i := 0; i < 150; i++ {
		fmt.Fprintf(&b, `<ofd:PathObject ID="%d"><ofd:AbbreviatedData>M 0 0 L 1 1</ofd:AbbreviatedData></ofd:PathObject>`, 10+i)
	}
	b.WriteString(`</ofd:PageBlock></ofd:Layer></ofd:Content></ofd:Page>`)
	return ofdPackage(t, b.String())
}

func newParser(recognizer Recognizer) *Parser {
	return New(nil, nil, recognizer, nil, zap.NewNop())
}

func TestParseOFDText(t *testing.T) {
	fake := &fakeOCR{}
	data, err := newParser(fake).Parse(context.Background(), textOFD(t, receiptText), MIMEOFD)

	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, "88", data.Amount.String())
	// 没有发票关键词的数字文本由火车票的宽松金额模式接住
	assert.Equal(t, "train", data.Source)
	assert.Zero(t, fake.calls)
}

func TestParseOFDScenarios(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		amount      string
		category    invoice.Category
		description string
		source      string
	}{
		{
			name:        "train ticket",
			text:        "铁路电子客票 2025年11月28日 Shanghaihongqiao G123 Beijingnan 二等座 票价: 674.00 3301841997****2813 张三",
			amount:      "674.00",
			category:    invoice.CategoryTransport,
			description: "火车票 G123 (Shanghaihongqiao -> Beijingnan)",
			source:      "train",
		},
		{
			name:        "regular invoice",
			text:        "电子发票（普通发票） 开票日期：2025年11月28日 项目 餐饮服务 价税合计（大写） 肆仟捌佰贰拾贰圆整 ¥ 4822.00",
			amount:      "4822.00",
			category:    invoice.CategoryMeals,
			description: "普通发票",
			source:      "regular",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeOCR{}
			data, err := newParser(fake).Parse(context.Background(), textOFD(t, tt.text), MIMEOFD)

			require.NoError(t, err)
			require.NotNil(t, data)
			assert.True(t, decimal.RequireFromString(tt.amount).Equal(data.Amount), "amount: %s", data.Amount)
			assert.Equal(t, "2025-11-28", data.DateString())
			assert.True(t, data.DateFromText)
			assert.Equal(t, tt.category, data.Category)
			assert.Equal(t, tt.description, data.Description)
			assert.Equal(t, tt.source, data.Source)
			assert.Zero(t, fake.calls)
		})
	}
}

func TestParseVectorOFDUsesOCR(t *testing.T) {
	fake := &fakeOCR{result: &ocr.RecognitionResult{Success: true, Provider: ocr.ProviderAliyun, Text: receiptText}}
	data, err := newParser(fake).Parse(context.Background(), vectorOFD(t), MIMEXOFD)

	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, "88", data.Amount.String())
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, MIMEXOFD, fake.mime)
}

func TestParseVectorOFDOCRFailure(t *testing.T) {
	fake := &fakeOCR{result: &ocr.RecognitionResult{Provider: ocr.ProviderAliyun, Error: "OCR请求失败"}}
	data, err := newParser(fake).Parse(context.Background(), vectorOFD(t), MIMEOFD)

	assert.NoError(t, err)
	assert.Nil(t, data)
	assert.Equal(t, 1, fake.calls)
}

func TestParseVectorOFDWithoutOCR(t *testing.T) {
	data, err := newParser(nil).Parse(context.Background(), vectorOFD(t), MIMEOFD)
	assert.NoError(t, err)
	assert.Nil(t, data)
}

func TestParseStructuredResultWins(t *testing.T) {
	fake := &fakeOCR{result: &ocr.RecognitionResult{
		Success:  true,
		Provider: ocr.ProviderTencent,
		Text:     receiptText,
		Invoice: &ocr.StructuredInvoice{
			Kind:          "VatElectronicInvoiceFull",
			InvoiceType:   "增值税电子普通发票",
			InvoiceNumber: "25312000000123456789",
			InvoiceDate:   "2025-11-28",
			TotalAmount:   decimal.RequireFromString("4822.00"),
		},
	}}
	data, err := newParser(fake).Parse(context.Background(), []byte("png"), MIMEPNG)

	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, "4822", data.Amount.String())
	assert.Equal(t, "ocr:tencent", data.Source)
	assert.Equal(t, "2025-11-28", data.DateString())
	assert.Equal(t, "25312000000123456789", data.InvoiceNumber)
}

func TestParseStructuredWithoutAmountFallsBackToText(t *testing.T) {
	fake := &fakeOCR{result: &ocr.RecognitionResult{
		Success:  true,
		Provider: ocr.ProviderTencent,
		Text:     receiptText,
		Invoice:  &ocr.StructuredInvoice{Kind: "OtherInvoice"},
	}}
	data, err := newParser(fake).Parse(context.Background(), []byte("jpg"), MIMEJPEG)

	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, "train", data.Source)
	assert.Equal(t, "88", data.Amount.String())
}

func TestParseImageErrors(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		unconfigured := ocr.Unconfigured{Err: &ocr.ConfigurationError{Provider: ocr.ProviderAliyun, Missing: []string{"access_key_id"}}}
		data, err := newParser(unconfigured).Parse(context.Background(), []byte("png"), MIMEPNG)

		var cfgErr *ocr.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Nil(t, data)
	})

	t.Run("transport error", func(t *testing.T) {
		data, err := newParser(&fakeOCR{err: errors.New("boom")}).Parse(context.Background(), []byte("png"), MIMEPNG)
		assert.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newParser(&fakeOCR{err: context.Canceled}).Parse(ctx, []byte("png"), MIMEPNG)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("no recognizer", func(t *testing.T) {
		data, err := newParser(nil).Parse(context.Background(), []byte("png"), MIMEPNG)
		assert.NoError(t, err)
		assert.Nil(t, data)
	})
}

func TestParseCorruptDocuments(t *testing.T) {
	p := newParser(nil)

	for _, mime := range []string{MIMEPDF, "Application/PDF; charset=binary", MIMEOFD} {
		t.Run(mime, func(t *testing.T) {
			_, err := p.Parse(context.Background(), []byte("not a document"), mime)
			var extErr *extract.ExtractionError
			assert.ErrorAs(t, err, &extErr)
		})
	}
}

func TestParseUnsupportedMIME(t *testing.T) {
	fake := &fakeOCR{}
	data, err := newParser(fake).Parse(context.Background(), []byte(receiptText), "text/plain")

	assert.NoError(t, err)
	assert.Nil(t, data)
	assert.Zero(t, fake.calls)
}

func TestParseBlankOFD(t *testing.T) {
	data, err := newParser(nil).Parse(context.Background(), textOFD(t, "  "), MIMEOFD)
	assert.NoError(t, err)
	assert.Nil(t, data)
}

func TestDetectMIME(t *testing.T) {
	assert.Equal(t, MIMEPDF, DetectMIME("/tmp/a.PDF"))
	assert.Equal(t, MIMEOFD, DetectMIME("invoice.ofd"))
	assert.Equal(t, MIMEJPEG, DetectMIME("scan.jpeg"))
	assert.Equal(t, MIMEPNG, DetectMIME("scan.png"))
	assert.Empty(t, DetectMIME("notes.txt"))
	assert.Empty(t, DetectMIME("noext"))
}
