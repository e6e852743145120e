package parser

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nerdneilsfield/go-invoice-parser/pkg/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func putFile(t *testing.T, path string, data []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// invoiceDir 生成 a.ofd(可识别) b.ofd(损坏) c.txt(不支持) e.png(图片) sub/d.ofd(可识别)
func invoiceDir(t *testing.T) string {
	dir := t.TempDir()
	putFile(t, filepath.Join(dir, "a.ofd"), textOFD(t, receiptText))
	putFile(t, filepath.Join(dir, "b.ofd"), []byte("broken"))
	putFile(t, filepath.Join(dir, "c.txt"), []byte(receiptText))
	putFile(t, filepath.Join(dir, "e.png"), []byte("png"))
	putFile(t, filepath.Join(dir, "sub", "d.ofd"), textOFD(t, receiptText))
	return dir
}

func TestCollectFiles(t *testing.T) {
	dir := invoiceDir(t)
	proc := NewProcessor(newParser(nil), zap.NewNop())

	files, err := proc.CollectFiles([]string{dir}, ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.ofd"),
		filepath.Join(dir, "b.ofd"),
		filepath.Join(dir, "sub", "d.ofd"),
	}, files)

	files, err = proc.CollectFiles([]string{dir}, ProcessOptions{IncludeImages: true})
	require.NoError(t, err)
	assert.Contains(t, files, filepath.Join(dir, "e.png"))

	_, err = proc.CollectFiles([]string{filepath.Join(dir, "missing.pdf")}, ProcessOptions{})
	assert.Error(t, err)

	files, err = proc.CollectFiles([]string{filepath.Join(dir, "missing.pdf"), filepath.Join(dir, "a.ofd")}, ProcessOptions{ContinueOnError: true})
	require.NoError(t, err)
	assert.Len(t, files, 1)

	_, err = proc.CollectFiles([]string{filepath.Join(dir, "c.txt")}, ProcessOptions{})
	assert.EqualError(t, err, "没有找到可处理的文件")
}

func TestParseFilesKeepsOrder(t *testing.T) {
	dir := invoiceDir(t)

	var mu sync.Mutex
	var seen []string
	proc := NewProcessor(newParser(nil), zap.NewNop(),
		WithWorkers(3),
		WithProgress(func(r *FileResult) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, r.Path)
		}))

	results, err := proc.ParseFiles(context.Background(), []string{dir}, ProcessOptions{ContinueOnError: true})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, filepath.Join(dir, "a.ofd"), results[0].Path)
	require.NotNil(t, results[0].Invoice)
	assert.Equal(t, "88", results[0].Invoice.Amount.String())
	assert.Equal(t, MIMEOFD, results[0].MIME)

	assert.Equal(t, filepath.Join(dir, "b.ofd"), results[1].Path)
	var extErr *extract.ExtractionError
	assert.ErrorAs(t, results[1].Err, &extErr)
	assert.Nil(t, results[1].Invoice)

	assert.Equal(t, filepath.Join(dir, "sub", "d.ofd"), results[2].Path)
	assert.NotNil(t, results[2].Invoice)

	assert.Len(t, seen, 3)
}

func TestParseFilesStopsOnError(t *testing.T) {
	dir := t.TempDir()
	broken := putFile(t, filepath.Join(dir, "a.ofd"), []byte("broken"))
	putFile(t, filepath.Join(dir, "b.ofd"), textOFD(t, receiptText))

	proc := NewProcessor(newParser(nil), zap.NewNop(), WithWorkers(1))
	results, err := proc.ParseFiles(context.Background(), []string{dir}, ProcessOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), broken)
	require.NotEmpty(t, results)
	assert.Equal(t, broken, results[0].Path)
	assert.Error(t, results[0].Err)
}

func TestParseFilesUnreadable(t *testing.T) {
	dir := t.TempDir()
	path := putFile(t, filepath.Join(dir, "a.pdf"), []byte("x"))

	proc := NewProcessor(newParser(nil), zap.NewNop())
	proc.readFile = func(string) ([]byte, error) { return nil, os.ErrPermission }

	results, err := proc.ParseFiles(context.Background(), []string{path}, ProcessOptions{ContinueOnError: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, os.ErrPermission)
}

func TestSaveResults(t *testing.T) {
	dir := invoiceDir(t)
	out := filepath.Join(t.TempDir(), "out")

	proc := NewProcessor(newParser(nil), zap.NewNop())
	results, err := proc.ParseFiles(context.Background(), []string{dir}, ProcessOptions{ContinueOnError: true})
	require.NoError(t, err)

	paths, err := proc.SaveResults(results, ProcessOptions{OutputDir: out})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(out, ResultsJSONName), filepath.Join(out, ResultsXLSXName)}, paths)

	raw, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(raw, &rows))
	require.Len(t, rows, 3)
	assert.NotNil(t, rows[0]["invoice"])
	assert.Contains(t, rows[1]["error"], "OFD")

	info, err := os.Stat(paths[1])
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
