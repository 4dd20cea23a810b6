package orchestrator

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/nakaz-search/nakaz-search/internal/atomic"
	"github.com/nakaz-search/nakaz-search/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDocx(t *testing.T, path string, paragraphs ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)

	xmlBody := `<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="ns"><w:body>`
	for _, p := range paragraphs {
		xmlBody += `<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`
	}
	xmlBody += `</w:body></w:document>`

	_, err = w.Write([]byte(xmlBody))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
}

func TestTick_ReconcilesAndSwapsEvaluatorSnapshot(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "cache")
	writeDocx(t, filepath.Join(local, "order1.docx"), "Наказ про призначення")

	manager := atomic.New(
		filepath.Join(dir, "documents_index.json"),
		filepath.Join(dir, "inverted_index.json"),
		filepath.Join(dir, "index_update.lock"),
	)
	evaluator := search.NewEvaluator(nil, nil)

	o := New(manager, evaluator, "", local, nil)
	o.tick()

	results := evaluator.Search("наказ", search.Full, search.ViewDefault)
	require.Len(t, results, 1)
	assert.Equal(t, "order1.docx", results[0].FileName)
}

func TestTick_NoChangesLeavesEvaluatorUntouched(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "cache")
	writeDocx(t, filepath.Join(local, "order1.docx"), "Наказ")

	manager := atomic.New(
		filepath.Join(dir, "documents_index.json"),
		filepath.Join(dir, "inverted_index.json"),
		filepath.Join(dir, "index_update.lock"),
	)
	evaluator := search.NewEvaluator(nil, nil)

	o := New(manager, evaluator, "", local, nil)
	o.tick()
	o.tick()

	results := evaluator.Search("наказ", search.Full, search.ViewDefault)
	assert.Len(t, results, 1)
}
