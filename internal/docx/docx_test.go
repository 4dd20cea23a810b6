package docx

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDocx writes a minimal DOCX (a ZIP containing only word/document.xml,
// which is all ExtractParagraphs reads) whose body paragraphs carry the
// given styles and texts, and returns its path.
func buildDocx(t *testing.T, dir string, styles, texts []string) string {
	t.Helper()
	require.Equal(t, len(styles), len(texts))

	var body string
	for i := range texts {
		pPr := ""
		if styles[i] != "" {
			pPr = `<w:pPr><w:pStyle w:val="` + styles[i] + `"/></w:pPr>`
		}
		body += `<w:p>` + pPr + `<w:r><w:t>` + texts[i] + `</w:t></w:r></w:p>`
	}
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>` + body + `</w:body></w:document>`

	path := filepath.Join(dir, "test.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return path
}

func TestExtractParagraphs_NumberingByStyle(t *testing.T) {
	dir := t.TempDir()
	path := buildDocx(t, dir,
		[]string{"OiiSList1", "OiiSList2", "OiiSList2", "OiiSList1"},
		[]string{"A", "B", "C", "D"})

	paras, err := ExtractParagraphs(path)
	require.NoError(t, err)
	require.Len(t, paras, 4)

	assert.Equal(t, "1. A", paras[0].Text)
	assert.Equal(t, "1.1. B", paras[1].Text)
	assert.Equal(t, "1.2. C", paras[2].Text)
	assert.Equal(t, "2. D", paras[3].Text)
}

func TestExtractParagraphs_SkipsDocumentPreparedBy(t *testing.T) {
	dir := t.TempDir()
	path := buildDocx(t, dir,
		[]string{"", "OiiSList1"},
		[]string{"Документ підготовлено системою", "Наказ"})

	paras, err := ExtractParagraphs(path)
	require.NoError(t, err)
	require.Len(t, paras, 1)
	assert.Equal(t, "1. Наказ", paras[0].Text)
}

func TestExtractParagraphs_BareNumericPrefixKeptAsIs(t *testing.T) {
	dir := t.TempDir()
	path := buildDocx(t, dir, []string{""}, []string{"3.1. Вже пронумерований пункт"})

	paras, err := ExtractParagraphs(path)
	require.NoError(t, err)
	require.Len(t, paras, 1)
	assert.Equal(t, "3.1. Вже пронумерований пункт", paras[0].Text)
}

func TestExtractParagraphs_MissingDocumentXML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	require.NoError(t, zw.Close())
	f.Close()

	_, err = ExtractParagraphs(path)
	assert.Error(t, err)
}
