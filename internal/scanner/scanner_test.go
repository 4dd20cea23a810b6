package scanner

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
	"time"

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

func TestScanAndReconcile_NewFilesAreAdded(t *testing.T) {
	dir := t.TempDir()
	writeDocx(t, filepath.Join(dir, "order1.docx"), "Наказ про призначення")

	result, err := ScanAndReconcile(dir, nil, 100)
	require.NoError(t, err)

	assert.Len(t, result.Forward.Documents, 1)
	assert.Equal(t, []int{0}, result.ChangedIDs)
	assert.Equal(t, 1, result.Processed)
}

func TestScanAndReconcile_UnchangedFileIsSkipped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "order1.docx")
	writeDocx(t, path, "Наказ")

	first, err := ScanAndReconcile(dir, nil, 100)
	require.NoError(t, err)

	second, err := ScanAndReconcile(dir, first.Forward, 200)
	require.NoError(t, err)

	assert.Empty(t, second.ChangedIDs)
	assert.Equal(t, 1, second.Skipped)
}

func TestScanAndReconcile_RenameDetectedByStoredSizeAndMtime(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "order1.docx")
	writeDocx(t, oldPath, "Наказ")

	first, err := ScanAndReconcile(dir, nil, 100)
	require.NoError(t, err)
	require.Len(t, first.Forward.Documents, 1)

	mtime := time.Unix(int64(first.Forward.Documents[0].LastModified), 0)
	newPath := filepath.Join(dir, "order1_renamed.docx")
	require.NoError(t, os.Rename(oldPath, newPath))
	require.NoError(t, os.Chtimes(newPath, mtime, mtime))

	second, err := ScanAndReconcile(dir, first.Forward, 200)
	require.NoError(t, err)

	require.Len(t, second.RenamedIDs, 1)
	assert.Equal(t, newPath, second.Forward.Documents[second.RenamedIDs[0]].FilePath)
	assert.Empty(t, second.DeletedPaths)
}

func TestScanAndReconcile_DeleteCompactsAndRemapsSurvivors(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.docx")
	pathB := filepath.Join(dir, "b.docx")
	writeDocx(t, pathA, "Перший наказ")
	writeDocx(t, pathB, "Другий наказ")

	first, err := ScanAndReconcile(dir, nil, 100)
	require.NoError(t, err)
	require.Len(t, first.Forward.Documents, 2)

	require.NoError(t, os.Remove(pathA))

	second, err := ScanAndReconcile(dir, first.Forward, 200)
	require.NoError(t, err)

	require.Len(t, second.Forward.Documents, 1)
	assert.Equal(t, []string{pathA}, second.DeletedPaths)
	assert.Equal(t, pathB, second.Forward.Documents[0].FilePath)

	newID, ok := second.DocIDRemap[1]
	require.True(t, ok)
	assert.Equal(t, 0, newID)
	_, deletedStillMapped := second.DocIDRemap[0]
	assert.False(t, deletedStillMapped)
}

func TestScanAndReconcile_SkipsTempFilePrefix(t *testing.T) {
	dir := t.TempDir()
	writeDocx(t, filepath.Join(dir, "~$order1.docx"), "тимчасовий")

	result, err := ScanAndReconcile(dir, nil, 100)
	require.NoError(t, err)
	assert.Empty(t, result.Forward.Documents)
}
