package invindex

import (
	"path/filepath"
	"testing"

	"github.com/nakaz-search/nakaz-search/internal/fwindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(content ...string) fwindex.DocumentRecord {
	return fwindex.NewDocumentRecord("/p.docx", "p.docx", 1, 1, 1, content)
}

// ═══════════════════════════════════════════════════════════════════════════════
// ADD / REMOVE TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestAdd_IndexesStemsAtPositions(t *testing.T) {
	idx := New()
	idx.Add(0, rec("Наказ про призначення", "Старший лейтенант Іванов І.І."))

	postings := idx.Postings("іванов")
	require.Len(t, postings, 1)
	assert.Equal(t, 0, postings[0].DocIndex)
	assert.Equal(t, []int{1}, postings[0].ParagraphPositions)
}

func TestRemove_DropsEmptyPostings(t *testing.T) {
	idx := New()
	idx.Add(0, rec("солдат"))
	require.NotEmpty(t, idx.Postings("солдат"))

	idx.Remove(0)
	assert.Empty(t, idx.Postings("солдат"))
	_, exists := idx.WordToDocs["солдат"]
	assert.False(t, exists)
}

func TestAdd_UnionsPositionsOnReindex(t *testing.T) {
	idx := New()
	idx.Add(0, rec("солдат йде"))
	idx.Add(0, rec("солдат йде", "ще один солдат"))

	postings := idx.Postings("солдат")
	require.Len(t, postings, 1)
	assert.Equal(t, []int{0, 1}, postings[0].ParagraphPositions)
}

func TestRebuildFromScratch_MatchesIncrementalAdd(t *testing.T) {
	forward := fwindex.New(0)
	forward.Documents = append(forward.Documents,
		rec("Наказ про призначення"),
		rec("Старший лейтенант Іванов"))
	forward.Recount()

	viaAdd := New()
	viaAdd.Add(0, forward.Documents[0])
	viaAdd.Add(1, forward.Documents[1])
	viaAdd.TotalDocuments = forward.TotalDocuments
	viaAdd.Cleanup()
	viaAdd.Dedupe()

	viaRebuild := New()
	viaRebuild.RebuildFromScratch(forward)

	assert.Equal(t, viaAdd.WordToDocs, viaRebuild.WordToDocs)
}

func TestCleanup_DropsShortStemsAndEmptyEntries(t *testing.T) {
	idx := New()
	idx.WordToDocs["а"] = []DocPosition{{DocIndex: 0, ParagraphPositions: []int{0}}}
	idx.WordToDocs["ок"] = []DocPosition{{DocIndex: 0, ParagraphPositions: []int{}}}
	idx.Cleanup()

	assert.Empty(t, idx.WordToDocs["а"])
	assert.Empty(t, idx.WordToDocs["ок"])
}

func TestDedupe_MergesSameDocID(t *testing.T) {
	idx := New()
	idx.WordToDocs["солдат"] = []DocPosition{
		{DocIndex: 2, ParagraphPositions: []int{5}},
		{DocIndex: 0, ParagraphPositions: []int{1}},
		{DocIndex: 0, ParagraphPositions: []int{3}},
	}
	idx.Dedupe()

	postings := idx.WordToDocs["солдат"]
	require.Len(t, postings, 2)
	assert.Equal(t, 0, postings[0].DocIndex)
	assert.Equal(t, []int{1, 3}, postings[0].ParagraphPositions)
	assert.Equal(t, 2, postings[1].DocIndex)
}

// ═══════════════════════════════════════════════════════════════════════════════
// PERSISTENCE TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inverted_index.json")

	idx := New()
	idx.Add(0, rec("солдат резерву"))
	idx.TotalDocuments = 1

	require.NoError(t, Save(path, idx))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, idx.WordToDocs, loaded.WordToDocs)
	assert.Equal(t, 1, loaded.TotalDocuments)
	assert.True(t, loaded.DocBitmap("солдат").Contains(0))
}

func TestValidate_FlagsMismatchedTotals(t *testing.T) {
	idx := New()
	idx.TotalDocuments = 5
	issues := Validate(idx, 3)
	assert.NotEmpty(t, issues)
}
