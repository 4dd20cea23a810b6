package search

import (
	"testing"

	"github.com/nakaz-search/nakaz-search/internal/fwindex"
	"github.com/nakaz-search/nakaz-search/internal/invindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildIndex(t *testing.T, records ...fwindex.DocumentRecord) (*fwindex.DocumentIndex, *invindex.InvertedIndex) {
	t.Helper()
	forward := fwindex.New(0)
	forward.Documents = append(forward.Documents, records...)
	forward.Recount()

	inverted := invindex.New()
	inverted.RebuildFromScratch(forward)
	return forward, inverted
}

func TestSearch_FindsSingleWordMatch(t *testing.T) {
	forward, inverted := buildIndex(t,
		fwindex.NewDocumentRecord("/a.docx", "a.docx", 1, 1, 1, []string{"Наказ про призначення старшого лейтенанта"}))

	eval := NewEvaluator(forward, inverted)
	results := eval.Search("наказ", Full, ViewDefault)

	require.Len(t, results, 1)
	assert.Equal(t, "a.docx", results[0].FileName)
	require.Len(t, results[0].Matches, 1)
}

func TestSearch_NameSearchRequiresProximity(t *testing.T) {
	forward, inverted := buildIndex(t,
		fwindex.NewDocumentRecord("/a.docx", "a.docx", 1, 1, 1, []string{"ДОНА Анатолія Петровича призначити"}),
		fwindex.NewDocumentRecord("/b.docx", "b.docx", 1, 1, 1, []string{"ДОНА Сергія. Через багато параграфів, десь далі Анатолія згадується теж зовсім в іншому контексті і реченні"}))

	eval := NewEvaluator(forward, inverted)
	results := eval.Search("дон анатол", Full, ViewDefault)

	require.Len(t, results, 1)
	assert.Equal(t, "a.docx", results[0].FileName)
}

func TestSearch_FragmentsViewSkipsBasisParagraphs(t *testing.T) {
	forward, inverted := buildIndex(t,
		fwindex.NewDocumentRecord("/a.docx", "a.docx", 1, 1, 1, []string{
			"Наказ про звільнення",
			"Підстава: рапорт командира наказ",
		}))

	eval := NewEvaluator(forward, inverted)
	results := eval.Search("наказ", Quick, ViewFragments)

	require.Len(t, results, 1)
	require.Len(t, results[0].Matches, 1)
	assert.Equal(t, 0, results[0].Matches[0].Position)
}

func TestSearch_PersonalFileGatesStopWordParagraphs(t *testing.T) {
	forward, inverted := buildIndex(t,
		fwindex.NewDocumentRecord("/особовий_іванов.docx", "особовий_іванов.docx", 1, 1, 1, []string{
			"старший лейтенант Іванов призначений на посаду",
		}))

	eval := NewEvaluator(forward, inverted)
	results := eval.Search("іванов", Full, ViewDefault)

	assert.Empty(t, results)
}

func TestSearch_OrdersByFilenameDateThenMatchCount(t *testing.T) {
	forward, inverted := buildIndex(t,
		fwindex.NewDocumentRecord("/наказ_01.01.2020.docx", "наказ_01.01.2020.docx", 1, 1, 1, []string{"наказ"}),
		fwindex.NewDocumentRecord("/наказ_15.06.2023.docx", "наказ_15.06.2023.docx", 1, 1, 1, []string{"наказ"}))

	eval := NewEvaluator(forward, inverted)
	results := eval.Search("наказ", Full, ViewDefault)

	require.Len(t, results, 2)
	assert.Equal(t, "наказ_15.06.2023.docx", results[0].FileName)
}

func TestSearch_EmptyQueryReturnsNoResults(t *testing.T) {
	forward, inverted := buildIndex(t, fwindex.NewDocumentRecord("/a.docx", "a.docx", 1, 1, 1, []string{"наказ"}))
	eval := NewEvaluator(forward, inverted)
	assert.Empty(t, eval.Search("   ", Full, ViewDefault))
}

func TestSearch_FallsBackToFullScanWithoutInvertedIndex(t *testing.T) {
	forward, _ := buildIndex(t, fwindex.NewDocumentRecord("/a.docx", "a.docx", 1, 1, 1, []string{"наказ про звільнення"}))
	eval := NewEvaluator(forward, nil)

	results := eval.Search("наказ", Full, ViewDefault)
	require.Len(t, results, 1)
}
