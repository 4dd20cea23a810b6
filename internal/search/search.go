// Package search implements the search evaluator (C7): it turns a raw query
// into stemmed words, narrows candidate documents through the inverted
// index using a smallest-posting-first intersection, then validates and
// orders matches against the forward index's paragraph text.
package search

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/RoaringBitmap/roaring"
	"github.com/nakaz-search/nakaz-search/internal/fwindex"
	"github.com/nakaz-search/nakaz-search/internal/invindex"
	"github.com/nakaz-search/nakaz-search/internal/stemmer"
)

// Mode selects which slice of the forward index's doc_id range a query
// considers, mirroring the progressive "quick preview, then the rest"
// search flow the original system exposed over its two largest result
// pages.
type Mode int

const (
	Quick Mode = iota
	Remaining
	Full
)

// quickWindowSize is the doc_id boundary between Quick and Remaining.
const quickWindowSize = 170

// proximityGap is the maximum character distance allowed between
// consecutive query words for the name-search proximity check.
const proximityGap = 15

var dateInFilenamePattern = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{4})`)

// personalFileStopWords gate out false-positive hits in personnel rosters:
// a paragraph that opens with a rank or service-branch word is administrative
// boilerplate, not a fact about the searched person, in files named with a
// "особовий" (personnel) prefix.
var personalFileStopWords = []string{
	"старш", "молодш", "солдат", "сержант", "штаб", "лейтенант", "майор", "матрос",
}

// Match is one paragraph hit within a document.
type Match struct {
	Context  string
	Position int
}

// Result is one document's search hit, including every paragraph of the
// document so a caller can render surrounding context.
type Result struct {
	FileName       string
	FilePath       string
	Matches        []Match
	AllParagraphs  []fwindex.Paragraph
	FileSize       uint64
	LastModified   uint64
}

// ViewMode controls paragraph filtering. ViewFragments drops "Підстава:"
// paragraphs, matching the original UI's "fragments" view.
type ViewMode int

const (
	ViewDefault ViewMode = iota
	ViewFragments
)

// Evaluator holds the current forward/inverted index snapshot under a
// mutex, so a background reconciliation cycle can swap in fresh indices
// without a search-in-flight observing a half-updated pair.
type Evaluator struct {
	mu       sync.RWMutex
	forward  *fwindex.DocumentIndex
	inverted *invindex.InvertedIndex
}

// NewEvaluator returns an Evaluator over the given snapshot. Either may be
// nil, meaning unavailable — Search falls back to a full forward-index scan
// when inverted is nil.
func NewEvaluator(forward *fwindex.DocumentIndex, inverted *invindex.InvertedIndex) *Evaluator {
	return &Evaluator{forward: forward, inverted: inverted}
}

// Swap atomically replaces the evaluator's index snapshot.
func (e *Evaluator) Swap(forward *fwindex.DocumentIndex, inverted *invindex.InvertedIndex) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.forward = forward
	e.inverted = inverted
}

// Search tokenizes and stems query, narrows candidates via the inverted
// index (or falls back to a full scan if unavailable), validates each
// candidate paragraph by substring containment and, for 2-3 word queries,
// a proximity check, then orders results by filename-embedded date
// (newest first) and match count.
func (e *Evaluator) Search(query string, mode Mode, view ViewMode) []Result {
	if strings.TrimSpace(query) == "" {
		return nil
	}

	words := queryWords(query)
	if len(words) == 0 {
		return nil
	}

	e.mu.RLock()
	forward := e.forward
	inverted := e.inverted
	e.mu.RUnlock()

	if forward == nil {
		return nil
	}

	var results []Result
	if inverted != nil {
		results = e.searchViaInvertedIndex(forward, inverted, words, mode, view)
	} else {
		results = e.searchByFullScan(forward, words, view)
	}

	sort.SliceStable(results, func(i, j int) bool {
		di, oki := dateFromFileName(results[i].FileName)
		dj, okj := dateFromFileName(results[j].FileName)
		if oki && okj && di != dj {
			return di > dj
		}
		if oki != okj {
			return oki
		}
		return len(results[i].Matches) > len(results[j].Matches)
	})

	return results
}

func (e *Evaluator) searchViaInvertedIndex(forward *fwindex.DocumentIndex, inverted *invindex.InvertedIndex, words []string, mode Mode, view ViewMode) []Result {
	start, end := windowBounds(mode, len(forward.Documents))

	candidates := intersectCandidates(inverted, words, start, end)
	if candidates == nil {
		return nil
	}

	var results []Result
	for _, docID := range sortedKeys(candidates) {
		if docID < 0 || docID >= len(forward.Documents) {
			continue
		}
		record := forward.Documents[docID]
		matches := validateParagraphs(record, candidates[docID], words, view)
		if len(matches) > 0 {
			results = append(results, buildResult(record, matches))
		}
	}
	return results
}

func (e *Evaluator) searchByFullScan(forward *fwindex.DocumentIndex, words []string, view ViewMode) []Result {
	var results []Result
	for _, record := range forward.Documents {
		positions := make([]int, len(record.Content))
		for i := range positions {
			positions[i] = i
		}
		matches := validateParagraphs(record, positions, words, view)
		if len(matches) > 0 {
			results = append(results, buildResult(record, matches))
		}
	}
	return results
}

func buildResult(record fwindex.DocumentRecord, matches []Match) Result {
	paragraphs := make([]fwindex.Paragraph, len(record.Content))
	for i, c := range record.Content {
		paragraphs[i] = fwindex.Paragraph{Text: c}
	}
	return Result{
		FileName:      record.FileName,
		FilePath:      record.FilePath,
		Matches:       matches,
		AllParagraphs: paragraphs,
		FileSize:      record.FileSize,
		LastModified:  record.LastModified,
	}
}

// windowBounds returns the [start,end) doc_id range a Mode considers.
func windowBounds(mode Mode, totalDocs int) (int, int) {
	switch mode {
	case Quick:
		end := totalDocs
		if totalDocs > quickWindowSize {
			end = quickWindowSize
		}
		return 0, end
	case Remaining:
		start := totalDocs
		if totalDocs > quickWindowSize {
			start = quickWindowSize
		}
		return start, totalDocs
	default:
		return 0, totalDocs
	}
}

// intersectCandidates finds every doc_id within [start,end) whose postings
// contain all of words. It first narrows the doc_id set to an intersection
// using each word's roaring doc bitmap ANDed against the window's bitmap —
// cheap set algebra before touching any position list — starting from the
// rarest word within the window, then only expands positions for the
// surviving doc_ids from their full postings. Returns nil if any word is
// entirely absent from the index.
func intersectCandidates(inverted *invindex.InvertedIndex, words []string, start, end int) map[int][]int {
	windowBitmap := roaring.New()
	if end > start {
		windowBitmap.AddRange(uint64(start), uint64(end))
	}

	type windowed struct {
		word   string
		bitmap *roaring.Bitmap
	}

	ordered := make([]windowed, 0, len(words))
	for _, w := range words {
		bm := inverted.DocBitmap(w)
		if bm == nil || bm.IsEmpty() {
			return nil
		}
		ordered = append(ordered, windowed{word: w, bitmap: roaring.And(bm, windowBitmap)})
	}

	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].bitmap.GetCardinality() < ordered[j].bitmap.GetCardinality()
	})

	intersection := ordered[0].bitmap
	for _, w := range ordered[1:] {
		intersection = roaring.And(intersection, w.bitmap)
		if intersection.IsEmpty() {
			return nil
		}
	}
	if intersection.IsEmpty() {
		return nil
	}

	out := make(map[int][]int, intersection.GetCardinality())
	it := intersection.Iterator()
	for it.HasNext() {
		docID := int(it.Next())
		out[docID] = unionPositions(inverted, words, docID)
	}
	return out
}

// unionPositions collects every paragraph position at which any of words
// occurs in docID, sorted ascending.
func unionPositions(inverted *invindex.InvertedIndex, words []string, docID int) []int {
	set := make(map[int]bool)
	for _, w := range words {
		for _, p := range inverted.Postings(w) {
			if p.DocIndex == docID {
				for _, pos := range p.ParagraphPositions {
					set[pos] = true
				}
				break
			}
		}
	}
	positions := make([]int, 0, len(set))
	for pos := range set {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	return positions
}

func sortedKeys(m map[int][]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// validateParagraphs checks each candidate position's paragraph text
// actually contains every query word (the inverted index's positions are
// necessary but not sufficient — stems can collide), applying the view
// filter and, for 2-3 word queries, the name proximity check, and the
// personal-file stop-word gate for rosters.
func validateParagraphs(record fwindex.DocumentRecord, positions []int, words []string, view ViewMode) []Match {
	isPersonalFile := strings.HasPrefix(strings.ToLower(record.FileName), "особов")
	isNameSearch := len(words) >= 2 && len(words) <= 3

	var matches []Match
	for _, pos := range positions {
		if pos < 0 || pos >= len(record.Content) {
			continue
		}
		text := record.Content[pos]
		lower := strings.ToLower(text)
		trimmed := strings.TrimSpace(lower)

		if view == ViewFragments && strings.HasPrefix(trimmed, "підстава") {
			continue
		}

		normalized := strings.ReplaceAll(lower, "'", "")
		if !containsAll(normalized, words) {
			continue
		}

		if isPersonalFile && startsWithStopWord(trimmed) {
			continue
		}

		if isNameSearch && !checkProximity(normalized, words) {
			continue
		}

		matches = append(matches, Match{Context: text, Position: pos})
	}
	return matches
}

func containsAll(text string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(text, w) {
			return false
		}
	}
	return true
}

func startsWithStopWord(trimmed string) bool {
	for _, stop := range personalFileStopWords {
		if strings.HasPrefix(trimmed, stop) {
			return true
		}
	}
	return false
}

// checkProximity requires query words to appear in order with no more than
// proximityGap characters between the end of one match and the start of the
// next — loose enough to survive Ukrainian case endings and punctuation
// between name parts (e.g. "дон анатол" matching "ДОНА Анатолія").
func checkProximity(text string, words []string) bool {
	if len(words) < 2 {
		return true
	}

	lastPos := 0
	for i, word := range words {
		idx := strings.Index(text[lastPos:], word)
		if idx < 0 {
			return false
		}
		absolute := lastPos + idx
		if i == 0 {
			lastPos = absolute + len(word)
			continue
		}
		if utf8.RuneCountInString(text[lastPos:absolute]) > proximityGap {
			return false
		}
		lastPos = absolute + len(word)
	}
	return true
}

// queryWords mirrors the indexer's two-step pipeline exactly: stem each
// whitespace-separated field first, then re-extract words from the
// resulting string with the same regex ExtractWords applies at index time.
// The second pass matters for hyphenated compounds — Stem joins a
// hyphenated token's stemmed halves back together with '-', but at index
// time the hyphen already split the raw text into separate words before
// either half was ever stemmed. Re-running ExtractWords over the
// stemmed-and-joined string splits the joined stem apart again (the word
// regex excludes '-'), so the query ends up looking up the same two
// separate stems the inverted index actually stored.
func queryWords(query string) []string {
	withoutApostrophes := strings.ReplaceAll(query, "'", "")
	var stemmed []string
	for _, field := range strings.Fields(withoutApostrophes) {
		stemmed = append(stemmed, stemmer.Stem(field))
	}
	return stemmer.ExtractWords(strings.Join(stemmed, " "))
}

// dateFromFileName extracts a DD.MM.YYYY date embedded in a file name,
// returning a value that sorts ascending-with-date so callers can order
// newest first by comparing descending.
func dateFromFileName(name string) (int, bool) {
	m := dateInFilenamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	day, err1 := strconv.Atoi(m[1])
	month, err2 := strconv.Atoi(m[2])
	year, err3 := strconv.Atoi(m[3])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	if day < 1 || day > 31 || month < 1 || month > 12 || year < 1900 {
		return 0, false
	}
	return year*10000 + month*100 + day, true
}
