// Package invindex implements the inverted index (C4): a map from stem to
// an ordered sequence of per-document posting entries, with incremental
// add/remove, cleanup/dedupe repair passes, and the compact-JSON on-disk
// schema the rest of the system depends on for interop.
package invindex

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/RoaringBitmap/roaring"
	"github.com/nakaz-search/nakaz-search/internal/fwindex"
	"github.com/nakaz-search/nakaz-search/internal/stemmer"
)

const writeBufferBytes = 1024 * 1024

// DocPosition names one document's contribution to a stem's posting list:
// the document id and the ordered, duplicate-free set of paragraph
// positions within it that contain the stem.
type DocPosition struct {
	DocIndex          int   `json:"doc_index"`
	ParagraphPositions []int `json:"paragraph_positions"`
}

// InvertedIndex maps stem -> postings, sorted by doc_id within each
// posting. A roaring bitmap per stem mirrors the doc_ids present in that
// stem's posting, giving O(1) "does this stem touch this doc_id" / range
// membership checks ahead of the positional merge the search evaluator
// performs (spec's Quick/Remaining/Full windowing).
type InvertedIndex struct {
	WordToDocs     map[string][]DocPosition `json:"word_to_docs"`
	TotalDocuments int                      `json:"total_documents"`

	docBitmaps map[string]*roaring.Bitmap
}

// New returns an empty inverted index.
func New() *InvertedIndex {
	return &InvertedIndex{
		WordToDocs: make(map[string][]DocPosition),
		docBitmaps: make(map[string]*roaring.Bitmap),
	}
}

func (idx *InvertedIndex) bitmapFor(stem string) *roaring.Bitmap {
	if idx.docBitmaps == nil {
		idx.docBitmaps = make(map[string]*roaring.Bitmap)
	}
	bm, ok := idx.docBitmaps[stem]
	if !ok {
		bm = roaring.New()
		idx.docBitmaps[stem] = bm
	}
	return bm
}

// rebuildBitmaps recomputes the per-stem doc_id bitmaps from WordToDocs.
// Called after loading from disk, since bitmaps are not persisted.
func (idx *InvertedIndex) rebuildBitmaps() {
	idx.docBitmaps = make(map[string]*roaring.Bitmap)
	for stem, postings := range idx.WordToDocs {
		bm := idx.bitmapFor(stem)
		for _, p := range postings {
			bm.Add(uint32(p.DocIndex))
		}
	}
}

// Add indexes one document's paragraphs under docID, returning the count of
// newly inserted (doc,position) pairs. Existing positions for docID within a
// stem's posting are unioned with the newly found ones, not duplicated.
func (idx *InvertedIndex) Add(docID int, record fwindex.DocumentRecord) int {
	inserted := 0

	perStem := make(map[string]*PositionSet)
	for pos, paragraph := range record.Content {
		for _, stem := range stemmer.ExtractWords(paragraph) {
			set, ok := perStem[stem]
			if !ok {
				set = NewPositionSet()
				perStem[stem] = set
			}
			if !set.Contains(pos) {
				set.Insert(pos)
			}
		}
	}

	for stem, set := range perStem {
		postings := idx.WordToDocs[stem]
		found := false
		for i := range postings {
			if postings[i].DocIndex == docID {
				before := len(postings[i].ParagraphPositions)
				existing := NewPositionSetFrom(postings[i].ParagraphPositions)
				existing.Union(set)
				postings[i].ParagraphPositions = existing.Sorted()
				inserted += len(postings[i].ParagraphPositions) - before
				found = true
				break
			}
		}
		if !found {
			postings = append(postings, DocPosition{DocIndex: docID, ParagraphPositions: set.Sorted()})
			inserted += set.Len()
		}
		idx.WordToDocs[stem] = postings
		idx.bitmapFor(stem).Add(uint32(docID))
	}

	return inserted
}

// Remove drops every posting entry for docID, returning the number of
// (doc,position) pairs removed. A posting whose only entry was docID is
// deleted entirely (invariant I5: no empty posting lists).
func (idx *InvertedIndex) Remove(docID int) int {
	removed := 0

	for stem, postings := range idx.WordToDocs {
		kept := postings[:0:0]
		for _, p := range postings {
			if p.DocIndex == docID {
				removed += len(p.ParagraphPositions)
				continue
			}
			kept = append(kept, p)
		}
		if len(kept) == 0 {
			delete(idx.WordToDocs, stem)
			delete(idx.docBitmaps, stem)
		} else {
			idx.WordToDocs[stem] = kept
			if bm, ok := idx.docBitmaps[stem]; ok {
				bm.Remove(uint32(docID))
			}
		}
	}

	return removed
}

// UpdateIncremental removes stale postings for changedIDs then re-adds them
// from the current forward records.
func (idx *InvertedIndex) UpdateIncremental(forward *fwindex.DocumentIndex, changedIDs []int) {
	for _, id := range changedIDs {
		idx.Remove(id)
	}
	for _, id := range changedIDs {
		if id >= 0 && id < len(forward.Documents) {
			idx.Add(id, forward.Documents[id])
		}
	}
}

// RemoveByPaths resolves each path to its doc_id using pathToDocID — a
// snapshot the caller took *before* the scanner's deletions were applied to
// the forward index, since resolving against the post-deletion index would
// find nothing for paths that no longer exist anywhere (spec §9's design
// note on the Rust source's seemingly inert remove_deleted_documents_by_paths).
func (idx *InvertedIndex) RemoveByPaths(paths []string, pathToDocID map[string]int) {
	for _, path := range paths {
		if id, ok := pathToDocID[path]; ok {
			idx.Remove(id)
		}
	}
}

// Cleanup drops stems shorter than two runes, DocPositions with empty
// position lists, and stems whose posting list becomes empty as a result.
func (idx *InvertedIndex) Cleanup() {
	for stem, postings := range idx.WordToDocs {
		if len([]rune(stem)) < 2 {
			delete(idx.WordToDocs, stem)
			delete(idx.docBitmaps, stem)
			continue
		}

		kept := postings[:0:0]
		for _, p := range postings {
			if len(p.ParagraphPositions) > 0 {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(idx.WordToDocs, stem)
			delete(idx.docBitmaps, stem)
		} else {
			idx.WordToDocs[stem] = kept
		}
	}
}

// Dedupe merges DocPositions that share a doc_id within one posting (union
// positions, sort), and sorts each posting by doc_id.
func (idx *InvertedIndex) Dedupe() {
	for stem, postings := range idx.WordToDocs {
		merged := make(map[int]*PositionSet)
		var order []int
		for _, p := range postings {
			set, ok := merged[p.DocIndex]
			if !ok {
				set = NewPositionSet()
				merged[p.DocIndex] = set
				order = append(order, p.DocIndex)
			}
			for _, pos := range p.ParagraphPositions {
				set.Insert(pos)
			}
		}

		sort.Ints(order)
		out := make([]DocPosition, 0, len(order))
		for _, docID := range order {
			out = append(out, DocPosition{DocIndex: docID, ParagraphPositions: merged[docID].Sorted()})
		}
		idx.WordToDocs[stem] = out
	}
}

// RebuildFromScratch discards all postings and reindexes every record in
// forward, then runs Cleanup and Dedupe. Used only as a repair fallback
// (catastrophic drift, corrupt index).
func (idx *InvertedIndex) RebuildFromScratch(forward *fwindex.DocumentIndex) {
	idx.WordToDocs = make(map[string][]DocPosition)
	idx.docBitmaps = make(map[string]*roaring.Bitmap)

	for docID, rec := range forward.Documents {
		idx.Add(docID, rec)
	}
	idx.TotalDocuments = forward.TotalDocuments

	idx.Cleanup()
	idx.Dedupe()
}

// Postings returns the posting list for a stem, or nil if absent.
func (idx *InvertedIndex) Postings(stem string) []DocPosition {
	return idx.WordToDocs[stem]
}

// DocBitmap returns the roaring bitmap of doc_ids touched by stem,
// rebuilding the cache lazily if it was never populated (e.g. right after
// Load).
func (idx *InvertedIndex) DocBitmap(stem string) *roaring.Bitmap {
	if idx.docBitmaps == nil {
		idx.rebuildBitmaps()
	}
	if bm, ok := idx.docBitmaps[stem]; ok {
		return bm
	}
	return roaring.New()
}

// Stats returns (total_documents, number of distinct stems).
func (idx *InvertedIndex) Stats() (int, int) {
	return idx.TotalDocuments, len(idx.WordToDocs)
}

// Save writes the index as compact JSON using the same
// temp+backup+rename protocol as the forward index (spec §4.4).
func Save(path string, idx *InvertedIndex) error {
	tempPath := path + ".tmp"
	backupPath := path + ".backup"

	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, backupPath); err != nil {
			return fmt.Errorf("backing up %s: %w", path, err)
		}
	}

	if err := writeJSONCompact(tempPath, idx); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("serializing inverted index: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		if _, statErr := os.Stat(backupPath); statErr == nil {
			os.Rename(backupPath, path)
		}
		return fmt.Errorf("installing inverted index: %w", err)
	}

	os.Remove(backupPath)
	return nil
}

// Load reads the index from path. Validation here is advisory only (spec
// §4.4): callers should still run Cleanup/Dedupe after loading if they
// intend to repair rather than merely inspect.
func Load(path string) (*InvertedIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening inverted index: %w", err)
	}
	defer f.Close()

	idx := New()
	dec := json.NewDecoder(bufio.NewReaderSize(f, writeBufferBytes))
	if err := dec.Decode(idx); err != nil {
		return nil, fmt.Errorf("parsing inverted index: %w", err)
	}
	if idx.WordToDocs == nil {
		idx.WordToDocs = make(map[string][]DocPosition)
	}
	idx.rebuildBitmaps()

	return idx, nil
}

// Validate reports issues without failing the load: empty posting lists,
// empty position lists, stems shorter than two runes, or a total_documents
// mismatch against forward. All are auto-repairable via Cleanup/Dedupe.
func Validate(idx *InvertedIndex, forwardTotal int) []string {
	var issues []string

	if idx.TotalDocuments != forwardTotal {
		issues = append(issues, fmt.Sprintf("total_documents=%d but forward has %d", idx.TotalDocuments, forwardTotal))
	}

	for stem, postings := range idx.WordToDocs {
		if len([]rune(stem)) < 2 {
			issues = append(issues, fmt.Sprintf("stem %q shorter than 2 runes", stem))
		}
		if len(postings) == 0 {
			issues = append(issues, fmt.Sprintf("stem %q has an empty posting list", stem))
		}
		for _, p := range postings {
			if len(p.ParagraphPositions) == 0 {
				issues = append(issues, fmt.Sprintf("stem %q doc %d has an empty position list", stem, p.DocIndex))
			}
		}
	}

	return issues
}

func writeJSONCompact(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriterSize(f, writeBufferBytes)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(v); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := out.ReadFrom(in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
