// Package scanner implements the folder scanner / reconciler (C5): it walks
// a directory of DOCX files and diffs it against an existing forward index,
// classifying every file as unchanged, updated, renamed, new, or deleted.
// Deleted records are compacted out of the forward index, and the old→new
// doc_id of every surviving record is reported in Result.DocIDRemap.
package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/nakaz-search/nakaz-search/internal/docx"
	"github.com/nakaz-search/nakaz-search/internal/fwindex"
)

const maxWalkDepth = 10

var excludedDirs = map[string]bool{
	".git":                  true,
	"ЕРДР (не виключені)": true,
}

// Result is everything one reconciliation pass produced.
type Result struct {
	Forward *fwindex.DocumentIndex

	// ChangedIDs are new-or-content-updated doc_ids, in the *post-compaction*
	// id space (i.e. after DocIDRemap has been applied).
	ChangedIDs []int
	RenamedIDs []int
	// DeletedPaths are the paths of records removed this cycle.
	DeletedPaths []string
	// PathToDocID is a snapshot of path -> doc_id taken immediately before
	// compaction, so a caller resolving DeletedPaths against it still finds
	// the ids that are about to disappear.
	PathToDocID map[string]int
	// DocIDRemap maps every surviving record's pre-compaction doc_id to its
	// post-compaction doc_id. Ids of deleted records are absent.
	DocIDRemap map[int]int

	Processed int
	Skipped   int
	Deleted   int
	Errors    []string
}

func (r *Result) HasChanges() bool {
	return len(r.ChangedIDs) > 0 || len(r.RenamedIDs) > 0 || len(r.DeletedPaths) > 0
}

// ScanAndReconcile walks root and reconciles it against existing (which may
// be nil, meaning a from-scratch index). It never mutates existing; it
// returns a new *fwindex.DocumentIndex reflecting the reconciliation.
func ScanAndReconcile(root string, existing *fwindex.DocumentIndex, now uint64) (*Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "scan", Path: root, Err: fs.ErrInvalid}
	}

	forward := existing
	if forward == nil {
		forward = fwindex.New(now)
	} else {
		clone := *forward
		clone.Documents = append([]fwindex.DocumentRecord(nil), forward.Documents...)
		forward = &clone
	}

	originalLen := len(forward.Documents)

	pathToDocID := make(map[string]int, originalLen)
	for i, d := range forward.Documents {
		pathToDocID[d.FilePath] = i
	}

	type sizeMtime struct {
		size  uint64
		mtime uint64
	}
	sizeMtimeIndex := make(map[sizeMtime]int, originalLen)
	for i, d := range forward.Documents {
		sizeMtimeIndex[sizeMtime{d.FileSize, d.LastModified}] = i
	}

	observed := roaring.New()
	result := &Result{PathToDocID: pathToDocID}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			return nil
		}

		if depth(root, path) > maxWalkDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		if !isDocxCandidate(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			return nil
		}
		size := uint64(info.Size())
		mtime := uint64(info.ModTime().Unix())

		if docID, ok := pathToDocID[path]; ok {
			handleExisting(forward, result, observed, docID, path, mtime)
			return nil
		}

		key := sizeMtime{size, mtime}
		if docID, ok := sizeMtimeIndex[key]; ok && !observed.Contains(uint32(docID)) &&
			forward.Documents[docID].FilePath != path {
			forward.Documents[docID].FilePath = path
			result.RenamedIDs = append(result.RenamedIDs, docID)
			observed.Add(uint32(docID))
			return nil
		}

		handleNew(forward, result, observed, path, size, mtime)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	preCompactionLen := len(forward.Documents)

	deletedSet := make(map[int]bool)
	var deletedIndexes []int
	for i := 0; i < originalLen; i++ {
		if !observed.Contains(uint32(i)) {
			deletedIndexes = append(deletedIndexes, i)
			deletedSet[i] = true
			result.DeletedPaths = append(result.DeletedPaths, forward.Documents[i].FilePath)
		}
	}
	result.Deleted = len(deletedIndexes)

	sort.Sort(sort.Reverse(sort.IntSlice(deletedIndexes)))
	for _, i := range deletedIndexes {
		forward.TotalWords -= forward.Documents[i].WordCount
		forward.Documents = append(forward.Documents[:i], forward.Documents[i+1:]...)
	}

	remap := make(map[int]int, len(forward.Documents))
	newIdx := 0
	for oldIdx := 0; oldIdx < preCompactionLen; oldIdx++ {
		if deletedSet[oldIdx] {
			continue
		}
		remap[oldIdx] = newIdx
		newIdx++
	}
	result.DocIDRemap = remap

	result.ChangedIDs = remapAll(result.ChangedIDs, remap)
	result.RenamedIDs = remapAll(result.RenamedIDs, remap)

	forward.Recount()
	forward.IndexedAt = now
	result.Forward = forward

	return result, nil
}

func remapAll(ids []int, remap map[int]int) []int {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if newID, ok := remap[id]; ok {
			out = append(out, newID)
		}
	}
	return out
}

func handleExisting(forward *fwindex.DocumentIndex, result *Result, observed *roaring.Bitmap, docID int, path string, mtime uint64) {
	record := &forward.Documents[docID]
	if mtime <= record.LastModified {
		result.Skipped++
		observed.Add(uint32(docID))
		return
	}

	paragraphs, err := docx.ExtractParagraphs(path)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		result.Errors = append(result.Errors, statErr.Error())
		return
	}

	forward.TotalWords -= record.WordCount
	content := flattenParagraphs(paragraphs)
	*record = fwindex.NewDocumentRecord(path, filepath.Base(path),
		uint64(info.Size()), mtime, record.Created, content)

	result.ChangedIDs = append(result.ChangedIDs, docID)
	result.Processed++
	observed.Add(uint32(docID))
}

func handleNew(forward *fwindex.DocumentIndex, result *Result, observed *roaring.Bitmap, path string, size, mtime uint64) {
	paragraphs, err := docx.ExtractParagraphs(path)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return
	}

	content := flattenParagraphs(paragraphs)
	rec := fwindex.NewDocumentRecord(path, filepath.Base(path), size, mtime, mtime, content)
	docID := len(forward.Documents)
	forward.Documents = append(forward.Documents, rec)

	result.ChangedIDs = append(result.ChangedIDs, docID)
	result.Processed++
	observed.Add(uint32(docID))
}

func flattenParagraphs(paragraphs []fwindex.Paragraph) []string {
	out := make([]string, len(paragraphs))
	for i, p := range paragraphs {
		out[i] = p.String()
	}
	return out
}

func isDocxCandidate(name string) bool {
	if strings.HasPrefix(name, "~$") {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ".docx")
}

func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0
	}
	if rel == "." {
		return 0
	}
	return len(strings.Split(filepath.ToSlash(rel), "/"))
}
