// Package fwindex implements the forward document index (C3): the ordered
// collection of parsed DOCX records, persisted as a single pretty-printed
// JSON document with an atomic temp+backup+rename save protocol.
package fwindex

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const writeBufferBytes = 1024 * 1024 // 1 MiB, matching the original writer.

// Paragraph is one numbered or plain line of a DOCX order.
type Paragraph struct {
	Text        string
	Number      string // e.g. "2.3.1.", empty if unnumbered.
	HasNumbering bool
}

// String renders the paragraph the way it is stored in a DocumentRecord's
// flattened content: the number prefix (if any) followed by the text.
func (p Paragraph) String() string {
	if p.HasNumbering && p.Number != "" {
		return p.Number + " " + p.Text
	}
	return p.Text
}

// DocumentRecord describes one indexed DOCX file. content holds the
// flattened paragraph strings (number prefix folded in, per C2); the
// document id is this record's position within a DocumentIndex's slice, not
// a field on the struct itself.
type DocumentRecord struct {
	FilePath       string   `json:"file_path"`
	FileName       string   `json:"file_name"`
	FileSize       uint64   `json:"file_size"`
	LastModified   uint64   `json:"last_modified"`
	Created        uint64   `json:"created"`
	Content        []string `json:"content"`
	WordCount      int      `json:"word_count"`
	ParagraphCount int      `json:"paragraph_count"`
}

// NewDocumentRecord builds a record from already-flattened paragraph text,
// deriving word/paragraph counts. It does not stat the filesystem itself —
// callers (the scanner) already hold the metadata from their walk.
func NewDocumentRecord(filePath, fileName string, fileSize, lastModified, created uint64, content []string) DocumentRecord {
	wordCount := 0
	for _, p := range content {
		wordCount += len(strings.Fields(p))
	}

	return DocumentRecord{
		FilePath:       filePath,
		FileName:       fileName,
		FileSize:       fileSize,
		LastModified:   lastModified,
		Created:        created,
		Content:        content,
		WordCount:      wordCount,
		ParagraphCount: len(content),
	}
}

// DocumentIndex is the forward index: an ordered sequence of records plus
// aggregate counters. A record's doc_id is its index into Documents. It is
// never reassigned by sorting; removing deleted records compacts the slice,
// which shifts the doc_id of every later record (the scanner reports the
// old→new mapping).
type DocumentIndex struct {
	Documents      []DocumentRecord `json:"documents"`
	TotalDocuments int              `json:"total_documents"`
	TotalWords     int              `json:"total_words"`
	IndexedAt      uint64           `json:"indexed_at"`
}

// New returns an empty forward index.
func New(indexedAt uint64) *DocumentIndex {
	return &DocumentIndex{
		Documents:      []DocumentRecord{},
		TotalDocuments: 0,
		TotalWords:     0,
		IndexedAt:      indexedAt,
	}
}

// Recount refreshes TotalDocuments/TotalWords from the current Documents
// slice. Callers mutate Documents directly (append/replace/remove-by-index)
// and then call Recount once per batch.
func (idx *DocumentIndex) Recount() {
	idx.TotalDocuments = len(idx.Documents)
	total := 0
	for _, d := range idx.Documents {
		total += d.WordCount
	}
	idx.TotalWords = total
}

// Save writes the index atomically: serialize to "<path>.tmp", back up any
// existing "<path>" to "<path>.backup", rename the temp file over path, then
// delete the backup. On any failure after the backup was taken, it restores
// path from the backup.
func Save(path string, idx *DocumentIndex) error {
	tempPath := path + ".tmp"
	backupPath := path + ".backup"

	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, backupPath); err != nil {
			return fmt.Errorf("backing up %s: %w", path, err)
		}
	}

	if err := writeJSONPretty(tempPath, idx); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("serializing forward index: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		if _, statErr := os.Stat(backupPath); statErr == nil {
			os.Rename(backupPath, path)
		}
		return fmt.Errorf("installing forward index: %w", err)
	}

	os.Remove(backupPath)
	return nil
}

// Load reads the forward index from path, falling back to path+".backup" on
// a parse or validation failure, restoring the main file from the backup
// when the backup is the one that validated.
func Load(path string) (*DocumentIndex, error) {
	backupPath := path + ".backup"

	if idx, err := tryLoad(path); err == nil {
		if err := Validate(idx); err == nil {
			return idx, nil
		}
	}

	if _, err := os.Stat(backupPath); err == nil {
		if idx, err := tryLoad(backupPath); err == nil {
			if err := Validate(idx); err == nil {
				copyFile(backupPath, path)
				return idx, nil
			}
		}
	}

	return nil, fmt.Errorf("forward index at %s unreadable: main and backup both missing, corrupt, or invalid", path)
}

func tryLoad(path string) (*DocumentIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var idx DocumentIndex
	dec := json.NewDecoder(bufio.NewReaderSize(f, writeBufferBytes))
	if err := dec.Decode(&idx); err != nil {
		return nil, err
	}
	if idx.Documents == nil {
		return nil, fmt.Errorf("%s: missing \"documents\" array", path)
	}
	return &idx, nil
}

// Validate checks invariant I1 (total_documents == len(documents)) and, for
// every record, a non-empty path and |content| == paragraph_count, with
// content empty iff paragraph_count == 0.
func Validate(idx *DocumentIndex) error {
	if len(idx.Documents) != idx.TotalDocuments {
		return fmt.Errorf("total_documents=%d but len(documents)=%d", idx.TotalDocuments, len(idx.Documents))
	}

	for i, doc := range idx.Documents {
		if doc.FilePath == "" {
			return fmt.Errorf("document %d has empty file_path", i)
		}
		if len(doc.Content) != doc.ParagraphCount {
			return fmt.Errorf("document %d: len(content)=%d != paragraph_count=%d", i, len(doc.Content), doc.ParagraphCount)
		}
		if (len(doc.Content) == 0) != (doc.ParagraphCount == 0) {
			return fmt.Errorf("document %d: content emptiness disagrees with paragraph_count", i)
		}
	}

	return nil
}

func writeJSONPretty(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriterSize(f, writeBufferBytes)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
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
