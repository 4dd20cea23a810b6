// Package atomic implements the atomic index manager (C6): it guarantees
// the forward and inverted indices are updated together or not at all, and
// drives the per-cycle reconcile-then-commit pipeline that ties the scanner
// and both index packages together.
package atomic

import (
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/nakaz-search/nakaz-search/internal/fwindex"
	"github.com/nakaz-search/nakaz-search/internal/invindex"
	"github.com/nakaz-search/nakaz-search/internal/scanner"
)

const (
	removeRetries     = 3
	removeRetryDelay  = 100 * time.Millisecond
	rebuildDriftLimit = 10
)

// UpdateStats summarizes one reconciliation cycle. ParseErrors lists files
// the scanner could not read this cycle (a single bad DOCX never aborts the
// whole cycle — it is omitted and counted here instead).
type UpdateStats struct {
	Processed   int
	Skipped     int
	Deleted     int
	Renamed     int
	ParseErrors []string
}

func (s UpdateStats) HasChanges() bool {
	return s.Processed > 0 || s.Deleted > 0 || s.Renamed > 0
}

func (s UpdateStats) String() string {
	return fmt.Sprintf("processed: %d, skipped: %d, deleted: %d, renamed: %d, errors: %d",
		s.Processed, s.Skipped, s.Deleted, s.Renamed, len(s.ParseErrors))
}

// Manager owns the on-disk paths for both indices and the cross-process
// update lock.
type Manager struct {
	ForwardPath  string
	InvertedPath string
	LockPath     string
}

// New returns a Manager for the given index paths. lockPath names the
// advisory lock file used to serialize concurrent Update calls across
// processes.
func New(forwardPath, invertedPath, lockPath string) *Manager {
	return &Manager{ForwardPath: forwardPath, InvertedPath: invertedPath, LockPath: lockPath}
}

// Commit persists forward and inverted together using a temp+backup+rename
// protocol per file: both are written to "<path>.atomic_temp" first, any
// existing file is backed up to "<path>.atomic_backup", then both temps are
// renamed into place. A failure partway through restores whichever backups
// exist before returning the error, so a reader never observes one index
// updated without the other. The .atomic_temp/.atomic_backup suffixes are
// this wrapper's own artifact family, distinct from fwindex.Save/
// invindex.Save's inner .tmp/.backup files for a single index.
func (m *Manager) Commit(forward *fwindex.DocumentIndex, inverted *invindex.InvertedIndex) error {
	tempForward := m.ForwardPath + ".atomic_temp"
	tempInverted := m.InvertedPath + ".atomic_temp"
	backupForward := m.ForwardPath + ".atomic_backup"
	backupInverted := m.InvertedPath + ".atomic_backup"

	os.Remove(tempForward)
	os.Remove(tempInverted)

	// fwindex.Save/invindex.Save already write-then-rename onto whatever
	// path they're given, so pointing them at the *.atomic_temp path yields
	// a safe temp file write without a second backup layer underneath this
	// one.
	if err := fwindex.Save(tempForward, forward); err != nil {
		os.Remove(tempForward)
		os.Remove(tempInverted)
		return fmt.Errorf("writing forward index temp: %w", err)
	}
	if err := invindex.Save(tempInverted, inverted); err != nil {
		os.Remove(tempForward)
		os.Remove(tempInverted)
		return fmt.Errorf("writing inverted index temp: %w", err)
	}

	if fileExists(m.ForwardPath) {
		if err := copyFile(m.ForwardPath, backupForward); err != nil {
			os.Remove(tempForward)
			os.Remove(tempInverted)
			return fmt.Errorf("backing up forward index: %w", err)
		}
	}
	if fileExists(m.InvertedPath) {
		if err := copyFile(m.InvertedPath, backupInverted); err != nil {
			os.Remove(tempForward)
			os.Remove(tempInverted)
			os.Remove(backupForward)
			return fmt.Errorf("backing up inverted index: %w", err)
		}
	}

	if err := removeWithRetry(m.ForwardPath); err != nil {
		m.restoreFromBackups(backupForward, backupInverted)
		os.Remove(tempForward)
		os.Remove(tempInverted)
		return fmt.Errorf("removing old forward index: %w", err)
	}
	if err := os.Rename(tempForward, m.ForwardPath); err != nil {
		m.restoreFromBackups(backupForward, backupInverted)
		os.Remove(tempInverted)
		return fmt.Errorf("installing forward index: %w", err)
	}

	if err := removeWithRetry(m.InvertedPath); err != nil {
		m.restoreFromBackups(backupForward, backupInverted)
		os.Remove(tempInverted)
		return fmt.Errorf("removing old inverted index: %w", err)
	}
	if err := os.Rename(tempInverted, m.InvertedPath); err != nil {
		m.restoreFromBackups(backupForward, backupInverted)
		return fmt.Errorf("installing inverted index: %w", err)
	}

	os.Remove(backupForward)
	os.Remove(backupInverted)
	return nil
}

func (m *Manager) restoreFromBackups(backupForward, backupInverted string) {
	if fileExists(backupForward) {
		os.Rename(backupForward, m.ForwardPath)
	}
	if fileExists(backupInverted) {
		os.Rename(backupInverted, m.InvertedPath)
	}
}

// Update runs one full reconciliation cycle against root under the manager's
// exclusive cross-process lock: load both indices (if present), scan root
// for changes, remove postings for deleted paths (resolved against the
// scanner's pre-compaction snapshot), apply the scanner's doc_id remap to
// every surviving posting, incrementally reindex changed documents, clean
// up, dedupe, and commit atomically. When the returned stats report no
// changes, nothing was committed.
func (m *Manager) Update(root string, now uint64) (UpdateStats, error) {
	lock := flock.New(m.LockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return UpdateStats{}, fmt.Errorf("acquiring update lock: %w", err)
	}
	if !locked {
		return UpdateStats{}, fmt.Errorf("another process is already updating the indices")
	}
	defer lock.Unlock()

	var existingForward *fwindex.DocumentIndex
	if fileExists(m.ForwardPath) {
		existingForward, err = fwindex.Load(m.ForwardPath)
		if err != nil {
			existingForward = nil
		}
	}

	var existingInverted *invindex.InvertedIndex
	if fileExists(m.InvertedPath) {
		existingInverted, err = invindex.Load(m.InvertedPath)
		if err != nil {
			existingInverted = nil
		}
	}

	result, err := scanner.ScanAndReconcile(root, existingForward, now)
	if err != nil {
		return UpdateStats{}, fmt.Errorf("scanning %s: %w", root, err)
	}

	stats := UpdateStats{
		Processed:   result.Processed,
		Skipped:     result.Skipped,
		Deleted:     result.Deleted,
		Renamed:     len(result.RenamedIDs),
		ParseErrors: result.Errors,
	}

	if !stats.HasChanges() {
		return stats, nil
	}

	inverted := existingInverted
	if inverted == nil {
		inverted = invindex.New()
	}
	inverted.RemoveByPaths(result.DeletedPaths, result.PathToDocID)
	remapPostingDocIDs(inverted, result.DocIDRemap)

	inverted.UpdateIncremental(result.Forward, result.ChangedIDs)
	inverted.TotalDocuments = result.Forward.TotalDocuments

	inverted.Cleanup()
	inverted.Dedupe()

	if err := m.Commit(result.Forward, inverted); err != nil {
		return stats, fmt.Errorf("committing indices: %w", err)
	}

	return stats, nil
}

// remapPostingDocIDs rewrites every posting's doc_index through remap,
// dropping postings for doc_ids absent from it (i.e. deleted this cycle).
// This runs after RemoveByPaths, which resolves paths against the
// pre-compaction snapshot, and before UpdateIncremental, whose ChangedIDs
// are already in the post-compaction id space.
func remapPostingDocIDs(idx *invindex.InvertedIndex, remap map[int]int) {
	if len(remap) == 0 {
		return
	}

	for stem, postings := range idx.WordToDocs {
		out := postings[:0:0]
		for _, p := range postings {
			if newID, ok := remap[p.DocIndex]; ok {
				p.DocIndex = newID
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			delete(idx.WordToDocs, stem)
		} else {
			idx.WordToDocs[stem] = out
		}
	}
}

// Validate loads both indices, repairs any drift found (total_documents
// mismatch, duplicate postings, stale invariants), and if repair changed
// anything, recommits both indices through the full atomic protocol — per
// the literal "atomically persist" requirement, not a single-file save.
func (m *Manager) Validate() (bool, error) {
	if !fileExists(m.ForwardPath) {
		return false, fmt.Errorf("forward index does not exist at %s", m.ForwardPath)
	}
	if !fileExists(m.InvertedPath) {
		return false, fmt.Errorf("inverted index does not exist at %s", m.InvertedPath)
	}

	forward, err := fwindex.Load(m.ForwardPath)
	if err != nil {
		return false, fmt.Errorf("loading forward index: %w", err)
	}

	inverted, err := invindex.Load(m.InvertedPath)
	if err != nil {
		return false, fmt.Errorf("loading inverted index: %w", err)
	}

	needsRepair := false
	if inverted.TotalDocuments != forward.TotalDocuments {
		inverted.TotalDocuments = forward.TotalDocuments
		needsRepair = true
	}

	entries := func() int {
		n := 0
		for _, postings := range inverted.WordToDocs {
			n += len(postings)
		}
		return n
	}
	before, beforeEntries, beforeStems := countPairs(inverted), entries(), len(inverted.WordToDocs)
	inverted.Dedupe()
	inverted.Cleanup()
	if countPairs(inverted) != before || entries() != beforeEntries || len(inverted.WordToDocs) != beforeStems {
		needsRepair = true
	}

	if needsRepair {
		if err := m.Commit(forward, inverted); err != nil {
			return false, fmt.Errorf("committing repaired indices: %w", err)
		}
	}

	return true, nil
}

// RebuildIfNeeded rebuilds the inverted index from scratch when it has
// drifted badly from the forward index: a |Δtotal_documents| greater than
// rebuildDriftLimit, an empty inverted index while the forward index holds
// documents, or a failure to load the inverted index at all.
func (m *Manager) RebuildIfNeeded() (bool, error) {
	forward, err := fwindex.Load(m.ForwardPath)
	if err != nil {
		return false, fmt.Errorf("loading forward index: %w", err)
	}

	inverted, err := invindex.Load(m.InvertedPath)
	shouldRebuild := false
	if err != nil {
		shouldRebuild = true
	} else {
		total, stemCount := inverted.Stats()
		diff := total - forward.TotalDocuments
		if diff < 0 {
			diff = -diff
		}
		if diff > rebuildDriftLimit {
			shouldRebuild = true
		} else if stemCount == 0 && forward.TotalDocuments > 0 {
			shouldRebuild = true
		}
	}

	if !shouldRebuild {
		return false, nil
	}

	rebuilt := invindex.New()
	rebuilt.RebuildFromScratch(forward)

	if err := m.Commit(forward, rebuilt); err != nil {
		return false, fmt.Errorf("committing rebuilt inverted index: %w", err)
	}
	return true, nil
}

// CleanupTempFiles removes any leftover .atomic_temp/.atomic_backup artifacts from a
// previous interrupted cycle.
func (m *Manager) CleanupTempFiles() {
	for _, p := range []string{
		m.ForwardPath + ".atomic_temp", m.InvertedPath + ".atomic_temp",
		m.ForwardPath + ".atomic_backup", m.InvertedPath + ".atomic_backup",
	} {
		if fileExists(p) {
			os.Remove(p)
		}
	}
}

func countPairs(idx *invindex.InvertedIndex) int {
	n := 0
	for _, postings := range idx.WordToDocs {
		for _, p := range postings {
			n += len(p.ParagraphPositions)
		}
	}
	return n
}

func removeWithRetry(path string) error {
	if !fileExists(path) {
		return nil
	}
	var lastErr error
	for attempt := 0; attempt <= removeRetries; attempt++ {
		if err := os.Remove(path); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(removeRetryDelay)
	}
	return lastErr
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
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
