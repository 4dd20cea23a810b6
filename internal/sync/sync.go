// Package sync implements the remote synchronizer (C5bis, supplemented from
// the original remote-folder mirroring feature): it mirrors a remote share
// into a local cache directory, copying only year-folder contents and only
// files that are new or changed, and removing local files the remote no
// longer has.
package sync

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// fileStamp is one file's comparable metadata: relative path, size, and
// modification time (as a Unix second count, matching the forward index's
// own metadata granularity).
type fileStamp struct {
	relPath string
	size    int64
	mtime   int64
}

// IsRemoteAccessible reports whether remotePath exists and, for a UNC-style
// path, that its contents are actually readable rather than merely present
// in a stale mount table entry.
func IsRemoteAccessible(remotePath string) bool {
	info, err := os.Stat(remotePath)
	if err != nil || !info.IsDir() {
		return false
	}
	if !strings.HasPrefix(remotePath, `\\`) {
		return true
	}
	_, err = os.ReadDir(remotePath)
	return err == nil
}

// HasChanges does a metadata-only comparison (no file content read) between
// remotePath and localCachePath, to decide whether SyncToLocalCache is worth
// running this cycle. Returns an error only when the remote path itself is
// unreachable — callers should treat that as "stay on the existing local
// cache, do not touch the database" rather than as "no changes".
func HasChanges(remotePath, localCachePath string) (bool, error) {
	if !IsRemoteAccessible(remotePath) {
		return false, fmt.Errorf("remote folder unavailable: %s", remotePath)
	}

	if _, err := os.Stat(localCachePath); err != nil {
		return true, nil
	}

	remote, err := collectMetadata(remotePath)
	if err != nil {
		return false, err
	}
	local, err := collectMetadata(localCachePath)
	if err != nil {
		return true, nil
	}

	return !equalMetadata(remote, local), nil
}

// SyncToLocalCache mirrors remotePath into localCachePath: copies files that
// are new, whose size differs from the local copy, or whose remote mtime is
// newer than the local copy's, then deletes any
// local file the remote no longer has. Only files ShouldSyncFile accepts are
// considered.
func SyncToLocalCache(remotePath, localCachePath string) error {
	if err := os.MkdirAll(localCachePath, 0o755); err != nil {
		return fmt.Errorf("creating local cache dir: %w", err)
	}

	remoteFiles := make(map[string]bool)

	walkErr := filepath.WalkDir(remotePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(remotePath, path)
		if relErr != nil {
			return nil
		}
		if !ShouldSyncFile(rel) {
			return nil
		}

		remoteFiles[rel] = true
		localPath := filepath.Join(localCachePath, rel)

		if shouldCopy(path, localPath) {
			if err := copyInto(path, localPath); err != nil {
				return fmt.Errorf("copying %s: %w", rel, err)
			}
		}
		return nil
	})
	if walkErr != nil {
		return walkErr
	}

	return removeStaleLocalFiles(localCachePath, remoteFiles)
}

func shouldCopy(remotePath, localPath string) bool {
	localInfo, err := os.Stat(localPath)
	if err != nil {
		return true
	}
	remoteInfo, err := os.Stat(remotePath)
	if err != nil {
		return true
	}
	return remoteInfo.ModTime().After(localInfo.ModTime()) || remoteInfo.Size() != localInfo.Size()
}

func copyInto(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

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

func removeStaleLocalFiles(localCachePath string, remoteFiles map[string]bool) error {
	return filepath.WalkDir(localCachePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(localCachePath, path)
		if relErr != nil {
			return nil
		}
		if !remoteFiles[rel] {
			return os.Remove(path)
		}
		return nil
	})
}

// ShouldSyncFile reports whether relPath (relative to the share root)
// belongs to a year-numbered top-level folder (e.g. "2024/...") and is not
// one of the excluded archive/spreadsheet/repository artifacts.
func ShouldSyncFile(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	parts := strings.Split(relPath, "/")
	if len(parts) < 2 {
		return false
	}

	firstComponent := parts[0]
	isYearFolder := len(firstComponent) >= 4 && allASCIIDigits(firstComponent[:4])

	lower := strings.ToLower(relPath)
	isExcluded := strings.HasSuffix(lower, ".zip") ||
		strings.HasSuffix(lower, ".xlsx") ||
		strings.HasSuffix(lower, ".xls") ||
		strings.Contains(relPath, "ЕРДР") ||
		strings.Contains(relPath, ".git")

	return isYearFolder && !isExcluded
}

func allASCIIDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func collectMetadata(root string) ([]fileStamp, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("path does not exist or is unreachable: %s", root)
	}

	var stamps []fileStamp
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if !ShouldSyncFile(rel) {
			return nil
		}
		stamps = append(stamps, fileStamp{relPath: rel, size: info.Size(), mtime: info.ModTime().Unix()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(stamps, func(i, j int) bool { return stamps[i].relPath < stamps[j].relPath })
	return stamps, nil
}

func equalMetadata(a, b []fileStamp) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
