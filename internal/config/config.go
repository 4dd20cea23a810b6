// Package config loads the explicit runtime configuration for the CLI and
// background orchestrator: no package-level globals, every dependent
// package takes a *Config or its fields directly.
package config

import (
	"flag"
)

// Config names every path the rest of the system needs; tuning constants
// (tick interval, quick-window size, proximity gap) are package constants
// of the packages that use them. Zero value is never used directly — build one with Load or New.
type Config struct {
	// RootDir is the directory scanned for .docx files (the local cache
	// directory when a remote share is mirrored, or the documents
	// directory directly when there is none).
	RootDir string
	// RemotePath is the optional remote share mirrored into RootDir before
	// each reconciliation cycle. Empty means no remote mirroring.
	RemotePath string

	ForwardIndexPath  string
	InvertedIndexPath string
	LockFilePath      string
}

// Default paths mirror the original system's hard-coded filenames, kept
// relative to the working directory the binary is launched from.
const (
	DefaultForwardIndexPath  = "documents_index.json"
	DefaultInvertedIndexPath = "inverted_index.json"
	DefaultLockFilePath      = "index_update.lock"
	DefaultLocalCacheDir     = "./nakazi_cache"
)

// New returns a Config for rootDir with every other path set to its
// default.
func New(rootDir string) *Config {
	return &Config{
		RootDir:           rootDir,
		ForwardIndexPath:  DefaultForwardIndexPath,
		InvertedIndexPath: DefaultInvertedIndexPath,
		LockFilePath:      DefaultLockFilePath,
	}
}

// Load parses args (typically os.Args[2:], after the verb) into a Config.
// remaining holds whatever positional arguments followed the flags — for
// the "index" verb without -remote, that is the root directory to scan.
func Load(args []string) (cfg *Config, remaining []string, err error) {
	fs := flag.NewFlagSet("nakaz-search", flag.ContinueOnError)

	remotePath := fs.String("remote", "", "remote share to mirror before indexing (optional)")
	localCache := fs.String("cache", DefaultLocalCacheDir, "local cache directory indexed when -remote is set")
	forwardPath := fs.String("forward-index", DefaultForwardIndexPath, "path to the forward (document) index file")
	invertedPath := fs.String("inverted-index", DefaultInvertedIndexPath, "path to the inverted index file")
	lockPath := fs.String("lock-file", DefaultLockFilePath, "path to the cross-process update lock file")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	rootDir := *localCache
	if *remotePath == "" && fs.NArg() > 0 {
		rootDir = fs.Arg(0)
	}

	cfg = &Config{
		RootDir:           rootDir,
		RemotePath:        *remotePath,
		ForwardIndexPath:  *forwardPath,
		InvertedIndexPath: *invertedPath,
		LockFilePath:      *lockPath,
	}

	return cfg, fs.Args(), nil
}
