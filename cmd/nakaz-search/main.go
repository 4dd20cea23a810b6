// Command nakaz-search is the CLI entry point: index/rebuild/validate
// verbs over the forward and inverted order indices.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nakaz-search/nakaz-search/internal/atomic"
	"github.com/nakaz-search/nakaz-search/internal/config"
	remotesync "github.com/nakaz-search/nakaz-search/internal/sync"
)

const (
	exitOK = iota
	exitIndexLoadFailure
	exitLockContention
	exitParseFailures
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: nakaz-search <index|rebuild|validate> [flags] [root]")
		return exitIndexLoadFailure
	}

	verb := args[0]
	cfg, remaining, err := config.Load(args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitIndexLoadFailure
	}

	mgr := atomic.New(cfg.ForwardIndexPath, cfg.InvertedIndexPath, cfg.LockFilePath)
	mgr.CleanupTempFiles()

	switch verb {
	case "index":
		return runIndex(mgr, cfg, remaining, log)
	case "rebuild":
		return runRebuild(mgr, log)
	case "validate":
		return runValidate(mgr, log)
	default:
		fmt.Fprintf(os.Stderr, "unknown verb %q: expected index, rebuild, or validate\n", verb)
		return exitIndexLoadFailure
	}
}

func runIndex(mgr *atomic.Manager, cfg *config.Config, remaining []string, log *slog.Logger) int {
	root := cfg.RootDir
	if cfg.RemotePath == "" && len(remaining) > 0 {
		root = remaining[0]
	}
	if root == "" {
		fmt.Fprintln(os.Stderr, "index requires a root directory")
		return exitIndexLoadFailure
	}

	if cfg.RemotePath != "" {
		changed, err := remotesync.HasChanges(cfg.RemotePath, root)
		if err != nil {
			log.Warn("remote share unreachable, continuing with existing cache", "error", err)
		} else if changed {
			if err := remotesync.SyncToLocalCache(cfg.RemotePath, root); err != nil {
				log.Error("failed to sync remote share to local cache", "error", err)
				return exitIndexLoadFailure
			}
		}
	}

	stats, err := mgr.Update(root, uint64(time.Now().Unix()))
	if err != nil {
		if strings.Contains(err.Error(), "already updating") {
			log.Error("commit lock contention", "error", err)
			return exitLockContention
		}
		log.Error("index update failed", "error", err)
		return exitIndexLoadFailure
	}

	log.Info("index update complete", "stats", stats.String())

	if stats.HasChanges() {
		if _, err := mgr.Validate(); err != nil {
			log.Warn("post-update validation failed", "error", err)
		}
		if _, err := mgr.RebuildIfNeeded(); err != nil {
			log.Warn("rebuild check failed", "error", err)
		}
	}

	if len(stats.ParseErrors) > 0 {
		for _, msg := range stats.ParseErrors {
			log.Warn("file skipped this cycle", "error", msg)
		}
		return exitParseFailures
	}

	return exitOK
}

func runRebuild(mgr *atomic.Manager, log *slog.Logger) int {
	rebuilt, err := mgr.RebuildIfNeeded()
	if err != nil {
		log.Error("rebuild failed", "error", err)
		return exitIndexLoadFailure
	}
	log.Info("rebuild complete", "rebuilt", rebuilt)
	return exitOK
}

func runValidate(mgr *atomic.Manager, log *slog.Logger) int {
	ok, err := mgr.Validate()
	if err != nil {
		log.Error("validation failed", "error", err)
		return exitIndexLoadFailure
	}
	log.Info("validation complete", "ok", ok)
	return exitOK
}
