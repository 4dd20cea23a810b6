// Package orchestrator implements the background orchestrator (C8): on a
// fixed tick it checks a remote share for drift, mirrors it to a local
// cache only when something changed, reconciles the local cache against
// the indices, and swaps a fresh snapshot into the search evaluator.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/nakaz-search/nakaz-search/internal/atomic"
	"github.com/nakaz-search/nakaz-search/internal/fwindex"
	"github.com/nakaz-search/nakaz-search/internal/invindex"
	"github.com/nakaz-search/nakaz-search/internal/search"
	remotesync "github.com/nakaz-search/nakaz-search/internal/sync"
)

// TickInterval is the fixed delay between reconciliation cycles.
const TickInterval = 180 * time.Second

// Orchestrator owns one background reconciliation loop.
type Orchestrator struct {
	manager        *atomic.Manager
	evaluator      *search.Evaluator
	remotePath     string
	localCachePath string
	log            *slog.Logger
}

// New returns an Orchestrator. remotePath may be empty, meaning there is no
// remote share to mirror — each tick reconciles localCachePath directly.
func New(manager *atomic.Manager, evaluator *search.Evaluator, remotePath, localCachePath string, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		manager:        manager,
		evaluator:      evaluator,
		remotePath:     remotePath,
		localCachePath: localCachePath,
		log:            log,
	}
}

// Run blocks, ticking every TickInterval until ctx is canceled. The first
// tick fires immediately rather than waiting a full interval.
func (o *Orchestrator) Run(ctx context.Context) {
	o.tick()

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.tick()
		}
	}
}

func (o *Orchestrator) tick() {
	now := uint64(time.Now().Unix())

	if o.remotePath != "" {
		changed, err := remotesync.HasChanges(o.remotePath, o.localCachePath)
		if err != nil {
			o.log.Warn("remote share unreachable, continuing with existing cache", "error", err)
		} else if changed {
			if err := remotesync.SyncToLocalCache(o.remotePath, o.localCachePath); err != nil {
				o.log.Error("failed to sync remote share to local cache", "error", err)
				return
			}
		} else {
			o.log.Info("no remote changes detected, skipping sync")
		}
	}

	stats, err := o.manager.Update(o.localCachePath, now)
	if err != nil {
		o.log.Error("index update failed", "error", err)
		return
	}

	if !stats.HasChanges() {
		o.log.Info("reconciliation found no changes")
		return
	}
	o.log.Info("reconciliation applied changes", "stats", stats.String())

	if _, err := o.manager.RebuildIfNeeded(); err != nil {
		o.log.Warn("inverted index rebuild check failed", "error", err)
	}

	forward, err := fwindex.Load(o.manager.ForwardPath)
	if err != nil {
		o.log.Error("failed to reload forward index after update", "error", err)
		return
	}
	inverted, err := invindex.Load(o.manager.InvertedPath)
	if err != nil {
		o.log.Error("failed to reload inverted index after update", "error", err)
		return
	}

	o.evaluator.Swap(forward, inverted)
	o.log.Info("search evaluator reloaded with fresh indices")
}
