package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/datamap"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/logger"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store/redis"
)

// SnapshotSource is where a read replica picks up graphs published by the
// writer.
type SnapshotSource interface {
	Fetch(ctx context.Context) (redis.CachedGraph, bool, error)
	Subscribe(ctx context.Context) (<-chan int64, error)
}

// Follower keeps a read-only projection in step with the published snapshot.
type Follower struct {
	source     SnapshotSource
	projection *GraphProjection
	logger     *log.Logger

	mu         sync.Mutex
	generation string
}

func NewFollower(src SnapshotSource, proj *GraphProjection, l *log.Logger) *Follower {
	if l == nil {
		l = logger.Discard()
	}
	return &Follower{source: src, projection: proj, logger: l}
}

// Sync loads the published graph if it is newer than the projection, or if the
// writer started a new generation. It reports whether the projection changed.
func (f *Follower) Sync(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cached, ok, err := f.source.Fetch(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if cached.Generation == f.generation && cached.Seq <= f.projection.Position().Seq {
		return false, nil
	}

	g, err := datamap.ParseDocument(cached.Document)
	if err != nil {
		return false, fmt.Errorf("failed to decode published graph at seq %d: %w", cached.Seq, err)
	}
	if cached.Generation != f.generation {
		f.logger.Info("follower_generation_changed", "generation", cached.Generation, "seq", cached.Seq)
	}
	f.projection.LoadState(g, Position{Seq: cached.Seq})
	f.generation = cached.Generation
	return true, nil
}

// Run syncs once and then on every announcement until ctx is done.
func (f *Follower) Run(ctx context.Context) error {
	updates, err := f.source.Subscribe(ctx)
	if err != nil {
		return err
	}
	f.sync(ctx)

	f.logger.Info("follower_started")
	for range updates {
		f.sync(ctx)
	}
	f.logger.Info("follower_stopped")
	return nil
}

func (f *Follower) sync(ctx context.Context) {
	changed, err := f.Sync(ctx)
	if err != nil {
		f.logger.Error("follower_sync_failed", "error", err)
		return
	}
	if changed {
		f.logger.Info("follower_synced", "seq", f.projection.Position().Seq)
	}
}
