package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	goredis "github.com/redis/go-redis/v9"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/api"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/blob"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/engine"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store/redis"
)

// daemon owns every long-lived component of datamap-d. A writer journals edits
// to SQLite; a follower serves the graph the writer publishes to Redis.
type daemon struct {
	cfg    Config
	logger *log.Logger

	projection *engine.GraphProjection
	graphs     blob.BlobStore
	graphKey   string

	store    *store.Store
	editor   *engine.Editor
	rdb      *goredis.Client
	cache    *redis.SnapshotCache
	snapshot *engine.SnapshotWorker
	archive  *engine.ArchiveWorker
	follower *engine.Follower
	server   *api.Server

	wg sync.WaitGroup
}

func newDaemon(ctx context.Context, cfg Config, l *log.Logger) (*daemon, error) {
	d := &daemon{
		cfg:        cfg,
		logger:     l,
		projection: engine.NewGraphProjection(),
		graphs:     blob.NewLocalBlobStore(filepath.Dir(cfg.GraphPath)),
		graphKey:   filepath.Base(cfg.GraphPath),
	}

	if cfg.RedisAddr != "" {
		d.rdb = goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := d.rdb.Ping(ctx).Err(); err != nil {
			d.close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		d.cache = redis.NewSnapshotCache(d.rdb, cfg.RedisNamespace)
		l.Info("redis_connected", "addr", cfg.RedisAddr, "namespace", cfg.RedisNamespace)
	}

	opts := api.Options{
		Addr:   cfg.Addr,
		Graph:  d.projection,
		Token:  cfg.Token,
		Logger: l.With("component", "api"),
	}

	switch cfg.Role {
	case roleFollower:
		d.follower = engine.NewFollower(d.cache, d.projection, l.With("component", "follower"))

	default:
		st, err := store.NewStore(cfg.DBPath)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("failed to init store: %w", err)
		}
		d.store = st
		l.Info("store_initialized", "path", cfg.DBPath)

		var leases store.LeaseStore = st
		if cfg.LeaseBackend == leaseRedis {
			leases = redis.NewRedisLeaseStore(d.rdb, cfg.RedisNamespace)
		}
		edOpts := engine.EditorOptions{
			Journal:    st,
			Leases:     leases,
			Projection: d.projection,
			Logger:     l.With("component", "editor"),
		}
		if d.cache != nil {
			edOpts.Publisher = d.cache
		}
		d.editor = engine.NewEditor(edOpts)
		d.snapshot = engine.NewSnapshotWorker(st, d.projection, cfg.SnapshotInterval, cfg.SnapshotKeep, l.With("component", "snapshot"))
		if cfg.ArchiveDir != "" {
			d.archive = engine.NewArchiveWorker(st, blob.NewLocalBlobStore(cfg.ArchiveDir), engine.ArchiveConfig{
				Retention: cfg.ArchiveRetention,
			}, l.With("component", "archive"))
		}

		opts.Editor = d.editor
		opts.Events = st
	}

	d.server = api.NewServer(opts)
	if cfg.TLSCertFile != "" {
		d.server.SetTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	}
	return d, nil
}

// bootstrap brings the projection up to date before the server starts. A writer
// restores its checkpoint and journal tail and falls back to the graph document
// when the journal is empty; a follower pulls the published graph.
func (d *daemon) bootstrap(ctx context.Context) error {
	if d.follower != nil {
		changed, err := d.follower.Sync(ctx)
		if err != nil {
			return fmt.Errorf("failed to sync from redis: %w", err)
		}
		if !changed {
			d.logger.Warn("no_published_graph", "namespace", d.cfg.RedisNamespace)
		}
		return nil
	}

	pos, err := engine.Restore(ctx, d.store, d.store, d.projection)
	if err != nil {
		return err
	}
	if err := d.dropStaleCache(ctx, pos.Seq); err != nil {
		return err
	}
	if d.projection.Current() != nil {
		d.logger.Info("graph_restored", "seq", pos.Seq, "event_id", pos.EventID)
		d.editor.PublishCurrent(ctx)
		return nil
	}
	return d.loadDocument(ctx, "bootstrap")
}

// dropStaleCache clears a published graph that is ahead of the local journal.
// That only happens when the journal was replaced, and the cache would otherwise
// reject every publish from this writer.
func (d *daemon) dropStaleCache(ctx context.Context, seq int64) error {
	if d.cache == nil {
		return nil
	}
	cached, ok, err := d.cache.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to read published graph: %w", err)
	}
	if !ok || cached.Seq <= seq {
		return nil
	}
	d.logger.Warn("published_graph_ahead_of_journal", "cached_seq", cached.Seq, "journal_seq", seq)
	return d.cache.Clear(ctx)
}

// reload re-reads the graph document (writer) or the published graph (follower).
// It backs SIGHUP.
func (d *daemon) reload(ctx context.Context) error {
	if d.follower != nil {
		_, err := d.follower.Sync(ctx)
		return err
	}
	return d.loadDocument(ctx, "reload")
}

func (d *daemon) loadDocument(ctx context.Context, origin string) error {
	g, err := engine.LoadGraph(ctx, d.graphs, d.graphKey)
	if errors.Is(err, blob.ErrNotFound) {
		d.logger.Warn("graph_document_missing", "path", d.cfg.GraphPath)
		return nil
	}
	if err != nil {
		return err
	}

	source := store.EventSource{OriginKind: origin, OriginID: d.cfg.GraphPath}
	event, err := d.editor.Submit(ctx, engine.LoadMutation(g), source)
	if err != nil {
		return fmt.Errorf("failed to load graph document: %w", err)
	}
	st := d.projection.Current().Stats()
	d.logger.Info("graph_loaded", "path", d.cfg.GraphPath, "seq", event.Seq, "vertices", st.Vertices, "edges", st.Edges)
	return nil
}

// startWorkers launches the background loops; they stop when ctx is done.
func (d *daemon) startWorkers(ctx context.Context) {
	if d.snapshot != nil {
		d.goRun(func() { d.snapshot.Run(ctx) })
	}
	if d.archive != nil {
		d.goRun(func() { d.archive.Run(ctx) })
	}
	if d.follower != nil {
		d.goRun(func() {
			if err := d.follower.Run(ctx); err != nil {
				d.logger.Error("follower_failed", "error", err)
			}
		})
	}
}

func (d *daemon) goRun(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

// shutdown stops the server, waits for the workers of the canceled context and
// writes a final checkpoint.
func (d *daemon) shutdown(ctx context.Context) {
	if err := d.server.Stop(ctx); err != nil {
		d.logger.Error("server_shutdown_failed", "error", err)
	}
	d.wg.Wait()

	if d.snapshot != nil {
		if saved, err := d.snapshot.TakeSnapshot(ctx); err != nil {
			d.logger.Error("final_snapshot_failed", "error", err)
		} else if saved {
			d.logger.Info("final_snapshot_created", "seq", d.projection.Position().Seq)
		}
	}
	if d.editor != nil {
		if err := d.editor.Close(ctx); err != nil {
			d.logger.Warn("lease_release_failed", "error", err)
		}
	}
	d.close()
}

func (d *daemon) close() {
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Error("failed_to_close_store", "error", err)
		} else {
			d.logger.Info("store_closed")
		}
	}
	if d.rdb != nil {
		d.rdb.Close()
	}
}

const shutdownTimeout = 10 * time.Second
