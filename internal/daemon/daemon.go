package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/can1357/smgrep/internal/index"
	"github.com/can1357/smgrep/internal/search"
	"github.com/can1357/smgrep/internal/store"
	"github.com/can1357/smgrep/internal/watcher"
)

// Daemon is the long-lived process serving one repository's queries: it owns
// the store, embedder, and sync engine, and answers Search/Health/Shutdown
// requests over its per-repo socket (SPEC_FULL §4.8).
type Daemon struct {
	cfg     Config
	root    string
	storeID string

	store      store.Store
	engine     *search.Engine
	syncEngine *index.SyncEngine
	pidFile    *PIDFile
	server     *Server

	mu       sync.RWMutex
	started  time.Time
	indexing bool
	progress int
	files    int

	// syncMu serializes runSync against itself: the watch-triggered resync
	// below and the initial sync at Start must never run concurrently.
	syncMu sync.Mutex
}

var _ Handler = (*Daemon)(nil)

// NewDaemon builds a daemon for one repository. st and engine must already be
// wired against the same store; syncEngine drives the initial and periodic sync.
func NewDaemon(cfg Config, root, storeID string, st store.Store, engine *search.Engine, syncEngine *index.SyncEngine) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsureSocksDir(); err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:        cfg,
		root:       root,
		storeID:    storeID,
		store:      st,
		engine:     engine,
		syncEngine: syncEngine,
		pidFile:    NewPIDFile(cfg.SocketPath(storeID) + ".pid"),
	}
	d.server = NewServer(cfg.SocketPath(storeID), d)
	return d, nil
}

// dataPath is where this repository's vector/text store persists between
// daemon restarts (SPEC_FULL §6 on-disk layout: data/<store_id>/).
func (d *Daemon) dataPath() string {
	return filepath.Join(d.cfg.DataDir, "data", d.storeID)
}

// Start loads any previously persisted store, runs sync in the background,
// then serves requests until ctx is cancelled or a Shutdown request arrives.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	d.started = time.Now()
	d.mu.Unlock()

	if _, err := os.Stat(filepath.Join(d.dataPath(), "vectors.hnsw")); err == nil {
		if err := d.store.Load(d.dataPath()); err != nil {
			slog.Warn("failed to load persisted store, starting empty", slog.String("error", err.Error()))
		}
	}

	if err := d.pidFile.Write(); err != nil {
		slog.Warn("failed to write daemon PID file", slog.String("error", err.Error()))
	}
	defer func() { _ = d.pidFile.Remove() }()

	go d.runSync(ctx)
	go d.watchForChanges(ctx)

	return d.server.ListenAndServe(ctx)
}

// watchForChanges is the thin optional fsnotify/polling trigger into the
// sync engine's entrypoint: on any debounced batch of file events it
// re-runs sync so the index stays current without a client calling setup
// again. A failure to start the watcher is non-fatal — the daemon still
// serves whatever was last synced.
func (d *Daemon) watchForChanges(ctx context.Context) {
	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
	if err != nil {
		slog.Warn("file watcher unavailable, live reindex disabled", slog.String("error", err.Error()))
		return
	}

	if err := w.Start(ctx, d.root); err != nil {
		slog.Warn("failed to start file watcher, live reindex disabled", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = w.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-w.Events():
			if !ok {
				return
			}
			d.runSync(ctx)
		case err, ok := <-w.Errors():
			if !ok {
				continue
			}
			slog.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

func (d *Daemon) runSync(ctx context.Context) {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()

	d.mu.Lock()
	d.indexing = true
	d.mu.Unlock()

	result, err := d.syncEngine.InitialSync(ctx, false, func(p index.SyncProgress) {
		d.mu.Lock()
		d.progress = progressPercent(p.Processed, p.Total)
		d.files = p.Total
		d.mu.Unlock()
	})

	d.mu.Lock()
	d.indexing = false
	if err == nil {
		d.files = result.Processed
		d.progress = 100
	}
	d.mu.Unlock()

	if err != nil {
		slog.Error("initial sync failed", slog.String("error", err.Error()))
		return
	}

	if err := d.store.Save(d.dataPath()); err != nil {
		slog.Error("failed to persist store after sync", slog.String("error", err.Error()))
	}
}

func progressPercent(processed, total int) int {
	if total <= 0 {
		return 0
	}
	pct := processed * 100 / total
	if pct > 100 {
		pct = 100
	}
	return pct
}

// HandleSearch implements Handler.
func (d *Daemon) HandleSearch(ctx context.Context, req SearchRequest) (*Response, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	resp, err := d.engine.Search(ctx, search.Params{
		Query:        req.Query,
		Limit:        limit,
		PerFileLimit: req.PerFileLimit,
		PathFilter:   req.Path,
		Rerank:       req.Rerank,
	})
	if err != nil {
		return nil, err
	}

	out := NewSearchResponse(resp)
	return &out, nil
}

// HandleHealth implements Handler.
func (d *Daemon) HandleHealth() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return HealthStatus{
		Indexing: d.indexing,
		Progress: d.progress,
		Files:    d.files,
	}
}

// HandleShutdown implements Handler: it persists the store and closes it so
// embedded resources (HNSW graph, SQLite handles) are released before the
// process exits.
func (d *Daemon) HandleShutdown() error {
	if err := d.store.Save(d.dataPath()); err != nil {
		slog.Warn("failed to persist store on shutdown", slog.String("error", err.Error()))
	}
	return d.store.Close()
}
