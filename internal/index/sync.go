package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/can1357/smgrep/internal/chunk"
	"github.com/can1357/smgrep/internal/config"
	"github.com/can1357/smgrep/internal/embed"
	"github.com/can1357/smgrep/internal/scanner"
	"github.com/can1357/smgrep/internal/store"
)

// saveInterval is how many changed files accumulate between meta store saves
// during a sync (SPEC_FULL §4.4 step 7, `SAVE_INTERVAL = 25`).
const saveInterval = 25

// SyncResult is the outcome of an initial_sync run (SPEC_FULL §4.4 contract).
type SyncResult struct {
	Processed int
	Indexed   int
	Skipped   int
	Deleted   int
}

// SyncProgress is delivered to a caller-supplied callback after each file and
// at batch boundaries.
type SyncProgress struct {
	Processed   int
	Indexed     int
	Total       int
	CurrentFile string
}

// SyncEngine drives initial_sync for one repository: discovers files, diffs
// them against the meta store, chunks and embeds what changed, and inserts
// the result into the vector/text store.
//
// Grounded line-for-line on original_source/src/sync.rs's SyncEngine; the
// teacher's equivalent (internal/index/runner.go) is a single-pass indexer
// over its own relational metadata store and does not have an incremental
// resync step, so the control flow here follows the Rust original instead,
// expressed in the teacher's logging/error style.
type SyncEngine struct {
	root      string
	dataDir   string
	storeID   string
	chunker   chunk.Chunker
	embedder  embed.Embedder
	store     store.Store
	batchSize int

	maxWorkers   int
	skipMetaSave bool

	includePatterns []string
	excludePatterns []string
	submodules      *config.SubmoduleConfig
}

// NewSyncEngine builds a SyncEngine for one repository root, keyed by storeID
// under dataDir.
func NewSyncEngine(root, dataDir, storeID string, chunker chunk.Chunker, embedder embed.Embedder, st store.Store, batchSize int) *SyncEngine {
	if batchSize <= 0 {
		batchSize = embed.DefaultBatchSize
	}
	return &SyncEngine{
		root:      root,
		dataDir:   dataDir,
		storeID:   storeID,
		chunker:   chunker,
		embedder:  embedder,
		store:     st,
		batchSize: batchSize,
	}
}

// SetMaxWorkers bounds the concurrency of hashFiles's file-hashing fan-out
// (SPEC_FULL §6 RSGREP_THREADS/RSGREP_LOW_IMPACT). n <= 0 leaves it unbounded.
func (e *SyncEngine) SetMaxWorkers(n int) {
	e.maxWorkers = n
}

// SetSkipMetaSave suppresses the periodic meta.Save() calls InitialSync makes
// every saveInterval files, keeping only the final save at the end of the run
// (SPEC_FULL §6 RSGREP_SKIP_META_SAVE).
func (e *SyncEngine) SetSkipMetaSave(skip bool) {
	e.skipMetaSave = skip
}

// SetPathFilters carries a project's configured include/exclude glob patterns
// (.amanmcp.yaml paths.include/paths.exclude) into discoverFiles's scan.
func (e *SyncEngine) SetPathFilters(include, exclude []string) {
	e.includePatterns = include
	e.excludePatterns = exclude
}

// SetSubmodules enables git submodule discovery during discoverFiles per the
// project's submodules config (disabled when cfg is nil or cfg.Enabled is false).
func (e *SyncEngine) SetSubmodules(cfg *config.SubmoduleConfig) {
	e.submodules = cfg
}

// fileHash pairs a discovered path with its content, hash, and whether it
// needs (re)indexing against the meta/store hash it was found with.
type fileHash struct {
	path          string
	hash          string
	content       []byte
	needsIndexing bool
	hadPriorHash  bool
}

// InitialSync performs a full pass over root: deletes rows for files no
// longer on disk, re-indexes changed files, and leaves unchanged files alone
// (SPEC_FULL §4.4 algorithm, steps 1-8).
func (e *SyncEngine) InitialSync(ctx context.Context, dryRun bool, progress func(SyncProgress)) (*SyncResult, error) {
	lock := NewRepoLock(e.dataDir, e.storeID)
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("acquire sync lock for %s: %w", e.storeID, err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("sync_lock_release_failed", slog.String("store_id", e.storeID), slog.String("error", err.Error()))
		}
	}()

	meta, err := store.LoadMetaStore(e.dataDir, e.storeID)
	if err != nil {
		return nil, fmt.Errorf("load meta store: %w", err)
	}

	paths, err := e.discoverFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}
	totalFiles := len(paths)

	filesOnDisk := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		filesOnDisk[p] = struct{}{}
	}

	var deletedPaths []string
	for _, p := range meta.AllPaths() {
		if _, ok := filesOnDisk[p]; !ok {
			deletedPaths = append(deletedPaths, p)
		}
	}

	if !dryRun && len(deletedPaths) > 0 {
		if err := e.store.DeleteFiles(ctx, deletedPaths); err != nil {
			return nil, fmt.Errorf("delete stale files: %w", err)
		}
		for _, p := range deletedPaths {
			meta.Remove(p)
		}
	}
	deletedCount := len(deletedPaths)

	storeHashes, err := e.store.GetFileHashes(ctx)
	if err != nil {
		return nil, fmt.Errorf("get store file hashes: %w", err)
	}

	hashResults, err := e.hashFiles(ctx, paths, meta, storeHashes)
	if err != nil {
		return nil, fmt.Errorf("hash files: %w", err)
	}

	var changedFiles []string
	for _, r := range hashResults {
		if r.needsIndexing && r.hadPriorHash {
			changedFiles = append(changedFiles, r.path)
		}
	}
	if !dryRun && len(changedFiles) > 0 {
		if err := e.store.DeleteFiles(ctx, changedFiles); err != nil {
			return nil, fmt.Errorf("delete changed files: %w", err)
		}
	}

	result := &SyncResult{Deleted: deletedCount}
	var sinceSave int
	var queue []queuedFile

	emit := func(currentFile string) {
		if progress == nil {
			return
		}
		progress(SyncProgress{
			Processed:   result.Processed,
			Indexed:     result.Indexed,
			Total:       totalFiles,
			CurrentFile: currentFile,
		})
	}

	for _, r := range hashResults {
		result.Processed++
		emit(r.path)

		if !r.needsIndexing {
			result.Skipped++
			continue
		}
		if dryRun {
			result.Indexed++
			continue
		}

		prepared, err := e.prepareFile(ctx, r.path, r.hash, r.content)
		if err != nil {
			slog.Warn("sync_file_skipped", slog.String("path", r.path), slog.String("error", err.Error()))
			result.Skipped++
			continue
		}
		queue = append(queue, queuedFile{path: r.path, hash: r.hash, chunks: prepared})

		if len(queue) >= e.batchSize {
			batch := queue
			queue = nil

			indexed, err := e.processBatch(ctx, batch, meta)
			if err != nil {
				return nil, fmt.Errorf("process embed batch: %w", err)
			}
			result.Indexed += indexed
			sinceSave += len(batch)

			if sinceSave >= saveInterval && !e.skipMetaSave {
				if err := meta.Save(); err != nil {
					return nil, fmt.Errorf("save meta store: %w", err)
				}
				sinceSave = 0
			}
			emit("")
		}
	}

	if !dryRun && len(queue) > 0 {
		indexed, err := e.processBatch(ctx, queue, meta)
		if err != nil {
			return nil, fmt.Errorf("process final embed batch: %w", err)
		}
		result.Indexed += indexed
	}

	if !dryRun {
		if err := meta.Save(); err != nil {
			return nil, fmt.Errorf("save meta store: %w", err)
		}
		if result.Indexed > 0 {
			if err := e.store.CreateFTSIndex(ctx); err != nil {
				return nil, fmt.Errorf("rebuild fts index: %w", err)
			}
			if err := e.store.CreateVectorIndex(ctx); err != nil {
				return nil, fmt.Errorf("rebuild vector index: %w", err)
			}
		}
	}

	emit("")
	slog.Info("sync_complete",
		slog.String("store_id", e.storeID),
		slog.Int("processed", result.Processed),
		slog.Int("indexed", result.Indexed),
		slog.Int("skipped", result.Skipped),
		slog.Int("deleted", result.Deleted),
		slog.Bool("dry_run", dryRun))

	return result, nil
}

// discoverFiles enumerates relative paths under root, respecting ignore
// files, via the shared scanner package.
func (e *SyncEngine) discoverFiles(ctx context.Context) ([]string, error) {
	s, err := scanner.New()
	if err != nil {
		return nil, fmt.Errorf("create scanner: %w", err)
	}

	results, err := s.Scan(ctx, &scanner.ScanOptions{
		RootDir:          e.root,
		RespectGitignore: true,
		IncludePatterns:  e.includePatterns,
		ExcludePatterns:  e.excludePatterns,
		Submodules:       e.submodules,
	})
	if err != nil {
		return nil, fmt.Errorf("start scan: %w", err)
	}

	var paths []string
	for r := range results {
		if r.Error != nil {
			slog.Warn("sync_scan_warning", slog.String("error", r.Error.Error()))
			continue
		}
		paths = append(paths, r.File.Path)
	}
	sort.Strings(paths)
	return paths, nil
}

// hashFiles reads and hashes every path in parallel (SPEC_FULL §4.4 step 4),
// bounded by golang.org/x/sync/errgroup the way the teacher's embed package
// bounds its own CPU-side work.
func (e *SyncEngine) hashFiles(ctx context.Context, paths []string, meta *store.MetaStore, storeHashes map[string]string) ([]fileHash, error) {
	results := make([]fileHash, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	if e.maxWorkers > 0 {
		g.SetLimit(e.maxWorkers)
	}
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			content, err := os.ReadFile(filepath.Join(e.root, p))
			if err != nil {
				// A file that vanished between scan and read is treated as
				// already-deleted, not a fatal error.
				return nil
			}

			sum := sha256.Sum256(content)
			hash := hex.EncodeToString(sum[:])

			existingHash, hadMeta := meta.GetHash(p)
			storedHash, hadStore := storeHashes[p]
			hadPriorHash := hadMeta || hadStore

			var compareHash string
			switch {
			case hadMeta:
				compareHash = existingHash
			case hadStore:
				compareHash = storedHash
			}

			results[i] = fileHash{
				path:          p,
				hash:          hash,
				content:       content,
				needsIndexing: compareHash != hash,
				hadPriorHash:  hadPriorHash,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := results[:0]
	for _, r := range results {
		if r.path != "" {
			out = append(out, r)
		}
	}
	return out, nil
}

// queuedFile is a file's prepared chunks waiting to be embedded as part of a
// batch.
type queuedFile struct {
	path   string
	hash   string
	chunks []preparedChunk
}

// preparedChunk is one chunk.Chunk plus the identifiers and neighbour context
// it carries once sync has assigned it a VectorRecord ID (SPEC_FULL §3
// "Chunk identity").
type preparedChunk struct {
	id          string
	path        string
	hash        string
	content     string
	startLine   int
	endLine     int
	chunkIndex  int
	isAnchor    bool
	chunkType   chunk.ChunkType
	context     string
	contextPrev string
	contextNext string
}

// prepareFile chunks one file's content, builds its anchor chunk, and
// decorates every ordinary chunk with its file-order neighbours' content
// (SPEC_FULL §4.4 step 6).
func (e *SyncEngine) prepareFile(ctx context.Context, path, hash string, content []byte) ([]preparedChunk, error) {
	chunks, err := e.chunker.Chunk(ctx, &chunk.FileInput{Path: path, Content: content})
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", path, err)
	}

	anchor := chunk.BuildAnchorChunk(string(content), path)
	prepared := make([]preparedChunk, 0, len(chunks)+1)
	prepared = append(prepared, preparedChunk{
		id:         path + ":anchor",
		path:       path,
		hash:       hash,
		content:    anchor.Content,
		startLine:  anchor.StartLine,
		endLine:    anchor.EndLine,
		chunkIndex: -1,
		isAnchor:   true,
		chunkType:  anchor.ChunkType,
		context:    strings.Join(anchor.Context, " > "),
	})

	for idx, c := range chunks {
		var prev, next string
		if idx > 0 {
			prev = chunks[idx-1].Content
		}
		if idx < len(chunks)-1 {
			next = chunks[idx+1].Content
		}

		prepared = append(prepared, preparedChunk{
			id:          fmt.Sprintf("%s:%d", path, idx+1),
			path:        path,
			hash:        hash,
			content:     c.Content,
			startLine:   c.StartLine,
			endLine:     c.EndLine,
			chunkIndex:  idx + 1,
			isAnchor:    false,
			chunkType:   c.ChunkType,
			context:     strings.Join(c.Context, " > "),
			contextPrev: prev,
			contextNext: next,
		})
	}

	return prepared, nil
}

// processBatch embeds every prepared chunk across a batch of files in one
// compute_hybrid call, inserts the resulting VectorRecords, and advances the
// meta store's hashes for the files just indexed (SPEC_FULL §4.4 step 7).
func (e *SyncEngine) processBatch(ctx context.Context, batch []queuedFile, meta *store.MetaStore) (int, error) {
	var allChunks []preparedChunk
	for _, f := range batch {
		allChunks = append(allChunks, f.chunks...)
	}
	if len(allChunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(allChunks))
	for i, c := range allChunks {
		texts[i] = c.content
	}

	embeddings, err := e.embedder.ComputeHybrid(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("compute hybrid embeddings: %w", err)
	}
	if len(embeddings) != len(allChunks) {
		return 0, fmt.Errorf("embedder returned %d embeddings for %d chunks", len(embeddings), len(allChunks))
	}

	records := make([]store.VectorRecord, len(allChunks))
	for i, c := range allChunks {
		records[i] = store.VectorRecord{
			ID:           c.id,
			Path:         c.path,
			Hash:         c.hash,
			ChunkIndex:   c.chunkIndex,
			IsAnchor:     c.isAnchor,
			ChunkType:    c.chunkType,
			Context:      c.context,
			Content:      c.content,
			StartLine:    c.startLine,
			EndLine:      c.endLine,
			ContextPrev:  c.contextPrev,
			ContextNext:  c.contextNext,
			Dense:        embeddings[i].Dense,
			Colbert:      embeddings[i].Colbert,
			ColbertScale: embeddings[i].ColbertScale,
			ColbertDim:   embed.ColbertDimensions,
		}
	}

	if err := e.store.InsertBatch(ctx, records); err != nil {
		return 0, fmt.Errorf("insert batch: %w", err)
	}

	for _, f := range batch {
		meta.SetHash(f.path, f.hash)
	}

	return len(batch), nil
}
