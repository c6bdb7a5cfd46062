package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/can1357/smgrep/internal/chunk"
	"github.com/can1357/smgrep/internal/config"
	"github.com/can1357/smgrep/internal/daemon"
	"github.com/can1357/smgrep/internal/embed"
	"github.com/can1357/smgrep/internal/index"
	"github.com/can1357/smgrep/internal/search"
	"github.com/can1357/smgrep/internal/store"
)

// repoStack bundles the pieces one repository's daemon or one-shot index
// build needs: the opened store, its embedder, the search engine over it,
// and the sync engine that feeds it.
type repoStack struct {
	storeID    string
	dataDir    string
	store      store.Store
	embedder   embed.Embedder
	engine     *search.Engine
	syncEngine *index.SyncEngine
	daemonCfg  daemon.Config
}

// dataPath is where this repository's vector/text store persists between
// runs (SPEC_FULL §6 on-disk layout: data/<store_id>/).
func (s *repoStack) dataPath() string {
	return filepath.Join(s.dataDir, "data", s.storeID)
}

// daemonConfig builds a daemon.Config rooted at config.DataDir() so every
// CLI command agrees with buildRepoStack on where sockets and data live,
// honoring RSGREP_DATA_DIR like the rest of the stack.
func daemonConfig() daemon.Config {
	cfg := daemon.DefaultConfig()
	cfg.DataDir = config.DataDir()
	return cfg
}

// thermalConfigFrom translates the loaded config's thermal tuning fields into
// an embed.ThermalConfig, so .amanmcp.yaml settings reach newOllamaWithFallback
// the same way RSGREP_INTER_BATCH_DELAY/RSGREP_TIMEOUT_PROGRESSION env vars do.
func thermalConfigFrom(cfg *config.Config) embed.ThermalConfig {
	var delay time.Duration
	if cfg.Embeddings.InterBatchDelay != "" {
		if d, err := time.ParseDuration(cfg.Embeddings.InterBatchDelay); err == nil {
			delay = d
		}
	}
	return embed.ThermalConfig{
		InterBatchDelay:        delay,
		TimeoutProgression:     cfg.Embeddings.TimeoutProgression,
		RetryTimeoutMultiplier: cfg.Embeddings.RetryTimeoutMultiplier,
	}
}

// skipMetaSave reports RSGREP_SKIP_META_SAVE (SPEC_FULL §6): suppresses the
// sync engine's periodic intermediate meta.Save() calls.
func skipMetaSave() bool {
	v := strings.ToLower(os.Getenv("RSGREP_SKIP_META_SAVE"))
	return v == "true" || v == "1"
}

// buildRepoStack resolves root's store id, opens its embedder and store, and
// wires a SyncEngine/search.Engine over them (SPEC_FULL §4.2-§4.6).
func buildRepoStack(ctx context.Context, root string) (*repoStack, error) {
	storeID, err := config.ResolveStoreID(root)
	if err != nil {
		return nil, fmt.Errorf("resolve store id: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	embed.SetThermalConfig(thermalConfigFrom(cfg))

	embedder, err := embed.NewEmbedder(ctx, embed.ProviderType(cfg.Embeddings.Provider), cfg.Embeddings.Model)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	dataDir := config.DataDir()
	daemonCfg := daemonConfig()

	vecs, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	if err != nil {
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	bm25Path := filepath.Join(dataDir, "data", storeID, "bm25")
	text, err := store.NewSQLiteBM25Index(bm25Path, store.DefaultBM25Config())
	if err != nil {
		return nil, fmt.Errorf("create text index: %w", err)
	}
	repoStore := store.NewRepoStore(vecs, text, embedder.ModelName(), embedder.Dimensions())

	dataPath := filepath.Join(dataDir, "data", storeID)
	if _, err := os.Stat(filepath.Join(dataPath, "vectors.hnsw")); err == nil {
		if err := repoStore.Load(dataPath); err != nil {
			return nil, fmt.Errorf("load persisted store: %w", err)
		}
	}

	batchSize := cfg.Embeddings.BatchSize
	syncEngine := index.NewSyncEngine(root, dataDir, storeID, chunk.NewCodeChunker(), embedder, repoStore, batchSize)
	syncEngine.SetMaxWorkers(cfg.Performance.IndexWorkers)
	syncEngine.SetSkipMetaSave(skipMetaSave())
	syncEngine.SetPathFilters(cfg.Paths.Include, cfg.Paths.Exclude)
	if cfg.Submodules.Enabled {
		syncEngine.SetSubmodules(&cfg.Submodules)
	}
	engine := search.NewEngine(repoStore, embedder)

	return &repoStack{
		storeID:    storeID,
		dataDir:    dataDir,
		store:      repoStore,
		embedder:   embedder,
		engine:     engine,
		syncEngine: syncEngine,
		daemonCfg:  daemonCfg,
	}, nil
}
