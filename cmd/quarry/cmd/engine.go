package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/quarry-search/quarry/internal/config"
	"github.com/quarry-search/quarry/internal/errors"
	"github.com/quarry-search/quarry/internal/logging"
	"github.com/quarry-search/quarry/internal/scanner"
	"github.com/quarry-search/quarry/internal/store"
	"github.com/quarry-search/quarry/pkg/chunk"
	"github.com/quarry-search/quarry/pkg/embed"
	"github.com/quarry-search/quarry/pkg/retrieval"
)

// embedCacheSize bounds the query/content embedding LRU.
const embedCacheSize = 4096

// hnswFileName is the vector index file inside the index directory.
const hnswFileName = "vectors.hnsw"

// engine wires configured stores and the embedder into an orchestrator.
// The HNSW store is in-memory and needs an explicit save after indexing;
// every other backend persists as it goes.
type engine struct {
	cfg      *config.Config
	indexDir string
	orch     *retrieval.Orchestrator

	hnsw     *store.HNSWStore
	hnswPath string
	embedder embed.Embedder
}

// loadProjectConfig resolves the index directory under root and loads the
// config file inside it, falling back to defaults when absent.
func loadProjectConfig(root string) (*config.Config, string, error) {
	indexDir := filepath.Join(root, config.Default().IndexDir)
	cfg, err := config.Load(config.Path(indexDir))
	if err != nil {
		return nil, "", err
	}
	if cfg.IndexDir != "" && cfg.IndexDir != config.Default().IndexDir {
		indexDir = cfg.IndexDir
		if !filepath.IsAbs(indexDir) {
			indexDir = filepath.Join(root, indexDir)
		}
	}
	return cfg, indexDir, nil
}

// setupCommandLogging routes file logging per config unless --debug already
// configured the global logger. Returns a cleanup func or nil.
func setupCommandLogging(cfg *config.Config, indexDir string) func() {
	if debugMode {
		return nil
	}
	logCfg := cfg.Logging
	if logCfg.FilePath == "" {
		logCfg.FilePath = filepath.Join(indexDir, "quarry.log")
	}
	logCfg.WriteToStderr = false
	_, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil
	}
	return cleanup
}

// openEngine builds the orchestrator from config. onEmbed receives batch
// embedding progress from vector stores, and may be nil.
func openEngine(ctx context.Context, cfg *config.Config, indexDir string, onEmbed embed.ProgressFunc) (*engine, error) {
	e := &engine{cfg: cfg, indexDir: indexDir}

	var input retrieval.DriverInput
	var err error
	if cfg.Drivers.Single != "" {
		input.Single, err = e.buildDriver(ctx, cfg.Drivers.Single, onEmbed)
		if err != nil {
			return nil, err
		}
	} else {
		if cfg.Drivers.Vector != "" {
			input.Vector, err = e.buildDriver(ctx, cfg.Drivers.Vector, onEmbed)
			if err != nil {
				return nil, err
			}
		}
		if cfg.Drivers.Keyword != "" {
			input.Keyword, err = e.buildDriver(ctx, cfg.Drivers.Keyword, onEmbed)
			if err != nil {
				return nil, err
			}
		}
	}

	chunkOpts := chunk.AutoChunkerOptions{
		Code: chunk.CodeChunkerOptions{
			OverlapLines: cfg.Chunking.OverlapLines,
		},
		Split: chunk.SplitOptions{
			ChunkSize:    cfg.Chunking.ChunkSize,
			ChunkOverlap: cfg.Chunking.ChunkOverlap,
		},
	}
	if cfg.Chunking.MaxTokens > 0 {
		chunkOpts.Code.MaxChunkSize = chunk.MaxChunkSizeForTokens(cfg.Chunking.MaxTokens)
	}

	e.orch, err = retrieval.New(input,
		retrieval.WithCategorizer(func(doc retrieval.Document) string {
			return scanner.Category(doc.ID)
		}),
		retrieval.WithChunkerOptions(chunkOpts),
	)
	if err != nil {
		return nil, errors.New(errors.ErrCodeNoDrivers, "build search orchestrator", err)
	}
	return e, nil
}

func (e *engine) buildDriver(ctx context.Context, name string, onEmbed embed.ProgressFunc) (retrieval.SearchProvider, error) {
	switch name {
	case config.DriverBleve:
		return store.NewBleveStore(filepath.Join(e.indexDir, "bleve"))

	case config.DriverSQLite:
		return store.NewSQLiteStore(filepath.Join(e.indexDir, "keyword.db"))

	case config.DriverHNSW:
		emb, err := e.getEmbedder()
		if err != nil {
			return nil, err
		}
		s := store.NewHNSWStore(emb, store.WithProgress(onEmbed))
		e.hnswPath = filepath.Join(e.indexDir, hnswFileName)
		if _, err := os.Stat(e.hnswPath); err == nil {
			if err := s.Load(e.hnswPath); err != nil {
				return nil, err
			}
		}
		e.hnsw = s
		return s, nil

	case config.DriverQdrant:
		emb, err := e.getEmbedder()
		if err != nil {
			return nil, err
		}
		return store.NewQdrantStore(ctx, e.cfg.Qdrant.Addr, e.cfg.Qdrant.Collection, emb)

	default:
		return nil, errors.ConfigError("unknown search driver", nil).
			WithDetail("driver", name)
	}
}

// getEmbedder lazily constructs the configured embedding provider.
func (e *engine) getEmbedder() (embed.Embedder, error) {
	if e.embedder != nil {
		return e.embedder, nil
	}

	switch e.cfg.Embedder.Provider {
	case config.EmbedderStatic, "":
		e.embedder = embed.NewStaticEmbedder()

	case config.EmbedderOllama:
		ocfg := embed.DefaultOllamaConfig()
		if e.cfg.Embedder.Host != "" {
			ocfg.Host = e.cfg.Embedder.Host
		}
		if e.cfg.Embedder.Model != "" {
			ocfg.Model = e.cfg.Embedder.Model
		}
		ocfg.Dimensions = e.cfg.Embedder.Dimensions
		ocfg.MaxTokens = e.cfg.Embedder.MaxTokens
		inner, err := embed.NewOllamaEmbedder(ocfg)
		if err != nil {
			return nil, err
		}
		e.embedder = embed.NewCachedEmbedder(inner, embedCacheSize)

	default:
		return nil, errors.ConfigError("unknown embedder provider", nil).
			WithDetail("provider", e.cfg.Embedder.Provider)
	}
	return e.embedder, nil
}

// save persists stores that do not write through on index.
func (e *engine) save() error {
	if e.hnsw != nil {
		return e.hnsw.Save(e.hnswPath)
	}
	return nil
}

func (e *engine) Close() error {
	return e.orch.Close()
}
