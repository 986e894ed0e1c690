package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/quarry-search/quarry/pkg/embed"
	"github.com/quarry-search/quarry/pkg/retrieval"
)

// HNSWStore is an in-process vector search backend over coder/hnsw. It owns
// an embedder: documents are embedded at index time and queries at search
// time, so callers never touch vectors directly. Filters evaluate in memory
// against the stored document payloads.
type HNSWStore struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]

	embedder   embed.Embedder
	onProgress embed.ProgressFunc

	// String ids map to internal uint64 keys. Deletion is lazy: the mapping
	// is dropped but the node stays in the graph, because coder/hnsw breaks
	// when the last node is deleted.
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	docs   map[string]hnswDoc
	closed bool
}

type hnswDoc struct {
	Content  string
	Metadata map[string]any
}

// hnswMetadata is the gob-persisted sidecar holding everything the graph
// export does not carry.
type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Docs    map[string]hnswDoc
}

var (
	_ retrieval.SearchProvider = (*HNSWStore)(nil)
	_ retrieval.Remover        = (*HNSWStore)(nil)
	_ retrieval.Clearer        = (*HNSWStore)(nil)
	_ retrieval.CloserProvider = (*HNSWStore)(nil)
)

// HNSWOption configures an HNSWStore.
type HNSWOption func(*HNSWStore)

// WithProgress reports embedding progress during Index.
func WithProgress(fn embed.ProgressFunc) HNSWOption {
	return func(s *HNSWStore) { s.onProgress = fn }
}

// NewHNSWStore creates a vector store around embedder.
func NewHNSWStore(embedder embed.Embedder, opts ...HNSWOption) *HNSWStore {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	s := &HNSWStore{
		graph:    graph,
		embedder: embedder,
		idMap:    make(map[string]uint64),
		keyMap:   make(map[uint64]string),
		docs:     make(map[string]hnswDoc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Index embeds documents in adaptive batches and inserts them. Existing ids
// are replaced.
func (s *HNSWStore) Index(ctx context.Context, docs []retrieval.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	vectors, err := embed.Batch(ctx, s.embedder.EmbedBatch, texts, s.onProgress)
	if err != nil {
		return 0, fmt.Errorf("embed documents: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	for i, doc := range docs {
		if existing, ok := s.idMap[doc.ID]; ok {
			delete(s.keyMap, existing)
			delete(s.idMap, doc.ID)
		}

		key := s.nextKey
		s.nextKey++

		s.graph.Add(hnsw.MakeNode(key, vectors[i]))
		s.idMap[doc.ID] = key
		s.keyMap[key] = doc.ID
		s.docs[doc.ID] = hnswDoc{Content: doc.Content, Metadata: doc.Metadata}
	}

	return len(docs), nil
}

// Search embeds the query and returns nearest neighbors. Scores are cosine
// similarity rescaled into [0, 1].
func (s *HNSWStore) Search(ctx context.Context, query string, opts retrieval.SearchOptions) ([]retrieval.SearchResult, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if s.graph.Len() == 0 {
		return []retrieval.SearchResult{}, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = retrieval.DefaultSearchLimit
	}
	k := fetchLimit(limit, opts.Filter)
	// Lazy-deleted orphans may surface; ask for a few extra.
	k += s.graph.Len() - len(s.idMap)

	nodes := s.graph.Search(vector, k)

	results := make([]retrieval.SearchResult, 0, len(nodes))
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}

		// Cosine distance ranges 0..2; map to similarity 0..1.
		distance := s.graph.Distance(vector, node.Value)
		r := retrieval.SearchResult{
			ID:    id,
			Score: float64(1.0 - distance/2.0),
		}

		doc := s.docs[id]
		if opts.ReturnContent {
			r.Content = doc.Content
		}
		r.Metadata = doc.Metadata

		results = append(results, r)
	}

	results, err = applyFilter(results, opts.Filter, limit)
	if err != nil {
		return nil, err
	}
	if !opts.ReturnMetadata {
		for i := range results {
			results[i].Metadata = nil
		}
	}
	return results, nil
}

// Remove drops ids from the mappings. Nodes stay in the graph (lazy
// deletion) but never surface in results.
func (s *HNSWStore) Remove(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	count := 0
	for _, id := range ids {
		key, ok := s.idMap[id]
		if !ok {
			continue
		}
		delete(s.keyMap, key)
		delete(s.idMap, id)
		delete(s.docs, id)
		count++
	}
	return count, nil
}

// Clear resets the store to empty.
func (s *HNSWStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = s.graph.Distance
	graph.M = s.graph.M
	graph.EfSearch = s.graph.EfSearch
	graph.Ml = s.graph.Ml
	s.graph = graph

	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.docs = make(map[string]hnswDoc)
	s.nextKey = 0
	return nil
}

// Count returns the number of live documents.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Save persists the graph and sidecar metadata atomically (temp file plus
// rename).
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	return s.saveMetadata(path + ".meta")
}

func (s *HNSWStore) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}

	meta := hnswMetadata{IDMap: s.idMap, NextKey: s.nextKey, Docs: s.docs}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores the graph and metadata written by Save.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer metaFile.Close()

	var meta hnswMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	s.idMap = meta.IDMap
	s.nextKey = meta.NextKey
	s.docs = meta.Docs
	if s.docs == nil {
		s.docs = make(map[string]hnswDoc)
	}
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close releases the graph and closes the embedder. Idempotent.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return s.embedder.Close()
}
