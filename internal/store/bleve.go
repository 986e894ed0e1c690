package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/quarry-search/quarry/pkg/retrieval"
)

// BleveStore is a keyword search backend over Bleve v2. Content is indexed
// with the standard analyzer; the full document payload rides along as a
// stored, unindexed JSON field so search can return content and metadata
// without a second lookup. Filters evaluate in memory over that payload.
type BleveStore struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var (
	_ retrieval.SearchProvider = (*BleveStore)(nil)
	_ retrieval.Remover        = (*BleveStore)(nil)
	_ retrieval.Clearer        = (*BleveStore)(nil)
	_ retrieval.CloserProvider = (*BleveStore)(nil)
)

// bleveDocument is the indexed document shape. Payload holds the JSON
// encoding of the original document for retrieval.
type bleveDocument struct {
	Content string `json:"content"`
	Payload string `json:"payload"`
}

// blevePayload is the JSON stored in the payload field.
type blevePayload struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewBleveStore opens or creates an index at path. An empty path creates an
// in-memory index for testing.
func NewBleveStore(path string) (*BleveStore, error) {
	indexMapping := createBleveMapping()

	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create directory: %w", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &BleveStore{index: idx, path: path}, nil
}

func createBleveMapping() *mapping.IndexMappingImpl {
	content := bleve.NewTextFieldMapping()
	content.Store = false

	// Stored verbatim, never searched.
	payload := bleve.NewTextFieldMapping()
	payload.Index = false
	payload.Store = true
	payload.IncludeInAll = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", content)
	doc.AddFieldMappingsAt("payload", payload)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = doc
	return indexMapping
}

// Index upserts documents in one batch.
func (b *BleveStore) Index(ctx context.Context, docs []retrieval.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, fmt.Errorf("store is closed")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		payload, err := json.Marshal(blevePayload{Content: doc.Content, Metadata: doc.Metadata})
		if err != nil {
			return 0, fmt.Errorf("marshal payload for %s: %w", doc.ID, err)
		}
		if err := batch.Index(doc.ID, bleveDocument{
			Content: doc.Content,
			Payload: string(payload),
		}); err != nil {
			return 0, fmt.Errorf("index document %s: %w", doc.ID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("execute batch: %w", err)
	}
	return len(docs), nil
}

// Search runs a match query (OR over analyzed terms) and applies the
// metadata filter in memory, over-fetching to compensate.
func (b *BleveStore) Search(ctx context.Context, query string, opts retrieval.SearchOptions) ([]retrieval.SearchResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("store is closed")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = retrieval.DefaultSearchLimit
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = fetchLimit(limit, opts.Filter)
	req.Fields = []string{"payload"}

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	results := make([]retrieval.SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		r := retrieval.SearchResult{ID: hit.ID, Score: hit.Score}

		if raw, ok := hit.Fields["payload"].(string); ok && raw != "" {
			var payload blevePayload
			if err := json.Unmarshal([]byte(raw), &payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload for %s: %w", hit.ID, err)
			}
			if opts.ReturnContent {
				r.Content = payload.Content
			}
			// Metadata is needed for filtering even when not returned.
			r.Metadata = payload.Metadata
		}
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

	normalizeScores(results)
	return results, nil
}

// Remove deletes documents by id, counting only ids that existed.
func (b *BleveStore) Remove(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, fmt.Errorf("store is closed")
	}

	count := 0
	batch := b.index.NewBatch()
	for _, id := range ids {
		doc, err := b.index.Document(id)
		if err == nil && doc != nil {
			count++
		}
		batch.Delete(id)
	}

	if err := b.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("delete batch: %w", err)
	}
	return count, nil
}

// Clear deletes every document.
func (b *BleveStore) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("store is closed")
	}

	count, err := b.index.DocCount()
	if err != nil {
		return fmt.Errorf("count documents: %w", err)
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	res, err := b.index.Search(req)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	batch := b.index.NewBatch()
	for _, hit := range res.Hits {
		batch.Delete(hit.ID)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("clear batch: %w", err)
	}
	return nil
}

// Close closes the index. Idempotent.
func (b *BleveStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
