package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/quarry-search/quarry/pkg/chunk"
	"github.com/quarry-search/quarry/pkg/filter"
)

// rerankFetchFactor is how much deeper the orchestrator fetches before
// fusion when a reranker is configured, so the reranker sees more
// candidates than the caller asked for.
const rerankFetchFactor = 3

// Categorizer assigns a category to a document before indexing. Empty
// string means uncategorized.
type Categorizer func(Document) string

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithReranker sets a reranker applied after fusion.
func WithReranker(r Reranker) Option {
	return func(o *Orchestrator) { o.reranker = r }
}

// WithCategorizer tags documents at index time and enables category-fair
// fusion once more than one category has been observed.
func WithCategorizer(fn Categorizer) Option {
	return func(o *Orchestrator) { o.categorize = fn }
}

// WithChunkerOptions overrides the auto chunker configuration.
func WithChunkerOptions(opts chunk.AutoChunkerOptions) Option {
	return func(o *Orchestrator) { o.chunkOpts = opts }
}

// parentEntry remembers a chunked parent document and how many chunks its
// last indexing produced.
type parentEntry struct {
	doc    Document
	chunks int
}

// Orchestrator coordinates chunking, driver fan-out, fusion, reranking, and
// chunk provenance restoration over one or more search providers.
type Orchestrator struct {
	drivers    []SearchProvider
	reranker   Reranker
	categorize Categorizer
	chunkOpts  chunk.AutoChunkerOptions
	chunker    *chunk.AutoChunker

	mu         sync.Mutex
	parents    map[string]parentEntry
	categories map[string]struct{}
}

// New creates an orchestrator over the given driver input.
func New(input DriverInput, opts ...Option) (*Orchestrator, error) {
	drivers, err := input.resolve()
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		drivers:    drivers,
		parents:    make(map[string]parentEntry),
		categories: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.chunker = chunk.NewAutoChunker(o.chunkOpts)

	return o, nil
}

// Index chunks documents as needed and forwards the expanded list to every
// driver in parallel. A document whose chunker yields a single chunk is
// indexed under its original id, unchanged. The count is the first driver's
// report; all drivers are expected to agree for the same input.
func (o *Orchestrator) Index(ctx context.Context, docs []Document) (int, error) {
	expanded := make([]Document, 0, len(docs))
	var staleIDs []string

	for _, doc := range docs {
		if o.categorize != nil {
			if cat := o.categorize(doc); cat != "" {
				doc.Metadata = withValue(doc.Metadata, MetaCategory, cat)
				o.mu.Lock()
				o.categories[cat] = struct{}{}
				o.mu.Unlock()
			}
		}

		chunks := o.chunker.Chunk(ctx, doc.Content, doc.ID)
		if len(chunks) <= 1 {
			o.mu.Lock()
			if prev, ok := o.parents[doc.ID]; ok {
				for i := 0; i < prev.chunks; i++ {
					staleIDs = append(staleIDs, chunkID(doc.ID, i))
				}
				delete(o.parents, doc.ID)
			}
			o.mu.Unlock()
			expanded = append(expanded, doc)
			continue
		}

		// Re-indexing a parent replaces all of its prior chunks; remove the
		// tail when the new version produced fewer.
		o.mu.Lock()
		if prev, ok := o.parents[doc.ID]; ok {
			for i := len(chunks); i < prev.chunks; i++ {
				staleIDs = append(staleIDs, chunkID(doc.ID, i))
			}
		}
		o.parents[doc.ID] = parentEntry{doc: doc, chunks: len(chunks)}
		o.mu.Unlock()

		for _, ch := range chunks {
			expanded = append(expanded, Document{
				ID:       chunkID(doc.ID, ch.Index),
				Content:  ch.Text,
				Metadata: chunkMetadata(doc, ch),
			})
		}
	}

	if len(staleIDs) > 0 {
		if _, err := o.removeFromDrivers(ctx, staleIDs); err != nil {
			return 0, err
		}
	}

	counts := make([]int, len(o.drivers))
	g, gctx := errgroup.WithContext(ctx)
	for i, driver := range o.drivers {
		g.Go(func() error {
			n, err := driver.Index(gctx, expanded)
			if err != nil {
				return fmt.Errorf("index driver %d: %w", i, err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	return counts[0], nil
}

// Search expands the query for code identifiers, fans it out, fuses, and
// restores chunk provenance. With more than one observed category the fan-out
// runs per category and the per-category lists are fused again, so a sparse
// category is never starved purely by volume.
func (o *Orchestrator) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultSearchLimit
	}

	expandedQuery := TokenizeCodeQuery(query)

	fetchOpts := opts
	if o.reranker != nil {
		fetchOpts.Limit = opts.Limit * rerankFetchFactor
	}
	// Chunk provenance rides on internal metadata keys, so metadata is always
	// fetched from drivers and dropped after annotation if unwanted.
	fetchOpts.ReturnMetadata = true

	var (
		results []SearchResult
		err     error
	)
	if cats := o.observedCategories(); len(cats) > 1 {
		results, err = o.searchByCategory(ctx, expandedQuery, fetchOpts, cats)
	} else {
		results, err = o.searchDrivers(ctx, expandedQuery, fetchOpts)
	}
	if err != nil {
		return nil, err
	}

	if o.reranker != nil {
		results, err = o.reranker.Rerank(ctx, query, results)
		if err != nil {
			return nil, fmt.Errorf("rerank: %w", err)
		}
	}

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	annotated := annotateResults(results)
	if !opts.ReturnMetadata {
		for i := range annotated {
			annotated[i].Metadata = nil
		}
	}
	return annotated, nil
}

// searchDrivers queries every driver in parallel and fuses their lists. A
// single driver passes through unmodified.
func (o *Orchestrator) searchDrivers(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if len(o.drivers) == 1 {
		return o.drivers[0].Search(ctx, query, opts)
	}

	lists := make([]RankedList, len(o.drivers))
	g, gctx := errgroup.WithContext(ctx)
	for i, driver := range o.drivers {
		g.Go(func() error {
			results, err := driver.Search(gctx, query, opts)
			if err != nil {
				return fmt.Errorf("search driver %d: %w", i, err)
			}
			lists[i] = RankedList{Results: results}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return Fuse(lists...), nil
}

// searchByCategory runs the driver fan-out once per category with a
// category filter, then fuses the per-category lists together.
func (o *Orchestrator) searchByCategory(ctx context.Context, query string, opts SearchOptions, cats []string) ([]SearchResult, error) {
	lists := make([]RankedList, len(cats))
	g, gctx := errgroup.WithContext(ctx)
	for i, cat := range cats {
		g.Go(func() error {
			catOpts := opts
			catOpts.Filter = withCategoryFilter(opts.Filter, cat)
			results, err := o.searchDrivers(gctx, query, catOpts)
			if err != nil {
				return err
			}
			lists[i] = RankedList{Results: results}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return Fuse(lists...), nil
}

// Remove deletes ids from every driver that supports deletion. The first
// capable driver's count is authoritative; drivers without the capability
// are skipped.
func (o *Orchestrator) Remove(ctx context.Context, ids []string) (int, error) {
	return o.removeFromDrivers(ctx, ids)
}

func (o *Orchestrator) removeFromDrivers(ctx context.Context, ids []string) (int, error) {
	count := 0
	first := true
	for _, driver := range o.drivers {
		remover, ok := driver.(Remover)
		if !ok {
			continue
		}
		n, err := remover.Remove(ctx, ids)
		if err != nil {
			return 0, fmt.Errorf("remove: %w", err)
		}
		if first {
			count = n
			first = false
		}
	}
	return count, nil
}

// Clear drops every capable driver's index and resets the orchestrator's
// parent and category tracking.
func (o *Orchestrator) Clear(ctx context.Context) error {
	for _, driver := range o.drivers {
		clearer, ok := driver.(Clearer)
		if !ok {
			continue
		}
		if err := clearer.Clear(ctx); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
	}

	o.mu.Lock()
	o.parents = make(map[string]parentEntry)
	o.categories = make(map[string]struct{})
	o.mu.Unlock()

	return nil
}

// Close releases every capable driver and the chunker.
func (o *Orchestrator) Close() error {
	var errs []error
	for _, driver := range o.drivers {
		if closer, ok := driver.(CloserProvider); ok {
			errs = append(errs, closer.Close())
		}
	}
	o.chunker.Close()
	return errors.Join(errs...)
}

// observedCategories returns the sorted distinct categories seen so far.
func (o *Orchestrator) observedCategories() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	cats := make([]string, 0, len(o.categories))
	for cat := range o.categories {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	return cats
}

func chunkID(parentID string, index int) string {
	return fmt.Sprintf("%s#chunk-%d", parentID, index)
}

// chunkMetadata augments the parent's metadata with chunk provenance.
func chunkMetadata(parent Document, ch chunk.Chunk) map[string]any {
	meta := make(map[string]any, len(parent.Metadata)+7)
	for k, v := range parent.Metadata {
		meta[k] = v
	}
	meta[metaParentID] = parent.ID
	meta[metaChunkIndex] = ch.Index
	meta[metaStartByte] = ch.StartByte
	meta[metaEndByte] = ch.EndByte
	meta[metaStartLine] = ch.StartLine
	meta[metaEndLine] = ch.EndLine
	if ch.Context != "" {
		meta[metaContext] = ch.Context
	}
	return meta
}

// annotateResults moves chunk provenance out of public metadata into the
// result's Chunk field.
func annotateResults(results []SearchResult) []SearchResult {
	for i := range results {
		meta := results[i].Metadata
		if meta == nil {
			continue
		}
		parentID, ok := meta[metaParentID].(string)
		if !ok || parentID == "" {
			continue
		}

		ref := &ChunkRef{
			ParentID:  parentID,
			Index:     asInt(meta[metaChunkIndex]),
			StartByte: asInt(meta[metaStartByte]),
			EndByte:   asInt(meta[metaEndByte]),
			StartLine: asInt(meta[metaStartLine]),
			EndLine:   asInt(meta[metaEndLine]),
		}
		if ctxStr, ok := meta[metaContext].(string); ok {
			ref.Context = ctxStr
		}

		cleaned := make(map[string]any, len(meta))
		for k, v := range meta {
			if strings.HasPrefix(k, "_") {
				continue
			}
			cleaned[k] = v
		}
		results[i].Metadata = cleaned
		results[i].Chunk = ref
	}
	return results
}

// asInt widens the numeric types metadata values round-trip through.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	}
	return 0
}

func withValue(meta map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out[key] = value
	return out
}

func withCategoryFilter(f filter.Filter, category string) filter.Filter {
	out := make(filter.Filter, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	out[MetaCategory] = category
	return out
}
