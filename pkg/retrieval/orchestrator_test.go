package retrieval

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-search/quarry/pkg/filter"
)

// fakeDriver is an in-test SearchProvider with full optional capabilities.
type fakeDriver struct {
	mu       sync.Mutex
	indexed  []Document
	queries  []string
	limits   []int
	filters  []filter.Filter
	searchFn func(query string, opts SearchOptions) []SearchResult
	removed  [][]string
	cleared  bool
	closed   bool
}

func (f *fakeDriver) Index(ctx context.Context, docs []Document) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, docs...)
	return len(docs), nil
}

func (f *fakeDriver) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.limits = append(f.limits, opts.Limit)
	f.filters = append(f.filters, opts.Filter)
	f.mu.Unlock()
	if f.searchFn == nil {
		return []SearchResult{}, nil
	}
	return f.searchFn(query, opts), nil
}

func (f *fakeDriver) Remove(ctx context.Context, ids []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, ids)
	return len(ids), nil
}

func (f *fakeDriver) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
	return nil
}

func (f *fakeDriver) Close() error {
	f.closed = true
	return nil
}

// bareDriver implements only the required SearchProvider surface, with no
// optional capabilities.
type bareDriver struct{}

func (b *bareDriver) Index(ctx context.Context, docs []Document) (int, error) {
	return len(docs), nil
}

func (b *bareDriver) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	return []SearchResult{}, nil
}

var (
	_ SearchProvider = (*fakeDriver)(nil)
	_ SearchProvider = (*bareDriver)(nil)
	_ Remover        = (*fakeDriver)(nil)
	_ Clearer        = (*fakeDriver)(nil)
	_ CloserProvider = (*fakeDriver)(nil)
)

func TestNew_RequiresADriver(t *testing.T) {
	_, err := New(DriverInput{})
	require.ErrorIs(t, err, ErrNoDrivers)
}

func TestIndex_SmallDocumentKeepsOriginalID(t *testing.T) {
	driver := &fakeDriver{}
	o, err := New(DriverInput{Single: driver})
	require.NoError(t, err)

	count, err := o.Index(context.Background(), []Document{
		{ID: "notes/short.md", Content: "just a short note"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.Len(t, driver.indexed, 1)
	assert.Equal(t, "notes/short.md", driver.indexed[0].ID)
	assert.Equal(t, "just a short note", driver.indexed[0].Content)
}

func TestIndex_LongDocumentExpandsIntoChunks(t *testing.T) {
	driver := &fakeDriver{}
	o, err := New(DriverInput{Single: driver})
	require.NoError(t, err)

	content := strings.Repeat("Lorem ipsum dolor sit amet, every word matters here. ", 40)
	count, err := o.Index(context.Background(), []Document{
		{ID: "notes/long.md", Content: content, Metadata: map[string]any{"author": "ada"}},
	})
	require.NoError(t, err)

	require.Greater(t, len(driver.indexed), 1, "long document expands into chunk documents")
	assert.Equal(t, len(driver.indexed), count, "count is the first driver's report")

	for i, doc := range driver.indexed {
		assert.Equal(t, chunkID("notes/long.md", i), doc.ID)
		assert.Equal(t, "notes/long.md", doc.Metadata[metaParentID])
		assert.Equal(t, i, doc.Metadata[metaChunkIndex])
		assert.Equal(t, "ada", doc.Metadata["author"], "parent metadata is carried onto chunks")
	}
}

func TestIndex_ReindexRemovesStaleChunks(t *testing.T) {
	driver := &fakeDriver{}
	o, err := New(DriverInput{Single: driver})
	require.NoError(t, err)
	ctx := context.Background()

	long := strings.Repeat("word after word in a very long running paragraph. ", 60)
	_, err = o.Index(ctx, []Document{{ID: "doc.md", Content: long}})
	require.NoError(t, err)
	firstChunks := len(driver.indexed)
	require.Greater(t, firstChunks, 2)

	shorter := strings.Repeat("word after word in a very long running paragraph. ", 25)
	_, err = o.Index(ctx, []Document{{ID: "doc.md", Content: shorter}})
	require.NoError(t, err)

	require.NotEmpty(t, driver.removed, "tail chunks from the longer version are removed")
	for _, id := range driver.removed[0] {
		assert.Contains(t, id, "doc.md#chunk-")
	}
}

func TestSearch_SingleDriverPassThrough(t *testing.T) {
	driver := &fakeDriver{searchFn: func(query string, opts SearchOptions) []SearchResult {
		return []SearchResult{
			{ID: "a", Score: 0.9},
			{ID: "b", Score: 0.4},
		}
	}}
	o, err := New(DriverInput{Single: driver})
	require.NoError(t, err)

	results, err := o.Search(context.Background(), "anything", SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0.9, results[0].Score, "single driver results pass through without rescoring")
}

func TestSearch_ExpandsCodeIdentifiers(t *testing.T) {
	driver := &fakeDriver{}
	o, err := New(DriverInput{Single: driver})
	require.NoError(t, err)

	_, err = o.Search(context.Background(), "getUserName", SearchOptions{})
	require.NoError(t, err)

	require.Len(t, driver.queries, 1)
	assert.Equal(t, "get User Name getUserName", driver.queries[0])
}

func TestSearch_ComposedDriversFuse(t *testing.T) {
	vector := &fakeDriver{searchFn: func(string, SearchOptions) []SearchResult {
		return []SearchResult{{ID: "shared"}, {ID: "vec-only"}}
	}}
	keyword := &fakeDriver{searchFn: func(string, SearchOptions) []SearchResult {
		return []SearchResult{{ID: "kw-only"}, {ID: "shared"}}
	}}
	o, err := New(DriverInput{Vector: vector, Keyword: keyword})
	require.NoError(t, err)

	results, err := o.Search(context.Background(), "query", SearchOptions{Limit: 10})
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "shared", results[0].ID, "id found by both drivers wins")
}

func TestSearch_RerankerOverFetchesAndTruncates(t *testing.T) {
	driver := &fakeDriver{searchFn: func(query string, opts SearchOptions) []SearchResult {
		results := make([]SearchResult, opts.Limit)
		for i := range results {
			results[i] = SearchResult{ID: chunkID("doc", i), Score: 1.0 / float64(i+1)}
		}
		return results
	}}
	reversed := rerankFunc(func(ctx context.Context, query string, results []SearchResult) ([]SearchResult, error) {
		out := make([]SearchResult, len(results))
		for i, r := range results {
			out[len(results)-1-i] = r
		}
		return out, nil
	})

	o, err := New(DriverInput{Single: driver}, WithReranker(reversed))
	require.NoError(t, err)

	results, err := o.Search(context.Background(), "query", SearchOptions{Limit: 4})
	require.NoError(t, err)

	require.Len(t, driver.limits, 1)
	assert.Equal(t, 12, driver.limits[0], "fetches 3x the limit for the reranker")
	assert.Len(t, results, 4, "truncates to the requested limit after reranking")
	assert.Equal(t, chunkID("doc", 11), results[0].ID, "reranker output order is respected")
}

type rerankFunc func(ctx context.Context, query string, results []SearchResult) ([]SearchResult, error)

func (f rerankFunc) Rerank(ctx context.Context, query string, results []SearchResult) ([]SearchResult, error) {
	return f(ctx, query, results)
}

func TestSearch_CategoryFairFusion(t *testing.T) {
	byCategory := map[string][]SearchResult{
		"code": {{ID: "main.go"}, {ID: "util.go"}},
		"docs": {{ID: "readme.md"}},
	}
	driver := &fakeDriver{searchFn: func(query string, opts SearchOptions) []SearchResult {
		cat, _ := opts.Filter[MetaCategory].(string)
		return byCategory[cat]
	}}

	o, err := New(DriverInput{Single: driver}, WithCategorizer(func(d Document) string {
		cat, _ := d.Metadata["kind"].(string)
		return cat
	}))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = o.Index(ctx, []Document{
		{ID: "a.md", Content: "alpha", Metadata: map[string]any{"kind": "code"}},
		{ID: "b.md", Content: "beta", Metadata: map[string]any{"kind": "docs"}},
	})
	require.NoError(t, err)

	results, err := o.Search(ctx, "query", SearchOptions{Limit: 10})
	require.NoError(t, err)

	// One driver call per category, each with a category filter.
	require.Len(t, driver.filters, 2)
	seen := map[string]bool{}
	for _, f := range driver.filters {
		cat, _ := f[MetaCategory].(string)
		seen[cat] = true
	}
	assert.True(t, seen["code"] && seen["docs"])

	// Both categories are represented despite unequal volume.
	resultIDs := ids(results)
	assert.Contains(t, resultIDs, "readme.md")
	assert.Contains(t, resultIDs, "main.go")
}

func TestSearch_ChunkAnnotation(t *testing.T) {
	driver := &fakeDriver{searchFn: func(string, SearchOptions) []SearchResult {
		return []SearchResult{{
			ID: "doc.md#chunk-1",
			Metadata: map[string]any{
				metaParentID:   "doc.md",
				metaChunkIndex: 1,
				metaStartByte:  100,
				metaEndByte:    250,
				metaStartLine:  5,
				metaEndLine:    12,
				"author":       "ada",
			},
		}}
	}}
	o, err := New(DriverInput{Single: driver})
	require.NoError(t, err)

	results, err := o.Search(context.Background(), "query", SearchOptions{Limit: 5, ReturnMetadata: true})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	require.NotNil(t, r.Chunk)
	assert.Equal(t, "doc.md", r.Chunk.ParentID)
	assert.Equal(t, 1, r.Chunk.Index)
	assert.Equal(t, 100, r.Chunk.StartByte)
	assert.Equal(t, 250, r.Chunk.EndByte)
	assert.Equal(t, 5, r.Chunk.StartLine)
	assert.Equal(t, 12, r.Chunk.EndLine)

	assert.Equal(t, map[string]any{"author": "ada"}, r.Metadata, "underscore keys are stripped from public metadata")

	// Without ReturnMetadata the chunk provenance survives but public
	// metadata is dropped.
	results, err = o.Search(context.Background(), "query", SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotNil(t, results[0].Chunk)
	assert.Nil(t, results[0].Metadata)
}

func TestRemove_SkipsIncapableDrivers(t *testing.T) {
	capable := &fakeDriver{}
	bare := &bareDriver{}
	o, err := New(DriverInput{Vector: bare, Keyword: capable})
	require.NoError(t, err)

	count, err := o.Remove(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, capable.removed, 1)
	assert.Equal(t, []string{"a", "b"}, capable.removed[0])
}

func TestClear_ResetsCategoryTracking(t *testing.T) {
	driver := &fakeDriver{}
	o, err := New(DriverInput{Single: driver}, WithCategorizer(func(d Document) string {
		cat, _ := d.Metadata["kind"].(string)
		return cat
	}))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = o.Index(ctx, []Document{
		{ID: "a.md", Content: "alpha", Metadata: map[string]any{"kind": "one"}},
		{ID: "b.md", Content: "beta", Metadata: map[string]any{"kind": "two"}},
	})
	require.NoError(t, err)
	require.Len(t, o.observedCategories(), 2)

	require.NoError(t, o.Clear(ctx))
	assert.True(t, driver.cleared)
	assert.Empty(t, o.observedCategories())

	// Post-clear searches are a plain fan-out again.
	_, err = o.Search(ctx, "query", SearchOptions{})
	require.NoError(t, err)
	assert.Nil(t, driver.filters[len(driver.filters)-1])
}

func TestClose_FansOutToCapableDrivers(t *testing.T) {
	a := &fakeDriver{}
	b := &fakeDriver{}
	o, err := New(DriverInput{Vector: a, Keyword: b})
	require.NoError(t, err)

	require.NoError(t, o.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
