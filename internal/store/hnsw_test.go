package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-search/quarry/pkg/embed"
	"github.com/quarry-search/quarry/pkg/filter"
	"github.com/quarry-search/quarry/pkg/retrieval"
)

func newTestHNSW(t *testing.T) *HNSWStore {
	t.Helper()
	s := NewHNSWStore(embed.NewStaticEmbedder())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func hnswTestDocs() []retrieval.Document {
	return []retrieval.Document{
		{ID: "go", Content: "goroutines and channels in go", Metadata: map[string]any{"lang": "go"}},
		{ID: "py", Content: "python asyncio event loop", Metadata: map[string]any{"lang": "python"}},
		{ID: "db", Content: "sql database index tuning", Metadata: map[string]any{"lang": "sql"}},
	}
}

func TestHNSWStore_IndexAndSearch(t *testing.T) {
	s := newTestHNSW(t)
	ctx := context.Background()

	n, err := s.Index(ctx, hnswTestDocs())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, s.Count())

	// The hash embedder puts identical text at distance zero.
	results, err := s.Search(ctx, "goroutines and channels in go", retrieval.SearchOptions{Limit: 2, ReturnContent: true})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "go", results[0].ID)
	assert.Equal(t, "goroutines and channels in go", results[0].Content)
	assert.InDelta(t, 1.0, results[0].Score, 1e-3)
	assert.LessOrEqual(t, len(results), 2)
}

func TestHNSWStore_EmptyStore(t *testing.T) {
	s := newTestHNSW(t)

	results, err := s.Search(context.Background(), "anything", retrieval.SearchOptions{Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NotNil(t, results)
}

func TestHNSWStore_Filter(t *testing.T) {
	s := newTestHNSW(t)
	ctx := context.Background()

	_, err := s.Index(ctx, hnswTestDocs())
	require.NoError(t, err)

	results, err := s.Search(ctx, "event loop concurrency", retrieval.SearchOptions{
		Limit:          10,
		ReturnMetadata: true,
		Filter:         filter.Filter{"lang": "python"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "py", results[0].ID)
	assert.Equal(t, "python", results[0].Metadata["lang"])
}

func TestHNSWStore_Reindex(t *testing.T) {
	s := newTestHNSW(t)
	ctx := context.Background()

	_, err := s.Index(ctx, []retrieval.Document{{ID: "a", Content: "first version"}})
	require.NoError(t, err)
	_, err = s.Index(ctx, []retrieval.Document{{ID: "a", Content: "second version"}})
	require.NoError(t, err)

	assert.Equal(t, 1, s.Count())

	results, err := s.Search(ctx, "second version", retrieval.SearchOptions{Limit: 1, ReturnContent: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "second version", results[0].Content)
}

func TestHNSWStore_RemoveIsLazy(t *testing.T) {
	s := newTestHNSW(t)
	ctx := context.Background()

	_, err := s.Index(ctx, hnswTestDocs())
	require.NoError(t, err)

	n, err := s.Remove(ctx, []string{"go", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, s.Count())

	// The removed document never surfaces even though its node remains.
	results, err := s.Search(ctx, "goroutines and channels in go", retrieval.SearchOptions{Limit: 10})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "go", r.ID)
	}
}

func TestHNSWStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.hnsw")

	s := NewHNSWStore(embed.NewStaticEmbedder())
	_, err := s.Index(ctx, hnswTestDocs())
	require.NoError(t, err)
	require.NoError(t, s.Save(path))
	require.NoError(t, s.Close())

	loaded := NewHNSWStore(embed.NewStaticEmbedder())
	defer loaded.Close()
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 3, loaded.Count())

	results, err := loaded.Search(ctx, "sql database index tuning", retrieval.SearchOptions{Limit: 1, ReturnMetadata: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "db", results[0].ID)
	assert.Equal(t, "sql", results[0].Metadata["lang"])
}

func TestHNSWStore_Clear(t *testing.T) {
	s := newTestHNSW(t)
	ctx := context.Background()

	_, err := s.Index(ctx, hnswTestDocs())
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 0, s.Count())

	results, err := s.Search(ctx, "anything", retrieval.SearchOptions{Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWStore_ProgressReporting(t *testing.T) {
	var calls [][2]int
	s := NewHNSWStore(embed.NewStaticEmbedder(), WithProgress(func(processed, total int) {
		calls = append(calls, [2]int{processed, total})
	}))
	defer s.Close()

	_, err := s.Index(context.Background(), hnswTestDocs())
	require.NoError(t, err)

	require.NotEmpty(t, calls)
	assert.Equal(t, [2]int{0, 3}, calls[0])
	assert.Equal(t, [2]int{3, 3}, calls[len(calls)-1])
}
