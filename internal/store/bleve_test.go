package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-search/quarry/pkg/filter"
	"github.com/quarry-search/quarry/pkg/retrieval"
)

func newTestBleve(t *testing.T) *BleveStore {
	t.Helper()
	s, err := NewBleveStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBleveStore_IndexAndSearch(t *testing.T) {
	s := newTestBleve(t)
	ctx := context.Background()

	n, err := s.Index(ctx, []retrieval.Document{
		{ID: "readme", Content: "installation guide for the retrieval service"},
		{ID: "api", Content: "endpoint reference and authentication"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err := s.Search(ctx, "installation", retrieval.SearchOptions{Limit: 10, ReturnContent: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "readme", results[0].ID)
	assert.Equal(t, "installation guide for the retrieval service", results[0].Content)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestBleveStore_ContentOmittedByDefault(t *testing.T) {
	s := newTestBleve(t)
	ctx := context.Background()

	_, err := s.Index(ctx, []retrieval.Document{
		{ID: "a", Content: "needle in a haystack", Metadata: map[string]any{"k": "v"}},
	})
	require.NoError(t, err)

	results, err := s.Search(ctx, "needle", retrieval.SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Content)
	assert.Nil(t, results[0].Metadata)
}

func TestBleveStore_FilterInMemory(t *testing.T) {
	s := newTestBleve(t)
	ctx := context.Background()

	_, err := s.Index(ctx, []retrieval.Document{
		{ID: "a", Content: "shared term", Metadata: map[string]any{"team": "core"}},
		{ID: "b", Content: "shared term", Metadata: map[string]any{"team": "infra"}},
		{ID: "c", Content: "shared term"},
	})
	require.NoError(t, err)

	results, err := s.Search(ctx, "shared", retrieval.SearchOptions{
		Limit:  10,
		Filter: filter.Filter{"team": "infra"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)

	results, err = s.Search(ctx, "shared", retrieval.SearchOptions{
		Limit:  10,
		Filter: filter.Filter{"team": map[string]any{"$exists": false}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c", results[0].ID)
}

func TestBleveStore_Remove(t *testing.T) {
	s := newTestBleve(t)
	ctx := context.Background()

	_, err := s.Index(ctx, []retrieval.Document{
		{ID: "a", Content: "alpha words"},
		{ID: "b", Content: "beta words"},
	})
	require.NoError(t, err)

	n, err := s.Remove(ctx, []string{"a", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := s.Search(ctx, "words", retrieval.SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestBleveStore_Clear(t *testing.T) {
	s := newTestBleve(t)
	ctx := context.Background()

	_, err := s.Index(ctx, []retrieval.Document{
		{ID: "a", Content: "alpha"},
		{ID: "b", Content: "beta"},
	})
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx))

	results, err := s.Search(ctx, "alpha beta", retrieval.SearchOptions{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBleveStore_PersistsAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/index.bleve"
	ctx := context.Background()

	s, err := NewBleveStore(path)
	require.NoError(t, err)
	_, err = s.Index(ctx, []retrieval.Document{{ID: "a", Content: "durable entry"}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewBleveStore(path)
	require.NoError(t, err)
	defer s.Close()

	results, err := s.Search(ctx, "durable", retrieval.SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}
