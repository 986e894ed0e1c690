// Package store provides the search backends behind the retrieval
// orchestrator: a Bleve keyword index, a SQLite FTS5 keyword index, an
// in-process HNSW vector index, and a Qdrant vector index. Every backend
// implements retrieval.SearchProvider and normalizes its scores into [0, 1]
// so fused rankings stay comparable.
package store

import (
	"github.com/quarry-search/quarry/pkg/filter"
	"github.com/quarry-search/quarry/pkg/retrieval"
)

// filterOverFetch is the multiplier applied to the result limit when a
// metadata filter is evaluated in memory after the backend query.
const filterOverFetch = 10

// fetchLimit returns how many raw hits to request from the backend before
// in-memory filtering.
func fetchLimit(limit int, f filter.Filter) int {
	if limit <= 0 {
		limit = retrieval.DefaultSearchLimit
	}
	if len(f) == 0 {
		return limit
	}
	return limit * filterOverFetch
}

// normalizeScores rescales scores so the best hit is 1.0. BM25 scores are
// unbounded; rescaling keeps keyword and vector drivers on the same scale.
func normalizeScores(results []retrieval.SearchResult) {
	var max float64
	for _, r := range results {
		if r.Score > max {
			max = r.Score
		}
	}
	if max <= 0 {
		return
	}
	for i := range results {
		results[i].Score /= max
	}
}

// applyFilter keeps results whose metadata matches f, up to limit.
func applyFilter(results []retrieval.SearchResult, f filter.Filter, limit int) ([]retrieval.SearchResult, error) {
	if len(f) == 0 {
		if len(results) > limit {
			results = results[:limit]
		}
		return results, nil
	}

	kept := make([]retrieval.SearchResult, 0, limit)
	for _, r := range results {
		ok, err := filter.Matches(f, r.Metadata)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, r)
			if len(kept) == limit {
				break
			}
		}
	}
	return kept, nil
}
