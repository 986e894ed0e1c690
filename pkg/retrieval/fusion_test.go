package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(results []SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestFuse_SingleListScores(t *testing.T) {
	fused := Fuse(RankedList{Results: []SearchResult{
		{ID: "A", Score: 0.9},
		{ID: "B", Score: 0.5},
		{ID: "C", Score: 0.1},
	}})

	require.Equal(t, []string{"A", "B", "C"}, ids(fused))
	assert.InDelta(t, 1.0/61, fused[0].Score, 1e-12)
	assert.InDelta(t, 1.0/62, fused[1].Score, 1e-12)
	assert.InDelta(t, 1.0/63, fused[2].Score, 1e-12)
}

func TestFuse_IdempotentUnderReFusion(t *testing.T) {
	lists := []RankedList{
		{Results: []SearchResult{{ID: "A"}, {ID: "B"}, {ID: "C"}}},
		{Results: []SearchResult{{ID: "C"}, {ID: "A"}, {ID: "D"}}},
	}
	once := Fuse(lists...)
	twice := Fuse(RankedList{Results: once})

	assert.Equal(t, ids(once), ids(twice))
}

func TestFuse_IDSetIndependentOfListOrder(t *testing.T) {
	a := RankedList{Results: []SearchResult{{ID: "A"}, {ID: "B"}}}
	b := RankedList{Results: []SearchResult{{ID: "B"}, {ID: "C"}}}

	forward := Fuse(a, b)
	backward := Fuse(b, a)

	assert.ElementsMatch(t, ids(forward), ids(backward))
}

func TestFuse_SharedIDAccumulates(t *testing.T) {
	fused := Fuse(
		RankedList{Results: []SearchResult{{ID: "shared"}, {ID: "kw-only"}}},
		RankedList{Results: []SearchResult{{ID: "vec-only"}, {ID: "shared"}}},
	)

	require.Equal(t, "shared", fused[0].ID, "id present in both lists ranks first")
	assert.InDelta(t, 1.0/61+1.0/62, fused[0].Score, 1e-12)
}

func TestFuse_TiesKeepFirstEncounterOrder(t *testing.T) {
	fused := Fuse(
		RankedList{Results: []SearchResult{{ID: "A"}}},
		RankedList{Results: []SearchResult{{ID: "B"}}},
	)

	// Both score 1/61; A was encountered first.
	require.Equal(t, []string{"A", "B"}, ids(fused))
	assert.Equal(t, fused[0].Score, fused[1].Score)
}

func TestFuse_Weights(t *testing.T) {
	fused := Fuse(
		RankedList{Results: []SearchResult{{ID: "kw"}}, Weight: 0.5},
		RankedList{Results: []SearchResult{{ID: "vec"}}, Weight: 2.0},
	)

	require.Equal(t, []string{"vec", "kw"}, ids(fused))
	assert.InDelta(t, 2.0/61, fused[0].Score, 1e-12)
	assert.InDelta(t, 0.5/61, fused[1].Score, 1e-12)
}

func TestFuse_PayloadMergeFirstNonEmptyWins(t *testing.T) {
	fused := Fuse(
		RankedList{Results: []SearchResult{{ID: "doc"}}},
		RankedList{Results: []SearchResult{{
			ID:       "doc",
			Content:  "body",
			Metadata: map[string]any{"lang": "go"},
		}}},
		RankedList{Results: []SearchResult{{
			ID:      "doc",
			Content: "should not overwrite",
		}}},
	)

	require.Len(t, fused, 1)
	assert.Equal(t, "body", fused[0].Content)
	assert.Equal(t, map[string]any{"lang": "go"}, fused[0].Metadata)
}

func TestFuse_EmptyInputs(t *testing.T) {
	assert.Empty(t, Fuse())
	assert.Empty(t, Fuse(RankedList{}))
}
