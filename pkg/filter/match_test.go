package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatches_Operators(t *testing.T) {
	meta := map[string]any{
		"status": "active",
		"lang":   "go",
		"size":   float64(1024),
		"path":   "src/store/index.go",
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"implicit eq hit", Filter{"status": "active"}, true},
		{"implicit eq miss", Filter{"status": "archived"}, false},
		{"ne hit", Filter{"status": map[string]any{"$ne": "deleted"}}, true},
		{"ne miss", Filter{"status": map[string]any{"$ne": "active"}}, false},
		{"gt hit", Filter{"size": map[string]any{"$gt": 100}}, true},
		{"gt miss", Filter{"size": map[string]any{"$gt": 2048}}, false},
		{"gte boundary", Filter{"size": map[string]any{"$gte": 1024}}, true},
		{"lt miss on boundary", Filter{"size": map[string]any{"$lt": 1024}}, false},
		{"lte boundary", Filter{"size": map[string]any{"$lte": 1024}}, true},
		{"in hit", Filter{"lang": map[string]any{"$in": []any{"rust", "go"}}}, true},
		{"in miss", Filter{"lang": map[string]any{"$in": []any{"rust", "zig"}}}, false},
		{"prefix hit", Filter{"path": map[string]any{"$prefix": "src/"}}, true},
		{"prefix miss", Filter{"path": map[string]any{"$prefix": "cmd/"}}, false},
		{"exists true hit", Filter{"lang": map[string]any{"$exists": true}}, true},
		{"exists true miss", Filter{"owner": map[string]any{"$exists": true}}, false},
		{"exists false hit", Filter{"owner": map[string]any{"$exists": false}}, true},
		{"exists false miss", Filter{"lang": map[string]any{"$exists": false}}, false},
		{"string ordering", Filter{"lang": map[string]any{"$gt": "ga"}}, true},
		{"two fields AND", Filter{"status": "active", "lang": "go"}, true},
		{"two fields AND one miss", Filter{"status": "active", "lang": "rust"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Matches(tt.filter, meta)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatches_StatusNotDeleted(t *testing.T) {
	f := Filter{"status": map[string]any{"$ne": "deleted"}}

	got, err := Matches(f, map[string]any{"status": "active"})
	require.NoError(t, err)
	assert.True(t, got)

	got, err = Matches(f, map[string]any{"status": "deleted"})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestMatches_TypeMismatchIsFalseNotError(t *testing.T) {
	meta := map[string]any{"size": "not a number"}

	for _, op := range []string{OpGt, OpGte, OpLt, OpLte} {
		got, err := Matches(Filter{"size": map[string]any{op: 100}}, meta)
		require.NoError(t, err, op)
		assert.False(t, got, op)
	}

	// $prefix against a non-string actual value.
	got, err := Matches(Filter{"n": map[string]any{"$prefix": "1"}}, map[string]any{"n": 123})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestMatches_NumericWidening(t *testing.T) {
	// int metadata against float filter value and vice versa, the way values
	// come back after a JSON round-trip.
	got, err := Matches(Filter{"n": float64(5)}, map[string]any{"n": 5})
	require.NoError(t, err)
	assert.True(t, got)

	got, err = Matches(Filter{"n": 5}, map[string]any{"n": float64(5)})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestMatches_MissingMetadata(t *testing.T) {
	// Missing metadata matches only an empty filter.
	got, err := Matches(Filter{}, nil)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = Matches(Filter{"a": 1}, nil)
	require.NoError(t, err)
	assert.False(t, got)
}
