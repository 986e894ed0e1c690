package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileSQL_Operators(t *testing.T) {
	tests := []struct {
		name       string
		filter     Filter
		wantFrag   string
		wantParams []any
	}{
		{
			name:       "implicit equality",
			filter:     Filter{"lang": "go"},
			wantFrag:   "json_extract(metadata, '$.lang') = ?",
			wantParams: []any{"go"},
		},
		{
			name:       "not equal",
			filter:     Filter{"status": map[string]any{"$ne": "deleted"}},
			wantFrag:   "json_extract(metadata, '$.status') != ?",
			wantParams: []any{"deleted"},
		},
		{
			name:       "greater than",
			filter:     Filter{"size": map[string]any{"$gt": 100}},
			wantFrag:   "json_extract(metadata, '$.size') > ?",
			wantParams: []any{100},
		},
		{
			name:       "gte lte pair over two fields",
			filter:     Filter{"a": map[string]any{"$gte": 1}, "b": map[string]any{"$lte": 2}},
			wantFrag:   "json_extract(metadata, '$.a') >= ? AND json_extract(metadata, '$.b') <= ?",
			wantParams: []any{1, 2},
		},
		{
			name:       "in",
			filter:     Filter{"lang": map[string]any{"$in": []any{"go", "rust"}}},
			wantFrag:   "json_extract(metadata, '$.lang') IN (?, ?)",
			wantParams: []any{"go", "rust"},
		},
		{
			name:       "in over empty set",
			filter:     Filter{"lang": map[string]any{"$in": []any{}}},
			wantFrag:   "1 = 0",
			wantParams: nil,
		},
		{
			name:       "prefix",
			filter:     Filter{"path": map[string]any{"$prefix": "src/"}},
			wantFrag:   `json_extract(metadata, '$.path') LIKE ? ESCAPE '\'`,
			wantParams: []any{"src/%"},
		},
		{
			name:       "prefix escapes like metacharacters",
			filter:     Filter{"path": map[string]any{"$prefix": "a_c%"}},
			wantFrag:   `json_extract(metadata, '$.path') LIKE ? ESCAPE '\'`,
			wantParams: []any{`a\_c\%%`},
		},
		{
			name:       "exists true",
			filter:     Filter{"tag": map[string]any{"$exists": true}},
			wantFrag:   "json_extract(metadata, '$.tag') IS NOT NULL",
			wantParams: nil,
		},
		{
			name:       "exists false",
			filter:     Filter{"tag": map[string]any{"$exists": false}},
			wantFrag:   "(metadata IS NOT NULL AND json_extract(metadata, '$.tag') IS NULL)",
			wantParams: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag, params, err := CompileSQL(tt.filter, DialectSQLite)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFrag, frag)
			assert.Equal(t, tt.wantParams, params)
		})
	}
}

func TestCompileSQL_PostgresDialect(t *testing.T) {
	frag, params, err := CompileSQL(Filter{"lang": "go"}, DialectPostgres)
	require.NoError(t, err)
	assert.Equal(t, "metadata->>'lang' = ?", frag)
	assert.Equal(t, []any{"go"}, params)
}

func TestCompileSQL_EmptyFilter(t *testing.T) {
	frag, params, err := CompileSQL(Filter{}, DialectSQLite)
	require.NoError(t, err)
	assert.Empty(t, frag)
	assert.Empty(t, params)
}

func TestCompileSQL_RejectsQuotedField(t *testing.T) {
	_, _, err := CompileSQL(Filter{"a') OR ('1'='1": "x"}, DialectSQLite)
	assert.Error(t, err)
}

func TestRenumberPlaceholders(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		start    int
		want     string
	}{
		{"empty", "", 1, ""},
		{"single", "a = ?", 1, "a = $1"},
		{"sequence from offset", "a = ? AND b IN (?, ?)", 3, "a = $3 AND b IN ($4, $5)"},
		{"question mark inside string literal untouched", "a = ? AND b LIKE 'what?'", 1, "a = $1 AND b LIKE 'what?'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenumberPlaceholders(tt.fragment, tt.start))
		})
	}
}
