package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-search/quarry/pkg/retrieval"
)

func TestStatusMessages(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Success("indexed")
	w.Warning("slow")
	w.Errorf("failed: %s", "reason")
	w.Status("", "plain")

	out := buf.String()
	assert.Contains(t, out, "✓ indexed")
	assert.Contains(t, out, "! slow")
	assert.Contains(t, out, "✗ failed: reason")
	assert.Contains(t, out, "   plain")
}

func TestResultsEmpty(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Results(nil)
	assert.Contains(t, buf.String(), "no results")
}

func TestResultsListing(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Results([]retrieval.SearchResult{
		{
			ID:    "pkg/auth/login.go#chunk-2",
			Score: 0.8731,
			Chunk: &retrieval.ChunkRef{ParentID: "pkg/auth/login.go", StartLine: 40, EndLine: 62},
			Meta:  &retrieval.ResultMeta{Snippet: "func Login(user string) error {", Highlights: []string{"Login"}},
		},
		{
			ID:      "docs/auth.md",
			Score:   0.5120,
			Content: "Authentication overview\nTokens expire after one hour.\nRefresh is automatic.\nFourth line omitted.",
		},
	})

	out := buf.String()
	assert.Contains(t, out, "1. pkg/auth/login.go#chunk-2")
	assert.Contains(t, out, "(0.8731)")
	assert.Contains(t, out, "pkg/auth/login.go lines 40-62")
	assert.Contains(t, out, "func Login(user string) error {")
	assert.Contains(t, out, "2. docs/auth.md")
	// Content fallback is capped at three lines.
	assert.Contains(t, out, "Refresh is automatic.")
	assert.NotContains(t, out, "Fourth line omitted.")
	// Buffers are never terminals, so no escape codes appear.
	assert.NotContains(t, out, "\x1b[")
}

func TestResultsJSON(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	err := w.ResultsJSON([]retrieval.SearchResult{{ID: "a", Score: 1}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "["))
	assert.Contains(t, buf.String(), `"ID": "a"`)
}

func TestHighlightTermNoColorPassthrough(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	w.printSnippet("call getUserName here", []string{"getUserName"})
	assert.Contains(t, buf.String(), "call getUserName here")
}
