// Package retrieval is the orchestration layer over heterogeneous search
// backends: it chunks documents before indexing, fans queries out across
// composed drivers, fuses ranked result streams with Reciprocal Rank Fusion,
// and restores chunk provenance on the way back out.
package retrieval

// Chunk provenance metadata keys. Underscore-prefixed keys are internal:
// they are written onto chunk documents at index time and stripped back out
// of public metadata during result annotation.
const (
	metaParentID   = "_parentId"
	metaChunkIndex = "_chunkIndex"
	metaStartByte  = "_startByte"
	metaEndByte    = "_endByte"
	metaStartLine  = "_startLine"
	metaEndLine    = "_endLine"
	metaContext    = "_context"
)

// MetaCategory is the metadata key written by the categorizer.
const MetaCategory = "category"

// Document is the unit of indexing. ID must be unique within a driver.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]any
}

// ChunkRef is the provenance of a result that originated from a chunked
// parent document.
type ChunkRef struct {
	ParentID  string
	Index     int
	StartByte int
	EndByte   int
	StartLine int
	EndLine   int
	Context   string
}

// ResultMeta carries presentation extras attached to a result.
type ResultMeta struct {
	Snippet    string
	Highlights []string
}

// SearchResult is one ranked hit. Driver scores are normalized into [0, 1]
// by the backend; fused scores are only meaningful for relative ranking
// within a single call.
type SearchResult struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]any
	Chunk    *ChunkRef
	Meta     *ResultMeta
}
