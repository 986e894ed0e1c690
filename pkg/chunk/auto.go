package chunk

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
)

// AutoChunker routes documents to the code chunker or the text splitter by
// file extension. If code chunking ever fails, the instance permanently
// degrades to the text splitter for all code-typed documents; the degraded
// state is observable via CodeCapable.
type AutoChunker struct {
	code      *CodeChunker
	splitOpts SplitOptions

	mu       sync.Mutex
	fallback bool
}

// AutoChunkerOptions configures both routed chunkers.
type AutoChunkerOptions struct {
	Code  CodeChunkerOptions
	Split SplitOptions
}

// NewAutoChunker creates an auto-routing chunker.
func NewAutoChunker(opts AutoChunkerOptions) *AutoChunker {
	if opts.Split.ChunkSize <= 0 {
		opts.Split = DefaultSplitOptions()
	}
	return &AutoChunker{
		code:      NewCodeChunkerWithOptions(opts.Code),
		splitOpts: opts.Split,
	}
}

// Chunk splits content, choosing the strategy from the path's extension.
// It never fails: code chunker errors degrade to the text splitter.
func (a *AutoChunker) Chunk(ctx context.Context, content, path string) []Chunk {
	if a.isCodePath(path) && a.CodeCapable() {
		chunks, err := a.code.Chunk(ctx, content, path)
		if err == nil {
			return chunks
		}
		a.mu.Lock()
		if !a.fallback {
			a.fallback = true
			slog.Warn("code chunker unavailable, falling back to text splitting",
				"path", path,
				"error", err)
		}
		a.mu.Unlock()
	}
	return SplitText(content, a.splitOpts)
}

// CodeCapable reports whether code-typed documents still go through the
// code chunker.
func (a *AutoChunker) CodeCapable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.fallback
}

// Close releases the underlying code chunker.
func (a *AutoChunker) Close() {
	a.code.Close()
}

func (a *AutoChunker) isCodePath(path string) bool {
	_, ok := a.code.registry.ByExtension(filepath.Ext(path))
	return ok
}
