package embed

import (
	"context"
	"fmt"
	"sort"
)

// Batching constants. Transformer-style models pad every batch to its longest
// member, so grouping similar-length texts minimizes wasted compute, and
// bounding estimated tokens per batch keeps latency predictable regardless of
// text-length skew.
const (
	// MaxBatchItems caps the number of texts per embedding call.
	MaxBatchItems = 64

	// TargetBatchTokens bounds the estimated token volume of one batch.
	TargetBatchTokens = 64 * 128

	// CharsPerToken is the rough chars-to-tokens ratio used for estimation.
	CharsPerToken = 4
)

// EmbedFunc computes embeddings for a batch of texts, returning one vector
// per input in the same order.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// ProgressFunc receives cumulative progress after every batch. It is called
// once with (0, total) before any work, and the final call reports
// (total, total).
type ProgressFunc func(processed, total int)

// Batch embeds texts in adaptively sized batches and returns embeddings in
// the original input order. Texts are walked in ascending length order so
// each batch groups similar-length inputs; batch size shrinks as texts grow
// so the estimated token volume stays under TargetBatchTokens.
//
// An embed call returning a different number of vectors than texts submitted
// is fatal for the whole operation and is not retried.
func Batch(ctx context.Context, embed EmbedFunc, texts []string, onProgress ProgressFunc) ([][]float32, error) {
	total := len(texts)
	if onProgress != nil {
		onProgress(0, total)
	}
	if total == 0 {
		return [][]float32{}, nil
	}

	// Stable sort of indices by text length; ties keep input order.
	order := make([]int, total)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return len(texts[order[a]]) < len(texts[order[b]])
	})

	results := make([][]float32, total)
	processed := 0

	for start := 0; start < total; {
		size := nextBatchSize(texts, order, start)

		batchTexts := make([]string, size)
		for i := 0; i < size; i++ {
			batchTexts[i] = texts[order[start+i]]
		}

		vectors, err := embed(ctx, batchTexts)
		if err != nil {
			return nil, fmt.Errorf("embed batch of %d: %w", size, err)
		}
		if len(vectors) != size {
			return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", size, len(vectors))
		}

		// Scatter back into original input positions.
		for i, vec := range vectors {
			results[order[start+i]] = vec
		}

		start += size
		processed += size
		if onProgress != nil {
			onProgress(processed, total)
		}
	}

	return results, nil
}

// nextBatchSize derives the batch size starting at position start of the
// length-sorted order. The token estimate uses the longest text that could
// join the batch; since order is ascending that is the last candidate.
func nextBatchSize(texts []string, order []int, start int) int {
	remaining := len(order) - start
	size := MaxBatchItems
	if remaining < size {
		size = remaining
	}

	longest := len(texts[order[start+size-1]])
	estTokens := (longest + CharsPerToken - 1) / CharsPerToken
	if estTokens > 0 {
		if byTokens := TargetBatchTokens / estTokens; byTokens < size {
			size = byTokens
		}
	}
	if size < 1 {
		size = 1
	}
	return size
}
