package chunk

import "strings"

// Text splitter defaults.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

// Separators ordered by specificity: headings of decreasing level, fenced
// code block boundaries, horizontal rules, paragraph breaks, newlines,
// spaces, and finally character-level slicing.
var defaultSeparators = []string{
	"\n###### ",
	"\n##### ",
	"\n#### ",
	"\n### ",
	"\n## ",
	"\n# ",
	"\n```",
	"\n---\n",
	"\n***\n",
	"\n___\n",
	"\n\n",
	"\n",
	" ",
	"",
}

// SplitOptions configures the text splitter.
type SplitOptions struct {
	ChunkSize    int // maximum chunk length in bytes (default 1000)
	ChunkOverlap int // bytes of trailing context carried into the next chunk (default 100)
}

// DefaultSplitOptions returns the default splitter configuration.
func DefaultSplitOptions() SplitOptions {
	return SplitOptions{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap}
}

// SplitText splits text into overlapping chunks of at most ChunkSize bytes,
// preferring the most specific separator present at each level. Every chunk
// records its exact half-open byte range into the original text, so chunks
// tile the input apart from overlap-duplicated prefixes.
func SplitText(text string, opts SplitOptions) []Chunk {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}
	if opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 2
	}

	if text == "" {
		return []Chunk{}
	}
	if len(text) <= opts.ChunkSize {
		return []Chunk{newTextChunk(text, 0, 0, len(text))}
	}

	units := appendUnits(nil, text, 0, defaultSeparators, opts.ChunkSize)

	// Greedily merge adjacent units up to ChunkSize.
	chunks := make([]Chunk, 0, len(units))
	curStart := units[0].start
	curEnd := units[0].end
	for _, u := range units[1:] {
		if u.end-curStart <= opts.ChunkSize {
			curEnd = u.end
			continue
		}
		chunks = append(chunks, emitChunk(text, chunks, curStart, curEnd, opts.ChunkOverlap))
		curStart = u.start
		curEnd = u.end
	}
	chunks = append(chunks, emitChunk(text, chunks, curStart, curEnd, opts.ChunkOverlap))

	return chunks
}

// span is a half-open byte range of a candidate unit.
type span struct {
	start int
	end   int
}

// appendUnits recursively splits text into units no longer than chunkSize,
// descending the separator list. Units tile the input exactly: each piece
// starts at a separator occurrence and runs to the next.
func appendUnits(units []span, text string, base int, seps []string, chunkSize int) []span {
	if text == "" {
		return units
	}
	if len(text) <= chunkSize {
		return append(units, span{base, base + len(text)})
	}

	sep, rest := pickSeparator(text, seps)
	if sep == "" {
		// No splittable boundary left: slice at the character level.
		for i := 0; i < len(text); i += chunkSize {
			end := i + chunkSize
			if end > len(text) {
				end = len(text)
			}
			units = append(units, span{base + i, base + end})
		}
		return units
	}

	start := 0
	search := 0
	for {
		idx := strings.Index(text[search:], sep)
		if idx < 0 {
			break
		}
		pos := search + idx
		if pos > start {
			units = appendUnits(units, text[start:pos], base+start, rest, chunkSize)
			start = pos
		}
		search = pos + len(sep)
	}
	return appendUnits(units, text[start:], base+start, rest, chunkSize)
}

// pickSeparator returns the first separator present in text and the more
// granular separators after it. Empty string means character-level fallback.
func pickSeparator(text string, seps []string) (string, []string) {
	for i, sep := range seps {
		if sep == "" {
			return "", nil
		}
		if strings.Contains(text, sep) {
			return sep, seps[i+1:]
		}
	}
	return "", nil
}

// emitChunk extends start backward by overlap for every chunk after the
// first, then materializes the chunk for [start, end).
func emitChunk(text string, emitted []Chunk, start, end, overlap int) Chunk {
	if len(emitted) > 0 && overlap > 0 {
		start -= overlap
		if start < 0 {
			start = 0
		}
	}
	return newTextChunk(text, len(emitted), start, end)
}

func newTextChunk(text string, index, start, end int) Chunk {
	body := text[start:end]
	startLine := 1 + strings.Count(text[:start], "\n")
	return Chunk{
		Text:      body,
		Index:     index,
		StartByte: start,
		EndByte:   end,
		StartLine: startLine,
		EndLine:   startLine + strings.Count(strings.TrimSuffix(body, "\n"), "\n"),
	}
}
