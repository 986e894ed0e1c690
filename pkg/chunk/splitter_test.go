package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitText_ShortInput(t *testing.T) {
	chunks := SplitText("hello world", SplitOptions{ChunkSize: 100})
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].StartByte)
	assert.Equal(t, 11, chunks[0].EndByte)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestSplitText_EmptyInput(t *testing.T) {
	chunks := SplitText("", DefaultSplitOptions())
	assert.Empty(t, chunks)
	assert.NotNil(t, chunks)
}

func TestSplitText_ParagraphBoundaries(t *testing.T) {
	text := "First.\n\nSecond.\n\nThird."
	chunks := SplitText(text, SplitOptions{ChunkSize: 15, ChunkOverlap: 0})

	require.GreaterOrEqual(t, len(chunks), 2)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.GreaterOrEqual(t, c.StartByte, 0)
		assert.Less(t, c.StartByte, c.EndByte)
		assert.LessOrEqual(t, c.EndByte, len(text))
		assert.Equal(t, text[c.StartByte:c.EndByte], c.Text)
	}
}

func TestSplitText_RoundTrip(t *testing.T) {
	text := "# Title\n\nParagraph one has some words.\n\nParagraph two has more words in it.\n\n## Section\n\nFinal paragraph here."
	chunks := SplitText(text, SplitOptions{ChunkSize: 40, ChunkOverlap: 10})
	require.NotEmpty(t, chunks)

	// Chunks reconstruct the input after dropping overlap-duplicated prefixes.
	var rebuilt strings.Builder
	prevEnd := 0
	for _, c := range chunks {
		start := c.StartByte
		if start < prevEnd {
			start = prevEnd
		}
		rebuilt.WriteString(text[start:c.EndByte])
		prevEnd = c.EndByte
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestSplitText_OverlapExtendsStart(t *testing.T) {
	text := strings.Repeat("word ", 100)
	chunks := SplitText(text, SplitOptions{ChunkSize: 120, ChunkOverlap: 20})
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		assert.Less(t, chunks[i].StartByte, chunks[i-1].EndByte, "chunk %d starts inside its predecessor", i)
	}
	assert.Equal(t, 0, chunks[0].StartByte)
	assert.Equal(t, len(text), chunks[len(chunks)-1].EndByte)
}

func TestSplitText_LongWordFallsBackToCharacters(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := SplitText(text, SplitOptions{ChunkSize: 100, ChunkOverlap: 0})

	require.Len(t, chunks, 3)
	assert.Equal(t, 100, len(chunks[0].Text))
	assert.Equal(t, 100, len(chunks[1].Text))
	assert.Equal(t, 50, len(chunks[2].Text))
}

func TestSplitText_HeadingPriority(t *testing.T) {
	text := "Intro text before anything.\n# One\nbody of section one\n# Two\nbody of section two"
	chunks := SplitText(text, SplitOptions{ChunkSize: 35, ChunkOverlap: 0})

	require.Greater(t, len(chunks), 1)
	// Heading boundaries win over plain newlines, so later chunks start at a
	// heading marker.
	var headingStarts int
	for _, c := range chunks[1:] {
		if strings.HasPrefix(c.Text, "\n# ") {
			headingStarts++
		}
	}
	assert.Greater(t, headingStarts, 0)
}

func TestSplitText_LineNumbers(t *testing.T) {
	text := "line one\nline two\n\nline four is a bit longer\n\nline six ends it"
	chunks := SplitText(text, SplitOptions{ChunkSize: 25, ChunkOverlap: 0})
	require.NotEmpty(t, chunks)

	assert.Equal(t, 1, chunks[0].StartLine)
	for _, c := range chunks {
		assert.GreaterOrEqual(t, c.EndLine, c.StartLine)
	}
}
