// Package snippet extracts the most relevant excerpt of a document for a
// query and scores candidate highlight terms. Term scoring is a BM25-flavored
// term-frequency formula against the whole document, favoring rarer, longer,
// non-stopword terms; the excerpt is a line window centered on the
// highest-scoring line.
package snippet

import (
	"sort"
	"strings"
)

// Scoring constants. The average document length is assumed rather than
// computed per corpus: snippet scoring only ever compares terms within one
// document, so a fixed reference keeps the formula cheap and stateless.
const (
	k1           = 1.2
	b            = 0.75
	avgDocLength = 500.0

	stopwordPenalty = 0.1
	maxLengthBoost  = 1.5
	maxHighlights   = 5

	// DefaultContextLines is the number of lines kept on each side of the
	// best-scoring line.
	DefaultContextLines = 2
)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "had": {}, "her": {}, "was": {},
	"one": {}, "our": {}, "out": {}, "has": {}, "have": {}, "this": {},
	"that": {}, "with": {}, "from": {}, "they": {}, "what": {}, "when": {},
	"where": {}, "which": {}, "will": {}, "would": {}, "there": {},
	"their": {}, "about": {}, "into": {}, "than": {}, "then": {},
	"them": {}, "these": {}, "some": {}, "how": {}, "its": {}, "also": {},
}

// Result is an extracted snippet plus the terms worth highlighting in it.
type Result struct {
	Snippet    string
	Highlights []string
}

// Extractor extracts relevance-scored snippets.
type Extractor struct {
	contextLines int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithContextLines sets the number of context lines around the best line.
func WithContextLines(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.contextLines = n
		}
	}
}

// NewExtractor creates a snippet extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{contextLines: DefaultContextLines}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// scoredTerm pairs a query term with its relevance score in the document.
type scoredTerm struct {
	term  string
	score float64
}

// Extract returns the most relevant excerpt of content for query, plus the
// top scored highlight terms. Short documents are returned whole; when no
// line matches any term, the head of the document is returned unchanged.
func (e *Extractor) Extract(content, query string) Result {
	terms := e.scoreTerms(content, query)

	highlights := make([]string, 0, maxHighlights)
	for _, st := range terms {
		if len(highlights) == maxHighlights {
			break
		}
		if st.score > 0 {
			highlights = append(highlights, st.term)
		}
	}

	window := 2*e.contextLines + 1
	lines := strings.Split(content, "\n")
	if len(lines) <= window {
		return Result{Snippet: content, Highlights: highlights}
	}

	best, bestScore := 0, 0.0
	for i, line := range lines {
		score := lineScore(line, terms)
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	if bestScore == 0 {
		return Result{
			Snippet:    strings.Join(lines[:window], "\n"),
			Highlights: highlights,
		}
	}

	start := best - e.contextLines
	if start < 0 {
		start = 0
	}
	end := best + e.contextLines + 1
	if end > len(lines) {
		end = len(lines)
	}

	return Result{
		Snippet:    strings.Join(lines[start:end], "\n"),
		Highlights: highlights,
	}
}

// scoreTerms tokenizes the query and scores every token against the content,
// returning terms in descending score order (ties keep query order).
func (e *Extractor) scoreTerms(content, query string) []scoredTerm {
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return nil
	}

	lowerContent := strings.ToLower(content)
	docLen := float64(len(strings.Fields(content)))

	terms := make([]scoredTerm, 0, len(tokens))
	for _, tok := range tokens {
		terms = append(terms, scoredTerm{
			term:  tok,
			score: termScore(tok, lowerContent, docLen),
		})
	}

	sort.SliceStable(terms, func(i, j int) bool {
		return terms[i].score > terms[j].score
	})
	return terms
}

// termScore is a BM25-flavored TF score against the whole document, scaled
// by a stopword penalty and a term-length boost.
func termScore(term, lowerContent string, docLen float64) float64 {
	tf := float64(strings.Count(lowerContent, term))
	if tf == 0 {
		return 0
	}

	score := tf * (k1 + 1) / (tf + k1*(1-b+b*docLen/avgDocLength))

	if _, stop := stopwords[term]; stop {
		score *= stopwordPenalty
	}

	boost := float64(len(term)) / 5
	if boost > maxLengthBoost {
		boost = maxLengthBoost
	}
	return score * boost
}

// lineScore sums the scores of terms present in the line.
func lineScore(line string, terms []scoredTerm) float64 {
	lower := strings.ToLower(line)
	var score float64
	for _, st := range terms {
		if st.score > 0 && strings.Contains(lower, st.term) {
			score += st.score
		}
	}
	return score
}

// queryTokens lower-cases the query and keeps deduplicated words longer than
// two characters, preserving first-occurrence order.
func queryTokens(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `.,;:!?"'()[]{}`)
		if len(f) <= 2 {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}
