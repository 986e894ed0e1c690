package retrieval

import "sort"

// RRFConstant is the damping constant K of Reciprocal Rank Fusion. It
// flattens the influence of rank differences far down a list.
const RRFConstant = 60

// RankedList is one input stream to Fuse. Weight defaults to 1.0 when not
// positive.
type RankedList struct {
	Results []SearchResult
	Weight  float64
}

// Fuse merges ranked result lists with Reciprocal Rank Fusion: every
// occurrence of an id at 0-based rank r in a list of weight w contributes
// w / (K + r + 1) to that id's score. Payloads merge first-non-empty-wins
// in list order. The output is sorted by descending score; ties keep the
// order in which ids were first encountered. Scores are not renormalized.
func Fuse(lists ...RankedList) []SearchResult {
	type fused struct {
		result SearchResult
		score  float64
	}

	byID := make(map[string]*fused)
	var seq []*fused

	for _, list := range lists {
		weight := list.Weight
		if weight <= 0 {
			weight = 1.0
		}
		for rank, r := range list.Results {
			contribution := weight / float64(RRFConstant+rank+1)
			if f, ok := byID[r.ID]; ok {
				f.score += contribution
				mergePayload(&f.result, r)
				continue
			}
			f := &fused{result: r, score: contribution}
			byID[r.ID] = f
			seq = append(seq, f)
		}
	}

	sort.SliceStable(seq, func(i, j int) bool {
		return seq[i].score > seq[j].score
	})

	out := make([]SearchResult, len(seq))
	for i, f := range seq {
		f.result.Score = f.score
		out[i] = f.result
	}
	return out
}

// mergePayload fills gaps in dst from src without overwriting populated
// fields.
func mergePayload(dst *SearchResult, src SearchResult) {
	if dst.Content == "" && src.Content != "" {
		dst.Content = src.Content
	}
	if len(dst.Metadata) == 0 && len(src.Metadata) > 0 {
		dst.Metadata = src.Metadata
	}
	if dst.Chunk == nil && src.Chunk != nil {
		dst.Chunk = src.Chunk
	}
	if dst.Meta == nil && src.Meta != nil {
		dst.Meta = src.Meta
	}
}
