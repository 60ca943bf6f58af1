package search

import (
	"strings"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"

	"github.com/thebtf/promptlib/pkg/models"
)

// DefaultThreshold is the accepted dissimilarity: 0 demands an exact
// substring, 1 accepts anything.
const DefaultThreshold = 0.3

// Scorer rates how well a prompt matches a search query.
// Implementations must return similarity 1 for an exact (case-insensitive)
// substring of any searched field, and ok=false when the best field falls
// outside their tolerance.
type Scorer interface {
	Score(query string, p *models.Prompt) (similarity float64, ok bool)
}

// searchFields returns the lower-cased texts a query is matched against.
func searchFields(p *models.Prompt) []string {
	return []string{
		strings.ToLower(p.Title),
		strings.ToLower(p.Content),
		strings.ToLower(strings.Join(p.Tags, " ")),
		strings.ToLower(p.Notes),
	}
}

// NewScorer returns the scorer registered under name ("approx" or
// "subsequence"), falling back to ApproxScorer.
func NewScorer(name string, threshold float64) Scorer {
	if name == "subsequence" {
		return NewSubsequenceScorer(threshold)
	}
	return NewApproxScorer(threshold)
}

// ApproxScorer matches the query as an approximate substring of each field,
// tolerating typos. Similarity is 1 - editDistance/len(query).
type ApproxScorer struct {
	Threshold float64
}

// NewApproxScorer creates an ApproxScorer.
func NewApproxScorer(threshold float64) *ApproxScorer {
	return &ApproxScorer{Threshold: threshold}
}

// Score implements Scorer.
func (s *ApproxScorer) Score(query string, p *models.Prompt) (float64, bool) {
	q := []rune(strings.ToLower(strings.TrimSpace(query)))
	if len(q) == 0 {
		return 0, false
	}

	best := 0.0
	for _, field := range searchFields(p) {
		if field == "" {
			continue
		}
		if strings.Contains(field, string(q)) {
			return 1, true
		}
		dist := substringDistance(q, []rune(field))
		sim := 1 - float64(dist)/float64(len(q))
		if sim > best {
			best = sim
		}
	}
	return best, best > 0 && best >= 1-s.Threshold
}

// substringDistance is the smallest edit distance between pattern and any
// substring of text (Sellers' algorithm: free start and end positions in text).
func substringDistance(pattern, text []rune) int {
	prev := make([]int, len(pattern)+1)
	cur := make([]int, len(pattern)+1)
	for i := range prev {
		prev[i] = i
	}

	best := prev[len(pattern)]
	for _, tc := range text {
		cur[0] = 0
		for i, pc := range pattern {
			cost := 1
			if pc == tc {
				cost = 0
			}
			cur[i+1] = min(prev[i]+cost, prev[i+1]+1, cur[i]+1)
		}
		if cur[len(pattern)] < best {
			best = cur[len(pattern)]
		}
		prev, cur = cur, prev
	}
	return best
}

// SubsequenceScorer matches query characters in order with gaps allowed, the
// way editor file pickers do. Similarity is len(query) divided by the length
// of the matched span.
type SubsequenceScorer struct {
	Threshold float64
}

// NewSubsequenceScorer creates a SubsequenceScorer.
func NewSubsequenceScorer(threshold float64) *SubsequenceScorer {
	return &SubsequenceScorer{Threshold: threshold}
}

// Score implements Scorer.
func (s *SubsequenceScorer) Score(query string, p *models.Prompt) (float64, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0, false
	}

	fields := searchFields(p)
	for _, field := range fields {
		if field != "" && strings.Contains(field, q) {
			return 1, true
		}
	}

	best := 0.0
	for _, m := range fuzzy.Find(q, fields) {
		if len(m.MatchedIndexes) == 0 {
			continue
		}
		// MatchedIndexes are byte offsets; measure the span in runes.
		first, last := m.MatchedIndexes[0], m.MatchedIndexes[len(m.MatchedIndexes)-1]
		span := utf8.RuneCountInString(m.Str[first:last]) + 1
		sim := float64(len(m.MatchedIndexes)) / float64(span)
		if sim > best {
			best = sim
		}
	}
	return best, best > 0 && best >= 1-s.Threshold
}
