package view

import (
	"slices"
	"strings"

	"github.com/sahilm/fuzzy"
)

type matcher struct {
	query   string
	runes   []rune
	maxDist int
}

func newMatcher(query string, threshold float64) matcher {
	q := strings.ToLower(query)
	r := []rune(q)
	return matcher{query: q, runes: r, maxDist: int(threshold * float64(len(r)))}
}

// Match reports whether text matches query under the default threshold.
func Match(query, text string) bool {
	return newMatcher(strings.TrimSpace(query), DefaultThreshold).match(text)
}

func (m matcher) match(text string) bool {
	if m.query == "" {
		return true
	}
	t := strings.ToLower(text)
	if len(fuzzy.Find(m.query, []string{t})) > 0 {
		return true
	}
	return substringDistance(m.runes, []rune(t)) <= m.maxDist
}

// substringDistance is the smallest edit distance between pattern and any
// substring of text. Leading and trailing text is free, so "milj" finds
// "oat milk" at distance 1.
func substringDistance(pattern, text []rune) int {
	if len(pattern) == 0 {
		return 0
	}
	prev := make([]int, len(text)+1)
	cur := make([]int, len(text)+1)
	for i := 1; i <= len(pattern); i++ {
		cur[0] = i
		for j := 1; j <= len(text); j++ {
			cost := 1
			if pattern[i-1] == text[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j-1]+cost, prev[j]+1, cur[j-1]+1)
		}
		prev, cur = cur, prev
	}
	return slices.Min(prev)
}
