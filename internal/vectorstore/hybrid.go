package vectorstore

import (
	"sort"
	"strings"
	"unicode"
)

// defaultAlpha weights the vector similarity against the keyword overlap in
// the hybrid score.
const defaultAlpha = 0.75

// overFetch is the multiple of the requested limit fetched from the backend
// before hybrid re-ranking.
const overFetch = 3

// tokenize lowercases the input and splits it into alphanumeric runs.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// keywordScore returns the fraction of distinct query terms present in the
// text, in [0, 1].
func keywordScore(query, text string) float32 {
	terms := tokenize(query)
	if len(terms) == 0 {
		return 0
	}

	textTokens := make(map[string]struct{})
	for _, tok := range tokenize(text) {
		textTokens[tok] = struct{}{}
	}

	distinct := make(map[string]struct{}, len(terms))
	matched := 0
	for _, term := range terms {
		if _, seen := distinct[term]; seen {
			continue
		}
		distinct[term] = struct{}{}
		if _, ok := textTokens[term]; ok {
			matched++
		}
	}

	return float32(matched) / float32(len(distinct))
}

// normalizeCosine maps a cosine similarity from [-1, 1] to [0, 1].
func normalizeCosine(score float32) float32 {
	return clampScore((score + 1) / 2)
}

func clampScore(score float32) float32 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// rankHybrid rewrites each result's Score as the alpha-weighted blend of its
// normalized vector similarity and its keyword overlap with the query, then
// sorts best first.
func rankHybrid(results []SearchResult, query string, alpha float32) {
	for i := range results {
		vector := normalizeCosine(results[i].Score)
		keyword := keywordScore(query, results[i].Text)
		results[i].Score = clampScore(alpha*vector + (1-alpha)*keyword)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
