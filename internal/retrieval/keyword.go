package retrieval

import (
	"regexp"
	"sort"
	"strings"

	"github.com/autoaid/backend/internal/storage/models"
)

var termPattern = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// queryTerms extracts lowercase alphanumeric terms of three or more
// characters. When nothing survives the length cut, it falls back to a plain
// whitespace split so short queries like "AC" still match something.
func queryTerms(query string) []string {
	var terms []string
	for _, t := range termPattern.FindAllString(query, -1) {
		if len(t) >= 3 {
			terms = append(terms, strings.ToLower(t))
		}
	}
	if len(terms) == 0 {
		terms = strings.Fields(strings.ToLower(query))
	}
	return terms
}

type scoredChunk struct {
	chunk models.ChunkWithDocument
	score int
}

// scoreChunks ranks chunks by summed term frequency, dropping zero scores.
// The sort is stable so storage order breaks ties.
func scoreChunks(chunks []models.ChunkWithDocument, terms []string) []scoredChunk {
	var scored []scoredChunk
	for _, ch := range chunks {
		content := strings.ToLower(ch.Content)
		score := 0
		for _, t := range terms {
			score += strings.Count(content, t)
		}
		if score > 0 {
			scored = append(scored, scoredChunk{chunk: ch, score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	return scored
}
