package usecase

import (
	"sort"
	"strings"

	"github.com/MiscMich/villabot-sub004/internal/core/domain"
)

// RerankOptions control the second-pass scoring blend. The weights are not
// validated to sum to 1 and are not renormalized: callers own the scale, and
// downstream code only relies on relative ordering.
type RerankOptions struct {
	TopK             int
	SimilarityWeight float64
	KeywordWeight    float64
	TitleWeight      float64
}

func (o RerankOptions) withDefaults(inputLen int) RerankOptions {
	out := o
	if out.TopK <= 0 || out.TopK > inputLen {
		out.TopK = inputLen
	}
	if out.SimilarityWeight == 0 && out.KeywordWeight == 0 && out.TitleWeight == 0 {
		out.SimilarityWeight = 0.4
		out.KeywordWeight = 0.4
		out.TitleWeight = 0.2
	}
	return out
}

// Rerank rescales similarity-ranked results with keyword overlap, title match
// and phrase-match bonuses. The output is a stable descending sort by
// RerankScore, truncated to TopK; the input chunks are never mutated.
func Rerank(results []domain.RetrievedChunk, query string, opts RerankOptions) []domain.RerankedChunk {
	if len(results) == 0 {
		return []domain.RerankedChunk{}
	}
	opts = opts.withDefaults(len(results))

	queryTerms := extractTerms(query)
	normalized := normalizeQuery(query)
	queryWords := strings.Fields(normalized)

	out := make([]domain.RerankedChunk, 0, len(results))
	for _, chunk := range results {
		contentTerms := toTermSet(extractTerms(chunk.Content))
		titleTerms := toTermSet(extractTerms(chunk.DocumentTitle))
		normalizedContent := normalizeQuery(chunk.Content)

		keywordScore := termOverlap(queryTerms, contentTerms)
		titleScore := termOverlap(queryTerms, titleTerms)
		phraseScore := phraseMatch(normalized, queryWords, normalizedContent)

		out = append(out, domain.RerankedChunk{
			RetrievedChunk: chunk,
			RerankScore: chunk.Similarity*opts.SimilarityWeight +
				(keywordScore+phraseScore)*opts.KeywordWeight +
				titleScore*opts.TitleWeight,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RerankScore > out[j].RerankScore
	})
	return out[:opts.TopK]
}

// termOverlap scores how much of the query vocabulary appears in the target
// term set: full credit for a verbatim hit, half credit when a target term is
// a prefix or suffix of the query term, normalized by query term count.
func termOverlap(queryTerms []string, target map[string]struct{}) float64 {
	if len(queryTerms) == 0 || len(target) == 0 {
		return 0
	}
	score := 0.0
	for _, qt := range queryTerms {
		if _, ok := target[qt]; ok {
			score++
			continue
		}
		for tt := range target {
			if strings.HasPrefix(qt, tt) || strings.HasSuffix(qt, tt) ||
				strings.HasPrefix(tt, qt) || strings.HasSuffix(tt, qt) {
				score += 0.5
				break
			}
		}
	}
	return score / float64(len(queryTerms))
}

// phraseMatch awards 0.5 when the whole normalized query occurs verbatim in
// the content, otherwise scans decreasing window lengths (down to 3 words)
// for the longest contiguous query-word run present and awards
// 0.3 * windowLen/totalWords for the first match.
func phraseMatch(normalizedQuery string, queryWords []string, normalizedContent string) float64 {
	if normalizedQuery == "" || normalizedContent == "" {
		return 0
	}
	if strings.Contains(normalizedContent, normalizedQuery) {
		return 0.5
	}

	total := len(queryWords)
	for window := total; window >= 3; window-- {
		for start := 0; start+window <= total; start++ {
			phrase := strings.Join(queryWords[start:start+window], " ")
			if strings.Contains(normalizedContent, phrase) {
				return 0.3 * float64(window) / float64(total)
			}
		}
	}
	return 0
}

// FilterByScore keeps results whose pre-rerank RankScore or original
// Similarity clears the threshold (inclusive): a chunk with a strong vector
// score survives a weak composite and vice versa.
func FilterByScore(results []domain.RerankedChunk, minScore float64) []domain.RerankedChunk {
	out := make([]domain.RerankedChunk, 0, len(results))
	for _, r := range results {
		if r.RankScore >= minScore || r.Similarity >= minScore {
			out = append(out, r)
		}
	}
	return out
}
