package usecase

import (
	"strings"
	"unicode"
)

// stopwords are excluded from term matching. Question words are deliberately
// included: they carry intent, not content, and the reranker only wants
// content-bearing terms.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "had": {}, "her": {}, "was": {},
	"one": {}, "our": {}, "out": {}, "has": {}, "have": {}, "this": {},
	"that": {}, "with": {}, "from": {}, "they": {}, "will": {}, "would": {},
	"there": {}, "their": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"who": {}, "why": {}, "how": {}, "about": {}, "into": {}, "than": {},
	"them": {}, "then": {}, "does": {}, "your": {},
}

// fillerWords are additionally dropped by extractKeyTerms: they appear in
// almost every request to a bot and match nothing useful.
var fillerWords = map[string]struct{}{
	"please": {}, "help": {}, "find": {}, "need": {}, "want": {},
	"know": {}, "tell": {}, "show": {},
}

// extractTerms normalizes text into content-bearing terms: lowercase,
// non-word characters stripped, whitespace-split, tokens of length <=2 and
// stopwords dropped. Output is order-preserving and deduplicated.
func extractTerms(text string) []string {
	words := splitWords(text)
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// extractKeyTerms is extractTerms minus conversational filler.
func extractKeyTerms(text string) []string {
	terms := extractTerms(text)
	out := terms[:0:0]
	for _, t := range terms {
		if _, filler := fillerWords[t]; filler {
			continue
		}
		out = append(out, t)
	}
	return out
}

func toTermSet(terms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return set
}

// splitWords lowercases and splits on anything that is not a letter or digit.
func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// normalizeQuery collapses a query to its canonical matching form: lowercase
// with word characters only and single spaces. Used for phrase matching and
// cache keys.
func normalizeQuery(s string) string {
	return strings.Join(splitWords(s), " ")
}
