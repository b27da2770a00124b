package usecase

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon holds the domain synonym and phrase tables used for query
// expansion. Phrase entries are checked before single words.
type Lexicon struct {
	Synonyms map[string][]string `yaml:"synonyms"`
	Phrases  map[string][]string `yaml:"phrases"`
}

// DefaultLexicon is the built-in hospitality vocabulary. Kept small on
// purpose: expansion widens recall, and an aggressive table drowns the
// original query terms.
func DefaultLexicon() Lexicon {
	return Lexicon{
		Synonyms: map[string][]string{
			"guest":     {"visitor", "customer"},
			"booking":   {"reservation"},
			"book":      {"reserve"},
			"cancel":    {"cancellation"},
			"refund":    {"reimbursement"},
			"price":     {"rate", "cost"},
			"pay":       {"payment"},
			"invoice":   {"bill", "receipt"},
			"complaint": {"issue", "feedback"},
			"villa":     {"property", "house"},
			"rules":     {"policy"},
			"deposit":   {"security deposit"},
			"damage":    {"broken"},
			"cleaning":  {"housekeeping"},
			"wifi":      {"internet"},
			"parking":   {"garage"},
			"pet":       {"animal", "dog"},
			"discount":  {"promotion"},
		},
		Phrases: map[string][]string{
			"check in":     {"arrival", "checking in"},
			"check out":    {"departure", "checking out"},
			"how much":     {"price", "cost"},
			"house rules":  {"property rules"},
			"late arrival": {"after hours check in"},
		},
	}
}

// LoadLexicon reads a YAML lexicon file, falling back to the built-in table
// for any section the file omits.
func LoadLexicon(path string) (Lexicon, error) {
	def := DefaultLexicon()
	if path == "" {
		return def, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return def, fmt.Errorf("read lexicon file: %w", err)
	}
	var loaded Lexicon
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return def, fmt.Errorf("parse lexicon yaml: %w", err)
	}
	if len(loaded.Synonyms) == 0 {
		loaded.Synonyms = def.Synonyms
	}
	if len(loaded.Phrases) == 0 {
		loaded.Phrases = def.Phrases
	}
	return loaded, nil
}

const maxExpansionTerms = 6

// Expander enriches user queries with domain synonyms before retrieval. It
// never fails outward: a query with no table hits comes back unchanged.
type Expander struct {
	lexicon Lexicon
}

func NewExpander(lexicon Lexicon) *Expander {
	if lexicon.Synonyms == nil {
		lexicon.Synonyms = map[string][]string{}
	}
	if lexicon.Phrases == nil {
		lexicon.Phrases = map[string][]string{}
	}
	return &Expander{lexicon: lexicon}
}

// ExpandQuery appends a bounded set of synonym/phrase expansions to the
// original query. The original text is always preserved verbatim.
func (e *Expander) ExpandQuery(query string) string {
	expansions := e.expansionsFor(query)
	if len(expansions) == 0 {
		return query
	}
	return query + " " + strings.Join(expansions, " ")
}

func (e *Expander) expansionsFor(query string) []string {
	lower := strings.ToLower(query)
	seen := make(map[string]struct{})
	var out []string
	add := func(term string) {
		if len(out) >= maxExpansionTerms {
			return
		}
		if _, dup := seen[term]; dup || term == "" {
			return
		}
		if strings.Contains(lower, term) {
			return
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}

	// Phrases first: "check in" must win over the bare word "check".
	for _, phrase := range sortedKeys(e.lexicon.Phrases) {
		if strings.Contains(lower, phrase) {
			for _, alt := range e.lexicon.Phrases[phrase] {
				add(alt)
			}
		}
	}
	for _, word := range splitWords(query) {
		for _, syn := range e.lexicon.Synonyms[word] {
			add(syn)
		}
	}
	return out
}

// GetAlternativeQueries returns the original query first, then variants built
// by a single phrase or word substitution, deduplicated and capped.
func (e *Expander) GetAlternativeQueries(query string, maxAlternatives int) []string {
	if maxAlternatives <= 0 {
		maxAlternatives = 3
	}
	out := []string{query}
	seen := map[string]struct{}{query: {}}
	add := func(variant string) {
		if len(out) >= maxAlternatives {
			return
		}
		if _, dup := seen[variant]; dup || strings.TrimSpace(variant) == "" {
			return
		}
		seen[variant] = struct{}{}
		out = append(out, variant)
	}

	lower := strings.ToLower(query)
	for _, phrase := range sortedKeys(e.lexicon.Phrases) {
		if !strings.Contains(lower, phrase) {
			continue
		}
		for _, alt := range e.lexicon.Phrases[phrase] {
			add(replaceFold(query, phrase, alt))
		}
	}
	for _, word := range splitWords(query) {
		for _, syn := range e.lexicon.Synonyms[word] {
			add(replaceFold(query, word, syn))
		}
	}
	return out
}

// ExtractKeyTerms exposes the shared stopword-filtered tokenization with the
// extra conversational filler dropped.
func (e *Expander) ExtractKeyTerms(query string) []string {
	return extractKeyTerms(query)
}

// replaceFold replaces the first case-insensitive occurrence of old in s.
func replaceFold(s, old, repl string) string {
	idx := strings.Index(strings.ToLower(s), strings.ToLower(old))
	if idx < 0 {
		return s
	}
	return s[:idx] + repl + s[idx+len(old):]
}

// sortedKeys returns map keys in deterministic order so expansion output is
// stable across calls.
func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
