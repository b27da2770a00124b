package usecase

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestExpandQueryAppendsSynonyms(t *testing.T) {
	e := NewExpander(DefaultLexicon())

	got := e.ExpandQuery("guest complaint")
	if !strings.HasPrefix(got, "guest complaint") {
		t.Fatalf("original query not preserved: %q", got)
	}
	for _, want := range []string{"visitor", "customer", "issue", "feedback"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expansion %q missing from %q", want, got)
		}
	}
}

func TestExpandQueryUnknownTermsUnchanged(t *testing.T) {
	e := NewExpander(DefaultLexicon())
	if got := e.ExpandQuery("xyzzy nonsense"); got != "xyzzy nonsense" {
		t.Fatalf("ExpandQuery() = %q, want input unchanged", got)
	}
}

func TestExpandQueryPhrasesBeforeWords(t *testing.T) {
	e := NewExpander(DefaultLexicon())
	got := e.ExpandQuery("when is check in")
	if !strings.Contains(got, "arrival") {
		t.Fatalf("phrase expansion missing: %q", got)
	}
}

func TestExpandQueryBounded(t *testing.T) {
	e := NewExpander(DefaultLexicon())
	got := e.ExpandQuery("guest booking refund price pay invoice complaint villa wifi parking")
	appended := strings.TrimPrefix(got, "guest booking refund price pay invoice complaint villa wifi parking")
	terms := strings.Fields(appended)
	if len(terms) > maxExpansionTerms {
		t.Fatalf("appended %d terms, cap is %d: %q", len(terms), maxExpansionTerms, appended)
	}
}

func TestExpandQueryDeterministic(t *testing.T) {
	e := NewExpander(DefaultLexicon())
	first := e.ExpandQuery("guest booking complaint")
	for i := 0; i < 10; i++ {
		if got := e.ExpandQuery("guest booking complaint"); got != first {
			t.Fatalf("expansion not deterministic: %q vs %q", got, first)
		}
	}
}

func TestGetAlternativeQueriesOriginalFirst(t *testing.T) {
	e := NewExpander(DefaultLexicon())
	got := e.GetAlternativeQueries("guest complaint", 3)
	if len(got) == 0 || got[0] != "guest complaint" {
		t.Fatalf("original not first: %v", got)
	}
	if len(got) > 3 {
		t.Fatalf("len = %d, want <= 3", len(got))
	}
	seen := map[string]bool{}
	for _, q := range got {
		if seen[q] {
			t.Fatalf("duplicate alternative %q in %v", q, got)
		}
		seen[q] = true
	}
}

func TestGetAlternativeQueriesSingleSubstitution(t *testing.T) {
	e := NewExpander(DefaultLexicon())
	got := e.GetAlternativeQueries("guest parking", 5)

	found := false
	for _, q := range got[1:] {
		if q == "visitor parking" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected single-word substitution variant, got %v", got)
	}
}

func TestLoadLexiconFallsBackToDefault(t *testing.T) {
	lex, err := LoadLexicon("")
	if err != nil {
		t.Fatalf("LoadLexicon(\"\") error = %v", err)
	}
	if !reflect.DeepEqual(lex, DefaultLexicon()) {
		t.Fatalf("empty path should return default lexicon")
	}
}

func TestLoadLexiconReadsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	content := "synonyms:\n  sauna: [spa]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write lexicon: %v", err)
	}

	lex, err := LoadLexicon(path)
	if err != nil {
		t.Fatalf("LoadLexicon() error = %v", err)
	}
	if !reflect.DeepEqual(lex.Synonyms["sauna"], []string{"spa"}) {
		t.Fatalf("synonyms = %v", lex.Synonyms)
	}
	// Omitted sections fall back to the built-in tables.
	if len(lex.Phrases) == 0 {
		t.Fatalf("expected default phrases when file omits them")
	}
}
