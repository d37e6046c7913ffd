package knowledge

import (
	"os"
	"path/filepath"
	"testing"
)

func TestQueryMatchesKeywordsCaseInsensitively(t *testing.T) {
	provider := DefaultProvider(3)

	results := provider.Query([]string{"SIP"})
	if len(results) == 0 {
		t.Fatal("expected SIP guidance")
	}
	if results[0].Title != "SIP basics" {
		t.Fatalf("first result = %q", results[0].Title)
	}
}

func TestQueryMatchesGoalPhrases(t *testing.T) {
	provider := DefaultProvider(3)

	results := provider.Query([]string{"child education"})
	found := false
	for _, snippet := range results {
		if snippet.Title == "Education goals" {
			found = true
		}
	}
	if !found {
		t.Fatalf("education snippet not matched: %+v", results)
	}
}

func TestQueryBoundsResults(t *testing.T) {
	provider := DefaultProvider(1)

	results := provider.Query([]string{"sip", "ppf", "gold", "emergency"})
	if len(results) != 1 {
		t.Fatalf("results = %d, want max_results of 1", len(results))
	}
}

func TestQueryNoTermsOrNoMatch(t *testing.T) {
	provider := DefaultProvider(3)

	if got := provider.Query(nil); got != nil {
		t.Fatalf("Query(nil) = %v", got)
	}
	if got := provider.Query([]string{"  ", ""}); got != nil {
		t.Fatalf("Query(blank) = %v", got)
	}
	if got := provider.Query([]string{"zzzz-unrelated"}); len(got) != 0 {
		t.Fatalf("Query(unrelated) = %v", got)
	}
}

func TestLoadStaticProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snippets.json")
	content := `[{"title": "NPS", "content": "NPS adds 80CCD(1B) headroom.", "keywords": ["nps", "retirement"]}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write snippets: %v", err)
	}

	provider, err := LoadStaticProvider(path, 3)
	if err != nil {
		t.Fatalf("LoadStaticProvider: %v", err)
	}
	results := provider.Query([]string{"retirement planning"})
	if len(results) != 1 || results[0].Title != "NPS" {
		t.Fatalf("results = %+v", results)
	}
}

func TestLoadStaticProviderErrors(t *testing.T) {
	if _, err := LoadStaticProvider("", 3); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := LoadStaticProvider(filepath.Join(t.TempDir(), "missing.json"), 3); err == nil {
		t.Fatal("expected error for missing file")
	}
	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write bad file: %v", err)
	}
	if _, err := LoadStaticProvider(bad, 3); err == nil {
		t.Fatal("expected error for malformed file")
	}
}
