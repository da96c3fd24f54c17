package rules

import (
	"strings"
	"testing"
)

func countClause(prompt, clause string) int {
	n := 0
	for _, c := range strings.Split(prompt, Delimiter) {
		if c == clause {
			n++
		}
	}
	return n
}

func TestNegativePromptDedup(t *testing.T) {
	got := Default().NegativePrompt([]string{"watermarks", "watermarks", "hands"}, true)

	if n := countClause(got, "no watermarks"); n != 1 {
		t.Errorf("no watermarks appears %d times in %q", n, got)
	}
	if n := countClause(got, "no hands"); n != 1 {
		t.Errorf("no hands appears %d times in %q", n, got)
	}
	for _, c := range BaseClauses() {
		if countClause(got, c) != 1 {
			t.Errorf("base clause %q missing from %q", c, got)
		}
	}
}

func TestNegativePromptOrder(t *testing.T) {
	got := NegativeClauses([]string{"  brand names ", "", "hands"}, true)

	base := len(BaseClauses())
	if got[base] != "no brand names" || got[base+1] != "no hands" {
		t.Fatalf("user clauses not after base: %v", got[base:base+2])
	}
	// "no hands" from strict mode is already present
	if len(got) != base+2+len(StrictClauses())-1 {
		t.Fatalf("got %d clauses, want %d", len(got), base+2+len(StrictClauses())-1)
	}
	if got[len(got)-1] != "studio product photo feel" {
		t.Fatalf("last clause = %q", got[len(got)-1])
	}
}

func TestNegativePromptNonStrict(t *testing.T) {
	got := Default().NegativePrompt(nil, false)
	if got != strings.Join(BaseClauses(), Delimiter) {
		t.Fatalf("got %q", got)
	}
	if strings.Contains(got, "clean background") {
		t.Fatal("strict clause in non-strict prompt")
	}
}

func TestNegativePromptDeterministic(t *testing.T) {
	e := Default()
	terms := []string{"brand names", "price tags", "hands"}
	want := e.NegativePrompt(terms, true)
	for i := 0; i < 10; i++ {
		if got := e.NegativePrompt(terms, true); got != want {
			t.Fatalf("run %d differs", i)
		}
	}
}

func TestSplitTerms(t *testing.T) {
	got := SplitTerms(" logos, ,price tags ,, ")
	if len(got) != 2 || got[0] != "logos" || got[1] != "price tags" {
		t.Fatalf("SplitTerms = %q", got)
	}
	if SplitTerms("") != nil {
		t.Fatal("expected nil for empty input")
	}
}
