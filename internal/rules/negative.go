package rules

import "strings"

// Delimiter separates clauses in a negative prompt.
const Delimiter = ", "

// NegativePrompt composes base clauses, "no {term}" for every non-empty term
// and, in strict mode, the strict clauses. Duplicates keep their first position.
func (e *Engine) NegativePrompt(terms []string, strict bool) string {
	return strings.Join(NegativeClauses(terms, strict), Delimiter)
}

// NegativeClauses is NegativePrompt before joining.
func NegativeClauses(terms []string, strict bool) []string {
	seen := make(map[string]struct{}, len(baseClauses)+len(terms)+len(strictClauses))
	out := make([]string, 0, len(baseClauses)+len(terms)+len(strictClauses))
	add := func(clause string) {
		if _, ok := seen[clause]; ok {
			return
		}
		seen[clause] = struct{}{}
		out = append(out, clause)
	}

	for _, c := range baseClauses {
		add(c)
	}
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		add("no " + t)
	}
	if strict {
		for _, c := range strictClauses {
			add(c)
		}
	}
	return out
}

// BaseClauses returns the always-on safety clauses.
func BaseClauses() []string { return append([]string(nil), baseClauses...) }

// StrictClauses returns the clauses added in strict mode.
func StrictClauses() []string { return append([]string(nil), strictClauses...) }

// SplitTerms splits a comma-separated free-text exclusion string.
func SplitTerms(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
