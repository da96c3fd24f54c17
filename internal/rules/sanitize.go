package rules

import "strings"

// Sanitize applies every replacement in order to the current text and returns
// the result with the rules that actually changed it.
func (e *Engine) Sanitize(text string) (string, []Replacement) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	var applied []Replacement
	for _, r := range e.replacements {
		next := r.re.ReplaceAllLiteralString(text, r.To)
		if next != text {
			applied = append(applied, r)
			text = next
		}
	}
	return text, applied
}
