package rules

// BanHit reports one ban pattern found in a text.
type BanHit struct {
	Pattern string `json:"pattern"`
	Class   string `json:"class"`
	Match   string `json:"match"`
}

// CheckBans returns a hit for every pattern found in text, in table order.
// A non-empty result must stop generation.
func (e *Engine) CheckBans(text string) []BanHit {
	if text == "" {
		return nil
	}
	var hits []BanHit
	for _, b := range e.bans {
		loc := b.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		hits = append(hits, BanHit{Pattern: b.Pattern, Class: b.Class, Match: text[loc[0]:loc[1]]})
	}
	return hits
}

// Classes returns the distinct classes of hits, in first-seen order.
func Classes(hits []BanHit) []string {
	seen := make(map[string]struct{}, len(hits))
	var out []string
	for _, h := range hits {
		if _, ok := seen[h.Class]; ok {
			continue
		}
		seen[h.Class] = struct{}{}
		out = append(out, h.Class)
	}
	return out
}
