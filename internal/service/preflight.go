package service

import (
	"strings"

	"github.com/digkill/productshot/internal/rules"
)

// PreflightInput is the text part of a generation request.
type PreflightInput struct {
	ProductName     string   `json:"product_name"`
	Material        string   `json:"material"`
	ProductType     string   `json:"product_type"`
	Preset          string   `json:"preset"`
	Exclusions      []string `json:"exclusions"`
	ExtraExclusions string   `json:"extra_exclusions"`
	Strict          bool     `json:"strict"`
	// Templates are caller-supplied shot templates; empty entries keep the catalogue text.
	Templates       []string `json:"templates,omitempty"`
}

// Preflight is the outcome of the safety rules for one request.
type Preflight struct {
	ProductName    string              `json:"product_name"`
	Material       string              `json:"material"`
	ProductType    string              `json:"product_type"`
	Templates      []string            `json:"templates,omitempty"`
	AppliedRules   []rules.Replacement `json:"applied_rules"`
	BanHits        []rules.BanHit      `json:"ban_hits"`
	Exclusions     []string            `json:"exclusions"`
	NegativePrompt string              `json:"negative_prompt"`
}

// Blocked reports whether generation must not proceed.
func (p Preflight) Blocked() bool { return len(p.BanHits) > 0 }

// Preflight sanitizes every user-supplied text that reaches a prompt, checks
// it for banned content and composes the negative prompt. It never charges
// quota or calls a model.
func (s *GenerationService) Preflight(in PreflightInput) (Preflight, error) {
	var p Preflight
	check := func(text string) string {
		out, applied := s.rules.Sanitize(strings.TrimSpace(text))
		p.AppliedRules = append(p.AppliedRules, applied...)
		p.BanHits = append(p.BanHits, s.rules.CheckBans(out)...)
		return out
	}

	p.ProductName = check(in.ProductName)
	p.Material = check(in.Material)
	p.ProductType = check(in.ProductType)
	if len(in.Templates) > 0 {
		p.Templates = make([]string, len(in.Templates))
		for i, tmpl := range in.Templates {
			if strings.TrimSpace(tmpl) != "" {
				p.Templates[i] = check(tmpl)
			}
		}
	}

	var terms []string
	if in.Preset != "" {
		preset, ok := s.rules.Preset(in.Preset)
		if !ok {
			return Preflight{}, validationf("unknown exclusion preset %q", in.Preset)
		}
		terms = append(terms, preset.Terms...)
	}
	user := append(append([]string(nil), in.Exclusions...), rules.SplitTerms(in.ExtraExclusions)...)
	for _, term := range user {
		if strings.TrimSpace(term) == "" {
			continue
		}
		if s.rules.KnownExclusion(term) {
			terms = append(terms, strings.TrimSpace(term))
			continue
		}
		terms = append(terms, check(term))
	}

	p.Exclusions = terms
	p.NegativePrompt = s.rules.NegativePrompt(terms, in.Strict)
	if len(p.AppliedRules) > 0 {
		s.log.Info("product text sanitized", "rules", ruleNames(p.AppliedRules))
	}
	return p, nil
}

func ruleNames(applied []rules.Replacement) string {
	names := make([]string, len(applied))
	for i, r := range applied {
		names[i] = r.From + "->" + r.To
	}
	return strings.Join(names, ",")
}
